package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	admissionv1 "k8s.io/api/admission/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
)

// stubStats serves canned sibling aggregates so the deletion decision can
// be exercised with no cluster present.
type stubStats struct {
	cpuSum        int64
	cpuErr        error
	selectorCount int
	selectorErr   error
}

func (s *stubStats) SumCPURequests(context.Context, string, string, string) (int64, error) {
	return s.cpuSum, s.cpuErr
}

func (s *stubStats) CountWithNodeSelector(context.Context, string, string, string) (int, error) {
	return s.selectorCount, s.selectorErr
}

func createPodAdmissionReview(pod *corev1.Pod, op admissionv1.Operation) *admissionv1.AdmissionReview {
	podJSON, _ := json.Marshal(pod)

	request := &admissionv1.AdmissionRequest{
		UID:       types.UID("test-uid"),
		Operation: op,
		Kind: metav1.GroupVersionKind{
			Group:   "",
			Version: "v1",
			Kind:    "Pod",
		},
	}
	if op == admissionv1.Delete {
		request.OldObject = runtime.RawExtension{Raw: podJSON}
	} else {
		request.Object = runtime.RawExtension{Raw: podJSON}
	}

	return &admissionv1.AdmissionReview{
		TypeMeta: metav1.TypeMeta{
			Kind:       "AdmissionReview",
			APIVersion: "admission.k8s.io/v1",
		},
		Request: request,
	}
}

func sendWebhookRequest(engine *gin.Engine, admissionReview *admissionv1.AdmissionReview) *admissionv1.AdmissionReview {
	body, _ := json.Marshal(admissionReview)
	req, _ := http.NewRequest("POST", "/webhook", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	engine.ServeHTTP(w, req)

	var response admissionv1.AdmissionReview
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		response = admissionv1.AdmissionReview{
			Response: &admissionv1.AdmissionResponse{
				Allowed: false,
				Result: &metav1.Status{
					Message: "Failed to parse response",
				},
			},
		}
	}
	return &response
}
