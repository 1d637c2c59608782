package v1

import (
	"encoding/json"
	"fmt"

	admissionv1 "k8s.io/api/admission/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"

	"github.com/amitk8s/pod-cpu-mutator/pkg/policy"
)

func newReview() *admissionv1.AdmissionReview {
	return &admissionv1.AdmissionReview{
		TypeMeta: metav1.TypeMeta{
			APIVersion: "admission.k8s.io/v1",
			Kind:       "AdmissionReview",
		},
	}
}

// NewMutationReview builds the admission review answering a mutation
// request. The request is always allowed; when at least one patch
// operation is present, the response carries the JSONPatch document
// (base64-encoded on the wire by the []byte JSON encoding). An empty patch
// omits the patch fields entirely.
func NewMutationReview(uid types.UID, patch []policy.PatchOperation) (*admissionv1.AdmissionReview, error) {
	review := newReview()
	review.Response = &admissionv1.AdmissionResponse{
		UID:     uid,
		Allowed: true,
	}

	if len(patch) > 0 {
		patchBytes, err := json.Marshal(patch)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal patch operations: %w", err)
		}
		patchType := admissionv1.PatchTypeJSONPatch
		review.Response.Patch = patchBytes
		review.Response.PatchType = &patchType
	}

	return review, nil
}

// NewValidationReview builds the admission review answering a validation
// request. The status message is present only when non-empty.
func NewValidationReview(uid types.UID, allowed bool, message string) *admissionv1.AdmissionReview {
	review := newReview()
	review.Response = &admissionv1.AdmissionResponse{
		UID:     uid,
		Allowed: allowed,
	}

	if message != "" {
		review.Response.Result = &metav1.Status{Message: message}
	}

	return review
}
