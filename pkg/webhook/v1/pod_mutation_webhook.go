/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package v1

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	admissionv1 "k8s.io/api/admission/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/types"

	"github.com/amitk8s/pod-cpu-mutator/pkg/kubernetes/cpu"
	"github.com/amitk8s/pod-cpu-mutator/pkg/kubernetes/pod"
	"github.com/amitk8s/pod-cpu-mutator/pkg/metrics"
	"github.com/amitk8s/pod-cpu-mutator/pkg/policy"
)

// PodMutationWebhook assigns CPU requests to admitted pods.
type PodMutationWebhook struct {
	assigner *policy.Assigner
	appLabel string
	log      *zap.Logger
}

// NewPodMutationWebhook creates a new PodMutationWebhook. Pods matching
// appLabel (by label or name) are the webhook's own workload and pass
// through unmutated.
func NewPodMutationWebhook(assigner *policy.Assigner, appLabel string, log *zap.Logger) *PodMutationWebhook {
	return &PodMutationWebhook{
		assigner: assigner,
		appLabel: appLabel,
		log:      log,
	}
}

// Handle handles the admission review request for pod mutation. Apart
// from an unparsable request body, every outcome is an HTTP 200 carrying
// an allowed verdict; internal failures degrade to "allow unmutated".
func (h *PodMutationWebhook) Handle(c *gin.Context) {
	start := time.Now()

	review, ok := bindAdmissionReview(c, h.log)
	if !ok {
		return
	}

	operation := string(review.Request.Operation)
	metrics.WebhookRequestCount.WithLabelValues("mutate", operation).Inc()
	defer func() {
		metrics.WebhookRequestDuration.WithLabelValues("mutate", operation).Observe(time.Since(start).Seconds())
	}()

	uid := review.Request.UID

	if review.Request.Kind.Kind != "Pod" {
		h.log.Info("Ignoring non-Pod resource on mutation",
			zap.String("kind", review.Request.Kind.Kind))
		h.respond(c, uid, operation, nil)
		return
	}

	var podObj corev1.Pod
	if err := json.Unmarshal(review.Request.Object.Raw, &podObj); err != nil {
		h.log.Error("Failed to decode Pod, allowing unmutated", zap.Error(err))
		h.respond(c, uid, operation, nil)
		return
	}

	if pod.IsWebhookOwn(&podObj, h.appLabel) {
		h.log.Info("Skipping mutation for webhook's own pod",
			zap.String("pod", podObj.Name),
			zap.String("namespace", podObj.Namespace))
		h.respond(c, uid, operation, nil)
		return
	}

	if len(podObj.Spec.Containers) == 0 {
		h.log.Info("No containers found in pod spec",
			zap.String("pod", podObj.Name),
			zap.String("namespace", podObj.Namespace))
		h.respond(c, uid, operation, nil)
		return
	}

	millicores := h.assigner.Assign(&podObj)
	ownership := "standalone"
	if owner := pod.ControllerOwner(&podObj); owner != nil {
		ownership = "controller"
		h.log.Info("Assigning random CPU request",
			zap.String("pod", podObj.Name),
			zap.String("owner_kind", owner.Kind),
			zap.String("owner_name", owner.Name),
			zap.String("cpu", cpu.FormatMillicores(millicores)))
	} else {
		h.log.Info("Assigning fixed CPU request to standalone pod",
			zap.String("pod", podObj.Name),
			zap.String("cpu", cpu.FormatMillicores(millicores)))
	}
	metrics.CPUAssigned.WithLabelValues(ownership).Observe(float64(millicores))

	h.respond(c, uid, operation, policy.BuildCPUPatch(&podObj, millicores))
}

func (h *PodMutationWebhook) respond(c *gin.Context, uid types.UID, operation string, patch []policy.PatchOperation) {
	review, err := NewMutationReview(uid, patch)
	if err != nil {
		// Marshalling our own patch structs cannot realistically fail;
		// degrade to an unmutated allow if it ever does.
		h.log.Error("Failed to encode mutation response", zap.Error(err))
		review, _ = NewMutationReview(uid, nil)
	}
	metrics.AdmissionDecision.WithLabelValues("mutate", operation, "allowed").Inc()
	c.JSON(http.StatusOK, review)
}

// bindAdmissionReview decodes the request body into an AdmissionReview.
// A body that is not an admission review at all is the only condition
// answered with a non-200 status.
func bindAdmissionReview(c *gin.Context, log *zap.Logger) (*admissionv1.AdmissionReview, bool) {
	var review admissionv1.AdmissionReview
	if err := c.ShouldBindJSON(&review); err != nil {
		log.Error("Failed to bind admission review", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}

	if review.Request == nil {
		log.Error("Malformed admission review request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "admission review has no request"})
		return nil, false
	}

	return &review, true
}
