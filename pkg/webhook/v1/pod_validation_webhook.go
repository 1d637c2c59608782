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
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	admissionv1 "k8s.io/api/admission/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/types"

	"github.com/amitk8s/pod-cpu-mutator/pkg/kubernetes/pod"
	"github.com/amitk8s/pod-cpu-mutator/pkg/kubernetes/replicaset"
	"github.com/amitk8s/pod-cpu-mutator/pkg/metrics"
	"github.com/amitk8s/pod-cpu-mutator/pkg/policy"
)

// failOpenMessage is attached when a cluster query fails and the deletion
// is allowed anyway. The invariant guarantee is therefore best-effort: any
// failure on the validation path resolves to "allow".
const failOpenMessage = "Error occurred during validation, allowing deletion"

// PodValidationWebhook blocks pod deletions that would violate the
// ReplicaSet's aggregate CPU or node-selector invariants.
type PodValidationWebhook struct {
	stats        replicaset.SiblingStats
	limits       policy.DeletionLimits
	queryTimeout time.Duration
	log          *zap.Logger
}

// NewPodValidationWebhook creates a new PodValidationWebhook.
func NewPodValidationWebhook(
	stats replicaset.SiblingStats,
	limits policy.DeletionLimits,
	queryTimeout time.Duration,
	log *zap.Logger,
) *PodValidationWebhook {
	return &PodValidationWebhook{
		stats:        stats,
		limits:       limits,
		queryTimeout: queryTimeout,
		log:          log,
	}
}

// Handle handles the admission review request for pod deletion
// validation. Apart from an unparsable request body, every outcome is an
// HTTP 200 carrying a verdict.
func (h *PodValidationWebhook) Handle(c *gin.Context) {
	start := time.Now()

	review, ok := bindAdmissionReview(c, h.log)
	if !ok {
		return
	}

	operation := string(review.Request.Operation)
	metrics.WebhookRequestCount.WithLabelValues("validate", operation).Inc()
	defer func() {
		metrics.WebhookRequestDuration.WithLabelValues("validate", operation).Observe(time.Since(start).Seconds())
	}()

	uid := review.Request.UID

	if review.Request.Operation != admissionv1.Delete || review.Request.Kind.Kind != "Pod" {
		h.log.Info("Allowing non-DELETE Pod operation",
			zap.String("operation", operation),
			zap.String("kind", review.Request.Kind.Kind))
		h.respond(c, uid, operation, true, "")
		return
	}

	// DELETE requests carry the pod in oldObject; object is a fallback.
	raw := review.Request.OldObject.Raw
	if len(raw) == 0 {
		raw = review.Request.Object.Raw
	}

	var podObj corev1.Pod
	if err := json.Unmarshal(raw, &podObj); err != nil {
		h.log.Error("Failed to decode Pod, allowing deletion", zap.Error(err))
		h.respond(c, uid, operation, true, failOpenMessage)
		return
	}

	allowed, message := h.checkDeletion(c.Request.Context(), &podObj)
	h.respond(c, uid, operation, allowed, message)
}

// checkDeletion gathers the sibling aggregates and evaluates the deletion
// invariants. Any query failure resolves to an allowed deletion.
func (h *PodValidationWebhook) checkDeletion(ctx context.Context, podObj *corev1.Pod) (bool, string) {
	owner := pod.ReplicaSetOwner(podObj)
	if owner == nil {
		h.log.Info("Pod is not owned by a ReplicaSet, allowing deletion",
			zap.String("pod", podObj.Name),
			zap.String("namespace", podObj.Namespace))
		return true, "Pod is not part of a ReplicaSet"
	}

	queryCtx, cancel := context.WithTimeout(ctx, h.queryTimeout)
	defer cancel()

	siblingCPU, err := h.stats.SumCPURequests(queryCtx, podObj.Namespace, owner.Name, podObj.Name)
	if err != nil {
		metrics.CollaboratorFailure.WithLabelValues("cpu_sum").Inc()
		h.log.Error("Sibling CPU query failed, allowing deletion",
			zap.String("pod", podObj.Name),
			zap.String("replicaset", owner.Name),
			zap.Error(err))
		return true, failOpenMessage
	}

	siblingSelectors, err := h.stats.CountWithNodeSelector(queryCtx, podObj.Namespace, owner.Name, podObj.Name)
	if err != nil {
		metrics.CollaboratorFailure.WithLabelValues("selector_count").Inc()
		h.log.Error("Sibling selector query failed, allowing deletion",
			zap.String("pod", podObj.Name),
			zap.String("replicaset", owner.Name),
			zap.Error(err))
		return true, failOpenMessage
	}

	allowed, message := policy.CheckDeletion(podObj, siblingCPU, siblingSelectors, h.limits)
	if allowed {
		h.log.Info("Pod deletion allowed",
			zap.String("pod", podObj.Name),
			zap.String("replicaset", owner.Name),
			zap.String("reason", message))
	} else {
		h.log.Warn("Pod deletion blocked",
			zap.String("pod", podObj.Name),
			zap.String("replicaset", owner.Name),
			zap.String("reason", message))
	}
	return allowed, message
}

func (h *PodValidationWebhook) respond(c *gin.Context, uid types.UID, operation string, allowed bool, message string) {
	decision := "allowed"
	if !allowed {
		decision = "denied"
	}
	metrics.AdmissionDecision.WithLabelValues("validate", operation, decision).Inc()
	c.JSON(http.StatusOK, NewValidationReview(uid, allowed, message))
}
