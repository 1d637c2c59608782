// Package pod provides read-only helpers over Pod objects: ownership
// scanning, node-selector checks and CPU request accounting.
package pod

import (
	"strings"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/amitk8s/pod-cpu-mutator/pkg/kubernetes/cpu"
)

// ControllerOwner returns the first owner reference whose kind is
// ReplicaSet or Deployment, or nil when the pod is standalone. The first
// match in the given order wins; no ambiguity resolution is attempted when
// several references match.
func ControllerOwner(p *corev1.Pod) *metav1.OwnerReference {
	for i := range p.OwnerReferences {
		ref := &p.OwnerReferences[i]
		if ref.Kind == "ReplicaSet" || ref.Kind == "Deployment" {
			return ref
		}
	}
	return nil
}

// ReplicaSetOwner returns the first owner reference of kind ReplicaSet,
// or nil when there is none.
func ReplicaSetOwner(p *corev1.Pod) *metav1.OwnerReference {
	for i := range p.OwnerReferences {
		if p.OwnerReferences[i].Kind == "ReplicaSet" {
			return &p.OwnerReferences[i]
		}
	}
	return nil
}

// HasNodeSelector reports whether the pod's node selector carries the
// given key/value pair.
func HasNodeSelector(p *corev1.Pod, key, value string) bool {
	if p.Spec.NodeSelector == nil {
		return false
	}
	return p.Spec.NodeSelector[key] == value
}

// CPURequestMillicores sums the CPU requests of all containers in
// millicores. Malformed quantity strings count as 0 so that one bad value
// never aborts an aggregate calculation.
func CPURequestMillicores(p *corev1.Pod) int64 {
	var total int64
	for i := range p.Spec.Containers {
		q, ok := p.Spec.Containers[i].Resources.Requests[corev1.ResourceCPU]
		if !ok {
			continue
		}
		millicores, err := cpu.ParseMillicores(q.String())
		if err != nil {
			continue
		}
		total += millicores
	}
	return total
}

// IsWebhookOwn reports whether the pod belongs to the webhook's own
// workload, matched by the app label or by the webhook name appearing in
// the pod name. Such pods are never mutated, otherwise the webhook could
// not admit its own replacement pods.
func IsWebhookOwn(p *corev1.Pod, appLabel string) bool {
	if appLabel == "" {
		return false
	}
	if p.Labels["app"] == appLabel {
		return true
	}
	return strings.Contains(p.Name, appLabel)
}
