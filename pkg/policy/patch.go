package policy

import (
	"fmt"

	corev1 "k8s.io/api/core/v1"

	"github.com/amitk8s/pod-cpu-mutator/pkg/kubernetes/cpu"
)

// PatchOperation is a single RFC 6902 JSON patch operation.
type PatchOperation struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value,omitempty"`
}

// BuildCPUPatch returns the patch operations that set the given CPU
// request on every container of the pod. Exactly one operation is emitted
// per container, in ascending container-index order; the operation depends
// on how much of the resources/requests structure already exists. A pod
// with no containers yields an empty slice.
func BuildCPUPatch(p *corev1.Pod, millicores int64) []PatchOperation {
	var ops []PatchOperation
	value := cpu.FormatMillicores(millicores)

	for i := range p.Spec.Containers {
		c := &p.Spec.Containers[i]
		base := fmt.Sprintf("/spec/containers/%d", i)

		switch {
		case c.Resources.Requests == nil && c.Resources.Limits == nil:
			ops = append(ops, PatchOperation{
				Op:   "add",
				Path: base + "/resources",
				Value: map[string]any{
					"requests": map[string]any{"cpu": value},
				},
			})
		case c.Resources.Requests == nil:
			ops = append(ops, PatchOperation{
				Op:    "add",
				Path:  base + "/resources/requests",
				Value: map[string]any{"cpu": value},
			})
		default:
			op := "add"
			if _, exists := c.Resources.Requests[corev1.ResourceCPU]; exists {
				op = "replace"
			}
			ops = append(ops, PatchOperation{
				Op:    op,
				Path:  base + "/resources/requests/cpu",
				Value: value,
			})
		}
	}

	return ops
}
