package policy

import (
	"fmt"

	corev1 "k8s.io/api/core/v1"

	"github.com/amitk8s/pod-cpu-mutator/pkg/kubernetes/pod"
)

// DeletionLimits holds the process-wide invariants a ReplicaSet must still
// satisfy after one of its pods is removed. Zero values are legal limits.
type DeletionLimits struct {
	CPUThresholdMillicores    int64
	MinPodsWithNodeSelector   int
	RequiredNodeSelectorKey   string
	RequiredNodeSelectorValue string
}

// CheckDeletion decides whether deleting the pod keeps the ReplicaSet's
// aggregate invariants intact.
//
// siblingCPUMillicores and siblingSelectorCount describe the pod's
// ReplicaSet siblings with the pod itself already excluded. Pods not owned
// by a ReplicaSet are always allowed. The CPU threshold is evaluated
// strictly before the node-selector minimum, so a deletion violating both
// reports only the CPU failure.
func CheckDeletion(p *corev1.Pod, siblingCPUMillicores int64, siblingSelectorCount int, limits DeletionLimits) (bool, string) {
	if pod.ReplicaSetOwner(p) == nil {
		return true, "Pod is not part of a ReplicaSet"
	}

	totalAfter := siblingCPUMillicores

	selectorAfter := siblingSelectorCount
	if pod.HasNodeSelector(p, limits.RequiredNodeSelectorKey, limits.RequiredNodeSelectorValue) {
		selectorAfter--
	}

	if totalAfter < limits.CPUThresholdMillicores {
		return false, fmt.Sprintf(
			"Deletion blocked: Total CPU would drop to %dm, below threshold of %dm",
			totalAfter, limits.CPUThresholdMillicores)
	}

	if selectorAfter < limits.MinPodsWithNodeSelector {
		return false, fmt.Sprintf(
			"Deletion blocked: Only %d pods would have %s=%s, below minimum of %d",
			selectorAfter, limits.RequiredNodeSelectorKey, limits.RequiredNodeSelectorValue,
			limits.MinPodsWithNodeSelector)
	}

	return true, fmt.Sprintf(
		"Deletion allowed: CPU=%dm (>=%dm), node_selector_pods=%d (>=%d)",
		totalAfter, limits.CPUThresholdMillicores, selectorAfter, limits.MinPodsWithNodeSelector)
}
