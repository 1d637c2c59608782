// Package policy implements the admission decision logic: CPU request
// assignment for incoming pods, the JSON patch that applies it, and the
// deletion invariants evaluated against ReplicaSet siblings.
package policy

import (
	"math/rand/v2"

	corev1 "k8s.io/api/core/v1"

	"github.com/amitk8s/pod-cpu-mutator/pkg/kubernetes/pod"
)

// Rand is the randomness source used for CPU assignment. It is satisfied
// by *rand.Rand from math/rand/v2 and by seeded test sources.
type Rand interface {
	IntN(n int) int
}

type processRand struct{}

func (processRand) IntN(n int) int { return rand.IntN(n) }

// Assigner decides the CPU request value for an admitted pod.
type Assigner struct {
	rand Rand

	standaloneMillicores int64
	randomMinMillicores  int64
	randomMaxMillicores  int64
}

// NewAssigner creates an Assigner using the process-wide random source.
// Standalone pods receive the fixed value; controller-owned pods draw
// uniformly from the inclusive [min, max] range.
func NewAssigner(standaloneMillicores, randomMinMillicores, randomMaxMillicores int64) *Assigner {
	return NewAssignerWithRand(processRand{}, standaloneMillicores, randomMinMillicores, randomMaxMillicores)
}

// NewAssignerWithRand creates an Assigner with an injected random source.
func NewAssignerWithRand(r Rand, standaloneMillicores, randomMinMillicores, randomMaxMillicores int64) *Assigner {
	return &Assigner{
		rand:                 r,
		standaloneMillicores: standaloneMillicores,
		randomMinMillicores:  randomMinMillicores,
		randomMaxMillicores:  randomMaxMillicores,
	}
}

// Assign returns the CPU request in millicores for the given pod.
//
// Pods owned by a ReplicaSet or Deployment draw a fresh random value per
// call so that siblings in the same controller end up with heterogeneous
// CPU requests. Standalone pods always get the fixed value.
func (a *Assigner) Assign(p *corev1.Pod) int64 {
	if pod.ControllerOwner(p) == nil {
		return a.standaloneMillicores
	}
	spread := int(a.randomMaxMillicores - a.randomMinMillicores)
	if spread <= 0 {
		return a.randomMinMillicores
	}
	return a.randomMinMillicores + int64(a.rand.IntN(spread+1))
}
