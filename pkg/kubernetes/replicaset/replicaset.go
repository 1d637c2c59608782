// Package replicaset answers aggregate questions about a pod's ReplicaSet
// siblings, as consumed by the deletion validation webhook.
package replicaset

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/amitk8s/pod-cpu-mutator/pkg/kubernetes/pod"
)

// ErrClientUnavailable is returned by Unavailable when no cluster client
// could be configured. The validation webhook treats it like any other
// query failure and fails open.
var ErrClientUnavailable = errors.New("kubernetes client not configured")

// SiblingStats describes the two aggregate queries the deletion checker
// needs. The pod named excludePodName is never counted; both queries
// describe the ReplicaSet as it would look after that pod is gone.
type SiblingStats interface {
	// SumCPURequests sums the CPU requests, in millicores, across all
	// containers of the ReplicaSet's pods other than the excluded one.
	SumCPURequests(ctx context.Context, namespace, replicaSetName, excludePodName string) (int64, error)

	// CountWithNodeSelector counts the ReplicaSet's pods, other than the
	// excluded one, whose node selector carries the required key/value.
	CountWithNodeSelector(ctx context.Context, namespace, replicaSetName, excludePodName string) (int, error)
}

// Client implements SiblingStats against a live cluster.
type Client struct {
	client        kubernetes.Interface
	selectorKey   string
	selectorValue string
	log           *zap.Logger
}

// NewClient creates a sibling-stats client. selectorKey/selectorValue are
// the node-selector pair counted by CountWithNodeSelector.
func NewClient(c kubernetes.Interface, selectorKey, selectorValue string, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		client:        c,
		selectorKey:   selectorKey,
		selectorValue: selectorValue,
		log:           log,
	}
}

// templateHash extracts the pod-template-hash from a ReplicaSet name.
// ReplicaSets created by a Deployment are named <deployment>-<hash>, so the
// hash is the last dash-separated segment.
func templateHash(replicaSetName string) string {
	idx := strings.LastIndex(replicaSetName, "-")
	if idx < 0 {
		return replicaSetName
	}
	return replicaSetName[idx+1:]
}

func (c *Client) listSiblings(ctx context.Context, namespace, replicaSetName string) ([]corev1.Pod, error) {
	selector := "pod-template-hash=" + templateHash(replicaSetName)
	podList, err := c.client.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: selector,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list pods of ReplicaSet %s/%s: %w", namespace, replicaSetName, err)
	}
	return podList.Items, nil
}

// SumCPURequests implements SiblingStats.
func (c *Client) SumCPURequests(ctx context.Context, namespace, replicaSetName, excludePodName string) (int64, error) {
	pods, err := c.listSiblings(ctx, namespace, replicaSetName)
	if err != nil {
		return 0, err
	}

	var total int64
	for i := range pods {
		if pods[i].Name == excludePodName {
			continue
		}
		millicores := pod.CPURequestMillicores(&pods[i])
		total += millicores
		c.log.Debug("Sibling CPU request",
			zap.String("pod", pods[i].Name),
			zap.Int64("millicores", millicores))
	}

	c.log.Info("Summed sibling CPU requests",
		zap.String("namespace", namespace),
		zap.String("replicaset", replicaSetName),
		zap.String("excluded", excludePodName),
		zap.Int64("total_millicores", total))
	return total, nil
}

// CountWithNodeSelector implements SiblingStats.
func (c *Client) CountWithNodeSelector(ctx context.Context, namespace, replicaSetName, excludePodName string) (int, error) {
	pods, err := c.listSiblings(ctx, namespace, replicaSetName)
	if err != nil {
		return 0, err
	}

	count := 0
	for i := range pods {
		if pods[i].Name == excludePodName {
			continue
		}
		if pod.HasNodeSelector(&pods[i], c.selectorKey, c.selectorValue) {
			count++
		}
	}

	c.log.Info("Counted siblings with node selector",
		zap.String("namespace", namespace),
		zap.String("replicaset", replicaSetName),
		zap.String("excluded", excludePodName),
		zap.String("selector", c.selectorKey+"="+c.selectorValue),
		zap.Int("count", count))
	return count, nil
}

// Unavailable is a SiblingStats for processes running without a cluster
// client. Every query fails with ErrClientUnavailable, which the caller's
// fail-open policy turns into an allowed deletion.
type Unavailable struct{}

// SumCPURequests implements SiblingStats.
func (Unavailable) SumCPURequests(context.Context, string, string, string) (int64, error) {
	return 0, ErrClientUnavailable
}

// CountWithNodeSelector implements SiblingStats.
func (Unavailable) CountWithNodeSelector(context.Context, string, string, string) (int, error) {
	return 0, ErrClientUnavailable
}
