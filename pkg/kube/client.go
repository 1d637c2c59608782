// Package kube provides utilities for interacting with Kubernetes
package kube

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

var (
	clientset     *kubernetes.Clientset
	clientsetOnce sync.Once
	clientsetErr  error
)

// GetClientset returns a Kubernetes clientset for interacting with the API
// server. In-cluster configuration is tried first, then the local
// kubeconfig ($KUBECONFIG or ~/.kube/config). A singleton ensures only one
// client is created.
func GetClientset() (*kubernetes.Clientset, error) {
	clientsetOnce.Do(func() {
		config, err := rest.InClusterConfig()
		if err != nil {
			config, err = localConfig()
			if err != nil {
				clientsetErr = fmt.Errorf("failed to load cluster configuration: %w", err)
				return
			}
		}

		clientset, err = kubernetes.NewForConfig(config)
		if err != nil {
			clientsetErr = fmt.Errorf("failed to create Kubernetes client: %w", err)
			return
		}
	})

	return clientset, clientsetErr
}

func localConfig() (*rest.Config, error) {
	kubeconfig := os.Getenv("KUBECONFIG")
	if kubeconfig == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		kubeconfig = filepath.Join(home, ".kube", "config")
	}
	return clientcmd.BuildConfigFromFlags("", kubeconfig)
}
