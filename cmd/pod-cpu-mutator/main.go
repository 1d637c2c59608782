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

package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/amitk8s/pod-cpu-mutator/cmd/version"
	"github.com/amitk8s/pod-cpu-mutator/pkg/config"
	"github.com/amitk8s/pod-cpu-mutator/pkg/kube"
	"github.com/amitk8s/pod-cpu-mutator/pkg/kubernetes/replicaset"
	"github.com/amitk8s/pod-cpu-mutator/pkg/logging"
	"github.com/amitk8s/pod-cpu-mutator/pkg/metrics"
	"github.com/amitk8s/pod-cpu-mutator/pkg/webhook/server"
)

var rootCmd = &cobra.Command{
	Use:   "pod-cpu-mutator",
	Short: "Pod CPU admission webhook",
	Long: `An admission webhook that assigns CPU requests to incoming pods and
blocks pod deletions that would drop a ReplicaSet below its aggregate CPU
threshold or its minimum node-selector pod count.`,
	Version: version.Version,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

func init() {
	if err := config.SetupFlags(rootCmd); err != nil {
		os.Stderr.WriteString("Failed to set up flags: " + err.Error() + "\n")
		os.Exit(1)
	}
	rootCmd.AddCommand(version.NewVersionCmd())
}

func run() error {
	cfg, err := config.InitConfig()
	if err != nil {
		return err
	}

	if err := logging.InitLogger(cfg.LogLevel, cfg.LogFormat); err != nil {
		return err
	}
	logger := logging.Logger
	defer func() {
		_ = logging.Sync()
	}()

	metrics.RegisterWebhookMetrics()

	// A missing cluster client is not fatal: the mutation webhook needs no
	// cluster access, and the validation webhook fails open.
	var stats replicaset.SiblingStats = replicaset.Unavailable{}
	clientset, err := kube.GetClientset()
	if err != nil {
		logger.Warn("No Kubernetes client available, deletion validation will fail open",
			zap.Error(err))
	} else {
		stats = replicaset.NewClient(
			clientset,
			cfg.RequiredNodeSelectorKey,
			cfg.RequiredNodeSelectorValue,
			logger,
		)
	}

	srv := server.New(cfg, stats, logger)
	if err := srv.SetupCertificateWatcher(cfg); err != nil {
		return err
	}

	srv.MarkReady()
	return srv.StartWithSignalHandler()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Stderr.WriteString("Error: " + err.Error() + "\n")
		os.Exit(1)
	}
}
