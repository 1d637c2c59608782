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

package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/amitk8s/pod-cpu-mutator/pkg/config"
	"github.com/amitk8s/pod-cpu-mutator/pkg/health"
	"github.com/amitk8s/pod-cpu-mutator/pkg/kubernetes/replicaset"
	"github.com/amitk8s/pod-cpu-mutator/pkg/metrics"
	"github.com/amitk8s/pod-cpu-mutator/pkg/policy"
	"github.com/amitk8s/pod-cpu-mutator/pkg/ready"
	"github.com/amitk8s/pod-cpu-mutator/pkg/webhook/certwatcher"
	webhookv1 "github.com/amitk8s/pod-cpu-mutator/pkg/webhook/v1"
)

// WebhookServer is the gin-based HTTP server hosting the mutation and
// validation admission endpoints.
type WebhookServer struct {
	engine           *gin.Engine
	server           *http.Server
	log              *zap.Logger
	port             int
	certWatcher      *certwatcher.CertWatcher
	readyManager     *ready.Manager
	readinessChecker *ready.SimpleChecker
}

// New creates a webhook server wired with the mutation and validation
// handlers. stats answers the sibling aggregate queries used by deletion
// validation; pass replicaset.Unavailable{} when no cluster client exists.
func New(cfg *config.Config, stats replicaset.SiblingStats, log *zap.Logger) *WebhookServer {
	if cfg.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(RequestLogger(log))

	s := &WebhookServer{
		engine: engine,
		log:    log,
		port:   cfg.WebhookPort,
	}

	s.setupRoutes(cfg, stats)

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.WebhookPort),
		Handler: engine,
	}

	return s
}

// SetupCertificateWatcher configures TLS via a reloading certificate
// watcher. An empty certificate path leaves the server on plain HTTP.
func (s *WebhookServer) SetupCertificateWatcher(cfg *config.Config) error {
	if len(cfg.WebhookCertPath) == 0 {
		s.log.Info("No certificate path provided, serving plain HTTP")
		return nil
	}

	s.log.Info("Initializing webhook certificate watcher",
		zap.String("webhook-cert-path", cfg.WebhookCertPath),
		zap.String("webhook-cert-name", cfg.WebhookCertName),
		zap.String("webhook-cert-key", cfg.WebhookCertKey))

	var err error
	s.certWatcher, err = certwatcher.New(
		cfg.WebhookCertPath+"/"+cfg.WebhookCertName,
		cfg.WebhookCertPath+"/"+cfg.WebhookCertKey,
		s.log,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize certificate watcher: %w", err)
	}

	s.server.TLSConfig = &tls.Config{
		GetCertificate: s.certWatcher.GetCertificate,
	}
	return nil
}

func (s *WebhookServer) setupRoutes(cfg *config.Config, stats replicaset.SiblingStats) {
	healthManager := health.NewManager(s.log)
	healthManager.AddChecker(health.NewSimpleChecker("webhook-server"))

	s.readyManager = ready.NewManager(s.log)
	s.readinessChecker = ready.NewSimpleChecker("webhook-server")
	s.readyManager.AddChecker(s.readinessChecker)

	s.engine.GET("/healthz", healthManager.Handler())
	s.engine.GET("/readyz", s.readyManager.Handler())

	if cfg.MetricsEnable {
		metrics.RegisterWebhookMetrics()
		s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(
			metrics.WebhookRegistry,
			promhttp.HandlerOpts{},
		)))
	}

	assigner := policy.NewAssigner(
		cfg.StandaloneCPUMillicores,
		cfg.RandomCPUMinMillicores,
		cfg.RandomCPUMaxMillicores,
	)
	mutationHandler := webhookv1.NewPodMutationWebhook(assigner, cfg.WebhookAppLabel, s.log)
	s.engine.POST("/mutate", mutationHandler.Handle)

	limits := policy.DeletionLimits{
		CPUThresholdMillicores:    cfg.CPUThresholdMillicores,
		MinPodsWithNodeSelector:   cfg.MinPodsWithNodeSelector,
		RequiredNodeSelectorKey:   cfg.RequiredNodeSelectorKey,
		RequiredNodeSelectorValue: cfg.RequiredNodeSelectorValue,
	}
	validationHandler := webhookv1.NewPodValidationWebhook(stats, limits, cfg.ClusterQueryTimeout, s.log)
	s.engine.POST("/validate", validationHandler.Handle)
}

// Start runs the server until ctx is cancelled, then shuts down
// gracefully.
func (s *WebhookServer) Start(ctx context.Context) error {
	s.log.Info("Starting webhook server", zap.Int("port", s.port))

	if s.certWatcher != nil {
		if err := s.certWatcher.Start(ctx); err != nil {
			return fmt.Errorf("failed to start certificate watcher: %w", err)
		}
	}

	go func() {
		var err error
		if s.server.TLSConfig != nil {
			s.log.Info("Serving with TLS")
			err = s.server.ListenAndServeTLS("", "")
		} else {
			s.log.Info("Serving without TLS")
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.log.Error("Webhook server error", zap.Error(err))
		}
	}()

	<-ctx.Done()

	s.log.Info("Shutting down webhook server")

	if s.certWatcher != nil {
		s.certWatcher.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

// MarkReady flips the readiness endpoint to ready.
func (s *WebhookServer) MarkReady() {
	if s.readinessChecker != nil {
		s.log.Info("Marking webhook server as ready")
		s.readinessChecker.SetReady(true)
	}
}

// StartWithSignalHandler runs the server until SIGINT or SIGTERM.
func (s *WebhookServer) StartWithSignalHandler() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return s.Start(ctx)
}

// Engine exposes the underlying gin engine for tests.
func (s *WebhookServer) Engine() *gin.Engine {
	return s.engine
}
