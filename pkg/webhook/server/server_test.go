package server

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/amitk8s/pod-cpu-mutator/pkg/config"
	"github.com/amitk8s/pod-cpu-mutator/pkg/kubernetes/replicaset"
)

var _ = Describe("WebhookServer", func() {
	var (
		cfg    *config.Config
		srv    *WebhookServer
		logger *zap.Logger
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		logger = zap.NewNop()
		cfg = &config.Config{
			WebhookPort:               8443,
			WebhookCertName:           "tls.crt",
			WebhookCertKey:            "tls.key",
			LogLevel:                  "info",
			MetricsEnable:             true,
			StandaloneCPUMillicores:   500,
			RandomCPUMinMillicores:    100,
			RandomCPUMaxMillicores:    500,
			WebhookAppLabel:           "pod-cpu-mutator",
			CPUThresholdMillicores:    2000,
			MinPodsWithNodeSelector:   2,
			RequiredNodeSelectorKey:   "node-type",
			RequiredNodeSelectorValue: "on_demand",
			ClusterQueryTimeout:       5 * time.Second,
		}
		srv = New(cfg, replicaset.Unavailable{}, logger)
	})

	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, path, nil)
		srv.Engine().ServeHTTP(w, req)
		return w
	}

	Describe("New", func() {
		It("should serve the health endpoint", func() {
			Expect(get("/healthz").Code).To(Equal(http.StatusOK))
		})

		It("should report not ready until marked", func() {
			Expect(get("/readyz").Code).To(Equal(http.StatusServiceUnavailable))

			srv.MarkReady()
			Expect(get("/readyz").Code).To(Equal(http.StatusOK))
		})

		It("should serve metrics when enabled", func() {
			Expect(get("/metrics").Code).To(Equal(http.StatusOK))
		})

		It("should not serve metrics when disabled", func() {
			cfg.MetricsEnable = false
			srv = New(cfg, replicaset.Unavailable{}, logger)
			Expect(get("/metrics").Code).To(Equal(http.StatusNotFound))
		})

		It("should route the admission endpoints", func() {
			for _, path := range []string{"/mutate", "/validate"} {
				w := httptest.NewRecorder()
				req, _ := http.NewRequest(http.MethodPost, path, bytes.NewBufferString("not json"))
				req.Header.Set("Content-Type", "application/json")
				srv.Engine().ServeHTTP(w, req)
				Expect(w.Code).To(Equal(http.StatusBadRequest), path)
			}
		})
	})

	Describe("SetupCertificateWatcher", func() {
		It("should skip TLS when no certificate path is configured", func() {
			Expect(srv.SetupCertificateWatcher(cfg)).To(Succeed())
			Expect(srv.server.TLSConfig).To(BeNil())
		})

		It("should configure TLS when a certificate path is provided", func() {
			tempDir, err := os.MkdirTemp("", "server-test")
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(func() { _ = os.RemoveAll(tempDir) })

			Expect(os.WriteFile(filepath.Join(tempDir, "tls.crt"), []byte("pending"), 0o600)).To(Succeed())
			Expect(os.WriteFile(filepath.Join(tempDir, "tls.key"), []byte("pending"), 0o600)).To(Succeed())

			cfg.WebhookCertPath = tempDir
			Expect(srv.SetupCertificateWatcher(cfg)).To(Succeed())
			Expect(srv.server.TLSConfig).NotTo(BeNil())
		})
	})
})
