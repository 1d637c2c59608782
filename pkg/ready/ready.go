package ready

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Checker reports the readiness of one component.
type Checker interface {
	Name() string
	IsReady() bool
}

// Status is the wire shape of the readiness endpoint.
type Status struct {
	Ready   bool            `json:"ready"`
	Status  string          `json:"status"`
	Details map[string]bool `json:"details,omitempty"`
}

// Manager aggregates readiness checks for the application.
type Manager struct {
	checkers []Checker
	log      *zap.Logger
}

// NewManager creates a new readiness manager.
func NewManager(log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{log: log.Named("readiness-manager")}
}

// AddChecker adds a readiness checker to the manager.
func (m *Manager) AddChecker(checker Checker) {
	m.checkers = append(m.checkers, checker)
}

// IsReady reports whether every registered checker is ready.
func (m *Manager) IsReady() bool {
	for _, checker := range m.checkers {
		if !checker.IsReady() {
			return false
		}
	}
	return true
}

// GetStatus returns the overall readiness status with per-checker detail.
func (m *Manager) GetStatus() Status {
	status := Status{
		Ready:   true,
		Status:  "ready",
		Details: make(map[string]bool),
	}

	for _, checker := range m.checkers {
		ready := checker.IsReady()
		status.Details[checker.Name()] = ready
		if !ready {
			status.Ready = false
			status.Status = "not ready"
		}
	}

	return status
}

// Handler returns a gin handler for readiness checks.
func (m *Manager) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		status := m.GetStatus()
		if status.Ready {
			c.JSON(http.StatusOK, status)
		} else {
			c.JSON(http.StatusServiceUnavailable, status)
		}
	}
}

// SimpleChecker is a basic readiness checker with a settable state.
// It starts not ready; the server marks it ready once listening.
type SimpleChecker struct {
	name  string
	ready bool
}

// NewSimpleChecker creates a checker that starts not ready.
func NewSimpleChecker(name string) *SimpleChecker {
	return &SimpleChecker{name: name}
}

// Name returns the checker name.
func (s *SimpleChecker) Name() string { return s.name }

// IsReady returns the readiness state.
func (s *SimpleChecker) IsReady() bool { return s.ready }

// SetReady sets the readiness state.
func (s *SimpleChecker) SetReady(ready bool) { s.ready = ready }
