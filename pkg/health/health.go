package health

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Checker reports the health of one component.
type Checker interface {
	Name() string
	IsHealthy() bool
}

// Status is the wire shape of the health endpoint.
type Status struct {
	Healthy bool            `json:"healthy"`
	Status  string          `json:"status"`
	Details map[string]bool `json:"details,omitempty"`
}

// Manager aggregates health checks for the application.
type Manager struct {
	checkers []Checker
	log      *zap.Logger
}

// NewManager creates a new health manager.
func NewManager(log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{log: log}
}

// AddChecker adds a health checker to the manager.
func (m *Manager) AddChecker(checker Checker) {
	m.checkers = append(m.checkers, checker)
}

// IsHealthy reports whether every registered checker is healthy.
func (m *Manager) IsHealthy() bool {
	for _, checker := range m.checkers {
		if !checker.IsHealthy() {
			return false
		}
	}
	return true
}

// GetStatus returns the overall health status with per-checker detail.
func (m *Manager) GetStatus() Status {
	status := Status{
		Healthy: true,
		Status:  "healthy",
		Details: make(map[string]bool),
	}

	for _, checker := range m.checkers {
		healthy := checker.IsHealthy()
		status.Details[checker.Name()] = healthy
		if !healthy {
			status.Healthy = false
			status.Status = "unhealthy"
		}
	}

	return status
}

// Handler returns a gin handler for health checks.
func (m *Manager) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		status := m.GetStatus()
		if status.Healthy {
			c.JSON(http.StatusOK, status)
		} else {
			c.JSON(http.StatusServiceUnavailable, status)
		}
	}
}

// SimpleChecker is a basic health checker with a settable state.
type SimpleChecker struct {
	name    string
	healthy bool
}

// NewSimpleChecker creates a checker that starts healthy.
func NewSimpleChecker(name string) *SimpleChecker {
	return &SimpleChecker{name: name, healthy: true}
}

// Name returns the checker name.
func (s *SimpleChecker) Name() string { return s.name }

// IsHealthy returns the health state.
func (s *SimpleChecker) IsHealthy() bool { return s.healthy }

// SetHealth sets the health state.
func (s *SimpleChecker) SetHealth(healthy bool) { s.healthy = healthy }
