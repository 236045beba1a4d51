package monitoring

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// HealthStatus is the body served on /health.
type HealthStatus struct {
	Status    string                 `json:"status"`
	Service   string                 `json:"service"`
	Version   string                 `json:"version"`
	Timestamp int64                  `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// HealthCheck runs one probe. Any status other than healthy or degraded counts as unhealthy.
type HealthCheck func() CheckResult

// HealthChecker aggregates named checks into a single status.
type HealthChecker struct {
	service string
	version string

	mu     sync.RWMutex
	checks map[string]HealthCheck
}

func NewHealthChecker(service, version string) *HealthChecker {
	return &HealthChecker{service: service, version: version, checks: make(map[string]HealthCheck)}
}

// AddCheck registers check under name, replacing any previous check of that name.
func (hc *HealthChecker) AddCheck(name string, check HealthCheck) {
	hc.mu.Lock()
	hc.checks[name] = check
	hc.mu.Unlock()
}

// Names lists the registered checks in sorted order.
func (hc *HealthChecker) Names() []string {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	names := make([]string, 0, len(hc.checks))
	for name := range hc.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckHealth runs every check. The worst result wins.
func (hc *HealthChecker) CheckHealth() HealthStatus {
	hc.mu.RLock()
	checks := make(map[string]HealthCheck, len(hc.checks))
	for name, check := range hc.checks {
		checks[name] = check
	}
	hc.mu.RUnlock()

	out := HealthStatus{
		Status:    StatusHealthy,
		Service:   hc.service,
		Version:   hc.version,
		Timestamp: time.Now().Unix(),
		Checks:    make(map[string]CheckResult, len(checks)),
	}
	for name, check := range checks {
		result := check()
		out.Checks[name] = result
		switch result.Status {
		case StatusHealthy:
		case StatusDegraded:
			if out.Status == StatusHealthy {
				out.Status = StatusDegraded
			}
		default:
			out.Status = StatusUnhealthy
		}
	}
	return out
}

// Handler serves CheckHealth, with 503 when unhealthy.
func (hc *HealthChecker) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		health := hc.CheckHealth()
		code := http.StatusOK
		if health.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, health)
	}
}

// timed stamps the probe's latency onto its result.
func timed(probe func() (string, string)) HealthCheck {
	return func() CheckResult {
		start := time.Now()
		status, msg := probe()
		return CheckResult{Status: status, Message: msg, Latency: time.Since(start).String()}
	}
}

// DatabaseHealthCheck pings the registry database.
func DatabaseHealthCheck(db *sql.DB) HealthCheck {
	return timed(func() (string, string) {
		if db == nil {
			return StatusUnhealthy, "database connection is nil"
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			return StatusUnhealthy, fmt.Sprintf("database ping failed: %v", err)
		}
		return StatusHealthy, "database reachable"
	})
}

// ExecutableHealthCheck reports whether a control executable resolves on PATH.
// A missing executable is degraded: status and enrollment keep serving.
func ExecutableHealthCheck(name string) HealthCheck {
	return timed(func() (string, string) {
		path, err := exec.LookPath(name)
		if err != nil {
			return StatusDegraded, fmt.Sprintf("%s not found on PATH", name)
		}
		return StatusHealthy, fmt.Sprintf("%s resolved to %s", name, path)
	})
}

// DirectoryWritableHealthCheck creates dir if needed and probes it with a temp file.
func DirectoryWritableHealthCheck(dir string) HealthCheck {
	return timed(func() (string, string) {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return StatusUnhealthy, fmt.Sprintf("cannot create %s: %v", dir, err)
		}
		f, err := os.CreateTemp(dir, ".health-*")
		if err != nil {
			return StatusUnhealthy, fmt.Sprintf("%s is not writable: %v", dir, err)
		}
		name := f.Name()
		_ = f.Close()
		_ = os.Remove(name)
		return StatusHealthy, fmt.Sprintf("%s writable", filepath.Clean(dir))
	})
}

// ConfigurationHealthCheck is unhealthy while any of the named values is empty.
func ConfigurationHealthCheck(configs map[string]string) HealthCheck {
	return timed(func() (string, string) {
		var missing []string
		for key, value := range configs {
			if value == "" {
				missing = append(missing, key)
			}
		}
		if len(missing) > 0 {
			sort.Strings(missing)
			return StatusUnhealthy, "missing required configuration: " + strings.Join(missing, ", ")
		}
		return StatusHealthy, "required configuration present"
	})
}
