package transport

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HealthResponse is the liveness payload read by orchestration scripts.
type HealthResponse struct {
	Status        string  `json:"status"`
	Service       string  `json:"service"`
	Version       string  `json:"version"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Timestamp     string  `json:"timestamp"`
}

// ReadyResponse reports whether the server is wired up and able to serve.
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// StatusResponse reports component statuses for dashboards.
type StatusResponse struct {
	Server  serverIdentity `json:"server"`
	Config  string         `json:"config"`
	Memory  string         `json:"memory"`
	Methods int            `json:"methods"`
}

type serverIdentity struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// HandleHealth serves liveness. It always returns 200: the process being
// able to answer is the check.
func (t *Transport) HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name, _ := t.config.ServerName()
		version, _ := t.config.ServerVersion()
		sendJSONResponse(w, http.StatusOK, HealthResponse{
			Status:        "healthy",
			Service:       name,
			Version:       version,
			UptimeSeconds: time.Since(t.started).Seconds(),
			Timestamp:     time.Now().UTC().Format(time.RFC3339),
		}, t.logger)
	}
}

// HandleReady serves readiness: the dispatch table must be populated and
// the config backend reachable.
func (t *Transport) HandleReady() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{"gateway": "ok", "config": "ok"}
		ready := true

		if t.manager.MethodCount() == 0 {
			checks["gateway"] = "no methods registered"
			ready = false
		}
		if err := t.config.Status(r.Context()); err != nil {
			checks["config"] = err.Error()
			ready = false
		}

		status := "ready"
		code := http.StatusOK
		if !ready {
			status = "not_ready"
			code = http.StatusServiceUnavailable
		}
		sendJSONResponse(w, code, ReadyResponse{Status: status, Checks: checks}, t.logger)
	}
}

// HandleStatus serves server identity plus collaborator statuses. Always
// 200; degraded collaborators are reported in the body.
func (t *Transport) HandleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := t.logger.With(zap.String("handler", "status"))

		name, _ := t.config.ServerName()
		version, _ := t.config.ServerVersion()
		response := StatusResponse{
			Server:  serverIdentity{Name: name, Version: version},
			Config:  "ok",
			Memory:  "none",
			Methods: t.manager.MethodCount(),
		}

		if err := t.config.Status(r.Context()); err != nil {
			logger.Error("Config status check failed", zap.Error(err))
			response.Config = "error"
		}

		if t.memory != nil {
			if err := t.memory.Health(r.Context()); err != nil {
				logger.Warn("Memory service unreachable", zap.Error(err))
				response.Memory = "error"
			} else {
				response.Memory = "ok"
			}
		}

		sendJSONResponse(w, http.StatusOK, response, t.logger)
	}
}
