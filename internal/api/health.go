package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/snarg/session-engine/internal/agent"
	"github.com/snarg/session-engine/internal/chatstore"
	"github.com/snarg/session-engine/internal/registry"
)

// HealthResponse is the liveness/readiness body served at /api/health.
type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks"`
}

// HealthHandler reports the state of the core's dependencies: whether the
// wearable-host transport is connected, whether the session registry is
// present, whether the optional durable chat store answers a ping, and
// whether an agent provider is configured (the provider itself is not
// contacted). Unlike the other API endpoints this one is never gated by auth,
// so it stays safe for load balancer / orchestrator health checks.
type HealthHandler struct {
	mqttClient mqtt.Client      // nil if presence/command transport isn't configured
	registry   *registry.Registry
	agent      agent.Provider   // nil if no agent provider is configured
	chatStore  *chatstore.Store // nil when running in-memory only

	version   string
	startTime time.Time
}

// HealthOptions configures a new HealthHandler. MQTTClient, Agent, and
// ChatStore may be nil; the corresponding check is reported as
// not_configured rather than failing.
type HealthOptions struct {
	MQTTClient mqtt.Client
	Registry   *registry.Registry
	Agent      agent.Provider
	ChatStore  *chatstore.Store
	Version    string
	StartTime  time.Time
}

// NewHealthHandler constructs a HealthHandler.
func NewHealthHandler(opts HealthOptions) *HealthHandler {
	return &HealthHandler{
		mqttClient: opts.MQTTClient,
		registry:   opts.Registry,
		agent:      opts.Agent,
		chatStore:  opts.ChatStore,
		version:    opts.Version,
		startTime:  opts.StartTime,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"
	httpStatus := http.StatusOK

	if h.mqttClient != nil {
		if h.mqttClient.IsConnected() {
			checks["wearable_transport"] = "ok"
		} else {
			checks["wearable_transport"] = "disconnected"
			status = "degraded"
		}
	} else {
		checks["wearable_transport"] = "not_configured"
	}

	if h.registry != nil {
		checks["session_registry"] = "ok"
	} else {
		checks["session_registry"] = "error"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	if h.agent != nil {
		checks["agent_provider"] = "configured"
	} else {
		checks["agent_provider"] = "not_configured"
	}

	if h.chatStore != nil {
		pctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.chatStore.Pool().Ping(pctx); err != nil {
			checks["chat_store"] = "error"
			if status == "healthy" {
				status = "degraded"
			}
		} else {
			checks["chat_store"] = "ok"
		}
	} else {
		checks["chat_store"] = "not_configured"
	}

	resp := HealthResponse{
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks:        checks,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(resp)
}
