// Package api exposes cluster coordinators to broker processes over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/google/uuid"

	"mqtt-cluster/internal/broker"
	"mqtt-cluster/internal/coordinator"
	"mqtt-cluster/internal/logger"
	"mqtt-cluster/internal/storage"
)

const prefixClusters = "/api/v1/clusters"

var (
	errBadBrokerID = errors.New("broker id is invalid")
	errBadLimit    = errors.New("limit must be a positive integer")
	errNoCluster   = errors.New("cluster is not active")
)

// Coordinators resolves the coordinator serving a cluster identity.
// Coordinator activates one on demand, Lookup never does.
type Coordinators interface {
	Coordinator(clusterID string) *coordinator.Coordinator
	Lookup(clusterID string) (*coordinator.Coordinator, bool)
}

type Handler struct {
	chi.Router

	logger       *logger.Logger
	coordinators Coordinators
}

type acceptedResponse struct {
	Accepted bool `json:"accepted"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// publishRequest carries the publish context plus the broker that
// reported it.
type publishRequest struct {
	broker.PublishContext
	BrokerID uuid.UUID `json:"brokerId"`
}

func NewHandler(coordinators Coordinators, log *logger.Logger) *Handler {
	h := &Handler{
		logger:       log,
		coordinators: coordinators,
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer,
		middleware.RequestID,
		middleware.RealIP,
		h.logRequests,
	)

	r.Get("/health", h.handleHealth)

	r.Route(prefixClusters+"/{clusterID}", func(r chi.Router) {
		r.Get("/brokers", h.handleGetBrokers)
		r.Put("/brokers/{brokerID}", h.handleConnectBroker)
		r.Delete("/brokers/{brokerID}", h.handleDisconnectBroker)

		r.Post("/connect", h.handleConnect)
		r.Post("/disconnect", h.handleDisconnect)
		r.Post("/publish", h.handlePublish)
		r.Post("/subscribe", h.handleSubscribe)
		r.Post("/unsubscribe", h.handleUnsubscribe)

		r.Get("/stats", h.handleStats)
		r.Get("/events", h.handleGetEvents)
		r.Get("/messages", h.handleGetMessages)
	})

	h.Router = r
	return h
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.logger.Debug("api request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"requestId", middleware.GetReqID(r.Context()))
	})
}

func (h *Handler) coordinator(r *http.Request) *coordinator.Coordinator {
	return h.coordinators.Coordinator(chi.URLParam(r, "clusterID"))
}

// activeCoordinator serves read routes; it writes 404 when the cluster
// has no active coordinator.
func (h *Handler) activeCoordinator(w http.ResponseWriter, r *http.Request) (*coordinator.Coordinator, bool) {
	c, ok := h.coordinators.Lookup(chi.URLParam(r, "clusterID"))
	if !ok {
		h.err(w, http.StatusNotFound, errNoCluster)
	}
	return c, ok
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleGetBrokers(w http.ResponseWriter, r *http.Request) {
	c, ok := h.activeCoordinator(w, r)
	if !ok {
		return
	}
	h.respond(w, http.StatusOK, c.Brokers())
}

func (h *Handler) handleConnectBroker(w http.ResponseWriter, r *http.Request) {
	brokerID, err := uuid.Parse(chi.URLParam(r, "brokerID"))
	if err != nil {
		h.err(w, http.StatusBadRequest, errBadBrokerID)
		return
	}

	var settings broker.ConnectionSettings
	if !h.decode(w, r, &settings) {
		return
	}

	if err := h.coordinator(r).ConnectBroker(r.Context(), &settings, brokerID); err != nil {
		h.operationErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDisconnectBroker(w http.ResponseWriter, r *http.Request) {
	brokerID, err := uuid.Parse(chi.URLParam(r, "brokerID"))
	if err != nil {
		h.err(w, http.StatusBadRequest, errBadBrokerID)
		return
	}

	if err := h.coordinator(r).DisconnectBroker(r.Context(), brokerID); err != nil {
		h.operationErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleConnect(w http.ResponseWriter, r *http.Request) {
	var cc broker.ConnectContext
	if !h.decode(w, r, &cc) {
		return
	}
	accepted := h.coordinator(r).ProceedConnect(r.Context(), cc)
	h.respond(w, http.StatusOK, acceptedResponse{Accepted: accepted})
}

func (h *Handler) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	var dc broker.DisconnectContext
	if !h.decode(w, r, &dc) {
		return
	}
	if err := h.coordinator(r).ProceedDisconnect(r.Context(), dc); err != nil {
		h.operationErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePublish(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	if !h.decode(w, r, &req) {
		return
	}
	accepted := h.coordinator(r).ProceedPublish(r.Context(), req.PublishContext, req.BrokerID)
	h.respond(w, http.StatusOK, acceptedResponse{Accepted: accepted})
}

func (h *Handler) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var sc broker.SubscriptionContext
	if !h.decode(w, r, &sc) {
		return
	}
	accepted := h.coordinator(r).ProceedSubscription(r.Context(), sc)
	h.respond(w, http.StatusOK, acceptedResponse{Accepted: accepted})
}

func (h *Handler) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	var uc broker.UnsubscriptionContext
	if !h.decode(w, r, &uc) {
		return
	}
	if err := h.coordinator(r).ProceedUnsubscription(r.Context(), uc); err != nil {
		h.operationErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	c, ok := h.activeCoordinator(w, r)
	if !ok {
		return
	}
	h.respond(w, http.StatusOK, c.Stats())
}

func (h *Handler) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		h.err(w, http.StatusBadRequest, err)
		return
	}
	c, ok := h.activeCoordinator(w, r)
	if !ok {
		return
	}

	logs, err := c.EventLogs(r.Context(), limit)
	if err != nil {
		h.operationErr(w, err)
		return
	}
	if logs == nil {
		logs = []storage.EventLog{}
	}
	h.respond(w, http.StatusOK, logs)
}

func (h *Handler) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		h.err(w, http.StatusBadRequest, err)
		return
	}
	c, ok := h.activeCoordinator(w, r)
	if !ok {
		return
	}

	msgs, err := c.PublishMessages(r.Context(), limit)
	if err != nil {
		h.operationErr(w, err)
		return
	}
	if msgs == nil {
		msgs = []storage.PublishMessage{}
	}
	h.respond(w, http.StatusOK, msgs)
}

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return storage.DefaultListLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, errBadLimit
	}
	return storage.NormalizeLimit(limit), nil
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.err(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return false
	}
	return true
}

// operationErr maps coordinator errors onto status codes
func (h *Handler) operationErr(w http.ResponseWriter, err error) {
	var verr *coordinator.ValidationError
	switch {
	case errors.As(err, &verr):
		h.respond(w, http.StatusBadRequest, errorResponse{
			Code:    "invalid",
			Message: verr.Error(),
			Field:   verr.Field,
		})
	case errors.Is(err, coordinator.ErrDeactivated):
		h.err(w, http.StatusServiceUnavailable, err)
	default:
		h.logger.Error("api operation failed", "error", err)
		h.err(w, http.StatusInternalServerError, err)
	}
}

func (h *Handler) err(w http.ResponseWriter, status int, err error) {
	code := "internal error"
	switch status {
	case http.StatusBadRequest:
		code = "invalid"
	case http.StatusNotFound:
		code = "not found"
	case http.StatusServiceUnavailable:
		code = "unavailable"
	}
	h.respond(w, status, errorResponse{Code: code, Message: err.Error()})
}

func (h *Handler) respond(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}
