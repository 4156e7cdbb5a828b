// Package ingest receives events and exposes the delivery read API. Events
// arrive either over HTTP or from the NSQ events topic; both paths hand off
// to the router.
package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/betofilippi/plataforma-hooks/internal/delivery"
	"github.com/betofilippi/plataforma-hooks/internal/logging"
	"github.com/betofilippi/plataforma-hooks/internal/router"
	"github.com/betofilippi/plataforma-hooks/internal/store"
	"github.com/betofilippi/plataforma-hooks/internal/subscriptions"
	"github.com/betofilippi/plataforma-hooks/internal/tracing"
)

type Service struct {
	router *router.Router
	store  store.Store
	subs   subscriptions.Source
	logger *logging.Logger
}

func NewService(r *router.Router, st store.Store, subs subscriptions.Source, logger *logging.Logger) *Service {
	return &Service{router: r, store: st, subs: subs, logger: logger}
}

// Register mounts the API routes on mux.
func (s *Service) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/ping", s.handlePing)
	mux.HandleFunc("POST /v1/events", s.handlePublishEvent)
	mux.HandleFunc("GET /v1/deliveries/{id}", s.handleGetDelivery)
	mux.HandleFunc("GET /v1/deliveries", s.handleListDeliveries)
	mux.HandleFunc("POST /v1/subscriptions/{id}/deactivated", s.handleSubscriptionDeactivated)
}

func (s *Service) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"pong": true})
}

type publishEventRequest struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
	EmittedAt time.Time      `json:"emitted_at"`
}

type publishEventResponse struct {
	EventID     string   `json:"event_id"`
	DeliveryIDs []string `json:"delivery_ids"`
}

func (s *Service) handlePublishEvent(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.StartSpan(r.Context(), "ingest.PublishEvent")
	defer span.End()

	var req publishEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid body: %v", err))
		return
	}
	if req.Type == "" || req.Payload == nil {
		writeError(w, http.StatusBadRequest, "type and payload are required")
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.EmittedAt.IsZero() {
		req.EmittedAt = time.Now().UTC()
	}

	ids, err := s.router.Route(ctx, delivery.Event{
		ID:        req.ID,
		Type:      req.Type,
		Payload:   req.Payload,
		EmittedAt: req.EmittedAt,
	})
	if err != nil {
		tracing.SetSpanError(ctx, err)
		s.logger.WithContext(ctx).WithEvent(req.ID).WithError(err).Error("event routing failed")
		writeError(w, http.StatusInternalServerError, "routing failed")
		return
	}

	writeJSON(w, http.StatusAccepted, publishEventResponse{EventID: req.ID, DeliveryIDs: ids})
}

func (s *Service) handleGetDelivery(w http.ResponseWriter, r *http.Request) {
	d, err := s.store.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "delivery not found")
		return
	}
	if err != nil {
		s.logger.WithContext(r.Context()).WithError(err).Error("delivery lookup failed")
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Service) handleListDeliveries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.ListFilter{
		SubscriptionID: q.Get("subscription_id"),
	}
	if status := q.Get("status"); status != "" {
		st := delivery.Status(status)
		if !st.Valid() {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", status))
			return
		}
		f.Status = st
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		f.Limit = n
	}

	ds, err := s.store.List(r.Context(), f)
	if err != nil {
		s.logger.WithContext(r.Context()).WithError(err).Error("delivery list failed")
		writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	if ds == nil {
		ds = []*delivery.Delivery{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"deliveries": ds})
}

func (s *Service) handleSubscriptionDeactivated(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	if deact, ok := s.subs.(subscriptions.Deactivator); ok {
		if err := deact.Deactivate(ctx, id); err != nil {
			s.logger.WithContext(ctx).WithSubscription(id).WithError(err).Warn("deactivate failed")
		}
	}

	n, err := s.store.CancelBySubscription(ctx, id)
	if err != nil {
		s.logger.WithContext(ctx).WithSubscription(id).WithError(err).Error("cancel deliveries failed")
		writeError(w, http.StatusInternalServerError, "cancel failed")
		return
	}

	s.logger.WithContext(ctx).WithSubscription(id).WithField("cancelled", n).Info("subscription deactivated")
	writeJSON(w, http.StatusOK, map[string]any{"cancelled": n})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
