// Package httpapi exposes the operator surface: device management,
// enrollment review, audit queries and the websocket event stream.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/campusgate/gatekeeper/internal/gateway/hub"
	"github.com/campusgate/gatekeeper/internal/gateway/service"
	"github.com/campusgate/gatekeeper/internal/gateway/store"
)

type Dependencies struct {
	Logger     *zap.Logger
	Addr       string
	Devices    store.DeviceStore
	Registry   *service.DeviceRegistry
	Enrollment *service.EnrollmentService
	Stats      *service.StatsService
	Hub        *hub.Hub
}

type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	devices    store.DeviceStore
	registry   *service.DeviceRegistry
	enrollment *service.EnrollmentService
	stats      *service.StatsService
	hub        *hub.Hub
}

func NewServer(d Dependencies) *Server {
	s := &Server{
		logger:     d.Logger,
		devices:    d.Devices,
		registry:   d.Registry,
		enrollment: d.Enrollment,
		stats:      d.Stats,
		hub:        d.Hub,
	}

	r := chi.NewRouter()
	r.Use(loggingMiddleware(d.Logger))

	r.Route("/api", func(r chi.Router) {
		r.Get("/devices", s.handleListDevices)
		r.Post("/devices/{deviceID}/registration-mode", s.handleRegistrationMode)

		r.Get("/pending-registrations", s.handleListPending)
		r.Post("/pending-registrations/{regID}/approve", s.handleApprove)
		r.Post("/pending-registrations/{regID}/reject", s.handleReject)

		r.Get("/access-logs", s.handleAccessLogs)
		r.Get("/access-stats", s.handleAccessStats)
		r.Get("/system/health", s.handleHealth)
	})

	r.Get("/ws", s.hub.ServeWS)

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.devices.List(r.Context())
	if err != nil {
		s.logger.Error("list devices failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	writeJSON(w, http.StatusOK, devices)
}

type registrationModeRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleRegistrationMode(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	var req registrationModeRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}

	rec, err := s.registry.SetRegistrationMode(r.Context(), deviceID, req.Enabled)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrDeviceNotFound):
			writeError(w, http.StatusNotFound, "device_not_found", "no such device")
		case errors.Is(err, service.ErrDeviceNotConnected):
			// Mode is persisted; the device will pick it up at its next
			// DEVICE_INFO. The caller still learns the push did not land.
			writeError(w, http.StatusConflict, "device_not_connected", "device is not connected")
		default:
			s.logger.Error("registration mode toggle failed",
				zap.String("device_id", deviceID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		}
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleListPending(w http.ResponseWriter, r *http.Request) {
	regs, err := s.stats.PendingRegistrations(r.Context())
	if err != nil {
		s.logger.Error("list pending registrations failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	writeJSON(w, http.StatusOK, regs)
}

type approveRequest struct {
	HolderName string `json:"holder_name"`
	Type       string `json:"type"`
	OrgID      string `json:"org_id"`
	DeptID     string `json:"dept_id"`
	ValidFrom  string `json:"valid_from,omitempty"`  // RFC 3339, optional
	ValidUntil string `json:"valid_until,omitempty"` // RFC 3339, optional
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	regID := chi.URLParam(r, "regID")

	var req approveRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}

	svcReq := service.ApproveRequest{
		HolderName: req.HolderName,
		Type:       req.Type,
		OrgID:      req.OrgID,
		DeptID:     req.DeptID,
	}
	if req.ValidFrom != "" {
		t, err := time.Parse(time.RFC3339, req.ValidFrom)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_valid_from", "valid_from must be RFC 3339")
			return
		}
		svcReq.ValidFrom = t
	}
	if req.ValidUntil != "" {
		t, err := time.Parse(time.RFC3339, req.ValidUntil)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_valid_until", "valid_until must be RFC 3339")
			return
		}
		svcReq.ValidUntil = t
	}

	approval, err := s.enrollment.Approve(r.Context(), regID, svcReq)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidHolderName):
			writeError(w, http.StatusBadRequest, "invalid_holder_name", err.Error())
		case errors.Is(err, service.ErrInvalidCardType):
			writeError(w, http.StatusBadRequest, "invalid_card_type", err.Error())
		case errors.Is(err, store.ErrRegistrationNotFound):
			writeError(w, http.StatusNotFound, "registration_not_found", "no such registration")
		case errors.Is(err, store.ErrRegistrationNotPending):
			writeError(w, http.StatusConflict, "registration_not_pending", "registration already processed")
		case errors.Is(err, store.ErrCardExists):
			writeError(w, http.StatusConflict, "card_exists", "a card with this id already exists")
		default:
			s.logger.Error("approve failed", zap.String("reg_id", regID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		}
		return
	}

	writeJSON(w, http.StatusOK, approval)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	regID := chi.URLParam(r, "regID")

	reg, err := s.enrollment.Reject(r.Context(), regID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrRegistrationNotFound):
			writeError(w, http.StatusNotFound, "registration_not_found", "no such registration")
		case errors.Is(err, store.ErrRegistrationNotPending):
			writeError(w, http.StatusConflict, "registration_not_pending", "registration already processed")
		default:
			s.logger.Error("reject failed", zap.String("reg_id", regID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		}
		return
	}

	writeJSON(w, http.StatusOK, reg)
}

func (s *Server) handleAccessLogs(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 1000 {
			writeError(w, http.StatusBadRequest, "bad_limit", "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	logs, err := s.stats.RecentLogs(r.Context(), limit)
	if err != nil {
		s.logger.Error("access logs query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func (s *Server) handleAccessStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.stats.AccessStats(r.Context())
	if err != nil {
		s.logger.Error("access stats query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health, err := s.stats.Health(r.Context())
	if err != nil {
		s.logger.Error("health query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	health.Subscribers = s.hub.Subscribers()
	writeJSON(w, http.StatusOK, health)
}
