package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/cargo-dispatch/internal/dispatch"
	"github.com/example/cargo-dispatch/internal/ingest"
	"github.com/example/cargo-dispatch/internal/lifecycle"
	"github.com/example/cargo-dispatch/internal/matchmaking"
	"github.com/example/cargo-dispatch/internal/models"
	"github.com/example/cargo-dispatch/internal/presence"
	"github.com/example/cargo-dispatch/internal/reconcile"
	"github.com/example/cargo-dispatch/internal/storage"
	"github.com/example/cargo-dispatch/internal/verification"
)

type Server struct {
	Lifecycle   *lifecycle.Service
	Verify      *verification.Service
	Reconcile   *reconcile.Service
	Matchmaking *matchmaking.Service
	Presence    presence.Directory
	Store       storage.Store
	Kafka       *ingest.KafkaProducer // optional
	WSReg       *dispatch.WSRegistry

	logger *slog.Logger
	mux    *mux.Router
}

type Deps struct {
	Lifecycle   *lifecycle.Service
	Verify      *verification.Service
	Reconcile   *reconcile.Service
	Matchmaking *matchmaking.Service
	Presence    presence.Directory
	Store       storage.Store
	Kafka       *ingest.KafkaProducer
	WSReg       *dispatch.WSRegistry
	Logger      *slog.Logger
}

func NewServer(d Deps) *Server {
	s := &Server{
		Lifecycle:   d.Lifecycle,
		Verify:      d.Verify,
		Reconcile:   d.Reconcile,
		Matchmaking: d.Matchmaking,
		Presence:    d.Presence,
		Store:       d.Store,
		Kafka:       d.Kafka,
		WSReg:       d.WSReg,
		logger:      d.Logger,
		mux:         mux.NewRouter(),
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/v1/trips", s.handleCreateTrip).Methods("POST")
	s.mux.HandleFunc("/api/v1/trips", s.handleListTrips).Methods("GET")
	s.mux.HandleFunc("/api/v1/trips/{id}", s.handleGetTrip).Methods("GET")
	s.mux.HandleFunc("/api/v1/trips/{id}/assign", s.handleAssign).Methods("POST")
	s.mux.HandleFunc("/api/v1/trips/{id}/status", s.handleAdvance).Methods("POST")
	s.mux.HandleFunc("/api/v1/trips/{id}/verify", s.handleVerify).Methods("POST")
	s.mux.HandleFunc("/api/v1/reconciliation/statements", s.handleStatements).Methods("GET")
	s.mux.HandleFunc("/api/v1/reconciliation/settle", s.handleSettle).Methods("POST")
	s.mux.HandleFunc("/api/v1/drivers/available", s.handleAvailableDrivers).Methods("GET")
	s.mux.HandleFunc("/internal/driver/presence", s.handlePresence).Methods("POST")
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/{driver_id}", s.handleWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

type createTripRequest struct {
	CustomerName    string    `json:"customer_name"`
	CustomerPhone   string    `json:"customer_phone"`
	BusinessType    string    `json:"business_type"`
	LoadDescription string    `json:"load_description"`
	PickupLocation  string    `json:"pickup_location"`
	DropoffLocation string    `json:"dropoff_location"`
	PickupTime      time.Time `json:"pickup_time"`
}

func (s *Server) handleCreateTrip(w http.ResponseWriter, r *http.Request) {
	var req createTripRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	t, err := s.Lifecycle.Create(r.Context(), lifecycle.CreateCommand{
		CustomerName:    req.CustomerName,
		CustomerPhone:   req.CustomerPhone,
		BusinessType:    req.BusinessType,
		LoadDescription: req.LoadDescription,
		PickupLocation:  req.PickupLocation,
		DropoffLocation: req.DropoffLocation,
		PickupTime:      req.PickupTime,
	})
	if err != nil {
		s.writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleListTrips(w http.ResponseWriter, r *http.Request) {
	status := models.TripStatus(r.URL.Query().Get("status"))
	if status == "" {
		writeError(w, http.StatusBadRequest, "status query parameter required")
		return
	}
	trips, err := s.Store.ListTripsByStatus(r.Context(), status)
	if err != nil {
		s.writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trips)
}

func (s *Server) handleGetTrip(w http.ResponseWriter, r *http.Request) {
	t, err := s.Lifecycle.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DriverID   string  `json:"driver_id"`
		AgreedFare float64 `json:"agreed_fare"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	t, err := s.Lifecycle.Assign(r.Context(), lifecycle.AssignCommand{
		TripID:     mux.Vars(r)["id"],
		DriverID:   req.DriverID,
		AgreedFare: req.AgreedFare,
	})
	if err != nil {
		s.writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status models.TripStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	t, err := s.Lifecycle.Advance(r.Context(), lifecycle.AdvanceCommand{
		TripID: mux.Vars(r)["id"],
		Target: req.Status,
	})
	if err != nil {
		s.writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Party  string  `json:"party"`
		Amount float64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	t, err := s.Verify.Record(r.Context(), verification.RecordCommand{
		TripID: mux.Vars(r)["id"],
		Party:  storage.VerifiedParty(req.Party),
		Amount: req.Amount,
	})
	if err != nil {
		s.writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleStatements(w http.ResponseWriter, r *http.Request) {
	stmts, err := s.Reconcile.Statements(r.Context())
	if err != nil {
		s.writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stmts)
}

func (s *Server) handleSettle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DriverID string   `json:"driver_id"`
		TripIDs  []string `json:"trip_ids"`
		Collect  bool     `json:"collect"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.Reconcile.Settle(r.Context(), reconcile.SettleCommand{
		DriverID: req.DriverID,
		TripIDs:  req.TripIDs,
		Collect:  req.Collect,
	})
	if err != nil {
		s.writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleAvailableDrivers(w http.ResponseWriter, r *http.Request) {
	hints, err := s.Matchmaking.Hints(r.Context(), r.URL.Query().Get("corridor"))
	if err != nil {
		s.writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hints)
}

func (s *Server) handlePresence(w http.ResponseWriter, r *http.Request) {
	var p models.Presence
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if p.DriverID == "" {
		writeError(w, http.StatusBadRequest, "driver_id required")
		return
	}
	p.Online = true
	p.SeenAt = time.Now()
	// publish to kafka if configured
	if s.Kafka != nil {
		if err := s.Kafka.PublishPresence(p); err != nil {
			s.logger.Warn("presence publish failed", "driver_id", p.DriverID, "error", err)
		}
	}
	s.Presence.Upsert(p)
	w.WriteHeader(http.StatusNoContent)
}

var upgrader = websocket.Upgrader{}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["driver_id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "upgrade failed", http.StatusBadRequest)
		return
	}
	s.WSReg.Add(id, conn)
}

func (s *Server) writeActionError(w http.ResponseWriter, err error) {
	var ve *lifecycle.ValidationError
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, ve.Error())
	case errors.Is(err, lifecycle.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, lifecycle.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
