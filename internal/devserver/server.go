// Package devserver is a stand-in backend for local development: the
// REST collaborators over a fixed gazetteer, the event channel with
// per-user rooms, and a simulated pooling and driver-dispatch flow.
package devserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/rider-client/internal/clock"
	"github.com/example/rider-client/internal/config"
	httpapi "github.com/example/rider-client/internal/http"
	"github.com/example/rider-client/internal/models"
	"github.com/example/rider-client/internal/session"
)

const (
	routeSegments = 12
	tokenTTL      = 7 * 24 * time.Hour
)

type Server struct {
	cfg    config.DevServerConfig
	clock  clock.Clock
	logger *slog.Logger

	Places *Gazetteer
	Rides  *RideBook
	Pool   *Pool
	Rooms  *Rooms
	mux    *mux.Router
}

func New(cfg config.DevServerConfig, places *Gazetteer, clk clock.Clock, logger *slog.Logger) *Server {
	if clk == nil {
		clk = clock.Real()
	}
	rooms := NewRooms(logger)
	s := &Server{
		cfg:    cfg,
		clock:  clk,
		logger: logger.With("component", "devserver"),
		Places: places,
		Rides:  NewRideBook(places, cfg.BaseFare, cfg.PerKmFare),
		Pool:   NewPool(cfg.PoolCapacity, cfg.MatchingWindow, clk, rooms, logger),
		Rooms:  rooms,
		mux:    mux.NewRouter(),
	}
	rooms.Handle(models.EventCreateRideSharing, s.handlePoolRequest)
	httpapi.Instrument(s.mux, s.logger)
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/auth/token", s.handleToken).Methods("POST")

	api := s.mux.NewRoute().Subrouter()
	api.Use(s.authMiddleware)
	api.Handle("/ws", s.Rooms)
	api.HandleFunc("/rides/create", s.handleCreateRide).Methods("POST")
	api.HandleFunc("/rides/get-fare", s.handleFare).Methods("GET")
	api.HandleFunc("/maps/get-suggestions", s.handleSuggestions).Methods("GET")
	api.HandleFunc("/maps/get-place-details", s.handlePlaceDetails).Methods("GET")
	api.HandleFunc("/maps/get-route", s.handleRoute).Methods("GET")
	api.HandleFunc("/twilio/call-driver", s.handleCallDriver).Methods("POST")
	api.HandleFunc("/dev/rides/{ride_id}/accept", s.handleAccept).Methods("POST")
	api.HandleFunc("/dev/rides/{ride_id}/reject", s.handleReject).Methods("POST")
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

type ctxUserKey struct{}

// authMiddleware checks the bearer token when a JWT secret is set.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.JWTSecret == "" {
			next.ServeHTTP(w, r)
			return
		}
		tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if tok == "" {
			tok = r.URL.Query().Get("token")
		}
		claims, err := session.ClaimsFromToken(tok, s.cfg.JWTSecret)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		r.Header.Set("X-User-ID", claims.UserID)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID string `json:"userId"`
		Name   string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.UserID == "" {
		body.UserID = uuid.NewString()
	}
	secret := s.cfg.JWTSecret
	if secret == "" {
		secret = "dev"
	}
	tok, err := session.IssueToken(body.UserID, "user", body.Name, secret, tokenTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]string{"token": tok, "userId": body.UserID})
}

func (s *Server) handleCreateRide(w http.ResponseWriter, r *http.Request) {
	var req models.RideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ride, err := s.Rides.Create(req, r.Header.Get("X-User-ID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Info("ride created", "ride_id", ride.ID, "pickup", ride.Pickup, "destination", ride.Destination)
	httpapi.WriteJSON(w, http.StatusCreated, ride)
}

func (s *Server) handleFare(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	fares, err := s.Rides.Fares(q.Get("pickup"), q.Get("destination"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, fares)
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	input := r.URL.Query().Get("input")
	if len(strings.TrimSpace(input)) < 3 {
		writeError(w, http.StatusBadRequest, "input must be at least 3 characters")
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, s.Places.Search(input))
}

func (s *Server) handlePlaceDetails(w http.ResponseWriter, r *http.Request) {
	p, ok := s.Places.Lookup(r.URL.Query().Get("place_id"))
	if !ok {
		writeError(w, http.StatusNotFound, "place not found")
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{"location": p.Location, "name": p.Name})
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err1 := parseLatLng(q.Get("pickup"))
	to, err2 := parseLatLng(q.Get("destination"))
	if err := errors.Join(err1, err2); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, straightRoute(from, to, routeSegments))
}

type callRequest struct {
	Phone       string `json:"phone"`
	RideID      string `json:"rideId"`
	Pickup      string `json:"pickup"`
	Destination string `json:"destination"`
}

type callResponse struct {
	Success bool   `json:"success"`
	CallSID string `json:"callSid,omitempty"`
	Error   string `json:"error,omitempty"`
}

// handleCallDriver pretends to phone a driver, who accepts the ride
// after the configured delay.
func (s *Server) handleCallDriver(w http.ResponseWriter, r *http.Request) {
	var req callRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteJSON(w, http.StatusBadRequest, callResponse{Error: err.Error()})
		return
	}
	if _, ok := s.Rides.Get(req.RideID); !ok {
		httpapi.WriteJSON(w, http.StatusNotFound, callResponse{Error: ErrRideNotFound.Error()})
		return
	}
	sid := "CA" + strings.ReplaceAll(uuid.NewString(), "-", "")
	s.logger.Info("driver call placed", "ride_id", req.RideID, "call_sid", sid, "pickup", req.Pickup, "destination", req.Destination)
	rideID := req.RideID
	s.clock.AfterFunc(s.cfg.AcceptDelay, func() { s.Accept(rideID) })
	httpapi.WriteJSON(w, http.StatusOK, callResponse{Success: true, CallSID: sid})
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	if n := s.Accept(mux.Vars(r)["ride_id"]); n == 0 {
		writeError(w, http.StatusNotFound, "nobody to notify")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	if n := s.Reject(mux.Vars(r)["ride_id"]); n == 0 {
		writeError(w, http.StatusNotFound, "nobody to notify")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Accept assigns a driver to the ride's trip and tells every passenger.
// It returns the number of passengers notified.
func (s *Server) Accept(rideID string) int {
	driverID := "driver-" + uuid.NewString()[:8]
	s.Pool.Assign(rideID, driverID)
	notified := 0
	for _, target := range s.targets(rideID) {
		ride, err := s.Rides.SetStatus(target.rideID, "accepted")
		if err != nil {
			continue
		}
		if err := s.Rooms.Send(target.userID, models.EventRideAccepted, ride); err == nil {
			notified++
		}
	}
	s.logger.Info("ride accepted", "ride_id", rideID, "driver_id", driverID, "notified", notified)
	return notified
}

// Reject tells the ride's owner that the driver declined.
func (s *Server) Reject(rideID string) int {
	ride, err := s.Rides.SetStatus(rideID, "rejected")
	if err != nil {
		return 0
	}
	owner := s.Rides.Owner(rideID)
	if owner == "" {
		return 0
	}
	note := models.RideNotification{RideID: ride.ID, Pickup: ride.Pickup, Destination: ride.Destination}
	if err := s.Rooms.Send(owner, models.EventRideRejected, note); err != nil {
		return 0
	}
	return 1
}

type notifyTarget struct{ userID, rideID string }

func (s *Server) targets(rideID string) []notifyTarget {
	if ps := s.Pool.Passengers(rideID); len(ps) > 0 {
		out := make([]notifyTarget, 0, len(ps))
		for _, p := range ps {
			out = append(out, notifyTarget{userID: p.UserID, rideID: p.RideID})
		}
		return out
	}
	if owner := s.Rides.Owner(rideID); owner != "" {
		return []notifyTarget{{userID: owner, rideID: rideID}}
	}
	return nil
}

func (s *Server) handlePoolRequest(p *Peer, data json.RawMessage) {
	var req models.PoolRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.creationError(p, "malformed pool request")
		return
	}
	if req.UserID == "" {
		req.UserID = p.UserID()
	}
	ride, ok := s.Rides.Get(req.RideID)
	if !ok {
		s.creationError(p, ErrRideNotFound.Error())
		return
	}
	s.Rides.SetOwner(ride.ID, req.UserID)
	if err := s.Pool.Request(req, p.SocketID, ride.Fare); err != nil {
		s.creationError(p, err.Error())
	}
}

func (s *Server) creationError(p *Peer, msg string) {
	user := p.UserID()
	s.logger.Warn("ride creation error", "user_id", user, "message", msg)
	if user == "" {
		return
	}
	_ = s.Rooms.Send(user, models.EventRideCreationError, models.CreationError{Message: msg})
}

func parseLatLng(v string) (models.Location, error) {
	parts := strings.Split(v, ",")
	if len(parts) != 2 {
		return models.Location{}, errors.New("expected lat,lng")
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return models.Location{}, err
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return models.Location{}, err
	}
	return models.Location{Lat: lat, Lng: lng}, nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	httpapi.WriteJSON(w, status, map[string]string{"message": msg})
}
