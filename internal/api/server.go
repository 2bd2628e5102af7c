package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"geofleet-sync/internal/cache"
	"geofleet-sync/internal/geocode"
	"geofleet-sync/internal/models"
	"geofleet-sync/internal/store"
)

// Refresher triggers an off-schedule sync cycle.
type Refresher interface {
	Refresh()
}

// Server exposes the cached fleet state over REST.
type Server struct {
	cache     *cache.Cache
	resolver  *geocode.Resolver
	store     *store.VehicleStore // nil when remote mirroring is disabled
	refresher Refresher
	router    *mux.Router
}

// NewServer creates the API server. store may be nil.
func NewServer(c *cache.Cache, r *geocode.Resolver, s *store.VehicleStore, refresher Refresher) *Server {
	srv := &Server{
		cache:     c,
		resolver:  r,
		store:     s,
		refresher: refresher,
		router:    mux.NewRouter(),
	}
	srv.setupRoutes()
	return srv
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	s.router.HandleFunc("/api/v1/positions", s.handleListPositions).Methods("GET")
	s.router.HandleFunc("/api/v1/positions/{vehicle_id}", s.handleLastPosition).Methods("GET")
	s.router.HandleFunc("/api/v1/sync", s.handleSync).Methods("POST")

	s.router.HandleFunc("/api/v1/fleet", s.handleFleet).Methods("GET")
	s.router.HandleFunc("/api/v1/vehicles/{vehicle_id}/history", s.handleHistory).Methods("GET")

	s.router.HandleFunc("/api/v1/address", s.handleAddress).Methods("GET")

	s.router.Use(loggingMiddleware)
	s.router.Use(jsonMiddleware)
}

// Router returns the configured router
func (s *Server) Router() *mux.Router {
	return s.router
}

// Middleware
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.WithFields(log.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start).Round(time.Millisecond),
		}).Debug("request handled")
	})
}

func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// Response helpers
type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(apiResponse{Success: true, Data: data})
}

func respondError(w http.ResponseWriter, status int, message string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(apiResponse{Success: false, Error: message})
}

// Handlers
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleListPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.cache.GetAll()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, positions)
}

func (s *Server) handleLastPosition(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	vehicleID := vars["vehicle_id"]

	position, err := s.cache.GetLast(vehicleID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if position == nil {
		respondError(w, http.StatusNotFound, "no position cached for vehicle")
		return
	}
	respondJSON(w, http.StatusOK, position)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if s.refresher == nil {
		respondError(w, http.StatusServiceUnavailable, "sync not running")
		return
	}
	s.refresher.Refresh()
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "sync started"})
}

func (s *Server) handleFleet(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		respondError(w, http.StatusServiceUnavailable, "remote vehicle store not configured")
		return
	}

	vehicles, err := s.store.ListVehicles(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	infos := make([]models.VehicleInfo, 0, len(vehicles))
	for _, v := range vehicles {
		last, err := s.cache.GetLast(v.ID)
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		infos = append(infos, models.VehicleInfo{Vehicle: v, LastPosition: last})
	}

	respondJSON(w, http.StatusOK, infos)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		respondError(w, http.StatusServiceUnavailable, "remote vehicle store not configured")
		return
	}

	vars := mux.Vars(r)
	vehicleID := vars["vehicle_id"]

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}

	entries, err := s.store.PositionHistory(r.Context(), vehicleID, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

func (s *Server) handleAddress(w http.ResponseWriter, r *http.Request) {
	lat, errLat := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lng, errLng := strconv.ParseFloat(r.URL.Query().Get("lng"), 64)
	if errLat != nil || errLng != nil {
		respondError(w, http.StatusBadRequest, "lat and lng query parameters are required")
		return
	}

	address := s.resolver.Resolve(r.Context(), lat, lng)
	respondJSON(w, http.StatusOK, map[string]string{"address": address})
}
