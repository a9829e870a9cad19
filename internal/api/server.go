package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"chatconnect/internal/rooms"
	"chatconnect/pkg/types"
)

// HistoryStore is the slice of the message store the HTTP surface reads
type HistoryStore interface {
	GetRoomPage(ctx context.Context, room string, page, limit int) ([]*types.Message, bool, error)
	HealthCheck(ctx context.Context) error
}

// RoomCounter lists rooms with their live user counts
type RoomCounter interface {
	Counts() []rooms.RoomInfo
}

// ConnectionCounter reports live transport connections and registered sessions
type ConnectionCounter interface {
	Count() int
}

// ARCHITECTURAL DISCOVERY: HTTP API layer serves as pure interface between external clients and internal components
// Clean separation - no business logic, only HTTP handling and JSON serialization
type Server struct {
	store       HistoryStore
	rooms       RoomCounter
	connections ConnectionCounter
	sessions    ConnectionCounter
	maxFileSize int64
	startedAt   time.Time
	router      *http.ServeMux
}

// NewServer wires the read-only HTTP endpoints
func NewServer(store HistoryStore, rooms RoomCounter, connections, sessions ConnectionCounter, maxFileSize int64) *Server {
	if maxFileSize <= 0 {
		maxFileSize = types.MaxFileSize
	}
	s := &Server{
		store:       store,
		rooms:       rooms,
		connections: connections,
		sessions:    sessions,
		maxFileSize: maxFileSize,
		startedAt:   time.Now(),
		router:      http.NewServeMux(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("GET /messages/{room}", s.getRoomHistory)
	s.router.HandleFunc("POST /upload", s.handleUpload)
	s.router.HandleFunc("GET /api/rooms", s.listRooms)
	s.router.HandleFunc("GET /health", s.healthCheck)
}

// Mount registers an extra handler, used for the WebSocket upgrade endpoint
func (s *Server) Mount(pattern string, handler http.Handler) {
	s.router.Handle(pattern, handler)
}

// FUNCTIONAL DISCOVERY: Implement http.Handler interface for integration with standard HTTP server
// CORS wraps the whole mux so preflight requests never hit method-bound patterns.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.corsMiddleware(s.router).ServeHTTP(w, r)
}

type HistoryResponse struct {
	Room     string           `json:"room"`
	Page     int              `json:"page"`
	Limit    int              `json:"limit"`
	Messages []*types.Message `json:"messages"`
	HasMore  bool             `json:"hasMore"`
}

type RoomsResponse struct {
	Rooms []rooms.RoomInfo `json:"rooms"`
}

type HealthResponse struct {
	Status      string         `json:"status"`
	Timestamp   time.Time      `json:"timestamp"`
	Database    string         `json:"database"`
	Connections map[string]int `json:"connections"`
	Uptime      string         `json:"uptime"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// GET /messages/{room}?page=&limit= - page 1 holds the newest messages
func (s *Server) getRoomHistory(w http.ResponseWriter, r *http.Request) {
	room, err := types.ValidateRoomName(r.PathValue("room"))
	if err != nil {
		s.sendError(w, "Invalid room name", http.StatusBadRequest)
		return
	}

	page, limit := types.NormalizePage(queryInt(r, "page"), queryInt(r, "limit"))

	messages, hasMore, err := s.store.GetRoomPage(r.Context(), room, page, limit)
	if err != nil {
		log.Printf("History query failed for room %s: %v", room, err)
		s.sendError(w, "Failed to load messages", http.StatusInternalServerError)
		return
	}
	if messages == nil {
		messages = []*types.Message{}
	}

	s.sendJSON(w, http.StatusOK, HistoryResponse{
		Room:     room,
		Page:     page,
		Limit:    limit,
		Messages: messages,
		HasMore:  hasMore,
	})
}

// GET /api/rooms - every known room with its live user count
func (s *Server) listRooms(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, RoomsResponse{Rooms: s.rooms.Counts()})
}

// GET /health - 503 when the history store stops answering
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "healthy"
	code := http.StatusOK
	if err := s.store.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		dbStatus = fmt.Sprintf("error: %v", err)
		code = http.StatusServiceUnavailable
	}

	s.sendJSON(w, code, HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Database:  dbStatus,
		Connections: map[string]int{
			"connections": s.connections.Count(),
			"sessions":    s.sessions.Count(),
		},
		Uptime: time.Since(s.startedAt).Round(time.Second).String(),
	})
}

func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return n
}

func (s *Server) sendJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to write response: %v", err)
	}
}

// FUNCTIONAL DISCOVERY: Consistent error response format
func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	s.sendJSON(w, code, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

// ARCHITECTURAL DISCOVERY: CORS middleware enables web client access
// Allows all origins; there is no authentication to protect.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
