package push

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"simtrader/internal/domain"
	"simtrader/internal/infra"
)

const writeTimeout = 5 * time.Second

// Server pushes portfolio snapshots to WebSocket subscribers. New clients
// receive the latest snapshot immediately on connect; dead clients are
// swept on write failure.
type Server struct {
	addr     string
	upgrader websocket.Upgrader
	httpSrv  *http.Server

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	latest  []byte
}

// NewServer creates a push server listening on addr.
func NewServer(addr string) *Server {
	return &Server{
		addr: addr,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Local dashboard use; no cross-origin policy enforced.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// Start begins serving in a background goroutine until ctx is cancelled.
func (s *Server) Start(ctx context.Context) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	s.httpSrv = &http.Server{Addr: s.addr, Handler: mux}

	go func() {
		slog.Info("push server listening", slog.String("addr", s.addr))
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("push server failed", slog.Any("error", err))
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
}

// Stop closes all client connections and the listener.
func (s *Server) Stop() {
	s.mu.Lock()
	for conn := range s.clients {
		conn.Close()
		infra.GlobalMetrics.DecrementPushClients()
	}
	s.clients = make(map[*websocket.Conn]struct{})
	s.mu.Unlock()

	if s.httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		s.httpSrv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}

	s.mu.Lock()
	s.clients[conn] = struct{}{}
	latest := s.latest
	s.mu.Unlock()
	infra.GlobalMetrics.IncrementPushClients()
	slog.Info("push client connected", slog.String("remote", conn.RemoteAddr().String()))

	if latest != nil {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		conn.WriteMessage(websocket.TextMessage, latest)
	}

	// Drain reads so close frames are processed; clients do not send data.
	go func() {
		defer s.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) drop(conn *websocket.Conn) {
	s.mu.Lock()
	_, present := s.clients[conn]
	delete(s.clients, conn)
	s.mu.Unlock()

	conn.Close()
	if present {
		infra.GlobalMetrics.DecrementPushClients()
	}
}

// Broadcast sends the snapshot to every connected client and remembers it
// for late joiners.
func (s *Server) Broadcast(snap domain.PortfolioSnapshot) {
	payload, err := json.Marshal(struct {
		Type      string                   `json:"type"`
		Timestamp time.Time                `json:"timestamp"`
		Portfolio domain.PortfolioSnapshot `json:"portfolio"`
	}{
		Type:      "portfolio_update",
		Timestamp: time.Now().UTC(),
		Portfolio: snap,
	})
	if err != nil {
		slog.Error("snapshot marshal failed", slog.Any("error", err))
		return
	}

	s.mu.Lock()
	s.latest = payload
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for conn := range s.clients {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	for _, conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			s.drop(conn)
		}
	}
}

// ClientCount returns the number of connected subscribers.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}
