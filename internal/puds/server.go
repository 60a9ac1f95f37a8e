package puds

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rustyhorde/pud-go/internal/archive"
	"github.com/rustyhorde/pud-go/internal/config"
)

// buildInfo is the fixed payload for GET /v1/info. Version is set by the
// cmd/puds main package at link time via -ldflags, falling back to "dev".
var buildInfo = struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}{Name: "puds", Version: "dev"}

// SetVersion overrides the version reported by GET /v1/info.
func SetVersion(v string) {
	if v != "" {
		buildInfo.Version = v
	}
}

// Server hosts the worker and manager WebSocket endpoints plus the
// informational HTTP endpoints, all atop one Router and one Archive.
type Server struct {
	cfg      *config.ServerConfig
	router   *Router
	arc      *archive.Archive
	upgrader websocket.Upgrader
	httpSrv  *http.Server
}

// NewServer wires a router and archive into an HTTP server. cfgPath is
// kept by the router for Reload.
func NewServer(cfg *config.ServerConfig, cfgPath string, arc *archive.Archive) *Server {
	router := NewRouter(cfg, cfgPath)
	return &Server{
		cfg:    cfg,
		router: router,
		arc:    arc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Router exposes the underlying router, e.g. for wiring a ConfigWatcher.
func (s *Server) Router() *Router { return s.router }

// Run starts the router goroutine and the HTTP listener, blocking until
// the listener returns (normally on ctx cancellation via Shutdown).
func (s *Server) Run(ctx context.Context) error {
	go s.router.Run()
	defer s.router.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/ws/worker", s.handleWorkerUpgrade)
	mux.HandleFunc("/v1/ws/manager", s.handleManagerUpgrade)
	mux.HandleFunc("/v1/health", s.handleHealth)
	mux.HandleFunc("/v1/info", s.handleInfo)

	addr := fmt.Sprintf("%s:%d", s.cfg.Actix.IP, s.cfg.Actix.Port)
	s.httpSrv = &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.cfg.TLS.CertFilePath != "" && s.cfg.TLS.KeyFilePath != "" {
			err = s.httpSrv.ListenAndServeTLS(s.cfg.TLS.CertFilePath, s.cfg.TLS.KeyFilePath)
		} else {
			err = s.httpSrv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Printf("puds: shutdown: %v", err)
		}
		<-errCh
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleWorkerUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("puds: worker upgrade: %v", err)
		return
	}
	name := NameParam(r)
	ip := RemoteIP(r)
	session := NewWorkerSession(conn, ip, name, s.router, s.arc)
	log.Printf("puds: worker %q connected from %s as %s", name, ip, session.id)
	session.Run()
}

func (s *Server) handleManagerUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("puds: manager upgrade: %v", err)
		return
	}
	name := NameParam(r)
	ip := RemoteIP(r)
	session := NewManagerSession(conn, ip, name, s.router, s.arc)
	log.Printf("puds: manager %q connected from %s as %s", name, ip, session.id)
	session.Run()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(buildInfo)
}
