// Package api provides the HTTP, WebSocket and gRPC servers of the commander
// console. Every transport feeds console lines into one session.Manager.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"commander/internal/config"
	"commander/internal/notify"
	"commander/internal/session"
)

// Server is the main API server that hosts HTTP and gRPC endpoints.
type Server struct {
	httpAddr string
	grpcAddr string
	sessions *session.Manager
	hub      *notify.Hub
	log      *slog.Logger
	origins  []string
}

// NewServer creates a new Server. A non-positive gRPC port disables gRPC.
func NewServer(cfg config.Server, sessions *session.Manager, hub *notify.Hub, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		httpAddr: net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		sessions: sessions,
		hub:      hub,
		log:      log.With("component", "api"),
		origins:  []string{"localhost:*", "127.0.0.1:*"},
	}
	if cfg.GRPCPort > 0 {
		s.grpcAddr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.GRPCPort))
	}
	return s
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/terminal", s.handleTerminal)
	mux.HandleFunc("DELETE /api/terminal/{id}", s.handleDisconnect)
	mux.HandleFunc("GET /api/notifications", s.handleNotifications)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /ws/terminal", s.handleWebSocket)
}

// Handler returns an http.Handler with CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GRPCServer returns a gRPC server with the Console service registered.
func (s *Server) GRPCServer() *grpc.Server {
	gs := grpc.NewServer()
	NewConsoleService(s.sessions, s.hub, s.log).RegisterGRPC(gs)
	return gs
}

// ListenAndServe starts the HTTP and gRPC listeners and blocks until the
// context is cancelled or a listener fails. Both servers are shut down
// gracefully before it returns.
func (s *Server) ListenAndServe(ctx context.Context) error {
	httpSrv := &http.Server{
		Addr:              s.httpAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("http server listening", "addr", s.httpAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	var gs *grpc.Server
	if s.grpcAddr != "" {
		lis, err := net.Listen("tcp", s.grpcAddr)
		if err != nil {
			httpSrv.Close()
			return fmt.Errorf("listening on %s: %w", s.grpcAddr, err)
		}
		gs = s.GRPCServer()
		g.Go(func() error {
			s.log.Info("grpc server listening", "addr", s.grpcAddr)
			if err := gs.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("grpc server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if gs != nil {
			// Subscribe streams only end with the client, so cap the wait.
			stopped := make(chan struct{})
			go func() {
				gs.GracefulStop()
				close(stopped)
			}()
			select {
			case <-stopped:
			case <-shutCtx.Done():
				gs.Stop()
			}
		}
		return httpSrv.Shutdown(shutCtx)
	})

	return g.Wait()
}
