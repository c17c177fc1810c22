// Package api exposes the moderation engine over REST/JSON plus a
// WebSocket decision feed.
package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sentra/moderation/internal/domain"
	"github.com/sentra/moderation/internal/events"
	"github.com/sentra/moderation/internal/middleware"
	"github.com/sentra/moderation/internal/moderation"
	"github.com/sentra/moderation/internal/reputation"
	"github.com/sentra/moderation/internal/review"
	"github.com/sentra/moderation/internal/stream"
)

// ChatSink persists terminal chat decisions for audit.
type ChatSink interface {
	SaveChatDecision(ctx context.Context, d *domain.ChatDecision) error
}

// Server wires the pipeline components behind HTTP handlers.
type Server struct {
	orchestrator *moderation.Orchestrator
	processor    *stream.Processor
	reputation   *reputation.Engine
	queue        *review.Queue
	bus          *events.EventBus        // optional, powers the decision feed
	chatSink     ChatSink                // optional
	limiter      *middleware.RateLimiter // optional

	feed   *DecisionFeed
	logger *log.Logger
}

// NewServer builds a server around the given pipeline components. The
// event bus may be nil; the WebSocket feed is disabled without it.
func NewServer(o *moderation.Orchestrator, p *stream.Processor, rep *reputation.Engine, q *review.Queue, bus *events.EventBus) *Server {
	s := &Server{
		orchestrator: o,
		processor:    p,
		reputation:   rep,
		queue:        q,
		bus:          bus,
		logger:       log.New(log.Writer(), "[API] ", log.LstdFlags),
	}
	if bus != nil {
		s.feed = NewDecisionFeed(bus)
	}
	return s
}

// WithChatSink attaches a chat decision audit sink.
func (s *Server) WithChatSink(sink ChatSink) *Server { s.chatSink = sink; return s }

// WithRateLimiter enables per-client request limiting.
func (s *Server) WithRateLimiter(rl *middleware.RateLimiter) *Server { s.limiter = rl; return s }

// Router assembles the HTTP routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	// CORS Middleware
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	if s.limiter != nil {
		r.Use(s.limiter.Middleware)
	}

	r.HandleFunc("/api/v1/moderate", s.handleModerate).Methods("POST")
	r.HandleFunc("/api/v1/chat", s.handleChat).Methods("POST")
	r.HandleFunc("/api/v1/queue/stats", s.handleQueueStats).Methods("GET")
	r.HandleFunc("/api/v1/queue/next", s.handleQueueNext).Methods("POST")
	r.HandleFunc("/api/v1/users/{user_id}/risk", s.handleUserRisk).Methods("GET")
	r.HandleFunc("/api/v1/channels/{channel_id}", s.handleChannelState).Methods("GET")

	r.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	if s.feed != nil {
		r.HandleFunc("/api/v1/decisions/stream", s.feed.HandleWebSocket)
		r.HandleFunc("/api/v1/decisions/sse", s.feed.HandleSSE).Methods("GET")
	}

	return r
}

// Start runs the HTTP server until the context is cancelled.
func (s *Server) Start(ctx context.Context, port string) error {
	if s.feed != nil {
		go s.feed.Run(ctx)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", port),
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.logger.Printf("listening on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
