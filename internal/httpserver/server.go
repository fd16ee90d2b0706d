// internal/httpserver/server.go
//
// HTTP gateway surface for the round engine.
// Responsibilities:
//   - Router + middleware (JSON, timeouts, panic recovery, request IDs).
//   - Public endpoints: "/", "/health".
//   - POST /events (JWT required): inbound "message created" events,
//     dispatched to the engine off the request goroutine — a begin
//     trigger suspends for the whole round race and must not hold the
//     HTTP request open.
//   - GET /ranking/{variant} (JWT required): rendered leaderboard.
//
// Notes:
//   - The gateway process authenticates with a pre-issued HS256 bearer
//     token; there are no user accounts on this side.
//   - A panic while handling one round's event is confined to that
//     event's goroutine and logged, never crashing the process.

package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"github.com/okazari/soundguess/internal/round"
	"github.com/okazari/soundguess/internal/score"
)

// Server bundles the router, the round engine, and the score store.
type Server struct {
	r      *chi.Mux
	engine *round.Engine
	scores score.Store
	secret []byte
}

// New constructs a Server, installs middleware, and registers routes.
func New(engine *round.Engine, scores score.Store, jwtSecret string) *Server {
	s := &Server{r: chi.NewRouter(), engine: engine, scores: scores, secret: []byte(jwtSecret)}

	// --- middleware ---
	s.r.Use(chimw.RequestID)                 // add X-Request-ID
	s.r.Use(chimw.RealIP)                    // set RemoteAddr from X-Forwarded-For etc.
	s.r.Use(chimw.Recoverer)                 // recover from panics
	s.r.Use(chimw.Timeout(10 * time.Second)) // bound handler time
	s.r.Use(jsonContentType)                 // default JSON responses

	// --- diagnostics ---
	s.r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"service":"soundguess","endpoints":["/health","POST /events","GET /ranking/{variant}"]}`))
	})
	s.r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	// Gateway endpoints — require the gateway bearer token.
	s.r.With(s.requireAuth()).Post("/events", s.handleEvent)
	s.r.With(s.requireAuth()).Get("/ranking/{variant}", s.handleRanking)

	// JSON 404 for easier debugging
	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"not_found","path":"`+r.URL.Path+`"}`, http.StatusNotFound)
	})

	return s
}

// Start begins serving HTTP on addr.
func (s *Server) Start(addr string) error { return http.ListenAndServe(addr, s.r) }

// Router exposes the internal router (useful for tests).
func (s *Server) Router() chi.Router { return s.r }

// ------------------------------ events -------------------------------------

// handleEvent accepts one inbound message event and dispatches it to the
// engine in its own goroutine, responding 202 immediately.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var ev round.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	if ev.ChannelID == "" || ev.RawText == "" {
		http.Error(w, `{"error":"missing_fields"}`, http.StatusBadRequest)
		return
	}

	go s.dispatch(ev)

	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write([]byte(`{"accepted":true}`))
}

// dispatch runs one event through the engine, confining panics and
// logging non-user-facing failures.
func (s *Server) dispatch(ev round.Event) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Str("channel", ev.ChannelID).
				Msg("event handling panicked")
		}
	}()
	err := s.engine.HandleMessage(context.Background(), ev)
	switch {
	case err == nil:
	case round.IsUserFacing(err):
		log.Debug().Err(err).Str("channel", ev.ChannelID).Msg("event rejected")
	default:
		log.Error().Err(err).Str("channel", ev.ChannelID).Msg("event handling failed")
	}
}

// ------------------------------ ranking ------------------------------------

// handleRanking renders a channel's leaderboard for one variant as the
// same plaintext table the chat command produces.
func (s *Server) handleRanking(w http.ResponseWriter, r *http.Request) {
	if s.scores == nil {
		http.Error(w, `{"error":"scoring_disabled"}`, http.StatusNotFound)
		return
	}
	variant := chi.URLParam(r, "variant")
	channel := r.URL.Query().Get("channel")
	if channel == "" {
		http.Error(w, `{"error":"missing_channel"}`, http.StatusBadRequest)
		return
	}
	entries, err := s.scores.TopN(r.Context(), channel, variant, 20)
	if err != nil {
		log.Warn().Err(err).Str("channel", channel).Str("variant", variant).Msg("load ranking")
		http.Error(w, `{"error":"db_error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(score.RenderRanking(entries)))
}

// ---------------------------- middleware -----------------------------------

// jsonContentType sets a default JSON Content-Type header on all responses.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// requireAuth enforces a valid HS256 bearer token with a non-empty
// subject claim identifying the gateway process.
func (s *Server) requireAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := bearerToken(r)
			if tokenStr == "" {
				http.Error(w, `{"error":"Unauthorized"}`, http.StatusUnauthorized)
				return
			}
			claims := jwt.MapClaims{}
			token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
				return s.secret, nil
			})
			if err != nil || !token.Valid {
				http.Error(w, `{"error":"Invalid token"}`, http.StatusUnauthorized)
				return
			}
			if sub, _ := claims["sub"].(string); sub == "" {
				http.Error(w, `{"error":"Invalid token"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken extracts a bearer token from the Authorization header.
func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	a := r.Header.Get("Authorization")
	if len(a) > len(prefix) && a[:len(prefix)] == prefix {
		return a[len(prefix):]
	}
	return ""
}
