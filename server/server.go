// Package server exposes the prompt service over HTTP. One POST endpoint
// validates the request up front, then commits to SSE framing and relays
// conversation events as they stream from the engine.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/AnswerDotAI/ai-jup/core"
	"github.com/AnswerDotAI/ai-jup/engine"
	"github.com/AnswerDotAI/ai-jup/logging"
)

// maxRequestBody bounds the prompt request body. Context bundles are capped
// well below this, so anything larger is garbage.
const maxRequestBody = 1 << 20

// Server handles prompt requests over HTTP.
type Server struct {
	loop   *engine.Loop
	auth   Authorizer
	logger logging.Logger
}

// Options configures a Server.
type Options struct {
	Authorizer Authorizer
	Logger     logging.Logger
}

// New creates a Server over the given loop.
func New(loop *engine.Loop, optFns ...func(o *Options)) *Server {
	opts := Options{Authorizer: AllowAll{}, Logger: logging.NewNoOpLogger()}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Server{loop: loop, auth: opts.Authorizer, logger: opts.Logger}
}

// WithAuthorizer sets the request authorizer.
func WithAuthorizer(a Authorizer) func(o *Options) {
	return func(o *Options) { o.Authorizer = a }
}

// WithLogger sets the server logger.
func WithLogger(l logging.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = l }
}

// Handler builds the HTTP routing tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(api chi.Router) {
		api.Get("/health", s.handleHealth)
		api.Post("/prompt", s.handlePrompt)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handlePrompt validates, authorizes, then streams. Every validation
// failure resolves before SSE framing begins; once headers are committed,
// failures travel in-band as error events.
func (s *Server) handlePrompt(w http.ResponseWriter, r *http.Request) {
	req, err := s.validatePromptRequest(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	ctx := r.Context()
	events := s.loop.Run(ctx, req)

	setSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	enc := newSSEEncoder(w)

	for ev := range events {
		if err := enc.Write(ev); err != nil {
			// Client went away; ctx cancellation stops the loop.
			s.logger.Debug("client disconnected mid-stream", "error", err)
			return
		}
	}
}

// validatePromptRequest decodes and authorizes the request body.
func (s *Server) validatePromptRequest(r *http.Request) (core.PromptRequest, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody+1))
	if err != nil {
		return core.PromptRequest{}, core.NewError(core.CodeInvalidRequest, "failed to read request body: %v", err)
	}
	if len(body) > maxRequestBody {
		return core.PromptRequest{}, core.NewError(core.CodeInvalidRequest, "request body exceeds %d bytes", maxRequestBody)
	}

	req, err := core.ParsePromptRequest(body)
	if err != nil {
		return core.PromptRequest{}, err
	}
	if err := s.auth.Authorize(bearerToken(r), req.SessionID); err != nil {
		return core.PromptRequest{}, err
	}
	return req, nil
}

// writeError maps the typed error to an HTTP status and writes it as plain
// JSON. Only reachable before SSE framing commits.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var perr *core.Error
	if !errors.As(err, &perr) {
		perr = core.NewError(core.CodeExecutionFailed, "%v", err)
	}
	writeJSON(w, httpStatus(perr.Code), map[string]any{"error": perr})
}

func httpStatus(code core.ErrorCode) int {
	switch code {
	case core.CodeInvalidRequest, core.CodeInvalidArguments:
		return http.StatusBadRequest
	case core.CodeUnauthorized:
		return http.StatusUnauthorized
	case core.CodeUnknownTool:
		return http.StatusNotFound
	case core.CodeBackendUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
