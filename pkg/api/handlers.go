package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/graintrace/core/pkg/canonicalize"
	"github.com/graintrace/core/pkg/certificate"
	"github.com/graintrace/core/pkg/ledger"
)

// maxBodyBytes bounds event submissions; payloads are metadata, not files.
const maxBodyBytes = 1 << 20

// Server exposes the ledger over HTTP.
type Server struct {
	service  *ledger.Service
	compiler *certificate.Compiler
	limiter  *RateLimiter
	logger   *slog.Logger
}

// NewServer wires the HTTP surface. A nil limiter disables rate limiting.
func NewServer(service *ledger.Service, compiler *certificate.Compiler, limiter *RateLimiter, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		service:  service,
		compiler: compiler,
		limiter:  limiter,
		logger:   logger.With("component", "api"),
	}
}

// Handler builds the routed handler with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/streams/{id}/events", s.handleAppend)
	mux.HandleFunc("GET /v1/streams/{id}/ledger", s.handleLedger)
	mux.HandleFunc("GET /v1/streams/{id}/verify", s.handleVerify)
	mux.HandleFunc("POST /v1/streams/{id}/certificate", s.handleCertificate)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	var h http.Handler = mux
	if s.limiter != nil {
		h = s.limiter.Middleware(h)
	}
	h = LoggingMiddleware(s.logger)(h)
	h = RequestIDMiddleware(h)
	return h
}

// appendBody is the wire form of an event submission.
type appendBody struct {
	EventName   string         `json:"eventName"`
	ActorRole   string         `json:"actorRole"`
	ActorID     string         `json:"actorId"`
	EventData   map[string]any `json:"eventData"`
	ContentRefs []string       `json:"contentRefs"`
	AnchorRef   string         `json:"anchorRef"`
}

func (s *Server) handleAppend(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		WriteBadRequest(w, r, "unreadable request body")
		return
	}

	var req appendBody
	// Decoded with number literals preserved: the payload bytes feed the
	// block digest and must survive as submitted.
	if err := canonicalize.DecodeJSON(body, &req); err != nil {
		WriteBadRequest(w, r, fmt.Sprintf("malformed JSON: %v", err))
		return
	}

	block, err := s.service.Append(r.Context(), ledger.AppendRequest{
		StreamID:    r.PathValue("id"),
		EventName:   ledger.EventName(req.EventName),
		ActorRole:   ledger.ActorRole(req.ActorRole),
		ActorID:     req.ActorID,
		EventData:   req.EventData,
		ContentRefs: req.ContentRefs,
		AnchorRef:   req.AnchorRef,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, block)
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	streamID := r.PathValue("id")
	blocks, err := s.service.Ledger(r.Context(), streamID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"streamId": streamID,
		"blocks":   blocks,
	})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	report, err := s.service.Verify(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleCertificate(w http.ResponseWriter, r *http.Request) {
	if s.compiler == nil {
		WriteErrorR(w, r, http.StatusNotImplemented, "Not Implemented", "certificate compilation is not configured")
		return
	}
	res, err := s.compiler.Compile(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeServiceError maps domain errors onto the problem-detail taxonomy.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *ledger.ValidationError
	switch {
	case errors.As(err, &verr):
		WriteBadRequest(w, r, verr.Error())
	case errors.Is(err, ledger.ErrStreamNotFound):
		WriteNotFound(w, r, "no blocks recorded for this stream")
	case errors.Is(err, ledger.ErrHeadConflict):
		WriteErrorR(w, r, http.StatusConflict, "Conflict", "stream head advanced repeatedly during append; retry the submission")
	case errors.Is(err, ledger.ErrStoreUnavailable):
		WriteUnavailable(w, r, "ledger store is temporarily unavailable")
	default:
		WriteInternal(w, r, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := canonicalize.JCS(v)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Internal Server Error", "response encoding failed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
