package intake

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	pferrors "github.com/otherjamesbrown/fathom-etl/pkg/errors"
	"github.com/otherjamesbrown/fathom-etl/pkg/ingest/fathom"
	"github.com/otherjamesbrown/fathom-etl/pkg/logging"
)

// HeaderRequestID carries a caller supplied request identifier.
const HeaderRequestID = "X-Request-ID"

// Ingester is the part of Service the handler needs.
type Ingester interface {
	Ingest(ctx context.Context, hook *fathom.Webhook) (*Result, error)
}

// Handler accepts Fathom webhook deliveries over HTTP.
type Handler struct {
	ingester Ingester
	verifier *Verifier
	maxBody  int64
	logger   logging.Logger
}

// NewHandler creates a Handler. A nil verifier accepts unsigned deliveries;
// maxBody <= 0 disables the body limit.
func NewHandler(ingester Ingester, verifier *Verifier, maxBody int64, logger logging.Logger) *Handler {
	return &Handler{
		ingester: ingester,
		verifier: verifier,
		maxBody:  maxBody,
		logger:   logger.With(logging.F("component", "webhook_handler")),
	}
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get(HeaderRequestID)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set(HeaderRequestID, requestID)
	ctx := context.WithValue(r.Context(), logging.RequestIDKey, requestID)
	log := h.logger.WithContext(ctx)

	body := r.Body
	if h.maxBody > 0 {
		body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{Error: "payload too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "failed to read body"})
		return
	}

	if h.verifier != nil {
		if err := h.verifier.Verify(r.Header, data); err != nil {
			log.Warn("Rejected webhook", logging.Err(err))
			status := http.StatusBadRequest
			if pferrors.IsUnauthorized(err) {
				status = http.StatusUnauthorized
			}
			writeJSON(w, status, ErrorResponse{Error: err.Error()})
			return
		}
	}

	var hook fathom.Webhook
	if err := json.Unmarshal(data, &hook); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON payload: " + err.Error()})
		return
	}

	res, err := h.ingester.Ingest(ctx, &hook)
	if err != nil {
		code := pferrors.CodeOf(err)
		writeJSON(w, statusFor(code), ErrorResponse{Error: err.Error(), Code: string(code)})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// statusFor maps a pipeline code to an HTTP status. Retryable failures get
// 503 so the sender redelivers.
func statusFor(code pferrors.ErrorCode) int {
	switch {
	case code == pferrors.ErrParseError, code == pferrors.ErrEmptyContent:
		return http.StatusUnprocessableEntity
	case code == pferrors.ErrDuplicateContent:
		return http.StatusConflict
	case pferrors.IsRetryable(code):
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
