package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/roach88/ddnsquorum/internal/ir"
)

// opFunc runs one operation and returns the success status and body.
type opFunc func(r *http.Request) (int, any, error)

// op adapts fn into a handler that writes JSON, maps protocol errors onto
// HTTP statuses and counts the outcome.
func (s *Server) op(name string, fn opFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status, body, err := fn(r)
		if err != nil {
			code := ir.CodeOf(err)
			status := statusOf(code)
			if code == "" {
				code = "INTERNAL"
				s.log.Error("operation failed", zap.String("op", name), zap.Error(err))
			}
			s.metrics.observe(name, string(code))
			writeJSON(w, status, errorBody(string(code), errorMessage(err)))
			return
		}
		s.metrics.observe(name, "ok")
		writeJSON(w, status, body)
	})
}

// statusOf maps a protocol error code onto an HTTP status.
func statusOf(code ir.ErrorCode) int {
	switch code {
	case ir.ErrCodeNotFound:
		return http.StatusNotFound
	case ir.ErrCodeAlreadyExists:
		return http.StatusConflict
	case ir.ErrCodeUnauthorized, ir.ErrCodeUnauthorizedFinalize, ir.ErrCodeNotVerifier:
		return http.StatusForbidden
	case ir.ErrCodeWrongEpoch, ir.ErrCodeAggregateMismatch, ir.ErrCodeNotEnoughReceipts,
		ir.ErrCodeNotEnoughStakeWeight, ir.ErrCodeTTLOutOfRange, ir.ErrCodeTooManyVerifiers:
		return http.StatusUnprocessableEntity
	case ir.ErrCodeInvalidArgument, ir.ErrCodeBadTTLCaps, ir.ErrCodeBadEpochLen:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func errorMessage(err error) string {
	var pe *ir.ProtocolError
	if errors.As(err, &pe) {
		return pe.Message
	}
	return err.Error()
}

type errorPayload struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func errorBody(code, message string) errorPayload {
	return errorPayload{Error: errorDetail{Code: code, Message: message}}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// decode reads a JSON request body into v, rejecting unknown fields.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return ir.NewInvalidArgument("request body: %v", err)
	}
	return nil
}
