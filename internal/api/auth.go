package api

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/roach88/ddnsquorum/internal/capability"
	"github.com/roach88/ddnsquorum/internal/ir"
)

type callerKey struct{}

// CallerFrom returns the authenticated caller stored by requireCaller.
func CallerFrom(ctx context.Context) (ir.Identity, bool) {
	id, ok := ctx.Value(callerKey{}).(ir.Identity)
	return id, ok
}

// requireCaller verifies the bearer capability and stores its subject as the
// request caller.
func (s *Server) requireCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody("UNAUTHENTICATED", "missing bearer token"))
			return
		}
		caller, err := s.tokens.Verify(strings.TrimSpace(token), capability.AudienceAPI)
		if err != nil {
			s.log.Debug("caller rejected", zap.String("path", r.URL.Path), zap.Error(err))
			writeJSON(w, http.StatusUnauthorized, errorBody("UNAUTHENTICATED", err.Error()))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey{}, caller)))
	})
}
