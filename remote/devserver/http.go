package devserver

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/versini-org/auth-client/remote"
)

// Routes returns a router serving the endpoints at [remote.DefaultPaths].
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post(remote.DefaultPaths.PreAuth, handle(s, s.RequestPreAuthCode, func(r remote.PreAuthResponse) bool { return r.Status }))
	r.Post(remote.DefaultPaths.Exchange, handle(s, s.ExchangeForTokens, func(r remote.ExchangeResponse) bool { return r.Status }))
	r.Post(remote.DefaultPaths.Refresh, handle(s, s.RefreshTokens, func(r remote.RefreshResponse) bool {
		return r.Status == remote.RefreshSuccess
	}))
	r.Post(remote.DefaultPaths.Logout, s.logoutHandler)
	return r
}

// handle decodes a JSON request, calls fn and writes its response. Rejections are
// answered with 401 and the response body so clients see both signals.
func handle[Req, Resp any](s *Server, fn func(context.Context, Req) (Resp, error), ok func(Resp) bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req Req
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
			http.Error(w, "malformed request", http.StatusBadRequest)
			return
		}
		resp, err := fn(r.Context(), req)
		if err != nil {
			s.cfg.Logger.Error("devserver: request failed", "path", r.URL.Path, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		status := http.StatusOK
		if !ok(resp) {
			status = http.StatusUnauthorized
		}
		writeJSON(w, status, resp)
	}
}

func (s *Server) logoutHandler(w http.ResponseWriter, r *http.Request) {
	var req remote.LogoutRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		http.Error(w, "malformed request", http.StatusBadRequest)
		return
	}
	if err := s.NotifyLogout(r.Context(), req); err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
