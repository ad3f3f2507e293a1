package http

import (
	"context"
	"net/http"

	applog "gastos/internal/log"
)

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	s.authenticate(w, r, applog.OpSignIn, func(ctx context.Context, c *client) error {
		return c.session.SignInWithPassword(ctx, req.Email, req.Password)
	})
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	s.authenticate(w, r, applog.OpSignUp, func(ctx context.Context, c *client) error {
		return c.session.SignUpWithPassword(ctx, req.Email, req.Password, sanitizeInput(req.DisplayName))
	})
}

func (s *Server) handleGoogle(w http.ResponseWriter, r *http.Request) {
	var req googleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	s.authenticate(w, r, applog.OpSignIn, func(ctx context.Context, c *client) error {
		return c.session.SignInWithGoogleIDToken(ctx, req.IDToken)
	})
}

// authenticate runs op on a fresh client and, on success, registers it and
// hands out its token. A caller that was already signed in gets its previous
// client signed out.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request, op string, run func(context.Context, *client) error) {
	c := newClient(s.svc, s.loc, s.now())
	if err := run(r.Context(), c); err != nil {
		c.close()
		writeError(w, r, err)
		return
	}

	acc, ok := c.gw.Account()
	if !ok {
		// Signed out between the command and here
		c.close()
		writeError(w, r, errInvalidToken)
		return
	}
	token, expires, err := s.tokens.issue(c.id, acc.ID)
	if err != nil {
		c.close()
		writeError(w, r, err)
		return
	}

	if previous, err := s.clientFromRequest(r); err == nil {
		s.clients.remove(previous.id)
	}
	s.clients.add(c)

	applog.FromContext(r.Context()).InfoContext(r.Context(), "Client signed in",
		applog.FieldOperation, op,
		applog.FieldAccountID, acc.ID,
		applog.FieldSessionID, c.id)

	writeJSON(w, http.StatusOK, authResponse{
		Token:     token,
		ExpiresAt: expires.UnixMilli(),
		Account:   acc,
		Session:   c.session.Snapshot(),
	})
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request, c *client) {
	if err := c.session.SignOut(); err != nil {
		writeError(w, r, err)
		return
	}
	s.clients.remove(c.id)

	applog.FromContext(r.Context()).InfoContext(r.Context(), "Client signed out",
		applog.FieldOperation, applog.OpSignOut,
		applog.FieldSessionID, c.id)
	writeJSON(w, http.StatusOK, sessionResponse{Session: c.session.Snapshot()})
}

func (s *Server) handleSession(w http.ResponseWriter, _ *http.Request, c *client) {
	resp := sessionResponse{Session: c.session.Snapshot()}
	if acc, ok := c.gw.Account(); ok {
		resp.Account = &acc
	}
	writeJSON(w, http.StatusOK, resp)
}
