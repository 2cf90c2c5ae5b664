package server

import (
	"errors"
	"net/http"

	"github.com/acmecorp/docs-mcp/internal/auth"
	"github.com/acmecorp/docs-mcp/internal/httputil"
)

const (
	authRealm           = "docs-mcp"
	unauthorizedMessage = "unauthorized: missing, invalid or expired bearer token"
)

// authenticateHTTP extracts the bearer token from r and runs it through the
// guard. A missing or malformed header reaches the validator as an empty
// token so the rejection is audited like any other.
func (s *HTTPServer) authenticateHTTP(r *http.Request, meta requestMeta) (Principal, error) {
	raw, _ := auth.ParseBearer(r.Header.Get("Authorization"))
	return s.guard.Authenticate(r.Context(), raw, meta)
}

// authFailureResponse maps an authentication error to an HTTP status and a
// client message. Reasons stay in the audit log.
func authFailureResponse(err error) (int, string) {
	if errors.Is(err, ErrRevocationUnavailable) {
		return http.StatusServiceUnavailable, "token revocation check unavailable"
	}
	return http.StatusUnauthorized, unauthorizedMessage
}

func setAuthChallenge(w http.ResponseWriter, status int) {
	if status != http.StatusUnauthorized {
		return
	}
	w.Header().Set("WWW-Authenticate", `Bearer realm="`+authRealm+`", error="invalid_token"`)
}

func respondAuthProblem(w http.ResponseWriter, r *http.Request, err error) {
	status, message := authFailureResponse(err)
	setAuthChallenge(w, status)
	httputil.RespondProblem(w, r, status, message)
}
