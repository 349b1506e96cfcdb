package admin

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// jwtVerifier checks bearer tokens against a single shared secret. Unlike
// the reference JWTManager this never issues tokens of its own — the
// admin plane authenticates operators who already hold a token minted
// out-of-band, it does not run its own login flow.
type jwtVerifier struct {
	secret []byte
}

func newJWTVerifier(secret string) *jwtVerifier {
	return &jwtVerifier{secret: []byte(secret)}
}

func (v *jwtVerifier) verify(tokenString string) error {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return errors.New("invalid token")
	}
	return nil
}

func extractBearer(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return "", errors.New("missing bearer token")
	}
	return strings.TrimPrefix(h, prefix), nil
}

// requireAuth wraps next so that it only runs once a valid bearer token
// has been presented. When no secret is configured every request is
// rejected, since an unconfigured secret must never be treated as "auth
// disabled" for mutating routes.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.jwt == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "admin JWT secret not configured")
			return
		}
		token, err := extractBearer(r)
		if err != nil {
			writeJSONError(w, http.StatusUnauthorized, err.Error())
			return
		}
		if err := s.jwt.verify(token); err != nil {
			writeJSONError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next(w, r)
	}
}
