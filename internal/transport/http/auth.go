package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"quiz-live-service/internal/domain"
)

const roleFacilitator = "facilitator"

var errUnauthorized = errors.New("missing or invalid facilitator token")

// Claims identify the facilitator of one live session.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator issues and checks facilitator tokens (HS256, subject = live id).
type Authenticator struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewAuthenticator(secret string, ttl time.Duration) *Authenticator {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Authenticator{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a token for the facilitator of liveID.
func (a *Authenticator) Issue(liveID string) (string, error) {
	now := a.now()
	claims := &Claims{
		Role: roleFacilitator,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   liveID,
			Issuer:    "quiz-live",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// Parse validates the signature, expiry and role.
func (a *Authenticator) Parse(raw string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil || !token.Valid {
		return nil, errUnauthorized
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || claims.Role != roleFacilitator || claims.Subject == "" {
		return nil, errUnauthorized
	}
	return claims, nil
}

// Authorize checks that the request carries the facilitator token of liveID. The token is read
// from the Authorization header, or from the "token" query parameter for WebSocket upgrades.
func (a *Authenticator) Authorize(r *http.Request, liveID string) error {
	raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if raw == "" || raw == r.Header.Get("Authorization") {
		raw = r.URL.Query().Get("token")
	}
	if raw == "" {
		return errUnauthorized
	}
	claims, err := a.Parse(raw)
	if err != nil {
		return err
	}
	if claims.Subject != liveID {
		return domain.ErrForbidden
	}
	return nil
}

// facilitatorOnly guards a route. resolve maps the request to the live session it acts on.
func (h *Handler) facilitatorOnly(resolve func(*http.Request) (string, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			liveID, err := resolve(r)
			if err != nil {
				h.writeError(w, r, err)
				return
			}
			if err := h.auth.Authorize(r, liveID); err != nil {
				h.writeError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
