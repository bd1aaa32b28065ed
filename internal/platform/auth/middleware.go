package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultRoleClaim    = "role"
	defaultFallbackRole = RoleUser
	defaultLeeway       = 30 * time.Second
)

var (
	// ErrTokenExpired signals that the provided token has expired.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrTokenInvalid signals that the provided token failed verification.
	ErrTokenInvalid = errors.New("auth: token invalid")
)

// tokenClaims is the JWT payload the API issues and accepts.
type tokenClaims struct {
	Email  string `json:"email,omitempty"`
	Role   any    `json:"role,omitempty"`
	Locale string `json:"locale,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator verifies HMAC-signed bearer tokens and attaches the identity
// to the request context.
type Authenticator struct {
	secret       []byte
	issuer       string
	audience     string
	fallbackRole string
	leeway       time.Duration
	now          func() time.Time
}

// Option customises Authenticator behaviour.
type Option func(*Authenticator)

// WithIssuer requires the iss claim to match.
func WithIssuer(issuer string) Option {
	return func(a *Authenticator) {
		a.issuer = strings.TrimSpace(issuer)
	}
}

// WithAudience requires the aud claim to contain the value.
func WithAudience(audience string) Option {
	return func(a *Authenticator) {
		a.audience = strings.TrimSpace(audience)
	}
}

// WithFallbackRole sets the role assumed when the token carries none.
func WithFallbackRole(role string) Option {
	return func(a *Authenticator) {
		role = normaliseRole(role)
		if role != "" {
			a.fallbackRole = role
		}
	}
}

// WithLeeway sets the clock skew tolerated when checking exp/nbf.
func WithLeeway(d time.Duration) Option {
	return func(a *Authenticator) {
		if d >= 0 {
			a.leeway = d
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAuthenticator constructs an Authenticator over the shared signing secret.
func NewAuthenticator(secret []byte, opts ...Option) (*Authenticator, error) {
	if len(secret) == 0 {
		return nil, errors.New("auth: signing secret is required")
	}
	a := &Authenticator{
		secret:       secret,
		fallbackRole: defaultFallbackRole,
		leeway:       defaultLeeway,
		now:          time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a, nil
}

// Verify parses and validates a raw token, returning the caller's identity.
func (a *Authenticator) Verify(tokenStr string) (*Identity, error) {
	if a == nil || len(a.secret) == 0 {
		return nil, ErrTokenInvalid
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg()}),
		jwt.WithLeeway(a.leeway),
		jwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(a.issuer))
	}
	if a.audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(a.audience))
	}

	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, parserOpts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	uid := strings.TrimSpace(claims.Subject)
	if uid == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}

	identity := &Identity{
		UID:    uid,
		Email:  strings.TrimSpace(claims.Email),
		Locale: strings.TrimSpace(claims.Locale),
		Roles:  rolesFromClaim(claims.Role),
	}
	if len(identity.Roles) == 0 && a.fallbackRole != "" {
		identity.Roles = []string{a.fallbackRole}
	}
	return identity, nil
}

// IssueToken signs a token for the given identity. Used by tests and tooling;
// production tokens come from the identity provider sharing the secret.
func (a *Authenticator) IssueToken(identity Identity, ttl time.Duration) (string, error) {
	if a == nil || len(a.secret) == 0 {
		return "", errors.New("auth: authenticator not initialised")
	}
	now := a.now().UTC()
	claims := tokenClaims{
		Email:  identity.Email,
		Locale: identity.Locale,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UID,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if a.audience != "" {
		claims.Audience = jwt.ClaimStrings{a.audience}
	}
	if len(identity.Roles) == 1 {
		claims.Role = identity.Roles[0]
	} else if len(identity.Roles) > 1 {
		claims.Role = identity.Roles
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// RequireAuth verifies the Authorization bearer token and ensures allowed roles.
func (a *Authenticator) RequireAuth(allowedRoles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(allowedRoles))
	for _, role := range allowedRoles {
		role = normaliseRole(role)
		if role == "" {
			continue
		}
		allowed[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				respondAuthError(w, http.StatusUnauthorized, "unauthenticated", "authorization header missing or invalid")
				return
			}

			identity, err := a.Verify(tokenStr)
			if err != nil {
				respondVerificationError(w, err)
				return
			}

			if len(allowed) > 0 && !hasAllowedRole(identity.Roles, allowed) {
				respondAuthError(w, http.StatusForbidden, "insufficient_role", "identity does not have required role")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

func hasAllowedRole(identityRoles []string, allowed map[string]struct{}) bool {
	for _, role := range identityRoles {
		if _, ok := allowed[normaliseRole(role)]; ok {
			return true
		}
	}
	return false
}

func rolesFromClaim(raw any) []string {
	switch v := raw.(type) {
	case string:
		role := normaliseRole(v)
		if role == "" {
			return nil
		}
		return []string{role}
	case []any:
		out := make([]string, 0, len(v))
		seen := make(map[string]struct{}, len(v))
		for _, value := range v {
			str, ok := value.(string)
			if !ok {
				continue
			}
			role := normaliseRole(str)
			if role == "" {
				continue
			}
			if _, exists := seen[role]; exists {
				continue
			}
			seen[role] = struct{}{}
			out = append(out, role)
		}
		return out
	case []string:
		out := make([]string, 0, len(v))
		for _, item := range v {
			role := normaliseRole(item)
			if role != "" {
				out = append(out, role)
			}
		}
		return out
	default:
		return nil
	}
}

func normaliseRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}

func extractBearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return "", false
	}

	if !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}

	return token, true
}

func respondAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error":   code,
		"message": message,
		"status":  status,
	})
}

func respondVerificationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrTokenExpired):
		respondAuthError(w, http.StatusUnauthorized, "token_expired", "bearer token expired")
	default:
		respondAuthError(w, http.StatusUnauthorized, "invalid_token", "bearer token verification failed")
	}
}
