package rpc

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"matchpool/core/types"
)

// CallerHeader carries the caller identity when bearer authentication is
// disabled.
const CallerHeader = "X-Caller"

var (
	errMissingCaller = errors.New("caller identity required")
	errMissingToken  = errors.New("missing bearer token")
)

// AuthConfig configures how callers are identified. With an empty secret the
// caller is taken from the X-Caller header, which is only suitable for local
// deployments.
type AuthConfig struct {
	HMACSecret string
	Issuer     string
	ClockSkew  time.Duration
}

// Authenticator resolves the identity an RPC request acts for.
type Authenticator struct {
	secret []byte
	issuer string
	skew   time.Duration
}

func NewAuthenticator(cfg AuthConfig) *Authenticator {
	skew := cfg.ClockSkew
	if skew <= 0 {
		skew = 2 * time.Minute
	}
	return &Authenticator{
		secret: []byte(strings.TrimSpace(cfg.HMACSecret)),
		issuer: strings.TrimSpace(cfg.Issuer),
		skew:   skew,
	}
}

// Enabled reports whether bearer tokens are required.
func (a *Authenticator) Enabled() bool {
	return a != nil && len(a.secret) > 0
}

// Caller returns the identity the request acts for. Anonymous requests yield
// the zero identity and no error when allowAnonymous is set.
func (a *Authenticator) Caller(r *http.Request, allowAnonymous bool) (types.Identity, error) {
	if !a.Enabled() {
		raw := strings.TrimSpace(r.Header.Get(CallerHeader))
		if raw == "" {
			if allowAnonymous {
				return types.Identity{}, nil
			}
			return types.Identity{}, errMissingCaller
		}
		return types.ParseIdentity(raw)
	}
	token := extractBearer(r.Header.Get("Authorization"))
	if token == "" {
		if allowAnonymous {
			return types.Identity{}, nil
		}
		return types.Identity{}, errMissingToken
	}
	return a.verify(token)
}

func (a *Authenticator) verify(tokenString string) (types.Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithLeeway(a.skew),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return types.Identity{}, err
	}
	if !token.Valid {
		return types.Identity{}, errors.New("token invalid")
	}
	id, err := types.ParseIdentity(claims.Subject)
	if err != nil {
		return types.Identity{}, fmt.Errorf("subject: %w", err)
	}
	return id, nil
}

// IssueToken signs a bearer token binding subject for ttl.
func IssueToken(secret, issuer string, subject types.Identity, ttl time.Duration) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("token secret required")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject.String(),
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(strings.TrimSpace(secret)))
}

func extractBearer(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
