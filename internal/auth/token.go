package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/boost-marketplace/internal/config"
	"github.com/boost-marketplace/internal/domain"
)

// UserMetadata is the profile data the identity provider embeds in its tokens.
type UserMetadata struct {
	Name     string `json:"name,omitempty"`
	FullName string `json:"full_name,omitempty"`
}

// Claims are the identity provider's access token claims.
type Claims struct {
	Email        string       `json:"email"`
	UserMetadata UserMetadata `json:"user_metadata"`
	jwt.RegisteredClaims
}

// DisplayName picks the best available name for the token's user.
func (c Claims) DisplayName() string {
	switch {
	case c.UserMetadata.Name != "":
		return c.UserMetadata.Name
	case c.UserMetadata.FullName != "":
		return c.UserMetadata.FullName
	}
	if at := strings.Index(c.Email, "@"); at > 0 {
		return c.Email[:at]
	}
	return c.Email
}

// Verifier checks HS256 access tokens issued by the identity provider.
type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewVerifier creates a verifier for the configured shared secret.
func NewVerifier(cfg *config.AuthConfig) *Verifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(cfg.Leeway),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	return &Verifier{
		secret: []byte(cfg.JWTSecret),
		parser: jwt.NewParser(opts...),
	}
}

// Verify parses a token and returns the identity it carries. The session's
// role is left empty; roles come from the stored profile.
func (v *Verifier) Verify(token string) (domain.Session, error) {
	claims := &Claims{}
	_, err := v.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		return domain.Session{}, fmt.Errorf("%w: %w", domain.ErrUnauthenticated, err)
	}
	if claims.Subject == "" {
		return domain.Session{}, fmt.Errorf("%w: token has no subject", domain.ErrUnauthenticated)
	}

	return domain.Session{
		UserID: claims.Subject,
		Email:  claims.Email,
		Name:   claims.DisplayName(),
	}, nil
}

// Issuer signs tokens with the same shared secret. It backs the devtoken
// command and tests; production tokens come from the identity provider.
type Issuer struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
}

// NewIssuer creates a token issuer for the configured shared secret.
func NewIssuer(cfg *config.AuthConfig) (*Issuer, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("auth.jwt_secret is required to issue tokens")
	}
	return &Issuer{
		secret:   []byte(cfg.JWTSecret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		ttl:      cfg.TokenTTL,
	}, nil
}

// Issue signs a token for the given identity.
func (i *Issuer) Issue(userID, email, name string, now time.Time) (string, error) {
	claims := Claims{
		Email:        email,
		UserMetadata: UserMetadata{Name: name},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	if i.audience != "" {
		claims.Audience = jwt.ClaimStrings{i.audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}
