// Package token verifies bearer tokens and turns them into filekeep identities.
//
// Two key sources are supported and may be combined:
//
//   - shared HMAC secrets looked up by the token "kid" header (HS256)
//   - a remote JWKS endpoint for asymmetric keys (RS256, ES256, EdDSA)
//
// Verification is a pure function of the token, the clock and the key set.
package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/sagarc03/filekeep"
)

// RoleAdmin in the roles claim grants every scope.
const RoleAdmin = "admin"

var hmacMethods = []string{"HS256", "HS384", "HS512"}

var asymmetricMethods = []string{"RS256", "RS384", "RS512", "ES256", "ES384", "PS256", "EdDSA"}

// Claims are the JWT claims filekeep reads. Scopes may arrive either as the
// OAuth2 space separated "scope" string or as a "scopes" array.
type Claims struct {
	jwt.RegisteredClaims
	Scope  string   `json:"scope,omitempty"`
	Scopes []string `json:"scopes,omitempty"`
	Roles  []string `json:"roles,omitempty"`
}

// GrantedScopes merges both scope formats and expands the admin role.
func (c *Claims) GrantedScopes() []filekeep.Scope {
	var out []filekeep.Scope
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s != "" && !slices.Contains(out, filekeep.Scope(s)) {
			out = append(out, filekeep.Scope(s))
		}
	}

	for _, s := range strings.Fields(c.Scope) {
		add(s)
	}
	for _, s := range c.Scopes {
		add(s)
	}
	if slices.Contains(c.Roles, RoleAdmin) {
		add(string(filekeep.ScopeRead))
		add(string(filekeep.ScopeWrite))
		add(string(filekeep.ScopeAdmin))
	}
	return out
}

// Config controls which tokens are accepted.
type Config struct {
	Issuer   string        `mapstructure:"issuer"`
	Audience string        `mapstructure:"audience"`
	Leeway   time.Duration `mapstructure:"leeway"`
	// JWKSURL enables asymmetric keys fetched from a JWKS endpoint.
	JWKSURL         string        `mapstructure:"jwks_url"`
	RefreshInterval time.Duration `mapstructure:"jwks_refresh_interval"`
	ClientTimeout   time.Duration `mapstructure:"jwks_client_timeout"`
}

// Verifier validates bearer tokens.
type Verifier struct {
	secrets filekeep.SecretStore
	jwks    keyfunc.Keyfunc
	parser  *jwt.Parser
}

// NewVerifier builds a verifier over the HMAC secrets and, when cfg.JWKSURL
// is set, a refreshing JWKS key set. Either source may be absent but not both.
func NewVerifier(cfg Config, secrets filekeep.SecretStore, logger *slog.Logger) (*Verifier, error) {
	var jwks keyfunc.Keyfunc

	if cfg.JWKSURL != "" {
		if logger == nil {
			logger = slog.Default()
		}
		timeout := cfg.ClientTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		refresh := cfg.RefreshInterval
		if refresh <= 0 {
			refresh = time.Hour
		}

		storage, err := jwkset.NewStorageFromHTTP(cfg.JWKSURL, jwkset.HTTPClientStorageOptions{
			Client:                    &http.Client{Timeout: timeout},
			NoErrorReturnFirstHTTPReq: true,
			RefreshInterval:           refresh,
			RefreshErrorHandler: func(_ context.Context, err error) {
				logger.Error("jwks refresh failed", "url", cfg.JWKSURL, "error", err)
			},
		})
		if err != nil {
			return nil, fmt.Errorf("create jwks storage: %w", err)
		}

		jwks, err = keyfunc.New(keyfunc.Options{Storage: storage})
		if err != nil {
			return nil, fmt.Errorf("create jwks keyfunc: %w", err)
		}
	}

	return NewVerifierWithKeyfunc(cfg, secrets, jwks)
}

// NewVerifierWithKeyfunc builds a verifier around an existing JWKS keyfunc.
// jwks may be nil.
func NewVerifierWithKeyfunc(cfg Config, secrets filekeep.SecretStore, jwks keyfunc.Keyfunc) (*Verifier, error) {
	var methods []string
	if secrets != nil {
		methods = append(methods, hmacMethods...)
	}
	if jwks != nil {
		methods = append(methods, asymmetricMethods...)
	}
	if len(methods) == 0 {
		return nil, errors.New("token verifier: no signing keys configured")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(methods),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return &Verifier{secrets: secrets, jwks: jwks, parser: jwt.NewParser(opts...)}, nil
}

// Verify parses raw and returns the identity it carries. Every failure wraps
// filekeep.ErrUnauthenticated.
func (v *Verifier) Verify(ctx context.Context, raw string) (filekeep.Identity, error) {
	if raw == "" {
		return filekeep.Identity{}, fmt.Errorf("%w: empty token", filekeep.ErrUnauthenticated)
	}

	claims := &Claims{}
	tok, err := v.parser.ParseWithClaims(raw, claims, v.keyFunc(ctx))
	if err != nil {
		return filekeep.Identity{}, fmt.Errorf("%w: %w", filekeep.ErrUnauthenticated, err)
	}
	if !tok.Valid {
		return filekeep.Identity{}, fmt.Errorf("%w: invalid token", filekeep.ErrUnauthenticated)
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return filekeep.Identity{}, fmt.Errorf("%w: missing subject", filekeep.ErrUnauthenticated)
	}

	return filekeep.Identity{Subject: sub, Scopes: claims.GrantedScopes()}, nil
}

func (v *Verifier) keyFunc(ctx context.Context) jwt.Keyfunc {
	return func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); ok {
			if v.secrets == nil {
				return nil, errors.New("hmac tokens are not accepted")
			}
			kid, _ := tok.Header["kid"].(string)
			if kid == "" {
				return nil, errors.New("missing kid header")
			}
			secret, err := v.secrets.Lookup(kid)
			if err != nil {
				return nil, err
			}
			return []byte(secret), nil
		}

		if v.jwks == nil {
			return nil, fmt.Errorf("unexpected signing method %s", tok.Method.Alg())
		}
		return v.jwks.KeyfuncCtx(ctx)(tok)
	}
}

// Issue signs an HS256 token for subject. It is used by operator tooling and
// tests; production tokens come from the identity provider.
func Issue(keyID, secret, subject string, scopes []filekeep.Scope, ttl time.Duration, now time.Time) (string, error) {
	return IssueFor("", "", keyID, secret, subject, scopes, ttl, now)
}

// IssueFor is Issue with issuer and audience claims. Empty values are omitted.
func IssueFor(issuer, audience, keyID, secret, subject string, scopes []filekeep.Scope, ttl time.Duration, now time.Time) (string, error) {
	names := make([]string, len(scopes))
	for i, s := range scopes {
		names[i] = string(s)
	}

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Scope: strings.Join(names, " "),
	}
	if audience != "" {
		claims.Audience = jwt.ClaimStrings{audience}
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tok.Header["kid"] = keyID

	signed, err := tok.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
