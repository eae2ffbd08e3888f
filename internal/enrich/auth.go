package enrich

import (
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang-jwt/jwt/v5"

	"github.com/datenstrom/datenstrom/internal/cache"
	"github.com/datenstrom/datenstrom/internal/config"
)

const (
	jwksCacheSize = 32
	jwksCacheTTL  = time.Hour
	authLeeway    = 60 * time.Minute
)

// Authentication verifies a bearer token from the captured Authorization
// header and stamps the configured claim into collector_auth. Verification
// uses the configured PEM public key, or a per-issuer JWKS lookup when no
// key is configured. A missing or invalid token is not an error; the event
// just carries no auth.
type Authentication struct {
	subField  string
	aud       string
	issJWKURL map[string]string
	publicKey *rsa.PublicKey
	jwks      *cache.Client
}

// NewAuthentication builds the enrichment from the configuration.
func NewAuthentication(cfg *config.Config, clk clock.Clock) (*Authentication, error) {
	a := &Authentication{
		subField:  cfg.AuthenticationSubField,
		aud:       cfg.AuthenticationAud,
		issJWKURL: cfg.AuthenticationIssJWKURLs,
		jwks:      cache.NewClient(jwksCacheSize, jwksCacheTTL, 0, clk),
	}
	if a.subField == "" {
		a.subField = "sub"
	}
	if cfg.AuthenticationPublicKey != "" {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(cfg.AuthenticationPublicKey))
		if err != nil {
			return nil, fmt.Errorf("parsing authentication public key: %w", err)
		}
		a.publicKey = key
	}
	return a, nil
}

func (*Authentication) Name() string { return "authentication" }

func (a *Authentication) Enrich(sp *Scratchpad) error {
	header, ok := sp.Raw.HeadersMap()["authorization"]
	if !ok {
		return nil
	}
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return nil
	}
	token := strings.TrimSpace(header[len("bearer "):])

	claim, err := a.verify(token)
	if err != nil {
		slog.Warn("authentication enrichment failed", "error", err)
		return nil
	}
	return sp.SetValue("collector_auth", claim)
}

func (a *Authentication) verify(token string) (string, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithLeeway(authLeeway),
	}
	if a.aud != "" {
		options = append(options, jwt.WithAudience(a.aud))
	}
	parsed, err := jwt.Parse(token, a.keyFunc, options...)
	if err != nil {
		return "", fmt.Errorf("invalid jwt token: %w", err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("unexpected claims type %T", parsed.Claims)
	}
	value, ok := claims[a.subField]
	if !ok {
		return "", fmt.Errorf("claim %s missing from jwt token", a.subField)
	}
	claim, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("claim %s is not a string", a.subField)
	}
	return claim, nil
}

func (a *Authentication) keyFunc(token *jwt.Token) (any, error) {
	if a.publicKey != nil {
		return a.publicKey, nil
	}
	issuer, err := token.Claims.GetIssuer()
	if err != nil || issuer == "" {
		return nil, fmt.Errorf("jwt token carries no issuer")
	}
	kid, _ := token.Header["kid"].(string)
	return a.lookupJWK(issuer, kid)
}

// lookupJWK fetches the issuer's JWKS document and builds the RSA public
// key for the token's key id.
func (a *Authentication) lookupJWK(issuer, kid string) (*rsa.PublicKey, error) {
	url := ""
	for pattern, candidate := range a.issJWKURL {
		if strings.Contains(pattern, issuer) {
			url = candidate
			break
		}
	}
	if url == "" {
		url = strings.TrimSuffix(issuer, "/") + "/.well-known/jwks.json"
		slog.Info("no jwks url configured for issuer, using default", "issuer", issuer, "url", url)
	}

	var doc struct {
		Keys []struct {
			Kty string `json:"kty"`
			Kid string `json:"kid"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if !a.jwks.GetJSON(url, nil, &doc) {
		return nil, fmt.Errorf("fetching jwks from %s failed", url)
	}
	for _, key := range doc.Keys {
		if key.Kty != "RSA" {
			continue
		}
		if kid != "" && key.Kid != kid {
			continue
		}
		n, err := base64.RawURLEncoding.DecodeString(key.N)
		if err != nil {
			return nil, fmt.Errorf("invalid jwk modulus: %w", err)
		}
		e, err := base64.RawURLEncoding.DecodeString(key.E)
		if err != nil {
			return nil, fmt.Errorf("invalid jwk exponent: %w", err)
		}
		return &rsa.PublicKey{
			N: new(big.Int).SetBytes(n),
			E: int(new(big.Int).SetBytes(e).Int64()),
		}, nil
	}
	return nil, fmt.Errorf("no matching rsa key in jwks from %s", url)
}
