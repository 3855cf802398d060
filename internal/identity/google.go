// Package identity verifies Google sign-in tokens and issues the session
// tokens the mobile client uses afterwards.
package identity

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tidwall/gjson"
	"github.com/valyala/fasthttp"

	"dolphinpod/internal/apperr"
)

const (
	DefaultCertsURL = "https://www.googleapis.com/oauth2/v3/certs"

	keyCacheSize   = 32
	defaultTimeout = 5 * time.Second

	// minRefreshInterval bounds how often an unknown kid can trigger a
	// certs fetch.
	minRefreshInterval = time.Minute
)

var googleIssuers = map[string]bool{
	"accounts.google.com":         true,
	"https://accounts.google.com": true,
}

// Identity is what a verified Google ID token says about its holder.
type Identity struct {
	Subject string
	Email   string
	Name    string
	Picture string
}

type googleClaims struct {
	Email         string `json:"email"`
	EmailVerified any    `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	jwt.RegisteredClaims
}

func (c *googleClaims) verified() bool {
	switch v := c.EmailVerified.(type) {
	case bool:
		return v
	case string:
		return v == "true"
	}
	return false
}

// GoogleVerifier checks RS256 ID tokens against Google's published keys.
// Keys are cached by kid and refetched when an unknown kid shows up.
type GoogleVerifier struct {
	clientID string
	certsURL string
	client   *fasthttp.Client
	keys     *lru.Cache[string, *rsa.PublicKey]
	now      func() time.Time

	fetchMu     sync.Mutex
	lastRefresh time.Time
}

func NewGoogleVerifier(clientID, certsURL string) (*GoogleVerifier, error) {
	if certsURL == "" {
		certsURL = DefaultCertsURL
	}
	cache, err := lru.New[string, *rsa.PublicKey](keyCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create key cache: %w", err)
	}
	return &GoogleVerifier{
		clientID: clientID,
		certsURL: certsURL,
		client:   &fasthttp.Client{Name: "dolphinpod"},
		keys:     cache,
		now:      time.Now,
	}, nil
}

// Verify validates the token signature, audience, issuer and expiry and
// requires a verified email.
func (v *GoogleVerifier) Verify(ctx context.Context, idToken string) (Identity, error) {
	if v.clientID == "" {
		return Identity{}, apperr.Internal(errors.New("google client id is not configured"))
	}
	idToken = strings.TrimSpace(idToken)
	if idToken == "" {
		return Identity{}, apperr.Validation("id_token is required")
	}

	var fetchErr error
	claims := &googleClaims{}
	token, err := jwt.ParseWithClaims(idToken, claims, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token has no kid")
		}
		key, err := v.key(ctx, kid)
		if err != nil {
			fetchErr = err
			return nil, err
		}
		if key == nil {
			return nil, fmt.Errorf("unknown signing key %q", kid)
		}
		return key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(v.clientID),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if fetchErr != nil {
		return Identity{}, apperr.Upstream(apperr.CategoryIdentityProvider, fetchErr)
	}
	if err != nil || !token.Valid {
		return Identity{}, apperr.Unauthorized("invalid google id token")
	}
	if !googleIssuers[claims.Issuer] {
		return Identity{}, apperr.Unauthorized("invalid google id token issuer")
	}
	if claims.Email == "" || !claims.verified() {
		return Identity{}, apperr.Unauthorized("google account email is not verified")
	}

	return Identity{
		Subject: claims.Subject,
		Email:   strings.ToLower(claims.Email),
		Name:    claims.Name,
		Picture: claims.Picture,
	}, nil
}

// key returns the cached key for kid, refreshing the set on a miss unless
// it was refreshed within minRefreshInterval. A nil key with nil error
// means Google does not publish that kid.
func (v *GoogleVerifier) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if k, ok := v.keys.Get(kid); ok {
		return k, nil
	}

	v.fetchMu.Lock()
	defer v.fetchMu.Unlock()
	if k, ok := v.keys.Get(kid); ok {
		return k, nil
	}
	if !v.lastRefresh.IsZero() && v.now().Sub(v.lastRefresh) < minRefreshInterval {
		return nil, nil
	}
	if err := v.refresh(ctx); err != nil {
		return nil, err
	}
	v.lastRefresh = v.now()
	k, _ := v.keys.Get(kid)
	return k, nil
}

func (v *GoogleVerifier) refresh(ctx context.Context) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(v.certsURL)
	req.Header.SetMethod(fasthttp.MethodGet)

	timeout := defaultTimeout
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
	}
	if err := v.client.DoTimeout(req, resp, timeout); err != nil {
		return fmt.Errorf("fetch google certs: %w", err)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return fmt.Errorf("fetch google certs: status %d", resp.StatusCode())
	}

	keys, err := parseJWKS(resp.Body())
	if err != nil {
		return err
	}
	for kid, k := range keys {
		v.keys.Add(kid, k)
	}
	return nil
}

// parseJWKS extracts the RSA keys of a JWK set.
func parseJWKS(body []byte) (map[string]*rsa.PublicKey, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New("google certs: invalid json")
	}
	out := map[string]*rsa.PublicKey{}
	var parseErr error
	gjson.GetBytes(body, "keys").ForEach(func(_, k gjson.Result) bool {
		if k.Get("kty").String() != "RSA" {
			return true
		}
		kid := k.Get("kid").String()
		pub, err := rsaKey(k.Get("n").String(), k.Get("e").String())
		if err != nil {
			parseErr = fmt.Errorf("google certs: key %q: %w", kid, err)
			return false
		}
		out[kid] = pub
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	if len(out) == 0 {
		return nil, errors.New("google certs: no rsa keys")
	}
	return out, nil
}

func rsaKey(n, e string) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, fmt.Errorf("modulus: %w", err)
	}
	eb, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, fmt.Errorf("exponent: %w", err)
	}
	exp := new(big.Int).SetBytes(eb)
	if !exp.IsInt64() || exp.Int64() > 1<<31-1 || exp.Int64() < 3 {
		return nil, errors.New("exponent out of range")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: int(exp.Int64())}, nil
}
