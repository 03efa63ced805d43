package auth

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"log"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-resty/resty/v2"
	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims are the claims of a Supabase Auth access token.
type SessionClaims struct {
	jwt.RegisteredClaims
	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

const sessionAudience = "authenticated"

type jwksKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwksResponse struct {
	Keys []jwksKey `json:"keys"`
}

// SessionVerifier checks Supabase access tokens. HS256 tokens are checked
// against the project secret; asymmetric tokens against the project JWKS.
type SessionVerifier struct {
	secret  []byte
	jwksURL string
	client  *resty.Client

	mu        sync.RWMutex
	keys      map[string]crypto.PublicKey
	fetchedAt time.Time
	cacheTTL  time.Duration
}

// NewSessionVerifier builds a verifier. Either argument may be empty, not both.
func NewSessionVerifier(secret, jwksURL string) *SessionVerifier {
	return &SessionVerifier{
		secret:   []byte(secret),
		jwksURL:  jwksURL,
		client:   resty.New().SetTimeout(10 * time.Second),
		keys:     make(map[string]crypto.PublicKey),
		cacheTTL: 5 * time.Minute,
	}
}

// Verify validates signature, expiry, audience and subject.
func (v *SessionVerifier) Verify(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, v.keyFunc,
		jwt.WithValidMethods([]string{"HS256", "ES256", "RS256"}),
		jwt.WithAudience(sessionAudience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(5*time.Second),
	)
	if err != nil {
		return nil, errors.Wrap(err, "token verification failed")
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

func (v *SessionVerifier) keyFunc(t *jwt.Token) (any, error) {
	switch t.Method.(type) {
	case *jwt.SigningMethodHMAC:
		if len(v.secret) == 0 {
			return nil, errors.New("HS256 tokens are not accepted")
		}
		return v.secret, nil
	case *jwt.SigningMethodECDSA, *jwt.SigningMethodRSA:
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing kid in token header")
		}
		key, err := v.getKey(kid)
		if err != nil {
			return nil, err
		}
		switch key.(type) {
		case *ecdsa.PublicKey:
			if _, ok := t.Method.(*jwt.SigningMethodECDSA); ok {
				return key, nil
			}
		case *rsa.PublicKey:
			if _, ok := t.Method.(*jwt.SigningMethodRSA); ok {
				return key, nil
			}
		}
		return nil, errors.Errorf("key %q does not match alg %v", kid, t.Header["alg"])
	default:
		return nil, errors.Errorf("unexpected signing method: %v", t.Header["alg"])
	}
}

// getKey returns the key for kid, refetching the JWKS when the cache is
// stale or the kid is unknown. A stale key is used if the refetch fails.
func (v *SessionVerifier) getKey(kid string) (crypto.PublicKey, error) {
	v.mu.RLock()
	key, ok := v.keys[kid]
	expired := time.Since(v.fetchedAt) > v.cacheTTL
	v.mu.RUnlock()

	if ok && !expired {
		return key, nil
	}
	if v.jwksURL == "" {
		return nil, errors.New("asymmetric tokens are not accepted")
	}

	if err := v.fetchJWKS(); err != nil {
		if ok {
			return key, nil
		}
		return nil, err
	}

	v.mu.RLock()
	key, ok = v.keys[kid]
	v.mu.RUnlock()
	if !ok {
		return nil, errors.Errorf("key with kid %q not found in JWKS", kid)
	}
	return key, nil
}

func (v *SessionVerifier) fetchJWKS() error {
	var jwks jwksResponse
	resp, err := v.client.R().SetResult(&jwks).Get(v.jwksURL)
	if err != nil {
		return errors.Wrapf(err, "fetch JWKS from %s", v.jwksURL)
	}
	if resp.StatusCode() != http.StatusOK {
		return errors.Errorf("JWKS fetch returned status %d", resp.StatusCode())
	}

	keys := make(map[string]crypto.PublicKey, len(jwks.Keys))
	for _, k := range jwks.Keys {
		pub, err := k.publicKey()
		if err != nil {
			log.Printf("[auth] skipping JWKS key %s: %v", k.Kid, err)
			continue
		}
		keys[k.Kid] = pub
	}

	v.mu.Lock()
	v.keys = keys
	v.fetchedAt = time.Now()
	v.mu.Unlock()

	log.Printf("[auth] JWKS refreshed: %d key(s) loaded", len(keys))
	return nil
}

func (k jwksKey) publicKey() (crypto.PublicKey, error) {
	switch k.Kty {
	case "EC":
		if k.Crv != "P-256" {
			return nil, errors.Errorf("unsupported curve %q", k.Crv)
		}
		x, err := decodeBigInt(k.X)
		if err != nil {
			return nil, err
		}
		y, err := decodeBigInt(k.Y)
		if err != nil {
			return nil, err
		}
		pub := &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}
		if !pub.Curve.IsOnCurve(x, y) {
			return nil, errors.New("point not on curve")
		}
		return pub, nil
	case "RSA":
		n, err := decodeBigInt(k.N)
		if err != nil {
			return nil, err
		}
		e, err := decodeBigInt(k.E)
		if err != nil {
			return nil, err
		}
		return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
	default:
		return nil, errors.Errorf("unsupported kty %q", k.Kty)
	}
}

func decodeBigInt(s string) (*big.Int, error) {
	if s == "" {
		return nil, errors.New("empty key component")
	}
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, errors.Wrap(err, "decode key component")
	}
	return new(big.Int).SetBytes(b), nil
}
