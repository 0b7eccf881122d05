package tokens

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"os"
	"sort"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/Mirko-ez/biblioteca-backend/pkg/domain"
)

const (
	defaultIssuer   = "biblioteca-auth"
	defaultAudience = "biblioteca-api"

	// DefaultAccessTTL keeps stolen bearer tokens short-lived; refresh
	// tokens carry the long session.
	DefaultAccessTTL = 15 * time.Minute

	minHMACSecretBytes = 32
)

var defaultLeeway = 30 * time.Second

// ErrInvalidToken is the only failure surfaced for access tokens, whether the
// token was malformed, forged or expired.
var ErrInvalidToken = errors.New("invalid token")

// Identity is the authenticated caller as asserted by an access token.
type Identity struct {
	UserID   string          `json:"id"`
	Email    string          `json:"email"`
	Name     string          `json:"name"`
	Role     domain.UserRole `json:"role"`
	PhotoURL string          `json:"photo_url"`
}

// IdentityOf snapshots the fields of u embedded in access tokens.
func IdentityOf(u domain.User) Identity {
	return Identity{
		UserID:   u.ID,
		Email:    u.Email,
		Name:     u.Name,
		Role:     u.Role,
		PhotoURL: u.PhotoURL,
	}
}

// Can reports whether the identity's role grants p.
func (i Identity) Can(p domain.Permission) bool {
	return i.Role.Can(p)
}

type accessClaims struct {
	UserID   string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	PhotoURL string `json:"photo_url,omitempty"`
	jwt.RegisteredClaims
}

// Options configures claim validation and lifetime.
type Options struct {
	TTL      time.Duration
	Issuer   string
	Audience string
	Leeway   time.Duration
}

func normalizeOptions(opts Options) Options {
	opts.Issuer = strings.TrimSpace(opts.Issuer)
	opts.Audience = strings.TrimSpace(opts.Audience)
	if opts.Issuer == "" {
		opts.Issuer = defaultIssuer
	}
	if opts.Audience == "" {
		opts.Audience = defaultAudience
	}
	if opts.Leeway <= 0 {
		opts.Leeway = defaultLeeway
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultAccessTTL
	}
	return opts
}

// JWK represents a JSON Web Key entry used by the JWKS endpoint.
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	N   string `json:"n,omitempty"`
	E   string `json:"e,omitempty"`
}

// AccessTokens signs and verifies stateless access JWTs. It runs either HS256
// with a shared secret or RS256 with kid-addressed keys.
type AccessTokens struct {
	method    jwt.SigningMethod
	signKey   any
	signKid   string
	hmacKey   []byte
	verifiers map[string]*rsa.PublicKey

	opts Options
	now  func() time.Time
}

// NewHS256 builds an HMAC signer. The secret must carry at least 256 bits.
func NewHS256(secret []byte, opts Options) (*AccessTokens, error) {
	if len(secret) < minHMACSecretBytes {
		return nil, fmt.Errorf("jwt secret must be at least %d bytes", minHMACSecretBytes)
	}
	key := append([]byte(nil), secret...)
	return &AccessTokens{
		method:  jwt.SigningMethodHS256,
		signKey: key,
		hmacKey: key,
		opts:    normalizeOptions(opts),
		now:     time.Now,
	}, nil
}

// NewRS256FromPEM builds an RSA signer from PEM files. verifyKeyFiles maps
// kid -> public key path and may carry retired keys still accepted for
// verification.
func NewRS256FromPEM(privateKeyPath, publicKeyPath, keyID string, verifyKeyFiles map[string]string, opts Options) (*AccessTokens, error) {
	privateKey, err := loadRSAPrivateKeyFromPEMFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("load jwt private key: %w", err)
	}
	keyID = strings.TrimSpace(keyID)
	if keyID == "" {
		keyID = "jwt-active"
	}
	activePub := &privateKey.PublicKey
	if strings.TrimSpace(publicKeyPath) != "" {
		activePub, err = loadRSAPublicKeyFromPEMFile(publicKeyPath)
		if err != nil {
			return nil, fmt.Errorf("load jwt public key: %w", err)
		}
	}
	verifiers := map[string]*rsa.PublicKey{keyID: activePub}
	for kid, path := range verifyKeyFiles {
		kid = strings.TrimSpace(kid)
		path = strings.TrimSpace(path)
		if kid == "" || path == "" {
			continue
		}
		pub, err := loadRSAPublicKeyFromPEMFile(path)
		if err != nil {
			return nil, fmt.Errorf("load verify key %q: %w", kid, err)
		}
		verifiers[kid] = pub
	}
	return &AccessTokens{
		method:    jwt.SigningMethodRS256,
		signKey:   privateKey,
		signKid:   keyID,
		verifiers: verifiers,
		opts:      normalizeOptions(opts),
		now:       time.Now,
	}, nil
}

// TTL is the lifetime given to newly issued tokens.
func (a *AccessTokens) TTL() time.Duration {
	return a.opts.TTL
}

// Issue signs a token for id and returns it with its expiry.
func (a *AccessTokens) Issue(id Identity) (string, time.Time, error) {
	now := a.now().UTC()
	exp := now.Add(a.opts.TTL)
	claims := accessClaims{
		UserID:   id.UserID,
		Email:    id.Email,
		Name:     id.Name,
		Role:     string(id.Role),
		PhotoURL: id.PhotoURL,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			Issuer:    a.opts.Issuer,
			Audience:  jwt.ClaimStrings{a.opts.Audience},
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(a.method, claims)
	if a.signKid != "" {
		token.Header["kid"] = a.signKid
	}
	signed, err := token.SignedString(a.signKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, exp, nil
}

// Verify checks signature, expiry, issuer and audience. Every failure wraps
// ErrInvalidToken.
func (a *AccessTokens) Verify(token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrInvalidToken
	}
	claims := accessClaims{}
	parsed, err := jwt.ParseWithClaims(token, &claims, a.keyFunc,
		jwt.WithValidMethods([]string{a.method.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(a.opts.Leeway),
		jwt.WithIssuer(a.opts.Issuer),
		jwt.WithAudience(a.opts.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}
	if strings.TrimSpace(claims.UserID) == "" || claims.UserID != claims.Subject {
		return Identity{}, fmt.Errorf("%w: subject mismatch", ErrInvalidToken)
	}
	role := domain.UserRole(claims.Role)
	if !role.Valid() {
		return Identity{}, fmt.Errorf("%w: unknown role", ErrInvalidToken)
	}
	return Identity{
		UserID:   claims.UserID,
		Email:    claims.Email,
		Name:     claims.Name,
		Role:     role,
		PhotoURL: claims.PhotoURL,
	}, nil
}

func (a *AccessTokens) keyFunc(t *jwt.Token) (any, error) {
	if a.hmacKey != nil {
		return a.hmacKey, nil
	}
	kid, _ := t.Header["kid"].(string)
	kid = strings.TrimSpace(kid)
	if kid == "" {
		return nil, errors.New("token key id required")
	}
	pub, ok := a.verifiers[kid]
	if !ok {
		return nil, errors.New("unknown token key")
	}
	return pub, nil
}

// JWKS returns the public verification keys. It is empty in HS256 mode.
func (a *AccessTokens) JWKS() []JWK {
	if len(a.verifiers) == 0 {
		return nil
	}
	kids := make([]string, 0, len(a.verifiers))
	for kid := range a.verifiers {
		kids = append(kids, kid)
	}
	sort.Strings(kids)
	out := make([]JWK, 0, len(kids))
	for _, kid := range kids {
		pub := a.verifiers[kid]
		out = append(out, JWK{
			Kty: "RSA",
			Use: "sig",
			Kid: kid,
			Alg: "RS256",
			N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		})
	}
	return out
}

func loadRSAPrivateKeyFromPEMFile(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("invalid pem")
	}
	if pkcs1, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return pkcs1, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	privateKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not rsa")
	}
	return privateKey, nil
}

func loadRSAPublicKeyFromPEMFile(path string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("invalid pem")
	}
	if pubAny, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		pub, ok := pubAny.(*rsa.PublicKey)
		if !ok {
			return nil, errors.New("public key is not rsa")
		}
		return pub, nil
	}
	if cert, err := x509.ParseCertificate(block.Bytes); err == nil {
		pub, ok := cert.PublicKey.(*rsa.PublicKey)
		if !ok {
			return nil, errors.New("certificate public key is not rsa")
		}
		return pub, nil
	}
	return nil, errors.New("failed to parse rsa public key")
}
