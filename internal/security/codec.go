package security

import (
	"errors"
	"slices"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"lms-session-manager/backend/internal/ids"
)

var (
	// ErrMalformed is returned when a token is not a well-formed compact JWT
	// or is missing required registered claims.
	ErrMalformed = errors.New("malformed token")
	// ErrInvalidSignature is returned when the signature, algorithm, issuer or
	// audience does not match what this codec expects.
	ErrInvalidSignature = errors.New("invalid token signature")
	// ErrInvalidClaims is returned by Issue* when the claims cannot be signed
	// (missing timestamps, or expiry not after issued-at).
	ErrInvalidClaims = errors.New("invalid claims")
)

// Codec signs and verifies access and refresh JWTs with HS256. Access and
// refresh tokens use different keys. Decoding checks cryptographic and
// structural validity only; expiry and revocation are left to the caller.
type Codec struct {
	keys     SigningKeys
	issuer   string
	audience string
	parser   *jwt.Parser
}

// NewCodec returns a Codec using keys, stamping issuer and audience on every
// token and requiring them on decode.
func NewCodec(keys SigningKeys, issuer, audience string) (*Codec, error) {
	if len(keys.Access) == 0 || len(keys.Refresh) == 0 {
		return nil, ErrMissingSigningKey
	}
	return &Codec{
		keys:     keys,
		issuer:   strings.TrimSpace(issuer),
		audience: strings.TrimSpace(audience),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
			jwt.WithStrictDecoding(),
		),
	}, nil
}

// IssueAccess signs claims as an access token. Issuer, audience, token type
// and a fresh token id are set by the codec; IssuedAt and ExpiresAt must be
// set by the caller.
func (c *Codec) IssueAccess(claims AccessClaims) (string, error) {
	if err := c.stamp(&claims.RegisteredClaims); err != nil {
		return "", err
	}
	claims.TokenType = TokenTypeAccess
	claims.Permissions = NormalizePermissions(claims.Permissions)
	return c.sign(claims, c.keys.Access)
}

// IssueRefresh signs claims as a refresh token. See IssueAccess.
func (c *Codec) IssueRefresh(claims RefreshClaims) (string, error) {
	if err := c.stamp(&claims.RegisteredClaims); err != nil {
		return "", err
	}
	claims.TokenType = TokenTypeRefresh
	return c.sign(claims, c.keys.Refresh)
}

// DecodeAccess verifies the token against the access key and returns its claims.
// Returns ErrMalformed or ErrInvalidSignature.
func (c *Codec) DecodeAccess(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := c.parse(token, claims, c.keys.Access); err != nil {
		return nil, err
	}
	if err := c.checkRegistered(&claims.RegisteredClaims); err != nil {
		return nil, err
	}
	if claims.TokenType != TokenTypeAccess {
		return nil, ErrMalformed
	}
	return claims, nil
}

// DecodeRefresh verifies the token against the refresh key and returns its claims.
// Returns ErrMalformed or ErrInvalidSignature.
func (c *Codec) DecodeRefresh(token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := c.parse(token, claims, c.keys.Refresh); err != nil {
		return nil, err
	}
	if err := c.checkRegistered(&claims.RegisteredClaims); err != nil {
		return nil, err
	}
	if claims.TokenType != TokenTypeRefresh {
		return nil, ErrMalformed
	}
	return claims, nil
}

func (c *Codec) stamp(rc *jwt.RegisteredClaims) error {
	if rc.IssuedAt == nil || rc.ExpiresAt == nil || !rc.ExpiresAt.After(rc.IssuedAt.Time) {
		return ErrInvalidClaims
	}
	rc.ID = ids.New()
	rc.Issuer = c.issuer
	rc.Audience = jwt.ClaimStrings{c.audience}
	return nil
}

func (c *Codec) sign(claims jwt.Claims, key []byte) (string, error) {
	if len(key) == 0 {
		return "", ErrMissingSigningKey
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}

func (c *Codec) parse(token string, claims jwt.Claims, key []byte) error {
	// The blacklist keys on the exact presented string, so only one spelling
	// of a token may verify.
	if token == "" || !compact(token) {
		return ErrMalformed
	}
	parsed, err := c.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return key, nil
	})
	if err != nil {
		return classify(err)
	}
	if !parsed.Valid {
		return ErrInvalidSignature
	}
	return nil
}

func (c *Codec) checkRegistered(rc *jwt.RegisteredClaims) error {
	if rc.Issuer != c.issuer {
		return ErrInvalidSignature
	}
	if !slices.Contains(rc.Audience, c.audience) {
		return ErrInvalidSignature
	}
	if rc.ID == "" || rc.IssuedAt == nil || rc.ExpiresAt == nil {
		return ErrMalformed
	}
	return nil
}

// compact reports whether token uses only the base64url alphabet and dots.
// The base64 decoder skips CR and LF, which would otherwise verify.
func compact(token string) bool {
	for i := 0; i < len(token); i++ {
		switch c := token[i]; {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.':
		default:
			return false
		}
	}
	return true
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrInvalidSignature
	default:
		return ErrMalformed
	}
}
