package joat

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// GolangJWTCodec is a Codec built on golang-jwt. Tokens it produces are
// interchangeable with JWXCodec tokens.
type GolangJWTCodec struct {
	opts   codecOptions
	parser *jwt.Parser
}

// NewGolangJWTCodec constructs a GolangJWTCodec.
func NewGolangJWTCodec(opts ...CodecOption) *GolangJWTCodec {
	o := buildCodecOptions(opts)
	return &GolangJWTCodec{
		opts: o,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithTimeFunc(o.clock),
			jwt.WithExpirationRequired(),
			jwt.WithStrictDecoding(),
		),
	}
}

// registeredClaims adapts Claims to jwt.Claims.
type registeredClaims struct {
	Claims
}

func (c registeredClaims) GetExpirationTime() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.ExpiresAt, 0)), nil
}

func (c registeredClaims) GetIssuedAt() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.IssuedAt, 0)), nil
}

func (c registeredClaims) GetNotBefore() (*jwt.NumericDate, error) {
	return nil, nil
}

func (c registeredClaims) GetIssuer() (string, error) {
	return c.Issuer, nil
}

func (c registeredClaims) GetSubject() (string, error) {
	return c.Subject, nil
}

func (c registeredClaims) GetAudience() (jwt.ClaimStrings, error) {
	return jwt.ClaimStrings{c.Audience}, nil
}

// Encode signs claims with secret.
func (c *GolangJWTCodec) Encode(claims Claims, secret []byte) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("secret is empty")
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, registeredClaims{Claims: claims})
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Decode verifies the signature with secret, then the expiry.
func (c *GolangJWTCodec) Decode(token string, secret []byte) (Claims, error) {
	// Peek rejects structurally bad tokens and missing claims up front.
	if _, err := c.Peek(token); err != nil {
		return Claims{}, err
	}
	var verified registeredClaims
	_, err := c.parser.ParseWithClaims(token, &verified, func(*jwt.Token) (any, error) {
		return secret, nil
	})
	if err != nil {
		return Claims{}, classifyGolangJWTError(err)
	}
	return verified.Claims, nil
}

// Peek splits token into header, claims and signature without verifying it.
func (c *GolangJWTCodec) Peek(token string) (*Unverified, error) {
	seg, err := compactSegments(token)
	if err != nil {
		return nil, err
	}
	parsed, _, err := c.parser.ParseUnverified(token, &registeredClaims{})
	if err != nil {
		return nil, newError(ErrCodeMalformedToken, err)
	}
	header := Header{}
	header.Type, _ = parsed.Header["typ"].(string)
	header.Algorithm, _ = parsed.Header["alg"].(string)
	if err := checkHeader(header); err != nil {
		return nil, err
	}
	claims, err := decodePayload(seg.payload)
	if err != nil {
		return nil, err
	}
	return &Unverified{
		Claims:    claims,
		Encoding:  seg.signingInput(),
		Header:    header,
		Signature: seg.signature,
	}, nil
}

func classifyGolangJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return newError(ErrCodeMalformedToken, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return newError(ErrCodeSignatureInvalid, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return newError(ErrCodeExpired, err)
	}
	return newError(ErrCodeMalformedToken, err)
}
