package joat

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
)

// JWXCodec signs and verifies HS256 compact tokens with lestrrat-go/jwx.
// It is the default codec of an Authority.
type JWXCodec struct {
	opts codecOptions
}

// NewJWXCodec constructs a JWXCodec.
func NewJWXCodec(opts ...CodecOption) *JWXCodec {
	return &JWXCodec{opts: buildCodecOptions(opts)}
}

// Encode signs claims with secret.
func (c *JWXCodec) Encode(claims Claims, secret []byte) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("secret is empty")
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("marshal claims: %w", err)
	}
	headers := jws.NewHeaders()
	if err := headers.Set(jws.TypeKey, headerType); err != nil {
		return "", fmt.Errorf("set typ header: %w", err)
	}
	signed, err := jws.Sign(payload, jws.WithKey(jwa.HS256, secret, jws.WithProtectedHeaders(headers)))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return string(signed), nil
}

// Decode verifies the signature with secret, then the expiry.
func (c *JWXCodec) Decode(token string, secret []byte) (Claims, error) {
	if _, err := c.Peek(token); err != nil {
		return Claims{}, err
	}
	payload, err := jws.Verify([]byte(token), jws.WithKey(jwa.HS256, secret))
	if err != nil {
		return Claims{}, newError(ErrCodeSignatureInvalid, err)
	}
	claims, err := decodePayload(payload)
	if err != nil {
		return Claims{}, err
	}
	if err := checkExpiry(claims, c.opts.clock()); err != nil {
		return Claims{}, err
	}
	return claims, nil
}

// Peek splits token into header, claims and signature without verifying it.
func (c *JWXCodec) Peek(token string) (*Unverified, error) {
	seg, err := compactSegments(token)
	if err != nil {
		return nil, err
	}
	msg, err := jws.Parse([]byte(token))
	if err != nil {
		return nil, newError(ErrCodeMalformedToken, err)
	}
	sigs := msg.Signatures()
	if len(sigs) != 1 {
		return nil, newError(ErrCodeMalformedToken, fmt.Errorf("expected one signature, found %d", len(sigs)))
	}
	protected := sigs[0].ProtectedHeaders()
	header := Header{
		Type:      protected.Type(),
		Algorithm: protected.Algorithm().String(),
	}
	if err := checkHeader(header); err != nil {
		return nil, err
	}
	claims, err := decodePayload(msg.Payload())
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
