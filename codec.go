package joat

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	headerType      = "JWT"
	headerAlgorithm = "HS256"
)

var strictBase64 = base64.RawURLEncoding.Strict()

// Codec is the signing primitive behind an Authority.
//
// Decode must check the signature before anything else and report failures
// as *Error values: ErrCodeMalformedToken for structural problems,
// ErrCodeSignatureInvalid for a tampered token or wrong secret, and
// ErrCodeExpired when the signature holds but exp has passed. Peek must not
// verify anything.
type Codec interface {
	Encode(claims Claims, secret []byte) (string, error)
	Decode(token string, secret []byte) (Claims, error)
	Peek(token string) (*Unverified, error)
}

// Header is the protected JOSE header of a token.
type Header struct {
	Type      string `json:"typ"`
	Algorithm string `json:"alg"`
}

// Unverified is a token split into its parts without any signature check.
// Nothing in it may be trusted.
type Unverified struct {
	Claims    Claims
	Encoding  []byte
	Header    Header
	Signature []byte
}

// CodecOption customizes a codec.
type CodecOption func(*codecOptions)

type codecOptions struct {
	clock func() time.Time
}

// WithClock sets the time source used for expiry checks.
func WithClock(clock func() time.Time) CodecOption {
	return func(o *codecOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

func buildCodecOptions(opts []CodecOption) codecOptions {
	o := codecOptions{clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// segments is a compact serialization split and strictly decoded.
type segments struct {
	raw       []string
	header    []byte
	payload   []byte
	signature []byte
}

// signingInput returns the header and payload segments as they were signed.
func (s segments) signingInput() []byte {
	return []byte(s.raw[0] + "." + s.raw[1])
}

// compactSegments splits a compact serialization into its three segments and
// decodes each one as canonical unpadded base64url. A signature that only
// decodes leniently is reported as SignatureInvalid.
func compactSegments(token string) (segments, error) {
	if token == "" {
		return segments{}, newError(ErrCodeMalformedToken, errors.New("token is empty"))
	}
	if strings.ContainsAny(token, "\r\n") {
		return segments{}, newError(ErrCodeMalformedToken, errors.New("token contains line breaks"))
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return segments{}, newError(ErrCodeMalformedToken, fmt.Errorf("expected three segments, found %d", len(parts)))
	}
	if parts[0] == "" || parts[1] == "" {
		return segments{}, newError(ErrCodeMalformedToken, errors.New("empty header or payload segment"))
	}

	seg := segments{raw: parts}
	var err error
	if seg.header, err = strictBase64.DecodeString(parts[0]); err != nil {
		return segments{}, newError(ErrCodeMalformedToken, fmt.Errorf("decode header: %w", err))
	}
	if seg.payload, err = strictBase64.DecodeString(parts[1]); err != nil {
		return segments{}, newError(ErrCodeMalformedToken, fmt.Errorf("decode payload: %w", err))
	}
	if seg.signature, err = strictBase64.DecodeString(parts[2]); err != nil {
		if _, lenient := base64.RawURLEncoding.DecodeString(parts[2]); lenient == nil {
			return segments{}, newError(ErrCodeSignatureInvalid, fmt.Errorf("signature is not canonical base64url: %w", err))
		}
		return segments{}, newError(ErrCodeMalformedToken, fmt.Errorf("decode signature: %w", err))
	}
	return seg, nil
}

// decodePayload parses and checks a claim payload.
func decodePayload(payload []byte) (Claims, error) {
	var w wireClaims
	if err := json.Unmarshal(payload, &w); err != nil {
		return Claims{}, newError(ErrCodeMalformedToken, fmt.Errorf("decode claims: %w", err))
	}
	if name := w.missing(); name != "" {
		return Claims{}, newError(ErrCodeMalformedToken, fmt.Errorf("claim %q is missing", name))
	}
	return w.claims(), nil
}

func checkHeader(h Header) error {
	if h.Algorithm != headerAlgorithm {
		return newError(ErrCodeMalformedToken, fmt.Errorf("unexpected algorithm %q", h.Algorithm))
	}
	if h.Type != "" && h.Type != headerType {
		return newError(ErrCodeMalformedToken, fmt.Errorf("unexpected token type %q", h.Type))
	}
	return nil
}

// checkExpiry treats a token as expired once now reaches exp.
func checkExpiry(c Claims, now time.Time) error {
	if now.Unix() >= c.ExpiresAt {
		return newError(ErrCodeExpired, fmt.Errorf("expired at %s", time.Unix(c.ExpiresAt, 0).UTC().Format(time.RFC3339)))
	}
	return nil
}
