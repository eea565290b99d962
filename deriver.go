package joat

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"

	"golang.org/x/crypto/hkdf"
)

const derivedKeySize = 32

// SecretDeriver computes the signing secret for a claim set.
//
// The same claims must always yield the same secret. During verification
// the claims come from an untrusted token, so implementations must not
// assume they are authentic.
type SecretDeriver interface {
	DeriveSecret(ctx context.Context, claims Claims) ([]byte, error)
}

// SecretDeriverFunc adapts a function to SecretDeriver.
type SecretDeriverFunc func(ctx context.Context, claims Claims) ([]byte, error)

// DeriveSecret calls f.
func (f SecretDeriverFunc) DeriveSecret(ctx context.Context, claims Claims) ([]byte, error) {
	return f(ctx, claims)
}

// StaticSecret returns a deriver that ignores the claims.
func StaticSecret(secret []byte) SecretDeriver {
	key := append([]byte(nil), secret...)
	return SecretDeriverFunc(func(context.Context, Claims) ([]byte, error) {
		return append([]byte(nil), key...), nil
	})
}

// HKDFDeriver expands a master key into a per-token secret bound to the
// issuer, audience and subject, and optionally the issue time.
type HKDFDeriver struct {
	Master          []byte
	IncludeIssuedAt bool
}

// DeriveSecret implements SecretDeriver.
func (d HKDFDeriver) DeriveSecret(_ context.Context, claims Claims) ([]byte, error) {
	if len(d.Master) == 0 {
		return nil, errors.New("master key is empty")
	}
	return expandKey(d.Master, nil, d.info(claims))
}

func (d HKDFDeriver) info(claims Claims) []byte {
	fields := []string{claims.Issuer, claims.Audience, claims.Subject}
	if d.IncludeIssuedAt {
		fields = append(fields, strconv.FormatInt(claims.IssuedAt, 10))
	}
	return claimInfo(fields...)
}

// claimInfo length-prefixes each field so distinct tuples never collide.
func claimInfo(fields ...string) []byte {
	var out []byte
	for _, f := range fields {
		out = binary.AppendUvarint(out, uint64(len(f)))
		out = append(out, f...)
	}
	return out
}

func expandKey(master, salt, info []byte) ([]byte, error) {
	key := make([]byte, derivedKeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, salt, info), key); err != nil {
		return nil, fmt.Errorf("expand key: %w", err)
	}
	return key, nil
}
