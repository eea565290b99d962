package joat

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	defaultSaltPrefix = "joat:salt:"
	saltSize          = 32
)

// ErrSaltNotFound is returned when a user has no provisioned salt.
var ErrSaltNotFound = errors.New("salt not found")

// RedisSaltDeriver derives secrets from a master key and a per-user salt
// kept in Redis. Rotating or revoking a user's salt invalidates every token
// previously issued to that user.
type RedisSaltDeriver struct {
	client redis.Cmdable
	master []byte
	prefix string
}

// NewRedisSaltDeriver constructs a RedisSaltDeriver. An empty prefix selects
// "joat:salt:".
func NewRedisSaltDeriver(client redis.Cmdable, master []byte, prefix string) (*RedisSaltDeriver, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if len(master) == 0 {
		return nil, errors.New("master key is empty")
	}
	if prefix == "" {
		prefix = defaultSaltPrefix
	}
	return &RedisSaltDeriver{
		client: client,
		master: append([]byte(nil), master...),
		prefix: prefix,
	}, nil
}

// DeriveSecret implements SecretDeriver.
func (d *RedisSaltDeriver) DeriveSecret(ctx context.Context, claims Claims) ([]byte, error) {
	if claims.Subject == "" {
		return nil, errors.New("subject is empty")
	}
	salt, err := d.client.Get(ctx, d.key(claims.Subject)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("user %q: %w", claims.Subject, ErrSaltNotFound)
		}
		return nil, fmt.Errorf("load salt: %w", err)
	}
	return expandKey(d.master, salt, claimInfo(claims.Issuer, claims.Audience, claims.Subject))
}

// Provision creates a salt for userID unless one already exists.
func (d *RedisSaltDeriver) Provision(ctx context.Context, userID string) error {
	salt, err := newSalt()
	if err != nil {
		return err
	}
	if err := d.client.SetNX(ctx, d.key(userID), salt, 0).Err(); err != nil {
		return fmt.Errorf("provision salt: %w", err)
	}
	return nil
}

// Rotate replaces the salt for userID.
func (d *RedisSaltDeriver) Rotate(ctx context.Context, userID string) error {
	salt, err := newSalt()
	if err != nil {
		return err
	}
	if err := d.client.Set(ctx, d.key(userID), salt, 0).Err(); err != nil {
		return fmt.Errorf("rotate salt: %w", err)
	}
	return nil
}

// Revoke deletes the salt for userID.
func (d *RedisSaltDeriver) Revoke(ctx context.Context, userID string) error {
	if err := d.client.Del(ctx, d.key(userID)).Err(); err != nil {
		return fmt.Errorf("revoke salt: %w", err)
	}
	return nil
}

func (d *RedisSaltDeriver) key(userID string) string {
	return d.prefix + userID
}

func newSalt() ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}
