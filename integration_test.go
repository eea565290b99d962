package joat

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestRedisIntegration(t *testing.T) {
	if os.Getenv("RUN_INTEGRATION_TESTS") != "true" {
		t.Skip("RUN_INTEGRATION_TESTS not set to true")
	}

	redisURL := strings.TrimSpace(os.Getenv("JOAT_REDIS_URL"))
	if redisURL == "" {
		t.Fatal("JOAT_REDIS_URL environment variable required")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		t.Fatalf("parse redis url: %v", err)
	}
	client := redis.NewClient(opts)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("ping redis: %v", err)
	}

	prefix := "joat:it:" + NewTokenID() + ":"
	deriver, err := NewRedisSaltDeriver(client, []byte("integration-master"), prefix)
	if err != nil {
		t.Fatalf("NewRedisSaltDeriver: %v", err)
	}
	const user = "integration-user"
	t.Cleanup(func() { _ = deriver.Revoke(context.Background(), user) })

	if err := deriver.Provision(ctx, user); err != nil {
		t.Fatalf("Provision: %v", err)
	}

	authority, err := New(Config{
		Provider: "integration",
		ClientID: "integration-client",
		Deriver:  deriver,
		Codec:    NewGolangJWTCodec(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	token, err := authority.Issue(ctx, IssueRequest{UserID: user, Scope: []string{"read"}})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	payload, err := authority.Verify(ctx, token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if payload.UserID != user {
		t.Fatalf("unexpected user: %s", payload.UserID)
	}

	if err := deriver.Rotate(ctx, user); err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if _, err := authority.Verify(ctx, token); CodeOf(err) != ErrCodeSignatureInvalid {
		t.Fatalf("rotated salt should invalidate token, got %v", err)
	}
}
