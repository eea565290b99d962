package joat

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestHKDFDeriver(t *testing.T) {
	ctx := context.Background()
	d := HKDFDeriver{Master: testSecret}
	claims := sampleClaims()

	first, err := d.DeriveSecret(ctx, claims)
	if err != nil {
		t.Fatalf("DeriveSecret: %v", err)
	}
	if len(first) != derivedKeySize {
		t.Fatalf("unexpected key size: %d", len(first))
	}
	second, err := d.DeriveSecret(ctx, claims)
	if err != nil {
		t.Fatalf("DeriveSecret second call: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("derivation must be deterministic")
	}

	other := claims
	other.Subject = "67890"
	third, err := d.DeriveSecret(ctx, other)
	if err != nil {
		t.Fatalf("DeriveSecret other subject: %v", err)
	}
	if bytes.Equal(first, third) {
		t.Fatalf("different subjects must yield different secrets")
	}

	// Issue time only matters when opted in.
	later := claims
	later.IssuedAt++
	same, _ := d.DeriveSecret(ctx, later)
	if !bytes.Equal(first, same) {
		t.Fatalf("issued_at should not affect the secret by default")
	}
	withIAT := HKDFDeriver{Master: testSecret, IncludeIssuedAt: true}
	a, _ := withIAT.DeriveSecret(ctx, claims)
	b, _ := withIAT.DeriveSecret(ctx, later)
	if bytes.Equal(a, b) {
		t.Fatalf("issued_at should affect the secret when included")
	}

	if _, err := (HKDFDeriver{}).DeriveSecret(ctx, claims); err == nil {
		t.Fatalf("expected error for empty master key")
	}
}

func TestClaimInfoIsUnambiguous(t *testing.T) {
	if bytes.Equal(claimInfo("a\x00b", "c"), claimInfo("a", "b\x00c")) {
		t.Fatalf("field boundaries must be preserved")
	}
}

func TestStaticSecretCopies(t *testing.T) {
	secret := []byte("secret")
	d := StaticSecret(secret)
	secret[0] = 'X'
	got, err := d.DeriveSecret(context.Background(), Claims{})
	if err != nil {
		t.Fatalf("DeriveSecret: %v", err)
	}
	if string(got) != "secret" {
		t.Fatalf("static secret should be copied, got %q", got)
	}
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisSaltDeriver(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)

	deriver, err := NewRedisSaltDeriver(client, testSecret, "")
	if err != nil {
		t.Fatalf("NewRedisSaltDeriver: %v", err)
	}
	authority := newTestAuthority(t, nil, deriver)

	_, err = authority.Issue(ctx, scenarioRequest())
	expectCode(t, err, ErrCodeSecretUnavailable)
	if !errors.Is(err, ErrSaltNotFound) {
		t.Fatalf("expected ErrSaltNotFound, got %v", err)
	}

	if err := deriver.Provision(ctx, "12345"); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if !mr.Exists("joat:salt:12345") {
		t.Fatalf("expected salt key in redis")
	}
	salt, _ := mr.Get("joat:salt:12345")

	token, err := authority.Issue(ctx, scenarioRequest())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := authority.Verify(ctx, token); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	// Provisioning again must keep the existing salt.
	if err := deriver.Provision(ctx, "12345"); err != nil {
		t.Fatalf("Provision again: %v", err)
	}
	if again, _ := mr.Get("joat:salt:12345"); again != salt {
		t.Fatalf("provision must not replace an existing salt")
	}
	if _, err := authority.Verify(ctx, token); err != nil {
		t.Fatalf("Verify after re-provision: %v", err)
	}

	if err := deriver.Rotate(ctx, "12345"); err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	_, err = authority.Verify(ctx, token)
	expectCode(t, err, ErrCodeSignatureInvalid)

	if err := deriver.Revoke(ctx, "12345"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	_, err = authority.Verify(ctx, token)
	expectCode(t, err, ErrCodeSecretUnavailable)
}

func TestRedisSaltDeriver_Unavailable(t *testing.T) {
	mr, client := newTestRedis(t)
	deriver, err := NewRedisSaltDeriver(client, testSecret, "custom:")
	if err != nil {
		t.Fatalf("NewRedisSaltDeriver: %v", err)
	}
	if err := deriver.Provision(context.Background(), "12345"); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if !mr.Exists("custom:12345") {
		t.Fatalf("expected custom prefix")
	}

	authority := newTestAuthority(t, nil, deriver)
	token, err := authority.Issue(context.Background(), scenarioRequest())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	mr.SetError("server unavailable")
	_, err = authority.Verify(context.Background(), token)
	expectCode(t, err, ErrCodeSecretUnavailable)
	if errors.Is(err, ErrSaltNotFound) {
		t.Fatalf("outage must not look like a missing salt: %v", err)
	}
}

func TestNewRedisSaltDeriver_Validation(t *testing.T) {
	_, client := newTestRedis(t)
	if _, err := NewRedisSaltDeriver(nil, testSecret, ""); err == nil {
		t.Fatalf("expected error for nil client")
	}
	if _, err := NewRedisSaltDeriver(client, nil, ""); err == nil {
		t.Fatalf("expected error for empty master")
	}
}
