package joat

import (
	"context"
	"testing"
)

func TestVerifyContextBindsPayload(t *testing.T) {
	authority := newTestAuthority(t, nil, StaticSecret(testSecret))
	token, err := authority.Issue(context.Background(), scenarioRequest())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	ctx, payload, err := authority.VerifyContext(context.Background(), token)
	if err != nil {
		t.Fatalf("VerifyContext: %v", err)
	}
	bound, ok := PayloadFromContext(ctx)
	if !ok {
		t.Fatal("expected payload in context")
	}
	if bound != payload || bound.UserID != "12345" {
		t.Fatalf("unexpected bound payload: %+v", bound)
	}

	ctx, _, err = authority.VerifyContext(context.Background(), "garbage")
	expectCode(t, err, ErrCodeMalformedToken)
	if _, ok := PayloadFromContext(ctx); ok {
		t.Fatal("failed verification must not bind a payload")
	}
}

func TestPayloadFromContextMissing(t *testing.T) {
	var nilCtx context.Context
	if _, ok := PayloadFromContext(nilCtx); ok {
		t.Fatal("nil context should not carry a payload")
	}
	if _, ok := PayloadFromContext(context.Background()); ok {
		t.Fatal("empty context should not carry a payload")
	}
}
