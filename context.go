package joat

import "context"

type payloadKey struct{}

// BindPayload stores a verified payload inside the context for downstream consumers.
func BindPayload(ctx context.Context, payload *Payload) context.Context {
	return context.WithValue(ctx, payloadKey{}, payload)
}

// PayloadFromContext retrieves a payload previously stored with BindPayload.
func PayloadFromContext(ctx context.Context) (*Payload, bool) {
	if ctx == nil {
		return nil, false
	}
	payload, ok := ctx.Value(payloadKey{}).(*Payload)
	if !ok || payload == nil {
		return nil, false
	}
	return payload, true
}

// VerifyContext verifies token and, on success, returns ctx with the
// payload bound to it.
func (a *Authority) VerifyContext(ctx context.Context, token string) (context.Context, *Payload, error) {
	payload, err := a.Verify(ctx, token)
	if err != nil {
		return ctx, nil, err
	}
	return BindPayload(ctx, payload), payload, nil
}
