package joat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// maxNumericDate is 9999-12-31T23:59:59Z, the last instant every JWT
// consumer can represent.
const maxNumericDate = 253402300799

// Authority issues and verifies access tokens for a single provider.
// It is safe for concurrent use when its deriver and codec are.
type Authority struct {
	provider string
	clientID string
	lifetime time.Duration

	deriver SecretDeriver
	codec   Codec
	clock   func() time.Time
	logger  *slog.Logger
}

// New builds an authority from the given configuration.
func New(cfg Config) (*Authority, error) {
	if err := cfg.validate(); err != nil {
		return nil, newError(ErrCodeInvalidConfig, err)
	}
	cfg.normalize()
	return &Authority{
		provider: cfg.Provider,
		clientID: cfg.ClientID,
		lifetime: cfg.Lifetime,
		deriver:  cfg.Deriver,
		codec:    cfg.Codec,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
	}, nil
}

// Provider returns the issuer name this authority signs and accepts.
func (a *Authority) Provider() string {
	return a.provider
}

// Issue builds, signs and returns a token for req. Validation failures never
// reach the deriver or the codec.
func (a *Authority) Issue(ctx context.Context, req IssueRequest) (string, error) {
	token, _, err := a.issue(ctx, req)
	return token, err
}

func (a *Authority) issue(ctx context.Context, req IssueRequest) (string, Claims, error) {
	claims, err := a.claimsFor(req)
	if err != nil {
		a.logger.DebugContext(ctx, "joat: issue rejected", slog.String("code", string(CodeOf(err))), slog.Any("error", err))
		return "", Claims{}, err
	}
	secret, err := a.derive(ctx, claims)
	if err != nil {
		a.logger.DebugContext(ctx, "joat: secret derivation failed", slog.String("subject", claims.Subject), slog.Any("error", err))
		return "", Claims{}, err
	}
	token, err := a.codec.Encode(claims, secret)
	if err != nil {
		return "", Claims{}, newError(ErrCodeEncodeFailed, err)
	}
	return token, claims, nil
}

// Claims resolves req against the authority defaults and returns the claim
// set Issue would sign, without deriving a secret or signing.
func (a *Authority) Claims(req IssueRequest) (Claims, error) {
	return a.claimsFor(req)
}

func (a *Authority) claimsFor(req IssueRequest) (Claims, error) {
	provider := firstNonEmpty(req.Provider, a.provider)
	clientID := firstNonEmpty(req.ClientID, a.clientID)
	issuedAt := req.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = a.clock()
	}
	lifetime := a.lifetime
	if req.Lifetime != nil {
		lifetime = *req.Lifetime
	}

	switch {
	case provider == "":
		return Claims{}, missingField("provider")
	case clientID == "":
		return Claims{}, missingField("client_id")
	case req.UserID == "":
		return Claims{}, missingField("user_id")
	case req.Scope == nil:
		return Claims{}, missingField("scope")
	}

	iat := issuedAt.Unix()
	if iat < 0 || iat > maxNumericDate {
		return Claims{}, newError(ErrCodeInvalidFieldType, fmt.Errorf("issued_at %s is outside the numeric date range", issuedAt.UTC().Format(time.RFC3339)))
	}
	exp := issuedAt.Add(lifetime).Unix()
	if exp < 0 || exp > maxNumericDate {
		return Claims{}, newError(ErrCodeInvalidFieldType, fmt.Errorf("lifetime %s puts expiry outside the numeric date range", lifetime))
	}

	return Claims{
		Issuer:    provider,
		Audience:  clientID,
		Subject:   req.UserID,
		Scope:     append([]string{}, req.Scope...),
		IssuedAt:  iat,
		ExpiresAt: exp,
		TokenID:   req.TokenID,
	}, nil
}

// Verify checks token and returns what it authorizes.
//
// The steps run in a fixed order: the token is split without trusting it,
// the secret is derived from those unverified claims, the codec verifies the
// signature and then the expiry, and finally the issuer is compared with the
// provider. An expired token yields an error whose code is ErrCodeExpired
// and never collapses into a signature failure.
func (a *Authority) Verify(ctx context.Context, token string) (*Payload, error) {
	payload, err := a.verify(ctx, token)
	if err != nil {
		a.logger.DebugContext(ctx, "joat: token rejected", slog.String("code", string(CodeOf(err))), slog.Any("error", err))
		return nil, err
	}
	return payload, nil
}

func (a *Authority) verify(ctx context.Context, token string) (*Payload, error) {
	unverified, err := a.codec.Peek(token)
	if err != nil {
		return nil, classify(err, ErrCodeMalformedToken)
	}

	secret, err := a.derive(ctx, unverified.Claims)
	if err != nil {
		return nil, err
	}

	claims, err := a.codec.Decode(token, secret)
	if err != nil {
		return nil, classify(err, ErrCodeSignatureInvalid)
	}

	if claims.Issuer != a.provider {
		return nil, newError(ErrCodeIssuerMismatch, fmt.Errorf("issuer mismatch: got %q, want %q", claims.Issuer, a.provider))
	}

	return payloadFromClaims(claims), nil
}

func (a *Authority) derive(ctx context.Context, claims Claims) ([]byte, error) {
	secret, err := a.deriver.DeriveSecret(ctx, claims)
	if err != nil {
		return nil, newError(ErrCodeSecretUnavailable, err)
	}
	if len(secret) == 0 {
		return nil, newError(ErrCodeSecretUnavailable, errors.New("deriver returned an empty secret"))
	}
	return secret, nil
}

// classify keeps codec errors that already carry a token code and assigns
// fallback to anything else.
func classify(err error, fallback ErrorCode) error {
	switch CodeOf(err) {
	case ErrCodeMalformedToken, ErrCodeSignatureInvalid, ErrCodeExpired:
		return err
	}
	return newError(fallback, err)
}

func missingField(name string) error {
	return newError(ErrCodeMissingField, fmt.Errorf("%s is required", name))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
