package joat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// TokenSource returns an oauth2.TokenSource that issues a fresh token for
// req on every call. IssuedAt in req is ignored; each token is stamped with
// the authority clock and, unless req names one, a new token id.
func (a *Authority) TokenSource(ctx context.Context, req IssueRequest) oauth2.TokenSource {
	return &authoritySource{
		ctx:       detach(ctx),
		authority: a,
		req:       cloneRequest(req),
	}
}

type authoritySource struct {
	ctx       context.Context
	authority *Authority
	req       IssueRequest
}

func (s *authoritySource) Token() (*oauth2.Token, error) {
	req := cloneRequest(s.req)
	req.IssuedAt = time.Time{}
	if req.TokenID == "" {
		req.TokenID = NewTokenID()
	}
	token, claims, err := s.authority.issue(s.ctx, req)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
		Expiry:      time.Unix(claims.ExpiresAt, 0),
	}, nil
}

// Minter hands out access tokens and reuses each one until it nears expiry.
// Token sources are cached per resolved request, token id included. A request
// without a token id gets a fresh one on every refresh; an explicit token id
// is only ever served to callers that ask for it.
type Minter struct {
	mu        sync.RWMutex
	authority *Authority
	entries   map[minterKey]*tokenSourceEntry
}

type minterKey struct {
	Provider string
	ClientID string
	UserID   string
	Scope    string
	TokenID  string
	Lifetime time.Duration
	Default  bool
}

type tokenSourceEntry struct {
	source oauth2.TokenSource
}

// NewMinter constructs a Minter backed by authority.
func NewMinter(authority *Authority) *Minter {
	return &Minter{
		authority: authority,
		entries:   make(map[minterKey]*tokenSourceEntry),
	}
}

// Token returns an access token for req, issuing a new one only when the
// cached token for the same combination has expired.
func (m *Minter) Token(ctx context.Context, req IssueRequest) (string, error) {
	if m.authority == nil {
		return "", errors.New("minter has no authority")
	}
	if _, err := m.authority.Claims(req); err != nil {
		return "", err
	}

	key := minterKey{
		Provider: firstNonEmpty(req.Provider, m.authority.provider),
		ClientID: firstNonEmpty(req.ClientID, m.authority.clientID),
		UserID:   req.UserID,
		Scope:    string(claimInfo(req.Scope...)),
		TokenID:  req.TokenID,
		Default:  req.Lifetime == nil,
	}
	if req.Lifetime != nil {
		key.Lifetime = *req.Lifetime
	}

	entry := m.getOrCreate(ctx, key, req)
	tok, err := entry.source.Token()
	if err != nil {
		return "", fmt.Errorf("fetch token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", errors.New("empty access token returned")
	}
	return tok.AccessToken, nil
}

func (m *Minter) getOrCreate(ctx context.Context, key minterKey, req IssueRequest) *tokenSourceEntry {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()
	if ok {
		return entry
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok = m.entries[key]; ok {
		return entry
	}

	entry = &tokenSourceEntry{source: oauth2.ReuseTokenSource(nil, m.authority.TokenSource(ctx, req))}
	m.entries[key] = entry
	return entry
}

func cloneRequest(in IssueRequest) IssueRequest {
	out := in
	if in.Scope != nil {
		out.Scope = append([]string{}, in.Scope...)
	}
	if in.Lifetime != nil {
		out.Lifetime = Lifetime(*in.Lifetime)
	}
	return out
}

// detach keeps ctx values but drops its cancellation, so a cancelled first
// caller cannot break later refreshes.
func detach(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return context.WithoutCancel(ctx)
}
