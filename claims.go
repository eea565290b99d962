package joat

import "time"

// Claims is the signed claim set carried by every access token.
type Claims struct {
	Issuer    string   `json:"iss"`
	Audience  string   `json:"aud"`
	Subject   string   `json:"sub"`
	Scope     []string `json:"scope"`
	IssuedAt  int64    `json:"iat"`
	ExpiresAt int64    `json:"exp"`
	TokenID   string   `json:"jti,omitempty"`
}

// IssueRequest describes a single token to issue. Zero values fall back to
// the authority defaults; Scope must be non-nil but may be empty.
type IssueRequest struct {
	Provider string
	ClientID string
	UserID   string
	Scope    []string
	IssuedAt time.Time
	Lifetime *time.Duration
	TokenID  string
}

// Lifetime is a convenience for filling IssueRequest.Lifetime.
func Lifetime(d time.Duration) *time.Duration {
	return &d
}

// Payload is what a successfully verified token authorizes.
type Payload struct {
	ClientID        string
	UserID          string
	AuthorizedScope []string

	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

func payloadFromClaims(c Claims) *Payload {
	return &Payload{
		ClientID:        c.Audience,
		UserID:          c.Subject,
		AuthorizedScope: append([]string{}, c.Scope...),
		TokenID:         c.TokenID,
		IssuedAt:        time.Unix(c.IssuedAt, 0).UTC(),
		ExpiresAt:       time.Unix(c.ExpiresAt, 0).UTC(),
	}
}

// wireClaims mirrors Claims with pointers so decoders can tell an absent
// claim from a zero one.
type wireClaims struct {
	Issuer    *string   `json:"iss"`
	Audience  *string   `json:"aud"`
	Subject   *string   `json:"sub"`
	Scope     *[]string `json:"scope"`
	IssuedAt  *int64    `json:"iat"`
	ExpiresAt *int64    `json:"exp"`
	TokenID   string    `json:"jti"`
}

func (w wireClaims) missing() string {
	switch {
	case w.Issuer == nil:
		return "iss"
	case w.Audience == nil:
		return "aud"
	case w.Subject == nil:
		return "sub"
	case w.Scope == nil || *w.Scope == nil:
		return "scope"
	case w.IssuedAt == nil:
		return "iat"
	case w.ExpiresAt == nil:
		return "exp"
	}
	return ""
}

func (w wireClaims) claims() Claims {
	c := Claims{TokenID: w.TokenID}
	if w.Issuer != nil {
		c.Issuer = *w.Issuer
	}
	if w.Audience != nil {
		c.Audience = *w.Audience
	}
	if w.Subject != nil {
		c.Subject = *w.Subject
	}
	if w.Scope != nil {
		c.Scope = *w.Scope
	}
	if w.IssuedAt != nil {
		c.IssuedAt = *w.IssuedAt
	}
	if w.ExpiresAt != nil {
		c.ExpiresAt = *w.ExpiresAt
	}
	return c
}
