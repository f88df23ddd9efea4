package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/noah-isme/cargo-backoffice/internal/common"
)

const (
	claimRole   = "role"
	claimBranch = "branch_id"
)

// tokenCodec signs and verifies HS256 access tokens. Verification pins the
// algorithm, so tokens signed with "none" or another HMAC size are rejected.
type tokenCodec struct {
	secret   []byte
	issuer   string
	audience string
	skew     time.Duration
	ttl      time.Duration
}

func (c tokenCodec) sign(u User, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(c.ttl)
	b := jwt.NewBuilder().
		Subject(u.ID).
		Issuer(c.issuer).
		Audience([]string{c.audience}).
		IssuedAt(now).
		NotBefore(now.Add(-c.skew)).
		Expiration(expiresAt).
		Claim(claimRole, u.Role)
	if u.BranchID != nil {
		b = b.Claim(claimBranch, *u.BranchID)
	}
	tok, err := b.Build()
	if err != nil {
		return "", time.Time{}, err
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, c.secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return string(signed), expiresAt, nil
}

func (c tokenCodec) verify(raw string, now time.Time) (common.Principal, error) {
	opts := []jwt.ParseOption{
		jwt.WithKey(jwa.HS256, c.secret),
		jwt.WithValidate(true),
		jwt.WithClock(jwt.ClockFunc(func() time.Time { return now })),
		jwt.WithAcceptableSkew(c.skew),
		jwt.WithRequiredClaim(jwt.SubjectKey),
		jwt.WithRequiredClaim(jwt.ExpirationKey),
		jwt.WithRequiredClaim(claimRole),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}
	if c.audience != "" {
		opts = append(opts, jwt.WithAudience(c.audience))
	}
	tok, err := jwt.ParseString(raw, opts...)
	if err != nil {
		return common.Principal{}, fmt.Errorf("auth: verify token: %w", err)
	}

	p := common.Principal{UserID: tok.Subject()}
	if v, ok := tok.Get(claimRole); ok {
		p.Role, _ = v.(string)
	}
	if v, ok := tok.Get(claimBranch); ok {
		if f, ok := v.(float64); ok {
			p.BranchID = int64(f)
		}
	}
	if p.UserID == "" || p.Role == "" {
		return common.Principal{}, errors.New("auth: token missing subject or role")
	}
	return p, nil
}
