package secondme

import "time"

// Token is the canonical token record normalized from the provider's
// camelCase response fields. A Token always replaces the previous one
// wholesale on exchange or refresh.
type Token struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64 // seconds until the access token expires
}

// ExpiresAt converts the relative expiry into an absolute timestamp
// anchored at now.
func (t Token) ExpiresAt(now time.Time) time.Time {
	return now.Add(time.Duration(t.ExpiresIn) * time.Second)
}
