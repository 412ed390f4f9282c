package entities

import "time"

// User represents an academy user linked to a SecondMe account.
// The token fields mirror the most recent exchange or refresh against the
// provider and are always replaced wholesale, never partially updated.
type User struct {
	ID             string    `json:"id"`
	SecondMeUserID string    `json:"secondme_user_id"`
	AccessToken    string    `json:"-"`
	RefreshToken   string    `json:"-"`
	TokenExpiresAt time.Time `json:"token_expires_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Credentials is the token triple stored on a user after a successful
// exchange or refresh.
type Credentials struct {
	AccessToken    string
	RefreshToken   string
	TokenExpiresAt time.Time
}
