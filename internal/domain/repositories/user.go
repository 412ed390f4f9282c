package repositories

import (
	"context"

	"github.com/hzshumeng/skillacademy/internal/domain/entities"
)

// UserRepository defines the persistence contract for academy users.
// Implementations must make Upsert atomic per SecondMe user id: concurrent
// logins for the same provider account may race, and neither may observe a
// half-written token triple.
type UserRepository interface {
	// Upsert creates the user for secondmeUserID if absent, otherwise
	// replaces the stored token fields. Returns the resulting record.
	Upsert(ctx context.Context, secondmeUserID string, creds entities.Credentials) (*entities.User, error)

	// GetByID retrieves a user by local id
	GetByID(ctx context.Context, id string) (*entities.User, error)

	// UpdateTokens replaces the token fields for an existing user,
	// typically after a read-path refresh.
	UpdateTokens(ctx context.Context, id string, creds entities.Credentials) error
}
