package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/hzshumeng/skillacademy/internal/domain/entities"
	"github.com/hzshumeng/skillacademy/internal/domain/repositories"
	"github.com/hzshumeng/skillacademy/internal/pkg/idgen"
	"github.com/hzshumeng/skillacademy/internal/pkg/metrics"
)

// UserRepository implements the UserRepository interface for PostgreSQL
type UserRepository struct {
	db  *sqlx.DB
	log *slog.Logger
}

// NewUserRepository creates a new PostgreSQL user repository
func NewUserRepository(db *sqlx.DB) repositories.UserRepository {
	return &UserRepository{
		db:  db,
		log: slog.Default().With(slog.String("repo", "user")),
	}
}

// userRow represents a user as stored in the database
type userRow struct {
	ID             string    `db:"id"`
	SecondMeUserID string    `db:"secondme_user_id"`
	AccessToken    string    `db:"access_token"`
	RefreshToken   string    `db:"refresh_token"`
	TokenExpiresAt time.Time `db:"token_expires_at"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// toEntity converts a userRow to a domain entity
func (r *userRow) toEntity() *entities.User {
	return &entities.User{
		ID:             r.ID,
		SecondMeUserID: r.SecondMeUserID,
		AccessToken:    r.AccessToken,
		RefreshToken:   r.RefreshToken,
		TokenExpiresAt: r.TokenExpiresAt,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

// Upsert creates the user for secondmeUserID if absent, otherwise replaces
// the stored token fields. The ON CONFLICT clause makes the create-or-update
// a single atomic statement, so concurrent logins for the same SecondMe
// account cannot interleave partial writes.
func (r *UserRepository) Upsert(ctx context.Context, secondmeUserID string, creds entities.Credentials) (*entities.User, error) {
	start := time.Now()
	var err error
	defer func() {
		metrics.RecordDBOperation("user", "upsert", time.Since(start), 1, err)
	}()

	r.log.Debug("upserting user", slog.String("secondme_user_id", secondmeUserID))

	now := time.Now()
	row := userRow{
		ID:             idgen.GenerateID(),
		SecondMeUserID: secondmeUserID,
		AccessToken:    creds.AccessToken,
		RefreshToken:   creds.RefreshToken,
		TokenExpiresAt: creds.TokenExpiresAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	// The generated id is only used on the insert branch; an existing row
	// keeps its id and created_at.
	query := `INSERT INTO users (
			id, secondme_user_id, access_token, refresh_token,
			token_expires_at, created_at, updated_at
		) VALUES (
			:id, :secondme_user_id, :access_token, :refresh_token,
			:token_expires_at, :created_at, :updated_at
		)
		ON CONFLICT (secondme_user_id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_expires_at = EXCLUDED.token_expires_at,
			updated_at = EXCLUDED.updated_at
		RETURNING id, secondme_user_id, access_token, refresh_token,
		          token_expires_at, created_at, updated_at`

	stmt, err := r.db.PrepareNamedContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	var result userRow
	if err = stmt.GetContext(ctx, &result, row); err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}

	return result.toEntity(), nil
}

// GetByID retrieves a user by their local ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*entities.User, error) {
	start := time.Now()
	var err error
	var rowCount int64
	defer func() {
		metrics.RecordDBOperation("user", "get_by_id", time.Since(start), rowCount, err)
	}()

	var row userRow
	query := `
		SELECT id, secondme_user_id, access_token, refresh_token,
		       token_expires_at, created_at, updated_at
		FROM users
		WHERE id = $1`

	err = r.db.GetContext(ctx, &row, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			err = repositories.ErrUserNotFound
			return nil, err
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	rowCount = 1
	return row.toEntity(), nil
}

// UpdateTokens replaces the token fields for an existing user
func (r *UserRepository) UpdateTokens(ctx context.Context, id string, creds entities.Credentials) error {
	start := time.Now()
	var err error
	var rowsAffected int64
	defer func() {
		metrics.RecordDBOperation("user", "update_tokens", time.Since(start), rowsAffected, err)
	}()

	r.log.Debug("updating user tokens", slog.String("id", id))

	query := `
		UPDATE users SET
			access_token = $1,
			refresh_token = $2,
			token_expires_at = $3,
			updated_at = $4
		WHERE id = $5`

	result, err := r.db.ExecContext(ctx, query,
		creds.AccessToken, creds.RefreshToken, creds.TokenExpiresAt, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update user tokens: %w", err)
	}

	rowsAffected, err = result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		err = repositories.ErrUserNotFound
		return err
	}

	return nil
}
