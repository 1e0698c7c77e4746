package repository

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
)

// ProfileRepository mutates the user profile rows owned by the surrounding
// application. The jobs only ever downgrade tiers.
type ProfileRepository struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewProfileRepository creates a ProfileRepository.
func NewProfileRepository(db *sqlx.DB, logger *slog.Logger) *ProfileRepository {
	return &ProfileRepository{
		db:     db,
		logger: logger,
	}
}

// DowngradeToFree drops the owning user's tier to free after their
// subscription ends. Resolving the user through the subscription keeps the
// caller from having to carry the user id around.
func (r *ProfileRepository) DowngradeToFree(ctx context.Context, subscriptionID string) error {
	query := `
		UPDATE profiles
		SET subscription_tier = $2,
		    updated_at = NOW()
		WHERE id = (SELECT user_id FROM subscriptions WHERE id = $1)`

	if _, err := r.db.ExecContext(ctx, query, subscriptionID, FreeTier); err != nil {
		return fmt.Errorf("failed to downgrade profile: %w", err)
	}

	r.logger.Info("Profile downgraded to free tier",
		slog.String("subscription_id", subscriptionID),
	)

	return nil
}
