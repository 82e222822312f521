package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/jengzang/records-tracks-go/internal/logging"
	"github.com/jengzang/records-tracks-go/internal/models"
	"github.com/jengzang/records-tracks-go/internal/store"
)

// SettingsRepository stores per-user settings as a JSON blob
type SettingsRepository struct {
	db *sql.DB
}

var _ store.SettingsStore = (*SettingsRepository)(nil)

// NewSettingsRepository creates a new settings repository
func NewSettingsRepository(db *sql.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// UserSettings returns the user's settings with defaults filled in. Missing
// rows and unreadable blobs fall back to the defaults.
func (r *SettingsRepository) UserSettings(ctx context.Context, userID int64) (models.UserSettings, error) {
	var blob string
	err := r.db.QueryRowContext(ctx, "SELECT settings FROM user_settings WHERE user_id = ?", userID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return models.DefaultUserSettings(), nil
	}
	if err != nil {
		return models.UserSettings{}, fmt.Errorf("failed to get user settings: %w", err)
	}

	var s models.UserSettings
	if err := json.Unmarshal([]byte(blob), &s); err != nil {
		logging.Warn().Err(err).Int64("user_id", userID).Msg("unreadable user settings, using defaults")
		return models.DefaultUserSettings(), nil
	}
	return s.WithDefaults(), nil
}

// SaveUserSettings replaces the user's settings blob.
func (r *SettingsRepository) SaveUserSettings(ctx context.Context, userID int64, settings models.UserSettings) error {
	blob, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal user settings: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO user_settings (user_id, settings, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET settings = excluded.settings, updated_at = excluded.updated_at`,
		userID, string(blob), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save user settings: %w", err)
	}
	return nil
}
