package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

type Setting struct {
	Key         string `db:"key"`
	Value       string `db:"value"`
	Description string `db:"description"`
}

func (s *PostgresStorage) GetPricingSettings(ctx context.Context) ([]Setting, error) {
	const operation = "storage.GetPricingSettings"
	const query = `SELECT key, value, description FROM pricing_settings ORDER BY key`

	var settings []Setting
	if err := s.db.SelectContext(ctx, &settings, query); err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	return settings, nil
}

// SavePricingSettings upserts every setting in a single transaction.
func (s *PostgresStorage) SavePricingSettings(ctx context.Context, settings []Setting) error {
	const operation = "storage.SavePricingSettings"
	const query = `
        INSERT INTO pricing_settings (key, value, description, updated_at)
        VALUES ($1, $2, $3, NOW())
        ON CONFLICT (key) DO UPDATE
        SET value = EXCLUDED.value,
            description = EXCLUDED.description,
            updated_at = NOW()
    `

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, setting := range settings {
			if _, err := tx.ExecContext(ctx, query, setting.Key, setting.Value, setting.Description); err != nil {
				return fmt.Errorf("upsert %s: %w", setting.Key, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}

	s.logger.Debug("Pricing settings saved", zap.Int("count", len(settings)))
	return nil
}
