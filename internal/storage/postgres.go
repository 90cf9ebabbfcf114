package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

type PostgresClient struct {
	db *sql.DB
}

type ProfileRow struct {
	UserID      string
	DisplayName string
	Handle      string
	AvatarURL   string
	AccessTier  string
	Verified    bool
	UpdatedAt   time.Time
}

func NewPostgresClient(connStr string) (*PostgresClient, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	client := &PostgresClient{db: db}

	// Initialize schema
	if err := client.initSchema(); err != nil {
		return nil, err
	}

	return client, nil
}

func (p *PostgresClient) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS profiles (
		user_id VARCHAR(255) PRIMARY KEY,
		display_name VARCHAR(100) NOT NULL DEFAULT '',
		handle VARCHAR(50) NOT NULL DEFAULT '',
		avatar_url TEXT NOT NULL DEFAULT '',
		access_tier VARCHAR(20) NOT NULL DEFAULT 'standard',
		verified BOOLEAN NOT NULL DEFAULT FALSE,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_profiles_access_tier ON profiles (access_tier);
	`

	_, err := p.db.Exec(schema)
	return err
}

func (p *PostgresClient) Close() error {
	return p.db.Close()
}

func (p *PostgresClient) UpsertProfile(ctx context.Context, row ProfileRow) error {
	query := `
		INSERT INTO profiles (user_id, display_name, handle, avatar_url, access_tier, verified, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			handle = EXCLUDED.handle,
			avatar_url = EXCLUDED.avatar_url,
			access_tier = EXCLUDED.access_tier,
			verified = EXCLUDED.verified,
			updated_at = NOW()
	`

	_, err := p.db.ExecContext(ctx, query, row.UserID, row.DisplayName, row.Handle, row.AvatarURL, row.AccessTier, row.Verified)
	return err
}

// ProfilesByID fetches every profile whose user_id is in ids. Missing ids are
// simply absent from the result.
func (p *PostgresClient) ProfilesByID(ctx context.Context, ids []string) ([]ProfileRow, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `
		SELECT user_id, display_name, handle, avatar_url, access_tier, verified, updated_at
		FROM profiles
		WHERE user_id = ANY($1)
	`

	rows, err := p.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]ProfileRow, 0, len(ids))
	for rows.Next() {
		var row ProfileRow
		if err := rows.Scan(
			&row.UserID,
			&row.DisplayName,
			&row.Handle,
			&row.AvatarURL,
			&row.AccessTier,
			&row.Verified,
			&row.UpdatedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, row)
	}

	return records, rows.Err()
}
