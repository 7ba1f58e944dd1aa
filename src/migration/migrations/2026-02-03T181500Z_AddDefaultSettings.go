package migrations

import (
	"context"
	"time"

	"git.handmade.network/hmn/forum/src/migration/types"
	"git.handmade.network/hmn/forum/src/oops"
	"github.com/jackc/pgx/v5"
)

func init() {
	registerMigration(AddDefaultSettings{})
}

type AddDefaultSettings struct{}

func (m AddDefaultSettings) Version() types.MigrationVersion {
	return types.MigrationVersion(time.Date(2026, 2, 3, 18, 15, 0, 0, time.UTC))
}

func (m AddDefaultSettings) Name() string {
	return "AddDefaultSettings"
}

func (m AddDefaultSettings) Description() string {
	return "Store default forum settings so admins have a row to edit"
}

func (m AddDefaultSettings) Up(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx,
		`
		INSERT INTO persistent_var (name, value)
		VALUES ('forum_settings', '{"comments_per_page": 20, "topics_per_page": 20, "out_of_range": "clamp"}')
		ON CONFLICT (name) DO NOTHING;

		CREATE INDEX topic_notification_unread ON topic_notification (user_id, date DESC) WHERE is_active AND NOT is_read;
		`,
	)
	if err != nil {
		return oops.New(err, "failed to add default settings")
	}
	return nil
}

func (m AddDefaultSettings) Down(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx,
		`
		DROP INDEX topic_notification_unread;
		DELETE FROM persistent_var WHERE name = 'forum_settings';
		`,
	)
	if err != nil {
		return oops.New(err, "failed to remove default settings")
	}
	return nil
}
