package migrations

import (
	"context"
	"time"

	"git.handmade.network/hmn/forum/src/migration/types"
	"git.handmade.network/hmn/forum/src/oops"
	"github.com/jackc/pgx/v5"
)

func init() {
	registerMigration(InitialSchema{})
}

type InitialSchema struct{}

func (m InitialSchema) Version() types.MigrationVersion {
	return types.MigrationVersion(time.Date(2026, 1, 12, 9, 0, 0, 0, time.UTC))
}

func (m InitialSchema) Name() string {
	return "InitialSchema"
}

func (m InitialSchema) Description() string {
	return "Create users, categories, topics, and comments"
}

func (m InitialSchema) Up(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx,
		`
		CREATE TABLE forum_user (
			id SERIAL PRIMARY KEY,
			username VARCHAR(30) NOT NULL,
			password VARCHAR(256) NOT NULL DEFAULT '',
			email VARCHAR(254) NOT NULL DEFAULT '',
			date_joined TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			last_seen TIMESTAMP WITH TIME ZONE,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			is_staff BOOLEAN NOT NULL DEFAULT FALSE,
			is_moderator BOOLEAN NOT NULL DEFAULT FALSE
		);
		CREATE UNIQUE INDEX forum_user_username ON forum_user (LOWER(username));

		CREATE TABLE forum_group (
			id SERIAL PRIMARY KEY,
			name VARCHAR(80) NOT NULL UNIQUE
		);

		CREATE TABLE user_group (
			user_id INT NOT NULL REFERENCES forum_user (id) ON DELETE CASCADE,
			group_id INT NOT NULL REFERENCES forum_group (id) ON DELETE CASCADE,
			PRIMARY KEY (user_id, group_id)
		);

		CREATE TABLE session (
			id VARCHAR(40) PRIMARY KEY,
			user_id INT NOT NULL REFERENCES forum_user (id) ON DELETE CASCADE,
			expires_at TIMESTAMP WITH TIME ZONE NOT NULL,
			csrf_token VARCHAR(30) NOT NULL
		);

		CREATE TABLE category (
			id SERIAL PRIMARY KEY,
			parent_id INT REFERENCES category (id) ON DELETE CASCADE,
			title VARCHAR(75) NOT NULL,
			slug VARCHAR(100) NOT NULL,
			description VARCHAR(255) NOT NULL DEFAULT '',
			color VARCHAR(7) NOT NULL DEFAULT '',
			sort_order INT NOT NULL DEFAULT 0,
			is_global BOOLEAN NOT NULL DEFAULT TRUE,
			is_closed BOOLEAN NOT NULL DEFAULT FALSE,
			is_removed BOOLEAN NOT NULL DEFAULT FALSE,
			is_private BOOLEAN NOT NULL DEFAULT FALSE,
			reindex_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);

		CREATE TABLE category_restriction (
			category_id INT NOT NULL REFERENCES category (id) ON DELETE CASCADE,
			group_id INT NOT NULL REFERENCES forum_group (id) ON DELETE CASCADE,
			kind INT NOT NULL,
			PRIMARY KEY (category_id, group_id, kind)
		);

		CREATE TABLE topic (
			id SERIAL PRIMARY KEY,
			category_id INT NOT NULL REFERENCES category (id),
			user_id INT NOT NULL REFERENCES forum_user (id),
			title VARCHAR(255) NOT NULL,
			slug VARCHAR(255) NOT NULL,
			date TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			last_active TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			last_commenter_id INT REFERENCES forum_user (id) ON DELETE SET NULL,
			is_pinned BOOLEAN NOT NULL DEFAULT FALSE,
			is_globally_pinned BOOLEAN NOT NULL DEFAULT FALSE,
			is_closed BOOLEAN NOT NULL DEFAULT FALSE,
			is_removed BOOLEAN NOT NULL DEFAULT FALSE,
			comment_count INT NOT NULL DEFAULT 0,
			view_count INT NOT NULL DEFAULT 0,
			reindex_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);
		CREATE INDEX topic_category_activity ON topic (category_id, is_pinned DESC, last_active DESC);
		CREATE INDEX topic_active_feed ON topic (is_globally_pinned DESC, last_active DESC);
		CREATE INDEX topic_reindex_at ON topic (reindex_at);

		CREATE TABLE comment (
			id SERIAL PRIMARY KEY,
			topic_id INT NOT NULL REFERENCES topic (id),
			user_id INT NOT NULL REFERENCES forum_user (id),
			date TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			last_modified TIMESTAMP WITH TIME ZONE,
			edit_count INT NOT NULL DEFAULT 0,
			comment TEXT NOT NULL DEFAULT '',
			comment_html TEXT NOT NULL DEFAULT '',
			action INT NOT NULL DEFAULT 0,
			is_removed BOOLEAN NOT NULL DEFAULT FALSE,
			ip_address VARCHAR(45) NOT NULL DEFAULT ''
		);
		CREATE INDEX comment_thread_order ON comment (topic_id, date, id);
		CREATE INDEX comment_user ON comment (user_id, date DESC);

		CREATE TABLE comment_history (
			id SERIAL PRIMARY KEY,
			comment_id INT NOT NULL REFERENCES comment (id) ON DELETE CASCADE,
			date TIMESTAMP WITH TIME ZONE NOT NULL,
			comment_html TEXT NOT NULL
		);
		CREATE INDEX comment_history_comment ON comment_history (comment_id);

		CREATE TABLE topic_notification (
			id SERIAL PRIMARY KEY,
			user_id INT NOT NULL REFERENCES forum_user (id) ON DELETE CASCADE,
			topic_id INT NOT NULL REFERENCES topic (id) ON DELETE CASCADE,
			comment_id INT NOT NULL REFERENCES comment (id) ON DELETE CASCADE,
			action INT NOT NULL,
			date TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			is_read BOOLEAN NOT NULL DEFAULT FALSE,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			UNIQUE (user_id, topic_id)
		);

		CREATE TABLE asset (
			id UUID PRIMARY KEY,
			uploader_id INT REFERENCES forum_user (id) ON DELETE SET NULL,
			storage_key VARCHAR(2000) NOT NULL UNIQUE,
			filename VARCHAR(1000) NOT NULL,
			size INT NOT NULL,
			mime_type VARCHAR(255) NOT NULL,
			sha1sum VARCHAR(40) NOT NULL,
			width INT NOT NULL DEFAULT 0,
			height INT NOT NULL DEFAULT 0,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);

		CREATE TABLE persistent_var (
			name VARCHAR(255) NOT NULL,
			value TEXT NOT NULL
		);
		CREATE UNIQUE INDEX persistent_var_name ON persistent_var (name);
		`,
	)
	if err != nil {
		return oops.New(err, "failed to create initial tables")
	}
	return nil
}

func (m InitialSchema) Down(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx,
		`
		DROP TABLE persistent_var;
		DROP TABLE asset;
		DROP TABLE topic_notification;
		DROP TABLE comment_history;
		DROP TABLE comment;
		DROP TABLE topic;
		DROP TABLE category_restriction;
		DROP TABLE category;
		DROP TABLE session;
		DROP TABLE user_group;
		DROP TABLE forum_group;
		DROP TABLE forum_user;
		`,
	)
	if err != nil {
		return oops.New(err, "failed to drop initial tables")
	}
	return nil
}
