package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schema is applied at startup. Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS mail_credentials (
		user_id       UUID PRIMARY KEY,
		provider      TEXT NOT NULL DEFAULT 'google',
		email         TEXT NOT NULL DEFAULT '',
		access_token  TEXT NOT NULL DEFAULT '',
		refresh_token TEXT NOT NULL DEFAULT '',
		token_type    TEXT NOT NULL DEFAULT '',
		expiry        TIMESTAMPTZ,
		scopes        TEXT[] NOT NULL DEFAULT '{}',
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS emails (
		user_id         UUID NOT NULL,
		id              TEXT NOT NULL,
		thread_id       TEXT NOT NULL DEFAULT '',
		subject         TEXT NOT NULL DEFAULT '',
		sender          TEXT NOT NULL DEFAULT '',
		received_at     TIMESTAMPTZ NOT NULL,
		snippet         TEXT NOT NULL DEFAULT '',
		body            TEXT NOT NULL DEFAULT '',
		unsubscribe_url TEXT NOT NULL DEFAULT '',
		raw_payload     BYTEA,
		processed       BOOLEAN NOT NULL DEFAULT false,
		hidden          BOOLEAN NOT NULL DEFAULT false,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (user_id, id)
	)`,
	`DO $$ BEGIN
		IF EXISTS (SELECT 1 FROM information_schema.columns
			WHERE table_name = 'emails' AND column_name = 'raw_payload' AND data_type = 'jsonb') THEN
			ALTER TABLE emails ALTER COLUMN raw_payload TYPE BYTEA USING convert_to(raw_payload::text, 'UTF8');
		END IF;
	END $$`,
	`CREATE INDEX IF NOT EXISTS idx_emails_unprocessed ON emails (user_id, received_at) WHERE NOT processed`,
	`CREATE TABLE IF NOT EXISTS classifications (
		user_id       UUID NOT NULL,
		email_id      TEXT NOT NULL,
		category      TEXT NOT NULL,
		confidence    DOUBLE PRECISION NOT NULL DEFAULT 0,
		model         TEXT NOT NULL DEFAULT '',
		classified_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (user_id, email_id),
		FOREIGN KEY (user_id, email_id) REFERENCES emails (user_id, id)
	)`,
	`CREATE TABLE IF NOT EXISTS meetings (
		user_id    UUID NOT NULL,
		email_id   TEXT NOT NULL,
		title      TEXT NOT NULL,
		start_time TIMESTAMPTZ NOT NULL,
		end_time   TIMESTAMPTZ NOT NULL,
		location   TEXT NOT NULL DEFAULT '',
		attendees  TEXT[] NOT NULL DEFAULT '{}',
		PRIMARY KEY (user_id, email_id),
		FOREIGN KEY (user_id, email_id) REFERENCES classifications (user_id, email_id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS tasks (
		user_id     UUID NOT NULL,
		email_id    TEXT NOT NULL,
		description TEXT NOT NULL,
		due_date    TIMESTAMPTZ,
		status      TEXT NOT NULL DEFAULT 'pending',
		PRIMARY KEY (user_id, email_id),
		FOREIGN KEY (user_id, email_id) REFERENCES classifications (user_id, email_id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS unsubscribe_entries (
		user_id         UUID NOT NULL,
		email_id        TEXT NOT NULL,
		category        TEXT NOT NULL,
		unsubscribe_url TEXT NOT NULL DEFAULT '',
		status          TEXT NOT NULL DEFAULT 'pending',
		PRIMARY KEY (user_id, email_id),
		FOREIGN KEY (user_id, email_id) REFERENCES classifications (user_id, email_id) ON DELETE CASCADE
	)`,
}

// Migrate creates missing tables and indexes.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement %d: %w", i, err)
		}
	}
	return nil
}
