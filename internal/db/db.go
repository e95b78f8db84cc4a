package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Connect initializes the database connection and runs migrations.
func Connect(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

func runMigrations(db *sqlx.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id SERIAL PRIMARY KEY,
            name TEXT NOT NULL,
            email TEXT NOT NULL DEFAULT '',
            push_token TEXT,
            rating DOUBLE PRECISION NOT NULL DEFAULT 0
        );`,
		`CREATE TABLE IF NOT EXISTS listings (
            id SERIAL PRIMARY KEY,
            owner_id INT NOT NULL REFERENCES users(id),
            title TEXT NOT NULL,
            photo TEXT
        );`,
		`CREATE TABLE IF NOT EXISTS chats (
            id SERIAL PRIMARY KEY,
            is_system BOOLEAN NOT NULL DEFAULT FALSE,
            listing_id INT REFERENCES listings(id),
            user1_id INT NOT NULL REFERENCES users(id),
            user2_id INT NOT NULL REFERENCES users(id),
            last_message_text TEXT,
            last_message_at TIMESTAMPTZ,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            CHECK (user1_id < user2_id),
            CHECK (is_system OR listing_id IS NOT NULL)
        );`,
		// One chat per participant pair and listing; one system chat per pair.
		`CREATE UNIQUE INDEX IF NOT EXISTS chats_pair_listing_key
            ON chats (user1_id, user2_id, listing_id) WHERE NOT is_system;`,
		`CREATE UNIQUE INDEX IF NOT EXISTS chats_system_pair_key
            ON chats (user1_id, user2_id) WHERE is_system;`,
		`CREATE TABLE IF NOT EXISTS chat_unread (
            chat_id INT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
            user_id INT NOT NULL REFERENCES users(id),
            unread INT NOT NULL DEFAULT 0 CHECK (unread >= 0),
            PRIMARY KEY (chat_id, user_id)
        );`,
		`CREATE TABLE IF NOT EXISTS messages (
            id SERIAL PRIMARY KEY,
            chat_id INT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
            sender_id INT NOT NULL REFERENCES users(id),
            text TEXT NOT NULL DEFAULT '',
            media TEXT[] NOT NULL DEFAULT '{}',
            media_type TEXT NOT NULL DEFAULT '',
            is_read BOOLEAN NOT NULL DEFAULT FALSE,
            reaction TEXT,
            reply_to INT REFERENCES messages(id) ON DELETE SET NULL,
            is_changed BOOLEAN NOT NULL DEFAULT FALSE,
            action_type TEXT,
            action_label TEXT,
            action_counterpart_id INT REFERENCES users(id),
            action_listing_id INT REFERENCES listings(id),
            action_meta JSONB,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE INDEX IF NOT EXISTS messages_chat_created_idx
            ON messages (chat_id, created_at DESC);`,
		// At most one pending invite per (chat, kind, counterpart, listing).
		// COALESCE keeps listing-less invites in the key; NULLs would
		// otherwise compare distinct and let duplicates through.
		`CREATE UNIQUE INDEX IF NOT EXISTS messages_pending_invite_key
            ON messages (chat_id, action_type, action_counterpart_id, COALESCE(action_listing_id, 0))
            WHERE action_type IS NOT NULL;`,
		`CREATE TABLE IF NOT EXISTS reviews (
            id SERIAL PRIMARY KEY,
            author_id INT NOT NULL REFERENCES users(id),
            target_id INT NOT NULL REFERENCES users(id),
            listing_id INT NOT NULL REFERENCES listings(id),
            text TEXT NOT NULL,
            rating INT CHECK (rating BETWEEN 1 AND 5),
            parent_id INT REFERENCES reviews(id) ON DELETE CASCADE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		// One root review per author/target/listing; replies are unlimited.
		`CREATE UNIQUE INDEX IF NOT EXISTS reviews_root_key
            ON reviews (author_id, target_id, listing_id) WHERE parent_id IS NULL;`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}
