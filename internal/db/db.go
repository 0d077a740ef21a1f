package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Connect initializes the database connection and runs migrations.
func Connect(ctx context.Context, dsn string, logger *zap.Logger) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations applied")

	return db, nil
}

// The users, profile and connection tables belong to the account and
// connection services; they are created here only when missing so a
// standalone deployment has something to join against.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
        id TEXT PRIMARY KEY,
        first_name TEXT NOT NULL DEFAULT '',
        last_name TEXT NOT NULL DEFAULT '',
        role TEXT NOT NULL
    );`,
	`CREATE TABLE IF NOT EXISTS doctor_profiles (
        id TEXT PRIMARY KEY,
        user_id TEXT NOT NULL UNIQUE REFERENCES users(id)
    );`,
	`CREATE TABLE IF NOT EXISTS patient_profiles (
        id TEXT PRIMARY KEY,
        user_id TEXT NOT NULL UNIQUE REFERENCES users(id)
    );`,
	`CREATE TABLE IF NOT EXISTS connections (
        id TEXT PRIMARY KEY,
        doctor_id TEXT NOT NULL REFERENCES doctor_profiles(id),
        patient_id TEXT NOT NULL REFERENCES patient_profiles(id),
        status TEXT NOT NULL DEFAULT 'ACTIVE',
        doctor_unread_count INT NOT NULL DEFAULT 0,
        patient_unread_count INT NOT NULL DEFAULT 0,
        last_message_at TIMESTAMPTZ,
        last_activity_at TIMESTAMPTZ,
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    );`,
	`CREATE INDEX IF NOT EXISTS connections_doctor_idx ON connections (doctor_id, last_message_at DESC NULLS LAST);`,
	`CREATE INDEX IF NOT EXISTS connections_patient_idx ON connections (patient_id, last_message_at DESC NULLS LAST);`,
	`CREATE TABLE IF NOT EXISTS chats (
        id TEXT PRIMARY KEY,
        connection_id TEXT NOT NULL UNIQUE REFERENCES connections(id) ON DELETE CASCADE,
        last_message_at TIMESTAMPTZ,
        last_message_preview VARCHAR(200),
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    );`,
	`CREATE TABLE IF NOT EXISTS messages (
        id TEXT PRIMARY KEY,
        chat_id TEXT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
        sender_id TEXT NOT NULL,
        content TEXT NOT NULL,
        message_type TEXT NOT NULL DEFAULT 'TEXT',
        is_read BOOLEAN NOT NULL DEFAULT FALSE,
        is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    );`,
	`CREATE INDEX IF NOT EXISTS messages_chat_order_idx ON messages (chat_id, created_at DESC, id DESC);`,
	`CREATE INDEX IF NOT EXISTS messages_unread_idx ON messages (chat_id, sender_id) WHERE is_read = FALSE AND is_deleted = FALSE;`,
}

func runMigrations(ctx context.Context, db *sqlx.DB) error {
	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return err
		}
	}
	return nil
}
