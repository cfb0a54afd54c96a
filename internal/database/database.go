package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/tahcohcat/reconectar/internal/logger"
)

type DB struct {
	*sqlx.DB
}

// NewDB opens the sqlite row store and creates the schema.
func NewDB(databaseURL string) (*DB, error) {
	if databaseURL == "" {
		databaseURL = "reconectar.db" // Default SQLite file
	}

	db, err := sqlx.Connect("sqlite3", databaseURL+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// every connection to :memory: is a separate database
	if strings.Contains(databaseURL, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	dbWrapper := &DB{DB: db}

	if err := dbWrapper.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.New().With("path", databaseURL).Info("Database connection established and tables initialized")
	return dbWrapper, nil
}

// createTables creates the necessary database tables
func (db *DB) createTables() error {
	usersTable := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		last_login_at DATETIME,
		is_active BOOLEAN DEFAULT TRUE
	);`

	profilesTable := `
	CREATE TABLE IF NOT EXISTS profiles (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		username TEXT NOT NULL,
		email TEXT NOT NULL,
		avatar TEXT,
		bio TEXT,
		level INTEGER NOT NULL DEFAULT 1 CHECK (level >= 1),
		xp INTEGER NOT NULL DEFAULT 0 CHECK (xp >= 0),
		digital_detox_days INTEGER NOT NULL DEFAULT 0 CHECK (digital_detox_days >= 0),
		active_challenges INTEGER NOT NULL DEFAULT 0 CHECK (active_challenges >= 0),
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		FOREIGN KEY (id) REFERENCES users(id) ON DELETE CASCADE
	);`

	rolesTable := `
	CREATE TABLE IF NOT EXISTS user_roles (
		user_id TEXT NOT NULL,
		role TEXT NOT NULL CHECK (role IN ('user', 'specialist', 'admin')),
		PRIMARY KEY (user_id, role),
		FOREIGN KEY (user_id) REFERENCES profiles(id) ON DELETE CASCADE
	);`

	chatTable := `
	CREATE TABLE IF NOT EXISTS chat_messages (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		specialist_id TEXT,
		message TEXT NOT NULL,
		is_from_user BOOLEAN NOT NULL,
		read BOOLEAN NOT NULL DEFAULT FALSE,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES profiles(id) ON DELETE CASCADE
	);`

	postsTable := `
	CREATE TABLE IF NOT EXISTS community_posts (
		id TEXT PRIMARY KEY,
		author_id TEXT NOT NULL,
		content TEXT NOT NULL,
		image TEXT,
		likes INTEGER NOT NULL DEFAULT 0 CHECK (likes >= 0),
		created_at DATETIME NOT NULL,
		FOREIGN KEY (author_id) REFERENCES profiles(id) ON DELETE CASCADE
	);`

	likesTable := `
	CREATE TABLE IF NOT EXISTS post_likes (
		post_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		PRIMARY KEY (post_id, user_id),
		FOREIGN KEY (post_id) REFERENCES community_posts(id) ON DELETE CASCADE,
		FOREIGN KEY (user_id) REFERENCES profiles(id) ON DELETE CASCADE
	);`

	commentsTable := `
	CREATE TABLE IF NOT EXISTS post_comments (
		id TEXT PRIMARY KEY,
		post_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (post_id) REFERENCES community_posts(id) ON DELETE CASCADE,
		FOREIGN KEY (user_id) REFERENCES profiles(id) ON DELETE CASCADE
	);`

	blocksTable := `
	CREATE TABLE IF NOT EXISTS user_blocks (
		user_id TEXT PRIMARY KEY,
		blocked_by TEXT NOT NULL,
		reason TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES profiles(id) ON DELETE CASCADE
	);`

	// admin-authored catalog
	challengesTable := `
	CREATE TABLE IF NOT EXISTS challenges (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		total_days INTEGER NOT NULL CHECK (total_days >= 1),
		reward_xp INTEGER NOT NULL CHECK (reward_xp >= 0),
		reward_badge TEXT,
		icon TEXT NOT NULL DEFAULT 'Trophy',
		created_by TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);`

	localStateTable := `
	CREATE TABLE IF NOT EXISTS local_state (
		state_key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		updated_at DATETIME NOT NULL
	);`

	// Create indexes for better performance
	indexes := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(email);`,
		`CREATE INDEX IF NOT EXISTS idx_chat_user_created ON chat_messages(user_id, created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_posts_created ON community_posts(created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_likes_user ON post_likes(user_id);`,
		`CREATE INDEX IF NOT EXISTS idx_comments_post ON post_comments(post_id, created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_roles_role ON user_roles(role);`,
	}

	tables := []string{
		usersTable, profilesTable, rolesTable, chatTable, postsTable,
		likesTable, commentsTable, blocksTable, challengesTable, localStateTable,
	}
	for _, query := range tables {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	for _, index := range indexes {
		if _, err := db.Exec(index); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

// InTx runs fn in a transaction, committing when fn returns nil.
func (db *DB) InTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
