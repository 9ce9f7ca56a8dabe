package sys

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/mattn/go-sqlite3"
)

// --- Connection & Lifecycle ---

var DB *sql.DB

func InitDatabase(ctx context.Context, dataSourceName string) error {
	// The driver registers itself via its init() function
	_ = sqlite3.SQLiteDriver{}

	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return err
	}
	db.SetMaxOpenConns(5)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA cache_size=-2000;",
	}

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	for _, p := range pragmas {
		if _, err := db.ExecContext(initCtx, p); err != nil {
			_ = db.Close()
			return fmt.Errorf(MsgDatabasePragmaError, p, err)
		}
	}

	tx, err := db.BeginTx(initCtx, nil)
	if err != nil {
		_ = db.Close()
		return err
	}
	defer tx.Rollback()

	tableQueries := []string{
		`CREATE TABLE IF NOT EXISTS bot_config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS play_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			guild_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			url TEXT NOT NULL,
			title TEXT NOT NULL,
			uploader TEXT,
			duration_ms INTEGER DEFAULT 0,
			requester_id TEXT,
			played_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_play_history_guild ON play_history (guild_id, played_at)`,
	}

	for _, q := range tableQueries {
		if _, err := tx.ExecContext(initCtx, q); err != nil {
			_ = db.Close()
			return fmt.Errorf(MsgDatabaseTableError, err)
		}
	}

	if err := tx.Commit(); err != nil {
		_ = db.Close()
		return err
	}

	DB = db
	LogDatabase(MsgDatabaseInitSuccess)
	return nil
}

func CloseDatabase() {
	if DB != nil {
		_ = DB.Close()
		DB = nil
	}
}

// --- Bot Persistence ---

// BotConfig helpers are used by the loader for mode tracking and state.
func GetBotConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := DB.QueryRowContext(ctx, "SELECT value FROM bot_config WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

func SetBotConfig(ctx context.Context, key, value string) error {
	_, err := DB.ExecContext(ctx, `
		INSERT INTO bot_config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	return err
}

// --- Play History ---

// PlayRecord is one row of play_history.
type PlayRecord struct {
	GuildID     snowflake.ID
	SessionID   string
	URL         string
	Title       string
	Uploader    string
	Duration    time.Duration
	RequesterID snowflake.ID
	PlayedAt    time.Time
}

func AddPlayRecord(ctx context.Context, r PlayRecord) error {
	if r.PlayedAt.IsZero() {
		r.PlayedAt = time.Now()
	}
	_, err := DB.ExecContext(ctx, `
		INSERT INTO play_history (guild_id, session_id, url, title, uploader, duration_ms, requester_id, played_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, r.GuildID.String(), r.SessionID, r.URL, r.Title, r.Uploader, r.Duration.Milliseconds(), r.RequesterID.String(), r.PlayedAt.UTC())
	return err
}

// GetRecentPlays returns the newest records for a guild, newest first.
func GetRecentPlays(ctx context.Context, guildID snowflake.ID, limit int) ([]PlayRecord, error) {
	rows, err := DB.QueryContext(ctx, `
		SELECT session_id, url, title, uploader, duration_ms, requester_id, played_at
		FROM play_history WHERE guild_id = ?
		ORDER BY played_at DESC, id DESC LIMIT ?
	`, guildID.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PlayRecord
	for rows.Next() {
		var (
			r         PlayRecord
			uploader  sql.NullString
			requester sql.NullString
			ms        int64
		)
		if err := rows.Scan(&r.SessionID, &r.URL, &r.Title, &uploader, &ms, &requester, &r.PlayedAt); err != nil {
			return nil, err
		}
		r.GuildID = guildID
		r.Uploader = uploader.String
		r.Duration = time.Duration(ms) * time.Millisecond
		if id, err := snowflake.Parse(requester.String); err == nil {
			r.RequesterID = id
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func ClearPlayHistory(ctx context.Context, guildID snowflake.ID) (int64, error) {
	res, err := DB.ExecContext(ctx, "DELETE FROM play_history WHERE guild_id = ?", guildID.String())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
