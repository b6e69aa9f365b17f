package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"keyword_bot/internal/model"
	"keyword_bot/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Every connection to ":memory:" is a separate database.
	if dsn == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := migrations.Run(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// UpsertUser inserts a user or refreshes the name fields of an existing one.
func (s *SQLite) UpsertUser(ctx context.Context, u *model.User) error {
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, name, username, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, username = excluded.username`,
		u.ID, u.Name, u.Username, now,
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// GetUser returns a user by Telegram ID.
func (s *SQLite) GetUser(ctx context.Context, id int64) (*model.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, username, created_at FROM users WHERE id = ?`, id,
	)
	var u model.User
	var created string
	if err := row.Scan(&u.ID, &u.Name, &u.Username, &created); err != nil {
		return nil, wrapScan("scan user", err)
	}
	u.CreatedAt, _ = time.Parse(timeLayout, created)
	return &u, nil
}

// ListUsers returns every registered user.
func (s *SQLite) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, username, created_at FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []model.User
	for rows.Next() {
		var u model.User
		var created string
		if err := rows.Scan(&u.ID, &u.Name, &u.Username, &created); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.CreatedAt, _ = time.Parse(timeLayout, created)
		users = append(users, u)
	}
	return users, rows.Err()
}

// UpsertChat inserts a chat keyed by its external ID, or updates its type,
// title and bot presence. The internal ID is populated in both cases.
func (s *SQLite) UpsertChat(ctx context.Context, c *model.Chat) error {
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chats (external_id, chat_type, title, bot_present, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(external_id) DO UPDATE SET
		   chat_type = excluded.chat_type, title = excluded.title, bot_present = excluded.bot_present`,
		c.ExternalID, string(c.Type), c.Title, boolToInt(c.BotPresent), now,
	)
	if err != nil {
		return fmt.Errorf("upsert chat: %w", err)
	}
	got, err := s.GetChatByExternalID(ctx, c.ExternalID)
	if err != nil {
		return err
	}
	c.ID = got.ID
	c.CreatedAt = got.CreatedAt
	return nil
}

// GetChat returns a chat by internal ID.
func (s *SQLite) GetChat(ctx context.Context, id int64) (*model.Chat, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, external_id, chat_type, title, bot_present, created_at FROM chats WHERE id = ?`, id,
	)
	return scanChat(row)
}

// GetChatByExternalID returns a chat by its Telegram chat ID.
func (s *SQLite) GetChatByExternalID(ctx context.Context, externalID int64) (*model.Chat, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, external_id, chat_type, title, bot_present, created_at FROM chats WHERE external_id = ?`,
		externalID,
	)
	return scanChat(row)
}

// SetChatBotPresent records whether the bot is currently a member of the chat.
func (s *SQLite) SetChatBotPresent(ctx context.Context, id int64, present bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE chats SET bot_present = ? WHERE id = ?`, boolToInt(present), id,
	)
	if err != nil {
		return fmt.Errorf("update chat: %w", err)
	}
	return requireAffected(res, "chat")
}

// ListChats returns every chat the bot is present in.
func (s *SQLite) ListChats(ctx context.Context) ([]model.Chat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, external_id, chat_type, title, bot_present, created_at
		 FROM chats WHERE bot_present = 1 ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query chats: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanChats(rows)
}

// ListUserChats returns the chats a user is a member of and the bot is present in.
func (s *SQLite) ListUserChats(ctx context.Context, userID int64) ([]model.Chat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.external_id, c.chat_type, c.title, c.bot_present, c.created_at
		 FROM chats c JOIN relations r ON r.chat_id = c.id
		 WHERE r.user_id = ? AND r.member = 1 AND c.bot_present = 1
		 ORDER BY c.id`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query user chats: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanChats(rows)
}

// GetRelation returns the relation between a user and a chat.
func (s *SQLite) GetRelation(ctx context.Context, userID, chatID int64) (*model.Relation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT user_id, chat_id, active, member FROM relations WHERE user_id = ? AND chat_id = ?`,
		userID, chatID,
	)
	var r model.Relation
	var active, member int
	if err := row.Scan(&r.UserID, &r.ChatID, &active, &member); err != nil {
		return nil, wrapScan("scan relation", err)
	}
	r.Active = active == 1
	r.Member = member == 1
	return &r, nil
}

// EnsureRelation creates an active relation unless the user is already a
// member. A user who left and comes back starts active again.
func (s *SQLite) EnsureRelation(ctx context.Context, userID, chatID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO relations (user_id, chat_id, active, member) VALUES (?, ?, 1, 1)
		 ON CONFLICT(user_id, chat_id) DO UPDATE SET
		   active = CASE WHEN member = 0 THEN 1 ELSE active END,
		   member = 1`,
		userID, chatID,
	)
	if err != nil {
		return fmt.Errorf("ensure relation: %w", err)
	}
	return nil
}

// SetRelationActive creates or updates the relation's active flag.
func (s *SQLite) SetRelationActive(ctx context.Context, userID, chatID int64, active bool) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO relations (user_id, chat_id, active) VALUES (?, ?, ?)
		 ON CONFLICT(user_id, chat_id) DO UPDATE SET active = excluded.active`,
		userID, chatID, boolToInt(active),
	)
	if err != nil {
		return fmt.Errorf("set relation: %w", err)
	}
	return nil
}

// LeaveRelation records that the user left the chat. The relation stays,
// inactive, so matching skips the user's pins there until they rejoin.
func (s *SQLite) LeaveRelation(ctx context.Context, userID, chatID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO relations (user_id, chat_id, active, member) VALUES (?, ?, 0, 0)
		 ON CONFLICT(user_id, chat_id) DO UPDATE SET active = 0, member = 0`,
		userID, chatID,
	)
	if err != nil {
		return fmt.Errorf("leave relation: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type scannable interface {
	Scan(dest ...any) error
}

func wrapScan(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func requireAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}

func scanChat(row scannable) (*model.Chat, error) {
	var c model.Chat
	var chatType, created string
	var present int
	if err := row.Scan(&c.ID, &c.ExternalID, &chatType, &c.Title, &present, &created); err != nil {
		return nil, wrapScan("scan chat", err)
	}
	c.Type = model.ChatType(chatType)
	c.BotPresent = present == 1
	c.CreatedAt, _ = time.Parse(timeLayout, created)
	return &c, nil
}

func scanChats(rows *sql.Rows) ([]model.Chat, error) {
	var chats []model.Chat
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		chats = append(chats, *c)
	}
	return chats, rows.Err()
}
