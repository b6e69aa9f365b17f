package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"keyword_bot/internal/model"
)

const keywordColumns = `k.id, k.user_id, k.key, k.active, k.created_at`

// CreateKeyword inserts a keyword and populates its ID and CreatedAt.
// It returns ErrAlreadyExists if the owner already has the same text.
func (s *SQLite) CreateKeyword(ctx context.Context, k *model.Keyword) error {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO keywords (user_id, key, active, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id, key) DO NOTHING`,
		k.UserID, k.Text, boolToInt(k.Active), now,
	)
	if err != nil {
		return fmt.Errorf("insert keyword: %w", err)
	}
	id, err := insertedID(res)
	if err != nil {
		return fmt.Errorf("keyword %q: %w", k.Text, err)
	}
	k.ID = id
	k.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// GetKeyword returns a single keyword by its ID.
func (s *SQLite) GetKeyword(ctx context.Context, id int64) (*model.Keyword, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+keywordColumns+` FROM keywords k WHERE k.id = ?`, id,
	)
	k, err := scanKeyword(row)
	if err != nil {
		return nil, err
	}
	return &k, nil
}

// ListKeywords returns all keywords owned by the user.
func (s *SQLite) ListKeywords(ctx context.Context, userID int64) ([]model.Keyword, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+keywordColumns+` FROM keywords k WHERE k.user_id = ? ORDER BY k.id`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query keywords: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanKeywords(rows)
}

// DeleteKeyword removes a keyword together with its pins, negative links and
// group memberships.
func (s *SQLite) DeleteKeyword(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM keyword_pins WHERE keyword_id = ?`, id); err != nil {
		return fmt.Errorf("delete keyword_pins: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM negative_links WHERE keyword_id = ?`, id); err != nil {
		return fmt.Errorf("delete negative_links: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM group_members WHERE keyword_id = ?`, id); err != nil {
		return fmt.Errorf("delete group_members: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM keywords WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete keyword: %w", err)
	}
	return tx.Commit()
}

// SetKeywordActive updates the active flag of a single keyword.
func (s *SQLite) SetKeywordActive(ctx context.Context, id int64, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE keywords SET active = ? WHERE id = ?`, boolToInt(active), id,
	)
	if err != nil {
		return fmt.Errorf("update keyword: %w", err)
	}
	return requireAffected(res, "keyword")
}

// ListActivePinnedKeywords returns active keywords pinned to the chat.
func (s *SQLite) ListActivePinnedKeywords(ctx context.Context, chatID int64) ([]model.Keyword, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+keywordColumns+`
		 FROM keywords k JOIN keyword_pins p ON p.keyword_id = k.id
		 WHERE p.chat_id = ? AND k.active = 1
		 ORDER BY k.id`, chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("query pinned keywords: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanKeywords(rows)
}

// ListChatKeywords returns every keyword of the user pinned to the chat,
// regardless of its active flag.
func (s *SQLite) ListChatKeywords(ctx context.Context, chatID, userID int64) ([]model.Keyword, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+keywordColumns+`
		 FROM keywords k JOIN keyword_pins p ON p.keyword_id = k.id
		 WHERE p.chat_id = ? AND k.user_id = ?
		 ORDER BY k.id`, chatID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query chat keywords: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanKeywords(rows)
}

// PinKeyword makes a keyword eligible for matching in the chat.
func (s *SQLite) PinKeyword(ctx context.Context, keywordID, chatID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO keyword_pins (keyword_id, chat_id) VALUES (?, ?)`, keywordID, chatID,
	)
	if err != nil {
		return fmt.Errorf("pin keyword: %w", err)
	}
	return nil
}

// UnpinKeyword removes a keyword from the chat.
func (s *SQLite) UnpinKeyword(ctx context.Context, keywordID, chatID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM keyword_pins WHERE keyword_id = ? AND chat_id = ?`, keywordID, chatID,
	)
	if err != nil {
		return fmt.Errorf("unpin keyword: %w", err)
	}
	return nil
}

// ListPinnedChats returns the chats a keyword is pinned to.
func (s *SQLite) ListPinnedChats(ctx context.Context, keywordID int64) ([]model.Chat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.external_id, c.chat_type, c.title, c.bot_present, c.created_at
		 FROM chats c JOIN keyword_pins p ON p.chat_id = c.id
		 WHERE p.keyword_id = ?
		 ORDER BY c.id`, keywordID,
	)
	if err != nil {
		return nil, fmt.Errorf("query pinned chats: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanChats(rows)
}

// CreateNegativeKeyword inserts a negative keyword and populates its ID and CreatedAt.
func (s *SQLite) CreateNegativeKeyword(ctx context.Context, n *model.NegativeKeyword) error {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO negative_keywords (user_id, key, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id, key) DO NOTHING`,
		n.UserID, n.Text, now,
	)
	if err != nil {
		return fmt.Errorf("insert negative keyword: %w", err)
	}
	id, err := insertedID(res)
	if err != nil {
		return fmt.Errorf("negative keyword %q: %w", n.Text, err)
	}
	n.ID = id
	n.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// GetNegativeKeyword returns a single negative keyword by its ID.
func (s *SQLite) GetNegativeKeyword(ctx context.Context, id int64) (*model.NegativeKeyword, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT n.id, n.user_id, n.key, n.created_at FROM negative_keywords n WHERE n.id = ?`, id,
	)
	n, err := scanNegative(row)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// ListNegativeKeywords returns all negative keywords owned by the user.
func (s *SQLite) ListNegativeKeywords(ctx context.Context, userID int64) ([]model.NegativeKeyword, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT n.id, n.user_id, n.key, n.created_at FROM negative_keywords n
		 WHERE n.user_id = ? ORDER BY n.id`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query negative keywords: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanNegatives(rows)
}

// DeleteNegativeKeyword removes a negative keyword and its links.
func (s *SQLite) DeleteNegativeKeyword(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM negative_links WHERE negative_id = ?`, id); err != nil {
		return fmt.Errorf("delete negative_links: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM negative_keywords WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete negative keyword: %w", err)
	}
	return tx.Commit()
}

// LinkNegative attaches a negative keyword to a keyword.
func (s *SQLite) LinkNegative(ctx context.Context, negativeID, keywordID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO negative_links (negative_id, keyword_id) VALUES (?, ?)`,
		negativeID, keywordID,
	)
	if err != nil {
		return fmt.Errorf("link negative: %w", err)
	}
	return nil
}

// UnlinkNegative detaches a negative keyword from a keyword.
func (s *SQLite) UnlinkNegative(ctx context.Context, negativeID, keywordID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM negative_links WHERE negative_id = ? AND keyword_id = ?`, negativeID, keywordID,
	)
	if err != nil {
		return fmt.Errorf("unlink negative: %w", err)
	}
	return nil
}

// ListLinkedNegatives returns the negative keywords linked to a keyword.
func (s *SQLite) ListLinkedNegatives(ctx context.Context, keywordID int64) ([]model.NegativeKeyword, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT n.id, n.user_id, n.key, n.created_at
		 FROM negative_keywords n JOIN negative_links l ON l.negative_id = n.id
		 WHERE l.keyword_id = ?
		 ORDER BY n.id`, keywordID,
	)
	if err != nil {
		return nil, fmt.Errorf("query linked negatives: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanNegatives(rows)
}

func insertedID(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return 0, ErrAlreadyExists
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

func scanKeyword(row scannable) (model.Keyword, error) {
	var k model.Keyword
	var active int
	var created string
	if err := row.Scan(&k.ID, &k.UserID, &k.Text, &active, &created); err != nil {
		return k, wrapScan("scan keyword", err)
	}
	k.Active = active == 1
	k.CreatedAt, _ = time.Parse(timeLayout, created)
	return k, nil
}

func scanKeywords(rows *sql.Rows) ([]model.Keyword, error) {
	var keywords []model.Keyword
	for rows.Next() {
		k, err := scanKeyword(rows)
		if err != nil {
			return nil, err
		}
		keywords = append(keywords, k)
	}
	return keywords, rows.Err()
}

func scanNegative(row scannable) (model.NegativeKeyword, error) {
	var n model.NegativeKeyword
	var created string
	if err := row.Scan(&n.ID, &n.UserID, &n.Text, &created); err != nil {
		return n, wrapScan("scan negative keyword", err)
	}
	n.CreatedAt, _ = time.Parse(timeLayout, created)
	return n, nil
}

func scanNegatives(rows *sql.Rows) ([]model.NegativeKeyword, error) {
	var negatives []model.NegativeKeyword
	for rows.Next() {
		n, err := scanNegative(rows)
		if err != nil {
			return nil, err
		}
		negatives = append(negatives, n)
	}
	return negatives, rows.Err()
}
