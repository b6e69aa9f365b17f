package storage

import (
	"context"
	"fmt"
	"time"

	"keyword_bot/internal/model"
)

// CreateGroup inserts a keywords group and populates its ID and CreatedAt.
func (s *SQLite) CreateGroup(ctx context.Context, g *model.KeywordsGroup) error {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO keyword_groups (user_id, name, active, created_at) VALUES (?, ?, ?, ?)`,
		g.UserID, g.Name, boolToInt(g.Active), now,
	)
	if err != nil {
		return fmt.Errorf("insert group: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	g.ID = id
	g.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// GetGroup returns a single keywords group by its ID.
func (s *SQLite) GetGroup(ctx context.Context, id int64) (*model.KeywordsGroup, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, active, created_at FROM keyword_groups WHERE id = ?`, id,
	)
	g, err := scanGroup(row)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// ListGroups returns all keywords groups owned by the user.
func (s *SQLite) ListGroups(ctx context.Context, userID int64) ([]model.KeywordsGroup, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, name, active, created_at FROM keyword_groups WHERE user_id = ? ORDER BY id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query groups: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var groups []model.KeywordsGroup
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// SetGroupActive updates the group's own active flag. Member keywords are
// not touched here.
func (s *SQLite) SetGroupActive(ctx context.Context, id int64, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE keyword_groups SET active = ? WHERE id = ?`, boolToInt(active), id,
	)
	if err != nil {
		return fmt.Errorf("update group: %w", err)
	}
	return requireAffected(res, "group")
}

// AddGroupMember adds a keyword to a group.
func (s *SQLite) AddGroupMember(ctx context.Context, groupID, keywordID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO group_members (group_id, keyword_id) VALUES (?, ?)`, groupID, keywordID,
	)
	if err != nil {
		return fmt.Errorf("add group member: %w", err)
	}
	return nil
}

// RemoveGroupMember removes a keyword from a group.
func (s *SQLite) RemoveGroupMember(ctx context.Context, groupID, keywordID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM group_members WHERE group_id = ? AND keyword_id = ?`, groupID, keywordID,
	)
	if err != nil {
		return fmt.Errorf("remove group member: %w", err)
	}
	return nil
}

// ListGroupMembers returns the keywords that belong to a group.
func (s *SQLite) ListGroupMembers(ctx context.Context, groupID int64) ([]model.Keyword, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+keywordColumns+`
		 FROM keywords k JOIN group_members m ON m.keyword_id = k.id
		 WHERE m.group_id = ?
		 ORDER BY k.id`, groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("query group members: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanKeywords(rows)
}

func scanGroup(row scannable) (model.KeywordsGroup, error) {
	var g model.KeywordsGroup
	var active int
	var created string
	if err := row.Scan(&g.ID, &g.UserID, &g.Name, &active, &created); err != nil {
		return g, wrapScan("scan group", err)
	}
	g.Active = active == 1
	g.CreatedAt, _ = time.Parse(timeLayout, created)
	return g, nil
}
