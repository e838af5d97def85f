package repo

import (
	"context"
	"database/sql"
	"errors"

	"fieldline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// EnsureOrg inserts the org if missing.
func (r Repo) EnsureOrg(ctx context.Context, tx *sql.Tx, id, name, now string) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO orgs(id,name,created_at) VALUES (?,?,?)`, id, nullable(name), now)
	return err
}

// EnsureUser inserts the user if missing.
func (r Repo) EnsureUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO users(id,org_id,email,username,created_at) VALUES (?,?,?,?,?)`,
		u.ID, u.OrgID, nullable(u.Email), nullable(u.Username), u.CreatedAt)
	return err
}

// UpsertGroup replaces the group row and its membership.
func (r Repo) UpsertGroup(ctx context.Context, tx *sql.Tx, g domain.Group) error {
	if _, err := tx.ExecContext(ctx, `INSERT INTO groups(id,org_id,name) VALUES (?,?,?)
ON CONFLICT(id) DO UPDATE SET org_id=excluded.org_id, name=excluded.name`, g.ID, g.OrgID, g.Name); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM group_members WHERE group_id=?`, g.ID); err != nil {
		return err
	}
	for _, uid := range g.MemberIDs {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO group_members(group_id,user_id) VALUES (?,?)`, g.ID, uid); err != nil {
			return err
		}
	}
	return nil
}

// GroupMemberIDs returns the distinct members of the given groups.
// Implements visibility.GroupMemberLookup.
func (r Repo) GroupMemberIDs(ctx context.Context, groupIDs []string) ([]string, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}
	query := `SELECT DISTINCT user_id FROM group_members WHERE group_id IN (` + placeholders(len(groupIDs)) + `)`
	args := make([]any, len(groupIDs))
	for i, g := range groupIDs {
		args[i] = g
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UserGroupIDs returns the groups a user belongs to.
func (r Repo) UserGroupIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT group_id FROM group_members WHERE user_id=?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetUser returns a directory entry by id.
func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	var u domain.User
	var email, username sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,org_id,email,username,created_at FROM users WHERE id=?`, id).
		Scan(&u.ID, &u.OrgID, &email, &username, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	if err != nil {
		return u, err
	}
	u.Email = email.String
	u.Username = username.String
	return u, nil
}

// UserIDByEmail implements identity.UserLookup.
func (r Repo) UserIDByEmail(ctx context.Context, email string) (string, error) {
	return r.scanUserID(ctx, `SELECT id FROM users WHERE lower(email)=lower(?) LIMIT 1`, email)
}

// UserIDByUsername implements identity.UserLookup.
func (r Repo) UserIDByUsername(ctx context.Context, username string) (string, error) {
	return r.scanUserID(ctx, `SELECT id FROM users WHERE username=? LIMIT 1`, username)
}

func (r Repo) scanUserID(ctx context.Context, query, arg string) (string, error) {
	var id string
	err := r.DB.QueryRowContext(ctx, query, arg).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

func placeholders(n int) string {
	s := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			s += ","
		}
		s += "?"
	}
	return s
}
