package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type DB struct {
	sql *sql.DB
}

func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	conn.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return &DB{sql: conn}, nil
}

func (d *DB) Close() error {
	return d.sql.Close()
}

var schema = []struct {
	name string
	stmt string
}{
	{"projects", `
		CREATE TABLE IF NOT EXISTS projects (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			path        TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			created_at  INTEGER NOT NULL,
			updated_at  INTEGER NOT NULL
		)`},
	{"conversations", `
		CREATE TABLE IF NOT EXISTS conversations (
			id         TEXT PRIMARY KEY,
			project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			agent      TEXT NOT NULL DEFAULT '',
			title      TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		)`},
	{"messages", `
		CREATE TABLE IF NOT EXISTS messages (
			id              TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			role            TEXT NOT NULL,
			content         TEXT NOT NULL DEFAULT '',
			created_at      INTEGER NOT NULL
		)`},
	{"actions", `
		CREATE TABLE IF NOT EXISTS actions (
			id         INTEGER PRIMARY KEY,
			project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			tool       TEXT NOT NULL,
			params     TEXT NOT NULL DEFAULT '{}',
			result     TEXT NOT NULL DEFAULT '',
			success    INTEGER NOT NULL DEFAULT 0,
			ts         INTEGER NOT NULL
		)`},
	{"accounts", `
		CREATE TABLE IF NOT EXISTS accounts (
			id            TEXT PRIMARY KEY,
			username      TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at    INTEGER NOT NULL
		)`},
	{"refresh_tokens", `
		CREATE TABLE IF NOT EXISTS refresh_tokens (
			token      TEXT PRIMARY KEY,
			account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			expires_at INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		)`},
	{"conversations index", `CREATE INDEX IF NOT EXISTS idx_conversations_project ON conversations(project_id, created_at)`},
	{"messages index", `CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at)`},
	{"actions index", `CREATE INDEX IF NOT EXISTS idx_actions_project ON actions(project_id, ts DESC)`},
}

func (d *DB) Migrate() error {
	for _, s := range schema {
		if _, err := d.sql.Exec(s.stmt); err != nil {
			return fmt.Errorf("create %s: %w", s.name, err)
		}
	}
	// Older databases predate project descriptions.
	if _, alterErr := d.sql.Exec(`ALTER TABLE projects ADD COLUMN description TEXT NOT NULL DEFAULT ''`); alterErr != nil {
		if !isDuplicateColumnError(alterErr) {
			return fmt.Errorf("alter projects add description: %w", alterErr)
		}
	}
	return nil
}

// rowScanner is implemented by both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// --- projects ---

func (d *DB) SaveProject(p *Project) error {
	_, err := d.sql.Exec(`
		INSERT INTO projects (id, name, path, description, created_at, updated_at)
		VALUES (?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			path = excluded.path,
			description = excluded.description,
			updated_at = excluded.updated_at`,
		p.ID, p.Name, p.Path, p.Description, p.CreatedAt.UnixMilli(), p.UpdatedAt.UnixMilli(),
	)
	return err
}

const projectColumns = `id, name, path, description, created_at, updated_at`

func (d *DB) GetProject(id string) (*Project, error) {
	row := d.sql.QueryRow(`SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	return scanProject(row)
}

func (d *DB) LoadProjects() ([]*Project, error) {
	rows, err := d.sql.Query(`SELECT ` + projectColumns + ` FROM projects ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var projects []*Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func (d *DB) UpdateProjectField(id, field string, value string) error {
	columnMap := map[string]string{
		"name":        "name",
		"path":        "path",
		"description": "description",
	}
	col, ok := columnMap[field]
	if !ok {
		return fmt.Errorf("unknown field: %s", field)
	}
	res, err := d.sql.Exec(fmt.Sprintf("UPDATE projects SET %s = ?, updated_at = ? WHERE id = ?", col),
		value, time.Now().UnixMilli(), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (d *DB) DeleteProject(id string) error {
	res, err := d.sql.Exec("DELETE FROM projects WHERE id = ?", id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func scanProject(row rowScanner) (*Project, error) {
	var p Project
	var createdAt, updatedAt int64
	if err := row.Scan(&p.ID, &p.Name, &p.Path, &p.Description, &createdAt, &updatedAt); err != nil {
		return nil, notFound(err)
	}
	p.CreatedAt = time.UnixMilli(createdAt)
	p.UpdatedAt = time.UnixMilli(updatedAt)
	return &p, nil
}

// --- conversations and messages ---

func (d *DB) SaveConversation(c *Conversation) error {
	_, err := d.sql.Exec(
		`INSERT OR REPLACE INTO conversations (id, project_id, agent, title, created_at) VALUES (?,?,?,?,?)`,
		c.ID, c.ProjectID, c.Agent, c.Title, c.CreatedAt.UnixMilli(),
	)
	return err
}

func (d *DB) GetConversation(id string) (*Conversation, error) {
	row := d.sql.QueryRow(`SELECT id, project_id, agent, title, created_at FROM conversations WHERE id = ?`, id)
	return scanConversation(row)
}

func (d *DB) LoadConversations(projectID string) ([]*Conversation, error) {
	rows, err := d.sql.Query(
		`SELECT id, project_id, agent, title, created_at FROM conversations WHERE project_id = ? ORDER BY created_at, id`,
		projectID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var convs []*Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

func scanConversation(row rowScanner) (*Conversation, error) {
	var c Conversation
	var createdAt int64
	if err := row.Scan(&c.ID, &c.ProjectID, &c.Agent, &c.Title, &createdAt); err != nil {
		return nil, notFound(err)
	}
	c.CreatedAt = time.UnixMilli(createdAt)
	return &c, nil
}

func (d *DB) InsertMessage(m *Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	_, err := d.sql.Exec(
		`INSERT INTO messages (id, conversation_id, role, content, created_at) VALUES (?,?,?,?,?)`,
		m.ID, m.ConversationID, string(m.Role), m.Content, m.CreatedAt.UnixMilli(),
	)
	return err
}

// GetMessages returns the oldest limit messages of a conversation in order.
func (d *DB) GetMessages(conversationID string, limit int) ([]Message, error) {
	rows, err := d.sql.Query(
		`SELECT id, conversation_id, role, content, created_at
		 FROM messages
		 WHERE conversation_id = ?
		 ORDER BY created_at, rowid
		 LIMIT ?`,
		conversationID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var msgs []Message
	for rows.Next() {
		var m Message
		var role string
		var createdAt int64
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &createdAt); err != nil {
			return nil, err
		}
		m.Role = Role(role)
		m.CreatedAt = time.UnixMilli(createdAt)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// --- action log ---

func (d *DB) InsertAction(a *Action) error {
	if a.Ts.IsZero() {
		a.Ts = time.Now()
	}
	if a.Params == "" {
		a.Params = "{}"
	}
	res, err := d.sql.Exec(
		`INSERT INTO actions (project_id, tool, params, result, success, ts) VALUES (?,?,?,?,?,?)`,
		a.ProjectID, a.Tool, a.Params, a.Result, boolToInt(a.Success), a.Ts.UnixMilli(),
	)
	if err != nil {
		return err
	}
	a.ID, err = res.LastInsertId()
	return err
}

// GetActions returns the newest limit actions of a project, newest first.
func (d *DB) GetActions(projectID string, limit int) ([]Action, error) {
	rows, err := d.sql.Query(
		`SELECT id, project_id, tool, params, result, success, ts
		 FROM actions
		 WHERE project_id = ?
		 ORDER BY ts DESC, id DESC
		 LIMIT ?`,
		projectID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var actions []Action
	for rows.Next() {
		var a Action
		var success int
		var ts int64
		if err := rows.Scan(&a.ID, &a.ProjectID, &a.Tool, &a.Params, &a.Result, &success, &ts); err != nil {
			return nil, err
		}
		a.Success = success == 1
		a.Ts = time.UnixMilli(ts)
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// --- accounts ---

func (d *DB) CreateAccount(username, passwordHash string) (*Account, error) {
	acc := &Account{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
	}
	_, err := d.sql.Exec(
		`INSERT INTO accounts (id, username, password_hash, created_at) VALUES (?,?,?,?)`,
		acc.ID, acc.Username, acc.PasswordHash, acc.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return nil, err
	}
	return acc, nil
}

func (d *DB) GetAccountByUsername(username string) (*Account, error) {
	var acc Account
	var createdAt int64
	err := d.sql.QueryRow(
		`SELECT id, username, password_hash, created_at FROM accounts WHERE username = ?`, username,
	).Scan(&acc.ID, &acc.Username, &acc.PasswordHash, &createdAt)
	if err != nil {
		return nil, notFound(err)
	}
	acc.CreatedAt = time.UnixMilli(createdAt)
	return &acc, nil
}

func (d *DB) UpdateAccountPassword(id, passwordHash string) error {
	res, err := d.sql.Exec("UPDATE accounts SET password_hash = ? WHERE id = ?", passwordHash, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (d *DB) SaveRefreshToken(t RefreshToken) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	_, err := d.sql.Exec(
		`INSERT INTO refresh_tokens (token, account_id, expires_at, created_at) VALUES (?,?,?,?)`,
		t.Token, t.AccountID, t.ExpiresAt.UnixMilli(), t.CreatedAt.UnixMilli(),
	)
	return err
}

// GetRefreshToken returns a token that exists and has not expired.
func (d *DB) GetRefreshToken(token string) (*RefreshToken, error) {
	var t RefreshToken
	var expiresAt, createdAt int64
	err := d.sql.QueryRow(
		`SELECT token, account_id, expires_at, created_at FROM refresh_tokens WHERE token = ?`, token,
	).Scan(&t.Token, &t.AccountID, &expiresAt, &createdAt)
	if err != nil {
		return nil, notFound(err)
	}
	t.ExpiresAt = time.UnixMilli(expiresAt)
	t.CreatedAt = time.UnixMilli(createdAt)
	if time.Now().After(t.ExpiresAt) {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (d *DB) GetAccountByID(id string) (*Account, error) {
	var acc Account
	var createdAt int64
	err := d.sql.QueryRow(
		`SELECT id, username, password_hash, created_at FROM accounts WHERE id = ?`, id,
	).Scan(&acc.ID, &acc.Username, &acc.PasswordHash, &createdAt)
	if err != nil {
		return nil, notFound(err)
	}
	acc.CreatedAt = time.UnixMilli(createdAt)
	return &acc, nil
}

func (d *DB) DeleteRefreshToken(token string) error {
	_, err := d.sql.Exec("DELETE FROM refresh_tokens WHERE token = ?", token)
	return err
}

func (d *DB) DeleteRefreshTokensByAccount(accountID string) error {
	_, err := d.sql.Exec("DELETE FROM refresh_tokens WHERE account_id = ?", accountID)
	return err
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isDuplicateColumnError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "duplicate column name")
}
