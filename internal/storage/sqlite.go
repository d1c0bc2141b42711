package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		dbPath = filepath.Join("data", "campus-aide.db")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) init() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			restricted INTEGER NOT NULL DEFAULT 0,
			uploaded_at TEXT NOT NULL
		);
	`); err != nil {
		return fmt.Errorf("create documents table: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS threads (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
	`); err != nil {
		return fmt.Errorf("create threads table: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS messages (
			id TEXT NOT NULL,
			thread_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			citations TEXT NOT NULL DEFAULT '[]',
			created_at TEXT NOT NULL,
			PRIMARY KEY(thread_id, position),
			FOREIGN KEY(thread_id) REFERENCES threads(id) ON DELETE CASCADE
		);
	`); err != nil {
		return fmt.Errorf("create messages table: %w", err)
	}

	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_documents_category ON documents(category)"); err != nil {
		return fmt.Errorf("create documents index: %w", err)
	}
	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_threads_updated_at ON threads(updated_at)"); err != nil {
		return fmt.Errorf("create threads index: %w", err)
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) SaveDocument(doc Document) error {
	if strings.TrimSpace(doc.ID) == "" {
		return errors.New("document id is required")
	}
	if strings.TrimSpace(doc.Title) == "" {
		return errors.New("document title is required")
	}

	restricted := 0
	if doc.Restricted {
		restricted = 1
	}

	_, err := s.db.Exec(
		`INSERT INTO documents(id, title, content, category, restricted, uploaded_at)
		 VALUES(?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			category = excluded.category,
			restricted = excluded.restricted,
			uploaded_at = excluded.uploaded_at`,
		doc.ID,
		doc.Title,
		doc.Content,
		doc.Category,
		restricted,
		doc.UploadedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save document %s: %w", doc.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetDocument(id string) (Document, error) {
	row := s.db.QueryRow(
		`SELECT id, title, content, category, restricted, uploaded_at FROM documents WHERE id = ?`,
		id,
	)
	doc, err := scanDocument(row)
	if err != nil {
		return Document{}, fmt.Errorf("get document %s: %w", id, err)
	}
	return doc, nil
}

func (s *SQLiteStore) GetAllDocuments() ([]Document, error) {
	rows, err := s.db.Query(
		`SELECT id, title, content, category, restricted, uploaded_at FROM documents ORDER BY uploaded_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	docs := make([]Document, 0, 16)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate document rows: %w", err)
	}
	return docs, nil
}

func (s *SQLiteStore) DeleteDocument(id string) error {
	res, err := s.db.Exec(`DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete document rows affected: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SearchDocuments returns every document whose title or content contains at
// least one query token longer than two characters, case-insensitively. A
// pure boolean filter: no ranking, no stemming.
func (s *SQLiteStore) SearchDocuments(query string) ([]Document, error) {
	docs, err := s.GetAllDocuments()
	if err != nil {
		return nil, err
	}
	return MatchDocuments(query, docs), nil
}

// MatchDocuments applies the keyword filter to an in-memory document set.
func MatchDocuments(query string, docs []Document) []Document {
	tokens := queryTokens(query)
	if len(tokens) == 0 {
		return nil
	}

	var matched []Document
	for _, doc := range docs {
		haystack := strings.ToLower(doc.Title + " " + doc.Content)
		for _, token := range tokens {
			if strings.Contains(haystack, token) {
				matched = append(matched, doc)
				break
			}
		}
	}
	return matched
}

// FilterForRole hides restricted documents from the student role.
func FilterForRole(docs []Document, role string) []Document {
	if role == RoleAdmin {
		return docs
	}
	var visible []Document
	for _, doc := range docs {
		if !doc.Restricted {
			visible = append(visible, doc)
		}
	}
	return visible
}

func queryTokens(query string) []string {
	var tokens []string
	for _, field := range strings.Fields(strings.ToLower(query)) {
		if len(field) > 2 {
			tokens = append(tokens, field)
		}
	}
	return tokens
}

// SaveThread persists the whole thread snapshot: the thread row is upserted
// and its messages replaced. Last writer wins.
func (s *SQLiteStore) SaveThread(thread Thread) error {
	if strings.TrimSpace(thread.ID) == "" {
		return errors.New("thread id is required")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin save thread: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(
		`INSERT INTO threads(id, title, updated_at) VALUES(?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET title = excluded.title, updated_at = excluded.updated_at`,
		thread.ID,
		thread.Title,
		thread.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save thread %s: %w", thread.ID, err)
	}

	if _, err := tx.Exec(`DELETE FROM messages WHERE thread_id = ?`, thread.ID); err != nil {
		return fmt.Errorf("clear thread %s messages: %w", thread.ID, err)
	}

	for i, msg := range thread.Messages {
		citations, err := json.Marshal(msg.Citations)
		if err != nil {
			return fmt.Errorf("marshal citations for message %s: %w", msg.ID, err)
		}
		_, err = tx.Exec(
			`INSERT INTO messages(id, thread_id, position, role, content, citations, created_at)
			 VALUES(?, ?, ?, ?, ?, ?, ?)`,
			msg.ID,
			thread.ID,
			i,
			msg.Role,
			msg.Content,
			string(citations),
			msg.CreatedAt.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("save message %s: %w", msg.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save thread %s: %w", thread.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetThread(id string) (Thread, error) {
	row := s.db.QueryRow(`SELECT id, title, updated_at FROM threads WHERE id = ?`, id)

	var thread Thread
	var updatedAt string
	if err := row.Scan(&thread.ID, &thread.Title, &updatedAt); err != nil {
		return Thread{}, fmt.Errorf("get thread %s: %w", id, err)
	}

	parsed, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return Thread{}, fmt.Errorf("parse thread %s updated_at: %w", id, err)
	}
	thread.UpdatedAt = parsed

	rows, err := s.db.Query(
		`SELECT id, role, content, citations, created_at FROM messages WHERE thread_id = ? ORDER BY position ASC`,
		id,
	)
	if err != nil {
		return Thread{}, fmt.Errorf("query messages for thread %s: %w", id, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var msg Message
		var citations, createdAt string
		if err := rows.Scan(&msg.ID, &msg.Role, &msg.Content, &citations, &createdAt); err != nil {
			return Thread{}, fmt.Errorf("scan message for thread %s: %w", id, err)
		}
		if err := json.Unmarshal([]byte(citations), &msg.Citations); err != nil {
			return Thread{}, fmt.Errorf("unmarshal citations for thread %s: %w", id, err)
		}
		parsedTS, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return Thread{}, fmt.Errorf("parse message timestamp for thread %s: %w", id, err)
		}
		msg.CreatedAt = parsedTS
		thread.Messages = append(thread.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		return Thread{}, fmt.Errorf("iterate message rows for thread %s: %w", id, err)
	}

	return thread, nil
}

// ListThreads returns thread headers (no messages), most recent first.
func (s *SQLiteStore) ListThreads() ([]Thread, error) {
	rows, err := s.db.Query(`SELECT id, title, updated_at FROM threads ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query threads: %w", err)
	}
	defer func() { _ = rows.Close() }()

	threads := make([]Thread, 0, 16)
	for rows.Next() {
		var thread Thread
		var updatedAt string
		if err := rows.Scan(&thread.ID, &thread.Title, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan thread: %w", err)
		}
		parsed, err := time.Parse(time.RFC3339Nano, updatedAt)
		if err != nil {
			return nil, fmt.Errorf("parse thread updated_at: %w", err)
		}
		thread.UpdatedAt = parsed
		threads = append(threads, thread)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate thread rows: %w", err)
	}
	return threads, nil
}

func (s *SQLiteStore) DeleteThread(id string) error {
	res, err := s.db.Exec(`DELETE FROM threads WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete thread %s: %w", id, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete thread rows affected: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (Document, error) {
	var doc Document
	var restricted int
	var uploadedAt string
	if err := row.Scan(&doc.ID, &doc.Title, &doc.Content, &doc.Category, &restricted, &uploadedAt); err != nil {
		return Document{}, err
	}
	doc.Restricted = restricted != 0

	parsed, err := time.Parse(time.RFC3339Nano, uploadedAt)
	if err != nil {
		return Document{}, fmt.Errorf("parse uploaded_at: %w", err)
	}
	doc.UploadedAt = parsed
	return doc, nil
}
