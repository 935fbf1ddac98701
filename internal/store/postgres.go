package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
)

// PostgresStore is the durable side of the system. The realtime coordinator
// treats it as an external collaborator: it reads document content once per
// cold start and hands off chat messages and committed versions. It never
// opens transactions on behalf of the coordinator.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetDocumentContent returns the durable content of a document, provided the
// user owns it or holds an accepted share.
func (s *PostgresStore) GetDocumentContent(ctx context.Context, docID, userID int64) (string, error) {
	if err := s.checkAccess(ctx, docID, userID, false); err != nil {
		return "", err
	}
	var content string
	err := s.db.QueryRowContext(ctx, `SELECT content FROM documents WHERE id=$1`, docID).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read document content: %w", err)
	}
	return content, nil
}

// CheckEditable reports whether the user may modify the document.
func (s *PostgresStore) CheckEditable(ctx context.Context, docID, userID int64) error {
	return s.checkAccess(ctx, docID, userID, true)
}

// CheckReadable reports whether the user may view the document.
func (s *PostgresStore) CheckReadable(ctx context.Context, docID, userID int64) error {
	return s.checkAccess(ctx, docID, userID, false)
}

func (s *PostgresStore) checkAccess(ctx context.Context, docID, userID int64, needEdit bool) error {
	var ownerID int64
	err := s.db.QueryRowContext(ctx, `SELECT owner_id FROM documents WHERE id=$1`, docID).Scan(&ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup document: %w", err)
	}
	if ownerID == userID {
		return nil
	}

	query := `
		SELECT EXISTS(
			SELECT 1 FROM document_shares
			WHERE document_id=$1 AND user_id=$2 AND accepted_at IS NOT NULL
	`
	if needEdit {
		query += ` AND permission='edit'`
	}
	query += `)`

	var shared bool
	if err := s.db.QueryRowContext(ctx, query, docID, userID).Scan(&shared); err != nil {
		return fmt.Errorf("check share: %w", err)
	}
	if !shared {
		return ErrForbidden
	}
	return nil
}

// InsertChatMessage persists a collaboration chat line and returns its id.
func (s *PostgresStore) InsertChatMessage(ctx context.Context, docID, userID int64, content string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO chat_messages (document_id, sender_id, content)
		VALUES ($1, $2, $3)
		RETURNING id
	`, docID, userID, content).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert chat message: %w", err)
	}
	return id, nil
}

// ListChatMessages returns the most recent chat lines for a document, oldest
// first.
func (s *PostgresStore) ListChatMessages(ctx context.Context, docID, userID int64, limit int) ([]ChatMessage, error) {
	if err := s.checkAccess(ctx, docID, userID, false); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, sender_id, content, created_at
		FROM (
			SELECT id, document_id, sender_id, content, created_at
			FROM chat_messages
			WHERE document_id=$1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC
	`, docID, limit)
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	defer rows.Close()

	var messages []ChatMessage
	for rows.Next() {
		var m ChatMessage
		if err := rows.Scan(&m.ID, &m.DocumentID, &m.SenderID, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat messages: %w", err)
	}
	return messages, nil
}

// ListVersions returns a document's committed versions, newest first. The
// content column is omitted; clients fetch a specific version separately.
func (s *PostgresStore) ListVersions(ctx context.Context, docID, userID int64, limit int) ([]DocumentVersion, error) {
	if err := s.checkAccess(ctx, docID, userID, false); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, author_id, created_at
		FROM document_versions
		WHERE document_id=$1
		ORDER BY created_at DESC
		LIMIT $2
	`, docID, limit)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var versions []DocumentVersion
	for rows.Next() {
		var v DocumentVersion
		if err := rows.Scan(&v.ID, &v.DocumentID, &v.AuthorID, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate versions: %w", err)
	}
	return versions, nil
}

// InsertVersion records a new durable version of a document. Called by the
// explicit commit action, which reads the coordinator's confirmed slot once
// and writes it here; the coordinator itself never persists.
func (s *PostgresStore) InsertVersion(ctx context.Context, docID, userID int64, content string) (int64, error) {
	if err := s.checkAccess(ctx, docID, userID, true); err != nil {
		return 0, err
	}

	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO document_versions (document_id, author_id, content)
		VALUES ($1, $2, $3)
		RETURNING id
	`, docID, userID, content).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert version: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `
		UPDATE documents SET content=$2, updated_at=NOW() WHERE id=$1
	`, docID, content); err != nil {
		return 0, fmt.Errorf("update document content: %w", err)
	}
	return id, nil
}
