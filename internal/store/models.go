package store

import "time"

type DocumentVersion struct {
	ID         int64
	DocumentID int64
	AuthorID   int64
	Content    string
	CreatedAt  time.Time
}

type ChatMessage struct {
	ID         int64
	DocumentID int64
	SenderID   int64
	Content    string
	CreatedAt  time.Time
}
