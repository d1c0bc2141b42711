package storage

import "time"

// Roles recognized by the assistant. Students never see restricted documents.
const (
	RoleStudent = "student"
	RoleAdmin   = "admin"
)

// Citation source types.
const (
	SourceInternal   = "internal"
	SourceCollegeWeb = "college-web"
	SourceExternal   = "external-web"
)

// Document is one admin-managed knowledge record. Updates replace the whole
// record; there is no versioning.
type Document struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Category   string    `json:"category"`
	Restricted bool      `json:"restricted"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Citation is a source reference embedded in a message. Never persisted on
// its own.
type Citation struct {
	Title      string `json:"title"`
	URL        string `json:"url,omitempty"`
	SourceType string `json:"source_type"`
	Snippet    string `json:"snippet,omitempty"`
}

// Message is one conversational exchange entry. Role is "user" or "model".
type Message struct {
	ID        string     `json:"id"`
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	Citations []Citation `json:"citations,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Thread is an append-only conversation log, saved as a whole snapshot.
type Thread struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	UpdatedAt time.Time `json:"updated_at"`
}
