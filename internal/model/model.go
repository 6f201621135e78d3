// Package model defines the daemon's persisted entity types (spec §3).
package model

import "time"

// ConversationStatus is the lifecycle state of a Conversation.
type ConversationStatus string

const (
	ConversationActive   ConversationStatus = "active"
	ConversationArchived ConversationStatus = "archived"
)

// EndReason explains why a Conversation was archived.
type EndReason string

const (
	EndReasonCompleted EndReason = "completed"
	EndReasonTimeout   EndReason = "timeout"
	EndReasonManual    EndReason = "manual"
)

// MessageRole is the speaker of a Message turn.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// Conversation is a consultation session with an external model (spec §3).
type Conversation struct {
	ID            string             `json:"id"`
	Model         string             `json:"model"`
	SystemPrompt  string             `json:"systemPrompt,omitempty"`
	Status        ConversationStatus `json:"status"`
	EndReason     *EndReason         `json:"endReason,omitempty"`
	CreatedAt     time.Time          `json:"createdAt"`
	UpdatedAt     time.Time          `json:"updatedAt"`
	EndedAt       *time.Time         `json:"endedAt,omitempty"`
	Messages      []Message          `json:"messages,omitempty"`
}

// Message is one immutable, append-only turn in a Conversation.
type Message struct {
	ConversationID string      `json:"conversationId"`
	Ordinal        int         `json:"ordinal"`
	Role           MessageRole `json:"role"`
	Content        string      `json:"content"`
	CreatedAt      time.Time   `json:"createdAt"`
}

// ConfigEntry is a single key/value row backing the Config Service (spec §3).
type ConfigEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ProviderConfig is the per-provider slice of the "providers" config key.
type ProviderConfig struct {
	Enabled bool   `json:"enabled"`
	APIKey  string `json:"apiKey,omitempty"`
	BaseURL string `json:"baseUrl,omitempty"`
}

// EffectiveConfig is the composed (defaults + overrides) application config.
type EffectiveConfig struct {
	DefaultModel   string                    `json:"defaultModel"`
	MaxMessages    int                       `json:"maxMessages"`
	RequestTimeout int                       `json:"requestTimeout"`
	AutoOpenWebUI  bool                      `json:"autoOpenWebUI"`
	Providers      map[string]ProviderConfig `json:"providers"`
}

// SourceType distinguishes how a Document entered the corpus.
type SourceType string

const (
	SourceUpload SourceType = "upload"
	SourceManual SourceType = "manual"
)

// Document is an ingested, chunkable unit of the RAG corpus (spec §3).
type Document struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	SourceType SourceType `json:"sourceType"`
	SourceURI  string     `json:"sourceUri,omitempty"`
	MimeType   string     `json:"mimeType,omitempty"`
	Folder     string     `json:"folder,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// Chunk is a contiguous slice of a Document's text.
type Chunk struct {
	ID          int64     `json:"id"`
	DocumentID  string    `json:"documentId"`
	ChunkIndex  int       `json:"chunkIndex"`
	Content     string    `json:"content"`
	TokenCount  int       `json:"tokenCount"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Embedding is the vector representation of one Chunk.
type Embedding struct {
	ChunkID   int64     `json:"chunkId"`
	Vector    []byte    `json:"-"`
	Dim       int       `json:"dim"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"createdAt"`
}

// MemoryCategory is the fixed taxonomy for Memory notes.
type MemoryCategory string

const (
	MemoryArchitecture MemoryCategory = "architecture"
	MemoryBackend      MemoryCategory = "backend"
	MemoryDB           MemoryCategory = "db"
	MemoryAuth         MemoryCategory = "auth"
	MemoryConfig       MemoryCategory = "config"
	MemoryFlow         MemoryCategory = "flow"
	MemoryOther        MemoryCategory = "other"
)

// Memory is a structured note mirrored into the Document/Chunk/Embedding
// path so it is retrievable like any other ingested source (spec §3/§4.H).
type Memory struct {
	ID         string         `json:"id"`
	Category   MemoryCategory `json:"category"`
	Title      string         `json:"title"`
	Content    string         `json:"content"`
	Source     string         `json:"source"`
	CreatedAt  time.Time      `json:"createdAt"`
	DocumentID string         `json:"documentId,omitempty"`
}

// ClientKind is how an Event Hub subscriber identifies itself.
type ClientKind string

const (
	ClientProxy   ClientKind = "proxy"
	ClientWebUI   ClientKind = "webui"
	ClientUnknown ClientKind = "unknown"
)

// ClientRegistration is an in-memory, per-connection record (spec §3);
// never persisted and discarded on disconnect.
type ClientRegistration struct {
	ID          string     `json:"id"`
	Kind        ClientKind `json:"kind"`
	ConnectedAt time.Time  `json:"connectedAt"`
}

// DaemonLock is the on-disk lock-file payload (spec §3/§6).
type DaemonLock struct {
	PID       int       `json:"pid"`
	Port      int       `json:"port"`
	StartedAt time.Time `json:"startedAt"`
	Token     string    `json:"token"`
}
