// Package models defines the core data structures used throughout the application.
//
// Every record type is persisted as JSON; the field names are part of the
// on-disk and archive formats and must not change.
package models

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/maruel/ksid"
)

// MaxNameLength bounds display names of folders, rooms and agents.
const MaxNameLength = 200

// RedactedKey replaces API keys in settings returned to clients.
const RedactedKey = "********"

// NewID returns a new opaque, time-sortable identifier.
func NewID() string {
	return ksid.NewID().String()
}

// RoomType defines how a room fans messages out to its agents.
type RoomType string

const (
	// RoomMeeting rooms get a reply from every linked agent.
	RoomMeeting RoomType = "meeting"
	// RoomCompany rooms route to a mentioned agent or to the assistants.
	RoomCompany RoomType = "company"
	// RoomDirect rooms are a one-to-one conversation with a single agent.
	RoomDirect RoomType = "direct"
)

// Role is the author kind of a message.
type Role string

const (
	// RoleUser marks messages written by the human user.
	RoleUser Role = "user"
	// RoleModel marks messages produced by an agent.
	RoleModel Role = "model"
)

// Folder is a project container owning rooms and agents.
type Folder struct {
	ID          string    `json:"id" jsonschema:"description=Unique folder identifier"`
	Name        string    `json:"name" jsonschema:"description=Display name"`
	Description string    `json:"description" jsonschema:"description=Free-text description"`
	ParentID    *string   `json:"parent_id" jsonschema:"description=Parent folder for departments; null at top level"`
	CreatedAt   time.Time `json:"created_at" jsonschema:"description=Creation timestamp"`
}

// Clone returns a deep copy of the Folder.
func (f *Folder) Clone() *Folder {
	c := *f
	if f.ParentID != nil {
		p := *f.ParentID
		c.ParentID = &p
	}
	return &c
}

// Parent returns the parent folder ID or "" at the top level.
func (f *Folder) Parent() string {
	if f.ParentID == nil {
		return ""
	}
	return *f.ParentID
}

// Validate checks that the Folder is valid.
func (f *Folder) Validate() error {
	return validation.ValidateStruct(f,
		validation.Field(&f.ID, validation.Required),
		validation.Field(&f.Name, validation.Required, validation.Length(1, MaxNameLength)),
	)
}

// Room is a chat channel within a folder.
type Room struct {
	ID        string    `json:"id" jsonschema:"description=Unique room identifier"`
	FolderID  string    `json:"folder_id" jsonschema:"description=Owning folder"`
	Name      string    `json:"name" jsonschema:"description=Display name"`
	Type      RoomType  `json:"type" jsonschema:"enum=meeting,enum=company,enum=direct"`
	AgentID   string    `json:"agent_id,omitempty" jsonschema:"description=Counterpart agent of a direct room"`
	CreatedAt time.Time `json:"created_at" jsonschema:"description=Creation timestamp"`
}

// Clone returns a copy of the Room.
func (r *Room) Clone() *Room {
	c := *r
	return &c
}

// Validate checks that the Room is valid.
func (r *Room) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.ID, validation.Required),
		validation.Field(&r.FolderID, validation.Required),
		validation.Field(&r.Name, validation.Required, validation.Length(1, MaxNameLength)),
		validation.Field(&r.Type, validation.Required, validation.In(RoomMeeting, RoomCompany, RoomDirect)),
	)
}

// Agent is an AI persona scoped to a folder.
type Agent struct {
	ID                string    `json:"id" jsonschema:"description=Unique agent identifier"`
	FolderID          string    `json:"folder_id" jsonschema:"description=Owning folder"`
	Name              string    `json:"name" jsonschema:"description=Display name, used for @mentions"`
	Role              string    `json:"role" jsonschema:"description=Free-text job title"`
	SystemInstruction string    `json:"system_instruction" jsonschema:"description=Free-text prompt fragment"`
	IsAssistant       bool      `json:"is_assistant" jsonschema:"description=Answers un-addressed company messages and joins every meeting"`
	CreatedAt         time.Time `json:"created_at,omitzero" jsonschema:"description=Creation timestamp"`
}

// Clone returns a copy of the Agent.
func (a *Agent) Clone() *Agent {
	c := *a
	return &c
}

// Validate checks that the Agent is valid.
func (a *Agent) Validate() error {
	return validation.ValidateStruct(a,
		validation.Field(&a.ID, validation.Required),
		validation.Field(&a.FolderID, validation.Required),
		validation.Field(&a.Name, validation.Required, validation.Length(1, MaxNameLength)),
	)
}

// RoomAgentLink attaches an agent to a room. The pair is unique.
type RoomAgentLink struct {
	RoomID  string `json:"room_id"`
	AgentID string `json:"agent_id"`
}

// Clone returns a copy of the link.
func (l *RoomAgentLink) Clone() *RoomAgentLink {
	c := *l
	return &c
}

// Validate checks that the link is valid.
func (l *RoomAgentLink) Validate() error {
	return validation.ValidateStruct(l,
		validation.Field(&l.RoomID, validation.Required),
		validation.Field(&l.AgentID, validation.Required),
	)
}

// Message is one entry of a room's append-only log.
type Message struct {
	ID        string    `json:"id" jsonschema:"description=Unique message identifier"`
	RoomID    string    `json:"room_id" jsonschema:"description=Room the message belongs to"`
	AgentID   *string   `json:"agent_id" jsonschema:"description=Authoring agent; null for the human user"`
	Role      Role      `json:"role" jsonschema:"enum=user,enum=model"`
	Content   string    `json:"content" jsonschema:"description=Markdown text"`
	Timestamp time.Time `json:"timestamp" jsonschema:"description=Creation timestamp"`
}

// Clone returns a deep copy of the Message.
func (m *Message) Clone() *Message {
	c := *m
	if m.AgentID != nil {
		a := *m.AgentID
		c.AgentID = &a
	}
	return &c
}

// Author returns the authoring agent ID or "" for the user.
func (m *Message) Author() string {
	if m.AgentID == nil {
		return ""
	}
	return *m.AgentID
}

// Validate checks that the Message is valid.
func (m *Message) Validate() error {
	return validation.ValidateStruct(m,
		validation.Field(&m.ID, validation.Required),
		validation.Field(&m.RoomID, validation.Required),
		validation.Field(&m.Role, validation.Required, validation.In(RoleUser, RoleModel)),
	)
}

// WorkspaceFile is the metadata half of a stored file.
type WorkspaceFile struct {
	ID        string    `json:"id"`
	FolderID  string    `json:"folder_id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Size      int64     `json:"size"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks that the WorkspaceFile is valid.
func (f *WorkspaceFile) Validate() error {
	return validation.ValidateStruct(f,
		validation.Field(&f.ID, validation.Required),
		validation.Field(&f.FolderID, validation.Required),
		validation.Field(&f.Name, validation.Required),
		validation.Field(&f.Size, validation.Min(int64(0))),
	)
}

// BlobRecord is the raw-bytes half of a stored file. It shares its ID with
// the WorkspaceFile.
type BlobRecord struct {
	ID   string `json:"id"`
	Data []byte `json:"-"`
	Name string `json:"name"`
	Type string `json:"type"`
}
