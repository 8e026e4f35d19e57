package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		v       interface{ Validate() error }
		wantErr bool
	}{
		{"folder ok", &Folder{ID: "f", Name: "Acme"}, false},
		{"folder no name", &Folder{ID: "f"}, true},
		{"folder long name", &Folder{ID: "f", Name: strings.Repeat("x", MaxNameLength+1)}, true},
		{"room ok", &Room{ID: "r", FolderID: "f", Name: "Company Chat", Type: RoomCompany}, false},
		{"room bad type", &Room{ID: "r", FolderID: "f", Name: "x", Type: "lobby"}, true},
		{"agent ok", &Agent{ID: "a", FolderID: "f", Name: "Alex"}, false},
		{"agent no folder", &Agent{ID: "a", Name: "Alex"}, true},
		{"link ok", &RoomAgentLink{RoomID: "r", AgentID: "a"}, false},
		{"link empty", &RoomAgentLink{RoomID: "r"}, true},
		{"message ok", &Message{ID: "m", RoomID: "r", Role: RoleUser}, false},
		{"message bad role", &Message{ID: "m", RoomID: "r", Role: "system"}, true},
		{"file ok", &WorkspaceFile{ID: "x", FolderID: "f", Name: "a.txt"}, false},
		{"file negative size", &WorkspaceFile{ID: "x", FolderID: "f", Name: "a.txt", Size: -1}, true},
		{"settings ok", &AISettings{Provider: ProviderOllama}, false},
		{"settings bad provider", &AISettings{Provider: "skynet"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.v.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMessageJSON(t *testing.T) {
	m := &Message{ID: "m", RoomID: "r", Role: RoleUser, Content: "hi", Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"id":"m","room_id":"r","agent_id":null,"role":"user","content":"hi","timestamp":"2026-01-01T00:00:00Z"}`
	if string(data) != want {
		t.Errorf("Marshal() = %s, want %s", data, want)
	}
	if m.Author() != "" {
		t.Errorf("Author() = %q", m.Author())
	}
	c := m.Clone()
	id := "a"
	c.AgentID = &id
	if m.AgentID != nil {
		t.Error("Clone shares AgentID")
	}
}

func TestRedacted(t *testing.T) {
	s := AISettings{Provider: ProviderOpenAI, APIKey: "sk-secret"}
	if got := s.Redacted().APIKey; got != "********" {
		t.Errorf("Redacted().APIKey = %q", got)
	}
	if s.APIKey != "sk-secret" {
		t.Error("Redacted mutated the receiver")
	}
	if got := (AISettings{}).Redacted().APIKey; got != "" {
		t.Errorf("empty key redacted to %q", got)
	}
}

func TestNewID(t *testing.T) {
	a, b := NewID(), NewID()
	if a == "" || a == b {
		t.Errorf("NewID() = %q, %q", a, b)
	}
}
