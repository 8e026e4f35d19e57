package archive

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
	"github.com/maruel/conclave/internal/models"
)

// layout maps archive entries to their contents.
type layout struct {
	Manifest   Manifest               `json:"manifest.json"`
	Folders    []models.Folder        `json:"data/folders.json,omitempty"`
	Agents     []models.Agent         `json:"data/agents.json,omitempty"`
	Rooms      []models.Room          `json:"data/rooms.json,omitempty"`
	RoomAgents []models.RoomAgentLink `json:"data/room_agents.json,omitempty"`
	Messages   []models.Message       `json:"data/messages.json,omitempty"`
	Settings   *models.AISettings     `json:"data/settings.json,omitempty"`
	Assets     []models.WorkspaceFile `json:"assets/index.json,omitempty"`
}

// Schema returns the JSON Schema of an archive, one property per entry.
func Schema() ([]byte, error) {
	r := jsonschema.Reflector{DoNotReference: true}
	s := r.Reflect(&layout{})
	s.Title = "conclave backup"
	return json.MarshalIndent(s, "", "  ")
}
