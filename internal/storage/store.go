// Package storage is the structured record store: folders, rooms, agents,
// room/agent links, messages and the settings singleton, each held as one
// JSON collection in a [jsondb.Medium].
package storage

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/maruel/conclave/internal/jsondb"
	"github.com/maruel/conclave/internal/models"
)

// Namespaced medium keys.
const (
	KeyFolders    = "conclave_folders"
	KeyAgents     = "conclave_agents"
	KeyRooms      = "conclave_rooms"
	KeyRoomAgents = "conclave_room_agents"
	KeyMessages   = "conclave_messages"
	KeySettings   = "conclave_settings"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Keys returns every persisted key in archive order.
func Keys() []string {
	return []string{KeyFolders, KeyAgents, KeyRooms, KeyRoomAgents, KeyMessages, KeySettings}
}

// Store is the record store.
type Store struct {
	medium   jsondb.Medium
	folders  *jsondb.Table[*models.Folder]
	agents   *jsondb.Table[*models.Agent]
	rooms    *jsondb.Table[*models.Room]
	links    *jsondb.Table[*models.RoomAgentLink]
	messages *jsondb.Table[*models.Message]
	settings *jsondb.Value[models.AISettings]
}

// New returns a store over m.
func New(m jsondb.Medium) *Store {
	return &Store{
		medium:   m,
		folders:  jsondb.NewTable[*models.Folder](m, KeyFolders),
		agents:   jsondb.NewTable[*models.Agent](m, KeyAgents),
		rooms:    jsondb.NewTable[*models.Room](m, KeyRooms),
		links:    jsondb.NewTable[*models.RoomAgentLink](m, KeyRoomAgents),
		messages: jsondb.NewTable[*models.Message](m, KeyMessages),
		settings: jsondb.NewValue[models.AISettings](m, KeySettings),
	}
}

// Medium returns the underlying medium.
func (s *Store) Medium() jsondb.Medium {
	return s.medium
}

// ObserveMessages registers o to be notified of every appended message.
func (s *Store) ObserveMessages(o jsondb.TableObserver[*models.Message]) {
	s.messages.AddObserver(o)
}

// Folders

// ListFolders returns every folder, newest first.
func (s *Store) ListFolders() []*models.Folder {
	out := s.folders.All()
	slices.SortStableFunc(out, func(a, b *models.Folder) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out
}

// GetFolder returns the folder with id.
func (s *Store) GetFolder(id string) (*models.Folder, error) {
	f, ok := s.folders.Find(func(f *models.Folder) bool { return f.ID == id })
	if !ok {
		return nil, fmt.Errorf("folder %s: %w", id, ErrNotFound)
	}
	return f, nil
}

// InsertFolder validates and appends f.
func (s *Store) InsertFolder(f *models.Folder) error {
	if err := f.Validate(); err != nil {
		return fmt.Errorf("invalid folder: %w", err)
	}
	return s.folders.Append(f)
}

// UpdateFolder applies fn to the folder with id and persists the result.
func (s *Store) UpdateFolder(id string, fn func(*models.Folder) error) (*models.Folder, error) {
	var updated *models.Folder
	err := s.folders.Modify(func(rows []*models.Folder) ([]*models.Folder, error) {
		i := slices.IndexFunc(rows, func(f *models.Folder) bool { return f.ID == id })
		if i < 0 {
			return nil, fmt.Errorf("folder %s: %w", id, ErrNotFound)
		}
		f := rows[i].Clone()
		if err := fn(f); err != nil {
			return nil, err
		}
		f.ID = id
		if err := f.Validate(); err != nil {
			return nil, fmt.Errorf("invalid folder: %w", err)
		}
		rows[i] = f
		updated = f
		return rows, nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteFolder removes the folder and every room, agent, link and message it
// owns. Each step runs even when an earlier one fails; failures are joined.
// Descendant folders are not touched.
func (s *Store) DeleteFolder(id string) error {
	var errs []error
	if _, err := s.folders.DeleteFunc(func(f *models.Folder) bool { return f.ID == id }); err != nil {
		errs = append(errs, fmt.Errorf("folders: %w", err))
	}
	removedRooms := map[string]bool{}
	for _, r := range s.rooms.All() {
		if r.FolderID == id {
			removedRooms[r.ID] = true
		}
	}
	if _, err := s.rooms.DeleteFunc(func(r *models.Room) bool { return r.FolderID == id }); err != nil {
		errs = append(errs, fmt.Errorf("rooms: %w", err))
	}
	if _, err := s.agents.DeleteFunc(func(a *models.Agent) bool { return a.FolderID == id }); err != nil {
		errs = append(errs, fmt.Errorf("agents: %w", err))
	}
	if len(removedRooms) != 0 {
		if _, err := s.links.DeleteFunc(func(l *models.RoomAgentLink) bool { return removedRooms[l.RoomID] }); err != nil {
			errs = append(errs, fmt.Errorf("room agents: %w", err))
		}
		if _, err := s.messages.DeleteFunc(func(m *models.Message) bool { return removedRooms[m.RoomID] }); err != nil {
			errs = append(errs, fmt.Errorf("messages: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		slog.Warn("Folder deletion incomplete", "folder", id, "err", err)
		return err
	}
	return nil
}

// Rooms

// ListRooms returns the rooms of a folder in stored order.
func (s *Store) ListRooms(folderID string) []*models.Room {
	return s.rooms.Filter(func(r *models.Room) bool { return r.FolderID == folderID })
}

// ListAllRooms returns every room.
func (s *Store) ListAllRooms() []*models.Room {
	return s.rooms.All()
}

// GetRoom returns the room with id.
func (s *Store) GetRoom(id string) (*models.Room, error) {
	r, ok := s.rooms.Find(func(r *models.Room) bool { return r.ID == id })
	if !ok {
		return nil, fmt.Errorf("room %s: %w", id, ErrNotFound)
	}
	return r, nil
}

// InsertRoom validates and appends r.
func (s *Store) InsertRoom(r *models.Room) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("invalid room: %w", err)
	}
	return s.rooms.Append(r)
}

// DeleteRoom removes the room with its links and messages.
func (s *Store) DeleteRoom(id string) error {
	n, err := s.rooms.DeleteFunc(func(r *models.Room) bool { return r.ID == id })
	if err != nil {
		return fmt.Errorf("rooms: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("room %s: %w", id, ErrNotFound)
	}
	var errs []error
	if _, err := s.links.DeleteFunc(func(l *models.RoomAgentLink) bool { return l.RoomID == id }); err != nil {
		errs = append(errs, fmt.Errorf("room agents: %w", err))
	}
	if _, err := s.messages.DeleteFunc(func(m *models.Message) bool { return m.RoomID == id }); err != nil {
		errs = append(errs, fmt.Errorf("messages: %w", err))
	}
	return errors.Join(errs...)
}

// Agents

// ListAgents returns the agents of a folder in stored order.
func (s *Store) ListAgents(folderID string) []*models.Agent {
	return s.agents.Filter(func(a *models.Agent) bool { return a.FolderID == folderID })
}

// ListAllAgents returns every agent.
func (s *Store) ListAllAgents() []*models.Agent {
	return s.agents.All()
}

// GetAgent returns the agent with id.
func (s *Store) GetAgent(id string) (*models.Agent, error) {
	a, ok := s.agents.Find(func(a *models.Agent) bool { return a.ID == id })
	if !ok {
		return nil, fmt.Errorf("agent %s: %w", id, ErrNotFound)
	}
	return a, nil
}

// InsertAgent validates and appends a.
func (s *Store) InsertAgent(a *models.Agent) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("invalid agent: %w", err)
	}
	return s.agents.Append(a)
}

// UpdateAgent applies fn to the agent with id and persists the result.
func (s *Store) UpdateAgent(id string, fn func(*models.Agent) error) (*models.Agent, error) {
	var updated *models.Agent
	err := s.agents.Modify(func(rows []*models.Agent) ([]*models.Agent, error) {
		i := slices.IndexFunc(rows, func(a *models.Agent) bool { return a.ID == id })
		if i < 0 {
			return nil, fmt.Errorf("agent %s: %w", id, ErrNotFound)
		}
		a := rows[i].Clone()
		if err := fn(a); err != nil {
			return nil, err
		}
		a.ID = id
		if err := a.Validate(); err != nil {
			return nil, fmt.Errorf("invalid agent: %w", err)
		}
		rows[i] = a
		updated = a
		return rows, nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteAgent removes the agent and its room links. Messages it authored are
// kept.
func (s *Store) DeleteAgent(id string) error {
	n, err := s.agents.DeleteFunc(func(a *models.Agent) bool { return a.ID == id })
	if err != nil {
		return fmt.Errorf("agents: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("agent %s: %w", id, ErrNotFound)
	}
	if _, err := s.links.DeleteFunc(func(l *models.RoomAgentLink) bool { return l.AgentID == id }); err != nil {
		return fmt.Errorf("room agents: %w", err)
	}
	return nil
}

// Links

// LinkRoomAgent attaches an agent to a room. Linking an existing pair is a
// no-op.
func (s *Store) LinkRoomAgent(roomID, agentID string) error {
	link := &models.RoomAgentLink{RoomID: roomID, AgentID: agentID}
	if err := link.Validate(); err != nil {
		return fmt.Errorf("invalid link: %w", err)
	}
	return s.links.Modify(func(rows []*models.RoomAgentLink) ([]*models.RoomAgentLink, error) {
		if slices.ContainsFunc(rows, func(l *models.RoomAgentLink) bool { return *l == *link }) {
			return rows, nil
		}
		return append(rows, link), nil
	})
}

// UnlinkRoomAgent detaches an agent from a room.
func (s *Store) UnlinkRoomAgent(roomID, agentID string) error {
	_, err := s.links.DeleteFunc(func(l *models.RoomAgentLink) bool {
		return l.RoomID == roomID && l.AgentID == agentID
	})
	return err
}

// ListLinks returns every room/agent link.
func (s *Store) ListLinks() []*models.RoomAgentLink {
	return s.links.All()
}

// ListRoomAgents returns the agents linked to a room, in link order. Links to
// agents that no longer exist are skipped.
func (s *Store) ListRoomAgents(roomID string) []*models.Agent {
	byID := map[string]*models.Agent{}
	for _, a := range s.agents.All() {
		byID[a.ID] = a
	}
	out := []*models.Agent{}
	for _, l := range s.links.All() {
		if l.RoomID != roomID {
			continue
		}
		if a := byID[l.AgentID]; a != nil {
			out = append(out, a)
		}
	}
	return out
}

// Messages

// ListMessages returns the messages of a room, oldest first.
func (s *Store) ListMessages(roomID string) []*models.Message {
	out := s.messages.Filter(func(m *models.Message) bool { return m.RoomID == roomID })
	slices.SortStableFunc(out, func(a, b *models.Message) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return out
}

// AppendMessage validates and appends m.
func (s *Store) AppendMessage(m *models.Message) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("invalid message: %w", err)
	}
	return s.messages.Append(m)
}

// Settings

// LoadSettings returns the stored settings, or the defaults when they are
// missing or unreadable.
func (s *Store) LoadSettings() models.AISettings {
	v, err := s.settings.Load()
	if err != nil {
		if !errors.Is(err, jsondb.ErrNotFound) {
			slog.Warn("Using default settings", "err", err)
		}
		return models.DefaultAISettings()
	}
	if v.Provider == "" {
		v.Provider = models.ProviderGemini
	}
	return v
}

// SaveSettings validates and overwrites the settings.
func (s *Store) SaveSettings(v models.AISettings) error {
	if err := v.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	return s.settings.Save(v)
}
