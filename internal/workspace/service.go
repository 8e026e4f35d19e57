// Package workspace enforces the domain policy above the record store:
// default population of new folders, department upgrades, meeting room
// membership and the agent fan-out of a user message.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/maruel/conclave/internal/archive"
	"github.com/maruel/conclave/internal/assets"
	"github.com/maruel/conclave/internal/completion"
	"github.com/maruel/conclave/internal/jsondb"
	"github.com/maruel/conclave/internal/models"
	"github.com/maruel/conclave/internal/storage"
)

var (
	// ErrBusy is returned when a message is sent while a turn is in flight.
	ErrBusy = errors.New("a turn is already in progress")
	// ErrInvalidInput is wrapped by errors caused by a bad request.
	ErrInvalidInput = errors.New("invalid input")
)

// Defaults used when populating new folders.
const (
	DefaultRoomName      = "Company Chat"
	DefaultMeetingName   = "Team Meeting"
	DefaultAssistantName = "Assistant"
	DefaultAssistantRole = "Project Assistant"
	defaultAssistantText = "Greet newcomers, answer general questions and route specialised requests to the right colleague."
)

// Checkpointer records a recovery point of the record store.
type Checkpointer interface {
	Checkpoint(ctx context.Context, msg string) error
}

// Options configures a Service.
type Options struct {
	// History, when set, is checkpointed after every mutation.
	History    Checkpointer
	AppVersion string
}

// Service is the workspace orchestrator.
type Service struct {
	store      *storage.Store
	assets     *assets.Store
	gen        completion.Generator
	history    Checkpointer
	appVersion string
	busy       atomic.Bool
}

// New returns a Service.
func New(store *storage.Store, files *assets.Store, gen completion.Generator, opts *Options) *Service {
	if opts == nil {
		opts = &Options{}
	}
	return &Service{
		store:      store,
		assets:     files,
		gen:        gen,
		history:    opts.History,
		appVersion: opts.AppVersion,
	}
}

// ObserveMessages registers o to be notified of every persisted message.
func (s *Service) ObserveMessages(o jsondb.TableObserver[*models.Message]) {
	s.store.ObserveMessages(o)
}

func (s *Service) checkpoint(ctx context.Context, format string, args ...any) {
	if s.history == nil {
		return
	}
	if err := s.history.Checkpoint(ctx, fmt.Sprintf(format, args...)); err != nil {
		slog.WarnContext(ctx, "Checkpoint failed", "err", err)
	}
}

func now() time.Time {
	return time.Now().UTC()
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// Folders

// ListFolders returns every folder, newest first.
func (s *Service) ListFolders() []*models.Folder {
	return s.store.ListFolders()
}

// GetFolder returns a folder.
func (s *Service) GetFolder(id string) (*models.Folder, error) {
	return s.store.GetFolder(id)
}

// CreateFolder creates a folder with its company room and assistant.
//
// If populating the folder fails, the folder is removed again.
func (s *Service) CreateFolder(ctx context.Context, name, description string, parentID *string) (*models.Folder, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("folder name is required")
	}
	if parentID != nil {
		if _, err := s.store.GetFolder(*parentID); err != nil {
			return nil, err
		}
	}
	f := &models.Folder{ID: models.NewID(), Name: name, Description: description, ParentID: parentID, CreatedAt: now()}
	if err := s.store.InsertFolder(f); err != nil {
		return nil, err
	}
	room := &models.Room{ID: models.NewID(), FolderID: f.ID, Name: DefaultRoomName, Type: models.RoomCompany, CreatedAt: now()}
	if _, err := s.populate(f.ID, room); err != nil {
		return nil, errors.Join(err, s.store.DeleteFolder(f.ID))
	}
	slog.InfoContext(ctx, "Created folder", "id", f.ID, "name", f.Name)
	s.checkpoint(ctx, "create folder %s", f.Name)
	return f, nil
}

// populate inserts rooms and a fresh assistant linked to all of them.
func (s *Service) populate(folderID string, rooms ...*models.Room) (*models.Agent, error) {
	assistant := &models.Agent{
		ID:                models.NewID(),
		FolderID:          folderID,
		Name:              DefaultAssistantName,
		Role:              DefaultAssistantRole,
		SystemInstruction: defaultAssistantText,
		IsAssistant:       true,
		CreatedAt:         now(),
	}
	for _, r := range rooms {
		if err := s.store.InsertRoom(r); err != nil {
			return nil, err
		}
	}
	if err := s.store.InsertAgent(assistant); err != nil {
		return nil, err
	}
	for _, r := range rooms {
		if err := s.store.LinkRoomAgent(r.ID, assistant.ID); err != nil {
			return nil, err
		}
	}
	return assistant, nil
}

// DeleteFolder removes a folder, its department folders, everything they
// own and their files. Each step is attempted; failures are joined.
func (s *Service) DeleteFolder(ctx context.Context, id string) error {
	f, err := s.store.GetFolder(id)
	if err != nil {
		return err
	}
	ids := s.descendants(id)
	var errs []error
	for _, fid := range ids {
		if err := s.store.DeleteFolder(fid); err != nil {
			errs = append(errs, err)
		}
		if n, err := s.assets.DeleteByFolder(ctx, fid); err != nil {
			errs = append(errs, err)
		} else if n != 0 {
			slog.InfoContext(ctx, "Deleted folder files", "folder", fid, "files", n)
		}
	}
	slog.InfoContext(ctx, "Deleted folder", "id", id, "folders", len(ids))
	s.checkpoint(ctx, "delete folder %s", f.Name)
	return errors.Join(errs...)
}

// descendants returns id followed by every folder nested below it.
func (s *Service) descendants(id string) []string {
	children := map[string][]string{}
	for _, f := range s.store.ListFolders() {
		if p := f.Parent(); p != "" {
			children[p] = append(children[p], f.ID)
		}
	}
	out := []string{id}
	seen := map[string]bool{id: true}
	for i := 0; i < len(out); i++ {
		for _, c := range children[out[i]] {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	return out
}

// Department is the result of UpgradeToDepartment.
type Department struct {
	Folder    *models.Folder `json:"folder"`
	Agent     *models.Agent  `json:"agent"`
	Assistant *models.Agent  `json:"assistant"`
	Meeting   *models.Room   `json:"meeting"`
	Company   *models.Room   `json:"company"`
}

// UpgradeToDepartment moves an agent into a new child folder of its own with
// a meeting room (the agent and a new assistant) and a company room (the new
// assistant only).
func (s *Service) UpgradeToDepartment(ctx context.Context, agentID, name string) (*Department, error) {
	agent, err := s.store.GetAgent(agentID)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = agent.Name + "'s Dept"
	}
	parent := agent.FolderID
	f := &models.Folder{
		ID:          models.NewID(),
		Name:        name,
		Description: fmt.Sprintf("Department led by %s", agent.Name),
		ParentID:    &parent,
		CreatedAt:   now(),
	}
	if err := s.store.InsertFolder(f); err != nil {
		return nil, err
	}
	moved, err := s.store.UpdateAgent(agentID, func(a *models.Agent) error {
		a.FolderID = f.ID
		return nil
	})
	if err != nil {
		return nil, errors.Join(err, s.store.DeleteFolder(f.ID))
	}
	meeting := &models.Room{ID: models.NewID(), FolderID: f.ID, Name: DefaultMeetingName, Type: models.RoomMeeting, CreatedAt: now()}
	company := &models.Room{ID: models.NewID(), FolderID: f.ID, Name: DefaultRoomName, Type: models.RoomCompany, CreatedAt: now()}
	if err := s.store.InsertRoom(meeting); err != nil {
		return nil, err
	}
	if err := s.store.LinkRoomAgent(meeting.ID, moved.ID); err != nil {
		return nil, err
	}
	assistant, err := s.populate(f.ID, company)
	if err != nil {
		return nil, err
	}
	if err := s.store.LinkRoomAgent(meeting.ID, assistant.ID); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "Upgraded agent to department", "agent", agentID, "folder", f.ID)
	s.checkpoint(ctx, "upgrade %s to department %s", agent.Name, name)
	return &Department{Folder: f, Agent: moved, Assistant: assistant, Meeting: meeting, Company: company}, nil
}

// Rooms

// ListRooms returns the rooms of a folder.
func (s *Service) ListRooms(folderID string) ([]*models.Room, error) {
	if _, err := s.store.GetFolder(folderID); err != nil {
		return nil, err
	}
	return s.store.ListRooms(folderID), nil
}

// CreateRoom creates a room in a folder and links the given agents.
//
// Meeting rooms always include the folder's assistant. Direct rooms take
// exactly one agent.
func (s *Service) CreateRoom(ctx context.Context, folderID, name string, typ models.RoomType, agentIDs []string) (*models.Room, error) {
	if _, err := s.store.GetFolder(folderID); err != nil {
		return nil, err
	}
	agentIDs = slices.Compact(slices.Clone(agentIDs))
	for _, id := range agentIDs {
		a, err := s.store.GetAgent(id)
		if err != nil {
			return nil, err
		}
		if a.FolderID != folderID {
			return nil, invalid("agent %s is not in folder %s", id, folderID)
		}
	}
	r := &models.Room{ID: models.NewID(), FolderID: folderID, Name: strings.TrimSpace(name), Type: typ, CreatedAt: now()}
	switch typ {
	case models.RoomMeeting:
		if a := s.assistant(folderID); a != nil && !slices.Contains(agentIDs, a.ID) {
			agentIDs = append(agentIDs, a.ID)
		}
	case models.RoomDirect:
		if len(agentIDs) != 1 {
			return nil, invalid("a direct room needs exactly one agent")
		}
		r.AgentID = agentIDs[0]
	}
	if err := s.store.InsertRoom(r); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	for _, id := range agentIDs {
		if err := s.store.LinkRoomAgent(r.ID, id); err != nil {
			return nil, err
		}
	}
	slog.InfoContext(ctx, "Created room", "id", r.ID, "type", r.Type, "agents", len(agentIDs))
	s.checkpoint(ctx, "create %s room %s", r.Type, r.Name)
	return r, nil
}

// assistant returns the first assistant of a folder.
func (s *Service) assistant(folderID string) *models.Agent {
	for _, a := range s.store.ListAgents(folderID) {
		if a.IsAssistant {
			return a
		}
	}
	return nil
}

// OpenDirectRoom returns the agent's direct room, creating it on first use.
func (s *Service) OpenDirectRoom(ctx context.Context, agentID string) (*models.Room, error) {
	agent, err := s.store.GetAgent(agentID)
	if err != nil {
		return nil, err
	}
	var byName *models.Room
	for _, r := range s.store.ListRooms(agent.FolderID) {
		if r.Type != models.RoomDirect {
			continue
		}
		if r.AgentID == agent.ID {
			return r, nil
		}
		// Rooms from older archives only carry the agent's name.
		if r.AgentID == "" && r.Name == agent.Name && byName == nil {
			byName = r
		}
	}
	if byName != nil {
		return byName, nil
	}
	return s.CreateRoom(ctx, agent.FolderID, agent.Name, models.RoomDirect, []string{agent.ID})
}

// DeleteRoom removes a room with its links and messages.
func (s *Service) DeleteRoom(ctx context.Context, id string) error {
	if err := s.store.DeleteRoom(id); err != nil {
		return err
	}
	s.checkpoint(ctx, "delete room %s", id)
	return nil
}

// ListRoomAgents returns the agents linked to a room.
func (s *Service) ListRoomAgents(roomID string) ([]*models.Agent, error) {
	if _, err := s.store.GetRoom(roomID); err != nil {
		return nil, err
	}
	return s.store.ListRoomAgents(roomID), nil
}

// AddAgentToRoom links an agent to a room. Both must belong to the same
// folder.
func (s *Service) AddAgentToRoom(ctx context.Context, roomID, agentID string) error {
	r, err := s.store.GetRoom(roomID)
	if err != nil {
		return err
	}
	a, err := s.store.GetAgent(agentID)
	if err != nil {
		return err
	}
	if a.FolderID != r.FolderID {
		return invalid("agent %s is not in the room's folder", agentID)
	}
	if err := s.store.LinkRoomAgent(roomID, agentID); err != nil {
		return err
	}
	s.checkpoint(ctx, "add %s to room %s", a.Name, r.Name)
	return nil
}

// Agents

// AgentInput describes a new agent.
type AgentInput struct {
	Name              string `json:"name"`
	Role              string `json:"role"`
	SystemInstruction string `json:"system_instruction"`
	IsAssistant       bool   `json:"is_assistant"`
}

// ListAgents returns the agents of a folder.
func (s *Service) ListAgents(folderID string) ([]*models.Agent, error) {
	if _, err := s.store.GetFolder(folderID); err != nil {
		return nil, err
	}
	return s.store.ListAgents(folderID), nil
}

// CreateAgent adds an agent to a folder.
func (s *Service) CreateAgent(ctx context.Context, folderID string, in *AgentInput) (*models.Agent, error) {
	if _, err := s.store.GetFolder(folderID); err != nil {
		return nil, err
	}
	a := &models.Agent{
		ID:                models.NewID(),
		FolderID:          folderID,
		Name:              strings.TrimSpace(in.Name),
		Role:              strings.TrimSpace(in.Role),
		SystemInstruction: in.SystemInstruction,
		IsAssistant:       in.IsAssistant,
		CreatedAt:         now(),
	}
	if err := s.store.InsertAgent(a); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	slog.InfoContext(ctx, "Created agent", "id", a.ID, "name", a.Name)
	s.checkpoint(ctx, "create agent %s", a.Name)
	return a, nil
}

// DeleteAgent removes an agent and its room links. Its messages stay.
func (s *Service) DeleteAgent(ctx context.Context, id string) error {
	a, err := s.store.GetAgent(id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteAgent(id); err != nil {
		return err
	}
	s.checkpoint(ctx, "delete agent %s", a.Name)
	return nil
}

// Messages

// ListMessages returns the messages of a room, oldest first.
func (s *Service) ListMessages(roomID string) ([]*models.Message, error) {
	if _, err := s.store.GetRoom(roomID); err != nil {
		return nil, err
	}
	return s.store.ListMessages(roomID), nil
}

// AgentFailure is an agent that could not answer during a turn.
type AgentFailure struct {
	AgentID   string `json:"agent_id"`
	AgentName string `json:"agent_name"`
	Error     string `json:"error"`
	Err       error  `json:"-"`
}

// TurnResult is the outcome of SendMessage.
type TurnResult struct {
	Message  *models.Message   `json:"message"`
	Replies  []*models.Message `json:"replies"`
	Failures []*AgentFailure   `json:"failures,omitempty"`
}

// SendMessage posts a user message to a room and collects the replies of
// every responding agent, one agent at a time.
//
// Every agent sees the same history: the room's messages up to and including
// the new user message. A failing agent is recorded in the result and the
// remaining agents still answer. Only one turn runs at a time; a concurrent
// call returns ErrBusy.
func (s *Service) SendMessage(ctx context.Context, settings models.AISettings, roomID, text string) (*TurnResult, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer s.busy.Store(false)

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, invalid("message is empty")
	}
	room, err := s.store.GetRoom(roomID)
	if err != nil {
		return nil, err
	}
	folder, err := s.store.GetFolder(room.FolderID)
	if err != nil {
		slog.WarnContext(ctx, "Room without folder", "room", roomID, "err", err)
		folder = nil
	}
	msg := &models.Message{ID: models.NewID(), RoomID: roomID, Role: models.RoleUser, Content: text, Timestamp: now()}
	if err := s.store.AppendMessage(msg); err != nil {
		return nil, err
	}
	res := &TurnResult{Message: msg, Replies: []*models.Message{}}

	roomAgents := s.store.ListRoomAgents(roomID)
	responders := Responders(room, roomAgents, s.store.ListAgents(room.FolderID), text)
	names := map[string]string{}
	for _, a := range s.store.ListAllAgents() {
		names[a.ID] = a.Name
	}
	snapshot := s.store.ListMessages(roomID)
	turns := make([]completion.Turn, len(snapshot))
	for i, m := range snapshot {
		turns[i] = completion.Turn{Role: m.Role, Content: labelTurn(m, names)}
	}

	for _, agent := range responders {
		prompt := BuildSystemPrompt(agent, room, folder, roomAgents)
		reply, err := s.gen.Generate(ctx, settings, turns, prompt)
		if err == nil && strings.TrimSpace(reply) == "" {
			err = errors.New("empty reply")
		}
		if err == nil {
			id := agent.ID
			m := &models.Message{ID: models.NewID(), RoomID: roomID, AgentID: &id, Role: models.RoleModel, Content: reply, Timestamp: now()}
			if err = s.store.AppendMessage(m); err == nil {
				res.Replies = append(res.Replies, m)
				continue
			}
		}
		slog.WarnContext(ctx, "Agent failed to answer", "room", roomID, "agent", agent.ID, "name", agent.Name, "err", err)
		res.Failures = append(res.Failures, &AgentFailure{AgentID: agent.ID, AgentName: agent.Name, Error: err.Error(), Err: err})
	}
	slog.InfoContext(ctx, "Turn complete", "room", roomID, "responders", len(responders), "replies", len(res.Replies), "failures", len(res.Failures))
	s.checkpoint(ctx, "message in room %s", room.Name)
	return res, nil
}

// Settings

// Settings returns the completion settings.
func (s *Service) Settings() models.AISettings {
	return s.store.LoadSettings()
}

// SaveSettings overwrites the completion settings. A redacted API key keeps
// the stored one.
func (s *Service) SaveSettings(ctx context.Context, v models.AISettings) (models.AISettings, error) {
	if v.APIKey == models.RedactedKey {
		v.APIKey = s.store.LoadSettings().APIKey
	}
	if err := s.store.SaveSettings(v); err != nil {
		return v, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	slog.InfoContext(ctx, "Saved settings", "provider", v.Provider, "model", v.Model)
	s.checkpoint(ctx, "update settings")
	return v, nil
}

// Files

// ListFiles returns the files of a folder, newest first.
func (s *Service) ListFiles(ctx context.Context, folderID string) ([]*models.WorkspaceFile, error) {
	if _, err := s.store.GetFolder(folderID); err != nil {
		return nil, err
	}
	return s.assets.ListByFolder(ctx, folderID)
}

// UploadFile stores a file in a folder.
func (s *Service) UploadFile(ctx context.Context, folderID string, up *assets.Upload) (*models.WorkspaceFile, error) {
	if _, err := s.store.GetFolder(folderID); err != nil {
		return nil, err
	}
	if up.Type == "" {
		up.Type = assets.DetectType(up.Name, up.Data)
	}
	f, err := s.assets.Save(ctx, folderID, up, models.NewID())
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "Stored file", "id", f.ID, "name", f.Name, "size", assets.FormatSize(f.Size))
	return f, nil
}

// IngestFile stores a file from disk in a folder.
func (s *Service) IngestFile(ctx context.Context, folderID, path string) (*models.WorkspaceFile, error) {
	if _, err := s.store.GetFolder(folderID); err != nil {
		return nil, err
	}
	f, err := s.assets.Ingest(ctx, folderID, path)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "Ingested file", "id", f.ID, "name", f.Name, "size", assets.FormatSize(f.Size))
	return f, nil
}

// GetFile returns the metadata of a file.
func (s *Service) GetFile(ctx context.Context, id string) (*models.WorkspaceFile, error) {
	return s.assets.Get(ctx, id)
}

// GetFileBlob returns the bytes of a file.
func (s *Service) GetFileBlob(ctx context.Context, id string) (*models.BlobRecord, error) {
	return s.assets.GetBlob(ctx, id)
}

// DeleteFile removes a file.
func (s *Service) DeleteFile(ctx context.Context, id string) error {
	if _, err := s.assets.Get(ctx, id); err != nil {
		return err
	}
	return s.assets.DeleteByID(ctx, id)
}

// Archives

// Export writes an archive of the record store to w, with the files when
// includeAssets is set.
func (s *Service) Export(ctx context.Context, w io.Writer, includeAssets bool) (*archive.Manifest, error) {
	opts := &archive.Options{AppVersion: s.appVersion}
	if includeAssets {
		opts.Assets = s.assets
	}
	return archive.Export(ctx, w, s.store.Medium(), opts)
}

// Import restores an archive. It cannot run during a turn.
//
// A checkpoint is taken before and after so a partial import can be rolled
// back from history.
func (s *Service) Import(ctx context.Context, r io.ReaderAt, size int64) (*archive.Result, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer s.busy.Store(false)
	s.checkpoint(ctx, "before import")
	res, err := archive.Import(ctx, r, size, s.store.Medium(), s.assets)
	if res != nil && res.Restored != 0 {
		s.checkpoint(ctx, "import %d of %d keys", res.Restored, res.Total)
	}
	return res, err
}
