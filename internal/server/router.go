package server

import (
	"net/http"

	"github.com/rs/cors"

	"github.com/maruel/conclave/internal/server/handlers"
	"github.com/maruel/conclave/internal/workspace"
)

// Options configures the router.
type Options struct {
	Version string
	// CORSOrigins lists the browser origins allowed to call the API. The
	// server's own origin is always allowed; empty means only that one.
	CORSOrigins []string
}

// NewRouter creates and configures the HTTP router. hub streams appended
// messages on /api/events; it must be registered on svc by the caller.
func NewRouter(svc *workspace.Service, hub *Hub, opts *Options) http.Handler {
	if opts == nil {
		opts = &Options{}
	}
	mux := http.NewServeMux()

	hh := handlers.NewHealthHandler(opts.Version)
	fh := &handlers.FolderHandler{Svc: svc}
	rh := &handlers.RoomHandler{Svc: svc}
	ah := &handlers.AgentHandler{Svc: svc}
	mh := &handlers.MessageHandler{Svc: svc}
	fileh := &handlers.FileHandler{Svc: svc}
	sh := &handlers.SettingsHandler{Svc: svc}
	arh := &handlers.ArchiveHandler{Svc: svc}

	mux.Handle("GET /api/health", Wrap(hh.Health))

	// Folders
	mux.Handle("GET /api/folders", Wrap(fh.ListFolders))
	mux.Handle("POST /api/folders", Wrap(fh.CreateFolder))
	mux.Handle("DELETE /api/folders/{id}", Wrap(fh.DeleteFolder))

	// Rooms
	mux.Handle("GET /api/folders/{id}/rooms", Wrap(rh.ListRooms))
	mux.Handle("POST /api/folders/{id}/rooms", Wrap(rh.CreateRoom))
	mux.Handle("DELETE /api/rooms/{id}", Wrap(rh.DeleteRoom))
	mux.Handle("GET /api/rooms/{id}/agents", Wrap(rh.ListRoomAgents))
	mux.Handle("POST /api/rooms/{id}/agents", Wrap(rh.AddRoomAgent))

	// Agents
	mux.Handle("GET /api/folders/{id}/agents", Wrap(ah.ListAgents))
	mux.Handle("POST /api/folders/{id}/agents", Wrap(ah.CreateAgent))
	mux.Handle("DELETE /api/agents/{id}", Wrap(ah.DeleteAgent))
	mux.Handle("POST /api/agents/{id}/department", Wrap(ah.UpgradeToDepartment))
	mux.Handle("POST /api/agents/{id}/direct", Wrap(ah.OpenDirectRoom))

	// Messages
	mux.Handle("GET /api/rooms/{id}/messages", Wrap(mh.ListMessages))
	mux.Handle("POST /api/rooms/{id}/messages", Wrap(mh.SendMessage))

	// Files
	mux.Handle("GET /api/folders/{id}/files", Wrap(fileh.ListFiles))
	mux.HandleFunc("POST /api/folders/{id}/files", fileh.UploadFile)
	mux.HandleFunc("GET /api/files/{id}", fileh.ServeFile)
	mux.Handle("DELETE /api/files/{id}", Wrap(fileh.DeleteFile))

	// Settings
	mux.Handle("GET /api/settings", Wrap(sh.GetSettings))
	mux.Handle("PUT /api/settings", Wrap(sh.UpdateSettings))

	// Archives
	mux.HandleFunc("GET /api/archive/export", arh.Export)
	mux.HandleFunc("POST /api/archive/import", arh.Import)
	mux.HandleFunc("GET /api/archive/schema", arh.Schema)

	mux.Handle("GET /api/events", hub)

	c := cors.New(cors.Options{
		AllowOriginVaryRequestFunc: func(r *http.Request, origin string) (bool, []string) {
			return originAllowed(opts.CORSOrigins, r, origin), nil
		},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Origin", "Content-Type", "Accept", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "Content-Disposition"},
	})
	return LoggingMiddleware(c.Handler(mux))
}
