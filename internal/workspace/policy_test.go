package workspace

import (
	"strings"
	"testing"

	"github.com/maruel/conclave/internal/models"
)

func TestResolveMentionTarget(t *testing.T) {
	agents := []*models.Agent{
		{ID: "1", Name: "Alexandra"},
		{ID: "2", Name: "Alex"},
		{ID: "3", Name: "Sam"},
	}
	tests := []struct {
		text string
		want string
	}{
		{"hey @alex can you help", "1"},
		{"@SAM?", "3"},
		{"no mention", ""},
		{"mail me at a@b", ""},
		{"@zed and @sam", ""},
		{"@ alone", ""},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got := ResolveMentionTarget(tt.text, agents)
			id := ""
			if got != nil {
				id = got.ID
			}
			if id != tt.want {
				t.Errorf("ResolveMentionTarget(%q) = %q, want %q", tt.text, id, tt.want)
			}
		})
	}
}

func TestResponders(t *testing.T) {
	alex := &models.Agent{ID: "a", Name: "Alex"}
	sam := &models.Agent{ID: "s", Name: "Sam", IsAssistant: true}
	lee := &models.Agent{ID: "l", Name: "Lee"}
	room := []*models.Agent{alex, sam}
	folder := []*models.Agent{alex, sam, lee}
	tests := []struct {
		name string
		typ  models.RoomType
		text string
		want string
	}{
		{"company mention", models.RoomCompany, "@alex hi", "a"},
		{"company mention outside room", models.RoomCompany, "@lee hi", "l"},
		{"company no mention", models.RoomCompany, "hi", "s"},
		{"meeting ignores mention", models.RoomMeeting, "@alex hi", "a,s"},
		{"direct", models.RoomDirect, "hi", "a,s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Responders(&models.Room{Type: tt.typ}, room, folder, tt.text)
			ids := make([]string, len(got))
			for i, a := range got {
				ids[i] = a.ID
			}
			if s := strings.Join(ids, ","); s != tt.want {
				t.Errorf("Responders() = %s, want %s", s, tt.want)
			}
		})
	}
}

func TestBuildSystemPrompt(t *testing.T) {
	sam := &models.Agent{ID: "s", Name: "Sam", Role: "Coordinator", IsAssistant: true, SystemInstruction: "Be brief."}
	alex := &models.Agent{ID: "a", Name: "Alex", Role: "Engineer"}
	room := &models.Room{Name: "Company Chat", Type: models.RoomCompany}
	folder := &models.Folder{Name: "Acme"}
	got := BuildSystemPrompt(sam, room, folder, []*models.Agent{sam, alex})
	for _, want := range []string{"You are Sam, Coordinator.", "project assistant", "Be brief.", `company room "Company Chat"`, `project "Acme"`, "- Alex (Engineer)"} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt lacks %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "- Sam") {
		t.Errorf("prompt lists the agent itself:\n%s", got)
	}
	if strings.Contains(BuildSystemPrompt(alex, room, folder, nil), "project assistant") {
		t.Error("assistant clause for a regular agent")
	}
}
