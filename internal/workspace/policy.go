package workspace

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/maruel/conclave/internal/models"
)

var mentionRe = regexp.MustCompile(`@(\w+)`)

// ResolveMentionTarget returns the agent addressed by the first @mention in
// text, or nil.
//
// Only the first mention is considered. It matches the first agent, in the
// given order, whose name contains the mention, ignoring case.
func ResolveMentionTarget(text string, agents []*models.Agent) *models.Agent {
	m := mentionRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	mention := strings.ToLower(m[1])
	for _, a := range agents {
		if strings.Contains(strings.ToLower(a.Name), mention) {
			return a
		}
	}
	return nil
}

// Responders returns the agents that must answer text posted in room, in
// answering order.
//
// In a company room a resolved @mention picks exactly one agent from the
// whole folder; otherwise the room's assistants answer. Meeting and direct
// rooms get an answer from every linked agent.
func Responders(room *models.Room, roomAgents, folderAgents []*models.Agent, text string) []*models.Agent {
	if room.Type != models.RoomCompany {
		return roomAgents
	}
	if target := ResolveMentionTarget(text, folderAgents); target != nil {
		return []*models.Agent{target}
	}
	out := []*models.Agent{}
	for _, a := range roomAgents {
		if a.IsAssistant {
			out = append(out, a)
		}
	}
	return out
}

// BuildSystemPrompt assembles the instructions sent along with the
// conversation when agent answers in room.
func BuildSystemPrompt(agent *models.Agent, room *models.Room, folder *models.Folder, roster []*models.Agent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s", agent.Name)
	if agent.Role != "" {
		fmt.Fprintf(&b, ", %s", agent.Role)
	}
	b.WriteString(".\n")
	if agent.IsAssistant {
		b.WriteString("You are the project assistant: answer questions nobody else was asked, keep the team coordinated and point the user to the right colleague when someone else is better placed to help.\n")
	}
	if s := strings.TrimSpace(agent.SystemInstruction); s != "" {
		b.WriteString("\n")
		b.WriteString(s)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nYou are in the %s room %q", room.Type, room.Name)
	if folder != nil {
		fmt.Fprintf(&b, " of the project %q", folder.Name)
	}
	b.WriteString(".\n")
	others := 0
	for _, a := range roster {
		if a.ID == agent.ID {
			continue
		}
		if others == 0 {
			b.WriteString("Also present:\n")
		}
		others++
		if a.Role != "" {
			fmt.Fprintf(&b, "- %s (%s)\n", a.Name, a.Role)
		} else {
			fmt.Fprintf(&b, "- %s\n", a.Name)
		}
	}
	b.WriteString("\nMessages in the conversation are prefixed with the speaker's name. Reply as yourself without adding a prefix.")
	return b.String()
}

// speakerLabel is used for messages from agents that no longer exist.
const speakerLabel = "Agent"

// labelTurn prefixes a message with its speaker's name.
func labelTurn(m *models.Message, names map[string]string) string {
	speaker := "User"
	if id := m.Author(); id != "" {
		speaker = names[id]
		if speaker == "" {
			speaker = speakerLabel
		}
	}
	return speaker + ": " + m.Content
}
