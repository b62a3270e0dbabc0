package content

import (
	"fmt"
	"strings"
)

// BuildContext renders the role and phase as plain text for model
// prompts. Hidden data is only announced, never included.
func BuildContext(role *Role, phase *Phase) string {
	var b strings.Builder
	if role != nil {
		fmt.Fprintf(&b, "Role: %s (difficulty: %s)\n", role.Name, role.Difficulty)
	}
	fmt.Fprintf(&b, "Phase %d - task: %s\n", phase.Phase, phase.TaskType)
	b.WriteString("Prompt:\n")
	b.WriteString(phase.Prompt)
	if phase.BuggedCode != "" {
		b.WriteString("\n\nBugged code:\n\n")
		b.WriteString(phase.BuggedCode)
	}
	if phase.PerfectCode != "" {
		b.WriteString("\n\nTarget code outline:\n\n")
		b.WriteString(phase.PerfectCode)
	}
	if phase.Lyric != "" {
		b.WriteString("\n\nLyric snippet:\n\n")
		b.WriteString(phase.Lyric)
	}
	if phase.HiddenData != "" {
		b.WriteString("\n\nHidden data available")
	}
	return b.String()
}
