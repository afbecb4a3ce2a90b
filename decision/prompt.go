package decision

import (
	"fmt"
	"strings"

	"github.com/vinayprograms/pulse/checks"
	"github.com/vinayprograms/pulse/situation"
)

// BuildPrompt renders the snapshot and the candidate checks.
func BuildPrompt(snap situation.Snapshot, available []checks.Check) string {
	var sb strings.Builder

	sb.WriteString("CURRENT SITUATION:\n")
	sb.WriteString(snap.Describe())
	sb.WriteString("\n")

	sb.WriteString("AVAILABLE CHECKS:\n")
	if len(available) == 0 {
		sb.WriteString("(none)\n")
	}
	for _, c := range available {
		sb.WriteString(fmt.Sprintf("- %s [%s]: %s\n", c.ID(), c.Priority(), c.Description()))
	}
	sb.WriteString("\n")

	sb.WriteString("RULES:\n")
	sb.WriteString("- Silence is good. An empty checks_to_run list is the expected answer.\n")
	sb.WriteString("- critical checks are always eligible.\n")
	sb.WriteString("- high checks run when the situation makes them relevant.\n")
	sb.WriteString("- medium and low checks run only when strongly relevant and nothing more urgent applies.\n")
	sb.WriteString("- Only use ids from the list above.\n\n")

	sb.WriteString(`Answer with exactly one JSON object: {"checks_to_run": [...], "reasoning": "..."}`)
	return sb.String()
}
