package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/strata/pkg/domain"
)

// GenerateMermaid draws the version history of a session as a Mermaid flowchart.
// Shapes:
// - Origin: ((Circle))
// - Other versions: [Rectangle]
// Versions ahead of the pointer (the redo branch) are joined by dotted arrows
// and styled "redo"; the active version is styled "current".
func GenerateMermaid(s *domain.Session) string {
	var sb strings.Builder
	sb.WriteString("graph LR\n")

	if s == nil || s.Empty() {
		sb.WriteString("    empty[\"no image\"]\n")
		return sb.String()
	}

	for i, id := range s.History {
		node := nodeID(i)
		opener, closer := "[", "]"
		if i == 0 {
			opener, closer = "((", "))"
		}
		sb.WriteString(fmt.Sprintf("    %s%s\"%s\"%s\n", node, opener, id, closer))

		if i > 0 {
			arrow := "-->"
			if i > s.Pointer {
				arrow = "-.->"
			}
			sb.WriteString(fmt.Sprintf("    %s %s %s\n", nodeID(i-1), arrow, node))
		}
	}

	sb.WriteString("\n    %% Overlay Styles\n")
	// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
	sb.WriteString("    classDef redo fill:#eeeeee,stroke:#9e9e9e,stroke-dasharray:4,color:#000;\n")
	sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")
	for i := s.Pointer + 1; i < len(s.History); i++ {
		sb.WriteString(fmt.Sprintf("    class %s redo;\n", nodeID(i)))
	}
	sb.WriteString(fmt.Sprintf("    class %s current;\n", nodeID(s.Pointer)))

	return sb.String()
}

// nodeID names history entries by position; version ids may start with a digit
// or contain '-', which Mermaid ids do not accept.
func nodeID(i int) string {
	return fmt.Sprintf("v%d", i)
}
