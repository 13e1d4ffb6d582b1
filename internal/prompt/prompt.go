// Package prompt renders conversations into the Gemma turn-based text
// format and parses linear transcripts back into structured turns.
//
// The marker strings follow the Gemma formatting guidelines
// (https://ai.google.dev/gemma/docs/formatting). They are structural:
// turn text is assumed not to contain them. If generated text ever does
// contain a marker, formatting of subsequent turns is best-effort.
package prompt

import "strings"

// Turn markers. Exported so callers can configure backend stop
// sequences and validate turn content.
const (
	StartUser  = "<start_of_turn>user\n"
	StartModel = "<start_of_turn>model\n"
	EndTurn    = "<end_of_turn>\n"
)

const startPrefix = "<start_of_turn>"

// Role identifies the author of a turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Turn is a single utterance in a conversation.
type Turn struct {
	Role Role
	Text string
}

// Render builds the full prompt for a conversation: every turn wrapped
// in its start/end markers, preceded by the preamble (if any) and
// followed by an open model marker for the backend to complete.
//
// Render is deterministic; the same preamble and turns always produce
// byte-identical output.
func Render(preamble string, turns []Turn) string {
	var sb strings.Builder
	if preamble != "" {
		sb.WriteString(preamble)
		sb.WriteString("\n")
	}
	for _, t := range turns {
		switch t.Role {
		case RoleModel:
			sb.WriteString(StartModel)
		default:
			sb.WriteString(StartUser)
		}
		sb.WriteString(t.Text)
		sb.WriteString(EndTurn)
	}
	sb.WriteString(StartModel)
	return sb.String()
}

// Parse reconstructs turns from a rendered transcript. It scans for
// start markers and takes everything up to the matching end marker (or
// the next start marker, or the end of the string) as the turn text.
// Fragments that do not begin with a recognized role are skipped, as is
// the empty trailing region left by Render's open model marker. Text
// before the first marker (the preamble) is ignored.
func Parse(transcript string) []Turn {
	var turns []Turn
	rest := transcript
	for {
		i := strings.Index(rest, startPrefix)
		if i < 0 {
			break
		}
		rest = rest[i:]

		var role Role
		switch {
		case strings.HasPrefix(rest, StartUser):
			role = RoleUser
			rest = rest[len(StartUser):]
		case strings.HasPrefix(rest, StartModel):
			role = RoleModel
			rest = rest[len(StartModel):]
		default:
			// Unrecognized role tag; skip past it.
			rest = rest[len(startPrefix):]
			continue
		}

		text := rest
		closed := false
		if j := strings.Index(rest, EndTurn); j >= 0 {
			if k := strings.Index(rest, startPrefix); k < 0 || j < k {
				text = rest[:j]
				rest = rest[j+len(EndTurn):]
				closed = true
			}
		}
		if !closed {
			if k := strings.Index(rest, startPrefix); k >= 0 {
				text = rest[:k]
				rest = rest[k:]
			} else {
				rest = ""
			}
			// An unclosed, empty region is the trailing open marker
			// appended by Render, not a real turn.
			if text == "" {
				continue
			}
		}
		turns = append(turns, Turn{Role: role, Text: text})
	}
	return turns
}

// ExtractContinuation isolates the backend's fresh output. Backends
// differ on whether the generated text echoes the prompt; when it does,
// only the suffix past the prompt is kept. The continuation is cut at
// the first end-turn marker (the backend may run past its stop
// sequence) and trimmed of surrounding whitespace.
//
// The suffix boundary is the full prompt, so the cut always lands on a
// rune boundary.
func ExtractContinuation(generated, prompt string) string {
	out := generated
	if strings.HasPrefix(out, prompt) {
		out = out[len(prompt):]
	}
	if i := strings.Index(out, EndTurn); i >= 0 {
		out = out[:i]
	} else {
		out = strings.TrimSuffix(out, strings.TrimSuffix(EndTurn, "\n"))
	}
	return strings.TrimSpace(out)
}
