// Package session holds per-session conversation state and the
// concurrent store that owns it.
package session

import "github.com/ryandam9/gemma-chatd/internal/prompt"

// Conversation is the mutable state of one chat session: an append-only
// turn log plus the fixed system preamble and model identifier chosen
// at creation. Turns are never edited or removed individually; Reset
// replaces the whole log.
//
// Conversation has no internal locking. The store guarantees
// single-writer access while a conversation is held (see Store.With).
type Conversation struct {
	preamble string
	model    string
	turns    []prompt.Turn
}

// NewConversation creates an empty conversation for the given model
// and system preamble (which may be empty).
func NewConversation(model, preamble string) *Conversation {
	return &Conversation{
		preamble: preamble,
		model:    model,
	}
}

// AppendUser appends a user turn.
func (c *Conversation) AppendUser(text string) {
	c.turns = append(c.turns, prompt.Turn{Role: prompt.RoleUser, Text: text})
}

// AppendModel appends a model turn.
func (c *Conversation) AppendModel(text string) {
	c.turns = append(c.turns, prompt.Turn{Role: prompt.RoleModel, Text: text})
}

// FullPrompt renders the conversation into the prompt sent to the
// backend, ending with the open model marker.
func (c *Conversation) FullPrompt() string {
	return prompt.Render(c.preamble, c.turns)
}

// History returns a copy of the turn log in conversation order.
// Mutating the returned slice does not affect the conversation.
func (c *Conversation) History() []prompt.Turn {
	out := make([]prompt.Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// Reset discards all turns, keeping the preamble and model.
func (c *Conversation) Reset() {
	c.turns = nil
}

// Len returns the number of turns in the log.
func (c *Conversation) Len() int {
	return len(c.turns)
}

// Model returns the model identifier fixed at creation.
func (c *Conversation) Model() string {
	return c.model
}

// Preamble returns the system preamble fixed at creation.
func (c *Conversation) Preamble() string {
	return c.preamble
}
