// Package chat composes the session store, the turn formatter, and the
// generation backend into the conversational service the transport
// layer calls.
package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/ryandam9/gemma-chatd/internal/backend"
	"github.com/ryandam9/gemma-chatd/internal/events"
	"github.com/ryandam9/gemma-chatd/internal/prompt"
	"github.com/ryandam9/gemma-chatd/internal/session"
)

// DefaultPreamble is the system preamble applied to new sessions when
// the configuration does not override it.
const DefaultPreamble = `You are a helpful, friendly AI assistant.
You provide clear, concise, and accurate responses to user queries.
Be engaging and maintain context throughout the conversation.`

// Config holds service construction parameters.
type Config struct {
	// Model identifier recorded on every new conversation.
	Model string

	// Preamble is the system text prepended to every prompt. Empty
	// means no preamble section.
	Preamble string
}

// Service implements the chat operations: send a message, read
// history, clear a session, report stats. It is the only component
// besides the reaper that touches the session store.
type Service struct {
	store *session.Store
	gen   backend.Generator
	bus   *events.Bus

	model    string
	preamble string
}

// New creates a chat service. bus may be nil when lifecycle events are
// not wanted (tests mostly).
func New(store *session.Store, gen backend.Generator, bus *events.Bus, cfg Config) *Service {
	return &Service{
		store:    store,
		gen:      gen,
		bus:      bus,
		model:    cfg.Model,
		preamble: cfg.Preamble,
	}
}

func (s *Service) newConversation() *session.Conversation {
	return session.NewConversation(s.model, s.preamble)
}

// Exchange is the result of one successful chat round trip.
type Exchange struct {
	// SessionID identifies the session the exchange belongs to; for a
	// first contact this is the freshly created id.
	SessionID string

	// Response is the model's continuation, trimmed of markers and
	// surrounding whitespace.
	Response string

	// Prompt is the exact prompt sent to the backend, kept for the
	// debug view.
	Prompt string
}

// SendMessage resolves (or creates) the session, appends the user
// turn, renders the prompt, asks the backend for a continuation, and
// appends the model turn. The session's mutex is held across the whole
// exchange, so concurrent sends on one session serialize in arrival
// order and never interleave their appends.
//
// A backend failure propagates to the caller without retry. The user
// turn that was appended before the call stands, leaving a dangling
// unanswered turn visible in history; the model turn is only appended
// on success.
func (s *Service) SendMessage(ctx context.Context, sessionID, message string) (*Exchange, error) {
	id, created := s.store.GetOrCreate(sessionID, s.newConversation)
	if created {
		s.publish(events.SessionCreated, id)
	}

	ex := &Exchange{SessionID: id}
	err := s.store.With(id, func(conv *session.Conversation) error {
		conv.AppendUser(message)
		ex.Prompt = conv.FullPrompt()

		generated, err := s.gen.Generate(ctx, ex.Prompt)
		if err != nil {
			return fmt.Errorf("backend generation failed: %w", err)
		}

		ex.Response = prompt.ExtractContinuation(generated, ex.Prompt)
		conv.AppendModel(ex.Response)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", id, err)
	}
	return ex, nil
}

// History returns a copy of the session's turn log in conversation
// order, or session.ErrNotFound for an unknown or expired id.
func (s *Service) History(id string) ([]prompt.Turn, error) {
	var turns []prompt.Turn
	err := s.store.With(id, func(conv *session.Conversation) error {
		turns = conv.History()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return turns, nil
}

// Clear discards a session's history by swapping in a fresh
// conversation under the same id. Returns session.ErrNotFound for an
// unknown or expired id.
func (s *Service) Clear(id string) error {
	if !s.store.Replace(id, s.newConversation) {
		return session.ErrNotFound
	}
	s.publish(events.SessionCleared, id)
	return nil
}

// Stats reports session counters for monitoring.
type Stats struct {
	ActiveSessions int   `json:"active_sessions"`
	TotalCreated   int64 `json:"total_sessions_created"`
}

// Stats returns the current session counters.
func (s *Service) Stats() Stats {
	return Stats{
		ActiveSessions: s.store.Len(),
		TotalCreated:   s.store.TotalCreated(),
	}
}

func (s *Service) publish(t events.Type, sessionID string) {
	if s.bus == nil {
		return
	}
	_ = s.bus.Publish(&events.Event{
		Type:      t,
		SessionID: sessionID,
		Timestamp: time.Now(),
	})
}
