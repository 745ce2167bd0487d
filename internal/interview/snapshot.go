package interview

import (
	"fmt"
	"time"

	"github.com/fairyhunter13/ai-mock-interviewer/internal/domain"
)

// Snapshot is the serializable state of a session. Collaborators are not
// part of it and are supplied again on Restore.
type Snapshot struct {
	ID        string                `json:"id"`
	State     domain.SessionState   `json:"state"`
	Context   domain.SessionContext `json:"context"`
	Turns     domain.Transcript     `json:"turns"`
	Report    *domain.Report        `json:"report,omitempty"`
	CreatedAt time.Time             `json:"created_at"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// Snapshot captures the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	turns := make(domain.Transcript, len(s.turns))
	copy(turns, s.turns)
	return Snapshot{
		ID:        s.id,
		State:     s.state,
		Context:   s.sctx,
		Turns:     turns,
		Report:    s.report,
		CreatedAt: s.createdAt,
		UpdatedAt: s.updatedAt,
	}
}

// Restore rebuilds a session from a snapshot with fresh collaborators.
func Restore(snap Snapshot, model domain.ModelClient, questions domain.QuestionSource, opts Options) (*Session, error) {
	if model == nil {
		return nil, fmt.Errorf("%w: model client required", domain.ErrInvalidArgument)
	}
	if len(snap.Turns) == 0 || !snap.Turns[0].IsDirective() {
		return nil, fmt.Errorf("%w: snapshot has no system directive", domain.ErrInvalidArgument)
	}
	if snap.Report != nil {
		snap.State = domain.StateFinished
	}
	switch snap.State {
	case domain.StateInProgress, domain.StateFinished:
	default:
		return nil, fmt.Errorf("%w: snapshot state %q", domain.ErrInvalidArgument, snap.State)
	}
	if snap.Context.MinTurns > 0 {
		opts.MinTurns = snap.Context.MinTurns
	}
	if snap.Context.MaxTurns > 0 {
		opts.MaxTurns = snap.Context.MaxTurns
	}
	opts = opts.withDefaults()
	snap.Context.MinTurns, snap.Context.MaxTurns = opts.MinTurns, opts.MaxTurns
	turns := make(domain.Transcript, len(snap.Turns))
	copy(turns, snap.Turns)
	return &Session{
		id:        snap.ID,
		model:     model,
		questions: questions,
		opts:      opts,
		state:     snap.State,
		sctx:      snap.Context,
		turns:     turns,
		report:    snap.Report,
		createdAt: snap.CreatedAt,
		updatedAt: snap.UpdatedAt,
	}, nil
}
