// Package interview implements the interview session state machine, the
// transcript reducer and the coding-mode classifier.
//
// A Session owns its transcript exclusively. Turns on one session are
// serialized; separate sessions share nothing.
package interview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/fairyhunter13/ai-mock-interviewer/internal/domain"
	obsctx "github.com/fairyhunter13/ai-mock-interviewer/internal/observability"
)

// Options tunes a session. Zero values fall back to defaults.
type Options struct {
	MinTurns          int
	MaxTurns          int
	Topic             string
	RetrievalTimeout  time.Duration
	GenerationTimeout time.Duration
	// OnRetrievalFailure is called with the wrapped error when the question
	// source fails. The turn continues regardless.
	OnRetrievalFailure func(err error)
}

func (o Options) withDefaults() Options {
	if o.MinTurns <= 0 {
		o.MinTurns = domain.DefaultMinTurns
	}
	if o.MaxTurns <= 0 {
		o.MaxTurns = domain.DefaultMaxTurns
	}
	if o.MaxTurns < o.MinTurns {
		o.MaxTurns = o.MinTurns
	}
	if strings.TrimSpace(o.Topic) == "" {
		o.Topic = DefaultTopic
	}
	return o
}

// Session is one interview between the model and a candidate.
type Session struct {
	mu        sync.Mutex
	id        string
	model     domain.ModelClient
	questions domain.QuestionSource
	opts      Options

	state     domain.SessionState
	sctx      domain.SessionContext
	turns     domain.Transcript
	report    *domain.Report
	createdAt time.Time
	updatedAt time.Time
}

// New initializes a session for role and resume. An empty resume becomes
// domain.NoResume. The transcript starts with the system directive only.
func New(id, role, resume string, model domain.ModelClient, questions domain.QuestionSource, opts Options) (*Session, error) {
	if model == nil {
		return nil, fmt.Errorf("%w: model client required", domain.ErrInvalidArgument)
	}
	role = strings.TrimSpace(role)
	if role == "" {
		return nil, fmt.Errorf("%w: role required", domain.ErrInvalidArgument)
	}
	if strings.TrimSpace(resume) == "" {
		resume = domain.NoResume
	}
	opts = opts.withDefaults()
	now := time.Now().UTC()
	s := &Session{
		id:        id,
		model:     model,
		questions: questions,
		opts:      opts,
		state:     domain.StateInitializing,
		sctx: domain.SessionContext{
			Role:       role,
			ResumeText: resume,
			MinTurns:   opts.MinTurns,
			MaxTurns:   opts.MaxTurns,
		},
		createdAt: now,
		updatedAt: now,
	}
	s.turns = domain.Transcript{{
		Speaker: domain.SpeakerInterviewer,
		Text:    SystemPrompt(role, resume),
		Kind:    domain.TurnSystemDirective,
	}}
	s.state = domain.StateInProgress
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Context returns a copy of the session context.
func (s *Session) Context() domain.SessionContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sctx
}

// Transcript returns a copy of the full transcript, directives included.
func (s *Session) Transcript() domain.Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(domain.Transcript, len(s.turns))
	copy(out, s.turns)
	return out
}

// Report returns the final report once one has been recorded.
func (s *Session) Report() (domain.Report, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.report == nil {
		return domain.Report{}, false
	}
	return *s.report, true
}

// Conclude records r as the final report and finishes the session. The first
// report wins: later calls leave it unchanged and return it with false.
func (s *Session) Conclude(r domain.Report) (domain.Report, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.report != nil {
		return *s.report, false
	}
	s.report = &r
	s.state = domain.StateFinished
	s.updatedAt = time.Now().UTC()
	return r, true
}

// UpdatedAt returns the time of the last completed or attempted turn.
func (s *Session) UpdatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

// LastInterviewerText returns the text of the most recent interviewer turn.
func (s *Session) LastInterviewerText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.turns) - 1; i >= 0; i-- {
		t := s.turns[i]
		if t.Speaker == domain.SpeakerInterviewer && !t.IsDirective() {
			return t.Text
		}
	}
	return ""
}

// CodingMode reports whether the latest interviewer turn asks for code.
func (s *Session) CodingMode() bool { return IsCodingQuestion(s.LastInterviewerText()) }

// SubmitTurn records the candidate answer, asks the model for the next
// interviewer turn and reports whether the interview is finished.
//
// On model failure the candidate turn stays recorded and the error wraps
// domain.ErrGenerationFailure, or domain.ErrUpstreamTimeout when the call ran
// out of time. The call is never retried here.
func (s *Session) SubmitTurn(ctx context.Context, answer string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tracer := otel.Tracer("interview.session")
	ctx, span := tracer.Start(ctx, "session.SubmitTurn")
	defer span.End()
	lg := obsctx.LoggerFromContext(ctx).With(slog.String("session_id", s.id))

	if s.state == domain.StateFinished {
		return "", true, fmt.Errorf("op=session.submit_turn: %w", domain.ErrSessionFinished)
	}
	if strings.TrimSpace(answer) == "" {
		return "", false, fmt.Errorf("%w: answer must not be empty", domain.ErrInvalidArgument)
	}

	s.turns = append(s.turns, domain.Turn{Speaker: domain.SpeakerCandidate, Text: answer, Kind: domain.TurnAnswer})
	s.updatedAt = time.Now().UTC()

	retrieved := false
	if q := s.retrieve(ctx, lg); q != nil {
		s.turns = append(s.turns, domain.Turn{
			Speaker: domain.SpeakerInterviewer,
			Text:    RetrievalDirective(q.Text, q.Answer),
			Kind:    domain.TurnSystemDirective,
		})
		retrieved = true
	}
	span.SetAttributes(attribute.Bool("interview.retrieved", retrieved))

	reply, err := s.generate(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		lg.Warn("interviewer generation failed", slog.Any("error", err))
		return "", false, err
	}

	s.turns = append(s.turns, domain.Turn{Speaker: domain.SpeakerInterviewer, Text: reply, Kind: domain.TurnQuestion})
	s.sctx.TurnCount++
	s.updatedAt = time.Now().UTC()

	finished := strings.Contains(reply, domain.FinishSentinel)
	switch {
	case finished && s.sctx.TurnCount < s.sctx.MinTurns:
		lg.Info("interview finished before minimum turns",
			slog.Int("turn_count", s.sctx.TurnCount), slog.Int("min_turns", s.sctx.MinTurns))
	case !finished && s.sctx.TurnCount >= s.sctx.MaxTurns:
		lg.Info("interview reached maximum turns", slog.Int("max_turns", s.sctx.MaxTurns))
		finished = true
	}
	if finished {
		s.state = domain.StateFinished
	}
	span.SetAttributes(
		attribute.Int("interview.turn_count", s.sctx.TurnCount),
		attribute.Bool("interview.finished", finished),
	)
	return reply, finished, nil
}

// SubmitCode submits a code solution as a regular turn.
func (s *Session) SubmitCode(ctx context.Context, code, language string) (string, bool, error) {
	if strings.TrimSpace(code) == "" {
		return "", false, fmt.Errorf("%w: code must not be empty", domain.ErrInvalidArgument)
	}
	return s.SubmitTurn(ctx, CodeSubmission(code, language))
}

// retrieve is best effort: every failure is reported and swallowed.
func (s *Session) retrieve(ctx context.Context, lg *slog.Logger) *domain.Question {
	if s.questions == nil {
		return nil
	}
	rctx := ctx
	if s.opts.RetrievalTimeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, s.opts.RetrievalTimeout)
		defer cancel()
	}
	q, err := s.questions.GetQuestion(rctx, s.opts.Topic)
	if err != nil {
		werr := fmt.Errorf("op=session.retrieve: %w: %w", domain.ErrRetrievalFailure, err)
		lg.Warn("question retrieval failed; continuing without retrieved question", slog.Any("error", werr))
		if s.opts.OnRetrievalFailure != nil {
			s.opts.OnRetrievalFailure(werr)
		}
		return nil
	}
	if q == nil || strings.TrimSpace(q.Text) == "" {
		return nil
	}
	return q
}

func (s *Session) generate(ctx context.Context) (string, error) {
	gctx := ctx
	if s.opts.GenerationTimeout > 0 {
		var cancel context.CancelFunc
		gctx, cancel = context.WithTimeout(ctx, s.opts.GenerationTimeout)
		defer cancel()
	}
	reply, err := s.model.Generate(gctx, Messages(s.turns))
	if err != nil {
		if errors.Is(err, domain.ErrUpstreamTimeout) || errors.Is(err, context.DeadlineExceeded) || errors.Is(gctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("op=session.generate: %w: %w", domain.ErrUpstreamTimeout, err)
		}
		return "", fmt.Errorf("op=session.generate: %w: %w", domain.ErrGenerationFailure, err)
	}
	if strings.TrimSpace(reply) == "" {
		return "", fmt.Errorf("op=session.generate: %w: empty reply", domain.ErrGenerationFailure)
	}
	return reply, nil
}

// Messages maps a transcript to the ordered model message list. Directive
// turns become system messages.
func Messages(tr domain.Transcript) []domain.Message {
	out := make([]domain.Message, 0, len(tr))
	for _, t := range tr {
		role := domain.MessageUser
		switch {
		case t.IsDirective():
			role = domain.MessageSystem
		case t.Speaker == domain.SpeakerInterviewer:
			role = domain.MessageAssistant
		}
		out = append(out, domain.Message{Role: role, Content: t.Text})
	}
	return out
}
