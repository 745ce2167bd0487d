// Package usecase contains application business logic services.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/fairyhunter13/ai-mock-interviewer/internal/adapter/observability"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/domain"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/interview"
	obsctx "github.com/fairyhunter13/ai-mock-interviewer/internal/observability"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/service/registry"
)

// Evaluator scores a reduced transcript.
type Evaluator interface {
	Evaluate(ctx context.Context, transcript string) (domain.Report, error)
}

// InterviewDeps are the collaborators of InterviewService. Interviews, Users
// and Publisher are optional.
type InterviewDeps struct {
	Sessions   registry.Store
	Interviews domain.InterviewRepository
	Users      domain.UserRepository
	Model      domain.ModelClient
	Questions  domain.QuestionSource
	Judge      Evaluator
	Publisher  domain.ReportPublisher
	Options    interview.Options
}

// InterviewService drives interview sessions on behalf of users.
type InterviewService struct {
	deps  InterviewDeps
	locks *keyedMutex
}

// StartInput describes a new interview.
type StartInput struct {
	UserID     string
	Username   string
	Role       string
	ResumeText string
}

// TurnResult is the outcome of one candidate turn.
type TurnResult struct {
	Reply      string `json:"reply"`
	IsFinished bool   `json:"is_finished"`
	CodingMode bool   `json:"coding_mode"`
	TurnCount  int    `json:"turn_count"`
}

// SessionView is a read-only rendering of a live session.
type SessionView struct {
	SessionID  string              `json:"session_id"`
	State      domain.SessionState `json:"state"`
	Role       string              `json:"role"`
	TurnCount  int                 `json:"turn_count"`
	MinTurns   int                 `json:"min_turns"`
	MaxTurns   int                 `json:"max_turns"`
	CodingMode bool                `json:"coding_mode"`
	Transcript []domain.Turn       `json:"transcript"`
}

// NewInterviewService constructs an InterviewService.
func NewInterviewService(d InterviewDeps) (*InterviewService, error) {
	if d.Sessions == nil || d.Model == nil || d.Judge == nil {
		return nil, fmt.Errorf("%w: sessions, model and judge are required", domain.ErrInvalidArgument)
	}
	return &InterviewService{deps: d, locks: newKeyedMutex()}, nil
}

// Start creates a session for the user, replacing any previous one, and
// returns the session id, which is also the interview record id.
func (s *InterviewService) Start(ctx context.Context, in StartInput) (string, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return "", fmt.Errorf("%w: user_id required", domain.ErrInvalidArgument)
	}
	role := strings.TrimSpace(in.Role)
	if role == "" {
		role = domain.DefaultRole
	}
	if !domain.ValidRole(role) {
		return "", fmt.Errorf("%w: unsupported role %q", domain.ErrInvalidArgument, role)
	}
	resume := strings.TrimSpace(in.ResumeText)
	if resume == "" && in.Username != "" && s.deps.Users != nil {
		if u, err := s.deps.Users.GetByUsername(ctx, in.Username); err == nil {
			resume = u.ResumeText
		}
	}

	unlock, err := s.lock(ctx, in.UserID)
	if err != nil {
		return "", err
	}
	defer unlock()

	id := ulid.Make().String()
	if s.deps.Interviews != nil {
		id, err = s.deps.Interviews.Create(ctx, domain.Interview{ID: id, UserID: in.UserID, JobRole: role, ResumeText: resume})
		if err != nil {
			return "", fmt.Errorf("op=interview.start: %w", err)
		}
	}
	sess, err := interview.New(id, role, resume, s.deps.Model, s.deps.Questions, s.deps.Options)
	if err != nil {
		return "", fmt.Errorf("op=interview.start: %w", err)
	}
	if err := s.deps.Sessions.Put(ctx, in.UserID, sess); err != nil {
		return "", fmt.Errorf("op=interview.start: %w", err)
	}
	observability.SessionStarted(role)
	obsctx.LoggerFromContext(ctx).Info("interview started",
		slog.String("user_id", in.UserID), slog.String("session_id", id), slog.String("role", role))
	return id, nil
}

// Chat submits a candidate answer.
func (s *InterviewService) Chat(ctx context.Context, userID, message string) (TurnResult, error) {
	return s.turn(ctx, userID, "answer", func(sess *interview.Session) (string, bool, error) {
		return sess.SubmitTurn(ctx, message)
	})
}

// SubmitCode submits a code solution as the candidate's turn.
func (s *InterviewService) SubmitCode(ctx context.Context, userID, code, language string) (TurnResult, error) {
	return s.turn(ctx, userID, "code", func(sess *interview.Session) (string, bool, error) {
		return sess.SubmitCode(ctx, code, language)
	})
}

func (s *InterviewService) turn(ctx context.Context, userID, kind string, submit func(*interview.Session) (string, bool, error)) (TurnResult, error) {
	unlock, err := s.lock(ctx, userID)
	if err != nil {
		return TurnResult{}, err
	}
	defer unlock()

	sess, err := s.deps.Sessions.Get(ctx, userID)
	if err != nil {
		return TurnResult{}, err
	}
	reply, finished, err := submit(sess)
	// The candidate turn is kept even when generation fails, so store either way.
	if perr := s.deps.Sessions.Put(ctx, userID, sess); perr != nil {
		obsctx.LoggerFromContext(ctx).Error("failed to store session", slog.String("user_id", userID), slog.Any("error", perr))
		if err == nil {
			err = fmt.Errorf("op=interview.turn: %w", perr)
		}
	}
	if err != nil {
		observability.TurnCompleted(kind, turnOutcome(err))
		return TurnResult{}, err
	}
	observability.TurnCompleted(kind, "ok")
	if finished {
		reason := "max_turns"
		if strings.Contains(reply, domain.FinishSentinel) {
			reason = "sentinel"
		}
		observability.SessionFinished(reason)
	}
	return TurnResult{
		Reply:      reply,
		IsFinished: finished,
		CodingMode: interview.IsCodingQuestion(reply),
		TurnCount:  sess.Context().TurnCount,
	}, nil
}

func turnOutcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrUpstreamTimeout):
		return "timeout"
	case errors.Is(err, domain.ErrGenerationFailure):
		return "generation_failure"
	case errors.Is(err, domain.ErrSessionFinished):
		return "finished"
	case errors.Is(err, domain.ErrInvalidArgument):
		return "invalid"
	default:
		return "error"
	}
}

// State renders the user's live session. Directive turns are omitted.
func (s *InterviewService) State(ctx context.Context, userID string) (SessionView, error) {
	sess, err := s.deps.Sessions.Get(ctx, userID)
	if err != nil {
		return SessionView{}, err
	}
	sc := sess.Context()
	return SessionView{
		SessionID:  sess.ID(),
		State:      sess.State(),
		Role:       sc.Role,
		TurnCount:  sc.TurnCount,
		MinTurns:   sc.MinTurns,
		MaxTurns:   sc.MaxTurns,
		CodingMode: sess.CodingMode(),
		Transcript: sess.Transcript().Spoken(),
	}, nil
}

// Feedback returns the session's final report. The first call evaluates the
// transcript, finishes the session, stores the result on the interview record
// and publishes a report event; later calls return the same report without
// side effects. A degraded report with verdict Error is returned but not
// recorded, so a later call evaluates again. Storage and publishing failures
// are logged and do not fail the call.
func (s *InterviewService) Feedback(ctx context.Context, userID string) (domain.Report, error) {
	unlock, err := s.lock(ctx, userID)
	if err != nil {
		return domain.Report{}, err
	}
	defer unlock()

	lg := obsctx.LoggerFromContext(ctx).With(slog.String("user_id", userID))
	sess, err := s.deps.Sessions.Get(ctx, userID)
	if err != nil {
		return domain.Report{}, err
	}
	if report, ok := sess.Report(); ok {
		return report, nil
	}
	report, err := s.deps.Judge.Evaluate(ctx, interview.Reduce(sess.Transcript()))
	if err != nil {
		return domain.Report{}, err
	}
	observability.ObserveReport(string(report.Verdict), report.Score)
	if report.Verdict == domain.VerdictError {
		lg.Warn("evaluation degraded; report not recorded", slog.String("session_id", sess.ID()))
		return report, nil
	}

	report, _ = sess.Conclude(report)
	if err := s.deps.Sessions.Put(ctx, userID, sess); err != nil {
		return domain.Report{}, fmt.Errorf("op=interview.feedback: %w", err)
	}
	if s.deps.Interviews != nil {
		if err := s.deps.Interviews.Complete(ctx, sess.ID(), report); err != nil {
			lg.Error("failed to store interview report", slog.String("session_id", sess.ID()), slog.Any("error", err))
		}
	}
	if s.deps.Publisher != nil {
		ev := domain.ReportEvent{
			InterviewID: sess.ID(),
			UserID:      userID,
			Role:        sess.Context().Role,
			Turns:       sess.Context().TurnCount,
			Report:      report,
			CompletedAt: time.Now().UTC(),
		}
		if err := s.deps.Publisher.PublishReport(ctx, ev); err != nil {
			lg.Warn("failed to publish report event", slog.Any("error", err))
		}
	}
	lg.Info("interview evaluated", slog.String("verdict", string(report.Verdict)), slog.Int("score", report.Score))
	return report, nil
}

// History lists the user's past interviews, newest first.
func (s *InterviewService) History(ctx context.Context, userID string, limit int) ([]domain.Interview, error) {
	if s.deps.Interviews == nil {
		return []domain.Interview{}, nil
	}
	out, err := s.deps.Interviews.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("op=interview.history: %w", err)
	}
	return out, nil
}

// lock serializes work on the user's session in this process and, when the
// store is shared between replicas, across them.
func (s *InterviewService) lock(ctx context.Context, userID string) (func(), error) {
	unlock := s.locks.Lock(userID)
	l, ok := s.deps.Sessions.(registry.Locker)
	if !ok {
		return unlock, nil
	}
	release, err := l.Lock(ctx, userID)
	if err != nil {
		unlock()
		return nil, err
	}
	return func() {
		release()
		unlock()
	}, nil
}

// keyedMutex serializes work per key. Entries are dropped when unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex { return &keyedMutex{locks: map[string]*refMutex{}} }

// Lock acquires key's mutex and returns its release func.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.mu.Lock()
	return func() {
		m.mu.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
