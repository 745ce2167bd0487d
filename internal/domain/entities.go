package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrRateLimited       = errors.New("rate limited")
	ErrUpstreamTimeout   = errors.New("upstream timeout")
	ErrUpstreamRateLimit = errors.New("upstream rate limit")
	ErrInternal          = errors.New("internal error")

	// ErrGenerationFailure means the model could not produce an interviewer reply.
	ErrGenerationFailure = errors.New("generation failure")
	// ErrRetrievalFailure means the question source failed. Sessions absorb it.
	ErrRetrievalFailure = errors.New("retrieval failure")
	// ErrEvaluationFailure means the judge could not produce a schema-valid report.
	ErrEvaluationFailure = errors.New("evaluation failure")
	// ErrSessionNotFound is a registry miss.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionFinished is returned when a turn is submitted to a finished session.
	ErrSessionFinished = errors.New("session finished")
)

// Roles offered by the interviewer.
const (
	RoleDataScientist = "Data Scientist"
	RoleMLEngineer    = "ML Engineer"
	RoleDataAnalyst   = "Data Analyst"
)

// DefaultRole is used when a user registers without a role.
const DefaultRole = RoleDataScientist

// NoResume is the resume text used when the candidate did not provide one.
const NoResume = "no resume provided"

// FinishSentinel marks the interviewer turn that ends the interview.
const FinishSentinel = "INTERVIEW_FINISHED"

// ValidRole reports whether r is one of the supported interview roles.
func ValidRole(r string) bool {
	switch r {
	case RoleDataScientist, RoleMLEngineer, RoleDataAnalyst:
		return true
	}
	return false
}

// Speaker identifies who produced a turn.
type Speaker string

const (
	SpeakerInterviewer Speaker = "interviewer"
	SpeakerCandidate   Speaker = "candidate"
)

// Label returns the transcript label for the speaker.
func (s Speaker) Label() string {
	if s == SpeakerInterviewer {
		return "Interviewer"
	}
	return "Candidate"
}

// TurnKind classifies a turn.
type TurnKind string

const (
	TurnQuestion        TurnKind = "question"
	TurnAnswer          TurnKind = "answer"
	TurnSystemDirective TurnKind = "system_directive"
)

// Turn is one utterance in a session. Turns are values and never mutated.
type Turn struct {
	Speaker Speaker  `json:"speaker"`
	Text    string   `json:"text"`
	Kind    TurnKind `json:"kind"`
}

// IsDirective reports whether the turn steers the model rather than being spoken.
func (t Turn) IsDirective() bool { return t.Kind == TurnSystemDirective }

// Transcript is the ordered, append-only history of one session.
type Transcript []Turn

// Spoken returns the transcript without directive turns.
func (tr Transcript) Spoken() Transcript {
	out := make(Transcript, 0, len(tr))
	for _, t := range tr {
		if !t.IsDirective() {
			out = append(out, t)
		}
	}
	return out
}

// SessionState is the lifecycle of an interview session.
type SessionState string

const (
	StateInitializing SessionState = "initializing"
	StateInProgress   SessionState = "in_progress"
	StateFinished     SessionState = "finished"
)

// SessionContext is created once per session; only TurnCount changes afterwards.
type SessionContext struct {
	Role       string `json:"role"`
	ResumeText string `json:"resume_text"`
	TurnCount  int    `json:"turn_count"`
	MinTurns   int    `json:"min_turns"`
	MaxTurns   int    `json:"max_turns"`
}

// Default turn bounds.
const (
	DefaultMinTurns = 4
	DefaultMaxTurns = 15
)

// Verdict is the outcome of an evaluated interview.
type Verdict string

const (
	VerdictPass  Verdict = "Pass"
	VerdictFail  Verdict = "Fail"
	VerdictError Verdict = "Error"
)

// PassThreshold is the minimum score consistent with a Pass verdict.
const PassThreshold = 60

// Report is the structured evaluation of a finished interview.
type Report struct {
	Verdict         Verdict  `json:"verdict"`
	Score           int      `json:"score"`
	Summary         string   `json:"summary"`
	StrongAreas     []string `json:"strong_areas"`
	WeakAreas       []string `json:"weak_areas"`
	ImprovementTips []string `json:"improvement_tips"`
}

// Question is a retrieved interview question with its hidden reference answer.
type Question struct {
	Text   string
	Answer string
	Source string
}

// Chat message roles understood by OpenAI-compatible providers.
const (
	MessageSystem    = "system"
	MessageUser      = "user"
	MessageAssistant = "assistant"
)

// Message is one entry of the ordered message list sent to a model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// User is a registered candidate.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	CurrentRole  string
	ResumeText   string
	CreatedAt    time.Time
}

// Interview is the persisted record of one interview session.
type Interview struct {
	ID              string
	UserID          string
	JobRole         string
	ResumeText      string
	FeedbackSummary string
	Score           *int
	Verdict         string
	CreatedAt       time.Time
	CompletedAt     *time.Time
}

// ReportEvent is published when an interview has been evaluated.
type ReportEvent struct {
	InterviewID string    `json:"interview_id"`
	UserID      string    `json:"user_id"`
	Role        string    `json:"role"`
	Turns       int       `json:"turns"`
	Report      Report    `json:"report"`
	CompletedAt time.Time `json:"completed_at"`
}

// Ports

// ModelClient produces free-form text from an ordered message list.
type ModelClient interface {
	Generate(ctx Context, messages []Message) (string, error)
}

// QuestionSource returns a question for a topic. A nil question with a nil
// error means nothing suitable was found.
type QuestionSource interface {
	GetQuestion(ctx Context, topic string) (*Question, error)
}

// Embedder turns texts into embedding vectors.
type Embedder interface {
	Embed(ctx Context, texts []string) ([][]float32, error)
}

// UserRepository persists users.
type UserRepository interface {
	Create(ctx Context, u User) (string, error)
	GetByUsername(ctx Context, username string) (User, error)
	UpdateResume(ctx Context, username, resumeText string) error
}

// InterviewRepository persists interview records.
type InterviewRepository interface {
	Create(ctx Context, iv Interview) (string, error)
	Complete(ctx Context, id string, r Report) error
	Get(ctx Context, id string) (Interview, error)
	ListByUser(ctx Context, userID string, limit int) ([]Interview, error)
}

// ReportPublisher emits completed-interview events.
type ReportPublisher interface {
	PublishReport(ctx Context, ev ReportEvent) error
}

// TextExtractor (port)
// ExtractPath extracts text from a file at path with provided original filename.
type TextExtractor interface {
	ExtractPath(ctx Context, fileName, path string) (string, error)
}

// Context is an alias to keep ports readable; adapters pass context.Context through.
type Context = context.Context
