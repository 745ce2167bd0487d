package usecase_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-mock-interviewer/internal/domain"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/interview"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/service/registry"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/usecase"
)

type scriptedModel struct {
	mu      sync.Mutex
	replies []string
	err     error
	calls   int
}

func (m *scriptedModel) Generate(_ context.Context, _ []domain.Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	if len(m.replies) == 0 {
		return "Tell me more.", nil
	}
	r := m.replies[0]
	m.replies = m.replies[1:]
	return r, nil
}

type stubJudge struct {
	report     domain.Report
	err        error
	transcript string
}

func (j *stubJudge) Evaluate(_ context.Context, transcript string) (domain.Report, error) {
	j.transcript = transcript
	return j.report, j.err
}

type mockInterviews struct{ mock.Mock }

func (m *mockInterviews) Create(ctx context.Context, iv domain.Interview) (string, error) {
	args := m.Called(ctx, iv)
	return args.String(0), args.Error(1)
}

func (m *mockInterviews) Complete(ctx context.Context, id string, r domain.Report) error {
	return m.Called(ctx, id, r).Error(0)
}

func (m *mockInterviews) Get(ctx context.Context, id string) (domain.Interview, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.Interview), args.Error(1)
}

func (m *mockInterviews) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Interview, error) {
	args := m.Called(ctx, userID, limit)
	return args.Get(0).([]domain.Interview), args.Error(1)
}

type mockUsers struct{ mock.Mock }

func (m *mockUsers) Create(ctx context.Context, u domain.User) (string, error) {
	args := m.Called(ctx, u)
	return args.String(0), args.Error(1)
}

func (m *mockUsers) GetByUsername(ctx context.Context, username string) (domain.User, error) {
	args := m.Called(ctx, username)
	return args.Get(0).(domain.User), args.Error(1)
}

func (m *mockUsers) UpdateResume(ctx context.Context, username, text string) error {
	return m.Called(ctx, username, text).Error(0)
}

type recordingPublisher struct {
	events []domain.ReportEvent
	err    error
}

func (p *recordingPublisher) PublishReport(_ context.Context, ev domain.ReportEvent) error {
	p.events = append(p.events, ev)
	return p.err
}

func newService(t *testing.T, model domain.ModelClient, j usecase.Evaluator, ivs domain.InterviewRepository, pub domain.ReportPublisher) *usecase.InterviewService {
	t.Helper()
	svc, err := usecase.NewInterviewService(usecase.InterviewDeps{
		Sessions:   registry.NewMemory(10, time.Hour),
		Interviews: ivs,
		Model:      model,
		Judge:      j,
		Publisher:  pub,
		Options:    interview.Options{MinTurns: 2, MaxTurns: 5},
	})
	require.NoError(t, err)
	return svc
}

func TestNewInterviewService_RequiresCollaborators(t *testing.T) {
	_, err := usecase.NewInterviewService(usecase.InterviewDeps{})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestInterviewService_FullFlow(t *testing.T) {
	ctx := context.Background()
	model := &scriptedModel{replies: []string{
		"Write a SQL query to find duplicate emails.",
		"Good. What is regularization?",
		"Thanks, that is all. INTERVIEW_FINISHED",
	}}
	report := domain.Report{Verdict: domain.VerdictPass, Score: 75, Summary: "solid", StrongAreas: []string{"SQL"}, WeakAreas: []string{}, ImprovementTips: []string{}}
	j := &stubJudge{report: report}

	ivs := &mockInterviews{}
	ivs.On("Create", mock.Anything, mock.MatchedBy(func(iv domain.Interview) bool {
		return iv.UserID == "u1" && iv.JobRole == domain.RoleDataAnalyst && iv.ID != ""
	})).Return("iv-1", nil).Once()
	ivs.On("Complete", mock.Anything, "iv-1", report).Return(nil).Once()
	pub := &recordingPublisher{}

	svc := newService(t, model, j, ivs, pub)

	id, err := svc.Start(ctx, usecase.StartInput{UserID: "u1", Role: domain.RoleDataAnalyst})
	require.NoError(t, err)
	assert.Equal(t, "iv-1", id)

	r1, err := svc.Chat(ctx, "u1", "Hello, I am ready.")
	require.NoError(t, err)
	assert.True(t, r1.CodingMode)
	assert.False(t, r1.IsFinished)
	assert.Equal(t, 1, r1.TurnCount)

	r2, err := svc.SubmitCode(ctx, "u1", "SELECT email FROM users GROUP BY email HAVING COUNT(*) > 1", "sql")
	require.NoError(t, err)
	assert.False(t, r2.CodingMode)

	r3, err := svc.Chat(ctx, "u1", "L2 penalizes large weights.")
	require.NoError(t, err)
	assert.True(t, r3.IsFinished)
	assert.Equal(t, 3, r3.TurnCount)

	view, err := svc.State(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateFinished, view.State)
	assert.Equal(t, "iv-1", view.SessionID)
	for _, turn := range view.Transcript {
		assert.NotEqual(t, domain.TurnSystemDirective, turn.Kind)
	}

	_, err = svc.Chat(ctx, "u1", "one more thing")
	require.ErrorIs(t, err, domain.ErrSessionFinished)

	got, err := svc.Feedback(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, report, got)
	assert.Contains(t, j.transcript, "Candidate: Hello, I am ready.")
	require.Len(t, pub.events, 1)
	assert.Equal(t, "iv-1", pub.events[0].InterviewID)
	assert.Equal(t, 3, pub.events[0].Turns)
	ivs.AssertExpectations(t)
}

func TestInterviewService_Misses(t *testing.T) {
	svc := newService(t, &scriptedModel{}, &stubJudge{}, nil, nil)
	ctx := context.Background()

	_, err := svc.Chat(ctx, "ghost", "hi")
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = svc.Feedback(ctx, "ghost")
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = svc.State(ctx, "ghost")
	require.ErrorIs(t, err, domain.ErrSessionNotFound)

	hist, err := svc.History(ctx, "ghost", 10)
	require.NoError(t, err)
	assert.Empty(t, hist)
}

func TestInterviewService_StartValidation(t *testing.T) {
	svc := newService(t, &scriptedModel{}, &stubJudge{}, nil, nil)
	ctx := context.Background()

	_, err := svc.Start(ctx, usecase.StartInput{Role: domain.RoleDataScientist})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
	_, err = svc.Start(ctx, usecase.StartInput{UserID: "u1", Role: "Astronaut"})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)

	id, err := svc.Start(ctx, usecase.StartInput{UserID: "u1"})
	require.NoError(t, err)
	view, err := svc.State(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultRole, view.Role)
	assert.Equal(t, id, view.SessionID)
}

func TestInterviewService_StartReplacesSessionAndUsesStoredResume(t *testing.T) {
	users := &mockUsers{}
	users.On("GetByUsername", mock.Anything, "ada").Return(domain.User{ResumeText: "Kaggle grandmaster"}, nil)
	model := &scriptedModel{}
	svc, err := usecase.NewInterviewService(usecase.InterviewDeps{
		Sessions: registry.NewMemory(10, time.Hour),
		Users:    users,
		Model:    model,
		Judge:    &stubJudge{},
	})
	require.NoError(t, err)
	ctx := context.Background()

	first, err := svc.Start(ctx, usecase.StartInput{UserID: "u1", Username: "ada"})
	require.NoError(t, err)
	_, err = svc.Chat(ctx, "u1", "hello")
	require.NoError(t, err)

	second, err := svc.Start(ctx, usecase.StartInput{UserID: "u1", Username: "ada"})
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	view, err := svc.State(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, view.TurnCount)
	users.AssertCalled(t, "GetByUsername", mock.Anything, "ada")
}

func TestInterviewService_GenerationFailureKeepsAnswer(t *testing.T) {
	model := &scriptedModel{err: errors.New("provider exploded")}
	svc := newService(t, model, &stubJudge{}, nil, nil)
	ctx := context.Background()
	_, err := svc.Start(ctx, usecase.StartInput{UserID: "u1"})
	require.NoError(t, err)

	_, err = svc.Chat(ctx, "u1", "my answer")
	require.ErrorIs(t, err, domain.ErrGenerationFailure)

	view, err := svc.State(ctx, "u1")
	require.NoError(t, err)
	require.NotEmpty(t, view.Transcript)
	last := view.Transcript[len(view.Transcript)-1]
	assert.Equal(t, "my answer", last.Text)
	assert.Equal(t, 0, view.TurnCount)
}

func TestInterviewService_FeedbackToleratesSinkFailures(t *testing.T) {
	report := domain.Report{Verdict: domain.VerdictFail, Score: 30, Summary: "thin"}
	ivs := &mockInterviews{}
	ivs.On("Create", mock.Anything, mock.Anything).Return("iv-9", nil)
	ivs.On("Complete", mock.Anything, "iv-9", report).Return(errors.New("db down"))
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc := newService(t, &scriptedModel{}, &stubJudge{report: report}, ivs, pub)
	ctx := context.Background()

	_, err := svc.Start(ctx, usecase.StartInput{UserID: "u1"})
	require.NoError(t, err)
	got, err := svc.Feedback(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, report, got)
	assert.Len(t, pub.events, 1)
}

func TestInterviewService_FeedbackPropagatesStrictFailure(t *testing.T) {
	svc := newService(t, &scriptedModel{}, &stubJudge{err: domain.ErrEvaluationFailure}, nil, nil)
	ctx := context.Background()
	_, err := svc.Start(ctx, usecase.StartInput{UserID: "u1"})
	require.NoError(t, err)
	_, err = svc.Feedback(ctx, "u1")
	require.ErrorIs(t, err, domain.ErrEvaluationFailure)
}

func TestInterviewService_HistoryDelegates(t *testing.T) {
	ivs := &mockInterviews{}
	ivs.On("ListByUser", mock.Anything, "u1", 5).Return([]domain.Interview{{ID: "b"}, {ID: "a"}}, nil)
	svc := newService(t, &scriptedModel{}, &stubJudge{}, ivs, nil)
	out, err := svc.History(context.Background(), "u1", 5)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "b", out[0].ID)
}

func TestInterviewService_ConcurrentTurnsAreSerialized(t *testing.T) {
	model := &scriptedModel{}
	svc, err := usecase.NewInterviewService(usecase.InterviewDeps{
		Sessions: registry.NewMemory(10, time.Hour),
		Model:    model,
		Judge:    &stubJudge{},
		Options:  interview.Options{MinTurns: 1, MaxTurns: 50},
	})
	require.NoError(t, err)
	ctx := context.Background()
	_, err = svc.Start(ctx, usecase.StartInput{UserID: "u1"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.Chat(ctx, "u1", "answer")
		}()
	}
	wg.Wait()

	view, err := svc.State(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 10, view.TurnCount)
	assert.Equal(t, 20, len(view.Transcript))
}

func TestAuthService_RegisterAndLogin(t *testing.T) {
	users := &mockUsers{}
	var stored domain.User
	users.On("Create", mock.Anything, mock.MatchedBy(func(u domain.User) bool {
		stored = u
		return u.Username == "ada" && strings.HasPrefix(u.PasswordHash, "argon2id$")
	})).Return("u-1", nil).Once()

	svc := usecase.NewAuthService(users)
	svc.Params = usecase.Argon2Params{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLen: 16, KeyLen: 32}
	ctx := context.Background()

	u, err := svc.Register(ctx, " ada ", "s3cret", "")
	require.NoError(t, err)
	assert.Equal(t, "u-1", u.ID)
	assert.Equal(t, domain.DefaultRole, u.CurrentRole)
	assert.Empty(t, u.PasswordHash)

	stored.ID = "u-1"
	users.On("GetByUsername", mock.Anything, "ada").Return(stored, nil)
	users.On("GetByUsername", mock.Anything, "bob").Return(domain.User{}, domain.ErrNotFound)

	got, err := svc.Login(ctx, "ada", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "u-1", got.ID)

	_, err = svc.Login(ctx, "ada", "wrong")
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = svc.Login(ctx, "bob", "s3cret")
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestAuthService_RegisterErrors(t *testing.T) {
	users := &mockUsers{}
	users.On("Create", mock.Anything, mock.Anything).Return("", domain.ErrConflict)
	svc := usecase.NewAuthService(users)
	svc.Params = usecase.Argon2Params{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLen: 16, KeyLen: 32}
	ctx := context.Background()

	_, err := svc.Register(ctx, "ada", "pw", domain.RoleMLEngineer)
	require.ErrorIs(t, err, domain.ErrConflict)
	assert.Contains(t, err.Error(), "username already exists")

	_, err = svc.Register(ctx, "ada", "pw", "Chef")
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
	_, err = svc.Register(ctx, "", "pw", "")
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestVerifyPassword_RejectsMalformed(t *testing.T) {
	assert.False(t, usecase.VerifyPassword("x", ""))
	assert.False(t, usecase.VerifyPassword("x", "bcrypt$1$2$3$4$5"))
	assert.False(t, usecase.VerifyPassword("x", "argon2id$a$b$c$d$e"))
}

type fakeExtractor struct {
	text string
	err  error
}

func (f fakeExtractor) ExtractPath(context.Context, string, string) (string, error) { return f.text, f.err }

func TestResumeService_Ingest(t *testing.T) {
	users := &mockUsers{}
	users.On("UpdateResume", mock.Anything, "ada", "Python and SQL").Return(nil).Once()
	svc := usecase.NewResumeService(fakeExtractor{text: "  Python and SQL\x00 "}, users)

	text, err := svc.Ingest(context.Background(), "ada", "cv.pdf", "/tmp/cv.pdf")
	require.NoError(t, err)
	assert.Equal(t, "Python and SQL", text)
	users.AssertExpectations(t)

	_, err = usecase.NewResumeService(fakeExtractor{text: " \n "}, nil).Ingest(context.Background(), "", "cv.txt", "/tmp/cv.txt")
	require.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = usecase.NewResumeService(fakeExtractor{err: errors.New("tika down")}, nil).Ingest(context.Background(), "", "cv.docx", "/tmp/cv.docx")
	require.Error(t, err)
}

func TestReadiness(t *testing.T) {
	checks := usecase.Readiness(context.Background(), time.Second,
		usecase.Probe{Name: "db", Check: func(context.Context) error { return nil }},
		usecase.Probe{Name: "redis", Check: func(context.Context) error { return errors.New("refused") }},
		usecase.Probe{Name: "tika"},
	)
	require.Len(t, checks, 3)
	assert.True(t, checks[0].OK)
	assert.False(t, checks[1].OK)
	assert.Equal(t, "refused", checks[1].Details)
	assert.Equal(t, "not configured", checks[2].Details)
	assert.False(t, usecase.AllReady(checks))
	assert.True(t, usecase.AllReady(checks[:1]))
}

type sequenceJudge struct {
	mu      sync.Mutex
	reports []domain.Report
	calls   int
}

func (j *sequenceJudge) Evaluate(context.Context, string) (domain.Report, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	r := j.reports[j.calls%len(j.reports)]
	j.calls++
	return r, nil
}

func TestInterviewService_FeedbackReportIsFinal(t *testing.T) {
	pass := domain.Report{Verdict: domain.VerdictPass, Score: 80, Summary: "strong"}
	fail := domain.Report{Verdict: domain.VerdictFail, Score: 30, Summary: "weak"}
	j := &sequenceJudge{reports: []domain.Report{pass, fail}}
	ivs := &mockInterviews{}
	ivs.On("Create", mock.Anything, mock.Anything).Return("iv-7", nil).Once()
	ivs.On("Complete", mock.Anything, "iv-7", pass).Return(nil).Once()
	pub := &recordingPublisher{}
	svc := newService(t, &scriptedModel{}, j, ivs, pub)
	ctx := context.Background()

	_, err := svc.Start(ctx, usecase.StartInput{UserID: "u1"})
	require.NoError(t, err)
	_, err = svc.Chat(ctx, "u1", "I have 2 years of SQL experience.")
	require.NoError(t, err)

	first, err := svc.Feedback(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, pass, first)

	second, err := svc.Feedback(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, pass, second)

	assert.Equal(t, 1, j.calls)
	require.Len(t, pub.events, 1)
	assert.Equal(t, pass, pub.events[0].Report)
	ivs.AssertNumberOfCalls(t, "Complete", 1)

	view, err := svc.State(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateFinished, view.State)
	_, err = svc.Chat(ctx, "u1", "one more answer")
	require.ErrorIs(t, err, domain.ErrSessionFinished)
}

func TestInterviewService_DegradedReportIsNotRecorded(t *testing.T) {
	degraded := domain.Report{Verdict: domain.VerdictError, Summary: "model returned garbage", StrongAreas: []string{}, WeakAreas: []string{}, ImprovementTips: []string{}}
	pass := domain.Report{Verdict: domain.VerdictPass, Score: 66}
	j := &sequenceJudge{reports: []domain.Report{degraded, pass}}
	ivs := &mockInterviews{}
	ivs.On("Create", mock.Anything, mock.Anything).Return("iv-8", nil).Once()
	ivs.On("Complete", mock.Anything, "iv-8", pass).Return(nil).Once()
	pub := &recordingPublisher{}
	svc := newService(t, &scriptedModel{}, j, ivs, pub)
	ctx := context.Background()

	_, err := svc.Start(ctx, usecase.StartInput{UserID: "u1"})
	require.NoError(t, err)

	got, err := svc.Feedback(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictError, got.Verdict)
	assert.Empty(t, pub.events)

	view, err := svc.State(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateInProgress, view.State)

	got, err = svc.Feedback(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, pass, got)
	assert.Equal(t, 2, j.calls)
	require.Len(t, pub.events, 1)
	ivs.AssertExpectations(t)
}

// lockingStore counts shared-store locks and can refuse them.
type lockingStore struct {
	registry.Store
	mu     sync.Mutex
	held   bool
	locks  int
	refuse error
}

func (l *lockingStore) Lock(context.Context, string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.refuse != nil {
		return nil, l.refuse
	}
	if l.held {
		return nil, errors.New("lock acquired twice")
	}
	l.held = true
	l.locks++
	return func() {
		l.mu.Lock()
		l.held = false
		l.mu.Unlock()
	}, nil
}

func TestInterviewService_UsesSharedStoreLock(t *testing.T) {
	store := &lockingStore{Store: registry.NewMemory(10, time.Hour)}
	svc, err := usecase.NewInterviewService(usecase.InterviewDeps{
		Sessions: store,
		Model:    &scriptedModel{},
		Judge:    &stubJudge{report: domain.Report{Verdict: domain.VerdictPass, Score: 70}},
	})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = svc.Start(ctx, usecase.StartInput{UserID: "u1"})
	require.NoError(t, err)
	_, err = svc.Chat(ctx, "u1", "answer")
	require.NoError(t, err)
	_, err = svc.Feedback(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, store.locks)
	assert.False(t, store.held)

	store.refuse = domain.ErrConflict
	_, err = svc.Start(ctx, usecase.StartInput{UserID: "u1"})
	require.ErrorIs(t, err, domain.ErrConflict)
	_, err = svc.Chat(ctx, "u1", "answer")
	require.ErrorIs(t, err, domain.ErrConflict)
	_, err = svc.Feedback(ctx, "u1")
	require.ErrorIs(t, err, domain.ErrConflict)

	store.refuse = nil
	view, err := svc.State(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateFinished, view.State)
	assert.Equal(t, 1, view.TurnCount)
}
