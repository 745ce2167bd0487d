package interview_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-mock-interviewer/internal/domain"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/interview"
)

// scriptedModel returns replies in order and records every message list.
type scriptedModel struct {
	mu      sync.Mutex
	replies []string
	err     error
	calls   [][]domain.Message
}

func (m *scriptedModel) Generate(_ context.Context, msgs []domain.Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]domain.Message, len(msgs))
	copy(cp, msgs)
	m.calls = append(m.calls, cp)
	if m.err != nil {
		return "", m.err
	}
	if len(m.replies) == 0 {
		return "Next question: what is overfitting?", nil
	}
	r := m.replies[0]
	m.replies = m.replies[1:]
	return r, nil
}

type slowModel struct{}

func (slowModel) Generate(ctx context.Context, _ []domain.Message) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

type fixedQuestions struct {
	q     *domain.Question
	err   error
	calls int
}

func (f *fixedQuestions) GetQuestion(_ context.Context, topic string) (*domain.Question, error) {
	f.calls++
	if topic != interview.DefaultTopic {
		return nil, errors.New("unexpected topic " + topic)
	}
	return f.q, f.err
}

func newSession(t *testing.T, m domain.ModelClient, q domain.QuestionSource, opts interview.Options) *interview.Session {
	t.Helper()
	s, err := interview.New("sess-1", domain.RoleDataScientist, "", m, q, opts)
	require.NoError(t, err)
	return s
}

func TestNew_InitializesWithDirectiveOnly(t *testing.T) {
	s := newSession(t, &scriptedModel{}, nil, interview.Options{})
	tr := s.Transcript()
	require.Len(t, tr, 1)
	assert.True(t, tr[0].IsDirective())
	assert.Contains(t, tr[0].Text, "Data Scientist")
	assert.Contains(t, tr[0].Text, domain.NoResume)
	assert.Equal(t, domain.StateInProgress, s.State())

	sc := s.Context()
	assert.Equal(t, domain.NoResume, sc.ResumeText)
	assert.Equal(t, 0, sc.TurnCount)
	assert.Equal(t, 4, sc.MinTurns)
	assert.Equal(t, 15, sc.MaxTurns)
}

func TestNew_RequiresModelAndRole(t *testing.T) {
	_, err := interview.New("x", "Data Scientist", "", nil, nil, interview.Options{})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
	_, err = interview.New("x", "  ", "", &scriptedModel{}, nil, interview.Options{})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestSubmitTurn_AppendsRetrievalDirective(t *testing.T) {
	m := &scriptedModel{replies: []string{"What is a p-value?"}}
	q := &fixedQuestions{q: &domain.Question{Text: "Explain bias vs variance", Answer: "tradeoff"}}
	s := newSession(t, m, q, interview.Options{})

	reply, finished, err := s.SubmitTurn(context.Background(), "I have 2 years of SQL experience.")
	require.NoError(t, err)
	assert.Equal(t, "What is a p-value?", reply)
	assert.False(t, finished)
	assert.Equal(t, 1, q.calls)

	tr := s.Transcript()
	require.Len(t, tr, 4)
	assert.Equal(t, domain.TurnAnswer, tr[1].Kind)
	assert.Equal(t, domain.SpeakerCandidate, tr[1].Speaker)
	assert.True(t, tr[2].IsDirective())
	assert.Contains(t, tr[2].Text, "Explain bias vs variance")
	assert.Contains(t, tr[2].Text, "AT MOST 2 hints")
	assert.Equal(t, domain.SpeakerInterviewer, tr[3].Speaker)

	// model saw the full transcript including directives
	require.Len(t, m.calls, 1)
	msgs := m.calls[0]
	require.Len(t, msgs, 3)
	assert.Equal(t, domain.MessageSystem, msgs[0].Role)
	assert.Equal(t, domain.MessageUser, msgs[1].Role)
	assert.Equal(t, domain.MessageSystem, msgs[2].Role)
	assert.Equal(t, 1, s.Context().TurnCount)
}

func TestSubmitTurn_RetrievalFailureIsAbsorbed(t *testing.T) {
	m := &scriptedModel{replies: []string{"Tell me about a project."}}
	q := &fixedQuestions{err: errors.New("qdrant down")}
	var reported error
	s := newSession(t, m, q, interview.Options{OnRetrievalFailure: func(err error) { reported = err }})

	reply, finished, err := s.SubmitTurn(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "Tell me about a project.", reply)
	assert.False(t, finished)
	require.Error(t, reported)
	assert.ErrorIs(t, reported, domain.ErrRetrievalFailure)
	for _, turn := range s.Transcript()[1:] {
		assert.False(t, turn.IsDirective())
	}
}

func TestSubmitTurn_NoQuestionSkipsDirective(t *testing.T) {
	s := newSession(t, &scriptedModel{}, &fixedQuestions{}, interview.Options{})
	_, _, err := s.SubmitTurn(context.Background(), "hi")
	require.NoError(t, err)
	assert.Len(t, s.Transcript(), 3)
}

func TestSubmitTurn_GenerationFailureKeepsAnswer(t *testing.T) {
	m := &scriptedModel{err: errors.New("quota exceeded")}
	s := newSession(t, m, nil, interview.Options{})

	_, finished, err := s.SubmitTurn(context.Background(), "my answer")
	require.Error(t, err)
	assert.False(t, finished)
	assert.ErrorIs(t, err, domain.ErrGenerationFailure)
	assert.NotErrorIs(t, err, domain.ErrUpstreamTimeout)

	tr := s.Transcript()
	require.Len(t, tr, 2)
	assert.Equal(t, "my answer", tr[1].Text)
	assert.Equal(t, 0, s.Context().TurnCount)
	assert.Equal(t, domain.StateInProgress, s.State())
}

func TestSubmitTurn_TimeoutIsDistinctFault(t *testing.T) {
	s := newSession(t, slowModel{}, nil, interview.Options{GenerationTimeout: 20 * time.Millisecond})
	_, _, err := s.SubmitTurn(context.Background(), "answer")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstreamTimeout)
	assert.NotErrorIs(t, err, domain.ErrGenerationFailure)
}

func TestSubmitTurn_EmptyAnswerRejected(t *testing.T) {
	m := &scriptedModel{}
	s := newSession(t, m, nil, interview.Options{})
	_, _, err := s.SubmitTurn(context.Background(), "   ")
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.Len(t, s.Transcript(), 1)
	assert.Empty(t, m.calls)
}

func TestSubmitTurn_TerminationIsMonotonic(t *testing.T) {
	m := &scriptedModel{replies: []string{"Q1", "Q2", "Q3", "Thanks. INTERVIEW_FINISHED Verdict: Fail"}}
	s := newSession(t, m, nil, interview.Options{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, finished, err := s.SubmitTurn(ctx, "answer")
		require.NoError(t, err)
		require.False(t, finished)
	}
	_, finished, err := s.SubmitTurn(ctx, "last answer")
	require.NoError(t, err)
	require.True(t, finished)
	assert.Equal(t, domain.StateFinished, s.State())

	before := s.Transcript()
	_, _, err = s.SubmitTurn(ctx, "one more")
	require.ErrorIs(t, err, domain.ErrSessionFinished)
	assert.Equal(t, before, s.Transcript())
	assert.Len(t, m.calls, 4)
}

func TestSubmitTurn_SentinelIsCaseSensitive(t *testing.T) {
	m := &scriptedModel{replies: []string{"interview_finished", "Interview Finished. Verdict: Pass"}}
	s := newSession(t, m, nil, interview.Options{})
	for i := 0; i < 2; i++ {
		_, finished, err := s.SubmitTurn(context.Background(), "a")
		require.NoError(t, err)
		assert.False(t, finished)
	}
}

func TestSubmitTurn_MaxTurnsForcesFinish(t *testing.T) {
	s := newSession(t, &scriptedModel{}, nil, interview.Options{MinTurns: 1, MaxTurns: 2})
	_, finished, err := s.SubmitTurn(context.Background(), "a")
	require.NoError(t, err)
	assert.False(t, finished)
	_, finished, err = s.SubmitTurn(context.Background(), "b")
	require.NoError(t, err)
	assert.True(t, finished)
	assert.Equal(t, domain.StateFinished, s.State())
}

func TestSubmitTurn_TranscriptGrowsAsPrefix(t *testing.T) {
	q := &fixedQuestions{q: &domain.Question{Text: "What is SQL JOIN?", Answer: "combines rows"}}
	s := newSession(t, &scriptedModel{}, q, interview.Options{})
	prev := s.Transcript()
	for i := 0; i < 5; i++ {
		_, _, err := s.SubmitTurn(context.Background(), "answer")
		require.NoError(t, err)
		cur := s.Transcript()
		require.Greater(t, len(cur), len(prev))
		assert.Equal(t, prev, cur[:len(prev)])
		prev = cur
	}
	spoken := prev.Spoken()
	for i, turn := range spoken {
		want := domain.SpeakerCandidate
		if i%2 == 1 {
			want = domain.SpeakerInterviewer
		}
		assert.Equal(t, want, turn.Speaker, "turn %d", i)
	}
}

func TestSubmitCode_WrapsSolution(t *testing.T) {
	m := &scriptedModel{replies: []string{"Your code looks fine."}}
	s := newSession(t, m, nil, interview.Options{})
	_, _, err := s.SubmitCode(context.Background(), "print(1)\n", "")
	require.NoError(t, err)
	tr := s.Transcript()
	assert.Equal(t, "My Code Solution:\n```python\nprint(1)\n```", tr[1].Text)
	assert.False(t, s.CodingMode())

	_, _, err = s.SubmitCode(context.Background(), "  ", "sql")
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestCodingMode_FollowsLatestInterviewerTurn(t *testing.T) {
	m := &scriptedModel{replies: []string{"Please write a SQL query to find duplicates.", "Tell me about yourself."}}
	s := newSession(t, m, nil, interview.Options{})
	assert.False(t, s.CodingMode())
	_, _, err := s.SubmitTurn(context.Background(), "ok")
	require.NoError(t, err)
	assert.True(t, s.CodingMode())
	_, _, err = s.SubmitTurn(context.Background(), "ok")
	require.NoError(t, err)
	assert.False(t, s.CodingMode())
}

func TestSnapshotRestore_RoundTrip(t *testing.T) {
	m := &scriptedModel{replies: []string{"Q1"}}
	s := newSession(t, m, nil, interview.Options{MinTurns: 2, MaxTurns: 6})
	_, _, err := s.SubmitTurn(context.Background(), "first")
	require.NoError(t, err)

	snap := s.Snapshot()
	r, err := interview.Restore(snap, m, nil, interview.Options{})
	require.NoError(t, err)
	assert.Equal(t, s.Transcript(), r.Transcript())
	assert.Equal(t, s.Context(), r.Context())
	assert.Equal(t, "sess-1", r.ID())

	_, err = interview.Restore(interview.Snapshot{State: domain.StateInProgress}, m, nil, interview.Options{})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestEndToEnd_InterviewThenReduce(t *testing.T) {
	m := &scriptedModel{replies: []string{
		"Good. What is the difference between WHERE and HAVING?",
		"Explain regularization.",
		"Write a function to compute a moving average in pandas.",
		"Thanks for your time. INTERVIEW_FINISHED Verdict: Pass",
	}}
	s := newSession(t, m, &fixedQuestions{}, interview.Options{})
	ctx := context.Background()

	reply, finished, err := s.SubmitTurn(ctx, "I have 2 years of SQL experience.")
	require.NoError(t, err)
	assert.NotEmpty(t, reply)
	assert.False(t, finished)
	assert.Less(t, s.Context().TurnCount, s.Context().MinTurns)

	for _, a := range []string{"HAVING filters groups.", "L1 and L2 penalties.", "df.rolling(3).mean()"} {
		_, finished, err = s.SubmitTurn(ctx, a)
		require.NoError(t, err)
	}
	require.True(t, finished)

	text := interview.Reduce(s.Transcript())
	assert.True(t, strings.HasPrefix(text, "Candidate: I have 2 years of SQL experience.\n\n"))
	assert.NotContains(t, text, "You MUST follow these rules")
}

func TestConclude_FirstReportWinsAndFinishes(t *testing.T) {
	m := &scriptedModel{}
	s := newSession(t, m, nil, interview.Options{MinTurns: 2, MaxTurns: 6})
	_, ok := s.Report()
	assert.False(t, ok)

	pass := domain.Report{Verdict: domain.VerdictPass, Score: 82}
	got, recorded := s.Conclude(pass)
	assert.True(t, recorded)
	assert.Equal(t, pass, got)
	assert.Equal(t, domain.StateFinished, s.State())

	got, recorded = s.Conclude(domain.Report{Verdict: domain.VerdictFail, Score: 10})
	assert.False(t, recorded)
	assert.Equal(t, pass, got)
	stored, ok := s.Report()
	require.True(t, ok)
	assert.Equal(t, pass, stored)

	_, _, err := s.SubmitTurn(context.Background(), "late answer")
	require.ErrorIs(t, err, domain.ErrSessionFinished)
}

func TestSnapshotRestore_KeepsReport(t *testing.T) {
	m := &scriptedModel{}
	s := newSession(t, m, nil, interview.Options{})
	rep := domain.Report{Verdict: domain.VerdictFail, Score: 41, Summary: "needs depth"}
	s.Conclude(rep)

	snap := s.Snapshot()
	snap.State = domain.StateInProgress
	r, err := interview.Restore(snap, m, nil, interview.Options{})
	require.NoError(t, err)
	got, ok := r.Report()
	require.True(t, ok)
	assert.Equal(t, rep, got)
	assert.Equal(t, domain.StateFinished, r.State())
}
