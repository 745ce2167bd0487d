// Package judge turns a finished interview transcript into a scored Report
// with a single model call.
package judge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/fairyhunter13/ai-mock-interviewer/internal/adapter/ai"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/domain"
	obsctx "github.com/fairyhunter13/ai-mock-interviewer/internal/observability"
)

// Policy decides what happens when no schema-valid report can be produced.
type Policy string

const (
	// PolicyStrict surfaces failures as domain.ErrEvaluationFailure.
	PolicyStrict Policy = "strict"
	// PolicyDegraded returns a fallback Report with verdict Error and never faults.
	PolicyDegraded Policy = "degraded"
)

// ParsePolicy maps a config value to a Policy. Unknown values are rejected.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case PolicyStrict:
		return PolicyStrict, nil
	case PolicyDegraded, "":
		return PolicyDegraded, nil
	}
	return "", fmt.Errorf("%w: unknown judge policy %q", domain.ErrInvalidArgument, s)
}

// DefaultRubric is the evaluator preamble used when no override is configured.
const DefaultRubric = `You are an experienced Senior Data Scientist from Amazon acting as a hiring manager. Evaluate this interview transcript.
Base your judgement on how long the candidate took to answer, the way the questions were answered and, where available, how well the answers align with the resume.
Be critical of mistakes and very strict when selecting a candidate. A score below 60 is a Fail.`

const shapeInstruction = `Return a valid JSON object strictly following this format (no markdown, just raw JSON):
{
  "verdict": "Pass" or "Fail",
  "score": <integer out of 100>,
  "summary": "<2-sentence summary of candidate performance>",
  "strong_areas": ["<area 1>", "<area 2>"],
  "weak_areas": ["<area 1>", "<area 2>"],
  "improvement_tips": ["<specific actionable tip 1>", "<tip 2>"]
}`

// Judge evaluates transcripts. It is safe for concurrent use.
type Judge struct {
	model   domain.ModelClient
	policy  Policy
	rubric  string
	timeout time.Duration
	cleaner *ai.ResponseCleaner
}

// Option configures a Judge.
type Option func(*Judge)

// WithRubric replaces the rubric preamble. Empty values are ignored.
func WithRubric(r string) Option {
	return func(j *Judge) {
		if strings.TrimSpace(r) != "" {
			j.rubric = r
		}
	}
}

// WithTimeout bounds the model call.
func WithTimeout(d time.Duration) Option { return func(j *Judge) { j.timeout = d } }

// New builds a Judge around model.
func New(model domain.ModelClient, policy Policy, opts ...Option) (*Judge, error) {
	if model == nil {
		return nil, fmt.Errorf("%w: model client required", domain.ErrInvalidArgument)
	}
	if policy != PolicyStrict && policy != PolicyDegraded {
		return nil, fmt.Errorf("%w: unknown judge policy %q", domain.ErrInvalidArgument, policy)
	}
	j := &Judge{model: model, policy: policy, rubric: DefaultRubric, cleaner: ai.NewResponseCleaner()}
	for _, o := range opts {
		o(j)
	}
	return j, nil
}

// Policy returns the configured failure policy.
func (j *Judge) Policy() Policy { return j.policy }

// Prompt renders the single evaluation prompt for a transcript.
func (j *Judge) Prompt(transcript string) string {
	var b strings.Builder
	b.WriteString(j.rubric)
	b.WriteString("\n\nTRANSCRIPT:\n")
	b.WriteString(transcript)
	b.WriteString("\n\nTASK:\n")
	b.WriteString(shapeInstruction)
	return b.String()
}

// Evaluate scores a reduced transcript. Under PolicyDegraded the error is
// always nil and failures come back as a Report with verdict Error.
func (j *Judge) Evaluate(ctx context.Context, transcript string) (domain.Report, error) {
	tracer := otel.Tracer("judge")
	ctx, span := tracer.Start(ctx, "judge.Evaluate")
	defer span.End()
	span.SetAttributes(attribute.String("judge.policy", string(j.policy)), attribute.Int("judge.transcript_len", len(transcript)))
	lg := obsctx.LoggerFromContext(ctx)

	report, err := j.evaluate(ctx, transcript)
	if err == nil {
		span.SetAttributes(attribute.String("judge.verdict", string(report.Verdict)), attribute.Int("judge.score", report.Score))
		return report, nil
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, "evaluation failed")
	if j.policy == PolicyStrict {
		return domain.Report{}, err
	}
	lg.Warn("evaluation degraded to fallback report", slog.Any("error", err))
	return Fallback(err), nil
}

func (j *Judge) evaluate(ctx context.Context, transcript string) (domain.Report, error) {
	if strings.TrimSpace(transcript) == "" {
		return domain.Report{}, fmt.Errorf("op=judge.evaluate: %w: empty transcript", domain.ErrEvaluationFailure)
	}
	cctx := ctx
	if j.timeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}
	raw, err := j.model.Generate(cctx, []domain.Message{{Role: domain.MessageUser, Content: j.Prompt(transcript)}})
	if err != nil {
		if errors.Is(err, domain.ErrUpstreamTimeout) || errors.Is(err, context.DeadlineExceeded) {
			return domain.Report{}, fmt.Errorf("op=judge.evaluate: %w: %w: %w", domain.ErrEvaluationFailure, domain.ErrUpstreamTimeout, err)
		}
		return domain.Report{}, fmt.Errorf("op=judge.evaluate: %w: %w", domain.ErrEvaluationFailure, err)
	}
	report, err := j.Parse(raw)
	if err != nil {
		return domain.Report{}, err
	}
	if report.Score < domain.PassThreshold && report.Verdict == domain.VerdictPass {
		obsctx.LoggerFromContext(ctx).Info("verdict coerced to Fail for score below threshold", slog.Int("score", report.Score))
		report.Verdict = domain.VerdictFail
	}
	return report, nil
}

// Parse cleans a raw model reply and decodes it into a Report. Required keys
// are verdict, score and summary; list fields default to empty.
func (j *Judge) Parse(raw string) (domain.Report, error) {
	cleaned := j.cleaner.CleanJSONResponse(raw)
	if !gjson.Valid(cleaned) {
		return domain.Report{}, fmt.Errorf("op=judge.parse: %w: response is not JSON", domain.ErrEvaluationFailure)
	}
	doc := gjson.Parse(cleaned)
	if !doc.IsObject() {
		return domain.Report{}, fmt.Errorf("op=judge.parse: %w: response is not a JSON object", domain.ErrEvaluationFailure)
	}
	for _, key := range []string{"verdict", "score", "summary"} {
		if !doc.Get(key).Exists() {
			return domain.Report{}, fmt.Errorf("op=judge.parse: %w: missing key %q", domain.ErrEvaluationFailure, key)
		}
	}

	verdict, ok := normalizeVerdict(doc.Get("verdict").String())
	if !ok {
		return domain.Report{}, fmt.Errorf("op=judge.parse: %w: unknown verdict %q", domain.ErrEvaluationFailure, doc.Get("verdict").String())
	}
	score, err := parseScore(doc.Get("score"))
	if err != nil {
		return domain.Report{}, err
	}
	strong, err := stringList(doc, "strong_areas")
	if err != nil {
		return domain.Report{}, err
	}
	weak, err := stringList(doc, "weak_areas")
	if err != nil {
		return domain.Report{}, err
	}
	tips, err := stringList(doc, "improvement_tips", "improvements")
	if err != nil {
		return domain.Report{}, err
	}
	return domain.Report{
		Verdict:         verdict,
		Score:           score,
		Summary:         strings.TrimSpace(doc.Get("summary").String()),
		StrongAreas:     strong,
		WeakAreas:       weak,
		ImprovementTips: tips,
	}, nil
}

// Fallback is the degraded report for a failed evaluation.
func Fallback(cause error) domain.Report {
	return domain.Report{
		Verdict:         domain.VerdictError,
		Score:           0,
		Summary:         fmt.Sprintf("Could not generate report: %v", cause),
		StrongAreas:     []string{},
		WeakAreas:       []string{},
		ImprovementTips: []string{},
	}
}

func normalizeVerdict(v string) (domain.Verdict, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "pass", "passed", "selected":
		return domain.VerdictPass, true
	case "fail", "failed", "rejected":
		return domain.VerdictFail, true
	}
	return "", false
}

// parseScore accepts numbers and numeric strings and clamps to [0,100].
func parseScore(r gjson.Result) (int, error) {
	var f float64
	switch r.Type {
	case gjson.Number:
		f = r.Float()
	case gjson.String:
		s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(r.String()), "/100"))
		if _, err := fmt.Sscanf(s, "%g", &f); err != nil {
			return 0, fmt.Errorf("op=judge.parse: %w: score %q is not numeric", domain.ErrEvaluationFailure, r.String())
		}
	default:
		return 0, fmt.Errorf("op=judge.parse: %w: score has type %s", domain.ErrEvaluationFailure, r.Type)
	}
	if math.IsNaN(f) {
		return 0, fmt.Errorf("op=judge.parse: %w: score is NaN", domain.ErrEvaluationFailure)
	}
	return int(math.Round(math.Max(0, math.Min(100, f)))), nil
}

// stringList reads the first present key as a list of strings.
func stringList(doc gjson.Result, keys ...string) ([]string, error) {
	out := []string{}
	for _, k := range keys {
		r := doc.Get(k)
		if !r.Exists() || r.Type == gjson.Null {
			continue
		}
		if !r.IsArray() {
			return nil, fmt.Errorf("op=judge.parse: %w: %s is not a list", domain.ErrEvaluationFailure, k)
		}
		for _, item := range r.Array() {
			if s := strings.TrimSpace(item.String()); s != "" {
				out = append(out, s)
			}
		}
		return out, nil
	}
	return out, nil
}
