package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/ai-mock-interviewer/internal/adapter/textextractor"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/config"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/domain"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/usecase"
)

const (
	maxJSONBody         = 1 << 20
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
	readinessTimeout    = 2 * time.Second
)

// Server aggregates the HTTP handlers and their collaborators.
type Server struct {
	Cfg        config.Config
	Auth       usecase.AuthService
	Interviews *usecase.InterviewService
	Resumes    usecase.ResumeService
	Sessions   *SessionManager
	Probes     []usecase.Probe
}

// NewServer constructs a Server.
func NewServer(cfg config.Config, auth usecase.AuthService, interviews *usecase.InterviewService, resumes usecase.ResumeService, probes ...usecase.Probe) *Server {
	return &Server{
		Cfg:        cfg,
		Auth:       auth,
		Interviews: interviews,
		Resumes:    resumes,
		Sessions:   NewSessionManager(cfg),
		Probes:     probes,
	}
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

type fieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// decodeJSON reads and validates a JSON body. On failure the error response
// has been written and false is returned.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorEnvelope{Error: apiError{Code: "INVALID_ARGUMENT", Message: "payload too large"}})
			return false
		}
		writeError(w, r, fmt.Errorf("%w: invalid json: %v", domain.ErrInvalidArgument, err), nil)
		return false
	}
	if err := getValidator().Struct(dst); err != nil {
		var ves validator.ValidationErrors
		details := []fieldError{}
		if errors.As(err, &ves) {
			for _, fe := range ves {
				details = append(details, fieldError{Field: fe.Field(), Rule: fe.Tag()})
			}
		}
		writeError(w, r, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), details)
		return false
	}
	return true
}

type startRequest struct {
	UserID     string `json:"user_id" validate:"omitempty,max=128"`
	Role       string `json:"role" validate:"omitempty,oneof='Data Scientist' 'ML Engineer' 'Data Analyst'"`
	ResumeText string `json:"resume_text" validate:"max=50000"`
}

type chatRequest struct {
	UserID  string `json:"user_id" validate:"omitempty,max=128"`
	Message string `json:"message" validate:"required,max=8000"`
}

type codeRequest struct {
	UserID   string `json:"user_id" validate:"omitempty,max=128"`
	Code     string `json:"code" validate:"required,max=20000"`
	Language string `json:"language" validate:"omitempty,max=32"`
}

type feedbackRequest struct {
	UserID string `json:"user_id" validate:"omitempty,max=128"`
}

// StartHandler creates or replaces the caller's interview session.
func (s *Server) StartHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req startRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		uid, username, err := s.identity(r, req.UserID)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		id, err := s.Interviews.Start(r.Context(), usecase.StartInput{
			UserID: uid, Username: username, Role: req.Role, ResumeText: req.ResumeText,
		})
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "Interview Initialized", "session_id": id})
	}
}

// ChatHandler submits a candidate answer.
func (s *Server) ChatHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		uid, _, err := s.identity(r, req.UserID)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		res, err := s.Interviews.Chat(r.Context(), uid, req.Message)
		s.writeTurn(w, r, res, err)
	}
}

// CodeHandler submits candidate code.
func (s *Server) CodeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req codeRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		uid, _, err := s.identity(r, req.UserID)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		res, err := s.Interviews.SubmitCode(r.Context(), uid, req.Code, req.Language)
		s.writeTurn(w, r, res, err)
	}
}

func (s *Server) writeTurn(w http.ResponseWriter, r *http.Request, res usecase.TurnResult, err error) {
	if errors.Is(err, domain.ErrSessionNotFound) {
		writeErrorMessage(w, r, err, msgSessionRestart, nil)
		return
	}
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// StateHandler renders the caller's live session.
func (s *Server) StateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, _, err := s.identity(r, r.URL.Query().Get("user_id"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		view, err := s.Interviews.State(r.Context(), uid)
		if errors.Is(err, domain.ErrSessionNotFound) {
			writeErrorMessage(w, r, err, msgSessionRestart, nil)
			return
		}
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

// FeedbackHandler evaluates the caller's session.
func (s *Server) FeedbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req feedbackRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		uid, _, err := s.identity(r, req.UserID)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		rep, err := s.Interviews.Feedback(r.Context(), uid)
		if errors.Is(err, domain.ErrSessionNotFound) {
			writeErrorMessage(w, r, err, msgSessionNotFound, nil)
			return
		}
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, rep)
	}
}

type interviewView struct {
	ID          string     `json:"id"`
	Role        string     `json:"role"`
	Verdict     string     `json:"verdict,omitempty"`
	Score       *int       `json:"score"`
	Summary     string     `json:"summary,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// HistoryHandler lists the caller's past interviews, newest first.
func (s *Server) HistoryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		uid, _, err := s.identity(r, q.Get("user_id"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		limit := defaultHistoryLimit
		if v := q.Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 || n > maxHistoryLimit {
				writeError(w, r, fmt.Errorf("%w: limit must be 1..%d", domain.ErrInvalidArgument, maxHistoryLimit), map[string]string{"field": "limit"})
				return
			}
			limit = n
		}
		items, err := s.Interviews.History(r.Context(), uid, limit)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		out := make([]interviewView, 0, len(items))
		for _, it := range items {
			out = append(out, interviewView{
				ID: it.ID, Role: it.JobRole, Verdict: it.Verdict, Score: it.Score,
				Summary: it.FeedbackSummary, CreatedAt: it.CreatedAt, CompletedAt: it.CompletedAt,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"interviews": out})
	}
}

// allowedMIMEFor checks the sniffed content against the file extension.
func allowedMIMEFor(m *mimetype.MIME, filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt":
		return m.Is("text/plain")
	case ".pdf":
		return m.Is("application/pdf")
	case ".docx":
		return m.Is("application/vnd.openxmlformats-officedocument.wordprocessingml.document") || m.Is("application/zip")
	}
	return false
}

// ResumeUploadHandler extracts text from an uploaded resume.
func (s *Server) ResumeUploadHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Content-Type"), "multipart/form-data") {
			writeError(w, r, fmt.Errorf("%w: content-type must be multipart/form-data", domain.ErrInvalidArgument), nil)
			return
		}
		maxBytes := s.Cfg.MaxUploadMB * 1024 * 1024
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes+1024*64)
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) || strings.Contains(strings.ToLower(err.Error()), "too large") {
				writeJSON(w, http.StatusRequestEntityTooLarge, errorEnvelope{Error: apiError{
					Code: "INVALID_ARGUMENT", Message: "payload too large", Details: map[string]any{"max_mb": s.Cfg.MaxUploadMB},
				}})
				return
			}
			writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err), nil)
			return
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: file required", domain.ErrInvalidArgument), map[string]string{"field": "file"})
			return
		}
		defer func() { _ = f.Close() }()

		name := filepath.Base(hdr.Filename)
		ext := strings.ToLower(filepath.Ext(name))
		if !textextractor.AllowedExtensions[ext] {
			writeError(w, r, fmt.Errorf("%w: unsupported file type %q", domain.ErrInvalidArgument, ext), map[string]string{"field": "file"})
			return
		}
		data, err := io.ReadAll(f)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: read upload: %v", domain.ErrInvalidArgument, err), nil)
			return
		}
		if mt := mimetype.Detect(data); !allowedMIMEFor(mt, name) {
			writeError(w, r, fmt.Errorf("%w: content does not match %s", domain.ErrInvalidArgument, ext), map[string]string{"mime": mt.String()})
			return
		}

		path, cleanup, err := writeTemp(data, ext)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		defer cleanup()

		var username string
		if sd, ok := sessionFrom(r.Context()); ok {
			username = sd.Username
		}
		text, err := s.Resumes.Ingest(r.Context(), username, name, path)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		LoggerFrom(r).Info("resume extracted", slog.String("ext", ext), slog.Int("chars", len(text)))
		writeJSON(w, http.StatusOK, map[string]any{"resume_text": text, "chars": len([]rune(text))})
	}
}

func writeTemp(data []byte, ext string) (string, func(), error) {
	tmp, err := os.CreateTemp("", "resume-*"+ext)
	if err != nil {
		return "", nil, fmt.Errorf("op=resume.upload: %w", err)
	}
	cleanup := func() { _ = os.Remove(tmp.Name()) }
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return "", nil, fmt.Errorf("op=resume.upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("op=resume.upload: %w", err)
	}
	return tmp.Name(), cleanup, nil
}

// ReadyzHandler probes every configured dependency.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := usecase.Readiness(r.Context(), readinessTimeout, s.Probes...)
		st := http.StatusOK
		if !usecase.AllReady(checks) {
			st = http.StatusServiceUnavailable
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}

// OpenAPIServe serves api/openapi.yaml if present.
func (s *Server) OpenAPIServe() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := os.ReadFile("api/openapi.yaml")
		if err != nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(b)
	}
}
