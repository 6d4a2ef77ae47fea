package assistant

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/mohammad-safakhou/supportbot/internal/corpus"
	"github.com/mohammad-safakhou/supportbot/models"
	"github.com/mohammad-safakhou/supportbot/provider"
)

// DefaultTimeout bounds a single model call.
const DefaultTimeout = 30 * time.Second

var (
	ErrInvalidRequest = errors.New("assistant: missing session id or message")
	ErrStore          = errors.New("assistant: store failure")
	ErrUpstreamAuth   = errors.New("assistant: upstream credential rejected")
	ErrUpstream       = errors.New("assistant: upstream failure")
)

// opError tags an underlying failure with its taxonomy kind.
type opError struct {
	kind error
	op   string
	err  error
}

func (e *opError) Error() string { return fmt.Sprintf("%v: %s: %v", e.kind, e.op, e.err) }

func (e *opError) Unwrap() []error { return []error{e.kind, e.err} }

// Store is the persistence the chat flow needs.
type Store interface {
	EnsureSession(ctx context.Context, id string) error
	AppendMessage(ctx context.Context, sessionID string, role models.Role, content string) (models.Message, error)
	RecentMessages(ctx context.Context, sessionID string, beforeID int64, limit int) ([]models.Message, error)
	TouchSession(ctx context.Context, id string) error
}

// Reply is the answer returned for one chat turn.
type Reply struct {
	Reply      string
	TokensUsed int
	Overridden bool
}

// Service runs one chat turn end to end.
type Service struct {
	store     Store
	gen       provider.Generator
	corpus    *corpus.Corpus
	validator *Validator
	timeout   time.Duration
	logger    *log.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithTimeout overrides DefaultTimeout. A non-positive value disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// WithLogger replaces the default [CHAT] logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewService(store Store, gen provider.Generator, c *corpus.Corpus, opts ...Option) *Service {
	s := &Service{
		store:     store,
		gen:       gen,
		corpus:    c,
		validator: NewValidator(c),
		timeout:   DefaultTimeout,
		logger:    log.New(log.Writer(), "[CHAT] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Chat records the user's message, asks the model and records the validated
// answer. The user message stays stored when a later step fails.
func (s *Service) Chat(ctx context.Context, sessionID, message string) (*Reply, error) {
	message = strings.TrimSpace(message)
	if strings.TrimSpace(sessionID) == "" || message == "" {
		return nil, ErrInvalidRequest
	}

	if err := s.store.EnsureSession(ctx, sessionID); err != nil {
		return nil, &opError{kind: ErrStore, op: "ensure session", err: err}
	}
	question, err := s.store.AppendMessage(ctx, sessionID, models.RoleUser, message)
	if err != nil {
		return nil, &opError{kind: ErrStore, op: "append user message", err: err}
	}
	history, err := s.store.RecentMessages(ctx, sessionID, question.ID, HistoryLimit)
	if err != nil {
		return nil, &opError{kind: ErrStore, op: "recent messages", err: err}
	}

	prompt := BuildPrompt(message, history, s.corpus)

	callCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	res, err := s.gen.Generate(callCtx, prompt)
	if err != nil {
		s.logger.Printf("session %s: model call failed: %v", sessionID, err)
		if errors.Is(err, provider.ErrUnauthorized) {
			return nil, &opError{kind: ErrUpstreamAuth, op: "generate", err: err}
		}
		return nil, &opError{kind: ErrUpstream, op: "generate", err: err}
	}

	raw, tokens := "", 0
	if res != nil {
		raw, tokens = res.Text, res.TokensUsed
	}
	if strings.TrimSpace(raw) == "" {
		raw = NotFoundReply
	}
	verdict := s.validator.Check(raw)
	if verdict.Overridden {
		s.logger.Printf("session %s: reply replaced by refusal (ratio %.3f over %d content words)", sessionID, verdict.Ratio, verdict.ContentWords)
	}

	if _, err := s.store.AppendMessage(ctx, sessionID, models.RoleAssistant, verdict.Reply); err != nil {
		return nil, &opError{kind: ErrStore, op: "append assistant message", err: err}
	}
	if err := s.store.TouchSession(ctx, sessionID); err != nil {
		return nil, &opError{kind: ErrStore, op: "touch session", err: err}
	}

	return &Reply{Reply: verdict.Reply, TokensUsed: tokens, Overridden: verdict.Overridden}, nil
}
