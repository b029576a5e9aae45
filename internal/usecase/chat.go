package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"support-agent/internal/behavior"
	"support-agent/internal/domain"
)

type SentimentAnalyzer interface {
	Sentiment(ctx context.Context, text string) (float64, error)
}

type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type TurnScorer interface {
	Score(ctx context.Context, input string, state *domain.ConversationState) behavior.Result
}

type StateStore interface {
	GetState(ctx context.Context, sessionID string) (*domain.ConversationState, error)
	SaveState(ctx context.Context, state *domain.ConversationState) error
}

type LogWriter interface {
	AppendLog(ctx context.Context, rec domain.LogRecord) error
}

type ChatConfig struct {
	// EmpatheticOpenings enables the keyword-triggered opener rule.
	EmpatheticOpenings bool
	// GreetingScoresTurn makes the greeting short-circuit still score the
	// input. Generation is skipped either way.
	GreetingScoresTurn bool
	// UpstreamTimeout bounds each sentiment and generation call. Zero means
	// only the caller's context applies.
	UpstreamTimeout time.Duration
	// MaxMessageLength caps a message in runes. Zero or less means
	// DefaultMaxMessageLength.
	MaxMessageLength int
}

// DefaultMaxMessageLength keeps a full history window well inside the
// DynamoDB item size limit.
const DefaultMaxMessageLength = 2000

type ChatService struct {
	sentiment SentimentAnalyzer
	scorer    TurnScorer
	generator Generator
	state     StateStore
	logs      LogWriter
	cfg       ChatConfig
	responder responder
	locks     *sessionLocks
	now       func() time.Time
}

type ChatOption func(*ChatService)

// WithChooser replaces the random opener selection.
func WithChooser(c Chooser) ChatOption {
	return func(s *ChatService) {
		if c != nil {
			s.responder.choose = c
		}
	}
}

func WithClock(now func() time.Time) ChatOption {
	return func(s *ChatService) {
		if now != nil {
			s.now = now
		}
	}
}

type ChatInput struct {
	SessionID string
	Message   string
	Role      string
}

type ChatOutput struct {
	Response  string
	SessionID string
}

func NewChatService(sa SentimentAnalyzer, sc TurnScorer, g Generator, st StateStore, logs LogWriter, cfg ChatConfig, opts ...ChatOption) (*ChatService, error) {
	if sa == nil {
		return nil, errors.New("usecase: sentiment analyzer must not be nil")
	}
	if sc == nil {
		return nil, errors.New("usecase: scorer must not be nil")
	}
	if g == nil {
		return nil, errors.New("usecase: generator must not be nil")
	}
	if st == nil {
		return nil, errors.New("usecase: state store must not be nil")
	}
	if logs == nil {
		return nil, errors.New("usecase: log writer must not be nil")
	}
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = DefaultMaxMessageLength
	}
	s := &ChatService{
		sentiment: sa,
		scorer:    sc,
		generator: g,
		state:     st,
		logs:      logs,
		cfg:       cfg,
		responder: responder{choose: randomChooser, openings: cfg.EmpatheticOpenings},
		locks:     newSessionLocks(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *ChatService) Chat(ctx context.Context, in ChatInput) (ChatOutput, error) {
	message := in.Message
	if strings.TrimSpace(message) == "" {
		return ChatOutput{}, newError(ErrorInvalidInput, "empty_message", nil)
	}
	if utf8.RuneCountInString(message) > s.cfg.MaxMessageLength {
		return ChatOutput{}, newError(ErrorInvalidInput, "message_too_long", nil)
	}
	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		sessionID = newUUID()
	}
	role := domain.ParseSupportRole(in.Role)

	unlock := s.locks.lock(sessionID)
	defer unlock()

	state, err := s.state.GetState(ctx, sessionID)
	if err != nil {
		slog.Error("failed to load conversation state", "session", sessionID, "err", err)
		return ChatOutput{}, newError(ErrorInternal, "state_read_error", err)
	}

	var t turn
	if isGreeting(message) {
		t = s.greet(ctx, message, role, state)
	} else {
		t = s.respond(ctx, message, role, state)
	}

	if t.dirty {
		if err := s.state.SaveState(ctx, state); err != nil {
			slog.Error("failed to save conversation state", "session", sessionID, "err", err)
			return ChatOutput{}, stateWriteError(err)
		}
	}

	// Only committed turns reach the log stream.
	s.appendLog(ctx, t.user)
	s.appendLog(ctx, domain.LogRecord{
		SessionID: sessionID,
		Actor:     domain.ActorAssistant,
		Content:   t.reply,
		Timestamp: s.now().UTC(),
		ActorRole: string(role),
	})

	return ChatOutput{Response: t.reply, SessionID: sessionID}, nil
}

// Reset replaces the persisted conversation with its zero value.
func (s *ChatService) Reset(ctx context.Context, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return newError(ErrorInvalidInput, "missing_session_id", nil)
	}

	unlock := s.locks.lock(sessionID)
	defer unlock()

	state, err := s.state.GetState(ctx, sessionID)
	if err != nil {
		return newError(ErrorInternal, "state_read_error", err)
	}
	if state.Version == 0 {
		// never persisted
		return nil
	}
	state.Reset()
	if err := s.state.SaveState(ctx, state); err != nil {
		return stateWriteError(err)
	}
	return nil
}

// turn is the outcome of one message before it is committed.
type turn struct {
	reply string
	user  domain.LogRecord
	// dirty is false when state was not touched and need not be saved.
	dirty bool
}

func (s *ChatService) userLog(message string, role domain.SupportRole, state *domain.ConversationState) domain.LogRecord {
	return domain.LogRecord{
		SessionID: state.SessionID,
		Actor:     domain.ActorUser,
		Content:   message,
		Timestamp: s.now().UTC(),
		ActorRole: string(role),
	}
}

// greet answers a greeting without calling the generator.
func (s *ChatService) greet(ctx context.Context, message string, role domain.SupportRole, state *domain.ConversationState) turn {
	rec := s.userLog(message, role, state)
	if !s.cfg.GreetingScoresTurn {
		return turn{reply: greetingReply, user: rec}
	}
	res := s.scorer.Score(ctx, message, state)
	return turn{reply: greetingReply, user: userRecord(rec, res), dirty: true}
}

func (s *ChatService) respond(ctx context.Context, message string, role domain.SupportRole, state *domain.ConversationState) turn {
	sentiment := s.polarity(ctx, message)
	res := s.scorer.Score(ctx, message, state)
	t := turn{user: userRecord(s.userLog(message, role, state), res), dirty: true}

	state.AppendTurn(domain.TurnRoleUser, message)
	gen := s.generate(ctx, composePrompt(role, sentiment, state.History))
	if gen.Kind != FailureNone {
		slog.Warn("generation failed", "session", state.SessionID, "kind", gen.Kind.String(), "err", gen.Err)
		t.reply = gen.fallbackReply()
		return t
	}
	t.reply = s.responder.finalize(gen.Text, message, state)
	return t
}

func (s *ChatService) polarity(ctx context.Context, message string) float64 {
	callCtx, cancel := s.upstreamContext(ctx)
	defer cancel()
	p, err := s.sentiment.Sentiment(callCtx, message)
	if err != nil {
		slog.Warn("sentiment unavailable, assuming neutral", "err", err)
		return 0
	}
	return p
}

func (s *ChatService) generate(ctx context.Context, prompt string) generationResult {
	callCtx, cancel := s.upstreamContext(ctx)
	defer cancel()
	text, err := s.generator.Generate(callCtx, prompt)
	if err != nil {
		return failedGeneration(err)
	}
	return generationResult{Text: text}
}

func (s *ChatService) upstreamContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.UpstreamTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.cfg.UpstreamTimeout)
}

func (s *ChatService) appendLog(ctx context.Context, rec domain.LogRecord) {
	if err := s.logs.AppendLog(ctx, rec); err != nil {
		slog.Warn("failed to append chat log", "session", rec.SessionID, "actor", rec.Actor, "err", err)
	}
}

func userRecord(rec domain.LogRecord, res behavior.Result) domain.LogRecord {
	total := res.Total
	rec.FlagScore = &total
	if res.Flag != behavior.FlagNeutral {
		rec.FlagLabel = res.Flag
	}
	return rec
}

var newUUID = func() string {
	return uuid.NewString()
}
