// Package assistant proxies editor requests to an AI completion provider.
// Each action carries a canned system prompt; user code and messages are
// passed through verbatim.
package assistant

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/driftpad/driftpad/internal/logging"
	"github.com/driftpad/driftpad/internal/metrics"
	"github.com/driftpad/driftpad/pkg/protocol"
)

// Provider generates a completion for a system/user prompt pair.
type Provider interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (reply string, err error)
	Name() string
	Model() string
}

// Actions supported by the assistant panel.
const (
	ActionChat     = "chat"
	ActionExplain  = "explain"
	ActionRefactor = "refactor"
	ActionFix      = "fix"
	ActionGenerate = "generate"
)

var systemPrompts = map[string]string{
	ActionChat:     "You are a helpful coding assistant embedded in a code editor. Answer the user's question concisely. When you include code, use fenced code blocks.",
	ActionExplain:  "You are a coding assistant. Explain what the given code does, step by step, in plain language. Point out any subtle behavior.",
	ActionRefactor: "You are a coding assistant. Refactor the given code to be clearer and more idiomatic without changing its behavior. Return the refactored code in a fenced code block, followed by a short list of what changed.",
	ActionFix:      "You are a coding assistant. Find and fix bugs in the given code. Return the corrected code in a fenced code block and briefly describe each fix.",
	ActionGenerate: "You are a coding assistant. Generate code that satisfies the user's description. Return only the code in a fenced code block with a one-line summary.",
}

// Service handles assistant requests with per-user daily usage limits.
type Service struct {
	provider      Provider
	db            *sql.DB
	defaultPerDay int
	timeout       time.Duration
}

// New creates an assistant service. provider may come from NewOpenAI or
// NewGemini.
func New(provider Provider, db *sql.DB, defaultPerDay int) *Service {
	return &Service{
		provider:      provider,
		db:            db,
		defaultPerDay: defaultPerDay,
		timeout:       90 * time.Second,
	}
}

// Enabled reports whether a provider is configured.
func (s *Service) Enabled() bool {
	return s != nil && s.provider != nil
}

// ErrDailyLimit is returned when a user has used up their daily quota.
var ErrDailyLimit = fmt.Errorf("assistant daily limit reached")

// Ask validates the request, checks the user's daily quota and forwards the
// prompt to the provider. perDayOverride, when non-nil, replaces the server
// default limit for this user.
func (s *Service) Ask(ctx context.Context, userID int, req *protocol.AssistantRequest, perDayOverride *int) (*protocol.AssistantResponse, error) {
	systemPrompt, userPrompt, err := BuildPrompt(req)
	if err != nil {
		return nil, err
	}

	perDay := s.defaultPerDay
	if perDayOverride != nil {
		perDay = *perDayOverride
	}
	if err := s.consumeDailyQuota(ctx, userID, perDay); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	reply, err := s.provider.Complete(ctx, systemPrompt, userPrompt)
	metrics.RecordAssistantRequest(req.Action, err == nil, time.Since(start))
	if err != nil {
		logging.Error("assistant request failed",
			zap.String("action", req.Action),
			zap.Int("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("assistant provider: %w", err)
	}

	logging.Info("assistant request",
		zap.String("action", req.Action),
		zap.Int("user_id", userID),
		zap.String("provider", s.provider.Name()),
		zap.Duration("duration", time.Since(start)))

	return &protocol.AssistantResponse{
		Reply:    reply,
		Model:    s.provider.Model(),
		Provider: s.provider.Name(),
	}, nil
}

// BuildPrompt picks the canned system prompt for the action and assembles
// the user prompt from message, code and language.
func BuildPrompt(req *protocol.AssistantRequest) (systemPrompt, userPrompt string, err error) {
	systemPrompt, ok := systemPrompts[req.Action]
	if !ok {
		return "", "", &protocol.ValidationError{Field: "action", Reason: "unknown action " + req.Action}
	}

	var b strings.Builder
	if req.Message != "" {
		b.WriteString(req.Message)
	}
	if req.Code != "" {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		lang := req.Language
		b.WriteString("```" + lang + "\n")
		b.WriteString(req.Code)
		if !strings.HasSuffix(req.Code, "\n") {
			b.WriteString("\n")
		}
		b.WriteString("```")
	}
	if b.Len() == 0 {
		return "", "", &protocol.ValidationError{Field: "message", Reason: "message or code required"}
	}
	return systemPrompt, b.String(), nil
}

// consumeDailyQuota increments the user's usage row for today and reports
// ErrDailyLimit when the count exceeds perDay. perDay <= 0 means unlimited;
// usage is still recorded.
func (s *Service) consumeDailyQuota(ctx context.Context, userID, perDay int) error {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("assistant_usage", time.Since(start)) }()

	var count int
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO assistant_usage (user_id, day, count) VALUES ($1, CURRENT_DATE, 1)
		 ON CONFLICT (user_id, day) DO UPDATE SET count = assistant_usage.count + 1
		 RETURNING count`, userID).Scan(&count)
	if err != nil {
		return fmt.Errorf("record assistant usage: %w", err)
	}

	if perDay > 0 && count > perDay {
		return ErrDailyLimit
	}
	return nil
}

// UsageToday returns how many assistant calls the user made today.
func (s *Service) UsageToday(ctx context.Context, userID int) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(count, 0) FROM assistant_usage WHERE user_id = $1 AND day = CURRENT_DATE`,
		userID).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query assistant usage: %w", err)
	}
	return count, nil
}
