// Package classifier suggests ticket categories, priorities and replies using
// an external text-completion service. Every failure degrades to "no result".
package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-tracker/internal/domain"
)

const (
	OperationClassify = "classify"
	OperationReply    = "suggest_reply"

	OutcomeOK          = "ok"
	OutcomeUnavailable = "unavailable"
	OutcomeError       = "error"
	OutcomeInvalid     = "invalid"
)

// CompletionRequest is a single system instruction plus user message.
type CompletionRequest struct {
	System    string
	User      string
	MaxTokens int64
}

// Completer returns the raw text produced for a request.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// Recorder counts classifier calls by outcome.
type Recorder interface {
	RecordClassifierCall(operation, outcome string)
}

// Classification is a validated suggestion.
type Classification struct {
	Category domain.TicketCategory
	Priority domain.TicketPriority
}

// Bridge validates completer output against the ticket enumerations.
type Bridge struct {
	completer Completer
	timeout   time.Duration
	logger    *zap.Logger
	metrics   Recorder
}

// NewBridge builds a bridge. A nil completer makes every call unavailable.
func NewBridge(completer Completer, timeout time.Duration, logger *zap.Logger, metrics Recorder) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Bridge{completer: completer, timeout: timeout, logger: logger, metrics: metrics}
}

// Available reports whether a completer is configured.
func (b *Bridge) Available() bool {
	return b != nil && b.completer != nil
}

// Classify suggests a category and priority for a description.
func (b *Bridge) Classify(ctx context.Context, description string) (Classification, bool) {
	text, ok := b.complete(ctx, OperationClassify, buildClassifyRequest(description))
	if !ok {
		return Classification{}, false
	}
	result, err := parseClassification(text)
	if err != nil {
		b.fail(OperationClassify, OutcomeInvalid, err)
		return Classification{}, false
	}
	b.record(OperationClassify, OutcomeOK)
	return result, true
}

// SuggestReply drafts a reply for a ticket.
func (b *Bridge) SuggestReply(ctx context.Context, title, description, category string) (string, bool) {
	text, ok := b.complete(ctx, OperationReply, buildReplyRequest(title, description, category))
	if !ok {
		return "", false
	}
	reply := strings.TrimSpace(text)
	if reply == "" {
		b.fail(OperationReply, OutcomeInvalid, errors.New("empty reply"))
		return "", false
	}
	b.record(OperationReply, OutcomeOK)
	return reply, true
}

func (b *Bridge) complete(ctx context.Context, op string, req CompletionRequest) (text string, ok bool) {
	if !b.Available() {
		b.record(op, OutcomeUnavailable)
		return "", false
	}
	defer func() {
		if r := recover(); r != nil {
			b.fail(op, OutcomeError, fmt.Errorf("panic: %v", r))
			text, ok = "", false
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	text, err := b.completer.Complete(ctx, req)
	if err != nil {
		b.fail(op, OutcomeError, err)
		return "", false
	}
	return text, true
}

func (b *Bridge) fail(op, outcome string, err error) {
	b.logger.Debug("classifier call failed", zap.String("operation", op), zap.String("outcome", outcome), zap.Error(err))
	b.record(op, outcome)
}

func (b *Bridge) record(op, outcome string) {
	if b != nil && b.metrics != nil {
		b.metrics.RecordClassifierCall(op, outcome)
	}
}

func parseClassification(text string) (Classification, error) {
	var payload struct {
		Category string `json:"category"`
		Priority string `json:"priority"`
	}
	if err := json.Unmarshal([]byte(stripFences(text)), &payload); err != nil {
		return Classification{}, fmt.Errorf("parse response: %w", err)
	}
	category, ok := domain.ParseCategory(strings.ToLower(strings.TrimSpace(payload.Category)))
	if !ok {
		return Classification{}, fmt.Errorf("unknown category %q", payload.Category)
	}
	priority, ok := domain.ParsePriority(strings.ToLower(strings.TrimSpace(payload.Priority)))
	if !ok {
		return Classification{}, fmt.Errorf("unknown priority %q", payload.Priority)
	}
	return Classification{Category: category, Priority: priority}, nil
}

// stripFences removes a surrounding markdown code fence, if any.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		lines := strings.SplitN(text, "\n", 2)
		if len(lines) > 1 {
			text = lines[1]
		} else {
			text = strings.TrimPrefix(text, "```")
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}
	return text
}
