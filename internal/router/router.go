package router

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/krishhh001/A.L.I.A.S.---Advanced-Logical-Interface-and-Assistant-System/internal/logging"
)

const generalErrPrefix = "AI query error"

// Router evaluates the rule list and falls back to the generic answerer.
type Router struct {
	rules    []Rule
	answerer Answerer
	log      *logging.Logger

	stats   RouterStats
	statsMu sync.RWMutex
}

// RouterStats tracks routing outcomes.
type RouterStats struct {
	TotalRequests int64                 `json:"total_requests"`
	ByLabel       map[CommandType]int64 `json:"by_label"`
	HandlerErrors int64                 `json:"handler_errors"`
	Panics        int64                 `json:"panics"`
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the router's logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.log = l.WithComponent("router")
		}
	}
}

// New creates a router over p.
func New(p Providers, opts ...Option) *Router {
	r := &Router{
		rules:    buildRules(p),
		answerer: p.Answerer,
		log:      logging.Nop(),
		stats:    RouterStats{ByLabel: make(map[CommandType]int64)},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route answers utterance. contextPrefix, when non-empty, is prepended to the
// utterance for the generic answerer only; rules always match the bare
// utterance. Route never returns an error: handler failures and panics come
// back as "<prefix>: <detail>" responses.
func (r *Router) Route(ctx context.Context, utterance, contextPrefix string) (string, CommandType) {
	lower := strings.ToLower(utterance)

	for i := range r.rules {
		rule := &r.rules[i]
		if !rule.Match(lower) {
			continue
		}
		r.log.Debug("rule %s matched", rule.Name)
		return r.invoke(ctx, rule.Label, rule.ErrPrefix, func(ctx context.Context) (string, error) {
			return rule.Handle(ctx, utterance)
		}), rule.Label
	}

	prompt := utterance
	if contextPrefix != "" {
		prompt = contextPrefix + utterance
	}
	return r.invoke(ctx, CommandGeneral, generalErrPrefix, func(ctx context.Context) (string, error) {
		if r.answerer == nil {
			return "", ErrNotConfigured
		}
		return r.answerer.Generate(ctx, prompt)
	}), CommandGeneral
}

func (r *Router) invoke(ctx context.Context, label CommandType, errPrefix string, fn func(context.Context) (string, error)) (out string) {
	r.statsMu.Lock()
	r.stats.TotalRequests++
	r.stats.ByLabel[label]++
	r.statsMu.Unlock()

	defer func() {
		if rec := recover(); rec != nil {
			r.statsMu.Lock()
			r.stats.Panics++
			r.stats.HandlerErrors++
			r.statsMu.Unlock()
			r.log.Error("%s handler panicked: %v", label, rec)
			out = formatError(errPrefix, fmt.Errorf("%v", rec))
		}
	}()

	text, err := fn(ctx)
	if err != nil {
		r.statsMu.Lock()
		r.stats.HandlerErrors++
		r.statsMu.Unlock()
		r.log.Warn("%s handler failed: %v", label, err)
		return formatError(errPrefix, err)
	}
	return text
}

func formatError(prefix string, err error) string {
	if prefix == "" {
		prefix = generalErrPrefix
	}
	return prefix + ": " + err.Error()
}

// Classify returns the label of the rule that would handle utterance,
// without invoking it.
func (r *Router) Classify(utterance string) CommandType {
	lower := strings.ToLower(utterance)
	for i := range r.rules {
		if r.rules[i].Match(lower) {
			return r.rules[i].Label
		}
	}
	return CommandGeneral
}

// Rules returns a copy of the rule list in priority order.
func (r *Router) Rules() []Rule {
	out := make([]Rule, len(r.rules))
	copy(out, r.rules)
	return out
}

// Stats returns a snapshot of routing statistics.
func (r *Router) Stats() RouterStats {
	r.statsMu.RLock()
	defer r.statsMu.RUnlock()

	byLabel := make(map[CommandType]int64, len(r.stats.ByLabel))
	for k, v := range r.stats.ByLabel {
		byLabel[k] = v
	}
	return RouterStats{
		TotalRequests: r.stats.TotalRequests,
		ByLabel:       byLabel,
		HandlerErrors: r.stats.HandlerErrors,
		Panics:        r.stats.Panics,
	}
}

// ResetStats clears routing statistics.
func (r *Router) ResetStats() {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	r.stats = RouterStats{ByLabel: make(map[CommandType]int64)}
}
