package router

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode"
)

// ErrNotConfigured is returned by a rule whose capability is missing.
var ErrNotConfigured = errors.New("capability not configured")

// Rule binds a predicate to a handler. Match receives the lower-cased
// utterance; Handle receives the original text.
type Rule struct {
	Label     CommandType
	Name      string
	ErrPrefix string
	Match     func(lower string) bool
	Handle    func(ctx context.Context, utterance string) (string, error)
}

var stopPhrases = map[string]bool{
	"stop":         true,
	"stop reading": true,
	"stop talking": true,
	"shut up":      true,
	"be quiet":     true,
}

var identityPhrases = map[string]bool{
	"what is your name": true,
	"what's your name":  true,
	"who are you":       true,
	"tell me your name": true,
}

// IdentityResponse is the canned self-introduction.
const IdentityResponse = "I am ALIAS, your AI assistant. I'm here to help you with various tasks and remember our conversations."

var namePrefixes = []string{"my name is ", "i am ", "call me "}

// IsStopPhrase reports whether lower is a speech interruption command.
func IsStopPhrase(lower string) bool {
	return stopPhrases[strings.TrimSpace(lower)]
}

func isIdentityQuestion(lower string) bool {
	q := strings.TrimSuffix(strings.TrimSpace(lower), "?")
	return identityPhrases[q]
}

func nameIntroduction(utterance string) (string, bool) {
	trimmed := strings.TrimSpace(utterance)
	lower := strings.ToLower(trimmed)
	for _, p := range namePrefixes {
		if strings.HasPrefix(lower, p) {
			return strings.TrimSpace(trimmed[len(p):]), true
		}
	}
	return "", false
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func hasDigit(s string) bool {
	return strings.IndexFunc(s, unicode.IsDigit) >= 0
}

// NewsScopeFor picks the headline scope mentioned in lower.
func NewsScopeFor(lower string) NewsScope {
	if containsAny(lower, "national", "india", "local") {
		return NewsNational
	}
	return NewsInternational
}

// buildRules returns the rule list in priority order.
func buildRules(p Providers) []Rule {
	return []Rule{
		{
			Label: CommandVoiceControl,
			Name:  "stop_speaking",
			Match: IsStopPhrase,
			Handle: func(ctx context.Context, _ string) (string, error) {
				if p.Speech != nil {
					p.Speech.Stop()
				}
				return "", nil
			},
		},
		{
			Label:     CommandWeb,
			Name:      "browser",
			ErrPrefix: "Failed to open browser",
			Match: func(lower string) bool {
				return strings.HasPrefix(lower, "open youtube") || strings.HasPrefix(lower, "open chrome")
			},
			Handle: func(ctx context.Context, utterance string) (string, error) {
				return openBrowser(p.Browser, strings.ToLower(strings.TrimSpace(utterance)))
			},
		},
		{
			Label:     CommandSystem,
			Name:      "system",
			ErrPrefix: "System command error",
			Match: func(lower string) bool {
				return containsAny(lower, "open", "close", "volume", "mute")
			},
			Handle: func(ctx context.Context, utterance string) (string, error) {
				if p.System == nil {
					return "", ErrNotConfigured
				}
				if err := p.System.Execute(ctx, utterance); err != nil {
					return "", err
				}
				return "Executed system command: " + utterance, nil
			},
		},
		{
			Label:     CommandMath,
			Name:      "math",
			ErrPrefix: "Math error",
			Match: func(lower string) bool {
				return containsAny(lower, "solve", "calculate") || hasDigit(lower)
			},
			Handle: func(ctx context.Context, utterance string) (string, error) {
				if p.Math == nil {
					return "", ErrNotConfigured
				}
				return p.Math.Solve(ctx, utterance)
			},
		},
		{
			Label:     CommandCode,
			Name:      "code",
			ErrPrefix: "Code generation error",
			Match: func(lower string) bool {
				return containsAny(lower, "code", "program")
			},
			Handle: func(ctx context.Context, utterance string) (string, error) {
				if p.Code == nil {
					return "", ErrNotConfigured
				}
				return p.Code.GenerateCode(ctx, utterance)
			},
		},
		{
			Label:     CommandDatabase,
			Name:      "sql_exec",
			ErrPrefix: "Database error",
			Match: func(lower string) bool {
				return containsAny(lower, "run query", "mysql")
			},
			Handle: func(ctx context.Context, utterance string) (string, error) {
				if p.Database == nil {
					return "", ErrNotConfigured
				}
				return p.Database.Exec(ctx, utterance)
			},
		},
		{
			Label:     CommandDatabase,
			Name:      "sql_translate",
			ErrPrefix: "SQL translation error",
			Match: func(lower string) bool {
				return containsAny(lower, "database", "sql")
			},
			Handle: func(ctx context.Context, utterance string) (string, error) {
				if p.Database == nil {
					return "", ErrNotConfigured
				}
				return p.Database.Translate(ctx, utterance)
			},
		},
		{
			Label:     CommandEmail,
			Name:      "email",
			ErrPrefix: "Email error",
			Match: func(lower string) bool {
				return containsAny(lower, "email", "inbox")
			},
			Handle: func(ctx context.Context, utterance string) (string, error) {
				if p.Email == nil {
					return "", ErrNotConfigured
				}
				return p.Email.HandleEmail(ctx, utterance)
			},
		},
		{
			Label:     CommandNews,
			Name:      "news",
			ErrPrefix: "News error",
			Match: func(lower string) bool {
				return strings.Contains(lower, "news")
			},
			Handle: func(ctx context.Context, utterance string) (string, error) {
				if p.News == nil {
					return "", ErrNotConfigured
				}
				return p.News.Headlines(ctx, NewsScopeFor(strings.ToLower(utterance)))
			},
		},
		{
			Label: CommandIdentity,
			Name:  "identity",
			Match: isIdentityQuestion,
			Handle: func(context.Context, string) (string, error) {
				return IdentityResponse, nil
			},
		},
		{
			Label:     CommandIdentity,
			Name:      "introduction",
			ErrPrefix: "AI query error",
			Match: func(lower string) bool {
				_, ok := nameIntroduction(lower)
				return ok
			},
			Handle: func(ctx context.Context, utterance string) (string, error) {
				name, _ := nameIntroduction(utterance)
				if p.Prefs != nil {
					// A lost preference write must not hide the greeting.
					_ = p.Prefs.SetPreference(ctx, UserNameKey, name)
				}
				return fmt.Sprintf("Nice to meet you, %s! I'm ALIAS, and I'll remember your name for our future conversations.", name), nil
			},
		},
	}
}

// openBrowser handles "open youtube [query]" and "open chrome [and|&] [search query]".
func openBrowser(b Browser, lower string) (string, error) {
	if b == nil {
		return "", ErrNotConfigured
	}

	if strings.HasPrefix(lower, "open youtube") {
		query := strings.TrimSpace(strings.TrimPrefix(lower, "open youtube"))
		target := "https://www.youtube.com/"
		if query != "" {
			target = "https://www.youtube.com/results?search_query=" + url.QueryEscape(query)
		}
		if err := b.OpenURL(target); err != nil {
			return "", err
		}
		if query == "" {
			return "Opened YouTube", nil
		}
		return "Opened YouTube: " + query, nil
	}

	var query string
	if _, after, ok := strings.Cut(lower, "search"); ok {
		query = strings.TrimSpace(after)
	}
	if query == "" {
		if err := b.OpenURL("https://www.google.com"); err != nil {
			return "", err
		}
		return "Opened Chrome", nil
	}
	if err := b.OpenURL("https://www.google.com/search?q=" + url.QueryEscape(query)); err != nil {
		return "", err
	}
	return "Opened Chrome search: " + query, nil
}
