// Package router decides which capability answers an utterance.
//
// Routing is deterministic keyword matching over an ordered rule list: the
// first rule whose predicate matches handles the utterance and no later rule
// is tried, even if it would also match. "calculate my email total" is a math
// request because the math rule precedes the email rule.
package router

import "context"

// CommandType labels the rule that handled an utterance.
type CommandType string

const (
	CommandVoiceControl CommandType = "voice_control"
	CommandWeb          CommandType = "web"
	CommandSystem       CommandType = "system"
	CommandMath         CommandType = "math"
	CommandCode         CommandType = "code"
	CommandDatabase     CommandType = "database"
	CommandEmail        CommandType = "email"
	CommandNews         CommandType = "news"
	CommandIdentity     CommandType = "identity"
	CommandGeneral      CommandType = "general"
)

// AllCommandTypes returns every label in routing priority order.
func AllCommandTypes() []CommandType {
	return []CommandType{
		CommandVoiceControl,
		CommandWeb,
		CommandSystem,
		CommandMath,
		CommandCode,
		CommandDatabase,
		CommandEmail,
		CommandNews,
		CommandIdentity,
		CommandGeneral,
	}
}

// String returns the string representation of a CommandType.
func (c CommandType) String() string {
	return string(c)
}

// IsValid checks if a CommandType is a known label.
func (c CommandType) IsValid() bool {
	for _, valid := range AllCommandTypes() {
		if c == valid {
			return true
		}
	}
	return false
}

// NewsScope selects national or international headlines.
type NewsScope string

const (
	NewsNational      NewsScope = "national"
	NewsInternational NewsScope = "international"
)

// ─────────────────────────────────────────────────────────────────────────────
// Capability contracts. Each is optional; a missing capability turns into the
// rule's labelled error string.
// ─────────────────────────────────────────────────────────────────────────────

// Math evaluates arithmetic in an utterance.
type Math interface {
	Solve(ctx context.Context, utterance string) (string, error)
}

// CodeGen writes a program described by an utterance.
type CodeGen interface {
	GenerateCode(ctx context.Context, utterance string) (string, error)
}

// SystemActor performs an OS action (open/close an app, volume, mute).
type SystemActor interface {
	Execute(ctx context.Context, utterance string) error
}

// Browser opens a URL in the user's browser.
type Browser interface {
	OpenURL(url string) error
}

// Database runs SQL. Translate converts natural language to SQL and runs it.
type Database interface {
	Exec(ctx context.Context, utterance string) (string, error)
	Translate(ctx context.Context, utterance string) (string, error)
}

// Email reads or sends mail as the utterance asks.
type Email interface {
	HandleEmail(ctx context.Context, utterance string) (string, error)
}

// News summarizes current headlines.
type News interface {
	Headlines(ctx context.Context, scope NewsScope) (string, error)
}

// Answerer produces an open-ended answer. llm.Generator satisfies it.
type Answerer interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Stopper interrupts speech playback. It must be safe to call when idle.
type Stopper interface {
	Stop()
}

// PreferenceWriter stores a user preference.
type PreferenceWriter interface {
	SetPreference(ctx context.Context, key, value string) error
}

// Providers bundles the capabilities the router dispatches to.
type Providers struct {
	Math     Math
	Code     CodeGen
	System   SystemActor
	Browser  Browser
	Database Database
	Email    Email
	News     News
	Answerer Answerer
	Speech   Stopper
	Prefs    PreferenceWriter
}

// UserNameKey is the preference key holding the user's display name.
const UserNameKey = "user_name"

// DefaultUserName is used when no name has been stored.
const DefaultUserName = "User"

type userNameKey struct{}

// WithUserName attaches the user's display name for prompt personalization.
func WithUserName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, userNameKey{}, name)
}

// UserName returns the name attached by WithUserName, or DefaultUserName.
func UserName(ctx context.Context) string {
	if name, ok := ctx.Value(userNameKey{}).(string); ok && name != "" {
		return name
	}
	return DefaultUserName
}
