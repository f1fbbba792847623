package router

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder implements every capability and records which one was called.
type recorder struct {
	mu      sync.Mutex
	calls   []string
	urls    []string
	prompts []string
	prefs   map[string]string
	scope   NewsScope
	stopped int

	err      error
	panicMsg string
}

func newRecorder() *recorder {
	return &recorder{prefs: map[string]string{}}
}

func (r *recorder) record(name string) error {
	r.mu.Lock()
	r.calls = append(r.calls, name)
	r.mu.Unlock()
	if r.panicMsg != "" {
		panic(r.panicMsg)
	}
	return r.err
}

func (r *recorder) Solve(ctx context.Context, u string) (string, error) {
	if err := r.record("math"); err != nil {
		return "", err
	}
	return "The answer is 4", nil
}

func (r *recorder) GenerateCode(ctx context.Context, u string) (string, error) {
	return "print('hi')", r.record("code")
}

func (r *recorder) Execute(ctx context.Context, u string) error { return r.record("system") }

func (r *recorder) OpenURL(u string) error {
	r.mu.Lock()
	r.urls = append(r.urls, u)
	r.mu.Unlock()
	return r.record("browser")
}

func (r *recorder) Exec(ctx context.Context, u string) (string, error) {
	return "1 row(s) affected", r.record("sql_exec")
}

func (r *recorder) Translate(ctx context.Context, u string) (string, error) {
	return "1 row(s) affected", r.record("sql_translate")
}

func (r *recorder) HandleEmail(ctx context.Context, u string) (string, error) {
	return "No new mail", r.record("email")
}

func (r *recorder) Headlines(ctx context.Context, scope NewsScope) (string, error) {
	r.mu.Lock()
	r.scope = scope
	r.mu.Unlock()
	return "- headline", r.record("news")
}

func (r *recorder) Generate(ctx context.Context, prompt string) (string, error) {
	r.mu.Lock()
	r.prompts = append(r.prompts, prompt)
	r.mu.Unlock()
	return "generic answer", r.record("answer")
}

func (r *recorder) Stop() {
	r.mu.Lock()
	r.stopped++
	r.mu.Unlock()
}

func (r *recorder) SetPreference(ctx context.Context, key, value string) error {
	r.mu.Lock()
	r.prefs[key] = value
	r.mu.Unlock()
	return nil
}

func (r *recorder) providers() Providers {
	return Providers{
		Math: r, Code: r, System: r, Browser: r, Database: r,
		Email: r, News: r, Answerer: r, Speech: r, Prefs: r,
	}
}

func TestRoutePriority(t *testing.T) {
	tests := []struct {
		utterance string
		label     CommandType
		call      string
	}{
		{"stop talking", CommandVoiceControl, ""},
		{"  Be Quiet ", CommandVoiceControl, ""},
		{"open youtube lofi beats", CommandWeb, "browser"},
		{"open chrome and search golang", CommandWeb, "browser"},
		{"open notepad", CommandSystem, "system"},
		{"mute", CommandSystem, "system"},
		{"turn the volume up", CommandSystem, "system"},
		{"solve x plus two", CommandMath, "math"},
		{"what is 2+2", CommandMath, "math"},
		{"calculate my email total", CommandMath, "math"},
		{"email me 3 reminders", CommandMath, "math"},
		{"write code for a calculator", CommandCode, "code"},
		{"run query select * from users", CommandDatabase, "sql_exec"},
		{"show mysql tables", CommandDatabase, "sql_exec"},
		{"list the database users", CommandDatabase, "sql_translate"},
		{"create a database for students", CommandDatabase, "sql_translate"},
		{"check my inbox", CommandEmail, "email"},
		{"read my email", CommandEmail, "email"},
		{"latest news", CommandNews, "news"},
		{"who are you?", CommandIdentity, ""},
		{"What's Your Name", CommandIdentity, ""},
		{"my name is Ada", CommandIdentity, ""},
		{"tell me a joke", CommandGeneral, "answer"},
	}

	for _, tt := range tests {
		t.Run(tt.utterance, func(t *testing.T) {
			rec := newRecorder()
			r := New(rec.providers())

			_, label := r.Route(context.Background(), tt.utterance, "")
			assert.Equal(t, tt.label, label)
			assert.Equal(t, tt.label, r.Classify(tt.utterance), "Classify must agree with Route")

			var want []string
			if tt.call != "" {
				want = []string{tt.call}
			}
			if diff := cmp.Diff(want, rec.calls); diff != "" {
				t.Errorf("capability calls mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDigitAndEmailIsAlwaysMath(t *testing.T) {
	r := New(newRecorder().providers())
	for _, u := range []string{"email 1", "send 5 emails", "inbox has 10 items", "EMAIL9"} {
		assert.Equal(t, CommandMath, r.Classify(u), u)
	}
}

func TestStopPhraseStopsSpeech(t *testing.T) {
	rec := newRecorder()
	r := New(rec.providers())

	out, label := r.Route(context.Background(), "stop talking", "some context")
	assert.Empty(t, out)
	assert.Equal(t, CommandVoiceControl, label)
	assert.Equal(t, 1, rec.stopped)

	// Only exact phrases interrupt.
	assert.NotEqual(t, CommandVoiceControl, r.Classify("please stop the music"))
}

func TestBrowserURLs(t *testing.T) {
	tests := []struct {
		utterance string
		url       string
		reply     string
	}{
		{"open youtube", "https://www.youtube.com/", "Opened YouTube"},
		{"Open YouTube Lofi Beats", "https://www.youtube.com/results?search_query=lofi+beats", "Opened YouTube: lofi beats"},
		{"open chrome", "https://www.google.com", "Opened Chrome"},
		{"open chrome and search go generics", "https://www.google.com/search?q=go+generics", "Opened Chrome search: go generics"},
		{"open chrome & search r&d", "https://www.google.com/search?q=r%26d", "Opened Chrome search: r&d"},
		{"open chrome and search", "https://www.google.com", "Opened Chrome"},
	}

	for _, tt := range tests {
		t.Run(tt.utterance, func(t *testing.T) {
			rec := newRecorder()
			r := New(rec.providers())
			out, _ := r.Route(context.Background(), tt.utterance, "")
			assert.Equal(t, tt.reply, out)
			assert.Equal(t, []string{tt.url}, rec.urls)
		})
	}
}

func TestSystemConfirmation(t *testing.T) {
	r := New(newRecorder().providers())
	out, _ := r.Route(context.Background(), "close Notepad", "")
	assert.Equal(t, "Executed system command: close Notepad", out)
}

func TestHandlerErrorsArePrefixed(t *testing.T) {
	tests := []struct {
		utterance string
		prefix    string
	}{
		{"open youtube cats", "Failed to open browser: "},
		{"open notepad", "System command error: "},
		{"solve 2+2", "Math error: "},
		{"write a program", "Code generation error: "},
		{"run query select name from users", "Database error: "},
		{"sql for all users", "SQL translation error: "},
		{"check inbox", "Email error: "},
		{"world news", "News error: "},
		{"tell me a joke", "AI query error: "},
	}

	for _, tt := range tests {
		t.Run(tt.utterance, func(t *testing.T) {
			rec := newRecorder()
			rec.err = errors.New("boom")
			r := New(rec.providers())

			out, _ := r.Route(context.Background(), tt.utterance, "")
			assert.Equal(t, tt.prefix+"boom", out)
		})
	}
}

func TestHandlerPanicIsContained(t *testing.T) {
	rec := newRecorder()
	rec.panicMsg = "division by zero"
	r := New(rec.providers())

	var out string
	require.NotPanics(t, func() {
		out, _ = r.Route(context.Background(), "solve 1/0", "")
	})
	assert.Equal(t, "Math error: division by zero", out)

	stats := r.Stats()
	assert.Equal(t, int64(1), stats.Panics)
	assert.Equal(t, int64(1), stats.HandlerErrors)
}

func TestMissingCapability(t *testing.T) {
	r := New(Providers{})
	out, label := r.Route(context.Background(), "solve 2+2", "")
	assert.Equal(t, CommandMath, label)
	assert.Equal(t, "Math error: "+ErrNotConfigured.Error(), out)

	out, _ = r.Route(context.Background(), "stop", "")
	assert.Empty(t, out, "stop without a speaker is still a no-op")
}

func TestNewsScope(t *testing.T) {
	tests := map[string]NewsScope{
		"national news":      NewsNational,
		"news from india":    NewsNational,
		"local news please":  NewsNational,
		"news":               NewsInternational,
		"international news": NewsNational, // contains "national"
		"World News":         NewsInternational,
	}
	for utterance, scope := range tests {
		t.Run(utterance, func(t *testing.T) {
			rec := newRecorder()
			r := New(rec.providers())
			r.Route(context.Background(), utterance, "")
			assert.Equal(t, scope, rec.scope)
		})
	}
}

func TestIdentityDoesNotCallProviders(t *testing.T) {
	rec := newRecorder()
	r := New(rec.providers())

	for _, u := range []string{"who are you", "what is your name?", "Tell me your name", "what's your name?"} {
		out, label := r.Route(context.Background(), u, "Recent conversation context:\n")
		assert.Equal(t, IdentityResponse, out)
		assert.Equal(t, CommandIdentity, label)
	}
	assert.Empty(t, rec.calls)
	assert.Empty(t, rec.prefs)
}

func TestNameIntroduction(t *testing.T) {
	tests := []struct {
		utterance string
		name      string
	}{
		{"my name is Ada", "Ada"},
		{"My Name Is Ada Lovelace", "Ada Lovelace"},
		{"call me Grace", "Grace"},
		{"I am Linus", "Linus"},
		{"  i am   Ken  ", "Ken"},
	}

	for _, tt := range tests {
		t.Run(tt.utterance, func(t *testing.T) {
			rec := newRecorder()
			r := New(rec.providers())

			out, _ := r.Route(context.Background(), tt.utterance, "")
			assert.Equal(t, tt.name, rec.prefs[UserNameKey])
			assert.True(t, strings.HasPrefix(out, "Nice to meet you, "+tt.name+"!"), out)
			assert.Empty(t, rec.prompts, "introductions never reach the generic answerer")
		})
	}
}

func TestContextOnlyReachesGenericAnswerer(t *testing.T) {
	rec := newRecorder()
	r := New(rec.providers())
	prefix := "Recent conversation context:\nUser: open notepad\nAssistant: done\n\nCurrent query: "

	_, label := r.Route(context.Background(), "tell me a joke", prefix)
	assert.Equal(t, CommandGeneral, label, "history keywords must not influence routing")
	require.Len(t, rec.prompts, 1)
	assert.Equal(t, prefix+"tell me a joke", rec.prompts[0])

	r.Route(context.Background(), "tell me another", "")
	assert.Equal(t, "tell me another", rec.prompts[1])
}

func TestRulesArePredicatesInPriorityOrder(t *testing.T) {
	r := New(Providers{})
	rules := r.Rules()

	var labels []CommandType
	for _, rule := range rules {
		labels = append(labels, rule.Label)
	}
	want := []CommandType{
		CommandVoiceControl, CommandWeb, CommandSystem, CommandMath, CommandCode,
		CommandDatabase, CommandDatabase, CommandEmail, CommandNews, CommandIdentity, CommandIdentity,
	}
	if diff := cmp.Diff(want, labels); diff != "" {
		t.Errorf("rule order mismatch (-want +got):\n%s", diff)
	}

	// Each predicate is testable on its own.
	math := rules[3]
	assert.True(t, math.Match("7"))
	assert.True(t, math.Match("please calculate"))
	assert.False(t, math.Match("hello"))
}

func TestStatsAndReset(t *testing.T) {
	r := New(newRecorder().providers())
	r.Route(context.Background(), "solve 1+1", "")
	r.Route(context.Background(), "tell me a joke", "")
	r.Route(context.Background(), "what is 3*3", "")

	stats := r.Stats()
	assert.Equal(t, int64(3), stats.TotalRequests)
	assert.Equal(t, int64(2), stats.ByLabel[CommandMath])
	assert.Equal(t, int64(1), stats.ByLabel[CommandGeneral])

	r.ResetStats()
	assert.Zero(t, r.Stats().TotalRequests)
}

func TestCommandTypeValidity(t *testing.T) {
	for _, c := range AllCommandTypes() {
		assert.True(t, c.IsValid(), c.String())
	}
	assert.False(t, CommandType("weather").IsValid())
}

func TestUserNameContext(t *testing.T) {
	assert.Equal(t, DefaultUserName, UserName(context.Background()))
	assert.Equal(t, "Ada", UserName(WithUserName(context.Background(), "Ada")))
	assert.Equal(t, DefaultUserName, UserName(WithUserName(context.Background(), "")))
}
