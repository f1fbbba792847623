package dispatch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/krishhh001/A.L.I.A.S.---Advanced-Logical-Interface-and-Assistant-System/internal/bus"
	"github.com/krishhh001/A.L.I.A.S.---Advanced-Logical-Interface-and-Assistant-System/internal/config"
	"github.com/krishhh001/A.L.I.A.S.---Advanced-Logical-Interface-and-Assistant-System/internal/memory"
	"github.com/krishhh001/A.L.I.A.S.---Advanced-Logical-Interface-and-Assistant-System/internal/router"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// ─────────────────────────────────────────────────────────────────────────────
// Fakes
// ─────────────────────────────────────────────────────────────────────────────

type recordingSink struct {
	mu       sync.Mutex
	activity []bool
	results  []string
	errors   []string
	progress []int
}

func (r *recordingSink) Sink() Sink {
	return Sink{
		OnActivity: func(a bool) { r.mu.Lock(); r.activity = append(r.activity, a); r.mu.Unlock() },
		OnResult:   func(s string) { r.mu.Lock(); r.results = append(r.results, s); r.mu.Unlock() },
		OnError:    func(s string) { r.mu.Lock(); r.errors = append(r.errors, s); r.mu.Unlock() },
		OnProgress: func(p int) { r.mu.Lock(); r.progress = append(r.progress, p); r.mu.Unlock() },
	}
}

func (r *recordingSink) snapshot() recordingSink {
	r.mu.Lock()
	defer r.mu.Unlock()
	return recordingSink{
		activity: append([]bool(nil), r.activity...),
		results:  append([]string(nil), r.results...),
		errors:   append([]string(nil), r.errors...),
		progress: append([]int(nil), r.progress...),
	}
}

type fakeSpeaker struct {
	mu     sync.Mutex
	spoken []string
}

func (f *fakeSpeaker) Speak(text string) {
	f.mu.Lock()
	f.spoken = append(f.spoken, text)
	f.mu.Unlock()
}

func (f *fakeSpeaker) Spoken() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.spoken...)
}

type fakeStopper struct {
	mu    sync.Mutex
	stops int
}

func (f *fakeStopper) Stop() {
	f.mu.Lock()
	f.stops++
	f.mu.Unlock()
}

type mathFunc func(ctx context.Context, u string) (string, error)

func (f mathFunc) Solve(ctx context.Context, u string) (string, error) { return f(ctx, u) }

// answerer records prompts and the user name seen in the context.
type answerer struct {
	mu      sync.Mutex
	prompts []string
	names   []string
	reply   string
}

func (a *answerer) Generate(ctx context.Context, prompt string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.prompts = append(a.prompts, prompt)
	a.names = append(a.names, router.UserName(ctx))
	return a.reply, nil
}

// slowAnswerer blocks until released.
type slowAnswerer struct {
	entered chan struct{}
	release chan struct{}
}

func (s *slowAnswerer) Generate(ctx context.Context, prompt string) (string, error) {
	close(s.entered)
	<-s.release
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "once upon a time", nil
}

type panicRouter struct{}

func (panicRouter) Route(context.Context, string, string) (string, router.CommandType) {
	panic("router exploded")
}

// failingMemory wraps a store and fails every write.
type failingMemory struct {
	*memory.Store
}

func (failingMemory) AppendTurn(context.Context, memory.Turn) (int64, error) {
	return 0, errors.New("disk full")
}

func (failingMemory) UpsertQueryMemory(context.Context, string, string, bool) error {
	return errors.New("disk full")
}

type fakeAnalyzer struct {
	summary string
	err     error
}

func (f fakeAnalyzer) Analyze(context.Context, string) (string, error) {
	return f.summary, f.err
}

// ─────────────────────────────────────────────────────────────────────────────
// Harness
// ─────────────────────────────────────────────────────────────────────────────

type harness struct {
	d        *Dispatcher
	store    *memory.Store
	speaker  *fakeSpeaker
	stopper  *fakeStopper
	answerer *answerer
	settings *config.Settings
}

func newHarness(t *testing.T, p router.Providers, mutate ...func(*Config)) *harness {
	t.Helper()
	store, err := memory.Open(filepath.Join(t.TempDir(), "alias.db"))
	require.NoError(t, err)

	h := &harness{
		store:    store,
		speaker:  &fakeSpeaker{},
		stopper:  &fakeStopper{},
		answerer: &answerer{reply: "general answer"},
	}
	cfg := config.Default()
	cfg.Speech.Enabled = false
	h.settings = config.NewSettings(cfg)

	if p.Answerer == nil {
		p.Answerer = h.answerer
	}
	p.Speech = h.stopper
	p.Prefs = store

	dc := Config{
		Router:       router.New(p),
		Memory:       store,
		Speaker:      h.speaker,
		Settings:     h.settings,
		HistoryLimit: 5,
		ContextTurns: 3,
	}
	for _, m := range mutate {
		m(&dc)
	}
	h.d, err = New(dc)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = h.d.Close()
		_ = store.Close()
	})
	return h
}

func (h *harness) run(t *testing.T, utterance string) (*Task, recordingSink) {
	t.Helper()
	rec := &recordingSink{}
	task, err := h.d.Dispatch(utterance, "", rec.Sink())
	require.NoError(t, err)
	task.Wait()
	return task, rec.snapshot()
}

// ─────────────────────────────────────────────────────────────────────────────
// Tests
// ─────────────────────────────────────────────────────────────────────────────

func TestDispatchRequiresRouterAndMemory(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
	_, err = New(Config{Router: panicRouter{}})
	assert.Error(t, err)
}

func TestRepeatedQueryIsLearned(t *testing.T) {
	h := newHarness(t, router.Providers{
		Math: mathFunc(func(context.Context, string) (string, error) { return "The answer is 4", nil }),
	})

	for i := 0; i < 2; i++ {
		_, rec := h.run(t, "solve 2+2")
		assert.Equal(t, []string{"The answer is 4"}, rec.results)
	}

	qm, err := h.store.GetQueryMemory(context.Background(), "solve 2+2")
	require.NoError(t, err)
	assert.Equal(t, 2, qm.Frequency)
	assert.InDelta(t, 1.0, qm.SuccessRate, 1e-9)

	turns, err := h.store.RecentTurns(context.Background(), memory.DefaultSession, 10)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "math", turns[0].CommandType)
}

func TestStopTalkingPersistsNothing(t *testing.T) {
	h := newHarness(t, router.Providers{})

	_, rec := h.run(t, "stop talking")

	assert.Equal(t, []string{""}, rec.results)
	assert.Equal(t, []bool{true, false}, rec.activity)
	assert.Equal(t, 1, h.stopper.stops)

	turns, err := h.store.RecentTurns(context.Background(), memory.DefaultSession, 10)
	require.NoError(t, err)
	assert.Empty(t, turns)
	_, err = h.store.GetQueryMemory(context.Background(), "stop talking")
	assert.ErrorIs(t, err, memory.ErrNotFound)
}

func TestMathFailureIsLabelled(t *testing.T) {
	h := newHarness(t, router.Providers{
		Math: mathFunc(func(context.Context, string) (string, error) { return "", errors.New("bad expression") }),
	})

	task, rec := h.run(t, "calculate 1/")

	require.Len(t, rec.results, 1)
	assert.Equal(t, "Math error: bad expression", rec.results[0])
	assert.Equal(t, []bool{true, false}, rec.activity)
	assert.Empty(t, rec.errors)

	text, label := task.Result()
	assert.Equal(t, "Math error: bad expression", text)
	assert.Equal(t, router.CommandMath, label)
}

func TestDigitAndEmailGoesToMath(t *testing.T) {
	var solved []string
	h := newHarness(t, router.Providers{
		Math: mathFunc(func(_ context.Context, u string) (string, error) {
			solved = append(solved, u)
			return "The answer is 3", nil
		}),
	})

	_, rec := h.run(t, "email me 3 reminders")
	assert.Equal(t, []string{"The answer is 3"}, rec.results)
	assert.Equal(t, []string{"email me 3 reminders"}, solved)
}

func TestContextReachesGenericAnswerer(t *testing.T) {
	h := newHarness(t, router.Providers{})
	ctx := context.Background()
	for i := 1; i <= 4; i++ {
		_, err := h.store.AppendTurn(ctx, memory.Turn{
			UserMessage:       fmt.Sprintf("q%d", i),
			AssistantResponse: fmt.Sprintf("a%d", i),
		})
		require.NoError(t, err)
	}

	_, rec := h.run(t, "tell me a joke")
	assert.Equal(t, []string{"general answer"}, rec.results)

	want := "Recent conversation context:\n" +
		"User: q2\nAssistant: a2\n" +
		"User: q3\nAssistant: a3\n" +
		"User: q4\nAssistant: a4\n" +
		"\nCurrent query: tell me a joke"
	require.Len(t, h.answerer.prompts, 1)
	assert.Equal(t, want, h.answerer.prompts[0])
}

func TestZeroConfigRendersContext(t *testing.T) {
	store, err := memory.Open(filepath.Join(t.TempDir(), "alias.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ans := &answerer{reply: "general answer"}
	d, err := New(Config{Router: router.New(router.Providers{Answerer: ans}), Memory: store})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	ctx := context.Background()
	for i := 1; i <= 2; i++ {
		_, err := store.AppendTurn(ctx, memory.Turn{
			UserMessage:       fmt.Sprintf("q%d", i),
			AssistantResponse: fmt.Sprintf("a%d", i),
		})
		require.NoError(t, err)
	}

	task, err := d.Dispatch("tell me a joke", "", Sink{})
	require.NoError(t, err)
	task.Wait()

	want := "Recent conversation context:\n" +
		"User: q1\nAssistant: a1\n" +
		"User: q2\nAssistant: a2\n" +
		"\nCurrent query: tell me a joke"
	require.Len(t, ans.prompts, 1)
	assert.Equal(t, want, ans.prompts[0])
}

func TestSessionsAreIsolated(t *testing.T) {
	h := newHarness(t, router.Providers{})
	_, err := h.store.AppendTurn(context.Background(), memory.Turn{
		UserMessage: "hi", AssistantResponse: "hello", SessionID: "other",
	})
	require.NoError(t, err)

	_, rec := h.run(t, "how are you")
	assert.Equal(t, []string{"general answer"}, rec.results)
	assert.Equal(t, []string{"how are you"}, h.answerer.prompts)
}

func TestUserNameFlowsToProviders(t *testing.T) {
	h := newHarness(t, router.Providers{})

	_, rec := h.run(t, "My name is Ada")
	require.Len(t, rec.results, 1)
	assert.Contains(t, rec.results[0], "Nice to meet you, Ada!")

	name, ok, err := h.store.GetPreference(context.Background(), router.UserNameKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Ada", name)

	h.run(t, "what's the weather like")
	require.NotEmpty(t, h.answerer.names)
	assert.Equal(t, "Ada", h.answerer.names[len(h.answerer.names)-1])
}

func TestIdentityAfterIntroductionIsNotPersonalized(t *testing.T) {
	h := newHarness(t, router.Providers{})

	_, rec := h.run(t, "my name is Ada")
	require.Len(t, rec.results, 1)
	assert.Contains(t, rec.results[0], "Ada")

	name, ok, err := h.store.GetPreference(context.Background(), router.UserNameKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Ada", name)

	task, rec := h.run(t, "who are you")
	assert.Equal(t, []string{router.IdentityResponse}, rec.results)
	assert.NotContains(t, rec.results[0], "Ada")
	_, label := task.Result()
	assert.Equal(t, router.CommandIdentity, label)
	assert.Empty(t, h.answerer.prompts, "neither utterance reaches the generic answerer")
}

func TestIdentityNeedsNoProvider(t *testing.T) {
	h := newHarness(t, router.Providers{})

	_, rec := h.run(t, "Who are you?")
	assert.Equal(t, []string{router.IdentityResponse}, rec.results)
	assert.Empty(t, h.answerer.prompts)
}

func TestResponseIsNormalized(t *testing.T) {
	h := newHarness(t, router.Providers{})
	h.answerer.reply = "## Title\n**Bold**   and [a link](http://example.com)"

	_, rec := h.run(t, "describe something")
	assert.Equal(t, []string{"Title Bold and a link"}, rec.results)

	turns, err := h.store.RecentTurns(context.Background(), memory.DefaultSession, 1)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "Title Bold and a link", turns[0].AssistantResponse)
}

func TestSpeechFollowsSettings(t *testing.T) {
	h := newHarness(t, router.Providers{})

	h.run(t, "first question")
	assert.Empty(t, h.speaker.Spoken())

	h.settings.SetSpeechEnabled(true)
	h.run(t, "second question")
	assert.Equal(t, []string{"general answer"}, h.speaker.Spoken())

	off := false
	rec := &recordingSink{}
	task, err := h.d.DispatchWith("third question", "", rec.Sink(), Options{Speak: &off})
	require.NoError(t, err)
	task.Wait()
	assert.Len(t, h.speaker.Spoken(), 1)
}

func TestStoreFailuresAreSwallowed(t *testing.T) {
	h := newHarness(t, router.Providers{}, func(c *Config) {
		c.Memory = failingMemory{c.Memory.(*memory.Store)}
	})

	_, rec := h.run(t, "hello there")
	assert.Equal(t, []string{"general answer"}, rec.results)
	assert.Empty(t, rec.errors)
	assert.Equal(t, []bool{true, false}, rec.activity)
}

func TestWorkerPanicIsReported(t *testing.T) {
	h := newHarness(t, router.Providers{}, func(c *Config) { c.Router = panicRouter{} })

	task, rec := h.run(t, "anything")
	assert.Equal(t, []string{"router exploded"}, rec.errors)
	assert.Empty(t, rec.results)
	assert.Equal(t, []bool{true, false}, rec.activity)
	assert.Equal(t, "router exploded", task.Err())

	turns, err := h.store.RecentTurns(context.Background(), memory.DefaultSession, 10)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestPanickingCallbackDoesNotKillWorker(t *testing.T) {
	h := newHarness(t, router.Providers{})

	task, err := h.d.Dispatch("hello", "", Sink{OnResult: func(string) { panic("ui gone") }})
	require.NoError(t, err)
	task.Wait()

	turns, err := h.store.RecentTurns(context.Background(), memory.DefaultSession, 10)
	require.NoError(t, err)
	assert.Len(t, turns, 1)
}

func TestConcurrentDispatches(t *testing.T) {
	h := newHarness(t, router.Providers{})

	const n = 12
	for i := 0; i < n; i++ {
		_, err := h.d.Dispatch(fmt.Sprintf("question %d", i), "", Sink{})
		require.NoError(t, err)
	}
	h.d.Wait()

	turns, err := h.store.RecentTurns(context.Background(), memory.DefaultSession, 50)
	require.NoError(t, err)
	assert.Len(t, turns, n)
}

func TestAnalyzeFileProgress(t *testing.T) {
	h := newHarness(t, router.Providers{}, func(c *Config) {
		c.Analyzer = fakeAnalyzer{summary: "Key points"}
	})

	rec := &recordingSink{}
	task, err := h.d.AnalyzeFile("/tmp/report.pdf", rec.Sink())
	require.NoError(t, err)
	task.Wait()

	got := rec.snapshot()
	assert.Equal(t, []int{10, 90, 100}, got.progress)
	assert.Equal(t, []string{"Key points"}, got.results)
	assert.Equal(t, []bool{true, false}, got.activity)
}

func TestAnalyzeFileFailure(t *testing.T) {
	h := newHarness(t, router.Providers{}, func(c *Config) {
		c.Analyzer = fakeAnalyzer{err: errors.New("unsupported document type")}
	})

	rec := &recordingSink{}
	task, err := h.d.AnalyzeFile("/tmp/image.png", rec.Sink())
	require.NoError(t, err)
	task.Wait()

	got := rec.snapshot()
	assert.Equal(t, []int{10, 100}, got.progress)
	assert.Equal(t, []string{"unsupported document type"}, got.errors)
	assert.Empty(t, got.results)
	assert.Equal(t, []bool{true, false}, got.activity)
}

func TestLifecycleEventsArePublished(t *testing.T) {
	b := bus.NewWithHistory(16)
	defer b.Close()
	h := newHarness(t, router.Providers{}, func(c *Config) { c.Bus = b })

	task, _ := h.run(t, "hello")

	events := b.History(0)
	require.Len(t, events, 3)
	assert.Equal(t, bus.EventDispatchStart, events[0].Type)
	assert.Equal(t, bus.EventDispatchResult, events[1].Type)
	assert.Equal(t, "general answer", events[1].Content)
	assert.Equal(t, "general", events[1].CommandType)
	assert.Equal(t, bus.EventDispatchDone, events[2].Type)
	for _, ev := range events {
		assert.Equal(t, task.ID, ev.RequestID)
		assert.Equal(t, memory.DefaultSession, ev.SessionID)
	}
}

func TestSimilarQueries(t *testing.T) {
	h := newHarness(t, router.Providers{})
	h.run(t, "weather in paris")

	similar, err := h.d.SimilarQueries(context.Background(), "paris", 5)
	require.NoError(t, err)
	require.Len(t, similar, 1)
	assert.Equal(t, "weather in paris", similar[0].Query)
}

func TestCloseLetsRunningWorkerFinish(t *testing.T) {
	slow := &slowAnswerer{entered: make(chan struct{}), release: make(chan struct{})}
	h := newHarness(t, router.Providers{Answerer: slow})

	rec := &recordingSink{}
	task, err := h.d.Dispatch("tell me a story", "", rec.Sink())
	require.NoError(t, err)
	<-slow.entered

	closed := make(chan error, 1)
	go func() { closed <- h.d.Close() }()

	select {
	case <-closed:
		t.Fatal("Close returned while a worker was still answering")
	case <-time.After(50 * time.Millisecond):
	}

	close(slow.release)
	require.NoError(t, <-closed)
	task.Wait()

	got := rec.snapshot()
	assert.Equal(t, []string{"once upon a time"}, got.results)
	assert.Equal(t, []bool{true, false}, got.activity)

	turns, err := h.store.RecentTurns(context.Background(), memory.DefaultSession, 10)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "once upon a time", turns[0].AssistantResponse)

	qm, err := h.store.GetQueryMemory(context.Background(), "tell me a story")
	require.NoError(t, err)
	assert.Equal(t, "once upon a time", qm.Response)
}

func TestCloseRejectsNewWork(t *testing.T) {
	h := newHarness(t, router.Providers{})
	require.NoError(t, h.d.Close())
	require.NoError(t, h.d.Close())

	_, err := h.d.Dispatch("hello", "", Sink{})
	assert.ErrorIs(t, err, ErrClosed)
	_, err = h.d.AnalyzeFile("x.txt", Sink{})
	assert.ErrorIs(t, err, ErrClosed)
}
