// Package dispatch runs utterances through the router on background workers,
// records the outcome in memory and speaks the reply.
//
// Dispatch returns at once. The worker reports through the caller's Sink and
// always finishes with OnActivity(false), exactly once, whatever happened.
// Failures of memory or speech are logged and never reach the caller.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/krishhh001/A.L.I.A.S.---Advanced-Logical-Interface-and-Assistant-System/internal/bus"
	"github.com/krishhh001/A.L.I.A.S.---Advanced-Logical-Interface-and-Assistant-System/internal/config"
	"github.com/krishhh001/A.L.I.A.S.---Advanced-Logical-Interface-and-Assistant-System/internal/logging"
	"github.com/krishhh001/A.L.I.A.S.---Advanced-Logical-Interface-and-Assistant-System/internal/memory"
	"github.com/krishhh001/A.L.I.A.S.---Advanced-Logical-Interface-and-Assistant-System/internal/router"
	"github.com/krishhh001/A.L.I.A.S.---Advanced-Logical-Interface-and-Assistant-System/pkg/voice"
)

// ErrClosed is returned by Dispatch after Close.
var ErrClosed = errors.New("dispatcher closed")

const (
	defaultHistoryLimit = 5
	defaultContextTurns = 3
	storeTimeout        = 5 * time.Second
)

// Router answers an utterance. *router.Router satisfies it.
type Router interface {
	Route(ctx context.Context, utterance, contextPrefix string) (string, router.CommandType)
}

// Memory is the persistence the dispatcher needs. *memory.Store satisfies it.
type Memory interface {
	RecentTurns(ctx context.Context, sessionID string, limit int) ([]memory.Turn, error)
	AppendTurn(ctx context.Context, t memory.Turn) (int64, error)
	UpsertQueryMemory(ctx context.Context, query, response string, success bool) error
	GetPreference(ctx context.Context, key string) (string, bool, error)
	LookupSimilar(ctx context.Context, query string, limit int) ([]memory.QueryMemory, error)
}

// Speaker plays a response without blocking. *voice.Speaker satisfies it.
type Speaker interface {
	Speak(text string)
}

// Analyzer summarizes a document. *providers.DocumentReader satisfies it.
type Analyzer interface {
	Analyze(ctx context.Context, path string) (string, error)
}

// Config wires a Dispatcher.
type Config struct {
	Router   Router
	Memory   Memory
	Speaker  Speaker
	Analyzer Analyzer
	Settings *config.Settings
	Bus      *bus.Bus
	Logger   *logging.Logger

	// HistoryLimit is how many turns are fetched per dispatch. Zero means 5.
	HistoryLimit int
	// ContextTurns is how many of them are rendered into the prompt. Zero
	// means 3; it never exceeds HistoryLimit.
	ContextTurns int
	// DefaultSession is used when Dispatch is given an empty session id.
	DefaultSession string
}

// Options adjusts a single dispatch.
type Options struct {
	// Speak overrides the process-wide speech flag when non-nil.
	Speak *bool
}

// Dispatcher runs utterances on background workers.
type Dispatcher struct {
	cfg Config
	log *logging.Logger

	wg sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// New validates cfg and creates a Dispatcher.
func New(cfg Config) (*Dispatcher, error) {
	if cfg.Router == nil {
		return nil, errors.New("dispatch: router is required")
	}
	if cfg.Memory == nil {
		return nil, errors.New("dispatch: memory is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}
	if cfg.ContextTurns <= 0 {
		cfg.ContextTurns = defaultContextTurns
	}
	cfg.ContextTurns = min(cfg.ContextTurns, cfg.HistoryLimit)
	if cfg.DefaultSession == "" {
		cfg.DefaultSession = memory.DefaultSession
	}

	return &Dispatcher{
		cfg: cfg,
		log: cfg.Logger.WithComponent("dispatch"),
	}, nil
}

// Dispatch handles utterance on a new worker and returns its Task.
func (d *Dispatcher) Dispatch(utterance, sessionID string, sink Sink) (*Task, error) {
	return d.DispatchWith(utterance, sessionID, sink, Options{})
}

// DispatchWith is Dispatch with per-call options.
func (d *Dispatcher) DispatchWith(utterance, sessionID string, sink Sink, opts Options) (*Task, error) {
	task, err := d.start()
	if err != nil {
		return nil, err
	}
	if sessionID == "" {
		sessionID = d.cfg.DefaultSession
	}
	speak := d.speechEnabled(opts)

	go d.runUtterance(task, utterance, sessionID, callbacks{sink: sink, log: d.log}, speak)
	return task, nil
}

// AnalyzeFile summarizes the document at path on a new worker, reporting
// progress 10, 90 and 100.
func (d *Dispatcher) AnalyzeFile(path string, sink Sink) (*Task, error) {
	task, err := d.start()
	if err != nil {
		return nil, err
	}
	speak := d.speechEnabled(Options{})

	go d.runAnalysis(task, path, callbacks{sink: sink, log: d.log}, speak)
	return task, nil
}

// SimilarQueries returns remembered queries resembling query.
func (d *Dispatcher) SimilarQueries(ctx context.Context, query string, limit int) ([]memory.QueryMemory, error) {
	return d.cfg.Memory.LookupSimilar(ctx, query, limit)
}

// Wait blocks until every in-flight worker has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close rejects new work and waits for in-flight workers to finish. Running
// workers are never cancelled.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	d.wg.Wait()
	return nil
}

func (d *Dispatcher) start() (*Task, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	d.wg.Add(1)
	return newTask(uuid.NewString()), nil
}

func (d *Dispatcher) speechEnabled(opts Options) bool {
	if opts.Speak != nil {
		return *opts.Speak
	}
	if d.cfg.Settings == nil {
		return false
	}
	return d.cfg.Settings.SpeechEnabled()
}

func (d *Dispatcher) runUtterance(task *Task, utterance, sessionID string, cb callbacks, speak bool) {
	log := d.log.WithFields(map[string]interface{}{"request_id": task.ID, "session_id": sessionID})
	start := time.Now()

	defer close(task.done)
	defer d.wg.Done()
	defer cb.activity(false)
	defer func() {
		ev := d.event(bus.EventDispatchDone, task.ID, sessionID)
		ev.DurationMs = time.Since(start).Milliseconds()
		d.publish(ev)
	}()
	defer func() {
		if rec := recover(); rec != nil {
			msg := fmt.Sprintf("%v", rec)
			log.Error("worker panicked: %s", msg)
			task.setErr(msg)
			cb.error(msg)
			ev := d.event(bus.EventDispatchError, task.ID, sessionID)
			ev.Error = msg
			d.publish(ev)
		}
	}()

	cb.activity(true)
	ev := d.event(bus.EventDispatchStart, task.ID, sessionID)
	ev.Utterance = utterance
	d.publish(ev)

	ctx := context.Background()
	prefix := d.recentContext(ctx, sessionID, log)
	ctx = router.WithUserName(ctx, d.userName(ctx, log))

	text, label := d.cfg.Router.Route(ctx, utterance, prefix)
	if text != "" {
		text = voice.Clean(text)
	}
	historyLabel := HistoryLabel(utterance)
	log.Debug("routed as %s, stored as %s", label, historyLabel)

	task.setResult(text, label)
	cb.result(text)

	ev = d.event(bus.EventDispatchResult, task.ID, sessionID)
	ev.Utterance = utterance
	ev.CommandType = label.String()
	ev.Content = text
	d.publish(ev)

	if text == "" {
		return
	}
	d.remember(ctx, utterance, text, historyLabel, sessionID, log)
	if speak && d.cfg.Speaker != nil {
		d.cfg.Speaker.Speak(text)
	}
}

func (d *Dispatcher) recentContext(ctx context.Context, sessionID string, log *logging.Logger) string {
	turns, err := d.cfg.Memory.RecentTurns(ctx, sessionID, d.cfg.HistoryLimit)
	if err != nil {
		log.Warn("load recent turns: %v", err)
		return ""
	}
	return FormatContext(turns, d.cfg.ContextTurns)
}

func (d *Dispatcher) userName(ctx context.Context, log *logging.Logger) string {
	name, ok, err := d.cfg.Memory.GetPreference(ctx, router.UserNameKey)
	if err != nil {
		log.Warn("load user name: %v", err)
		return router.DefaultUserName
	}
	if !ok || strings.TrimSpace(name) == "" {
		return router.DefaultUserName
	}
	return name
}

func (d *Dispatcher) remember(ctx context.Context, utterance, text string, label router.CommandType, sessionID string, log *logging.Logger) {
	ctx, cancel := logging.DetachContextWithTimeout(ctx, storeTimeout)
	defer cancel()

	_, err := d.cfg.Memory.AppendTurn(ctx, memory.Turn{
		UserMessage:       utterance,
		AssistantResponse: text,
		CommandType:       label.String(),
		SessionID:         sessionID,
	})
	if err != nil {
		log.Warn("save turn: %v", err)
		return
	}
	// TODO: record real outcomes once replies can be rated; every answered
	// query currently counts as a success.
	if err := d.cfg.Memory.UpsertQueryMemory(ctx, utterance, text, true); err != nil {
		log.Warn("update query memory: %v", err)
	}
}

func (d *Dispatcher) runAnalysis(task *Task, path string, cb callbacks, speak bool) {
	log := d.log.WithFields(map[string]interface{}{"request_id": task.ID, "file": path})
	start := time.Now()
	defer log.Trace("analyze")()

	defer close(task.done)
	defer d.wg.Done()
	defer cb.activity(false)
	defer cb.progress(100)
	defer func() {
		ev := d.event(bus.EventDispatchDone, task.ID, "")
		ev.DurationMs = time.Since(start).Milliseconds()
		d.publish(ev)
	}()
	defer func() {
		if rec := recover(); rec != nil {
			msg := fmt.Sprintf("%v", rec)
			log.Error("analysis panicked: %s", msg)
			d.fail(task, cb, msg)
		}
	}()

	cb.activity(true)
	ev := d.event(bus.EventDispatchStart, task.ID, "")
	ev.Utterance = path
	d.publish(ev)

	cb.progress(10)
	d.progress(task.ID, 10)

	if d.cfg.Analyzer == nil {
		d.fail(task, cb, router.ErrNotConfigured.Error())
		return
	}
	summary, err := d.cfg.Analyzer.Analyze(context.Background(), path)
	if err != nil {
		log.Warn("analyze: %v", err)
		d.fail(task, cb, err.Error())
		return
	}

	cb.progress(90)
	d.progress(task.ID, 90)

	task.setResult(summary, router.CommandGeneral)
	cb.result(summary)
	ev = d.event(bus.EventDispatchResult, task.ID, "")
	ev.Content = summary
	d.publish(ev)

	if summary != "" && speak && d.cfg.Speaker != nil {
		d.cfg.Speaker.Speak(voice.Clean(summary))
	}
}

func (d *Dispatcher) fail(task *Task, cb callbacks, msg string) {
	task.setErr(msg)
	cb.error(msg)
	ev := d.event(bus.EventDispatchError, task.ID, "")
	ev.Error = msg
	d.publish(ev)
}

func (d *Dispatcher) progress(requestID string, percent int) {
	ev := d.event(bus.EventDispatchProgress, requestID, "")
	ev.Progress = percent
	d.publish(ev)
}

func (d *Dispatcher) event(t bus.EventType, requestID, sessionID string) bus.Event {
	ev := bus.NewEvent(t)
	ev.RequestID = requestID
	ev.SessionID = sessionID
	return ev
}

func (d *Dispatcher) publish(ev bus.Event) {
	if d.cfg.Bus == nil {
		return
	}
	if err := d.cfg.Bus.Publish(ev); err != nil && !errors.Is(err, bus.ErrClosed) {
		d.log.Warn("publish %s: %v", ev.Type, err)
	}
}
