package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"voice-order-logger/internal/engine"
	"voice-order-logger/internal/models"
)

// fakeEngine is a hand-driven engine instance.
type fakeEngine struct {
	mu      sync.Mutex
	cb      engine.Callback
	started bool
	stopped bool
	endOnce sync.Once
}

func (f *fakeEngine) Start(ctx context.Context, cb engine.Callback) error {
	f.mu.Lock()
	f.cb = cb
	f.started = true
	f.mu.Unlock()
	cb.OnStart()
	return nil
}

func (f *fakeEngine) Stop() {
	f.mu.Lock()
	f.stopped = true
	cb := f.cb
	f.mu.Unlock()
	if cb != nil {
		f.endOnce.Do(cb.OnEnd)
	}
}

func (f *fakeEngine) emitResult(fragments ...models.Fragment) {
	f.mu.Lock()
	cb := f.cb
	f.mu.Unlock()
	cb.OnResult(fragments)
}

func (f *fakeEngine) emitFinal(text string) {
	f.emitResult(models.Fragment{Text: text, Final: true})
}

func (f *fakeEngine) emitError(err error) {
	f.mu.Lock()
	cb := f.cb
	f.mu.Unlock()
	cb.OnError(err)
}

func (f *fakeEngine) emitEnd() {
	f.mu.Lock()
	cb := f.cb
	f.mu.Unlock()
	f.endOnce.Do(cb.OnEnd)
}

func (f *fakeEngine) isStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

// fakeFactory hands out fresh fake engines and remembers them.
type fakeFactory struct {
	mu      sync.Mutex
	engines []*fakeEngine
	err     error
}

func (f *fakeFactory) New() (engine.Engine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	e := &fakeEngine{}
	f.engines = append(f.engines, e)
	return e, nil
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.engines)
}

func (f *fakeFactory) engine(i int) *fakeEngine {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.engines[i]
}

// identityNormalizer passes text through unchanged.
type identityNormalizer struct{}

func (identityNormalizer) Normalize(ctx context.Context, raw string) string { return raw }

// fakeRecorder captures submitted drafts; an optional gate blocks the
// pipeline inside Record until released.
type fakeRecorder struct {
	mu     sync.Mutex
	drafts []models.OrderDraft
	err    error
	gate   chan struct{}
}

func (r *fakeRecorder) Record(ctx context.Context, draft models.OrderDraft) error {
	if r.gate != nil {
		<-r.gate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.drafts = append(r.drafts, draft)
	return nil
}

func (r *fakeRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.drafts)
}

func (r *fakeRecorder) draft(i int) models.OrderDraft {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.drafts[i]
}

func testConfig() Config {
	return Config{
		KeepAliveInterval: time.Hour,
		DisplayTimeout:    time.Hour,
		ConfirmTimeout:    time.Hour,
		DedupWindow:       3 * time.Second,
	}
}

func newTestSession(t *testing.T, cfg Config) (*Session, *fakeFactory, *fakeRecorder) {
	t.Helper()
	factory := &fakeFactory{}
	recorder := &fakeRecorder{}
	s := New(cfg, factory, identityNormalizer{}, recorder)
	t.Cleanup(s.Close)
	return s, factory, recorder
}

// waitFor polls cond until it holds or the deadline expires.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSession_StartAndStop(t *testing.T) {
	s, factory, _ := newTestSession(t, testConfig())
	ctx := context.Background()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	waitFor(t, "listening status", func() bool {
		st := s.Status()
		return st.Listening && st.DesiredListening
	})
	if factory.count() != 1 {
		t.Fatalf("expected 1 engine instance, got %d", factory.count())
	}

	if err := s.Stop(ctx); err != nil {
		t.Fatalf("unexpected stop error: %v", err)
	}
	st := s.Status()
	if st.State != "IDLE" {
		t.Errorf("expected IDLE after stop, got %s", st.State)
	}
	if st.DesiredListening {
		t.Error("expected desired listening cleared after stop")
	}
	if st.Display != "" {
		t.Errorf("expected display cleared after stop, got %q", st.Display)
	}
	if !factory.engine(0).isStopped() {
		t.Error("expected engine instance to be stopped")
	}
}

func TestSession_StartWhenEngineUnavailable(t *testing.T) {
	factory := &fakeFactory{err: engine.ErrEngineUnavailable}
	s := New(testConfig(), factory, identityNormalizer{}, &fakeRecorder{})
	defer s.Close()

	err := s.Start(context.Background())
	if !errors.Is(err, engine.ErrEngineUnavailable) {
		t.Fatalf("expected ErrEngineUnavailable, got %v", err)
	}
	st := s.Status()
	if st.State != "IDLE" {
		t.Errorf("expected state IDLE after failed start, got %s", st.State)
	}
}

func TestSession_StartTwiceIsNoop(t *testing.T) {
	s, factory, _ := newTestSession(t, testConfig())
	ctx := context.Background()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Start(ctx); err != nil {
		t.Fatalf("expected second start to be a no-op, got %v", err)
	}
	if factory.count() != 1 {
		t.Errorf("expected 1 engine instance, got %d", factory.count())
	}
}

func TestSession_RestartsOnEngineEndWhileDesired(t *testing.T) {
	s, factory, _ := newTestSession(t, testConfig())

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	factory.engine(0).emitEnd()

	waitFor(t, "fresh engine instance", func() bool { return factory.count() == 2 })
	st := s.Status()
	if st.State != "LISTENING" {
		t.Errorf("expected LISTENING across restart, got %s", st.State)
	}
	if !st.DesiredListening {
		t.Error("expected desired listening to survive engine end")
	}
}

func TestSession_NoRestartAfterUserStop(t *testing.T) {
	s, factory, _ := newTestSession(t, testConfig())
	ctx := context.Background()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The stopped instance emits its end event; no restart may follow.
	factory.engine(0).emitEnd()
	time.Sleep(50 * time.Millisecond)
	if factory.count() != 1 {
		t.Errorf("expected no restart after stop, got %d instances", factory.count())
	}
}

func TestSession_RecoverableErrorForcesRestart(t *testing.T) {
	s, factory, _ := newTestSession(t, testConfig())

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	factory.engine(0).emitError(engine.NewError(engine.CodeNetwork, errors.New("transport down")))

	waitFor(t, "engine force-stop and restart", func() bool {
		return factory.count() == 2 && factory.engine(0).isStopped()
	})
	st := s.Status()
	if st.State == "STOPPED" {
		t.Error("session must never transition to STOPPED on a recoverable error")
	}
	if !st.DesiredListening {
		t.Error("expected desired listening to survive a recoverable error")
	}
}

func TestSession_IgnorableErrorHasNoEffect(t *testing.T) {
	s, factory, _ := newTestSession(t, testConfig())

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	factory.engine(0).emitError(engine.NewError(engine.CodeNoSpeech, nil))
	factory.engine(0).emitError(engine.NewError(engine.CodeAborted, nil))

	time.Sleep(50 * time.Millisecond)
	if factory.count() != 1 {
		t.Errorf("expected no restart on ignorable errors, got %d instances", factory.count())
	}
	if factory.engine(0).isStopped() {
		t.Error("expected engine to keep running on ignorable errors")
	}
}

func TestSession_FatalErrorSurfacedButIntentKept(t *testing.T) {
	s, factory, _ := newTestSession(t, testConfig())

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	factory.engine(0).emitError(engine.NewError("not-allowed", nil))

	waitFor(t, "error display", func() bool {
		return strings.Contains(s.Status().Display, "not-allowed")
	})
	st := s.Status()
	if !st.DesiredListening {
		t.Error("fatal errors must not clear the listening intent")
	}
	if factory.engine(0).isStopped() {
		t.Error("fatal errors must not force-stop the engine")
	}
}

func TestSession_FinalTranscriptIsRecorded(t *testing.T) {
	s, factory, recorder := newTestSession(t, testConfig())

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	factory.engine(0).emitFinal("牛肉麵 120")

	waitFor(t, "recorded draft", func() bool { return recorder.count() == 1 })
	draft := recorder.draft(0)
	if draft.Item != "牛肉麵" || draft.Price != 120 || draft.Quantity != 1 {
		t.Errorf("unexpected draft: %+v", draft)
	}
	waitFor(t, "confirmation display", func() bool {
		return strings.Contains(s.Status().Display, "已記錄")
	})
}

func TestSession_InterimOnlyUpdatesDisplay(t *testing.T) {
	s, factory, recorder := newTestSession(t, testConfig())

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	factory.engine(0).emitResult(models.Fragment{Text: "牛肉", Final: false})

	waitFor(t, "interim display", func() bool { return s.Status().Display == "牛肉" })
	time.Sleep(50 * time.Millisecond)
	if recorder.count() != 0 {
		t.Errorf("interim fragments must never reach the recorder, got %d", recorder.count())
	}
}

func TestSession_RejectedUtteranceIsNotRecorded(t *testing.T) {
	s, factory, recorder := newTestSession(t, testConfig())

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	factory.engine(0).emitFinal("蛋餅 0")

	waitFor(t, "pipeline idle", func() bool { return !s.Status().Processing })
	time.Sleep(50 * time.Millisecond)
	if recorder.count() != 0 {
		t.Errorf("expected rejection, got %d records", recorder.count())
	}
}

func TestSession_ReentrancyGuardDropsOverlappingFinal(t *testing.T) {
	factory := &fakeFactory{}
	gate := make(chan struct{})
	recorder := &fakeRecorder{gate: gate}
	s := New(testConfig(), factory, identityNormalizer{}, recorder)
	defer s.Close()

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	factory.engine(0).emitFinal("牛肉麵 120")
	waitFor(t, "pipeline in flight", func() bool { return s.Status().Processing })

	// A second final while the first is in flight must not start a
	// concurrent pipeline run.
	factory.engine(0).emitFinal("珍珠奶茶 60")
	close(gate)

	waitFor(t, "pipeline drained", func() bool { return !s.Status().Processing })
	time.Sleep(50 * time.Millisecond)
	if recorder.count() != 1 {
		t.Errorf("expected exactly 1 record, got %d", recorder.count())
	}
	if recorder.draft(0).Item != "牛肉麵" {
		t.Errorf("expected the first utterance to win, got %+v", recorder.draft(0))
	}
}

func TestSession_DuplicateUtteranceSuppressed(t *testing.T) {
	s, factory, recorder := newTestSession(t, testConfig())

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	factory.engine(0).emitFinal("牛肉麵 120")
	waitFor(t, "first record", func() bool { return recorder.count() == 1 })

	factory.engine(0).emitFinal("牛肉麵 120")
	waitFor(t, "pipeline idle", func() bool { return !s.Status().Processing })
	time.Sleep(50 * time.Millisecond)
	if recorder.count() != 1 {
		t.Errorf("expected duplicate to be suppressed, got %d records", recorder.count())
	}
}

func TestSession_KeepAliveForcesRestart(t *testing.T) {
	cfg := testConfig()
	cfg.KeepAliveInterval = 40 * time.Millisecond
	s, factory, _ := newTestSession(t, cfg)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	waitFor(t, "keep-alive restart", func() bool {
		return factory.count() >= 2 && factory.engine(0).isStopped()
	})
	st := s.Status()
	if st.State != "LISTENING" {
		t.Errorf("expected LISTENING across keep-alive restart, got %s", st.State)
	}
}

func TestSession_DisplayClearedAfterFreshnessTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.DisplayTimeout = 30 * time.Millisecond
	s, factory, _ := newTestSession(t, cfg)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	factory.engine(0).emitResult(models.Fragment{Text: "牛肉", Final: false})
	waitFor(t, "interim display", func() bool { return s.Status().Display == "牛肉" })
	waitFor(t, "display cleared", func() bool { return s.Status().Display == "" })
}

func TestSession_PersistenceFailureDoesNotStopSession(t *testing.T) {
	factory := &fakeFactory{}
	recorder := &fakeRecorder{err: errors.New("store unreachable")}
	s := New(testConfig(), factory, identityNormalizer{}, recorder)
	defer s.Close()

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	factory.engine(0).emitFinal("牛肉麵 120")

	waitFor(t, "pipeline idle", func() bool { return !s.Status().Processing })
	st := s.Status()
	if !st.Listening {
		t.Error("session must keep listening after a persistence failure")
	}
}
