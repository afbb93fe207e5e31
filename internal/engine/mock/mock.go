// Package mock provides a simulated recognition engine for development
// and testing without a speech provider. It emits progressive interim
// fragments, exactly one final per utterance, and self-ends after a
// bounded session duration the way native engines do.
package mock

import (
	"context"
	"sync"
	"time"

	"voice-order-logger/internal/engine"
	"voice-order-logger/internal/models"
)

// Utterance is a scripted utterance with progressive interim fragments.
type Utterance struct {
	Interims []string // Progressive interim transcripts
	Final    string   // Final transcript text
}

// DefaultScript provides sample utterances for simulation.
var DefaultScript = []Utterance{
	{
		Interims: []string{"牛肉", "牛肉麵"},
		Final:    "牛肉麵一百二",
	},
	{
		Interims: []string{"珍珠", "珍珠奶茶六十"},
		Final:    "珍珠奶茶六十塊兩杯",
	},
	{
		Interims: []string{"排骨"},
		Final:    "排骨飯 95",
	},
	{
		Interims: []string{"謝謝"},
		Final:    "謝謝光臨",
	},
}

// Config controls the simulation pacing.
type Config struct {
	Script       []Utterance
	InterimDelay time.Duration // Delay between interim fragments
	UtteranceGap time.Duration // Pause between utterances
	SessionLimit time.Duration // Engine self-ends after this duration
}

// DefaultConfig returns pacing suitable for interactive development.
func DefaultConfig() Config {
	return Config{
		Script:       DefaultScript,
		InterimDelay: 300 * time.Millisecond,
		UtteranceGap: 2 * time.Second,
		SessionLimit: time.Minute,
	}
}

// Engine implements engine.Engine with scripted output.
type Engine struct {
	cfg      Config
	start    int // First utterance index, cycles across instances
	mu       sync.Mutex
	cb       engine.Callback
	stopCh   chan struct{}
	stopOnce sync.Once
	started  bool
}

// scriptCursor tracks which utterance a fresh instance starts from, so
// restarted sessions continue through the script.
var (
	scriptCursor int
	cursorMu     sync.Mutex
)

// New creates a simulated engine instance.
func New(cfg Config) *Engine {
	if len(cfg.Script) == 0 {
		cfg.Script = DefaultScript
	}

	cursorMu.Lock()
	start := scriptCursor % len(cfg.Script)
	scriptCursor++
	cursorMu.Unlock()

	return &Engine{
		cfg:    cfg,
		start:  start,
		stopCh: make(chan struct{}),
	}
}

// NewFactory returns an engine factory producing fresh simulated
// instances that cycle through the script.
func NewFactory(cfg Config) engine.Factory {
	return engine.FactoryFunc(func() (engine.Engine, error) {
		return New(cfg), nil
	})
}

// Start begins the simulation. The run loop owns all emission.
func (e *Engine) Start(ctx context.Context, cb engine.Callback) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return nil
	}
	e.started = true
	e.cb = cb

	go e.run(ctx)
	return nil
}

// Stop force-stops the instance. The end event is still emitted by the
// run loop, matching native engine semantics.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopCh)
	})
}

func (e *Engine) run(ctx context.Context) {
	cb := e.cb
	cb.OnStart()
	defer cb.OnEnd()

	deadline := time.NewTimer(e.cfg.SessionLimit)
	defer deadline.Stop()

	utterance := e.start
	for {
		u := e.cfg.Script[utterance%len(e.cfg.Script)]
		utterance++

		for _, interim := range u.Interims {
			if !e.sleep(ctx, deadline, e.cfg.InterimDelay) {
				return
			}
			cb.OnResult([]models.Fragment{{Text: interim, Final: false}})
		}

		if !e.sleep(ctx, deadline, e.cfg.InterimDelay) {
			return
		}
		cb.OnResult([]models.Fragment{{Text: u.Final, Final: true}})

		if !e.sleep(ctx, deadline, e.cfg.UtteranceGap) {
			return
		}
	}
}

// sleep waits for d and reports false when the instance should end.
func (e *Engine) sleep(ctx context.Context, deadline *time.Timer, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-deadline.C:
		return false
	case <-e.stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}
