package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"voice-order-logger/internal/dedup"
	"voice-order-logger/internal/engine"
	"voice-order-logger/internal/extract"
	"voice-order-logger/internal/models"
	"voice-order-logger/internal/observability/metrics"
)

// Normalizer converts a raw final transcript into the canonical line.
// It never fails; fallback is the raw input.
type Normalizer interface {
	Normalize(ctx context.Context, raw string) string
}

// Recorder submits a validated order draft to the store. Retry and
// refresh signaling live behind this boundary; a returned error means
// the order is lost and must not disturb the session.
type Recorder interface {
	Record(ctx context.Context, draft models.OrderDraft) error
}

// Config holds the session timing knobs.
type Config struct {
	KeepAliveInterval time.Duration // Forced engine restart interval
	DisplayTimeout    time.Duration // Live display freshness timeout
	ConfirmTimeout    time.Duration // How long a recorded confirmation stays visible
	DedupWindow       time.Duration // Identical-utterance suppression window
}

// DefaultConfig returns the production timings.
func DefaultConfig() Config {
	return Config{
		KeepAliveInterval: 10 * time.Minute,
		DisplayTimeout:    5 * time.Second,
		ConfirmTimeout:    2 * time.Second,
		DedupWindow:       dedup.DefaultWindow,
	}
}

// Status is a read-only snapshot of the session for the control API.
type Status struct {
	State            string `json:"state"`
	Listening        bool   `json:"listening"`
	DesiredListening bool   `json:"desiredListening"`
	Processing       bool   `json:"processing"`
	Display          string `json:"display"`
}

// Session owns the single active engine instance, the state machine,
// the dedup memory, and both timers. All of them are touched only by
// the run loop goroutine; engine callbacks and the pipeline goroutine
// communicate with the loop through the event channel.
type Session struct {
	cfg        Config
	factory    engine.Factory
	normalizer Normalizer
	recorder   Recorder
	metrics    *metrics.Metrics
	log        zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	events chan sessionEvent
	doneCh chan struct{}

	// Loop-owned state.
	machine      *Machine
	guard        *dedup.Guard
	eng          engine.Engine
	processing   bool
	display      string
	restartCause string
	keepAlive    *time.Ticker
	displayTimer *time.Timer

	mu     sync.RWMutex
	status Status
}

type sessionEvent interface{ isSessionEvent() }

type cmdStart struct{ reply chan error }
type cmdStop struct{ reply chan struct{} }
type evEngineStarted struct{ src engine.Engine }
type evEngineResult struct {
	src       engine.Engine
	fragments []models.Fragment
}
type evEngineEnded struct{ src engine.Engine }
type evEngineError struct {
	src engine.Engine
	err error
}
type evPipelineDone struct {
	summary  string
	recorded bool
}

func (cmdStart) isSessionEvent()        {}
func (cmdStop) isSessionEvent()         {}
func (evEngineStarted) isSessionEvent() {}
func (evEngineResult) isSessionEvent()  {}
func (evEngineEnded) isSessionEvent()   {}
func (evEngineError) isSessionEvent()   {}
func (evPipelineDone) isSessionEvent()  {}

// New creates a session and starts its event loop.
func New(cfg Config, factory engine.Factory, normalizer Normalizer, recorder Recorder) *Session {
	if cfg.KeepAliveInterval <= 0 {
		cfg.KeepAliveInterval = 10 * time.Minute
	}
	if cfg.DisplayTimeout <= 0 {
		cfg.DisplayTimeout = 5 * time.Second
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 2 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		cfg:        cfg,
		factory:    factory,
		normalizer: normalizer,
		recorder:   recorder,
		metrics:    metrics.DefaultMetrics,
		log:        log.With().Str("component", "session").Logger(),
		ctx:        ctx,
		cancel:     cancel,
		events:     make(chan sessionEvent, 64),
		doneCh:     make(chan struct{}),
		machine:    NewMachine(),
		guard:      dedup.New(cfg.DedupWindow),
	}
	s.publishStatus()

	go s.run()
	return s
}

// Start begins listening. It is a no-op when already listening and
// returns engine.ErrEngineUnavailable when no recognition capability
// exists; the session stays idle then.
func (s *Session) Start(ctx context.Context) error {
	reply := make(chan error, 1)
	select {
	case s.events <- cmdStart{reply: reply}:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return errors.New("session closed")
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop clears the listening intent, stops the engine, and clears the
// live display.
func (s *Session) Stop(ctx context.Context) error {
	reply := make(chan struct{}, 1)
	select {
	case s.events <- cmdStop{reply: reply}:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return errors.New("session closed")
	}
	select {
	case <-reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns the latest session snapshot.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Close tears the session down: the engine is stopped and both timers
// are released.
func (s *Session) Close() {
	s.cancel()
	<-s.doneCh
}

func (s *Session) run() {
	defer close(s.doneCh)

	for {
		var kaC, dtC <-chan time.Time
		if s.keepAlive != nil {
			kaC = s.keepAlive.C
		}
		if s.displayTimer != nil {
			dtC = s.displayTimer.C
		}

		select {
		case <-s.ctx.Done():
			s.teardown()
			return
		case ev := <-s.events:
			s.handle(ev)
		case <-kaC:
			s.onKeepAlive()
		case <-dtC:
			s.displayTimer = nil
			s.onDisplayTimeout()
		}
		s.publishStatus()
	}
}

func (s *Session) handle(ev sessionEvent) {
	switch ev := ev.(type) {
	case cmdStart:
		ev.reply <- s.onStart()
	case cmdStop:
		s.onStop()
		ev.reply <- struct{}{}
	case evEngineStarted:
		if ev.src == s.eng {
			s.setDisplay("正在聆聽...")
		}
	case evEngineResult:
		if ev.src == s.eng {
			s.onResult(ev.fragments)
		}
	case evEngineEnded:
		s.onEngineEnded(ev.src)
	case evEngineError:
		if ev.src == s.eng {
			s.onEngineError(ev.err)
		}
	case evPipelineDone:
		s.processing = false
		if ev.recorded && ev.summary != "" {
			s.setDisplayFor(ev.summary, s.cfg.ConfirmTimeout)
		}
	}
}

func (s *Session) onStart() error {
	if !s.machine.UserStart() {
		return nil
	}

	if err := s.startEngine(); err != nil {
		s.machine.StartFailed()
		if errors.Is(err, engine.ErrEngineUnavailable) {
			s.setDisplay("此環境不支援語音辨識")
		}
		s.log.Error().Err(err).Msg("cannot start recognition engine")
		return err
	}

	s.keepAlive = time.NewTicker(s.cfg.KeepAliveInterval)
	s.metrics.RecordSessionStart()
	s.log.Info().Msg("capture session started")
	return nil
}

func (s *Session) onStop() {
	s.machine.UserStop()
	s.stopKeepAlive()
	s.restartCause = ""
	if s.eng != nil {
		s.eng.Stop()
		s.eng = nil
	}
	s.clearDisplay()
	s.metrics.RecordSessionStop()
	s.log.Info().Msg("capture session stopped")
}

func (s *Session) onResult(fragments []models.Fragment) {
	var interim, final strings.Builder
	for _, f := range fragments {
		if f.Text == "" {
			continue
		}
		if f.Final {
			final.WriteString(f.Text)
			s.metrics.RecordFinalTranscript()
		} else {
			interim.WriteString(f.Text)
			s.metrics.RecordInterimTranscript()
		}
	}

	display := final.String()
	if display == "" {
		display = interim.String()
	}
	if display != "" {
		s.setDisplay(display)
	}

	finalText := final.String()
	if finalText == "" {
		return
	}
	if s.processing {
		// A pipeline run is in flight; a second one must not start.
		s.log.Debug().Str("text", finalText).Msg("final transcript dropped, pipeline busy")
		return
	}
	s.processing = true
	go s.process(finalText, time.Now())
}

func (s *Session) onEngineEnded(src engine.Engine) {
	if src != s.eng {
		// A force-stopped prior instance; nothing to do.
		return
	}
	s.eng = nil

	if !s.machine.EngineEnded() {
		s.stopKeepAlive()
		return
	}

	cause := s.restartCause
	if cause == "" {
		cause = "engine_end"
	}
	s.restartCause = ""

	if err := s.startEngine(); err != nil {
		s.machine.RestartFailed()
		s.stopKeepAlive()
		s.setDisplay("錯誤：" + err.Error())
		s.log.Error().Err(err).Msg("engine restart failed")
		return
	}
	s.metrics.RecordEngineRestart(cause)
	s.log.Info().Str("cause", cause).Msg("recognition engine restarted")
}

func (s *Session) onEngineError(err error) {
	tier, code := engine.Classify(err)
	s.metrics.RecordEngineError(tier.String(), code)

	switch tier {
	case engine.TierIgnorable:
		// No state change, no user-visible effect.
	case engine.TierRecoverable:
		s.setDisplay("語音服務異常，正在重新連線...")
		s.restartCause = "recoverable_error"
		s.eng.Stop()
	case engine.TierFatal:
		// The raw code is surfaced; the intent bit is deliberately left
		// unchanged, so the engine's own end event still governs restart.
		s.setDisplay("錯誤：" + code)
		s.log.Error().Err(err).Str("code", code).Msg("recognition error")
	}
}

func (s *Session) onKeepAlive() {
	if !s.machine.Desired() || s.eng == nil {
		return
	}
	// Pre-empt silent engine death with a forced restart through the
	// regular end-event path.
	s.setDisplay("維持語音連線中...")
	s.restartCause = "keep_alive"
	s.eng.Stop()
}

func (s *Session) onDisplayTimeout() {
	if s.processing {
		s.armDisplayTimer(s.cfg.DisplayTimeout)
		return
	}
	s.display = ""
}

// process runs the normalize-extract-dedup-record pipeline for one
// final transcript. It is the only goroutine besides the loop and
// exactly one instance runs at a time.
func (s *Session) process(raw string, now time.Time) {
	start := time.Now()
	var summary string
	recorded := false
	defer func() {
		s.metrics.RecordPipelineDuration(time.Since(start).Seconds())
		s.post(evPipelineDone{summary: summary, recorded: recorded})
	}()

	text := strings.TrimSpace(raw)
	if text == "" {
		return
	}

	normalized := s.normalizer.Normalize(s.ctx, text)

	draft, err := extract.Extract(normalized)
	if err != nil {
		s.metrics.RecordExtraction(false)
		s.log.Debug().Str("text", normalized).Msg("utterance rejected by grammar")
		return
	}
	s.metrics.RecordExtraction(true)

	if !s.guard.ShouldAccept(normalized, now) {
		s.metrics.RecordDedupSuppressed()
		s.log.Debug().Str("text", normalized).Msg("duplicate utterance suppressed")
		return
	}

	if err := s.recorder.Record(s.ctx, draft); err != nil {
		// The recorder already retried and logged; the order is lost
		// and the session keeps listening.
		return
	}
	recorded = true
	summary = recordedSummary(draft)
}

func recordedSummary(draft models.OrderDraft) string {
	price := strconv.FormatFloat(draft.Price, 'f', -1, 64)
	if draft.Quantity > 1 {
		return fmt.Sprintf("✓ 已記錄：%s %s x%d", draft.Item, price, draft.Quantity)
	}
	return fmt.Sprintf("✓ 已記錄：%s %s", draft.Item, price)
}

func (s *Session) startEngine() error {
	eng, err := s.factory.New()
	if err != nil {
		return err
	}

	cb := &callback{s: s, eng: eng}
	if err := eng.Start(s.ctx, cb); err != nil {
		return err
	}
	s.eng = eng
	return nil
}

func (s *Session) setDisplay(text string) {
	s.display = text
	if s.machine.Listening() && !s.processing {
		s.armDisplayTimer(s.cfg.DisplayTimeout)
	}
}

func (s *Session) setDisplayFor(text string, d time.Duration) {
	s.display = text
	s.armDisplayTimer(d)
}

func (s *Session) clearDisplay() {
	s.display = ""
	if s.displayTimer != nil {
		s.displayTimer.Stop()
		s.displayTimer = nil
	}
}

func (s *Session) armDisplayTimer(d time.Duration) {
	if s.displayTimer != nil {
		s.displayTimer.Stop()
	}
	s.displayTimer = time.NewTimer(d)
}

func (s *Session) stopKeepAlive() {
	if s.keepAlive != nil {
		s.keepAlive.Stop()
		s.keepAlive = nil
	}
}

func (s *Session) teardown() {
	if s.eng != nil {
		s.eng.Stop()
		s.eng = nil
	}
	s.stopKeepAlive()
	if s.displayTimer != nil {
		s.displayTimer.Stop()
		s.displayTimer = nil
	}
}

func (s *Session) publishStatus() {
	s.mu.Lock()
	s.status = Status{
		State:            s.machine.State().String(),
		Listening:        s.machine.Listening(),
		DesiredListening: s.machine.Desired(),
		Processing:       s.processing,
		Display:          s.display,
	}
	s.mu.Unlock()
}

func (s *Session) post(ev sessionEvent) {
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}

// callback forwards engine events into the session loop, tagged with
// the emitting instance so events from a replaced engine are ignored.
type callback struct {
	s   *Session
	eng engine.Engine
}

func (c *callback) OnStart() {
	c.s.post(evEngineStarted{src: c.eng})
}

func (c *callback) OnResult(fragments []models.Fragment) {
	c.s.post(evEngineResult{src: c.eng, fragments: fragments})
}

func (c *callback) OnEnd() {
	c.s.post(evEngineEnded{src: c.eng})
}

func (c *callback) OnError(err error) {
	c.s.post(evEngineError{src: c.eng, err: err})
}
