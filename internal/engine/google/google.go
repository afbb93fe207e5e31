// Package google provides a recognition engine backed by Google Cloud
// Speech-to-Text streaming recognition.
package google

import (
	"context"
	"errors"
	"io"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	speechpb "google.golang.org/genproto/googleapis/cloud/speech/v1"

	"voice-order-logger/internal/engine"
	"voice-order-logger/internal/models"
)

// Config holds streaming recognition parameters.
type Config struct {
	LanguageCode   string
	SampleRateHz   int32
	InterimResults bool
}

// DefaultConfig returns the recognition defaults for spoken orders.
func DefaultConfig() Config {
	return Config{
		LanguageCode:   "zh-TW",
		SampleRateHz:   16000,
		InterimResults: true,
	}
}

// Engine implements engine.Engine over a Google streaming session.
// Audio is pumped from the injected source; the engine owns its
// receive loop and terminates with an end event like native engines.
type Engine struct {
	client *speech.Client
	cfg    Config
	source io.Reader

	mu       sync.Mutex
	stream   speechpb.Speech_StreamingRecognizeClient
	cancel   context.CancelFunc
	stopOnce sync.Once
	started  bool
}

// New creates a Google engine instance. Requires the
// GOOGLE_APPLICATION_CREDENTIALS environment variable to be set.
func New(ctx context.Context, cfg Config, source io.Reader) (*Engine, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, engine.ErrEngineUnavailable
	}
	return &Engine{client: c, cfg: cfg, source: source}, nil
}

// NewFactory returns a factory producing fresh Google engine instances
// reading from the shared audio source.
func NewFactory(ctx context.Context, cfg Config, source io.Reader) engine.Factory {
	return engine.FactoryFunc(func() (engine.Engine, error) {
		return New(ctx, cfg, source)
	})
}

// Start opens the streaming session, sends the recognition config, and
// spawns the audio pump and receive loops.
func (e *Engine) Start(ctx context.Context, cb engine.Callback) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return nil
	}

	streamCtx, cancel := context.WithCancel(ctx)
	stream, err := e.client.StreamingRecognize(streamCtx)
	if err != nil {
		cancel()
		return engine.NewError(engine.CodeNetwork, err)
	}

	err = stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:        speechpb.RecognitionConfig_LINEAR16,
					SampleRateHertz: e.cfg.SampleRateHz,
					LanguageCode:    e.cfg.LanguageCode,
				},
				InterimResults: e.cfg.InterimResults,
			},
		},
	})
	if err != nil {
		cancel()
		return engine.NewError(engine.CodeNetwork, err)
	}

	e.stream = stream
	e.cancel = cancel
	e.started = true

	cb.OnStart()
	go e.pump(streamCtx, stream, cb)
	go e.listen(stream, cb)
	return nil
}

// Stop force-stops the instance. The receive loop observes the closed
// stream and emits the end event.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.mu.Lock()
		stream := e.stream
		e.mu.Unlock()
		if stream != nil {
			_ = stream.CloseSend()
		}
	})
}

// pump reads LINEAR16 frames from the audio source and forwards them.
func (e *Engine) pump(ctx context.Context, stream speechpb.Speech_StreamingRecognizeClient, cb engine.Callback) {
	buf := make([]byte, 3200) // 100ms at 16kHz 16-bit mono
	for {
		if ctx.Err() != nil {
			return
		}
		n, err := e.source.Read(buf)
		if n > 0 {
			sendErr := stream.Send(&speechpb.StreamingRecognizeRequest{
				StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
					AudioContent: buf[:n],
				},
			})
			if sendErr != nil {
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				cb.OnError(engine.NewError(engine.CodeAudioCapture, err))
			}
			_ = stream.CloseSend()
			return
		}
	}
}

// listen receives transcript responses and translates them into
// fragment result events. Stream termination becomes the end event.
func (e *Engine) listen(stream speechpb.Speech_StreamingRecognizeClient, cb engine.Callback) {
	defer func() {
		e.mu.Lock()
		cancel := e.cancel
		e.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		cb.OnEnd()
	}()

	for {
		resp, err := stream.Recv()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				cb.OnError(translate(err))
			}
			return
		}

		var fragments []models.Fragment
		for _, r := range resp.Results {
			if len(r.Alternatives) == 0 {
				continue
			}
			fragments = append(fragments, models.Fragment{
				Text:  r.Alternatives[0].Transcript,
				Final: r.IsFinal,
			})
		}
		if len(fragments) > 0 {
			cb.OnResult(fragments)
		}
	}
}

// translate maps gRPC status codes onto recognition error codes so the
// session's tier classification applies uniformly across providers.
func translate(err error) error {
	s, ok := status.FromError(err)
	if !ok {
		return engine.NewError(engine.CodeNetwork, err)
	}

	switch s.Code() {
	case codes.Canceled, codes.Aborted:
		return engine.NewError(engine.CodeAborted, err)
	case codes.OutOfRange:
		// Streaming sessions are bounded in duration; treat the limit
		// like silence so the session restart path handles it.
		return engine.NewError(engine.CodeNoSpeech, err)
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted:
		return engine.NewError(engine.CodeNetwork, err)
	default:
		return engine.NewError(s.Code().String(), err)
	}
}
