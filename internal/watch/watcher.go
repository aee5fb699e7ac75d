package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/benbjohnson/clock"

	"modelboard/internal/cluster"
	"modelboard/internal/logging"
	"modelboard/internal/metrics"
)

const (
	defaultInitialBackoff = 1 * time.Second
	defaultMaxBackoff     = 32 * time.Second

	// DefaultStreamTimeoutSeconds caps every individual upstream stream.
	// Expiry is handled exactly like any other disconnect.
	DefaultStreamTimeoutSeconds = 300
)

// EventFunc receives one observed change. Invocations happen on the
// watcher's goroutine; panics are recovered and logged.
type EventFunc func(eventType string, object cluster.Object)

type WatcherOptions struct {
	Key      Key
	Source   StreamOpener
	Callback EventFunc
	Logger   *logging.Logger
	Metrics  *metrics.Registry

	// Clock drives backoff sleeps; tests substitute a mock.
	Clock                clock.Clock
	InitialBackoff       time.Duration
	MaxBackoff           time.Duration
	StreamTimeoutSeconds int
}

// Watcher maintains one upstream subscription, reconnecting until stopped.
// No resume cursor carries across reconnects: every restart reissues an
// authoritative live stream from scratch.
type Watcher struct {
	key      Key
	source   StreamOpener
	callback EventFunc
	logger   *logging.Logger
	metrics  *metrics.Registry

	clock          clock.Clock
	initialBackoff time.Duration
	maxBackoff     time.Duration
	streamTimeout  int

	ctx    context.Context
	cancel context.CancelFunc
}

func NewWatcher(options WatcherOptions) *Watcher {
	if options.Clock == nil {
		options.Clock = clock.New()
	}
	if options.InitialBackoff <= 0 {
		options.InitialBackoff = defaultInitialBackoff
	}
	if options.MaxBackoff <= 0 {
		options.MaxBackoff = defaultMaxBackoff
	}
	if options.StreamTimeoutSeconds <= 0 {
		options.StreamTimeoutSeconds = DefaultStreamTimeoutSeconds
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		key:            options.Key,
		source:         options.Source,
		callback:       options.Callback,
		logger:         options.Logger,
		metrics:        options.Metrics,
		clock:          options.Clock,
		initialBackoff: options.InitialBackoff,
		maxBackoff:     options.MaxBackoff,
		streamTimeout:  options.StreamTimeoutSeconds,
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Run blocks until Stop. It owns the reconnect loop: open a stream, drain
// it, and on any failure sleep with exponential backoff before retrying.
// The backoff schedule restarts at the initial delay whenever a stream is
// successfully established; only consecutive failures escalate it.
func (w *Watcher) Run() {
	w.logInfo("watch starting", nil)
	schedule := newBackoff(w.initialBackoff, w.maxBackoff)

	for {
		if w.ctx.Err() != nil {
			return
		}

		stream, err := w.source.OpenWatch(w.ctx, w.key, w.streamTimeout)
		if err != nil {
			if w.ctx.Err() != nil {
				return
			}
			delay := schedule.Next()
			w.logWarn("watch stream failed", map[string]string{
				"error":   err.Error(),
				"retryIn": delay.String(),
			})
			w.metrics.IncWatchReconnect()
			if !w.sleep(delay) {
				return
			}
			continue
		}

		schedule.Reset()
		err = w.consume(stream)
		_ = stream.Close()
		if w.ctx.Err() != nil {
			return
		}

		delay := schedule.Next()
		fields := map[string]string{"retryIn": delay.String()}
		if err != nil && !errors.Is(err, io.EOF) {
			fields["error"] = err.Error()
			w.logWarn("watch stream error", fields)
		} else {
			// EOF is the routine server-side stream timeout.
			w.logInfo("watch stream ended", fields)
		}
		w.metrics.IncWatchReconnect()
		if !w.sleep(delay) {
			return
		}
	}
}

// Stop unwinds the current stream and suppresses future reconnects. It is
// idempotent and may race one final callback invocation.
func (w *Watcher) Stop() {
	w.cancel()
}

func (w *Watcher) consume(stream cluster.WatchStream) error {
	for {
		event, err := stream.Recv()
		if err != nil {
			return err
		}
		if w.ctx.Err() != nil {
			return w.ctx.Err()
		}
		w.invoke(event.Type, event.Object)
	}
}

// invoke shields the watch loop from a misbehaving subscriber: a panic in
// the callback drops that one event and the watch continues.
func (w *Watcher) invoke(eventType string, object cluster.Object) {
	defer func() {
		if recovered := recover(); recovered != nil {
			w.logError("event callback panicked", map[string]string{
				"panic": fmt.Sprint(recovered),
				"event": eventType,
			})
		}
	}()
	w.callback(eventType, object)
}

func (w *Watcher) sleep(delay time.Duration) bool {
	timer := w.clock.Timer(delay)
	defer timer.Stop()
	select {
	case <-w.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (w *Watcher) logInfo(message string, fields map[string]string) {
	if w.logger == nil {
		return
	}
	w.logger.Info(message, w.withKey(fields))
}

func (w *Watcher) logWarn(message string, fields map[string]string) {
	if w.logger == nil {
		return
	}
	w.logger.Warn(message, w.withKey(fields))
}

func (w *Watcher) logError(message string, fields map[string]string) {
	if w.logger == nil {
		return
	}
	w.logger.Error(message, w.withKey(fields))
}

func (w *Watcher) withKey(fields map[string]string) map[string]string {
	combined := map[string]string{"key": w.key.String()}
	for key, value := range fields {
		combined[key] = value
	}
	return combined
}
