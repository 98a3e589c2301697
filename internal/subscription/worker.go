package subscription

import (
	"encoding/json"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"

	"gqlclient/internal/flatten"
	"gqlclient/internal/metrics"
	"gqlclient/internal/protocol"
)

// PollInterval is how long an idle worker sleeps before checking its queue
// again. It bounds how quickly a kill is observed.
const PollInterval = 10 * time.Millisecond

var emptyPayload = json.RawMessage(`{}`)

// Worker runs the consumer goroutine of each subscription
type Worker struct {
	memo         *flatten.Memo
	metrics      *metrics.Metrics
	logger       zerolog.Logger
	pollInterval time.Duration
}

// NewWorker creates a worker. memo and m may be nil.
func NewWorker(memo *flatten.Memo, m *metrics.Metrics, logger zerolog.Logger) *Worker {
	return &Worker{
		memo:         memo,
		metrics:      m,
		logger:       logger.With().Str("component", "subscription-worker").Logger(),
		pollInterval: PollInterval,
	}
}

// Start launches the consumer goroutine for sub. Only the first call has
// an effect.
func (w *Worker) Start(sub *Subscription) {
	if !sub.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(sub)
}

func (w *Worker) run(sub *Subscription) {
	logger := w.logger.With().Str("id", sub.id).Logger()

	sub.running.Store(true)
	sub.starting.Store(false)

	defer func() {
		sub.running.Store(false)
		sub.kill.Store(true)
		close(sub.done)
		logger.Debug().Uint64("runs", sub.runs.Load()).Msg("subscription stopped")
	}()

	for sub.running.Load() {
		if sub.kill.Load() {
			logger.Debug().Msg("stopping subscription on unsubscribe")
			return
		}

		f := sub.pop()
		if f == nil {
			time.Sleep(w.pollInterval)
			continue
		}

		switch f.Type {
		case protocol.TypeNext:
		case protocol.TypeError:
			w.callErrorHandler(sub, f, logger)
			logger.Info().Str("type", string(f.Type)).RawJSON("payload", rawOrNull(f.Payload)).Msg("stopping subscription on error")
			return
		case protocol.TypeComplete:
			logger.Info().Msg("stopping subscription on complete")
			return
		default:
			logger.Warn().Str("type", string(f.Type)).Msg("unknown message type")
			continue
		}

		w.handlePayload(sub, f, logger)
	}
}

func (w *Worker) handlePayload(sub *Subscription, f *protocol.Frame, logger zerolog.Logger) {
	if protocol.HasErrors(f.Payload) {
		if sub.opts.ErrorHandler != nil {
			w.callErrorHandler(sub, f, logger)
			return
		}
		logger.Warn().RawJSON("payload", rawOrNull(f.Payload)).Msg("subscription message has payload errors")
		return
	}

	if protocol.IsInitEcho(f.Payload) {
		logger.Debug().Msg("subscription initialized")
		return
	}

	message := f.Payload
	if len(message) == 0 {
		message = emptyPayload
	}
	if sub.opts.Flatten {
		message = w.memo.Raw(message, false)
	}

	if w.callHandler(sub, message, logger) {
		w.metrics.HandlerInvoked()
		sub.runs.Add(1)
	}
}

// callHandler invokes the handler, recovering a panic so the subscription
// keeps running. It returns false if the handler panicked.
func (w *Worker) callHandler(sub *Subscription, message json.RawMessage, logger zerolog.Logger) (ok bool) {
	if sub.opts.Handler == nil {
		return true
	}
	defer func() {
		if r := recover(); r != nil {
			ok = false
			w.metrics.HandlerPanicked()
			w.logPanic(sub, r, "subscription handler panic", logger)
		}
	}()
	sub.opts.Handler(message)
	return true
}

func (w *Worker) callErrorHandler(sub *Subscription, f *protocol.Frame, logger zerolog.Logger) {
	if sub.opts.ErrorHandler == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			w.metrics.HandlerPanicked()
			w.logPanic(sub, r, "subscription error handler panic", logger)
		}
	}()
	sub.opts.ErrorHandler(f)
}

func (w *Worker) logPanic(sub *Subscription, r any, msg string, logger zerolog.Logger) {
	event := logger.Error().
		Interface("panic", r).
		Str("query", sub.opts.Request.Query)
	if sub.opts.Request.Variables != nil {
		event = event.Interface("variables", sub.opts.Request.Variables)
	}
	event.Str("stack", string(debug.Stack())).Msg(msg)
}

func rawOrNull(data json.RawMessage) []byte {
	if len(data) == 0 {
		return []byte("null")
	}
	return data
}
