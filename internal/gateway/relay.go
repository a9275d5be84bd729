package gateway

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

// CompletionReason is the terminal state of one relayed stream. The three
// states are mutually exclusive and each triggers the completion handler at
// most once.
type CompletionReason string

const (
	ReasonCompleted    CompletionReason = "completed"
	ReasonErrored      CompletionReason = "errored"
	ReasonDisconnected CompletionReason = "user_disconnected"
)

// Completion is the final outcome of one relayed stream, handed to the
// completion handler exactly once.
type Completion struct {
	Reason       CompletionReason
	Content      string
	FinishReason string
	Usage        *Usage
	Elapsed      time.Duration
	Err          error
}

// Sink receives outbound SSE frames. Send returns an error when the client
// connection is no longer writable.
type Sink interface {
	Send(event string, data interface{}) error
}

const (
	defaultFlushChars    = 10
	defaultFlushInterval = 50 * time.Millisecond
)

// lineBuffer reassembles line-framed provider output. A provider chunk may
// end mid-line; the remainder is carried over and prefixed onto the next
// chunk before re-splitting.
type lineBuffer struct {
	rest string
}

func (b *lineBuffer) Split(chunk []byte) []string {
	data := b.rest + string(chunk)
	parts := strings.Split(data, "\n")
	b.rest = parts[len(parts)-1]
	lines := parts[:len(parts)-1]
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}

func (b *lineBuffer) Rest() string {
	rest := b.rest
	b.rest = ""
	return strings.TrimSuffix(rest, "\r")
}

// Relay bridges one live provider byte stream to an SSE response. It owns
// the per-call terminal state machine: CONNECTED -> STREAMING ->
// {COMPLETED | ERRORED | USER_DISCONNECTED}, with an idempotent terminal
// transition so that a [DONE] sentinel, the end of the byte stream, and a
// racing client disconnect collapse into a single completion.
type Relay struct {
	ID string

	sink       Sink
	adapter    Adapter
	registry   *Registry
	onComplete func(Completion)

	flushChars    int
	flushInterval time.Duration

	mu           sync.Mutex
	finished     bool
	sinkDead     bool
	content      strings.Builder // all accepted deltas
	pending      strings.Builder // accepted but not yet forwarded
	lastFlush    time.Time
	usage        *Usage
	finishReason string
	started      time.Time

	done      chan struct{} // closed on terminal transition
	aborted   chan struct{} // closed by Close()
	abortOnce sync.Once
}

// NewRelay wires a relay for one call. The registry is injected so active
// streams can be found and cancelled by correlation id; the entry is removed
// on every terminal transition.
func NewRelay(id string, sink Sink, adapter Adapter, registry *Registry, onComplete func(Completion)) *Relay {
	return &Relay{
		ID:            id,
		sink:          sink,
		adapter:       adapter,
		registry:      registry,
		onComplete:    onComplete,
		flushChars:    defaultFlushChars,
		flushInterval: defaultFlushInterval,
		done:          make(chan struct{}),
		aborted:       make(chan struct{}),
	}
}

// Close aborts the stream from outside (registry cancellation). The
// completion handler still runs, so produced content is billed and recorded.
func (r *Relay) Close() {
	r.abortOnce.Do(func() { close(r.aborted) })
}

// Run consumes the provider byte stream until a terminal condition: an
// explicit done marker, end of stream, an upstream error, or client
// disconnect (ctx done). It blocks until the terminal transition has run.
func (r *Relay) Run(ctx context.Context, body io.ReadCloser) {
	defer body.Close()

	r.mu.Lock()
	r.started = time.Now()
	r.lastFlush = r.started
	r.mu.Unlock()

	if r.registry != nil {
		r.registry.add(r)
	}

	r.send("connected", map[string]interface{}{"stream_id": r.ID})

	chunks := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := body.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				select {
				case chunks <- chunk:
				case <-r.done:
					return
				}
			}
			if err != nil {
				if err == io.EOF {
					close(chunks)
				} else {
					readErr <- err
				}
				return
			}
		}
	}()

	var lb lineBuffer
	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.finish(ReasonDisconnected, nil)
			return

		case <-r.aborted:
			r.finish(ReasonDisconnected, nil)
			return

		case err := <-readErr:
			r.finish(ReasonErrored, &UpstreamError{Message: "stream interrupted", Code: "connection_error", Attempts: 1, Err: err})
			return

		case chunk, ok := <-chunks:
			if !ok {
				// Natural end of stream. A final line without a trailing
				// newline still counts.
				if rest := lb.Rest(); rest != "" {
					if terminal, err := r.handleLine(rest); err != nil {
						r.finish(ReasonErrored, err)
						return
					} else if terminal {
						r.finish(ReasonCompleted, nil)
						return
					}
				}
				r.finish(ReasonCompleted, nil)
				return
			}
			for _, line := range lb.Split(chunk) {
				terminal, err := r.handleLine(line)
				if err != nil {
					r.finish(ReasonErrored, err)
					return
				}
				if terminal {
					r.finish(ReasonCompleted, nil)
					return
				}
			}

		case <-ticker.C:
			r.flushIfStale()
		}
	}
}

// handleLine parses one provider line and applies its event. It reports
// whether the event was a terminal done marker.
func (r *Relay) handleLine(line string) (bool, error) {
	event, err := r.adapter.ParseStreamLine(line)
	if err != nil {
		if _, ok := err.(*ProviderError); ok {
			return false, err
		}
		// Malformed frames are skipped rather than killing a stream that is
		// otherwise producing content.
		zap.L().Warn("skipping malformed stream line", zap.String("relay_id", r.ID), zap.Error(err))
		return false, nil
	}
	if event == nil {
		return false, nil
	}

	if event.Usage != nil {
		r.mu.Lock()
		r.usage = event.Usage
		r.mu.Unlock()
	}
	if event.FinishReason != "" {
		r.mu.Lock()
		r.finishReason = event.FinishReason
		r.mu.Unlock()
	}
	if event.Delta != "" {
		r.acceptDelta(event.Delta)
	}
	return event.Done, nil
}

// acceptDelta appends new content, suppressing duplicated prefixes: if a
// provider resends everything produced so far (restart-style continuation
// frame), only the suffix beyond the cumulative content is forwarded.
func (r *Relay) acceptDelta(delta string) {
	r.mu.Lock()
	total := r.content.String()
	if total != "" && strings.HasPrefix(delta, total) {
		delta = delta[len(total):]
	}
	if delta == "" {
		r.mu.Unlock()
		return
	}
	r.content.WriteString(delta)
	r.pending.WriteString(delta)

	flush := utf8.RuneCountInString(r.pending.String()) >= r.flushChars ||
		endsSentence(r.pending.String())
	r.mu.Unlock()

	if flush {
		r.flushPending()
	}
}

func endsSentence(s string) bool {
	last, _ := utf8.DecodeLastRuneInString(s)
	switch last {
	case '.', '!', '?', '\n', '。', '！', '？', '…':
		return true
	}
	return false
}

// flushIfStale forwards buffered content once the flush interval has
// elapsed, bounding client-visible latency for slow token streams.
func (r *Relay) flushIfStale() {
	r.mu.Lock()
	stale := r.pending.Len() > 0 && time.Since(r.lastFlush) >= r.flushInterval
	r.mu.Unlock()
	if stale {
		r.flushPending()
	}
}

func (r *Relay) flushPending() {
	r.mu.Lock()
	if r.pending.Len() == 0 || r.sinkDead || r.finished {
		r.mu.Unlock()
		return
	}
	text := r.pending.String()
	r.pending.Reset()
	r.lastFlush = time.Now()
	r.mu.Unlock()

	r.send("content", map[string]interface{}{"content": text})
}

// send writes one SSE frame; a write failure marks the sink dead so no
// further frames are attempted (the client is gone).
func (r *Relay) send(event string, data interface{}) {
	r.mu.Lock()
	if r.sinkDead {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	if err := r.sink.Send(event, data); err != nil {
		r.mu.Lock()
		r.sinkDead = true
		r.mu.Unlock()
	}
}

// finish performs the terminal transition exactly once, regardless of which
// condition fired first, then invokes the completion handler. The terminal
// frame is always the last event on the stream.
func (r *Relay) finish(reason CompletionReason, cause error) {
	r.mu.Lock()
	if r.finished {
		r.mu.Unlock()
		return
	}
	r.finished = true

	// Any buffered content goes out before the terminal frame.
	var tail string
	if r.pending.Len() > 0 {
		tail = r.pending.String()
		r.pending.Reset()
	}

	completion := Completion{
		Reason:       reason,
		Content:      r.content.String(),
		FinishReason: r.finishReason,
		Usage:        r.usage,
		Elapsed:      time.Since(r.started),
		Err:          cause,
	}
	r.mu.Unlock()

	if r.registry != nil {
		r.registry.remove(r.ID)
	}

	if tail != "" {
		r.send("content", map[string]interface{}{"content": tail})
	}
	switch reason {
	case ReasonCompleted:
		r.send("done", map[string]interface{}{"message": "generation complete"})
	case ReasonErrored:
		r.send("error", map[string]interface{}{
			"error":      cause.Error(),
			"error_type": ErrorType(cause),
			"error_code": ErrorCode(cause),
		})
	}

	close(r.done)

	if r.onComplete != nil {
		r.onComplete(completion)
	}
}
