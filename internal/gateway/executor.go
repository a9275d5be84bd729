package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"

	"go.uber.org/zap"

	"novelcraft-backend/internal/models"
)

// extendedTimeoutFloor is the minimum timeout for extended-class (reasoning)
// models, which legitimately run for minutes.
const extendedTimeoutFloor = 5 * time.Minute

// Executor issues the HTTP call for one logical AI request, applying the
// model's timeout class and retrying transient failures with exponential
// backoff.
type Executor struct {
	Client *http.Client

	// Backoff computes the delay before a retry attempt. Replaceable in
	// tests to avoid real sleeps.
	Backoff func(class models.TimeoutClass, attempt, status int) time.Duration
}

func NewExecutor() *Executor {
	return &Executor{
		// No client-level timeout: deadlines are per call, derived from the
		// model configuration, and must not cut live streams short.
		Client:  &http.Client{},
		Backoff: BackoffDelay,
	}
}

// CallTimeout derives the per-call timeout from the model configuration.
func CallTimeout(cfg *models.ModelConfig) time.Duration {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	if cfg.TimeoutClass == models.TimeoutClassExtended && timeout < extendedTimeoutFloor {
		timeout = extendedTimeoutFloor
	}
	return timeout
}

// BackoffDelay implements delay = min(base * 2^(attempt-1), cap). Extended
// class calls wait much longer between attempts because the upstream work
// itself is slow; standard calls scale the base by response-code severity.
func BackoffDelay(class models.TimeoutClass, attempt, status int) time.Duration {
	var base, ceiling time.Duration
	if class == models.TimeoutClassExtended {
		base, ceiling = 30*time.Second, 180*time.Second
	} else {
		base, ceiling = time.Second, 30*time.Second
		// Rate-limit rejections back off harder than transient gateway errors.
		if status == http.StatusTooManyRequests {
			base = 2 * time.Second
		}
	}

	delay := base << uint(attempt-1)
	if delay <= 0 || delay > ceiling {
		delay = ceiling
	}
	return delay
}

// retryableStatus reports whether an HTTP status is worth retrying.
// Validation failures (other 4xx) never are.
func retryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// retryableNetError reports whether a transport-level failure is transient:
// connection reset, DNS failure, or a timeout. Context cancellation (client
// gone) is not.
func retryableNetError(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

// Execute performs a buffered (non-streaming) call and returns the parsed
// canonical result.
func (e *Executor) Execute(ctx context.Context, cfg *models.ModelConfig, messages []Message, params CallParams) (*Result, error) {
	adapter, err := AdapterFor(cfg.ProviderKind)
	if err != nil {
		return nil, err
	}

	var result *Result
	err = e.withRetries(ctx, cfg, func(callCtx context.Context) (int, error) {
		req, err := adapter.BuildRequest(cfg, messages, params, false)
		if err != nil {
			return 0, err
		}

		resp, err := e.Client.Do(req.WithContext(callCtx))
		if err != nil {
			return 0, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return resp.StatusCode, err
		}
		if retryableStatus(resp.StatusCode) {
			return resp.StatusCode, fmt.Errorf("upstream returned status %d", resp.StatusCode)
		}

		result, err = adapter.ParseResponse(resp.StatusCode, body)
		return resp.StatusCode, err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// streamBody ties the lifetime of the per-call cancel function to the
// response body so closing the stream releases the request.
type streamBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (s *streamBody) Close() error {
	err := s.ReadCloser.Close()
	s.cancel()
	return err
}

// OpenStream performs the streaming variant: the retry policy applies to
// establishing the stream; once response headers have arrived the live body
// is handed to the caller and the call timeout no longer applies (a slow
// but healthy stream must not be cut off mid-generation).
func (e *Executor) OpenStream(ctx context.Context, cfg *models.ModelConfig, messages []Message, params CallParams) (io.ReadCloser, Adapter, error) {
	adapter, err := AdapterFor(cfg.ProviderKind)
	if err != nil {
		return nil, nil, err
	}

	var body io.ReadCloser
	err = e.withRetries(ctx, cfg, func(_ context.Context) (int, error) {
		req, err := adapter.BuildRequest(cfg, messages, params, true)
		if err != nil {
			return 0, err
		}

		// The deadline covers connecting and receiving headers only, so it
		// is enforced with a timer instead of a context deadline.
		callCtx, cancel := context.WithCancel(ctx)
		timer := time.AfterFunc(CallTimeout(cfg), cancel)

		resp, err := e.Client.Do(req.WithContext(callCtx))
		if err != nil {
			timer.Stop()
			cancel()
			return 0, err
		}

		timer.Stop()
		if resp.StatusCode >= 400 {
			errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
			resp.Body.Close()
			cancel()
			if retryableStatus(resp.StatusCode) {
				return resp.StatusCode, fmt.Errorf("upstream returned status %d", resp.StatusCode)
			}
			_, perr := adapter.ParseResponse(resp.StatusCode, errBody)
			if perr == nil {
				perr = fmt.Errorf("upstream returned status %d", resp.StatusCode)
			}
			return resp.StatusCode, perr
		}

		body = &streamBody{ReadCloser: resp.Body, cancel: cancel}
		return resp.StatusCode, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return body, adapter, nil
}

// withRetries runs one call attempt at a time until it succeeds, fails
// permanently, or the retry budget is spent. Raw transport errors never
// escape: they surface as ProviderError or UpstreamError.
func (e *Executor) withRetries(ctx context.Context, cfg *models.ModelConfig, attemptFn func(ctx context.Context) (int, error)) error {
	attempts := cfg.RetryCount + 1
	if attempts < 1 {
		attempts = 1
	}
	timeout := CallTimeout(cfg)

	var lastErr error
	var lastStatus int

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			delay := e.Backoff(cfg.TimeoutClass, attempt-1, lastStatus)
			zap.L().Warn("retrying upstream call",
				zap.String("model", cfg.Name),
				zap.Int("attempt", attempt),
				zap.Int("last_status", lastStatus),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return &UpstreamError{Message: "cancelled while waiting to retry", Code: "connection_error", Attempts: attempt - 1, Err: lastErr}
			case <-time.After(delay):
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, timeout)
		status, err := attemptFn(callCtx)
		cancel()

		if err == nil {
			return nil
		}

		// Structured vendor errors and other permanent failures stop the
		// loop immediately.
		var pe *ProviderError
		if errors.As(err, &pe) && !retryableStatus(pe.Status) {
			return pe
		}

		if !retryableStatus(status) && !retryableNetError(err) {
			return &UpstreamError{Message: "upstream call failed", Code: "api_error", Attempts: attempt, Err: err}
		}

		lastErr = err
		lastStatus = status
	}

	code := "service_unavailable"
	if errors.Is(lastErr, context.DeadlineExceeded) {
		code = "timeout"
	} else if lastStatus == 0 {
		code = "connection_error"
	}
	return &UpstreamError{Message: "retries exhausted", Code: code, Attempts: attempts, Err: lastErr}
}
