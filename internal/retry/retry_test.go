package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDo_Success(t *testing.T) {
	config := DefaultConfig()
	config.MaxAttempts = 3

	calls := 0
	result := Do(context.Background(), config, func() error {
		calls++
		return nil
	})

	if result.Err != nil {
		t.Errorf("expected no error, got %v", result.Err)
	}
	if result.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", result.Attempts)
	}
}

func TestDo_RetryThenSuccess(t *testing.T) {
	config := Config{
		MaxAttempts:  5,
		InitialDelay: 1 * time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Factor:       2.0,
	}

	calls := 0
	result := Do(context.Background(), config, func() error {
		calls++
		if calls < 3 {
			return errors.New("503 service unavailable")
		}
		return nil
	})

	if result.Err != nil {
		t.Errorf("expected no error, got %v", result.Err)
	}
	if result.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", result.Attempts)
	}
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	config := Config{
		MaxAttempts:  5,
		InitialDelay: 1 * time.Millisecond,
	}

	calls := 0
	result := Do(context.Background(), config, func() error {
		calls++
		return errors.New("invalid api key")
	})

	if result.Err == nil {
		t.Error("expected error")
	}
	if result.Attempts != 1 {
		t.Errorf("expected 1 attempt for a non-retryable error, got %d", result.Attempts)
	}
}

func TestDo_MaxAttempts(t *testing.T) {
	config := Config{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Factor:       2.0,
	}

	calls := 0
	result := Do(context.Background(), config, func() error {
		calls++
		return errors.New("rate limit exceeded")
	})

	if result.Err == nil {
		t.Error("expected error")
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_PermanentError(t *testing.T) {
	config := Config{MaxAttempts: 5, InitialDelay: 1 * time.Millisecond}

	calls := 0
	result := Do(context.Background(), config, func() error {
		calls++
		return Permanent(errors.New("rate limit exceeded"))
	})

	if result.Err == nil {
		t.Error("expected error")
	}
	if calls != 1 {
		t.Errorf("Permanent should suppress retries even for a matching message, got %d calls", calls)
	}
}

func TestDo_ContextCanceled(t *testing.T) {
	config := Config{MaxAttempts: 5, InitialDelay: 100 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	result := Do(ctx, config, func() error {
		return errors.New("connection reset by peer")
	})

	if !errors.Is(result.Err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", result.Err)
	}
}

func TestDoWithValue(t *testing.T) {
	config := Config{MaxAttempts: 3, InitialDelay: 1 * time.Millisecond}

	calls := 0
	value, result := DoWithValue(context.Background(), config, func() (int, error) {
		calls++
		if calls < 2 {
			return 0, errors.New("overloaded_error")
		}
		return 42, nil
	})

	if result.Err != nil {
		t.Errorf("expected no error, got %v", result.Err)
	}
	if value != 42 {
		t.Errorf("expected 42, got %d", value)
	}
}

func TestPermanent(t *testing.T) {
	err := errors.New("original")
	perm := Permanent(err)

	if IsRetryable(perm) {
		t.Error("Permanent-wrapped error should never be retryable")
	}
	if !errors.Is(perm, err) {
		t.Error("should unwrap to original")
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(nil) {
		t.Error("nil should not be retryable")
	}
	if IsRetryable(Permanent(errors.New("rate limit"))) {
		t.Error("permanent error should not be retryable")
	}
	if !IsRetryable(errors.New("429 too many requests")) {
		t.Error("429 should be retryable")
	}
	if !IsRetryable(errors.New("upstream connection reset")) {
		t.Error("connection reset should be retryable")
	}
	if IsRetryable(errors.New("invalid request: missing field 'model'")) {
		t.Error("a plain validation error should not be retryable")
	}
	if IsRetryable(context.Canceled) {
		t.Error("context.Canceled should not be retryable")
	}
}

type statusErr struct{ code int }

func (e statusErr) Error() string   { return "http error" }
func (e statusErr) StatusCode() int { return e.code }

func TestIsRetryable_StatusCoder(t *testing.T) {
	if !IsRetryable(statusErr{code: 429}) {
		t.Error("429 status should be retryable")
	}
	if !IsRetryable(statusErr{code: 503}) {
		t.Error("503 status should be retryable")
	}
	if IsRetryable(statusErr{code: 401}) {
		t.Error("401 status should not be retryable")
	}
	if IsRetryable(statusErr{code: 400}) {
		t.Error("400 status should not be retryable")
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.MaxAttempts != 3 {
		t.Error("wrong default MaxAttempts")
	}
	if config.Factor != 2.0 {
		t.Error("wrong default Factor")
	}
	if !config.Jitter {
		t.Error("default should have jitter")
	}
}
