package judge

import (
	"context"
	"errors"
	"net"
	"time"
)

// retryProvider wraps a Provider with a bounded retry on timeout-class
// failures. Format-level failures ("invalid response") never reach here;
// those are judged by the caller on a successful reply.
type retryProvider struct {
	inner      Provider
	maxRetries int
	delay      time.Duration
}

// WithRetry wraps p so timeout-class errors are retried up to maxRetries
// times with a fixed delay between attempts.
func WithRetry(p Provider, maxRetries int, delay time.Duration) Provider {
	if p == nil {
		return nil
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	if delay < 0 {
		delay = 0
	}
	return &retryProvider{inner: p, maxRetries: maxRetries, delay: delay}
}

func (p *retryProvider) Name() string {
	if p == nil || p.inner == nil {
		return ""
	}
	return p.inner.Name()
}

func (p *retryProvider) Complete(ctx context.Context, prompt string) (string, error) {
	if p == nil || p.inner == nil {
		return "", errors.New("judge: nil provider")
	}

	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		out, err := p.inner.Complete(ctx, prompt)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !isTimeoutClass(err) || attempt == p.maxRetries {
			return "", err
		}
		if err := sleepWithContext(ctx, p.delay); err != nil {
			return "", err
		}
	}
	return "", lastErr
}

// IsTimeout reports whether err is a timeout-class failure (network timeout
// or exceeded deadline), as opposed to a format or auth failure.
func IsTimeout(err error) bool {
	return isTimeoutClass(err)
}

func isTimeoutClass(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
