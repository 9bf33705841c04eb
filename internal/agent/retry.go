package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/faultline/faultline/internal/provider"
)

// retryDelays are the fixed backoff delays between model call attempts.
// Only rate-limit (429/529) and server (5xx) errors are retried.
var retryDelays = []time.Duration{2 * time.Second, 5 * time.Second, 15 * time.Second}

// callWithRetry calls the provider, retrying up to len(retryDelays) times on
// retryable errors. Other errors return immediately. sleep is injectable for
// tests; nil means time.Sleep.
func callWithRetry(ctx context.Context, prov provider.LLMProvider, req *provider.ChatRequest, sleep func(time.Duration)) (*provider.ChatResponse, error) {
	if sleep == nil {
		sleep = time.Sleep
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		resp, err := prov.Chat(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !provider.RetryableError(err) || attempt >= len(retryDelays) {
			return nil, lastErr
		}
		if ctx.Err() != nil {
			return nil, lastErr
		}

		delay := retryDelays[attempt]
		slog.Warn("Model call failed, retrying", "attempt", attempt+1, "delay", delay, "error", err)
		sleep(delay)
	}
}
