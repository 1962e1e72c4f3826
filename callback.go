package rqjobs

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	neturl "net/url"
	"time"
)

// CallbackConfig controls delivery of the completion/failure HTTP
// callback (spec §6). Retries use a bounded exponential backoff,
// resolving spec.md §9's open question in favor of a production-grade
// retry policy rather than a single fire-and-forget attempt.
type CallbackConfig struct {
	// Timeout bounds each individual GET attempt.
	Timeout time.Duration

	// MaxRetries is the number of retries attempted after the first
	// try; 0 means a single attempt with no retry.
	MaxRetries uint32

	InitialInterval     time.Duration
	MaxInterval         time.Duration
	Multiplier          float64
	RandomizationFactor float64
}

// DefaultCallbackConfig returns sane defaults: a 5s per-attempt
// timeout and up to 3 retries backing off from 200ms to 5s.
func DefaultCallbackConfig() CallbackConfig {
	return CallbackConfig{
		Timeout:             5 * time.Second,
		MaxRetries:          3,
		InitialInterval:     200 * time.Millisecond,
		MaxInterval:         5 * time.Second,
		Multiplier:          2,
		RandomizationFactor: 0.2,
	}
}

// callbackBackoff computes jittered exponential retry delays for
// callback delivery, adapted from a retry-budget counter rather than
// reimplemented from scratch.
type callbackBackoff struct {
	CallbackConfig
}

func (b *callbackBackoff) next(attempt uint32) (time.Duration, bool) {
	if attempt > b.MaxRetries {
		return 0, false
	}
	exp := float64(b.InitialInterval) * math.Pow(b.Multiplier, float64(attempt-1))
	if exp > float64(b.MaxInterval) {
		exp = float64(b.MaxInterval)
	}
	if b.RandomizationFactor > 0 {
		delta := b.RandomizationFactor * exp
		minExp := exp - delta
		maxExp := exp + delta
		exp = minExp + rand.Float64()*(maxExp-minExp)
	}
	return time.Duration(exp), true
}

// deliverCallback issues the completion/failure GET in the background
// with bounded retry. It never blocks the calling claim loop and never
// fails the job: exhausting the retry budget is logged and dropped
// (spec §6, "fire-and-forget").
func deliverCallback(log *slog.Logger, cfg CallbackConfig, url, id string, success bool, shortResult *string) {
	go func() {
		short := ""
		if shortResult != nil {
			short = *shortResult
		}
		successFlag := "0"
		if success {
			successFlag = "1"
		}
		q := neturl.Values{}
		q.Set("success", successFlag)
		q.Set("job_id", id)
		q.Set("short_result", short)
		full := url + "?" + q.Encode()

		backoff := callbackBackoff{cfg}
		var attempt uint32
		for {
			attempt++
			if deliverCallbackOnce(log, cfg.Timeout, full) {
				return
			}
			delay, ok := backoff.next(attempt)
			if !ok {
				log.Warn("callback retries exhausted", "id", id, "url", url)
				return
			}
			time.Sleep(delay)
		}
	}()
}

func deliverCallbackOnce(log *slog.Logger, timeout time.Duration, url string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		log.Debug("callback request build failed", "url", url, "err", err)
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Debug("callback attempt failed", "url", url, "err", err)
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
