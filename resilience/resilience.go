// Package resilience wraps the cloud identity directory client with
// per-attempt timeouts, retry with exponential backoff and jitter, and
// a circuit breaker. Composition order is timeout inside each attempt,
// retry around attempts, breaker outermost, so one slow call cannot
// burn the retry budget's wall clock before the breaker can trip.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/eapache/go-resiliency/breaker"
	"github.com/rs/zerolog"

	"github.com/attrsync/attrsync/sources"
	"github.com/attrsync/attrsync/types"
)

// ErrCircuitOpen is returned without an outbound call being attempted
// while the breaker cooldown window is in effect.
var ErrCircuitOpen = errors.New("cloud directory circuit open")

// Options tunes the composed policies.
type Options struct {
	Timeout          time.Duration // per attempt
	MaxAttempts      int
	InitialBackoff   time.Duration
	BreakerThreshold int // consecutive handled failures before opening
	BreakerCooldown  time.Duration
	// OnRetry is called before each retry sleep. Optional.
	OnRetry func(op string, err error)
	// OnCircuitOpen is called when a call is rejected by the open
	// breaker. Optional.
	OnCircuitOpen func(op string)
}

func (o *Options) applyDefaults() {
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 4
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = time.Second
	}
	if o.BreakerThreshold <= 0 {
		o.BreakerThreshold = 5
	}
	if o.BreakerCooldown <= 0 {
		o.BreakerCooldown = 30 * time.Second
	}
}

// Client decorates a CloudDirectoryClient with the composed policies.
// It implements sources.CloudDirectoryClient itself.
type Client struct {
	inner sources.CloudDirectoryClient
	opts  Options
	brk   *breaker.Breaker
	log   zerolog.Logger
}

// Wrap decorates the given client.
func Wrap(inner sources.CloudDirectoryClient, opts Options, log zerolog.Logger) *Client {
	opts.applyDefaults()
	return &Client{
		inner: inner,
		opts:  opts,
		// half-open probe permits one trial call before fully closing
		brk: breaker.New(opts.BreakerThreshold, 1, opts.BreakerCooldown),
		log: log,
	}
}

func (c *Client) ListDevices(ctx context.Context, pageSize int, pageToken string) (types.DevicePage, error) {
	return execute(ctx, c, "ListDevices", func(ctx context.Context) (types.DevicePage, error) {
		return c.inner.ListDevices(ctx, pageSize, pageToken)
	})
}

func (c *Client) GetDevice(ctx context.Context, id string) (*types.DeviceIdentity, error) {
	return execute(ctx, c, "GetDevice", func(ctx context.Context) (*types.DeviceIdentity, error) {
		return c.inner.GetDevice(ctx, id)
	})
}

func (c *Client) GetDeviceByName(ctx context.Context, displayName string) (*types.DeviceIdentity, error) {
	return execute(ctx, c, "GetDeviceByName", func(ctx context.Context) (*types.DeviceIdentity, error) {
		return c.inner.GetDeviceByName(ctx, displayName)
	})
}

func (c *Client) GetExtensionAttribute(ctx context.Context, deviceID, name string) (string, error) {
	return execute(ctx, c, "GetExtensionAttribute", func(ctx context.Context) (string, error) {
		return c.inner.GetExtensionAttribute(ctx, deviceID, name)
	})
}

func (c *Client) SetExtensionAttribute(ctx context.Context, deviceID, name, value string) (*string, error) {
	return execute(ctx, c, "SetExtensionAttribute", func(ctx context.Context) (*string, error) {
		return c.inner.SetExtensionAttribute(ctx, deviceID, name, value)
	})
}

// execute runs one logical call through breaker, retry, and timeout.
func execute[T any](ctx context.Context, c *Client, op string, call func(ctx context.Context) (T, error)) (T, error) {
	var result T

	attempt := func() (T, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()

		v, err := call(attemptCtx)
		if err != nil {
			return v, classify(err)
		}
		return v, nil
	}

	var permErr error
	runErr := c.brk.Run(func() error {
		notify := func(err error, next time.Duration) {
			c.log.Warn().
				Err(err).
				Str("op", op).
				Dur("backoff", next).
				Msg("retrying cloud directory call")
			if c.opts.OnRetry != nil {
				c.opts.OnRetry(op, err)
			}
		}

		v, err := backoff.Retry(ctx, attempt,
			backoff.WithBackOff(newBackOff(c.opts.InitialBackoff)),
			backoff.WithMaxTries(uint(c.opts.MaxAttempts)),
			backoff.WithNotify(notify),
		)
		if err != nil {
			// Client errors say nothing about service health. Keep them
			// out of the breaker's consecutive-failure count so a burst
			// of bad requests cannot open the circuit.
			var se *sources.StatusError
			if errors.As(err, &se) && !se.Transient() {
				permErr = err
				return nil
			}
			return err
		}
		result = v
		return nil
	})

	if errors.Is(runErr, breaker.ErrBreakerOpen) {
		c.log.Warn().Str("op", op).Msg("circuit open, failing fast")
		if c.opts.OnCircuitOpen != nil {
			c.opts.OnCircuitOpen(op)
		}
		return result, fmt.Errorf("%s: %w", op, ErrCircuitOpen)
	}
	if runErr != nil {
		return result, fmt.Errorf("%s: %w", op, runErr)
	}
	if permErr != nil {
		return result, fmt.Errorf("%s: %w", op, permErr)
	}
	return result, nil
}

// newBackOff builds the exponential backoff schedule: the base interval
// doubles per attempt with random jitter.
func newBackOff(initial time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.Multiplier = 2
	b.RandomizationFactor = 0.5
	b.MaxInterval = 30 * time.Second
	return b
}

// classify turns an outbound error into a retry directive: transient
// failures retry, a 429 Retry-After overrides the computed backoff, and
// everything else fails the call permanently.
func classify(err error) error {
	var se *sources.StatusError
	if errors.As(err, &se) {
		if se.Code == 429 && se.RetryAfter > 0 {
			return backoff.RetryAfter(int(se.RetryAfter / time.Second))
		}
		if se.Transient() {
			return err
		}
		return backoff.Permanent(err)
	}
	// Timeouts and transport errors are transient.
	return err
}
