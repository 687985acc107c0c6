package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/onionroute/internal/logger"
	"github.com/redis/go-redis/v9"
)

// ConnectOptions defines the Redis client and how long to wait for it at startup.
type ConnectOptions struct {
	URL            string        // Optional redis:// URL, overrides Addr/User/Password/DB
	Addr           string        // Redis address (ex: "localhost:6379")
	User           string        // Optional username
	Password       string        // Optional password
	DB             int           // Redis DB number
	DialTimeout    time.Duration // Redis dial timeout
	ReadTimeout    time.Duration // Redis read timeout
	WriteTimeout   time.Duration // Redis write timeout
	PoolSize       int           // Redis connection pool size
	ConnectTimeout time.Duration // Total time allowed for connection attempts (ex: 30s)
	RetryInterval  time.Duration // Initial wait between retries, doubled after each failure
	MaxWait        time.Duration // Cap on the wait between retries
	PingTimeout    time.Duration // Timeout for each ping attempt
	WarnThreshold  int           // Attempts logged as warnings before switching to errors
}

func (o ConnectOptions) validate() error {
	switch {
	case o.URL == "" && o.Addr == "":
		return fmt.Errorf("redis address or URL is required")
	case o.ConnectTimeout <= 0:
		return fmt.Errorf("ConnectTimeout must be > 0, got %v", o.ConnectTimeout)
	case o.RetryInterval <= 0:
		return fmt.Errorf("RetryInterval must be > 0, got %v", o.RetryInterval)
	case o.MaxWait < o.RetryInterval:
		return fmt.Errorf("MaxWait must be >= RetryInterval, got %v < %v", o.MaxWait, o.RetryInterval)
	case o.PingTimeout <= 0:
		return fmt.Errorf("PingTimeout must be > 0, got %v", o.PingTimeout)
	case o.WarnThreshold < 0:
		return fmt.Errorf("WarnThreshold must be >= 0, got %d", o.WarnThreshold)
	}
	return nil
}

func (o ConnectOptions) clientOptions() (*redis.Options, error) {
	var ro *redis.Options
	if o.URL != "" {
		parsed, err := redis.ParseURL(o.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis URL: %w", err)
		}
		ro = parsed
	} else {
		ro = &redis.Options{
			Addr:     o.Addr,
			Username: o.User,
			Password: o.Password,
			DB:       o.DB,
		}
	}

	if o.DialTimeout > 0 {
		ro.DialTimeout = o.DialTimeout
	}
	if o.ReadTimeout > 0 {
		ro.ReadTimeout = o.ReadTimeout
	}
	if o.WriteTimeout > 0 {
		ro.WriteTimeout = o.WriteTimeout
	}
	if o.PoolSize > 0 {
		ro.PoolSize = o.PoolSize
	}
	return ro, nil
}

// backoff doubles the wait after each failed attempt, up to max.
type backoff struct {
	next time.Duration
	max  time.Duration
}

func (b *backoff) wait() time.Duration {
	w := b.next
	b.next *= 2
	if b.next > b.max {
		b.next = b.max
	}
	return w
}

// Connect creates a Redis client and pings it until it answers, ctx is
// cancelled or ConnectTimeout elapses. The client is closed on failure.
func Connect(ctx context.Context, opts ConnectOptions, log logger.Logger) (*redis.Client, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	ro, err := opts.clientOptions()
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(ro)
	log = log.With(logger.String("addr", ro.Addr))

	if err := waitReady(ctx, client, opts, log); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func waitReady(parent context.Context, client *redis.Client, opts ConnectOptions, log logger.Logger) error {
	ctx, cancel := context.WithTimeout(parent, opts.ConnectTimeout)
	defer cancel()

	log.Info("connecting to redis", logger.Duration("timeout", opts.ConnectTimeout))

	start := time.Now()
	delay := backoff{next: opts.RetryInterval, max: opts.MaxWait}

	for attempt := 1; ; attempt++ {
		pingCtx, pingCancel := context.WithTimeout(ctx, opts.PingTimeout)
		err := client.Ping(pingCtx).Err()
		pingCancel()

		if err == nil {
			if attempt > 1 {
				log.Warn("connected to redis after retry",
					logger.Int("attempts", attempt),
					logger.Duration("elapsed", time.Since(start)))
			} else {
				log.Info("connected to redis")
			}
			return nil
		}

		wait := delay.wait()
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Error("redis unavailable - giving up",
				logger.Int("attempts", attempt),
				logger.Duration("timeout", opts.ConnectTimeout),
				logger.Error(err))
			return fmt.Errorf("redis unavailable after %d attempts (timeout: %v): %w",
				attempt, opts.ConnectTimeout, err)

		case <-timer.C:
			fields := []logger.Field{
				logger.Int("attempt", attempt),
				logger.Duration("next_retry_in", wait),
				logger.Error(err),
			}
			if attempt <= opts.WarnThreshold {
				log.Warn("redis connection failed, retrying", fields...)
			} else {
				log.Error("redis still unavailable, retrying", fields...)
			}
		}
	}
}
