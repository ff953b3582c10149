package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/hpungsan/shelf/internal/content"
	"github.com/hpungsan/shelf/internal/logger"
)

// Notice tells other processes sharing the store that a scope changed.
type Notice struct {
	// Origin identifies the sending process so it can ignore its own notices.
	Origin string        `json:"origin"`
	Owner  string        `json:"owner"`
	Scope  content.Scope `json:"scope"`
}

// Forwarder carries notices between processes.
type Forwarder interface {
	Publish(ctx context.Context, n Notice) error
	Start(ctx context.Context, onNotice func(Notice)) error
	Close() error
}

type redisForwarder struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

// NewRedisForwarder connects to addr and verifies the connection.
func NewRedisForwarder(log *logger.Logger, addr, channel string) (Forwarder, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = "shelf:changes"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &redisForwarder{
		log:     log.With("service", "RedisForwarder"),
		rdb:     rdb,
		channel: channel,
	}, nil
}

func (f *redisForwarder) Publish(ctx context.Context, n Notice) error {
	if f == nil || f.rdb == nil {
		return fmt.Errorf("redis forwarder not initialized")
	}
	raw, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return f.rdb.Publish(ctx, f.channel, raw).Err()
}

func (f *redisForwarder) Start(ctx context.Context, onNotice func(Notice)) error {
	if f == nil || f.rdb == nil {
		return fmt.Errorf("redis forwarder not initialized")
	}
	if onNotice == nil {
		return fmt.Errorf("onNotice callback required")
	}

	sub := f.rdb.Subscribe(ctx, f.channel)

	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				var n Notice
				if err := json.Unmarshal([]byte(m.Payload), &n); err != nil {
					f.log.Warn("bad change notice payload", "error", err)
					continue
				}
				onNotice(n)
			}
		}
	}()

	return nil
}

func (f *redisForwarder) Close() error {
	if f == nil || f.rdb == nil {
		return nil
	}
	return f.rdb.Close()
}
