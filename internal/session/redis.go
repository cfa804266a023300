package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mindpattern/voicegate/types"
)

// RedisConfig configures the redis-backed store.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int

	// TTL is the idle expiry for a session's transcript. Zero means no
	// expiry.
	TTL time.Duration

	// MaxMessages caps a session's transcript length. Zero uses the
	// default cap.
	MaxMessages int
}

// RedisStore keeps transcripts in redis lists, one list per session.
type RedisStore struct {
	client      *redis.Client
	ttl         time.Duration
	maxMessages int
	logger      *zap.Logger
}

// NewRedisStore connects to redis and verifies the connection.
func NewRedisStore(cfg RedisConfig, logger *zap.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	maxMessages := cfg.MaxMessages
	if maxMessages <= 0 {
		maxMessages = defaultMaxMessages
	}

	logger.Info("redis session store connected", zap.String("addr", cfg.Addr))
	return &RedisStore{
		client:      client,
		ttl:         cfg.TTL,
		maxMessages: maxMessages,
		logger:      logger.With(zap.String("component", "session_redis")),
	}, nil
}

func sessionKey(sessionID string) string {
	return "voicegate:session:" + sessionID
}

func (s *RedisStore) Append(ctx context.Context, sessionID string, msgs ...types.Message) error {
	if sessionID == "" {
		return types.NewError(types.ErrInvalidRequest, "empty session id")
	}
	if len(msgs) == 0 {
		return nil
	}

	values := make([]interface{}, 0, len(msgs))
	for _, m := range msgs {
		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("encode message: %w", err)
		}
		values = append(values, data)
	}

	key := sessionKey(sessionID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, values...)
	// Cap from the left: oldest messages go first.
	pipe.LTrim(ctx, key, int64(-s.maxMessages), -1)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append session messages: %w", err)
	}
	return nil
}

func (s *RedisStore) History(ctx context.Context, sessionID string) ([]types.Message, error) {
	raw, err := s.client.LRange(ctx, sessionKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read session history: %w", err)
	}
	out := make([]types.Message, 0, len(raw))
	for _, item := range raw {
		var m types.Message
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			s.logger.Warn("skipping undecodable transcript entry",
				zap.String("session_id", sessionID),
				zap.Error(err))
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// Ping verifies the redis connection, for readiness probes.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Clear(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
