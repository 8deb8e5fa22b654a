package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"rugroulette/internal/game"
)

const (
	ChannelRugs   = "rug:events"
	ChannelSpins  = "rug:spins"
	KeyLastRug    = "rug:pool:last"
	KeyRugHistory = "rug:history"
	KeySpinLog    = "rug:spins:recent"

	historyLength = 100
)

// Sink publishes resolved pools and spins on Redis pub/sub and keeps a
// bounded list of recent ones. Nothing stored here is read back by the engine.
type Sink struct {
	client *redis.Client
}

func NewSink(s Service) *Sink {
	return &Sink{client: s.GetClient()}
}

func (s *Sink) RecordRug(ctx context.Context, pool game.Pool) error {
	data, err := json.Marshal(pool)
	if err != nil {
		return fmt.Errorf("failed to marshal pool %s: %w", pool.ID, err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, KeyLastRug, data, 0)
		pipe.LPush(ctx, KeyRugHistory, data)
		pipe.LTrim(ctx, KeyRugHistory, 0, historyLength-1)
		pipe.Publish(ctx, ChannelRugs, data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record rug %s in redis: %w", pool.ID, err)
	}
	return nil
}

func (s *Sink) RecordSpin(ctx context.Context, spin game.SpinRecord) error {
	data, err := json.Marshal(spin)
	if err != nil {
		return fmt.Errorf("failed to marshal spin: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, KeySpinLog, data)
		pipe.LTrim(ctx, KeySpinLog, 0, historyLength-1)
		pipe.Publish(ctx, ChannelSpins, data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record spin in redis: %w", err)
	}
	return nil
}

// RecentRugs returns up to limit resolved pools, newest first.
func (s *Sink) RecentRugs(ctx context.Context, limit int) ([]game.Pool, error) {
	if limit <= 0 || limit > historyLength {
		limit = historyLength
	}

	raw, err := s.client.LRange(ctx, KeyRugHistory, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read rug history: %w", err)
	}

	pools := make([]game.Pool, 0, len(raw))
	for _, item := range raw {
		var pool game.Pool
		if err := json.Unmarshal([]byte(item), &pool); err != nil {
			return nil, fmt.Errorf("failed to decode rug history entry: %w", err)
		}
		pools = append(pools, pool)
	}
	return pools, nil
}
