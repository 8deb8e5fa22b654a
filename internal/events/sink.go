package events

import (
	"context"

	"rugroulette/internal/game"
)

// Sink publishes resolved pools and quick spins to Kafka. Rugs are keyed by
// pool id and written synchronously; spins are keyed by wallet address and
// go through the producer's worker pool.
type Sink struct {
	producer   *Producer
	topicRugs  string
	topicSpins string
}

func NewSink(producer *Producer, topicRugs, topicSpins string) *Sink {
	return &Sink{producer: producer, topicRugs: topicRugs, topicSpins: topicSpins}
}

func (s *Sink) RecordRug(ctx context.Context, pool game.Pool) error {
	return s.producer.SendMessageSync(ctx, s.topicRugs, pool.ID, pool)
}

func (s *Sink) RecordSpin(_ context.Context, spin game.SpinRecord) error {
	return s.producer.SendMessage(s.topicSpins, spin.Address, spin)
}

func (s *Sink) Close() error {
	return s.producer.Close()
}
