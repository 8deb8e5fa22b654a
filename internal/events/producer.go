package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"rugroulette/internal/logging"
)

const (
	defaultWorkerNum = 4
	jobQueueSize     = 100
)

var (
	// ErrProducerClosed is returned by SendMessage after Close.
	ErrProducerClosed = errors.New("kafka producer closed")
	// ErrQueueFull is returned by SendMessage when every worker is busy and
	// the job queue has no room left.
	ErrQueueFull = errors.New("kafka producer queue full")
)

// MessageWriter is the part of *kafka.Writer the producer uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer sends JSON events to Kafka, asynchronously through a worker pool
// or synchronously with SendMessageSync.
type Producer struct {
	writer MessageWriter
	logger zerolog.Logger
	jobs   chan kafka.Message
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

type ProducerConfig struct {
	Brokers   []string
	Logger    zerolog.Logger
	WorkerNum int
}

// NewProducer builds a producer writing to the given brokers.
func NewProducer(config ProducerConfig) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(config.Brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		MaxAttempts:            3,
		WriteTimeout:           10 * time.Second,
		ReadTimeout:            10 * time.Second,
		AllowAutoTopicCreation: true,
	}
	return NewProducerWithWriter(writer, config)
}

// NewProducerWithWriter builds a producer on top of an existing writer.
func NewProducerWithWriter(writer MessageWriter, config ProducerConfig) *Producer {
	workerNum := config.WorkerNum
	if workerNum <= 0 {
		workerNum = defaultWorkerNum
	}

	p := &Producer{
		writer: writer,
		logger: logging.WithComponent(config.Logger, "kafka-producer"),
		jobs:   make(chan kafka.Message, jobQueueSize),
	}

	for i := 0; i < workerNum; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	return p
}

func (p *Producer) worker() {
	defer p.wg.Done()
	for msg := range p.jobs {
		func() {
			defer p.recover()
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := p.writer.WriteMessages(ctx, msg); err != nil {
				p.logger.Error().
					Err(err).
					Str("topic", msg.Topic).
					Str("key", string(msg.Key)).
					Msg("Failed to send message to Kafka")
				return
			}
			p.logger.Debug().
				Str("topic", msg.Topic).
				Str("key", string(msg.Key)).
				Msg("Message sent to Kafka")
		}()
	}
}

func encode(topic, key string, value interface{}) (kafka.Message, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal event: %w", err)
	}
	return kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
		Time:  time.Now(),
	}, nil
}

// SendMessage queues value for the worker pool. It never blocks; a full
// queue drops the message and returns ErrQueueFull.
func (p *Producer) SendMessage(topic, key string, value interface{}) error {
	msg, err := encode(topic, key, value)
	if err != nil {
		return err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrProducerClosed
	}
	select {
	case p.jobs <- msg:
		return nil
	default:
		p.logger.Warn().
			Str("topic", topic).
			Str("key", key).
			Msg("Kafka queue full, dropping message")
		return ErrQueueFull
	}
}

// SendMessageSync writes value and waits for the broker acknowledgement.
func (p *Producer) SendMessageSync(ctx context.Context, topic, key string, value interface{}) error {
	msg, err := encode(topic, key, value)
	if err != nil {
		return err
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to send message to %s: %w", topic, err)
	}

	p.logger.Debug().
		Str("topic", topic).
		Str("key", key).
		Msg("Message sent to Kafka")
	return nil
}

// Close drains queued messages and closes the writer.
func (p *Producer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
	if err := p.writer.Close(); err != nil {
		p.logger.Error().Err(err).Msg("Error closing Kafka producer")
		return err
	}
	return nil
}

func (p *Producer) recover() {
	if r := recover(); r != nil {
		p.logger.Error().
			Str("operation", "send_message_kafka").
			Str("panic", fmt.Sprintf("%v", r)).
			Str("stack_trace", string(debug.Stack())).
			Msg("Panic recovered")
	}
}
