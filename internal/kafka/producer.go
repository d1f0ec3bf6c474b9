package kafka

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

var ErrProducerClosed = errors.New("kafka producer closed")

// Producer writes to any topic; the topic travels on each message.
type Producer struct {
	w       *kafka.Writer
	log     *zap.Logger
	inbox   chan kafka.Message
	stop    chan struct{}
	done    chan struct{}
	closeCh chan struct{}

	// closed is set under the write lock once the run loop stops reading
	// inbox; Publish holds the read lock while it enqueues.
	mu     sync.RWMutex
	closed bool
}

func NewProducer(brokers []string, buf int, log *zap.Logger) *Producer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 10 * time.Millisecond,
		},
		log:     log,
		inbox:   make(chan kafka.Message, buf),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		closeCh: make(chan struct{}),
	}
}

func (p *Producer) Start(ctx context.Context) {
	go func() {
		defer close(p.closeCh)
		for {
			select {
			case <-ctx.Done():
				p.shutdown()
				return
			case <-p.stop:
				p.shutdown()
				return
			case m := <-p.inbox:
				p.write(context.Background(), m)
			}
		}
	}()
}

// Publish queues a message for the background writer. It only fails when the
// producer is shutting down or ctx ends before there is room in the queue.
func (p *Producer) Publish(ctx context.Context, topic string, key, value []byte, headers ...kafka.Header) error {
	m := kafka.Message{Topic: topic, Key: key, Value: value, Time: time.Now(), Headers: headers}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrProducerClosed
	}
	select {
	case <-p.stop:
		return ErrProducerClosed
	default:
	}
	select {
	case p.inbox <- m:
		return nil
	case <-p.stop:
		return ErrProducerClosed
	case <-p.done:
		return ErrProducerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishSync writes straight to the brokers and reports the outcome.
func (p *Producer) PublishSync(ctx context.Context, topic string, key, value []byte, headers ...kafka.Header) error {
	return p.w.WriteMessages(ctx, kafka.Message{Topic: topic, Key: key, Value: value, Time: time.Now(), Headers: headers})
}

func (p *Producer) write(ctx context.Context, m kafka.Message) {
	if err := p.w.WriteMessages(ctx, m); err != nil {
		p.log.Error("kafka write failed", zap.String("topic", m.Topic), zap.ByteString("key", m.Key), zap.Error(err))
	}
}

// shutdown waits out in-flight Publish calls, so nothing lands in inbox after
// the final drain.
func (p *Producer) shutdown() {
	close(p.done)
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.drain()
}

// flush sisa pesan di inbox lalu tutup writer.
func (p *Producer) drain() {
	for {
		select {
		case m := <-p.inbox:
			p.write(context.Background(), m)
		default:
			if err := p.w.Close(); err != nil {
				p.log.Warn("kafka writer close", zap.Error(err))
			}
			return
		}
	}
}

// Close stops accepting messages; queued ones are still flushed.
func (p *Producer) Close() {
	select {
	case <-p.stop:
	default:
		close(p.stop)
	}
}

// Tunggu sampai goroutine selesai.
func (p *Producer) WaitClosed() { <-p.closeCh }
