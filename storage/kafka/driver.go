// Package kafka treats topics as storage locations. Reading a topic yields
// every message value as one self-contained chunk; writing publishes each
// chunk as one message.
package kafka

import (
	"context"
	"errors"
	"iter"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"adi/internal/logging"
	"adi/storage"
)

// ErrWholeRead is returned by Read: a topic has no end to read up to.
var ErrWholeRead = errors.New("kafka: whole-payload reads are not supported; read the topic as a stream")

type Driver struct {
	cfg      Config
	producer sarama.SyncProducer
	newGroup func() (sarama.ConsumerGroup, error)
	closers  []func() error

	mu        sync.Mutex
	published map[string]int64
}

var (
	_ storage.Driver = (*Driver)(nil)
	_ storage.Framed = (*Driver)(nil)
)

// New connects one sarama client shared by the producer and every consumer
// group the driver opens.
func New(cfg Config) (*Driver, error) {
	ApplyDefaults(&cfg)
	sc, err := cfg.sarama()
	if err != nil {
		return nil, err
	}
	cl, err := sarama.NewClient(cfg.Brokers, sc)
	if err != nil {
		return nil, err
	}
	p, err := sarama.NewSyncProducerFromClient(cl)
	if err != nil {
		cl.Close()
		return nil, err
	}
	d := NewWithClients(cfg, p, func() (sarama.ConsumerGroup, error) {
		return sarama.NewConsumerGroupFromClient(cfg.GroupID, cl)
	})
	d.closers = append(d.closers, cl.Close)
	return d, nil
}

// NewWithClients builds a driver over existing clients. newGroup is called
// once per ReadChunked.
func NewWithClients(cfg Config, p sarama.SyncProducer, newGroup func() (sarama.ConsumerGroup, error)) *Driver {
	ApplyDefaults(&cfg)
	return &Driver{cfg: cfg, producer: p, newGroup: newGroup, published: make(map[string]int64)}
}

func (d *Driver) Framed() bool { return true }

func (d *Driver) Read(context.Context, string) ([]byte, error) {
	return nil, ErrWholeRead
}

// ReadChunked consumes topic through a consumer group. chunkSize is ignored:
// every message is one chunk. The sequence ends when ctx ends, when the
// consumer stops, or after IdleTimeout without a message.
func (d *Driver) ReadChunked(ctx context.Context, topic string, _ int) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		group, err := d.newGroup()
		if err != nil {
			yield(nil, err)
			return
		}
		ctx, cancel := context.WithCancel(ctx)
		out := make(chan []byte, d.cfg.Buffer)
		consumeErr := make(chan error, 1)
		h := &groupHandler{out: out, clock: newCommitClock(d.cfg.CommitInt)}

		go func() {
			defer close(out)
			for {
				if err := group.Consume(ctx, []string{topic}, h); err != nil {
					consumeErr <- err
					return
				}
				if ctx.Err() != nil {
					return
				}
			}
		}()
		defer func() {
			cancel()
			for range out {
			}
			if err := group.Close(); err != nil {
				logging.Component("kafka").Warn("closing consumer group", "topic", topic, "err", err)
			}
		}()

		groupErrs := group.Errors()
		var idle <-chan time.Time
		var timer *time.Timer
		if d.cfg.IdleTimeout > 0 {
			timer = time.NewTimer(d.cfg.IdleTimeout)
			defer timer.Stop()
			idle = timer.C
		}
		for {
			select {
			case b, ok := <-out:
				if !ok {
					select {
					case err := <-consumeErr:
						yield(nil, err)
					default:
						if err := ctx.Err(); err != nil {
							yield(nil, err)
						}
					}
					return
				}
				if !yield(b, nil) {
					return
				}
				if timer != nil {
					timer.Reset(d.cfg.IdleTimeout)
				}
			case err, ok := <-groupErrs:
				if !ok {
					groupErrs = nil
					continue
				}
				if err != nil {
					yield(nil, err)
					return
				}
			case <-idle:
				logging.Component("kafka").Debug("read idle, ending stream", "topic", topic, "idle", d.cfg.IdleTimeout)
				return
			}
		}
	}
}

func (d *Driver) Write(ctx context.Context, topic string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, _, err := d.producer.SendMessage(&sarama.ProducerMessage{Topic: topic, Value: sarama.ByteEncoder(data)}); err != nil {
		return err
	}
	d.mu.Lock()
	d.published[topic] += int64(len(data))
	d.mu.Unlock()
	return nil
}

// WriteStream publishes each chunk as its own message.
func (d *Driver) WriteStream(ctx context.Context, topic string, chunks iter.Seq2[[]byte, error]) error {
	for b, err := range chunks {
		if err != nil {
			return err
		}
		if err := d.Write(ctx, topic, b); err != nil {
			return err
		}
	}
	return nil
}

// SizeOf reports the bytes this driver has published to topic.
func (d *Driver) SizeOf(ctx context.Context, topic string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.published[topic], nil
}

func (d *Driver) Close() error {
	var errs []error
	if d.producer != nil {
		errs = append(errs, d.producer.Close())
	}
	for _, c := range d.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

type groupHandler struct {
	out   chan<- []byte
	clock *commitClock
}

func (*groupHandler) Setup(sarama.ConsumerGroupSession) error { return nil }

// Cleanup flushes whatever was marked since the last commit.
func (*groupHandler) Cleanup(sess sarama.ConsumerGroupSession) error {
	sess.Commit()
	return nil
}

// ConsumeClaim hands values to the reader. A message is marked only after
// the reader's buffer accepted it, so a full buffer stalls the claim.
func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-sess.Context().Done():
			return nil
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			select {
			case h.out <- msg.Value:
			case <-sess.Context().Done():
				return nil
			}
			sess.MarkMessage(msg, "")
			if h.clock.due(time.Now()) {
				sess.Commit()
			}
		}
	}
}
