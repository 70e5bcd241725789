package mq

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"codejudge/pkg/utils/logger"
)

const fetchBackoff = 100 * time.Millisecond

type kafkaSubscription struct {
	topic   string
	handler HandlerFunc
	opts    SubscribeOptions
	parent  context.Context

	reader  *kafka.Reader
	limiter *inflightLimiter
	offsets *offsetTracker
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// SubscribeWithOptions registers handler for topic. Consumption begins after Start.
func (k *KafkaQueue) SubscribeWithOptions(ctx context.Context, topic string, handler HandlerFunc, opts *SubscribeOptions) error {
	if topic == "" {
		return errors.New("topic is required")
	}
	if handler == nil {
		return errors.New("handler is required")
	}
	var options SubscribeOptions
	if opts != nil {
		options = *opts
	}
	options.SetDefaults()
	if options.ConsumerGroup == "" {
		options.ConsumerGroup = "codejudge-" + topic
	}
	if ctx == nil {
		ctx = context.Background()
	}
	sub := &kafkaSubscription{topic: topic, handler: handler, opts: options, parent: ctx}

	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return errQueueClosed
	}
	k.subs = append(k.subs, sub)
	if k.running {
		k.start(sub)
	}
	return nil
}

// Start launches every registered subscription.
func (k *KafkaQueue) Start() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return errQueueClosed
	}
	if k.running {
		return nil
	}
	for _, sub := range k.subs {
		k.start(sub)
	}
	k.running = true
	return nil
}

// Stop cancels every subscription and waits for in-flight handlers.
// Messages whose handling was interrupted stay uncommitted.
func (k *KafkaQueue) Stop() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, sub := range k.subs {
		if sub.cancel != nil {
			sub.cancel()
		}
	}
	var errs []error
	for _, sub := range k.subs {
		sub.wg.Wait()
		if sub.reader != nil {
			errs = append(errs, sub.reader.Close())
			sub.reader = nil
		}
	}
	k.running = false
	return errors.Join(errs...)
}

func (k *KafkaQueue) start(sub *kafkaSubscription) {
	sub.reader = kafka.NewReader(kafka.ReaderConfig{
		Brokers:     k.cfg.Brokers,
		Topic:       sub.topic,
		GroupID:     sub.opts.ConsumerGroup,
		MinBytes:    k.cfg.MinBytes,
		MaxBytes:    k.cfg.MaxBytes,
		MaxWait:     k.cfg.MaxWait,
		StartOffset: kafka.FirstOffset,
		Dialer:      k.dialer,
	})
	sub.limiter = newInflightLimiter(sub.opts.Concurrency)
	sub.offsets = newOffsetTracker()
	ctx, cancel := context.WithCancel(sub.parent)
	sub.cancel = cancel

	sub.wg.Add(1)
	go func() {
		defer sub.wg.Done()
		sub.poll(ctx, k)
	}()
}

// poll fetches messages while a concurrency slot is free and hands each to its own goroutine.
func (s *kafkaSubscription) poll(ctx context.Context, deadLetters Producer) {
	for {
		if err := s.limiter.acquire(ctx); err != nil {
			return
		}
		msg, err := s.reader.FetchMessage(ctx)
		if err != nil {
			s.limiter.release()
			if ctx.Err() != nil {
				return
			}
			logger.Warn(ctx, "fetch message failed", zap.String("topic", s.topic), zap.Error(err))
			time.Sleep(fetchBackoff)
			continue
		}
		s.offsets.track(msg)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.limiter.release()
			s.handle(ctx, deadLetters, msg)
		}()
	}
}

func (s *kafkaSubscription) handle(ctx context.Context, deadLetters Producer, msg kafka.Message) {
	m := decodeMessage(msg)
	res, err := deliver(ctx, s.handler, m, s.opts)
	if res == deliveryAborted {
		return
	}
	if res == deliveryDeadLetter {
		logger.Error(ctx, "message handling failed",
			zap.String("topic", s.topic),
			zap.String("message_id", m.ID),
			zap.Int("retries", m.RetryCount),
			zap.Error(err),
		)
		if s.opts.DeadLetterTopic != "" {
			m.SetHeader("x-dead-letter-reason", err.Error())
			if pubErr := deadLetters.Publish(ctx, s.opts.DeadLetterTopic, m); pubErr != nil {
				logger.Error(ctx, "publish dead letter failed", zap.String("message_id", m.ID), zap.Error(pubErr))
			}
		}
	}
	commit, ok := s.offsets.complete(msg)
	if !ok {
		return
	}
	if err := s.reader.CommitMessages(context.WithoutCancel(ctx), commit); err != nil {
		logger.Warn(ctx, "commit message failed", zap.String("topic", s.topic), zap.Int64("offset", commit.Offset), zap.Error(err))
	}
}
