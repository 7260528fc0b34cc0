// Package queue implements the durable at-least-once queue on redis. A ready
// list holds message ids, each message body lives in its own key, and an
// in-flight ZSET tracks receipts by visibility deadline so a crashed consumer
// never strands a message.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fabrika/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Message is one dequeued unit of work. Receipt must be passed back to
// Delete to acknowledge; until then (or until the visibility deadline) the
// message is exclusively owned by the receiving consumer.
type Message struct {
	ID      string `json:"id"`
	Body    []byte `json:"body"`
	Group   string `json:"group,omitempty"`
	Dedup   string `json:"dedup,omitempty"`
	Receipt string `json:"-"`
}

type SendOptions struct {
	Group string
	Dedup string
}

// Producer is the send-side surface, Consumer the receive-side. The redis
// Queue satisfies both; tests substitute in-memory fakes.
type Producer interface {
	Send(ctx context.Context, queue string, body []byte, opts SendOptions) error
}

type Consumer interface {
	Receive(ctx context.Context, queue string, max int, wait time.Duration) ([]Message, error)
	Delete(ctx context.Context, queue string, receipt string) error
}

type Queue struct {
	rdb        *redis.Client
	visibility time.Duration
}

func New(rdb *redis.Client, visibility time.Duration) *Queue {
	if visibility <= 0 {
		visibility = 30 * time.Second
	}
	return &Queue{rdb: rdb, visibility: visibility}
}

func readyKey(q string) string    { return "queue:ready:" + q }
func inflightKey(q string) string { return "queue:inflight:" + q }
func msgKey(q, id string) string  { return "queue:msg:" + q + ":" + id }

func (q *Queue) Send(ctx context.Context, queue string, body []byte, opts SendOptions) error {
	msg := Message{
		ID:    uuid.New().String(),
		Body:  body,
		Group: opts.Group,
		Dedup: opts.Dedup,
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	pipe := q.rdb.TxPipeline()
	pipe.Set(ctx, msgKey(queue, msg.ID), raw, 0)
	pipe.LPush(ctx, readyKey(queue), msg.ID)
	_, err = pipe.Exec(ctx)
	return err
}

// Receive blocks up to wait for the first message, then drains up to max
// without blocking. Received ids are moved to the in-flight ZSET with a
// visibility deadline.
func (q *Queue) Receive(ctx context.Context, queue string, max int, wait time.Duration) ([]Message, error) {
	if max <= 0 {
		max = 1
	}

	ids := make([]string, 0, max)
	res, err := q.rdb.BRPop(ctx, wait, readyKey(queue)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(res) == 2 {
		ids = append(ids, res[1])
	}
	for len(ids) < max {
		id, err := q.rdb.RPop(ctx, readyKey(queue)).Result()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	deadline := float64(time.Now().Add(q.visibility).Unix())
	msgs := make([]Message, 0, len(ids))
	for _, id := range ids {
		raw, err := q.rdb.Get(ctx, msgKey(queue, id)).Bytes()
		if errors.Is(err, redis.Nil) {
			// Body expired or already deleted; drop the dangling id.
			continue
		}
		if err != nil {
			return msgs, err
		}
		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			logger.Warn("dropping undecodable queue envelope",
				zap.String("queue", queue), zap.String("id", id), zap.Error(err))
			q.rdb.Del(ctx, msgKey(queue, id))
			continue
		}
		if err := q.rdb.ZAdd(ctx, inflightKey(queue), redis.Z{Score: deadline, Member: id}).Err(); err != nil {
			return msgs, err
		}
		msg.Receipt = id
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func (q *Queue) Delete(ctx context.Context, queue string, receipt string) error {
	pipe := q.rdb.TxPipeline()
	pipe.ZRem(ctx, inflightKey(queue), receipt)
	pipe.Del(ctx, msgKey(queue, receipt))
	_, err := pipe.Exec(ctx)
	return err
}

// RequeueExpired moves in-flight messages whose visibility deadline has
// passed back onto the ready list. This is what makes delivery at-least-once.
func (q *Queue) RequeueExpired(ctx context.Context, queue string) (int, error) {
	now := time.Now().Unix()
	ids, err := q.rdb.ZRangeByScore(ctx, inflightKey(queue), &redis.ZRangeBy{
		Min: "-inf", Max: fmt.Sprintf("%d", now),
	}).Result()
	if err != nil || len(ids) == 0 {
		return 0, err
	}
	pipe := q.rdb.TxPipeline()
	for _, id := range ids {
		pipe.LPush(ctx, readyKey(queue), id)
		pipe.ZRem(ctx, inflightKey(queue), id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// RunReaper periodically requeues expired in-flight messages for the given
// queues until the context is cancelled.
func (q *Queue) RunReaper(ctx context.Context, interval time.Duration, queues ...string) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	logger.Info("queue reaper started", zap.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			logger.Info("queue reaper stopped")
			return
		case <-ticker.C:
			for _, name := range queues {
				n, err := q.RequeueExpired(ctx, name)
				if err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("requeue of expired messages failed",
						zap.String("queue", name), zap.Error(err))
					continue
				}
				if n > 0 {
					logger.Info("requeued expired messages",
						zap.String("queue", name), zap.Int("count", n))
				}
			}
		}
	}
}
