// Package eventlog is the Event Log Client (C2): a partitioned,
// consumer-group-tracked stream of score-submitted messages, adapted
// from the donor ledger's zoneConsumer fetch/backoff loop but batched —
// spec.md's dispatcher and recovery detector both reason in terms of
// "batches", not individual messages.
package eventlog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"leaderboard-engine/internal/apperrors"
	"leaderboard-engine/internal/retry"
)

// Client wraps a kafka-go consumer group reader with batch semantics and
// the bounded-retry policy spec.md §4.2 requires of transient broker
// errors. The reader itself is not built until Subscribe runs, since the
// start offset it must be built with depends on the recovery detector's
// verdict.
type Client struct {
	reader *kafka.Reader
	log    *slog.Logger

	brokers []string
	groupID string
	topic   string
}

// Options configures a Client.
type Options struct {
	Brokers  []string
	ClientID string
	GroupID  string
	Topic    string
}

// New builds a Client. Subscribe must be called once, before the first
// FetchBatch, to pick the starting offset.
func New(opts Options, log *slog.Logger) *Client {
	return &Client{
		log:     log,
		brokers: opts.Brokers,
		groupID: opts.GroupID,
		topic:   opts.Topic,
	}
}

// Subscribe implements spec.md:76's subscribe(topic, fromBeginning)
// operation: it (re)builds the reader with StartOffset set so a fresh
// consumer group (one with no committed offset on a partition) starts
// from the earliest offset when fromBeginning is true, or only from
// messages produced from now on when it is false. An existing reader is
// closed first so Subscribe is safe to call again after a replay
// decision changes.
func (c *Client) Subscribe(fromBeginning bool) error {
	if c.reader != nil {
		if err := c.reader.Close(); err != nil {
			return fmt.Errorf("close previous reader: %w", err)
		}
	}

	startOffset := kafka.LastOffset
	if fromBeginning {
		startOffset = kafka.FirstOffset
	}

	c.reader = kafka.NewReader(kafka.ReaderConfig{
		Brokers:     c.brokers,
		GroupID:     c.groupID,
		GroupTopics: []string{c.topic},
		StartOffset: startOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     500 * time.Millisecond,
	})
	return nil
}

// Close disconnects the reader.
func (c *Client) Close() error {
	if c.reader == nil {
		return nil
	}
	return c.reader.Close()
}

// Batch is one pull from the log: zero or more undecoded messages plus
// the offsets the caller must commit once every message in it has been
// applied durably.
type Batch struct {
	Messages []kafka.Message
}

// Empty reports whether this batch contained no messages, the signal the
// recovery detector's empty-batch counter watches for.
func (b Batch) Empty() bool {
	return len(b.Messages) == 0
}

// FetchBatch pulls up to maxSize messages, waiting at most maxWait for
// the first one to arrive. It never blocks past maxWait once at least
// one message has been read, so batches drain quickly during replay and
// arrive promptly during tailing.
func (c *Client) FetchBatch(ctx context.Context, maxSize int, maxWait time.Duration) (Batch, error) {
	batchCtx, cancel := context.WithTimeout(ctx, maxWait)
	defer cancel()

	var batch Batch
	for len(batch.Messages) < maxSize {
		msg, err := c.fetchOne(batchCtx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				break
			}
			if errors.Is(err, context.Canceled) {
				return batch, ctx.Err()
			}
			return batch, err
		}
		batch.Messages = append(batch.Messages, msg)
	}
	return batch, nil
}

// fetchOne retries a single FetchMessage call per retry.BrokerPolicy,
// surfacing apperrors.ErrLogFatal once the budget is exhausted for a
// reason other than context cancellation.
func (c *Client) fetchOne(ctx context.Context) (kafka.Message, error) {
	var msg kafka.Message
	err := retry.Do(ctx, retry.BrokerPolicy, func(attempt int) error {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			return err
		}
		msg = m
		return nil
	})
	if err == nil {
		return msg, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return kafka.Message{}, err
	}
	return kafka.Message{}, fmt.Errorf("fetch message: %w: %w", apperrors.ErrLogFatal, err)
}

// CommitBatch commits every message's offset, to be called only after
// every event in the batch has been applied to the store.
func (c *Client) CommitBatch(ctx context.Context, batch Batch) error {
	if batch.Empty() {
		return nil
	}
	return c.reader.CommitMessages(ctx, batch.Messages...)
}

// ResetToEarliest deletes the consumer group so the next subscribe
// starts from the earliest offset, used by the engine when the recovery
// detector calls for a full replay and by the reset-offsets command. A
// missing group is not an error; any other
// failure is wrapped in apperrors.ErrResetFailed and logged by the
// caller, who still proceeds to consume from the beginning.
func ResetToEarliest(ctx context.Context, brokers []string, groupID string) error {
	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("%w: dial controller: %w", apperrors.ErrResetFailed, err)
	}
	defer func() {
		_ = conn.Close()
	}()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("%w: find controller: %w", apperrors.ErrResetFailed, err)
	}

	controllerConn, err := kafka.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	if err != nil {
		return fmt.Errorf("%w: dial leader: %w", apperrors.ErrResetFailed, err)
	}
	defer func() {
		_ = controllerConn.Close()
	}()

	client := &kafka.Client{Addr: controllerConn.RemoteAddr()}
	resp, err := client.DeleteGroups(ctx, &kafka.DeleteGroupsRequest{GroupIDs: []string{groupID}})
	if err != nil {
		return fmt.Errorf("%w: delete group: %w", apperrors.ErrResetFailed, err)
	}
	if groupErr, ok := resp.Errors[groupID]; ok && groupErr != nil {
		if errors.Is(groupErr, kafka.GroupIdNotFound) {
			return nil
		}
		return fmt.Errorf("%w: delete group %s: %w", apperrors.ErrResetFailed, groupID, groupErr)
	}
	return nil
}
