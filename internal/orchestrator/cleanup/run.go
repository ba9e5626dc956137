package cleanup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"matchday/internal/model"
	"matchday/internal/pgmq"
	"matchday/internal/repository"
	"matchday/internal/service"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
)

// Job is the queue payload: one user whose processor subscriptions should be
// checked for duplicates.
type Job struct {
	UserID string `json:"user_id"`
}

// Queue is the subset of the pgmq client the orchestrator uses.
type Queue interface {
	Send(ctx context.Context, queue string, payload []byte) error
	ReadWithPoll(ctx context.Context, queue string, visibilitySec, timeoutSec, maxMessages int) ([]*pgmq.Message, error)
	Delete(ctx context.Context, queue string, msgID int64) error
}

type Options struct {
	QueueName      string
	PollTimeoutSec int
	PollMaxMsg     int
	VisibilitySec  int
	MaxRetries     int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

// Worker drains the cleanup queue and runs the duplicate cleanup for each
// user. It never writes subscription rows itself.
type Worker struct {
	queue   Queue
	cleanup service.CleanupService
	dlq     repository.DLQRepository
	opts    Options
	logger  zerolog.Logger
}

func NewWorker(queue Queue, cleanup service.CleanupService, dlq repository.DLQRepository, opts Options, logger zerolog.Logger) *Worker {
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}
	if opts.BackoffInitial <= 0 {
		opts.BackoffInitial = time.Second
	}
	if opts.BackoffMax < opts.BackoffInitial {
		opts.BackoffMax = opts.BackoffInitial
	}
	return &Worker{
		queue:   queue,
		cleanup: cleanup,
		dlq:     dlq,
		opts:    opts,
		logger:  logger.With().Str("orchestrator", "cleanup").Str("queue", opts.QueueName).Logger(),
	}
}

// Run starts the cleanup orchestrator and blocks until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info().Msg("Starting cleanup orchestrator")
	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("Shutting down cleanup orchestrator")
			return nil
		default:
		}

		msgs, err := w.queue.ReadWithPoll(ctx, w.opts.QueueName, w.opts.VisibilitySec, w.opts.PollTimeoutSec, w.opts.PollMaxMsg)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.logger.Error().Err(err).Msg("Error reading cleanup queue")
			sleep(ctx, time.Second)
			continue
		}
		for _, msg := range msgs {
			w.process(ctx, msg)
		}
	}
}

// process handles one message. The message is deleted unless the context was
// canceled mid-flight, in which case it becomes visible again later.
func (w *Worker) process(ctx context.Context, msg *pgmq.Message) {
	lg := w.logger.With().Int64("msg_id", msg.ID).Logger()

	var job Job
	if err := json.Unmarshal(msg.Data, &job); err != nil || job.UserID == "" {
		lg.Error().Err(err).Str("payload", string(msg.Data)).Msg("Invalid cleanup job; deleting message")
		w.ack(ctx, msg)
		return
	}
	lg = lg.With().Str("user_id", job.UserID).Logger()

	var result *service.CleanupResult
	backoff := retry.WithCappedDuration(w.opts.BackoffMax,
		retry.WithMaxRetries(uint64(w.opts.MaxRetries-1), retry.NewExponential(w.opts.BackoffInitial)))
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		res, err := w.cleanup.CleanupDuplicates(ctx, job.UserID)
		if err != nil && errors.Is(err, service.ErrUpstreamTransient) {
			lg.Warn().Err(err).Int("attempt", attempt).Msg("Cleanup hit a transient processor error, retrying")
			return retry.RetryableError(err)
		}
		result = res
		return err
	})

	switch {
	case ctx.Err() != nil:
		lg.Info().Msg("Cleanup interrupted; message will be redelivered")
		return
	case err == nil:
		lg.Info().Int("found", result.Found).Int("canceled", result.Canceled).Str("kept_subscription_id", result.KeptSubscriptionID).Msg("Cleanup job finished")
	case errors.Is(err, service.ErrNotFound):
		lg.Debug().Msg("User has no processor customer; nothing to clean up")
	default:
		lg.Error().Err(err).Int("attempts", attempt).Msg("Cleanup job failed; moving job to dead letters")
		w.deadLetter(ctx, msg, err)
	}
	w.ack(ctx, msg)
}

func (w *Worker) ack(ctx context.Context, msg *pgmq.Message) {
	if err := w.queue.Delete(ctx, w.opts.QueueName, msg.ID); err != nil {
		w.logger.Error().Err(err).Int64("msg_id", msg.ID).Msg("Error deleting cleanup message")
	}
}

func (w *Worker) deadLetter(ctx context.Context, msg *pgmq.Message, cause error) {
	if w.dlq == nil {
		return
	}
	attrs, _ := json.Marshal(map[string]string{"queue": w.opts.QueueName, "error": cause.Error()})
	attrStr := string(attrs)
	err := w.dlq.Create(ctx, &model.DeadLetterMessage{
		Source:     model.DeadLetterSourceCleanup,
		MessageID:  strconv.FormatInt(msg.ID, 10),
		Payload:    string(msg.Data),
		Attributes: &attrStr,
		Status:     model.DeadLetterStatusFailed,
	})
	if err != nil {
		w.logger.Error().Err(err).Int64("msg_id", msg.ID).Msg("Failed to store dead letter message")
	}
}

// Enqueue sends a cleanup job for every user with a processor customer and
// returns the number of jobs sent.
func Enqueue(ctx context.Context, logger zerolog.Logger, queue Queue, subs repository.SubscriptionRepository, queueName string, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	sent := 0
	after := ""
	for {
		ids, err := subs.ListUserIDsWithCustomer(ctx, after, batchSize)
		if err != nil {
			return sent, fmt.Errorf("list users: %w", err)
		}
		for _, id := range ids {
			payload, err := json.Marshal(Job{UserID: id})
			if err != nil {
				return sent, err
			}
			if err := queue.Send(ctx, queueName, payload); err != nil {
				return sent, fmt.Errorf("enqueue %s: %w", id, err)
			}
			sent++
		}
		if len(ids) < batchSize {
			break
		}
		after = ids[len(ids)-1]
	}
	logger.Info().Int("jobs", sent).Str("queue", queueName).Msg("Enqueued cleanup jobs")
	return sent, nil
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
