// Package gojob wires the webhook maintenance loops into go-job queues:
// scheduling the recurring retry and cleanup jobs, and executing them when
// a worker dequeues one.
package gojob

import (
	"context"
	"fmt"
	"strings"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/cabibbz/koya-caller-sub009/core"
)

const (
	JobIDDeliveryRetry  = "webhooks.deliveries.retry"
	JobIDInboundRetry   = "webhooks.inbound.retry"
	JobIDInboundCleanup = "webhooks.inbound.cleanup"
)

const (
	defaultBatchSize          = 50
	defaultIdempotencyBucket  = time.Minute
	parameterBatchSize        = "batch_size"
	dedupPolicyDropDuplicates = "drop"
)

// MaintenanceService is the slice of the webhook service the jobs drive.
type MaintenanceService interface {
	ProcessDeliveryRetries(ctx context.Context, batchSize int) (core.RetryStats, error)
	ProcessInboundRetries(ctx context.Context, batchSize int) (core.RetryStats, error)
	PurgeInboundSuccesses(ctx context.Context) (int, error)
}

// RetryPolicy bounds queue-level redelivery so a poisoned maintenance job
// cannot loop forever.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// Normalize enforces the policy bounds on a nack operation.
func (p RetryPolicy) Normalize(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		if p.DeadLetterOnMax || out.DeadLetter {
			out.DeadLetter = true
		}
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

// Scheduler enqueues the recurring maintenance jobs. Idempotency keys are
// derived from the job id and a time bucket so overlapping cron ticks
// collapse into one queued execution.
type Scheduler struct {
	enqueuer  queue.Enqueuer
	batchSize int
	bucket    time.Duration
	now       func() time.Time
}

type SchedulerOption func(*Scheduler)

func WithSchedulerBatchSize(size int) SchedulerOption {
	return func(s *Scheduler) {
		if size > 0 {
			s.batchSize = size
		}
	}
}

func WithSchedulerBucket(bucket time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if bucket > 0 {
			s.bucket = bucket
		}
	}
}

func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

func NewScheduler(enqueuer queue.Enqueuer, opts ...SchedulerOption) (*Scheduler, error) {
	if enqueuer == nil {
		return nil, fmt.Errorf("gojob: enqueuer is required")
	}
	scheduler := &Scheduler{
		enqueuer:  enqueuer,
		batchSize: defaultBatchSize,
		bucket:    defaultIdempotencyBucket,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(scheduler)
		}
	}
	return scheduler, nil
}

func (s *Scheduler) EnqueueDeliveryRetries(ctx context.Context) error {
	return s.enqueue(ctx, JobIDDeliveryRetry)
}

func (s *Scheduler) EnqueueInboundRetries(ctx context.Context) error {
	return s.enqueue(ctx, JobIDInboundRetry)
}

func (s *Scheduler) EnqueueInboundCleanup(ctx context.Context) error {
	return s.enqueue(ctx, JobIDInboundCleanup)
}

func (s *Scheduler) enqueue(ctx context.Context, jobID string) error {
	if s == nil || s.enqueuer == nil {
		return fmt.Errorf("gojob: scheduler is not configured")
	}
	return s.enqueuer.Enqueue(ctx, &job.ExecutionMessage{
		JobID: jobID,
		Parameters: map[string]any{
			parameterBatchSize: s.batchSize,
		},
		IdempotencyKey: s.idempotencyKey(jobID),
		DedupPolicy:    job.DeduplicationPolicy(dedupPolicyDropDuplicates),
	})
}

func (s *Scheduler) idempotencyKey(jobID string) string {
	bucket := s.now().UTC().Truncate(s.bucket)
	return jobID + "@" + bucket.Format(time.RFC3339)
}

// Runner maps dequeued maintenance messages onto service operations.
type Runner struct {
	service   MaintenanceService
	logger    core.Logger
	policy    RetryPolicy
	batchSize int
}

type RunnerOption func(*Runner)

func WithRunnerLogger(logger core.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithRunnerRetryPolicy(policy RetryPolicy) RunnerOption {
	return func(r *Runner) {
		r.policy = policy
	}
}

func WithRunnerBatchSize(size int) RunnerOption {
	return func(r *Runner) {
		if size > 0 {
			r.batchSize = size
		}
	}
}

func NewRunner(service MaintenanceService, opts ...RunnerOption) (*Runner, error) {
	if service == nil {
		return nil, fmt.Errorf("gojob: maintenance service is required")
	}
	runner := &Runner{
		service:   service,
		logger:    glog.Nop(),
		batchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(runner)
		}
	}
	return runner, nil
}

// Handle executes one maintenance message. Unknown job ids are an error so
// misrouted messages surface instead of draining silently.
func (r *Runner) Handle(ctx context.Context, msg *job.ExecutionMessage) error {
	if r == nil || r.service == nil {
		return fmt.Errorf("gojob: runner is not configured")
	}
	if msg == nil {
		return fmt.Errorf("gojob: execution message is required")
	}

	jobID := strings.TrimSpace(msg.JobID)
	batchSize := r.batchSizeFrom(msg.Parameters)

	switch jobID {
	case JobIDDeliveryRetry:
		stats, err := r.service.ProcessDeliveryRetries(ctx, batchSize)
		if err != nil {
			return err
		}
		r.logStats(jobID, stats)
		return nil
	case JobIDInboundRetry:
		stats, err := r.service.ProcessInboundRetries(ctx, batchSize)
		if err != nil {
			return err
		}
		r.logStats(jobID, stats)
		return nil
	case JobIDInboundCleanup:
		purged, err := r.service.PurgeInboundSuccesses(ctx)
		if err != nil {
			return err
		}
		r.logger.Info("inbound cleanup finished", "job_id", jobID, "purged", purged)
		return nil
	default:
		return fmt.Errorf("gojob: unknown job id %q", jobID)
	}
}

// ProcessNext dequeues a single message and settles it: ack on success,
// policy-normalized nack on failure. The handler error is returned so
// workers can observe it.
func (r *Runner) ProcessNext(ctx context.Context, dequeuer queue.Dequeuer, attempt int) error {
	if r == nil || r.service == nil {
		return fmt.Errorf("gojob: runner is not configured")
	}
	if dequeuer == nil {
		return fmt.Errorf("gojob: dequeuer is required")
	}
	delivery, err := dequeuer.Dequeue(ctx)
	if err != nil {
		return err
	}
	if delivery == nil {
		return nil
	}

	handleErr := r.Handle(ctx, delivery.Message())
	if handleErr == nil {
		return delivery.Ack(ctx)
	}
	nack := r.policy.Normalize(queue.NackOptions{
		Requeue: true,
		Reason:  handleErr.Error(),
	}, attempt)
	if nackErr := delivery.Nack(ctx, nack); nackErr != nil {
		return fmt.Errorf("gojob: nack after handler failure: %w", nackErr)
	}
	return handleErr
}

func (r *Runner) batchSizeFrom(parameters map[string]any) int {
	raw, ok := parameters[parameterBatchSize]
	if !ok {
		return r.batchSize
	}
	switch value := raw.(type) {
	case int:
		if value > 0 {
			return value
		}
	case int64:
		if value > 0 {
			return int(value)
		}
	case float64:
		if value > 0 {
			return int(value)
		}
	}
	return r.batchSize
}

func (r *Runner) logStats(jobID string, stats core.RetryStats) {
	r.logger.Info("retry pass finished",
		"job_id", jobID,
		"processed", stats.Processed,
		"succeeded", stats.Succeeded,
		"failed", stats.Failed,
	)
}

// LoggingWorkerHook emits worker lifecycle events through the shared logger.
type LoggingWorkerHook struct {
	logger core.Logger
}

func NewLoggingWorkerHook(logger core.Logger) *LoggingWorkerHook {
	if logger == nil {
		logger = glog.Nop()
	}
	return &LoggingWorkerHook{logger: logger}
}

func (h *LoggingWorkerHook) OnStart(_ context.Context, event worker.Event) {
	h.logger.Debug("maintenance job started", "job_id", eventJobID(event))
}

func (h *LoggingWorkerHook) OnSuccess(_ context.Context, event worker.Event) {
	h.logger.Info("maintenance job succeeded",
		"job_id", eventJobID(event),
		"attempt", event.Attempt,
		"duration", event.Duration.String(),
	)
}

func (h *LoggingWorkerHook) OnFailure(_ context.Context, event worker.Event) {
	h.logger.Error("maintenance job failed",
		"job_id", eventJobID(event),
		"attempt", event.Attempt,
		"error", event.Err,
	)
}

func (h *LoggingWorkerHook) OnRetry(_ context.Context, event worker.Event) {
	h.logger.Warn("maintenance job retrying",
		"job_id", eventJobID(event),
		"attempt", event.Attempt,
		"delay", event.Delay.String(),
	)
}

func eventJobID(event worker.Event) string {
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	if message == nil {
		return ""
	}
	return message.JobID
}

var _ worker.Hook = (*LoggingWorkerHook)(nil)
