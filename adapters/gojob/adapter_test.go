package gojob

import (
	"context"
	"errors"
	"testing"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"

	"github.com/cabibbz/koya-caller-sub009/core"
)

func TestScheduler_EnqueueDeliveryRetries(t *testing.T) {
	enqueuer := &stubQueueEnqueuer{}
	fixed := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	scheduler, err := NewScheduler(enqueuer,
		WithSchedulerBatchSize(25),
		WithSchedulerClock(func() time.Time { return fixed }),
	)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	if err := scheduler.EnqueueDeliveryRetries(context.Background()); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if enqueuer.last == nil {
		t.Fatalf("expected enqueued message")
	}
	if enqueuer.last.JobID != JobIDDeliveryRetry {
		t.Fatalf("expected job id %q, got %q", JobIDDeliveryRetry, enqueuer.last.JobID)
	}
	if got := enqueuer.last.Parameters[parameterBatchSize]; got != 25 {
		t.Fatalf("expected batch size 25, got %v", got)
	}
	if enqueuer.last.IdempotencyKey != JobIDDeliveryRetry+"@2026-03-14T09:26:00Z" {
		t.Fatalf("unexpected idempotency key %q", enqueuer.last.IdempotencyKey)
	}
	if string(enqueuer.last.DedupPolicy) != dedupPolicyDropDuplicates {
		t.Fatalf("expected drop dedup policy, got %q", enqueuer.last.DedupPolicy)
	}
}

func TestScheduler_IdempotencyKeyCollapsesWithinBucket(t *testing.T) {
	enqueuer := &stubQueueEnqueuer{}
	base := time.Date(2026, 3, 14, 9, 26, 5, 0, time.UTC)
	current := base
	scheduler, err := NewScheduler(enqueuer, WithSchedulerClock(func() time.Time { return current }))
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	if err := scheduler.EnqueueInboundRetries(context.Background()); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	first := enqueuer.last.IdempotencyKey

	current = base.Add(40 * time.Second)
	if err := scheduler.EnqueueInboundRetries(context.Background()); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if enqueuer.last.IdempotencyKey != first {
		t.Fatalf("expected same key within bucket, got %q vs %q", first, enqueuer.last.IdempotencyKey)
	}

	current = base.Add(90 * time.Second)
	if err := scheduler.EnqueueInboundRetries(context.Background()); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if enqueuer.last.IdempotencyKey == first {
		t.Fatalf("expected new key in next bucket")
	}
}

func TestRetryPolicy_Normalize(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, MaxDelay: 10 * time.Second, DeadLetterOnMax: true}

	out := policy.Normalize(queue.NackOptions{Requeue: true, Delay: time.Minute}, 1)
	if out.Delay != 10*time.Second {
		t.Fatalf("expected delay capped at 10s, got %s", out.Delay)
	}
	if !out.Requeue || out.DeadLetter {
		t.Fatalf("expected plain requeue below max attempts")
	}

	out = policy.Normalize(queue.NackOptions{Requeue: true, Delay: -time.Second}, 3)
	if out.Requeue {
		t.Fatalf("expected no requeue at max attempts")
	}
	if !out.DeadLetter {
		t.Fatalf("expected dead letter at max attempts")
	}
	if out.Delay != 0 {
		t.Fatalf("expected negative delay clamped, got %s", out.Delay)
	}

	out = RetryPolicy{}.Normalize(queue.NackOptions{}, 5)
	if !out.Requeue {
		t.Fatalf("expected requeue fallback when nothing else is set")
	}
}

func TestRunner_HandleDispatchesByJobID(t *testing.T) {
	service := &stubMaintenanceService{}
	runner, err := NewRunner(service)
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}

	msg := &job.ExecutionMessage{
		JobID:      JobIDDeliveryRetry,
		Parameters: map[string]any{parameterBatchSize: float64(12)},
	}
	if err := runner.Handle(context.Background(), msg); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if service.deliveryBatch != 12 {
		t.Fatalf("expected batch size 12 from float parameter, got %d", service.deliveryBatch)
	}

	if err := runner.Handle(context.Background(), &job.ExecutionMessage{JobID: JobIDInboundRetry}); err != nil {
		t.Fatalf("handle inbound: %v", err)
	}
	if service.inboundBatch != defaultBatchSize {
		t.Fatalf("expected default batch size, got %d", service.inboundBatch)
	}

	if err := runner.Handle(context.Background(), &job.ExecutionMessage{JobID: JobIDInboundCleanup}); err != nil {
		t.Fatalf("handle cleanup: %v", err)
	}
	if !service.purged {
		t.Fatalf("expected purge to run")
	}

	if err := runner.Handle(context.Background(), &job.ExecutionMessage{JobID: "unknown.job"}); err == nil {
		t.Fatalf("expected error for unknown job id")
	}
}

func TestRunner_ProcessNextAcksOnSuccess(t *testing.T) {
	service := &stubMaintenanceService{}
	runner, err := NewRunner(service)
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}

	delivery := &stubQueueDelivery{msg: &job.ExecutionMessage{JobID: JobIDInboundCleanup}}
	dequeuer := &stubQueueDequeuer{delivery: delivery}

	if err := runner.ProcessNext(context.Background(), dequeuer, 1); err != nil {
		t.Fatalf("process next: %v", err)
	}
	if !delivery.acked {
		t.Fatalf("expected delivery ack")
	}
}

func TestRunner_ProcessNextNacksOnFailure(t *testing.T) {
	service := &stubMaintenanceService{
		deliveryErr: errors.New("store offline"),
	}
	runner, err := NewRunner(service, WithRunnerRetryPolicy(RetryPolicy{
		MaxAttempts:     3,
		DeadLetterOnMax: true,
	}))
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}

	delivery := &stubQueueDelivery{msg: &job.ExecutionMessage{JobID: JobIDDeliveryRetry}}
	dequeuer := &stubQueueDequeuer{delivery: delivery}

	handleErr := runner.ProcessNext(context.Background(), dequeuer, 1)
	if handleErr == nil {
		t.Fatalf("expected handler error to surface")
	}
	if delivery.acked {
		t.Fatalf("expected no ack on failure")
	}
	if !delivery.nackOpts.Requeue {
		t.Fatalf("expected requeue below max attempts")
	}
	if delivery.nackOpts.Reason != "store offline" {
		t.Fatalf("expected failure reason, got %q", delivery.nackOpts.Reason)
	}

	handleErr = runner.ProcessNext(context.Background(), dequeuer, 3)
	if handleErr == nil {
		t.Fatalf("expected handler error to surface")
	}
	if delivery.nackOpts.Requeue {
		t.Fatalf("expected no requeue at max attempts")
	}
	if !delivery.nackOpts.DeadLetter {
		t.Fatalf("expected dead letter at max attempts")
	}
}

type stubMaintenanceService struct {
	deliveryBatch int
	inboundBatch  int
	purged        bool
	deliveryErr   error
}

func (s *stubMaintenanceService) ProcessDeliveryRetries(_ context.Context, batchSize int) (core.RetryStats, error) {
	s.deliveryBatch = batchSize
	return core.RetryStats{Processed: batchSize}, s.deliveryErr
}

func (s *stubMaintenanceService) ProcessInboundRetries(_ context.Context, batchSize int) (core.RetryStats, error) {
	s.inboundBatch = batchSize
	return core.RetryStats{}, nil
}

func (s *stubMaintenanceService) PurgeInboundSuccesses(context.Context) (int, error) {
	s.purged = true
	return 0, nil
}

type stubQueueEnqueuer struct {
	last *job.ExecutionMessage
}

func (s *stubQueueEnqueuer) Enqueue(_ context.Context, msg *job.ExecutionMessage) error {
	s.last = msg
	return nil
}

type stubQueueDequeuer struct {
	delivery queue.Delivery
}

func (s *stubQueueDequeuer) Dequeue(context.Context) (queue.Delivery, error) {
	return s.delivery, nil
}

type stubQueueDelivery struct {
	msg      *job.ExecutionMessage
	acked    bool
	nackOpts queue.NackOptions
}

func (s *stubQueueDelivery) Message() *job.ExecutionMessage {
	return s.msg
}

func (s *stubQueueDelivery) Ack(context.Context) error {
	s.acked = true
	return nil
}

func (s *stubQueueDelivery) Nack(_ context.Context, opts queue.NackOptions) error {
	s.nackOpts = opts
	return nil
}
