package gojob

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-xbridge/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

func TestMessageMappingRoundTrip(t *testing.T) {
	original := &core.JobExecutionMessage{
		JobID:          JobIDTransportDeliver,
		ScriptPath:     "xbridge.transport.deliver",
		Parameters:     map[string]any{"delivery_id": "0x2.eth:1"},
		IdempotencyKey: "0x2.eth:1",
		DedupPolicy:    "drop",
	}

	roundTrip := FromExecutionMessage(ToExecutionMessage(original))
	if roundTrip.JobID != original.JobID {
		t.Fatalf("expected job id %q, got %q", original.JobID, roundTrip.JobID)
	}
	if roundTrip.IdempotencyKey != original.IdempotencyKey {
		t.Fatalf("expected idempotency key %q, got %q", original.IdempotencyKey, roundTrip.IdempotencyKey)
	}
	if roundTrip.DedupPolicy != original.DedupPolicy {
		t.Fatalf("expected dedup policy %q, got %q", original.DedupPolicy, roundTrip.DedupPolicy)
	}
	if roundTrip.Parameters["delivery_id"] != "0x2.eth:1" {
		t.Fatalf("expected parameters to survive mapping")
	}
}

func TestEnqueueAndDequeueAdapters(t *testing.T) {
	ctx := context.Background()
	enqueuer := &stubQueueEnqueuer{}
	if err := NewEnqueuerAdapter(enqueuer).Enqueue(ctx, &core.JobExecutionMessage{
		JobID:          JobIDTransportDeliver,
		Parameters:     map[string]any{"delivery_id": "0x2.eth:3"},
		IdempotencyKey: "0x2.eth:3",
	}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if enqueuer.last == nil || enqueuer.last.JobID != JobIDTransportDeliver {
		t.Fatalf("expected mapped go-job message")
	}

	dequeuer := &stubQueueDequeuer{deliveries: []*stubQueueDelivery{{msg: enqueuer.last}}}
	delivery, err := NewDequeuerAdapter(dequeuer, RetryPolicy{}).Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if got := delivery.Message(); got == nil || got.IdempotencyKey != "0x2.eth:3" {
		t.Fatalf("expected mapped core message, got %#v", got)
	}
	if err := delivery.Ack(ctx); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if !dequeuer.deliveries[0].acked {
		t.Fatalf("expected ack on underlying delivery")
	}
}

func TestRetryPolicy_BoundsDelayAndDeadLetters(t *testing.T) {
	ctx := context.Background()
	raw := &stubQueueDelivery{msg: &job.ExecutionMessage{JobID: JobIDTransportDeliver}}
	adapter := NewDeliveryAdapter(raw, RetryPolicy{
		MaxAttempts:     3,
		MaxDelay:        10 * time.Second,
		DeadLetterOnMax: true,
	})

	if err := adapter.NackForAttempt(ctx, core.JobNackOptions{Delay: 30 * time.Second, Requeue: true}, 1); err != nil {
		t.Fatalf("nack attempt 1: %v", err)
	}
	if raw.nackOpts.Delay != 10*time.Second || !raw.nackOpts.Requeue {
		t.Fatalf("expected bounded requeue, got %#v", raw.nackOpts)
	}

	if err := adapter.NackForAttempt(ctx, core.JobNackOptions{Delay: time.Second, Requeue: true}, 3); err != nil {
		t.Fatalf("nack max attempt: %v", err)
	}
	if raw.nackOpts.Requeue || !raw.nackOpts.DeadLetter {
		t.Fatalf("expected dead letter on max attempts, got %#v", raw.nackOpts)
	}
}

func TestRetryPolicy_BackoffDoublesUpToMax(t *testing.T) {
	policy := RetryPolicy{BaseDelay: time.Second, MaxDelay: 5 * time.Second}
	expected := []time.Duration{0, time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for attempt, want := range expected {
		if got := policy.Backoff(attempt); got != want {
			t.Fatalf("attempt %d: expected %s, got %s", attempt, want, got)
		}
	}
}

func TestDeliveryWorker_AcksHandledJobs(t *testing.T) {
	ctx := context.Background()
	dequeuer := &stubQueueDequeuer{deliveries: []*stubQueueDelivery{
		{msg: &job.ExecutionMessage{JobID: JobIDTransportDeliver, IdempotencyKey: "0x2.eth:1"}},
		{msg: &job.ExecutionMessage{JobID: JobIDTransportDeliver, IdempotencyKey: "0x2.eth:2"}},
	}}
	hook := &capturingHook{}
	deliveryWorker := NewDeliveryWorker(NewDequeuerAdapter(dequeuer, RetryPolicy{}), RetryPolicy{}, WithWorkerHook(hook))

	var handled []string
	if err := deliveryWorker.Handle(JobIDTransportDeliver, JobHandlerFunc(func(_ context.Context, msg *core.JobExecutionMessage) error {
		handled = append(handled, msg.IdempotencyKey)
		return nil
	})); err != nil {
		t.Fatalf("register handler: %v", err)
	}

	processed, err := deliveryWorker.Drain(ctx, 2)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if processed != 2 || len(handled) != 2 {
		t.Fatalf("expected two jobs handled, got processed=%d handled=%v", processed, handled)
	}
	for _, delivery := range dequeuer.deliveries {
		if !delivery.acked {
			t.Fatalf("expected every handled delivery to be acked")
		}
	}
	if hook.successes != 2 || hook.starts != 2 {
		t.Fatalf("expected start/success hooks per job, got %#v", hook)
	}
}

func TestDeliveryWorker_RetriesWithBackoffThenDeadLetters(t *testing.T) {
	ctx := context.Background()
	msg := &job.ExecutionMessage{JobID: JobIDTransportDeliver, IdempotencyKey: "0x2.eth:9"}
	dequeuer := &stubQueueDequeuer{deliveries: []*stubQueueDelivery{{msg: msg}, {msg: msg}}}
	policy := RetryPolicy{MaxAttempts: 2, BaseDelay: time.Second, MaxDelay: time.Minute, DeadLetterOnMax: true}
	hook := &capturingHook{}
	deliveryWorker := NewDeliveryWorker(NewDequeuerAdapter(dequeuer, policy), policy, WithWorkerHook(hook))
	_ = deliveryWorker.Handle(JobIDTransportDeliver, JobHandlerFunc(func(context.Context, *core.JobExecutionMessage) error {
		return errors.New("destination offline")
	}))

	if err := deliveryWorker.ProcessNext(ctx); err != nil {
		t.Fatalf("first attempt: %v", err)
	}
	first := dequeuer.deliveries[0].nackOpts
	if !first.Requeue || first.Delay != time.Second {
		t.Fatalf("expected requeue after 1s, got %#v", first)
	}
	if hook.retries != 1 || hook.last.Err == nil {
		t.Fatalf("expected retry hook with error, got %#v", hook)
	}

	if err := deliveryWorker.ProcessNext(ctx); err != nil {
		t.Fatalf("second attempt: %v", err)
	}
	second := dequeuer.deliveries[1].nackOpts
	if second.Requeue || !second.DeadLetter {
		t.Fatalf("expected dead letter on final attempt, got %#v", second)
	}
	if hook.failures != 1 || hook.last.Attempt != 2 {
		t.Fatalf("expected failure hook on attempt 2, got %#v", hook)
	}
}

func TestDeliveryWorker_UnknownJobIsDeadLettered(t *testing.T) {
	dequeuer := &stubQueueDequeuer{deliveries: []*stubQueueDelivery{
		{msg: &job.ExecutionMessage{JobID: "xbridge.unknown"}},
	}}
	deliveryWorker := NewDeliveryWorker(NewDequeuerAdapter(dequeuer, RetryPolicy{}), RetryPolicy{})

	if err := deliveryWorker.ProcessNext(context.Background()); err != nil {
		t.Fatalf("process: %v", err)
	}
	if !dequeuer.deliveries[0].nackOpts.DeadLetter {
		t.Fatalf("expected unknown job to be dead-lettered")
	}
}

func TestWorkerHookAdapterEventMapping(t *testing.T) {
	now := time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC)
	coreHook := &capturingHook{}
	adapter := NewWorkerHookAdapter(coreHook)

	adapter.OnRetry(context.Background(), worker.Event{
		Message: &job.ExecutionMessage{
			JobID:          JobIDTransportDeliver,
			IdempotencyKey: "0x2.eth:4",
		},
		Attempt:   2,
		Delay:     5 * time.Second,
		Err:       errors.New("retry"),
		StartedAt: now,
		Duration:  250 * time.Millisecond,
	})
	if coreHook.last.Message == nil || coreHook.last.Message.JobID != JobIDTransportDeliver {
		t.Fatalf("expected job id mapping, got %#v", coreHook.last.Message)
	}
	if coreHook.last.Attempt != 2 || coreHook.last.Delay != 5*time.Second {
		t.Fatalf("unexpected attempt mapping: %#v", coreHook.last)
	}
	if !coreHook.last.StartedAt.Equal(now) || coreHook.last.Duration != 250*time.Millisecond {
		t.Fatalf("expected timing mapping")
	}
	if coreHook.last.Err == nil || coreHook.last.Err.Error() != "retry" {
		t.Fatalf("expected error mapping")
	}
}

type stubQueueEnqueuer struct {
	last *job.ExecutionMessage
}

func (s *stubQueueEnqueuer) Enqueue(_ context.Context, msg *job.ExecutionMessage) error {
	s.last = msg
	return nil
}

type stubQueueDequeuer struct {
	deliveries []*stubQueueDelivery
	next       int
}

func (s *stubQueueDequeuer) Dequeue(context.Context) (queue.Delivery, error) {
	if s.next >= len(s.deliveries) {
		return nil, errors.New("queue empty")
	}
	delivery := s.deliveries[s.next]
	s.next++
	return delivery, nil
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

type capturingHook struct {
	starts    int
	successes int
	failures  int
	retries   int
	last      core.JobWorkerEvent
}

func (h *capturingHook) OnStart(_ context.Context, event core.JobWorkerEvent) {
	h.starts++
	h.last = event
}

func (h *capturingHook) OnSuccess(_ context.Context, event core.JobWorkerEvent) {
	h.successes++
	h.last = event
}

func (h *capturingHook) OnFailure(_ context.Context, event core.JobWorkerEvent) {
	h.failures++
	h.last = event
}

func (h *capturingHook) OnRetry(_ context.Context, event core.JobWorkerEvent) {
	h.retries++
	h.last = event
}
