package gojob

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-xbridge/core"
	"github.com/goliatone/go-xbridge/transport"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	JobIDTransportDeliver = transport.JobIDDeliver
)

// RetryPolicy bounds how often a failed job is requeued.
type RetryPolicy struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// Backoff doubles BaseDelay per attempt, capped at MaxDelay.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if p.BaseDelay <= 0 || attempt <= 0 {
		return 0
	}
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// NormalizeAttempt applies the policy bounds to a nack.
func (p RetryPolicy) NormalizeAttempt(opts core.JobNackOptions, attempt int) core.JobNackOptions {
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

func ToExecutionMessage(msg *core.JobExecutionMessage) *job.ExecutionMessage {
	if msg == nil {
		return nil
	}
	return &job.ExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     copyAnyMap(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    job.DeduplicationPolicy(strings.TrimSpace(msg.DedupPolicy)),
	}
}

func FromExecutionMessage(msg *job.ExecutionMessage) *core.JobExecutionMessage {
	if msg == nil {
		return nil
	}
	return &core.JobExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     copyAnyMap(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    strings.TrimSpace(string(msg.DedupPolicy)),
	}
}

func toNackOptions(opts core.JobNackOptions) queue.NackOptions {
	return queue.NackOptions{
		Delay:      opts.Delay,
		Requeue:    opts.Requeue,
		DeadLetter: opts.DeadLetter,
		Reason:     opts.Reason,
	}
}

// EnqueuerAdapter lets the loopback transport queue deliveries on a go-job
// queue.
type EnqueuerAdapter struct {
	enqueuer queue.Enqueuer
}

func NewEnqueuerAdapter(enqueuer queue.Enqueuer) *EnqueuerAdapter {
	return &EnqueuerAdapter{enqueuer: enqueuer}
}

func (a *EnqueuerAdapter) Enqueue(ctx context.Context, msg *core.JobExecutionMessage) error {
	if a == nil || a.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	if msg == nil {
		return fmt.Errorf("gojob: execution message is required")
	}
	return a.enqueuer.Enqueue(ctx, ToExecutionMessage(msg))
}

type DeliveryAdapter struct {
	delivery queue.Delivery
	policy   RetryPolicy
}

func NewDeliveryAdapter(delivery queue.Delivery, policy RetryPolicy) *DeliveryAdapter {
	return &DeliveryAdapter{delivery: delivery, policy: policy}
}

func (d *DeliveryAdapter) Message() *core.JobExecutionMessage {
	if d == nil || d.delivery == nil {
		return nil
	}
	return FromExecutionMessage(d.delivery.Message())
}

func (d *DeliveryAdapter) Ack(ctx context.Context) error {
	if d == nil || d.delivery == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	return d.delivery.Ack(ctx)
}

func (d *DeliveryAdapter) Nack(ctx context.Context, opts core.JobNackOptions) error {
	return d.NackForAttempt(ctx, opts, 0)
}

func (d *DeliveryAdapter) NackForAttempt(ctx context.Context, opts core.JobNackOptions, attempt int) error {
	if d == nil || d.delivery == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	return d.delivery.Nack(ctx, toNackOptions(d.policy.NormalizeAttempt(opts, attempt)))
}

type DequeuerAdapter struct {
	dequeuer queue.Dequeuer
	policy   RetryPolicy
}

func NewDequeuerAdapter(dequeuer queue.Dequeuer, policy RetryPolicy) *DequeuerAdapter {
	return &DequeuerAdapter{dequeuer: dequeuer, policy: policy}
}

func (a *DequeuerAdapter) Dequeue(ctx context.Context) (core.JobDelivery, error) {
	if a == nil || a.dequeuer == nil {
		return nil, fmt.Errorf("gojob: dequeuer is not configured")
	}
	delivery, err := a.dequeuer.Dequeue(ctx)
	if err != nil {
		return nil, err
	}
	return NewDeliveryAdapter(delivery, a.policy), nil
}

// JobHandler runs one queued job. transport.Loopback implements it for
// JobIDTransportDeliver.
type JobHandler interface {
	HandleJob(ctx context.Context, msg *core.JobExecutionMessage) error
}

type JobHandlerFunc func(ctx context.Context, msg *core.JobExecutionMessage) error

func (f JobHandlerFunc) HandleJob(ctx context.Context, msg *core.JobExecutionMessage) error {
	return f(ctx, msg)
}

type WorkerOption func(*DeliveryWorker)

func WithWorkerHook(hook core.JobWorkerHook) WorkerOption {
	return func(w *DeliveryWorker) {
		w.hook = hook
	}
}

func WithWorkerLogger(logger glog.Logger) WorkerOption {
	return func(w *DeliveryWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// DeliveryWorker pulls jobs from a dequeuer and routes them to the handler
// registered for their job id. Failed jobs are nacked with the policy's
// backoff until MaxAttempts is reached.
type DeliveryWorker struct {
	dequeuer core.JobDequeuer
	policy   RetryPolicy
	hook     core.JobWorkerHook
	logger   glog.Logger
	now      func() time.Time

	mu       sync.Mutex
	handlers map[string]JobHandler
	attempts map[string]int
}

func NewDeliveryWorker(dequeuer core.JobDequeuer, policy RetryPolicy, opts ...WorkerOption) *DeliveryWorker {
	w := &DeliveryWorker{
		dequeuer: dequeuer,
		policy:   policy,
		logger:   glog.Nop(),
		now:      time.Now,
		handlers: map[string]JobHandler{},
		attempts: map[string]int{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w
}

func (w *DeliveryWorker) Handle(jobID string, handler JobHandler) error {
	if w == nil {
		return fmt.Errorf("gojob: worker is nil")
	}
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return fmt.Errorf("gojob: job id is required")
	}
	if handler == nil {
		return fmt.Errorf("gojob: handler for %q is required", jobID)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[jobID] = handler
	return nil
}

// ProcessNext handles one job. The returned error is the dequeue or
// ack/nack error; handler failures are reported through the hook and nack.
func (w *DeliveryWorker) ProcessNext(ctx context.Context) error {
	if w == nil || w.dequeuer == nil {
		return fmt.Errorf("gojob: dequeuer is not configured")
	}
	delivery, err := w.dequeuer.Dequeue(ctx)
	if err != nil {
		return err
	}
	if delivery == nil {
		return nil
	}
	msg := delivery.Message()
	if msg == nil {
		return delivery.Nack(ctx, core.JobNackOptions{DeadLetter: true, Reason: "missing execution message"})
	}

	key := attemptKey(msg)
	attempt := w.nextAttempt(key)
	startedAt := w.now()
	event := core.JobWorkerEvent{Message: msg, Attempt: attempt, StartedAt: startedAt}
	w.emit(ctx, "start", event)

	handler, ok := w.handler(msg.JobID)
	if !ok {
		event.Err = fmt.Errorf("gojob: no handler for job %q", msg.JobID)
		w.emit(ctx, "failure", event)
		return delivery.Nack(ctx, core.JobNackOptions{DeadLetter: true, Reason: event.Err.Error()})
	}

	runErr := handler.HandleJob(ctx, msg)
	event.Duration = w.now().Sub(startedAt)
	if runErr == nil {
		w.resetAttempts(key)
		w.emit(ctx, "success", event)
		return delivery.Ack(ctx)
	}

	event.Err = runErr
	nack := w.policy.NormalizeAttempt(core.JobNackOptions{
		Delay:   w.policy.Backoff(attempt),
		Requeue: true,
		Reason:  runErr.Error(),
	}, attempt)
	event.Delay = nack.Delay
	if nack.Requeue {
		w.emit(ctx, "retry", event)
	} else {
		w.resetAttempts(key)
		w.emit(ctx, "failure", event)
	}
	w.logger.Warn("job failed", "job_id", msg.JobID, "idempotency_key", msg.IdempotencyKey, "attempt", attempt, "requeue", nack.Requeue, "error", runErr.Error())
	if adapter, ok := delivery.(*DeliveryAdapter); ok {
		return adapter.delivery.Nack(ctx, toNackOptions(nack))
	}
	return delivery.Nack(ctx, nack)
}

// Drain processes up to limit jobs and stops at the first dequeue error.
func (w *DeliveryWorker) Drain(ctx context.Context, limit int) (int, error) {
	processed := 0
	for limit <= 0 || processed < limit {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		if err := w.ProcessNext(ctx); err != nil {
			return processed, err
		}
		processed++
	}
	return processed, nil
}

func (w *DeliveryWorker) handler(jobID string) (JobHandler, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	handler, ok := w.handlers[strings.TrimSpace(jobID)]
	return handler, ok
}

func (w *DeliveryWorker) nextAttempt(key string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.attempts[key]++
	return w.attempts[key]
}

func (w *DeliveryWorker) resetAttempts(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.attempts, key)
}

func (w *DeliveryWorker) emit(ctx context.Context, phase string, event core.JobWorkerEvent) {
	if w.hook == nil {
		return
	}
	switch phase {
	case "start":
		w.hook.OnStart(ctx, event)
	case "success":
		w.hook.OnSuccess(ctx, event)
	case "retry":
		w.hook.OnRetry(ctx, event)
	default:
		w.hook.OnFailure(ctx, event)
	}
}

func attemptKey(msg *core.JobExecutionMessage) string {
	if key := strings.TrimSpace(msg.IdempotencyKey); key != "" {
		return msg.JobID + ":" + key
	}
	return msg.JobID
}

// WorkerHookAdapter forwards go-job worker events to a core hook.
type WorkerHookAdapter struct {
	hook core.JobWorkerHook
}

func NewWorkerHookAdapter(hook core.JobWorkerHook) *WorkerHookAdapter {
	return &WorkerHookAdapter{hook: hook}
}

func (a *WorkerHookAdapter) OnStart(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnStart(ctx, mapWorkerEvent(event))
}

func (a *WorkerHookAdapter) OnSuccess(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnSuccess(ctx, mapWorkerEvent(event))
}

func (a *WorkerHookAdapter) OnFailure(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnFailure(ctx, mapWorkerEvent(event))
}

func (a *WorkerHookAdapter) OnRetry(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnRetry(ctx, mapWorkerEvent(event))
}

func mapWorkerEvent(event worker.Event) core.JobWorkerEvent {
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	return core.JobWorkerEvent{
		Message:   FromExecutionMessage(message),
		Attempt:   event.Attempt,
		Delay:     event.Delay,
		Err:       event.Err,
		StartedAt: event.StartedAt,
		Duration:  event.Duration,
	}
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

var (
	_ core.JobEnqueuer = (*EnqueuerAdapter)(nil)
	_ core.JobDelivery = (*DeliveryAdapter)(nil)
	_ core.JobDequeuer = (*DequeuerAdapter)(nil)
	_ worker.Hook      = (*WorkerHookAdapter)(nil)
	_ JobHandler       = (*transport.Loopback)(nil)
)
