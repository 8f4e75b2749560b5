package inbound

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-xbridge/core"
)

// Handler applies a verified call message. core.Service implements it.
type Handler interface {
	HandleCallMessage(ctx context.Context, msg core.CallMessage) error
}

type Verifier interface {
	Verify(ctx context.Context, msg core.CallMessage) error
}

type VerifierFunc func(ctx context.Context, msg core.CallMessage) error

func (f VerifierFunc) Verify(ctx context.Context, msg core.CallMessage) error {
	if f == nil {
		return nil
	}
	return f(ctx, msg)
}

// TransportLookup resolves the transport identity currently registered with
// the bridge.
type TransportLookup interface {
	GetTransport(ctx context.Context) (string, error)
}

// TransportVerifier accepts only calls made by the registered transport.
type TransportVerifier struct {
	Lookup TransportLookup
}

func (v TransportVerifier) Verify(ctx context.Context, msg core.CallMessage) error {
	if v.Lookup == nil {
		return fmt.Errorf("inbound: transport lookup is not configured")
	}
	expected, err := v.Lookup.GetTransport(ctx)
	if err != nil {
		return err
	}
	if strings.TrimSpace(expected) == "" || !strings.EqualFold(strings.TrimSpace(expected), strings.TrimSpace(msg.Caller)) {
		return fmt.Errorf("inbound: caller %q is not the registered transport", msg.Caller)
	}
	return nil
}

// Dispatcher verifies, dedupes and applies inbound call messages. A
// delivery whose claim is held elsewhere fails with core.DeliveryDeferredError
// so the sender redelivers it later.
type Dispatcher struct {
	Handler  Handler
	Verifier Verifier
	Store    core.IdempotencyClaimStore
	KeyTTL   time.Duration
	Logger   core.Logger
	// Namespace prefixes claim keys so several bridges can share a store.
	Namespace string
	// RequireDeliveryID rejects deliveries without an id when a store is set.
	RequireDeliveryID bool

	mu sync.Mutex
	// unrecorded holds claims whose handler committed but whose completion
	// the store refused, keyed by claim key.
	unrecorded map[string]string
}

func NewDispatcher(handler Handler, verifier Verifier, store core.IdempotencyClaimStore) *Dispatcher {
	return &Dispatcher{
		Handler:  handler,
		Verifier: verifier,
		Store:    store,
		KeyTTL:   10 * time.Minute,
		Logger:   glog.Ensure(nil),
	}
}

func (d *Dispatcher) HandleCallMessage(ctx context.Context, msg core.CallMessage) error {
	if d == nil {
		return inboundInternal("inbound: dispatcher is nil", nil)
	}
	if d.Handler == nil {
		return inboundInternal("inbound: handler is not configured", nil)
	}
	msg.Caller = strings.TrimSpace(msg.Caller)
	msg.DeliveryID = strings.TrimSpace(msg.DeliveryID)
	meta := map[string]any{
		"caller":      msg.Caller,
		"from":        msg.From.String(),
		"delivery_id": msg.DeliveryID,
	}

	if d.Verifier != nil {
		if err := d.Verifier.Verify(ctx, msg); err != nil {
			return verificationFailed(err, meta)
		}
	}

	claimID := ""
	if d.Store != nil {
		if msg.DeliveryID == "" {
			if d.RequireDeliveryID {
				return inboundBadInput("inbound: delivery id is required", meta)
			}
		} else {
			key := d.claimKey(msg.DeliveryID)
			if d.retryUnrecorded(ctx, key) {
				return nil
			}
			var (
				accepted bool
				err      error
			)
			claimID, accepted, err = d.Store.Claim(ctx, key, d.keyTTL())
			if core.IsDeliveryDeferred(err) {
				return err
			}
			if err != nil {
				return claimStoreFailed(err, "inbound: delivery claim failed", meta)
			}
			if !accepted {
				return nil
			}
		}
	}

	if err := d.Handler.HandleCallMessage(ctx, msg); err != nil {
		if claimID != "" {
			if failErr := d.Store.Fail(ctx, claimID, err, time.Time{}); failErr != nil {
				return errors.Join(err, claimStoreFailed(failErr, "inbound: release delivery claim failed", meta))
			}
		}
		return err
	}

	// The handler has committed. A failed completion must not look like a
	// failed delivery, or the sender would roll back an applied message.
	if claimID != "" {
		if err := d.Store.Complete(ctx, claimID); err != nil {
			d.logger().Error("inbound delivery applied but claim not completed",
				"delivery_id", msg.DeliveryID,
				"claim_id", claimID,
				"error", err.Error(),
			)
			d.rememberUnrecorded(d.claimKey(msg.DeliveryID), claimID)
		}
	}
	return nil
}

// retryUnrecorded reports whether key was already applied by this
// dispatcher, retrying its pending completion on the way.
func (d *Dispatcher) retryUnrecorded(ctx context.Context, key string) bool {
	d.mu.Lock()
	claimID, ok := d.unrecorded[key]
	d.mu.Unlock()
	if !ok {
		return false
	}
	if err := d.Store.Complete(ctx, claimID); err != nil {
		d.logger().Warn("inbound claim completion retry failed",
			"claim_key", key,
			"claim_id", claimID,
			"error", err.Error(),
		)
		return true
	}
	d.mu.Lock()
	delete(d.unrecorded, key)
	d.mu.Unlock()
	return true
}

func (d *Dispatcher) rememberUnrecorded(key string, claimID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.unrecorded == nil {
		d.unrecorded = map[string]string{}
	}
	d.unrecorded[key] = claimID
}

func (d *Dispatcher) logger() core.Logger {
	return glog.Ensure(d.Logger)
}

func (d *Dispatcher) claimKey(deliveryID string) string {
	if namespace := strings.TrimSpace(d.Namespace); namespace != "" {
		return namespace + ":" + deliveryID
	}
	return deliveryID
}

func (d *Dispatcher) keyTTL() time.Duration {
	if d != nil && d.KeyTTL > 0 {
		return d.KeyTTL
	}
	return 10 * time.Minute
}

type claimStatus string

const (
	claimStatusProcessing claimStatus = "processing"
	claimStatusRetryReady claimStatus = "retry_ready"
	claimStatusComplete   claimStatus = "complete"
)

type claimEntry struct {
	Key            string
	Status         claimStatus
	ClaimID        string
	Attempts       int
	CompletedAt    time.Time
	LeaseExpiresAt time.Time
	RetryAt        time.Time
}

// InMemoryClaimStore is a process-local claim store. Completed claims are
// kept for Retention, or forever when Retention is zero. Claiming a key whose
// lease is still held, or whose retry is not yet due, fails with
// core.DeliveryDeferredError.
type InMemoryClaimStore struct {
	mu        sync.Mutex
	entries   map[string]claimEntry
	claims    map[string]string
	nextID    int
	Retention time.Duration
	Now       func() time.Time
}

func NewInMemoryClaimStore() *InMemoryClaimStore {
	return &InMemoryClaimStore{
		entries: map[string]claimEntry{},
		claims:  map[string]string{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (s *InMemoryClaimStore) Claim(
	_ context.Context,
	key string,
	lease time.Duration,
) (string, bool, error) {
	if s == nil {
		return "", false, inboundInternal("inbound: claim store is nil", nil)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", false, inboundBadInput("inbound: claim key is required", nil)
	}
	now := s.now()
	if lease <= 0 {
		lease = 10 * time.Minute
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictExpiredLocked(now)
	entry, exists := s.entries[key]
	if !exists {
		claimID := s.nextClaimID()
		s.entries[key] = claimEntry{
			Key:            key,
			Status:         claimStatusProcessing,
			ClaimID:        claimID,
			Attempts:       1,
			LeaseExpiresAt: now.Add(lease),
		}
		s.claims[claimID] = key
		return claimID, true, nil
	}

	switch entry.Status {
	case claimStatusComplete:
		return "", false, nil
	case claimStatusProcessing:
		if now.Before(entry.LeaseExpiresAt) {
			return "", false, core.DeliveryDeferredError(key, "claim lease is held")
		}
	case claimStatusRetryReady:
		if !entry.RetryAt.IsZero() && now.Before(entry.RetryAt) {
			return "", false, core.DeliveryDeferredError(key, "retry is backing off")
		}
	}

	if entry.ClaimID != "" {
		delete(s.claims, entry.ClaimID)
	}
	claimID := s.nextClaimID()
	entry.Status = claimStatusProcessing
	entry.ClaimID = claimID
	entry.Attempts++
	entry.LeaseExpiresAt = now.Add(lease)
	entry.RetryAt = time.Time{}
	s.entries[key] = entry
	s.claims[claimID] = key
	return claimID, true, nil
}

func (s *InMemoryClaimStore) Complete(_ context.Context, claimID string) error {
	if s == nil {
		return inboundInternal("inbound: claim store is nil", nil)
	}
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return inboundBadInput("inbound: claim id is required", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.claims[claimID]
	if !ok {
		return nil
	}
	delete(s.claims, claimID)
	entry, exists := s.entries[key]
	if !exists || entry.ClaimID != claimID || entry.Status != claimStatusProcessing {
		return nil
	}
	entry.Status = claimStatusComplete
	entry.CompletedAt = s.now()
	entry.LeaseExpiresAt = time.Time{}
	entry.RetryAt = time.Time{}
	s.entries[key] = entry
	return nil
}

func (s *InMemoryClaimStore) Fail(
	_ context.Context,
	claimID string,
	_ error,
	retryAt time.Time,
) error {
	if s == nil {
		return inboundInternal("inbound: claim store is nil", nil)
	}
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return inboundBadInput("inbound: claim id is required", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.claims[claimID]
	if !ok {
		return nil
	}
	delete(s.claims, claimID)
	entry, exists := s.entries[key]
	if !exists || entry.ClaimID != claimID || entry.Status != claimStatusProcessing {
		return nil
	}
	if retryAt.IsZero() {
		retryAt = s.now()
	}
	entry.Status = claimStatusRetryReady
	entry.RetryAt = retryAt.UTC()
	entry.LeaseExpiresAt = time.Time{}
	s.entries[key] = entry
	return nil
}

// Attempts reports how many times key was claimed.
func (s *InMemoryClaimStore) Attempts(key string) int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[strings.TrimSpace(key)].Attempts
}

func (s *InMemoryClaimStore) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *InMemoryClaimStore) nextClaimID() string {
	s.nextID++
	return fmt.Sprintf("claim_%d", s.nextID)
}

func (s *InMemoryClaimStore) evictExpiredLocked(now time.Time) {
	if s.Retention <= 0 {
		return
	}
	for key, entry := range s.entries {
		if entry.Status != claimStatusComplete {
			continue
		}
		if !now.Before(entry.CompletedAt.Add(s.Retention)) {
			delete(s.entries, key)
		}
	}
}

var (
	_ core.IdempotencyClaimStore = (*InMemoryClaimStore)(nil)
	_ Handler                    = (*Dispatcher)(nil)
	_ Handler                    = (*core.Service)(nil)
)
