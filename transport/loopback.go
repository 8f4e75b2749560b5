package transport

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"slices"
	"strings"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-xbridge/core"
)

// JobIDDeliver is the job id used when loopback deliveries run on a queue.
const JobIDDeliver = "xbridge.transport.deliver"

type MessageStatus string

const (
	MessagePending         MessageStatus = "pending"
	MessageInFlight        MessageStatus = "in_flight"
	MessageDelivered       MessageStatus = "delivered"
	MessageRollbackPending MessageStatus = "rollback_pending"
	MessageRolledBack      MessageStatus = "rolled_back"
	MessageFailed          MessageStatus = "failed"
)

// Receiver is the contract that accepts deliveries on an endpoint.
type Receiver interface {
	HandleCallMessage(ctx context.Context, msg core.CallMessage) error
}

// Message is one outbound send tracked by the loopback network.
type Message struct {
	ID           string
	SerialNumber int64
	Source       core.NetworkAddress
	To           core.NetworkAddress
	Payer        string
	Data         []byte
	Rollback     []byte
	Sources      []string
	Destinations []string
	Fee          *big.Int
	Status       MessageStatus
	LastError    string
}

func (m Message) clone() Message {
	out := m
	out.Data = append([]byte(nil), m.Data...)
	out.Rollback = append([]byte(nil), m.Rollback...)
	out.Sources = append([]string{}, m.Sources...)
	out.Destinations = append([]string{}, m.Destinations...)
	out.Fee = cloneAmount(m.Fee)
	return out
}

type EndpointConfig struct {
	// Network is the network id the endpoint lives on.
	Network string
	// Transport is the identity of the transport contract on Network. It is
	// the caller of every delivery and the origin of rollbacks.
	Transport string
	// Sender is the local account whose sends this endpoint relays and the
	// address deliveries are made to.
	Sender   string
	Receiver Receiver
	// RefundLedger, when set, returns the fee to the payer after a rollback.
	RefundLedger core.AssetLedger
}

type LoopbackOption func(*Loopback)

func WithFeeSchedule(fees FeeSchedule) LoopbackOption {
	return func(l *Loopback) {
		l.fees = fees.clone()
	}
}

// WithJobEnqueuer queues every send as a JobIDDeliver job instead of holding
// it for Flush.
func WithJobEnqueuer(enqueuer core.JobEnqueuer) LoopbackOption {
	return func(l *Loopback) {
		l.enqueuer = enqueuer
	}
}

func WithLogger(logger core.Logger) LoopbackOption {
	return func(l *Loopback) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// Loopback is an in-memory relay network joining endpoints on different
// network ids. Each send is delivered to its destination or, if delivery
// fails and the send carried a rollback, rolled back at its source. Never
// both, and at most once each.
type Loopback struct {
	mu        sync.Mutex
	fees      FeeSchedule
	enqueuer  core.JobEnqueuer
	logger    core.Logger
	endpoints map[string]*Endpoint
	messages  map[string]*Message
	order     []string
	dropped   map[string]struct{}
}

func NewLoopback(opts ...LoopbackOption) *Loopback {
	l := &Loopback{
		logger:    glog.Ensure(nil),
		endpoints: map[string]*Endpoint{},
		messages:  map[string]*Message{},
		dropped:   map[string]struct{}{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Attach adds an endpoint for cfg.Network. A network has at most one.
func (l *Loopback) Attach(cfg EndpointConfig) (*Endpoint, error) {
	if l == nil {
		return nil, transportInternal("transport: loopback is nil", nil)
	}
	cfg.Network = strings.TrimSpace(cfg.Network)
	cfg.Transport = strings.TrimSpace(cfg.Transport)
	cfg.Sender = strings.TrimSpace(cfg.Sender)
	if cfg.Network == "" || cfg.Transport == "" || cfg.Sender == "" {
		return nil, transportBadInput("transport: endpoint network, transport and sender are required", nil)
	}
	if strings.Contains(cfg.Network, "/") {
		return nil, transportBadInput("transport: endpoint network id must not contain '/'", map[string]any{
			"network": cfg.Network,
		})
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.endpoints[cfg.Network]; exists {
		return nil, fmt.Errorf("transport: endpoint for network %q already attached", cfg.Network)
	}
	endpoint := &Endpoint{loopback: l, cfg: cfg}
	l.endpoints[cfg.Network] = endpoint
	return endpoint, nil
}

func (l *Loopback) Endpoint(network string) (*Endpoint, bool) {
	if l == nil {
		return nil, false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	endpoint, ok := l.endpoints[strings.TrimSpace(network)]
	return endpoint, ok
}

// Drop makes relayID stop carrying messages until Restore is called.
func (l *Loopback) Drop(relayID string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dropped[strings.TrimSpace(relayID)] = struct{}{}
}

func (l *Loopback) Restore(relayID string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.dropped, strings.TrimSpace(relayID))
}

func (l *Loopback) Message(id string) (Message, bool) {
	if l == nil {
		return Message{}, false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	msg, ok := l.messages[strings.TrimSpace(id)]
	if !ok {
		return Message{}, false
	}
	return msg.clone(), true
}

// Pending lists sends awaiting delivery or rollback, oldest first.
func (l *Loopback) Pending() []string {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out := []string{}
	for _, id := range l.order {
		if msg := l.messages[id]; msg != nil && isPending(msg.Status) {
			out = append(out, id)
		}
	}
	return out
}

// Flush delivers every pending send in order and returns the joined
// delivery errors.
func (l *Loopback) Flush(ctx context.Context) error {
	var errs []error
	for _, id := range l.Pending() {
		if err := l.Deliver(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// HandleJob runs a queued JobIDDeliver job.
func (l *Loopback) HandleJob(ctx context.Context, msg *core.JobExecutionMessage) error {
	if msg == nil {
		return transportBadInput("transport: job message is required", nil)
	}
	if strings.TrimSpace(msg.JobID) != JobIDDeliver {
		return transportBadInput("transport: unexpected job id", map[string]any{"job_id": msg.JobID})
	}
	id, _ := msg.Parameters["delivery_id"].(string)
	if strings.TrimSpace(id) == "" {
		id = msg.IdempotencyKey
	}
	return l.Deliver(ctx, id)
}

// Deliver hands send id to its destination. When the destination rejects it
// and a rollback was supplied, the rollback is handed to the source instead.
// A destination that defers the delivery leaves it pending for a later
// Deliver. Sends that are already settled are ignored.
func (l *Loopback) Deliver(ctx context.Context, id string) error {
	if l == nil {
		return transportInternal("transport: loopback is nil", nil)
	}
	id = strings.TrimSpace(id)

	l.mu.Lock()
	msg, ok := l.messages[id]
	if !ok {
		l.mu.Unlock()
		return transportNotFound("transport: message not found", map[string]any{"delivery_id": id})
	}
	if !isPending(msg.Status) {
		l.mu.Unlock()
		return nil
	}
	rollbackOnly := msg.Status == MessageRollbackPending
	msg.Status = MessageInFlight
	snapshot := msg.clone()
	source := l.endpoints[snapshot.Source.Network]
	destination := l.endpoints[snapshot.To.Network]
	delivered := l.carriedLocked(snapshot.Destinations)
	l.mu.Unlock()

	if !rollbackOnly {
		deliverErr := l.deliverRemote(ctx, destination, snapshot, delivered)
		if deliverErr == nil {
			l.settle(id, MessageDelivered, nil)
			l.logger.Info("loopback message delivered", "delivery_id", id, "to", snapshot.To.String())
			return nil
		}
		if core.IsDeliveryDeferred(deliverErr) {
			l.settle(id, MessagePending, deliverErr)
			l.logger.Warn("loopback message deferred by destination", "delivery_id", id, "error", deliverErr.Error())
			return deliverErr
		}
		if len(snapshot.Rollback) == 0 {
			l.settle(id, MessageFailed, deliverErr)
			l.logger.Error("loopback message failed", "delivery_id", id, "error", deliverErr.Error())
			return deliverErr
		}
		l.logger.Warn("loopback message rejected, rolling back", "delivery_id", id, "error", deliverErr.Error())
	}

	if err := l.rollback(ctx, source, snapshot); err != nil {
		l.settle(id, MessageRollbackPending, err)
		l.logger.Error("loopback rollback failed", "delivery_id", id, "error", err.Error())
		return err
	}
	l.settle(id, MessageRolledBack, nil)
	l.logger.Info("loopback message rolled back", "delivery_id", id, "source", snapshot.Source.String())
	return nil
}

func (l *Loopback) deliverRemote(ctx context.Context, destination *Endpoint, msg Message, delivered []string) error {
	receiver := destination.receiverFor(msg.To)
	if receiver == nil {
		return transportNotFound("transport: no receiver at destination", map[string]any{
			"to": msg.To.String(),
		})
	}
	return receiver.HandleCallMessage(ctx, core.CallMessage{
		Caller:     destination.cfg.Transport,
		From:       msg.Source,
		Data:       append([]byte(nil), msg.Data...),
		Delivered:  delivered,
		DeliveryID: msg.ID,
	})
}

func (l *Loopback) rollback(ctx context.Context, source *Endpoint, msg Message) error {
	receiver := source.receiverFor(msg.Source)
	if receiver == nil {
		return transportNotFound("transport: no receiver at source", map[string]any{
			"source": msg.Source.String(),
		})
	}
	err := receiver.HandleCallMessage(ctx, core.CallMessage{
		Caller:     source.cfg.Transport,
		From:       core.NewNetworkAddress(source.cfg.Network, source.cfg.Transport),
		Data:       append([]byte(nil), msg.Rollback...),
		DeliveryID: msg.ID + ":rollback",
	})
	if err != nil {
		return err
	}
	if source.cfg.RefundLedger != nil && msg.Fee != nil && msg.Fee.Sign() > 0 {
		if err := source.cfg.RefundLedger.Credit(ctx, msg.Payer, core.NativeAsset(), cloneAmount(msg.Fee)); err != nil {
			l.logger.Error("loopback fee refund failed", "delivery_id", msg.ID, "error", err.Error())
		}
	}
	return nil
}

func (l *Loopback) settle(id string, status MessageStatus, cause error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	msg, ok := l.messages[id]
	if !ok {
		return
	}
	msg.Status = status
	msg.LastError = ""
	if cause != nil {
		msg.LastError = cause.Error()
	}
}

func (l *Loopback) carriedLocked(destinations []string) []string {
	out := make([]string, 0, len(destinations))
	for _, relay := range destinations {
		if _, down := l.dropped[strings.TrimSpace(relay)]; down {
			continue
		}
		if slices.Contains(out, relay) {
			continue
		}
		out = append(out, relay)
	}
	return out
}

func (l *Loopback) send(ctx context.Context, endpoint *Endpoint, req core.SendRequest) (int64, error) {
	if err := req.To.Validate(); err != nil {
		return 0, transportBadInput("transport: destination address is invalid", map[string]any{"error": err.Error()})
	}
	if len(req.Data) == 0 {
		return 0, transportBadInput("transport: message data is required", nil)
	}
	quote := l.quote(req.To.Network, len(req.Rollback) > 0, req.Sources)
	paid := req.Fee
	if paid == nil {
		paid = new(big.Int)
	}
	if paid.Cmp(quote) < 0 {
		return 0, transportBadInput("transport: fee does not cover the quote", map[string]any{
			"fee":   paid.String(),
			"quote": quote.String(),
		})
	}

	l.mu.Lock()
	if _, ok := l.endpoints[req.To.Network]; !ok {
		l.mu.Unlock()
		return 0, transportNotFound("transport: destination network is not attached", map[string]any{
			"network": req.To.Network,
		})
	}
	endpoint.serial++
	sn := endpoint.serial
	msg := &Message{
		ID:           fmt.Sprintf("%s:%d", endpoint.cfg.Network, sn),
		SerialNumber: sn,
		Source:       core.NewNetworkAddress(endpoint.cfg.Network, endpoint.cfg.Sender),
		To:           req.To,
		Payer:        strings.TrimSpace(req.From),
		Data:         append([]byte(nil), req.Data...),
		Rollback:     append([]byte(nil), req.Rollback...),
		Sources:      append([]string{}, req.Sources...),
		Destinations: append([]string{}, req.Destinations...),
		Fee:          new(big.Int).Set(paid),
		Status:       MessagePending,
	}
	l.messages[msg.ID] = msg
	l.order = append(l.order, msg.ID)
	enqueuer := l.enqueuer
	l.mu.Unlock()

	if enqueuer != nil {
		err := enqueuer.Enqueue(ctx, &core.JobExecutionMessage{
			JobID:          JobIDDeliver,
			Parameters:     map[string]any{"delivery_id": msg.ID},
			IdempotencyKey: msg.ID,
		})
		if err != nil {
			l.mu.Lock()
			delete(l.messages, msg.ID)
			l.order = slices.DeleteFunc(l.order, func(id string) bool { return id == msg.ID })
			l.mu.Unlock()
			return 0, transportWrapError(err, goerrors.CategoryExternal, "transport: enqueue delivery failed", http.StatusBadGateway, map[string]any{
				"delivery_id": msg.ID,
			})
		}
	}
	return sn, nil
}

func (l *Loopback) quote(network string, rollback bool, sources []string) *big.Int {
	l.mu.Lock()
	fees := l.fees
	l.mu.Unlock()
	return fees.Quote(network, rollback, sources)
}

func isPending(status MessageStatus) bool {
	return status == MessagePending || status == MessageRollbackPending
}

// Endpoint is a network's attachment to a Loopback and the core.Transport
// its bridge sends through.
type Endpoint struct {
	loopback *Loopback
	cfg      EndpointConfig
	serial   int64
}

// Bind sets the local receiver after the endpoint was attached, for
// receivers that need the endpoint to be constructed.
func (e *Endpoint) Bind(receiver Receiver) {
	if e == nil || e.loopback == nil {
		return
	}
	e.loopback.mu.Lock()
	defer e.loopback.mu.Unlock()
	e.cfg.Receiver = receiver
}

// KindLoopback is the registry kind of loopback endpoints.
const KindLoopback = "loopback"

func (e *Endpoint) Kind() string {
	return KindLoopback
}

func (e *Endpoint) Network() string {
	if e == nil {
		return ""
	}
	return e.cfg.Network
}

// Address is the transport contract's own network address.
func (e *Endpoint) Address() core.NetworkAddress {
	if e == nil {
		return core.NetworkAddress{}
	}
	return core.NewNetworkAddress(e.cfg.Network, e.cfg.Transport)
}

func (e *Endpoint) GetFee(_ context.Context, network string, rollback bool, sources []string) (*big.Int, error) {
	if e == nil || e.loopback == nil {
		return nil, transportInternal("transport: endpoint is not attached", nil)
	}
	return e.loopback.quote(network, rollback, sources), nil
}

func (e *Endpoint) SendCallMessage(ctx context.Context, req core.SendRequest) (int64, error) {
	if e == nil || e.loopback == nil {
		return 0, transportInternal("transport: endpoint is not attached", nil)
	}
	return e.loopback.send(ctx, e, req)
}

func (e *Endpoint) receiverFor(addr core.NetworkAddress) Receiver {
	if e == nil || e.loopback == nil {
		return nil
	}
	e.loopback.mu.Lock()
	defer e.loopback.mu.Unlock()
	if !strings.EqualFold(addr.Account, e.cfg.Sender) {
		return nil
	}
	return e.cfg.Receiver
}

// LoopbackFactory builds endpoints on network. Config keys: network_id,
// transport, sender, and optionally receiver and refund_ledger. An
// already attached network is returned as is.
func LoopbackFactory(network *Loopback) AdapterFactory {
	return func(config map[string]any) (Adapter, error) {
		networkID, _ := config["network_id"].(string)
		if existing, ok := network.Endpoint(networkID); ok {
			return existing, nil
		}
		transport, _ := config["transport"].(string)
		sender, _ := config["sender"].(string)
		receiver, _ := config["receiver"].(Receiver)
		ledger, _ := config["refund_ledger"].(core.AssetLedger)
		return network.Attach(EndpointConfig{
			Network:      networkID,
			Transport:    transport,
			Sender:       sender,
			Receiver:     receiver,
			RefundLedger: ledger,
		})
	}
}

var _ Adapter = (*Endpoint)(nil)
