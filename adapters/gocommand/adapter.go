package gocommand

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	xcommand "github.com/goliatone/go-xbridge/command"
	"github.com/goliatone/go-xbridge/core"
	xquery "github.com/goliatone/go-xbridge/query"
)

// ValidateMessageContract requires a non-empty Type() and runs Validate()
// when the message has one.
func ValidateMessageContract(msg any) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	m, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	if strings.TrimSpace(m.Type()) == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	return nil
}

type RegistryAdapter struct {
	registry *command.Registry
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) Registry() *command.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

func (a *RegistryAdapter) RegisterCommand(cmd any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(cmd)
}

func (a *RegistryAdapter) RegisterQuery(qry any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(qry)
}

func (a *RegistryAdapter) AddResolver(key string, resolver command.Resolver) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.AddResolver(strings.TrimSpace(key), resolver)
}

func (a *RegistryAdapter) AddQueueResolver(key string, queueRegistry *jobqueuecommand.Registry) error {
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return a.AddResolver(key, jobqueuecommand.QueueResolver(queueRegistry))
}

func (a *RegistryAdapter) HasResolver(key string) bool {
	if a == nil || a.registry == nil {
		return false
	}
	return a.registry.HasResolver(strings.TrimSpace(key))
}

func (a *RegistryAdapter) Initialize() error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.Initialize()
}

func SubscribeCommand[T any](cmd command.Commander[T], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
}

func SubscribeQuery[T any, R any](qry command.Querier[T, R], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeQuery(qry, runnerOpts...)
}

func Dispatch[T any](ctx context.Context, msg T) error {
	return commanddispatcher.Dispatch(ctx, msg)
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	return commanddispatcher.Query[T, R](ctx, msg)
}

func RegisterAndSubscribe[T any](
	adapter *RegistryAdapter,
	cmd command.Commander[T],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command is required")
	}
	subscription := SubscribeCommand(cmd, runnerOpts...)
	if err := adapter.RegisterCommand(cmd); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

func RegisterAndSubscribeQuery[T any, R any](
	adapter *RegistryAdapter,
	qry command.Querier[T, R],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if qry == nil {
		return nil, fmt.Errorf("gocommand: query is required")
	}
	subscription := SubscribeQuery(qry, runnerOpts...)
	if err := adapter.RegisterQuery(qry); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

// BridgeService is what RegisterBridgeHandlers wires into the dispatcher.
// core.Service satisfies it.
type BridgeService interface {
	xcommand.MutatingService
	xquery.ProtocolReader
	xquery.StateReader
	xquery.AssetResolver
}

// Subscriptions groups dispatcher subscriptions so they can be released
// together.
type Subscriptions []commanddispatcher.Subscription

func (s Subscriptions) Unsubscribe() {
	for _, subscription := range s {
		if subscription != nil {
			subscription.Unsubscribe()
		}
	}
}

// RegisterBridgeHandlers registers every bridge command and query on adapter
// and subscribes them to the dispatcher. On error nothing stays subscribed.
func RegisterBridgeHandlers(
	adapter *RegistryAdapter,
	svc BridgeService,
	runnerOpts ...runner.Option,
) (Subscriptions, error) {
	if svc == nil {
		return nil, fmt.Errorf("gocommand: bridge service is required")
	}
	var subs Subscriptions
	register := func(sub commanddispatcher.Subscription, err error) error {
		if err != nil {
			subs.Unsubscribe()
			return err
		}
		subs = append(subs, sub)
		return nil
	}

	if err := register(RegisterAndSubscribe(adapter, xcommand.NewInitializeCommand(svc), runnerOpts...)); err != nil {
		return nil, err
	}
	if err := register(RegisterAndSubscribe(adapter, xcommand.NewDepositCommand(svc), runnerOpts...)); err != nil {
		return nil, err
	}
	if err := register(RegisterAndSubscribe(adapter, xcommand.NewHandleCallMessageCommand(svc), runnerOpts...)); err != nil {
		return nil, err
	}
	if err := register(RegisterAndSubscribe(adapter, xcommand.NewProposeRemovalCommand(svc), runnerOpts...)); err != nil {
		return nil, err
	}
	if err := register(RegisterAndSubscribe(adapter, xcommand.NewClearProposedRemovalCommand(svc), runnerOpts...)); err != nil {
		return nil, err
	}
	if err := register(RegisterAndSubscribe(adapter, xcommand.NewSetAdminCommand(svc), runnerOpts...)); err != nil {
		return nil, err
	}
	if err := register(RegisterAndSubscribe(adapter, xcommand.NewSetTransportCommand(svc), runnerOpts...)); err != nil {
		return nil, err
	}
	if err := register(RegisterAndSubscribe(adapter, xcommand.NewSetCounterpartCommand(svc), runnerOpts...)); err != nil {
		return nil, err
	}
	if err := register(RegisterAndSubscribe(adapter, xcommand.NewSetCounterpartBridgeCommand(svc), runnerOpts...)); err != nil {
		return nil, err
	}
	if err := register(RegisterAndSubscribe(adapter, xcommand.NewRegisterAssetCommand(svc), runnerOpts...)); err != nil {
		return nil, err
	}
	if err := register(RegisterAndSubscribeQuery(adapter, xquery.NewGetProtocolsQuery(svc), runnerOpts...)); err != nil {
		return nil, err
	}
	if err := register(RegisterAndSubscribeQuery(adapter, xquery.NewGetProposedRemovalQuery(svc), runnerOpts...)); err != nil {
		return nil, err
	}
	if err := register(RegisterAndSubscribeQuery(adapter, xquery.NewGetBridgeStatusQuery(svc), runnerOpts...)); err != nil {
		return nil, err
	}
	if err := register(RegisterAndSubscribeQuery(adapter, xquery.NewResolveAssetQuery(svc), runnerOpts...)); err != nil {
		return nil, err
	}
	return subs, nil
}

var _ BridgeService = (*core.Service)(nil)
