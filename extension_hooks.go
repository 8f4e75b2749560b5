package xbridge

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-xbridge/core"
	"github.com/goliatone/go-xbridge/transport"
)

// UpgradePack is a named set of upgrade hooks shipped by a downstream module.
type UpgradePack struct {
	Name  string
	Hooks []core.UpgradeHook
}

// TransportPack registers additional relay adapter factories by kind.
type TransportPack struct {
	Name      string
	Factories map[string]transport.AdapterFactory
}

type CommandQueryBundleFactory func(service CommandQueryService) (any, error)

// ExtensionHooks collects downstream extensions. Packs are applied in name
// order so registration order never changes behavior.
type ExtensionHooks struct {
	mu sync.RWMutex

	upgradePacks   map[string]UpgradePack
	transportPacks map[string]TransportPack
	bundles        map[string]CommandQueryBundleFactory
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{
		upgradePacks:   map[string]UpgradePack{},
		transportPacks: map[string]TransportPack{},
		bundles:        map[string]CommandQueryBundleFactory{},
	}
}

func (h *ExtensionHooks) RegisterUpgradePack(pack UpgradePack) error {
	if h == nil {
		return fmt.Errorf("xbridge: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("xbridge: upgrade pack name is required")
	}
	if len(pack.Hooks) == 0 {
		return fmt.Errorf("xbridge: upgrade pack %q has no hooks", name)
	}
	for _, hook := range pack.Hooks {
		if hook == nil {
			return fmt.Errorf("xbridge: upgrade pack %q contains nil hook", name)
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.upgradePacks[name]; exists {
		return fmt.Errorf("xbridge: upgrade pack %q already registered", name)
	}
	h.upgradePacks[name] = UpgradePack{
		Name:  name,
		Hooks: append([]core.UpgradeHook(nil), pack.Hooks...),
	}
	return nil
}

func (h *ExtensionHooks) RegisterTransportPack(pack TransportPack) error {
	if h == nil {
		return fmt.Errorf("xbridge: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("xbridge: transport pack name is required")
	}
	if len(pack.Factories) == 0 {
		return fmt.Errorf("xbridge: transport pack %q has no factories", name)
	}

	factories := make(map[string]transport.AdapterFactory, len(pack.Factories))
	for kind, factory := range pack.Factories {
		if factory == nil {
			return fmt.Errorf("xbridge: transport pack %q factory %q is nil", name, kind)
		}
		factories[kind] = factory
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.transportPacks[name]; exists {
		return fmt.Errorf("xbridge: transport pack %q already registered", name)
	}
	h.transportPacks[name] = TransportPack{Name: name, Factories: factories}
	return nil
}

func (h *ExtensionHooks) RegisterCommandQueryBundle(
	name string,
	factory CommandQueryBundleFactory,
) error {
	if h == nil {
		return fmt.Errorf("xbridge: extension hooks are nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("xbridge: command/query bundle name is required")
	}
	if factory == nil {
		return fmt.Errorf("xbridge: command/query bundle %q factory is required", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.bundles[name]; exists {
		return fmt.Errorf("xbridge: command/query bundle %q already registered", name)
	}
	h.bundles[name] = factory
	return nil
}

// UpgradeHooks flattens every pack's hooks in pack-name order.
func (h *ExtensionHooks) UpgradeHooks() []core.UpgradeHook {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := []core.UpgradeHook{}
	for _, name := range sortedKeys(h.upgradePacks) {
		out = append(out, h.upgradePacks[name].Hooks...)
	}
	return out
}

// ServiceOptions returns the core options that install the registered hooks.
func (h *ExtensionHooks) ServiceOptions() []core.Option {
	hooks := h.UpgradeHooks()
	if len(hooks) == 0 {
		return nil
	}
	return []core.Option{core.WithUpgradeHooks(hooks...)}
}

func (h *ExtensionHooks) ApplyTransportPacks(registry *transport.Registry) error {
	if h == nil {
		return nil
	}
	if registry == nil {
		return fmt.Errorf("xbridge: transport registry is required")
	}

	h.mu.RLock()
	packs := make([]TransportPack, 0, len(h.transportPacks))
	for _, name := range sortedKeys(h.transportPacks) {
		packs = append(packs, h.transportPacks[name])
	}
	h.mu.RUnlock()

	for _, pack := range packs {
		kinds := make([]string, 0, len(pack.Factories))
		for kind := range pack.Factories {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)
		for _, kind := range kinds {
			if err := registry.RegisterFactory(kind, pack.Factories[kind]); err != nil {
				return fmt.Errorf("xbridge: transport pack %q: %w", pack.Name, err)
			}
		}
	}
	return nil
}

func (h *ExtensionHooks) BuildCommandQueryBundles(
	service CommandQueryService,
) (map[string]any, error) {
	if h == nil {
		return map[string]any{}, nil
	}
	if service == nil {
		return nil, fmt.Errorf("xbridge: command/query service is required")
	}

	h.mu.RLock()
	names := sortedKeys(h.bundles)
	factories := make(map[string]CommandQueryBundleFactory, len(h.bundles))
	for name, factory := range h.bundles {
		factories[name] = factory
	}
	h.mu.RUnlock()

	result := make(map[string]any, len(names))
	for _, name := range names {
		bundle, err := factories[name](service)
		if err != nil {
			return nil, err
		}
		result[name] = bundle
	}
	return result, nil
}

func (h *ExtensionHooks) BundleNames() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return sortedKeys(h.bundles)
}

func sortedKeys[V any](values map[string]V) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
