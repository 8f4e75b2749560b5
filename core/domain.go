package core

import (
	"fmt"
	"math/big"
	"slices"
	"strings"
)

// NativeAssetHandle is the local handle that denotes this chain's base
// currency rather than a token.
const NativeAssetHandle = "0x0000000000000000000000000000000000000000"

// NetworkAddress is a chain-qualified identity in the form network-id/address.
type NetworkAddress struct {
	Network string
	Account string
}

func NewNetworkAddress(network string, account string) NetworkAddress {
	return NetworkAddress{
		Network: strings.TrimSpace(network),
		Account: strings.TrimSpace(account),
	}
}

// ParseNetworkAddress splits value on the first "/".
func ParseNetworkAddress(value string) (NetworkAddress, error) {
	value = strings.TrimSpace(value)
	network, account, ok := strings.Cut(value, "/")
	if !ok {
		return NetworkAddress{}, fmt.Errorf("core: network address %q is missing the network separator", value)
	}
	addr := NewNetworkAddress(network, account)
	if err := addr.Validate(); err != nil {
		return NetworkAddress{}, err
	}
	return addr, nil
}

func (a NetworkAddress) Validate() error {
	if strings.TrimSpace(a.Network) == "" {
		return fmt.Errorf("core: network address network id is required")
	}
	if strings.TrimSpace(a.Account) == "" {
		return fmt.Errorf("core: network address account is required")
	}
	return nil
}

func (a NetworkAddress) IsZero() bool {
	return strings.TrimSpace(a.Network) == "" && strings.TrimSpace(a.Account) == ""
}

func (a NetworkAddress) String() string {
	if a.IsZero() {
		return ""
	}
	return a.Network + "/" + a.Account
}

// Equal compares identities case-insensitively on the account part, since
// hex addresses are not case-normalized across chains.
func (a NetworkAddress) Equal(other NetworkAddress) bool {
	return strings.TrimSpace(a.Network) == strings.TrimSpace(other.Network) &&
		strings.EqualFold(strings.TrimSpace(a.Account), strings.TrimSpace(other.Account))
}

// ProtocolConfig holds the relay ids required to trust inbound messages
// (Sources) and the relay ids used for outbound sends (Destinations).
type ProtocolConfig struct {
	Sources      []string
	Destinations []string
}

func (c ProtocolConfig) Clone() ProtocolConfig {
	return ProtocolConfig{
		Sources:      cloneStrings(c.Sources),
		Destinations: cloneStrings(c.Destinations),
	}
}

// RequiresAttestation reports whether any relay must attest inbound delivery.
func (c ProtocolConfig) RequiresAttestation() bool {
	return len(c.Sources) > 0
}

// Asset is the resolved local representation of an asset id.
type Asset struct {
	Handle string
	Native bool
}

func NativeAsset() Asset {
	return Asset{Handle: NativeAssetHandle, Native: true}
}

func TokenAsset(handle string) Asset {
	handle = strings.TrimSpace(handle)
	if IsNativeHandle(handle) {
		return NativeAsset()
	}
	return Asset{Handle: handle}
}

func IsNativeHandle(handle string) bool {
	handle = strings.TrimSpace(handle)
	return handle == "" || strings.EqualFold(handle, NativeAssetHandle)
}

// AssetIdentityMap associates chain-qualified asset ids with local handles.
// Entries are only ever added.
type AssetIdentityMap struct {
	byRemote map[string]string
	byLocal  map[string]string
}

func NewAssetIdentityMap() AssetIdentityMap {
	return AssetIdentityMap{
		byRemote: map[string]string{},
		byLocal:  map[string]string{},
	}
}

func (m AssetIdentityMap) Local(remoteID string) (string, bool) {
	handle, ok := m.byRemote[strings.TrimSpace(remoteID)]
	return handle, ok
}

func (m AssetIdentityMap) Remote(handle string) (string, bool) {
	remoteID, ok := m.byLocal[normalizeHandle(handle)]
	return remoteID, ok
}

func (m AssetIdentityMap) Len() int {
	return len(m.byRemote)
}

// Entries returns remote id -> local handle pairs sorted by remote id.
func (m AssetIdentityMap) Entries() []AssetMapping {
	out := make([]AssetMapping, 0, len(m.byRemote))
	for remoteID, handle := range m.byRemote {
		out = append(out, AssetMapping{RemoteID: remoteID, LocalHandle: handle})
	}
	slices.SortFunc(out, func(a, b AssetMapping) int {
		return strings.Compare(a.RemoteID, b.RemoteID)
	})
	return out
}

func (m *AssetIdentityMap) add(remoteID string, handle string) error {
	remoteID = strings.TrimSpace(remoteID)
	handle = strings.TrimSpace(handle)
	if remoteID == "" || handle == "" {
		return fmt.Errorf("core: asset remote id and local handle are required")
	}
	if m.byRemote == nil {
		m.byRemote = map[string]string{}
	}
	if m.byLocal == nil {
		m.byLocal = map[string]string{}
	}
	if existing, ok := m.byRemote[remoteID]; ok {
		if normalizeHandle(existing) == normalizeHandle(handle) {
			return nil
		}
		return fmt.Errorf("core: asset %q is already mapped to %q", remoteID, existing)
	}
	if existing, ok := m.byLocal[normalizeHandle(handle)]; ok {
		return fmt.Errorf("core: local asset %q is already mapped to %q", handle, existing)
	}
	m.byRemote[remoteID] = handle
	m.byLocal[normalizeHandle(handle)] = remoteID
	return nil
}

func (m AssetIdentityMap) clone() AssetIdentityMap {
	out := NewAssetIdentityMap()
	for remoteID, handle := range m.byRemote {
		out.byRemote[remoteID] = handle
	}
	for handle, remoteID := range m.byLocal {
		out.byLocal[handle] = remoteID
	}
	return out
}

type AssetMapping struct {
	RemoteID    string
	LocalHandle string
}

// RollbackCapsule is captured when a deposit is sent and replayed by the
// transport if the remote leg fails.
type RollbackCapsule struct {
	AssetID        string
	OriginalSender string
	Amount         *big.Int
}

// Principals are the identities allowed to administer a bridge instance.
type Principals struct {
	Owner             string
	Admin             string
	Transport         string
	Counterpart       NetworkAddress
	CounterpartBridge NetworkAddress
}

// BridgeState is the single aggregate owned by a deployed bridge instance.
type BridgeState struct {
	Version         string
	Principals      Principals
	Protocols       *ProtocolConfig
	ProposedRemoval string
	Assets          AssetIdentityMap
}

func NewBridgeState() BridgeState {
	return BridgeState{Assets: NewAssetIdentityMap()}
}

func (s BridgeState) Initialized() bool {
	return strings.TrimSpace(s.Version) != ""
}

func (s BridgeState) Clone() BridgeState {
	out := s
	if s.Protocols != nil {
		cfg := s.Protocols.Clone()
		out.Protocols = &cfg
	}
	out.Assets = s.Assets.clone()
	return out
}

// RegisterAsset adds a mapping to the state's asset identity map.
func (s *BridgeState) RegisterAsset(remoteID string, handle string) error {
	if s == nil {
		return fmt.Errorf("core: bridge state is nil")
	}
	return s.Assets.add(remoteID, handle)
}

func normalizeHandle(handle string) string {
	return strings.ToLower(strings.TrimSpace(handle))
}

func cloneStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return append([]string{}, values...)
}

func cloneAmount(amount *big.Int) *big.Int {
	if amount == nil {
		return nil
	}
	return new(big.Int).Set(amount)
}
