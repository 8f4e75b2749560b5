package core

import (
	"slices"
	"strings"

	"github.com/goliatone/go-xbridge/codec"
)

// GuardState is the reconfiguration state of the protocol registry.
type GuardState string

const (
	// GuardStable accepts reconfiguration only with every current source
	// relay attesting.
	GuardStable GuardState = "stable"
	// GuardRemovalProposed additionally accepts a configureProtocols message
	// attested by every current source except the proposed one.
	GuardRemovalProposed GuardState = "removal_proposed"
)

// ProtocolGuard evaluates relay attestations against a bridge state. It
// mutates the state only through Propose, Clear and Install.
type ProtocolGuard struct {
	state *BridgeState
}

func NewProtocolGuard(state *BridgeState) ProtocolGuard {
	return ProtocolGuard{state: state}
}

func (g ProtocolGuard) State() GuardState {
	if g.state == nil || strings.TrimSpace(g.state.ProposedRemoval) == "" {
		return GuardStable
	}
	return GuardRemovalProposed
}

func (g ProtocolGuard) Protocols() (ProtocolConfig, error) {
	if g.state == nil || g.state.Protocols == nil {
		return ProtocolConfig{}, configurationError("core: protocols are not configured", nil)
	}
	return g.state.Protocols.Clone(), nil
}

func (g ProtocolGuard) sources() []string {
	if g.state == nil || g.state.Protocols == nil {
		return nil
	}
	return g.state.Protocols.Sources
}

// Verify applies the strict rule: with no required sources nothing may be
// delivered, otherwise every required source must be present. Extra
// delivered relays are tolerated.
func (g ProtocolGuard) Verify(delivered []string) error {
	return verifyRelaySet(g.sources(), delivered)
}

// Authorize decides whether an administrative message with the given method
// may be dispatched under the current configuration.
func (g ProtocolGuard) Authorize(method string, delivered []string) error {
	strictErr := g.Verify(delivered)
	if strictErr == nil {
		return nil
	}
	if method != codec.MethodConfigureProtocols {
		return configurationError("core: only configureProtocols may be accepted without full attestation", map[string]any{
			"method":    method,
			"delivered": cloneStrings(delivered),
		})
	}

	switch g.State() {
	case GuardRemovalProposed:
		proposal := strings.TrimSpace(g.state.ProposedRemoval)
		required := make([]string, 0, len(g.sources()))
		for _, source := range g.sources() {
			if source != proposal {
				required = append(required, source)
			}
		}
		if len(g.sources()) == 1 && len(required) == 0 {
			if len(delivered) == 0 {
				return nil
			}
			return protocolMismatchError("core: sole proposed relay removal requires an empty delivery set", map[string]any{
				"proposed_removal": proposal,
				"delivered":        cloneStrings(delivered),
			})
		}
		if err := verifySubset(required, delivered); err != nil {
			return protocolMismatchError("core: delivered relays do not cover sources minus the proposed removal", map[string]any{
				"proposed_removal": proposal,
				"delivered":        cloneStrings(delivered),
			})
		}
		return nil
	default:
		return strictErr
	}
}

// Propose nominates relayID for removal, replacing any earlier proposal.
func (g ProtocolGuard) Propose(relayID string) error {
	relayID = strings.TrimSpace(relayID)
	if relayID == "" {
		return valueError("core: relay id is required", nil)
	}
	if g.state == nil {
		return configurationError("core: bridge state is not loaded", nil)
	}
	g.state.ProposedRemoval = relayID
	return nil
}

func (g ProtocolGuard) Clear() {
	if g.state == nil {
		return
	}
	g.state.ProposedRemoval = ""
}

// Install replaces the protocol configuration and returns the guard to
// GuardStable.
func (g ProtocolGuard) Install(cfg ProtocolConfig) {
	if g.state == nil {
		return
	}
	installed := cfg.Clone()
	g.state.Protocols = &installed
	g.state.ProposedRemoval = ""
}

func verifyRelaySet(sources []string, delivered []string) error {
	if len(sources) == 0 {
		if len(delivered) == 0 {
			return nil
		}
		return protocolMismatchError("core: no relays are required but a delivery set was supplied", map[string]any{
			"delivered": cloneStrings(delivered),
		})
	}
	if err := verifySubset(sources, delivered); err != nil {
		return protocolMismatchError("core: delivered relays do not cover the required sources", map[string]any{
			"sources":   cloneStrings(sources),
			"delivered": cloneStrings(delivered),
			"missing":   err.missing,
		})
	}
	return nil
}

type missingRelaysError struct {
	missing []string
}

func (e *missingRelaysError) Error() string {
	return "core: missing relays " + strings.Join(e.missing, ",")
}

func verifySubset(required []string, delivered []string) *missingRelaysError {
	var missing []string
	for _, relay := range required {
		if !slices.Contains(delivered, relay) {
			missing = append(missing, relay)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &missingRelaysError{missing: missing}
}
