package codec

import "math/big"

const (
	MethodConfigureProtocols = "configureProtocols"
	MethodExecute            = "execute"
	MethodDeposit            = "deposit"
	MethodDepositRevert      = "depositRevert"
	MethodWithdrawTo         = "withdrawTo"
	MethodWithdrawNativeTo   = "withdrawNativeTo"
)

// Envelope is one variant of the bridge wire message.
type Envelope interface {
	Method() string
	fields() []any
}

type ConfigureProtocols struct {
	Sources      []string
	Destinations []string
}

func (ConfigureProtocols) Method() string { return MethodConfigureProtocols }

func (m ConfigureProtocols) fields() []any {
	return []any{nonNilStrings(m.Sources), nonNilStrings(m.Destinations)}
}

// Execute carries an opaque batch payload for the governance executor.
type Execute struct {
	Payload []byte
}

func (Execute) Method() string { return MethodExecute }

func (m Execute) fields() []any {
	return []any{nonNilBytes(m.Payload)}
}

type Deposit struct {
	AssetID   string
	Sender    string
	Recipient string
	Amount    *big.Int
	Data      []byte
}

func (Deposit) Method() string { return MethodDeposit }

func (m Deposit) fields() []any {
	return []any{m.AssetID, m.Sender, m.Recipient, m.Amount, nonNilBytes(m.Data)}
}

type DepositRevert struct {
	AssetID string
	Sender  string
	Amount  *big.Int
}

func (DepositRevert) Method() string { return MethodDepositRevert }

func (m DepositRevert) fields() []any {
	return []any{m.AssetID, m.Sender, m.Amount}
}

type WithdrawTo struct {
	AssetID   string
	Recipient string
	Amount    *big.Int
}

func (WithdrawTo) Method() string { return MethodWithdrawTo }

func (m WithdrawTo) fields() []any {
	return []any{m.AssetID, m.Recipient, m.Amount}
}

type WithdrawNativeTo struct {
	AssetID   string
	Recipient string
	Amount    *big.Int
}

func (WithdrawNativeTo) Method() string { return MethodWithdrawNativeTo }

func (m WithdrawNativeTo) fields() []any {
	return []any{m.AssetID, m.Recipient, m.Amount}
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func nonNilBytes(value []byte) []byte {
	if value == nil {
		return []byte{}
	}
	return value
}
