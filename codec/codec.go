package codec

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"
)

// Encode serializes an envelope as [method, args...].
func Encode(envelope Envelope) ([]byte, error) {
	if envelope == nil {
		return nil, malformed("codec: envelope is nil", nil)
	}
	method := envelope.Method()
	fields := envelope.fields()
	for _, field := range fields {
		amount, ok := field.(*big.Int)
		if !ok {
			continue
		}
		if amount == nil {
			return nil, malformed("codec: amount is required", map[string]any{"method": method})
		}
		if amount.Sign() < 0 {
			return nil, malformed("codec: amount must not be negative", map[string]any{
				"method": method,
				"amount": amount.String(),
			})
		}
	}
	payload := make([]any, 0, len(fields)+1)
	payload = append(payload, method)
	payload = append(payload, fields...)
	out, err := rlp.EncodeToBytes(payload)
	if err != nil {
		return nil, malformedWrap(err, "codec: encode envelope", map[string]any{"method": method})
	}
	return out, nil
}

// Decode parses data into the envelope variant named by its first element.
// Argument counts must match the method exactly.
func Decode(data []byte) (Envelope, error) {
	if len(data) == 0 {
		return nil, malformed("codec: message is empty", nil)
	}
	var items []rlp.RawValue
	if err := rlp.DecodeBytes(data, &items); err != nil {
		return nil, malformedWrap(err, "codec: message is not a list", nil)
	}
	if len(items) == 0 {
		return nil, malformed("codec: message has no method", nil)
	}
	var method string
	if err := rlp.DecodeBytes(items[0], &method); err != nil {
		return nil, malformedWrap(err, "codec: decode method", nil)
	}
	args := argReader{method: method, items: items[1:]}

	switch method {
	case MethodConfigureProtocols:
		if err := args.expect(2); err != nil {
			return nil, err
		}
		msg := ConfigureProtocols{}
		if err := args.decode(0, "sources", &msg.Sources); err != nil {
			return nil, err
		}
		if err := args.decode(1, "destinations", &msg.Destinations); err != nil {
			return nil, err
		}
		return msg, nil
	case MethodExecute:
		if err := args.expect(1); err != nil {
			return nil, err
		}
		msg := Execute{}
		if err := args.decode(0, "payload", &msg.Payload); err != nil {
			return nil, err
		}
		return msg, nil
	case MethodDeposit:
		if err := args.expect(5); err != nil {
			return nil, err
		}
		msg := Deposit{}
		if err := args.decode(0, "asset_id", &msg.AssetID); err != nil {
			return nil, err
		}
		if err := args.decode(1, "sender", &msg.Sender); err != nil {
			return nil, err
		}
		if err := args.decode(2, "recipient", &msg.Recipient); err != nil {
			return nil, err
		}
		amount, err := args.amount(3)
		if err != nil {
			return nil, err
		}
		msg.Amount = amount
		if err := args.decode(4, "data", &msg.Data); err != nil {
			return nil, err
		}
		return msg, nil
	case MethodDepositRevert:
		if err := args.expect(3); err != nil {
			return nil, err
		}
		msg := DepositRevert{}
		if err := args.decode(0, "asset_id", &msg.AssetID); err != nil {
			return nil, err
		}
		if err := args.decode(1, "sender", &msg.Sender); err != nil {
			return nil, err
		}
		amount, err := args.amount(2)
		if err != nil {
			return nil, err
		}
		msg.Amount = amount
		return msg, nil
	case MethodWithdrawTo, MethodWithdrawNativeTo:
		if err := args.expect(3); err != nil {
			return nil, err
		}
		var assetID, recipient string
		if err := args.decode(0, "asset_id", &assetID); err != nil {
			return nil, err
		}
		if err := args.decode(1, "recipient", &recipient); err != nil {
			return nil, err
		}
		amount, err := args.amount(2)
		if err != nil {
			return nil, err
		}
		if method == MethodWithdrawNativeTo {
			return WithdrawNativeTo{AssetID: assetID, Recipient: recipient, Amount: amount}, nil
		}
		return WithdrawTo{AssetID: assetID, Recipient: recipient, Amount: amount}, nil
	default:
		return nil, malformed(fmt.Sprintf("codec: unknown method %q", method), map[string]any{"method": method})
	}
}

type argReader struct {
	method string
	items  []rlp.RawValue
}

func (r argReader) expect(count int) error {
	if len(r.items) == count {
		return nil
	}
	return malformed(
		fmt.Sprintf("codec: %s expects %d arguments, got %d", r.method, count, len(r.items)),
		map[string]any{"method": r.method},
	)
}

func (r argReader) decode(index int, name string, target any) error {
	if err := rlp.DecodeBytes(r.items[index], target); err != nil {
		return malformedWrap(err, fmt.Sprintf("codec: decode %s.%s", r.method, name), map[string]any{
			"method":   r.method,
			"argument": name,
		})
	}
	return nil
}

func (r argReader) amount(index int) (*big.Int, error) {
	amount := new(big.Int)
	if err := r.decode(index, "amount", amount); err != nil {
		return nil, err
	}
	return amount, nil
}
