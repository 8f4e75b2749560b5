package codec

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/rlp"
)

func TestEncodeDecode_ConfigureProtocols(t *testing.T) {
	data, err := Encode(ConfigureProtocols{
		Sources:      []string{"relayA", "relayB"},
		Destinations: []string{"d1", "d1"},
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	msg, ok := decoded.(ConfigureProtocols)
	if !ok {
		t.Fatalf("expected ConfigureProtocols, got %T", decoded)
	}
	if len(msg.Sources) != 2 || msg.Sources[0] != "relayA" || msg.Sources[1] != "relayB" {
		t.Fatalf("unexpected sources %v", msg.Sources)
	}
	if len(msg.Destinations) != 2 || msg.Destinations[1] != "d1" {
		t.Fatalf("expected duplicate destinations preserved, got %v", msg.Destinations)
	}
}

func TestEncodeDecode_EmptySourcesStayEmpty(t *testing.T) {
	data, err := Encode(ConfigureProtocols{})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	msg := decoded.(ConfigureProtocols)
	if len(msg.Sources) != 0 || len(msg.Destinations) != 0 {
		t.Fatalf("expected empty relay sets, got %+v", msg)
	}
}

func TestEncodeDecode_Deposit(t *testing.T) {
	amount, _ := new(big.Int).SetString("340282366920938463463374607431768211456", 10)
	data, err := Encode(Deposit{
		AssetID:   "0x1.icon/cx00",
		Sender:    "0xa",
		Recipient: "0x1.icon/hx01",
		Amount:    amount,
		Data:      []byte("memo"),
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	msg, ok := decoded.(Deposit)
	if !ok {
		t.Fatalf("expected Deposit, got %T", decoded)
	}
	if msg.AssetID != "0x1.icon/cx00" || msg.Sender != "0xa" || msg.Recipient != "0x1.icon/hx01" {
		t.Fatalf("unexpected deposit fields %+v", msg)
	}
	if msg.Amount.Cmp(amount) != 0 {
		t.Fatalf("expected amount %s, got %s", amount, msg.Amount)
	}
	if !bytes.Equal(msg.Data, []byte("memo")) {
		t.Fatalf("unexpected data %q", msg.Data)
	}
}

func TestEncodeDecode_WithdrawVariantsAreDistinct(t *testing.T) {
	for _, envelope := range []Envelope{
		WithdrawTo{AssetID: "a", Recipient: "r", Amount: big.NewInt(5)},
		WithdrawNativeTo{AssetID: "a", Recipient: "r", Amount: big.NewInt(5)},
		DepositRevert{AssetID: "a", Sender: "s", Amount: big.NewInt(0)},
		Execute{Payload: []byte{0x01, 0x02}},
	} {
		data, err := Encode(envelope)
		if err != nil {
			t.Fatalf("encode %s: %v", envelope.Method(), err)
		}
		decoded, err := Decode(data)
		if err != nil {
			t.Fatalf("decode %s: %v", envelope.Method(), err)
		}
		if decoded.Method() != envelope.Method() {
			t.Fatalf("expected method %s, got %s", envelope.Method(), decoded.Method())
		}
	}
}

func TestEncode_FirstElementIsMethodName(t *testing.T) {
	data, err := Encode(WithdrawTo{AssetID: "a", Recipient: "r", Amount: big.NewInt(1)})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var items []rlp.RawValue
	if err := rlp.DecodeBytes(data, &items); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(items) != 4 {
		t.Fatalf("expected method plus three arguments, got %d items", len(items))
	}
	var method string
	if err := rlp.DecodeBytes(items[0], &method); err != nil {
		t.Fatalf("decode method: %v", err)
	}
	if method != "withdrawTo" {
		t.Fatalf("expected withdrawTo, got %q", method)
	}
}

func TestEncode_RejectsNegativeAndMissingAmount(t *testing.T) {
	if _, err := Encode(WithdrawTo{AssetID: "a", Recipient: "r", Amount: big.NewInt(-1)}); !IsMalformed(err) {
		t.Fatalf("expected malformed error for negative amount, got %v", err)
	}
	if _, err := Encode(DepositRevert{AssetID: "a", Sender: "s"}); !IsMalformed(err) {
		t.Fatalf("expected malformed error for nil amount, got %v", err)
	}
}

func TestDecode_RejectsMalformedMessages(t *testing.T) {
	unknown, _ := rlp.EncodeToBytes([]any{"mint", "a"})
	shortArgs, _ := rlp.EncodeToBytes([]any{"withdrawTo", "a", "r"})
	extraArgs, _ := rlp.EncodeToBytes([]any{"execute", []byte{1}, []byte{2}})
	notList, _ := rlp.EncodeToBytes("deposit")
	for name, data := range map[string][]byte{
		"empty":      nil,
		"not-list":   notList,
		"unknown":    unknown,
		"short-args": shortArgs,
		"extra-args": extraArgs,
		"garbage":    {0xff, 0x00},
	} {
		if _, err := Decode(data); !IsMalformed(err) {
			t.Fatalf("%s: expected malformed error, got %v", name, err)
		}
	}
}
