package transport

import (
	"math/big"
	"strings"
)

// FeeSchedule quotes loopback fees as the destination network's base fee,
// plus a per-relay charge for each requested source, plus a surcharge when
// the send carries a rollback.
type FeeSchedule struct {
	Base        map[string]*big.Int
	DefaultBase *big.Int
	PerRelay    *big.Int
	Rollback    *big.Int
}

func (f FeeSchedule) Quote(network string, rollback bool, sources []string) *big.Int {
	fee := new(big.Int)
	if base, ok := f.Base[strings.TrimSpace(network)]; ok && base != nil {
		fee.Add(fee, base)
	} else if f.DefaultBase != nil {
		fee.Add(fee, f.DefaultBase)
	}
	if f.PerRelay != nil && len(sources) > 0 {
		fee.Add(fee, new(big.Int).Mul(f.PerRelay, big.NewInt(int64(len(sources)))))
	}
	if rollback && f.Rollback != nil {
		fee.Add(fee, f.Rollback)
	}
	if fee.Sign() < 0 {
		return new(big.Int)
	}
	return fee
}

func (f FeeSchedule) clone() FeeSchedule {
	out := FeeSchedule{
		DefaultBase: cloneAmount(f.DefaultBase),
		PerRelay:    cloneAmount(f.PerRelay),
		Rollback:    cloneAmount(f.Rollback),
	}
	if len(f.Base) > 0 {
		out.Base = make(map[string]*big.Int, len(f.Base))
		for network, fee := range f.Base {
			out.Base[strings.TrimSpace(network)] = cloneAmount(fee)
		}
	}
	return out
}

func cloneAmount(amount *big.Int) *big.Int {
	if amount == nil {
		return nil
	}
	return new(big.Int).Set(amount)
}
