package postgres

import (
	"fmt"

	"custody-vault/pkg/fixedpoint"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Column codecs: addresses as 20-byte BYTEA, amounts as NUMERIC(78,0)
// exchanged in text form.

func addrArg(a common.Address) []byte {
	return a.Bytes()
}

func addrFrom(b []byte) (common.Address, error) {
	if len(b) != common.AddressLength {
		return common.Address{}, fmt.Errorf("address column has %d bytes", len(b))
	}
	return common.BytesToAddress(b), nil
}

func amountArg(x *uint256.Int) string {
	return fixedpoint.String(x)
}

func amountFrom(s string) (*uint256.Int, error) {
	v, err := fixedpoint.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("amount column: %w", err)
	}
	return v, nil
}
