package dto

import (
	"regexp"

	"custody-vault/pkg/fixedpoint"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var digitsRe = regexp.MustCompile(`^[0-9]+$`)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("uint256", validateUint256)
		_ = v.RegisterValidation("evm_address", validateAddress)
	}
}

// validateUint256 accepts a base-10 integer that fits in 256 bits.
// Signs, separators and exponents are rejected.
func validateUint256(fl validator.FieldLevel) bool {
	raw := fl.Field().String()
	if !digitsRe.MatchString(raw) {
		return false
	}
	_, err := fixedpoint.Parse(raw)
	return err == nil
}

// validateAddress accepts a 20-byte hex address with the 0x prefix.
func validateAddress(fl validator.FieldLevel) bool {
	raw := fl.Field().String()
	return len(raw) == 42 && common.IsHexAddress(raw)
}
