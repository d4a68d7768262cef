package domain

import (
	"github.com/ethereum/go-ethereum/common"
)

// BuildIdempotencyKey scopes a client Idempotency-Key to the caller and route.
func BuildIdempotencyKey(caller common.Address, route, key string) string {
	return caller.Hex() + ":" + route + ":" + key
}
