package service

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func TestStaticAdminPolicy(t *testing.T) {
	admin := common.HexToAddress("0xaa")
	p := NewStaticAdminPolicy([]common.Address{admin})

	assert.True(t, p.IsAdmin(admin))
	assert.False(t, p.IsAdmin(testCaller))
	assert.False(t, NewStaticAdminPolicy(nil).IsAdmin(common.Address{}))
}
