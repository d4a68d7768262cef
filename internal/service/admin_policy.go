package service

import (
	"github.com/ethereum/go-ethereum/common"
)

// StaticAdminPolicy implements ports.AdminPolicy from a fixed allow-list.
type StaticAdminPolicy struct {
	admins map[common.Address]struct{}
}

// NewStaticAdminPolicy creates a policy granting admin to the given addresses.
func NewStaticAdminPolicy(admins []common.Address) *StaticAdminPolicy {
	m := make(map[common.Address]struct{}, len(admins))
	for _, a := range admins {
		m[a] = struct{}{}
	}
	return &StaticAdminPolicy{admins: m}
}

func (p *StaticAdminPolicy) IsAdmin(caller common.Address) bool {
	_, ok := p.admins[caller]
	return ok
}
