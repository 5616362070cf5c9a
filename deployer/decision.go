package deployer

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Path is the branch a deploy-or-upgrade run takes.
type Path int

const (
	FirstDeploy Path = iota
	Upgrade
)

func (p Path) String() string {
	switch p {
	case FirstDeploy:
		return "first_deploy"
	case Upgrade:
		return "upgrade"
	default:
		return fmt.Sprintf("path(%d)", int(p))
	}
}

// Decision is computed once per run from the ledger and then dispatched on.
// Existing is set only for Upgrade.
type Decision struct {
	Path     Path
	Existing common.Address
}

// Decide chooses Upgrade when a proxy address is recorded and FirstDeploy otherwise.
func Decide(existing common.Address, recorded bool) Decision {
	if recorded && existing != (common.Address{}) {
		return Decision{Path: Upgrade, Existing: existing}
	}
	return Decision{Path: FirstDeploy}
}

func (d Decision) String() string {
	if d.Path == Upgrade {
		return fmt.Sprintf("upgrade(%s)", d.Existing.Hex())
	}
	return d.Path.String()
}
