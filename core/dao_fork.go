package core

import (
	"fmt"

	"github.com/ethereum/go-ethereum/params"

	"github.com/will-2012/wrapper-evm/core/vm"
)

// applyDAOHardFork performs the irregular state transition of the DAO
// hardfork block: the balances of the hardcoded DAO accounts are drained and
// the total is credited to the refund contract through the increments map, in
// addition to the block's regular reward and withdrawal increments.
func applyDAOHardFork(state vm.StateDB, increments BalanceIncrements) error {
	drained, err := state.DrainBalances(params.DAODrainList())
	if err != nil {
		return fmt.Errorf("%w: draining DAO accounts: %v", ErrIncrementBalanceFailed, err)
	}
	increments.add(params.DAORefundContract, drained)
	return nil
}
