package core

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"

	"github.com/will-2012/wrapper-evm/core/vm"
)

// BalanceIncrements maps addresses to pending balance additions. Repeated
// writes to the same address accumulate; zero-valued entries are never
// materialized into a state diff.
type BalanceIncrements map[common.Address]*uint256.Int

func (b BalanceIncrements) add(addr common.Address, amount *uint256.Int) {
	if cur, ok := b[addr]; ok {
		cur.Add(cur, amount)
		return
	}
	b[addr] = new(uint256.Int).Set(amount)
}

// PostBlockBalanceIncrements collects every balance change applied at the end
// of a block: the block reward, ommer rewards and withdrawals. Irregular
// state transitions (DAO fork) are handled separately by the executor since
// they also drain balances.
func PostBlockBalanceIncrements(config *params.ChainConfig, env *vm.BlockEnv, ommers []*types.Header, withdrawals types.Withdrawals) BalanceIncrements {
	increments := make(BalanceIncrements)

	if base := BaseBlockReward(config, env.Number); base != nil {
		for _, ommer := range ommers {
			increments.add(ommer.Coinbase, OmmerReward(base, env.Number, ommer.Number.Uint64()))
		}
		increments.add(env.Coinbase, BlockReward(base, len(ommers)))
	}

	insertWithdrawalBalanceIncrements(config, env.Number, env.Timestamp, withdrawals, increments)
	return increments
}

// insertWithdrawalBalanceIncrements adds every nonzero withdrawal to the
// increments map if withdrawal processing is active at the given timestamp.
// Zero-amount withdrawals are dropped, not inserted as zero deltas.
func insertWithdrawalBalanceIncrements(config *params.ChainConfig, number, timestamp uint64, withdrawals types.Withdrawals, increments BalanceIncrements) {
	if !config.IsShanghai(new(big.Int).SetUint64(number), timestamp) {
		return
	}
	for _, w := range withdrawals {
		if w.Amount == 0 {
			continue
		}
		// Withdrawal amounts are denominated in gwei.
		amount := new(uint256.Int).Mul(uint256.NewInt(w.Amount), uint256.NewInt(params.GWei))
		increments.add(w.Address, amount)
	}
}

// BalanceIncrementState prepares the observation-hook diff skeleton for a set
// of balance increments: one touched-account record per nonzero increment,
// carrying the account info as currently loadable from state. The balance
// addition itself is applied by the caller's commit step, not here.
func BalanceIncrementState(increments BalanceIncrements, state vm.StateReader) (vm.StateDiff, error) {
	diff := make(vm.StateDiff, len(increments))
	for addr, inc := range increments {
		if inc == nil || inc.IsZero() {
			continue
		}
		info, err := state.Account(addr)
		if err != nil {
			return nil, &AccountLoadError{Address: addr, Err: err}
		}
		diff[addr] = &vm.AccountChange{Account: *info}
	}
	return diff, nil
}
