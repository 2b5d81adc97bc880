package core

import (
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
)

// Static proof-of-work block rewards per era, in wei.
var (
	frontierBlockReward       = uint256.NewInt(5e18)
	byzantiumBlockReward      = uint256.NewInt(3e18)
	constantinopleBlockReward = uint256.NewInt(2e18)
)

// BaseBlockReward returns the static block reward for the given block number,
// or nil when block rewards are disabled.
//
// ChainConfig carries no explicit merge block, so rewards are considered
// disabled when the terminal total difficulty is zero (networks merged from
// genesis, which includes every timestamp-forked test config) or when the
// merge netsplit block has been reached.
func BaseBlockReward(config *params.ChainConfig, number uint64) *uint256.Int {
	switch {
	case config.TerminalTotalDifficulty != nil && config.TerminalTotalDifficulty.Sign() == 0:
		return nil
	case config.MergeNetsplitBlock != nil && config.MergeNetsplitBlock.Uint64() <= number:
		return nil
	case config.IsConstantinople(new(uint256.Int).SetUint64(number).ToBig()):
		return constantinopleBlockReward
	case config.IsByzantium(new(uint256.Int).SetUint64(number).ToBig()):
		return byzantiumBlockReward
	default:
		return frontierBlockReward
	}
}

// BlockReward returns the total reward of the block beneficiary: the base
// reward plus base/32 for every included ommer.
func BlockReward(base *uint256.Int, ommerCount int) *uint256.Int {
	reward := new(uint256.Int).Set(base)
	if ommerCount > 0 {
		inclusion := new(uint256.Int).Rsh(base, 5) // base / 32
		inclusion.Mul(inclusion, uint256.NewInt(uint64(ommerCount)))
		reward.Add(reward, inclusion)
	}
	return reward
}

// OmmerReward returns the reward of an ommer's beneficiary:
// (8 - distance) * base / 8, where distance is the number of blocks between
// the ommer and the block including it. Ommers more than eight blocks old
// earn nothing; consensus validation rejects them before execution.
func OmmerReward(base *uint256.Int, blockNumber, ommerNumber uint64) *uint256.Int {
	distance := blockNumber - ommerNumber
	if distance >= 8 {
		return new(uint256.Int)
	}
	reward := new(uint256.Int).Mul(base, uint256.NewInt(8-distance))
	return reward.Rsh(reward, 3) // / 8
}
