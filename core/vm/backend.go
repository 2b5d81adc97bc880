package vm

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

// SystemCallGasLimit is the gas limit handed to protocol system calls. System
// calls do not count against the block gas limit, so the value only has to be
// large enough for the system contracts to run to completion.
const SystemCallGasLimit = 30_000_000

// BlockEnv carries the per-block values the execution backend exposes to the
// orchestration layer. It is owned by the backend; the executor and system
// caller read it and only ever mutate it through WithSystemCallEnv.
type BlockEnv struct {
	Number    uint64
	Timestamp uint64
	GasLimit  uint64
	BaseFee   *big.Int
	Coinbase  common.Address
	Random    common.Hash
}

// AccountInfo is the basic account record exchanged with the state handle.
type AccountInfo struct {
	Balance  *uint256.Int
	Nonce    uint64
	CodeHash common.Hash
}

// Copy returns a deep copy of the account info.
func (a *AccountInfo) Copy() *AccountInfo {
	cpy := *a
	if a.Balance != nil {
		cpy.Balance = new(uint256.Int).Set(a.Balance)
	}
	return &cpy
}

// AccountChange records the post-execution image of a touched account along
// with its dirtied storage slots.
type AccountChange struct {
	Account AccountInfo
	Code    []byte
	Storage map[common.Hash]common.Hash
}

// StateDiff maps touched accounts to their change records. It is produced by
// the execution backend for every transaction and system call, surfaced to
// observation hooks, and finally committed to the state handle.
type StateDiff map[common.Address]*AccountChange

// Retain drops every account from the diff except the given one. System calls
// use it to scrub the synthetic caller and the block beneficiary, which the
// backend marks as touched even though only the target contract's storage is
// meant to change.
func (d StateDiff) Retain(addr common.Address) {
	for a := range d {
		if a != addr {
			delete(d, a)
		}
	}
}

// Copy returns a deep copy of the diff.
func (d StateDiff) Copy() StateDiff {
	cpy := make(StateDiff, len(d))
	for addr, change := range d {
		c := &AccountChange{Account: *change.Account.Copy(), Code: change.Code}
		if change.Storage != nil {
			c.Storage = make(map[common.Hash]common.Hash, len(change.Storage))
			for k, v := range change.Storage {
				c.Storage[k] = v
			}
		}
		cpy[addr] = c
	}
	return cpy
}

// ExecutionStatus classifies how a transaction or system call ended.
type ExecutionStatus byte

const (
	// ExecutionSuccess means the call ran to completion.
	ExecutionSuccess ExecutionStatus = iota
	// ExecutionRevert means the call reverted, returning its revert output.
	ExecutionRevert
	// ExecutionHalt means the call was halted by the interpreter (out of
	// gas, invalid opcode, ...) without producing output.
	ExecutionHalt
)

// String implements fmt.Stringer.
func (s ExecutionStatus) String() string {
	switch s {
	case ExecutionSuccess:
		return "success"
	case ExecutionRevert:
		return "revert"
	case ExecutionHalt:
		return "halt"
	}
	return "unknown"
}

// ExecutionOutcome is the result of executing a single transaction or system
// call against the backend. The state diff has not been committed yet when
// the outcome is returned; committing is the caller's decision.
type ExecutionOutcome struct {
	Status          ExecutionStatus
	GasUsed         uint64
	Output          []byte
	Logs            []*types.Log
	ContractAddress *common.Address
	State           StateDiff
}

// Succeeded reports whether the execution ran to completion.
func (o *ExecutionOutcome) Succeeded() bool {
	return o.Status == ExecutionSuccess
}

// StateReader is the read-only view of world state handed to stateful
// precompiles and the balance-increment calculator.
type StateReader interface {
	// Account loads the current account record for addr. Implementations
	// return a zero-valued record for non-existent accounts and an error
	// only when the account cannot be loaded at all.
	Account(addr common.Address) (*AccountInfo, error)
}

// StateDB is the mutable world-state handle owned by the execution backend
// for the duration of one block.
type StateDB interface {
	StateReader

	// SetStateClearFlag toggles EIP-161 empty-account clearing for commits.
	SetStateClearFlag(clear bool)

	// IncrementBalances adds each increment to the corresponding account
	// balance. Zero-valued increments are ignored.
	IncrementBalances(increments map[common.Address]*uint256.Int) error

	// DrainBalances zeroes the balances of the given accounts and returns
	// the drained total.
	DrainBalances(addrs []common.Address) (*uint256.Int, error)

	// Commit applies a state diff produced by the backend.
	Commit(diff StateDiff)
}

// Backend abstracts the bytecode-execution engine the block executor drives.
// Implementations own the interpreter, gas metering and intrinsic transaction
// validation; this module only sequences calls into it.
type Backend interface {
	// BlockEnv returns the environment of the block being executed. The
	// returned pointer stays valid (and stable) for the block's duration.
	BlockEnv() *BlockEnv

	// Execute runs a transaction against the current state and returns its
	// outcome without committing the state diff. Errors are classified via
	// IsInvalidTx: invalid-transaction errors are caused by the transaction
	// itself, anything else flags backend misconfiguration or I/O failure.
	Execute(tx *types.Transaction) (*ExecutionOutcome, error)

	// ExecuteSystemCall runs a protocol system call from the given caller to
	// the given contract. Implementations must bypass nonce and gas-price
	// checks and run under WithSystemCallEnv so the call is exempt from the
	// block gas limit and base fee.
	ExecuteSystemCall(caller, contract common.Address, data []byte) (*ExecutionOutcome, error)

	// StateDB returns the mutable state handle for the current block.
	StateDB() StateDB
}

// WithSystemCallEnv runs fn with the block environment adjusted for a
// protocol system call: the gas limit is raised to SystemCallGasLimit and the
// base fee is forced to zero. The previous values are restored on every exit
// path, including panics and errors.
func WithSystemCallEnv(env *BlockEnv, fn func() (*ExecutionOutcome, error)) (*ExecutionOutcome, error) {
	prevGasLimit, prevBaseFee := env.GasLimit, env.BaseFee
	env.GasLimit, env.BaseFee = SystemCallGasLimit, new(big.Int)
	defer func() {
		env.GasLimit, env.BaseFee = prevGasLimit, prevBaseFee
	}()
	return fn()
}
