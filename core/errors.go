package core

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrMissingParentBeaconRoot is returned when the beacon root fork is
	// active but the block carries no parent beacon block root.
	ErrMissingParentBeaconRoot = errors.New("parent beacon block root missing for cancun block")

	// ErrIncrementBalanceFailed is returned when post-block balance
	// increments (rewards, withdrawals, irregular transitions) cannot be
	// applied to the state.
	ErrIncrementBalanceFailed = errors.New("could not apply post-block balance increments")

	// ErrPreExecutionNotApplied is returned when transactions are executed
	// or the block is finished before the pre-execution phase ran.
	ErrPreExecutionNotApplied = errors.New("pre-execution changes not applied")

	// ErrPreExecutionApplied is returned when the pre-execution phase is
	// driven more than once.
	ErrPreExecutionApplied = errors.New("pre-execution changes already applied")

	// ErrExecutorFinished is returned on any use of an executor after
	// Finish.
	ErrExecutorFinished = errors.New("block executor already finished")
)

// GasLimitError is the fatal validation error for a transaction whose gas
// limit exceeds the gas still available in the block.
type GasLimitError struct {
	TxGasLimit   uint64
	AvailableGas uint64
}

// Error implements the error interface.
func (e *GasLimitError) Error() string {
	return fmt.Sprintf("transaction gas limit %d exceeds available block gas %d", e.TxGasLimit, e.AvailableGas)
}

// GenesisBeaconRootError is the fatal validation error for a genesis block
// carrying a nonzero parent beacon block root.
type GenesisBeaconRootError struct {
	Root common.Hash
}

// Error implements the error interface.
func (e *GenesisBeaconRootError) Error() string {
	return fmt.Sprintf("parent beacon block root must be zero at genesis, got %s", e.Root)
}

// SystemCallError is the fatal validation error for a protocol system call
// that failed, reverted or halted. Post-block system calls are
// protocol-mandated and must succeed once their fork is active.
type SystemCallError struct {
	Contract common.Address
	Detail   string
}

// Error implements the error interface.
func (e *SystemCallError) Error() string {
	return fmt.Sprintf("system call to %s failed: %s", e.Contract, e.Detail)
}

// AccountLoadError is returned when an account targeted by a balance
// increment cannot be loaded from state.
type AccountLoadError struct {
	Address common.Address
	Err     error
}

// Error implements the error interface.
func (e *AccountLoadError) Error() string {
	return fmt.Sprintf("could not load account %s: %v", e.Address, e.Err)
}

// Unwrap returns the underlying cause.
func (e *AccountLoadError) Unwrap() error { return e.Err }
