package core

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/params"

	"github.com/will-2012/wrapper-evm/core/vm"
)

// SystemCaller sequences the protocol-mandated system calls around the
// execution backend. Every call is gated by its hardfork activation rule and
// is safe to invoke when the fork is inactive (it becomes a no-op). System
// calls do not count against the block gas limit, ignore the sender's nonce
// and run with a zero base fee; the backend's ExecuteSystemCall carries that
// obligation (see vm.WithSystemCallEnv).
type SystemCaller struct {
	config *params.ChainConfig
	hook   OnStateHook
}

// NewSystemCaller creates a system caller for the given hardfork rules.
func NewSystemCaller(config *params.ChainConfig) *SystemCaller {
	return &SystemCaller{config: config}
}

// SetStateHook installs (or clears, with nil) the observation hook.
func (s *SystemCaller) SetStateHook(hook OnStateHook) {
	s.hook = hook
}

// OnState forwards a state diff to the observation hook, if one is installed.
func (s *SystemCaller) OnState(source StateChangeSource, state vm.StateDiff) {
	if s.hook != nil {
		s.hook(source, state)
	}
}

// TryOnStateWith lazily computes a state diff and forwards it to the
// observation hook. The closure only runs when a hook is installed; a closure
// failure is propagated as a block-execution error.
func (s *SystemCaller) TryOnStateWith(fn func() (StateChangeSource, vm.StateDiff, error)) error {
	if s.hook == nil {
		return nil
	}
	source, state, err := fn()
	if err != nil {
		return err
	}
	s.hook(source, state)
	return nil
}

// ApplyBlockhashesContractCall performs the EIP-2935 pre-block system call
// recording the parent block hash in the history storage contract. A no-op
// before the fork activates and at the genesis block, which has no parent.
func (s *SystemCaller) ApplyBlockhashesContractCall(parentHash common.Hash, backend vm.Backend) error {
	env := backend.BlockEnv()
	if !s.config.IsPrague(new(big.Int).SetUint64(env.Number), env.Timestamp) {
		return nil
	}
	if env.Number == 0 {
		return nil
	}
	source := StateChangeSource{Kind: StateChangePreBlockHashes}
	res, err := s.transactAndCommit(source, backend, params.HistoryStorageAddress, parentHash.Bytes())
	if err != nil {
		return &SystemCallError{Contract: params.HistoryStorageAddress, Detail: err.Error()}
	}
	if !res.Succeeded() {
		return &SystemCallError{Contract: params.HistoryStorageAddress, Detail: outcomeDetail(res)}
	}
	return nil
}

// ApplyBeaconRootContractCall performs the EIP-4788 pre-block system call
// storing the parent beacon block root. A no-op before the fork activates.
// At genesis the parent root must be the zero hash and no call is made.
func (s *SystemCaller) ApplyBeaconRootContractCall(parentBeaconRoot *common.Hash, backend vm.Backend) error {
	env := backend.BlockEnv()
	if !s.config.IsCancun(new(big.Int).SetUint64(env.Number), env.Timestamp) {
		return nil
	}
	if parentBeaconRoot == nil {
		return ErrMissingParentBeaconRoot
	}
	if env.Number == 0 {
		if *parentBeaconRoot != (common.Hash{}) {
			return &GenesisBeaconRootError{Root: *parentBeaconRoot}
		}
		return nil
	}
	source := StateChangeSource{Kind: StateChangePreBeaconRoot}
	res, err := s.transactAndCommit(source, backend, params.BeaconRootsAddress, parentBeaconRoot.Bytes())
	if err != nil {
		return &SystemCallError{
			Contract: params.BeaconRootsAddress,
			Detail:   fmt.Sprintf("parent beacon block root %s: %v", parentBeaconRoot, err),
		}
	}
	if !res.Succeeded() {
		return &SystemCallError{
			Contract: params.BeaconRootsAddress,
			Detail:   fmt.Sprintf("parent beacon block root %s: %s", parentBeaconRoot, outcomeDetail(res)),
		}
	}
	return nil
}

// ApplyWithdrawalRequestsContractCall performs the post-block EIP-7002 system
// call and returns the raw withdrawal-request payload emitted by the
// contract. A no-op (nil payload) before the fork activates. A revert or halt
// is a fatal validation error: the call is protocol-mandated once active.
func (s *SystemCaller) ApplyWithdrawalRequestsContractCall(backend vm.Backend) ([]byte, error) {
	source := StateChangeSource{Kind: StateChangePostWithdrawalRequests}
	return s.applyRequestsContractCall(source, backend, params.WithdrawalQueueAddress)
}

// ApplyPreWithdrawalRequestsContractCall performs the EIP-7002 system call at
// the start of the block, for chains that front-load request processing
// instead of running it after the transaction loop. The state diff is tagged
// with the pre-block provenance; semantics otherwise match
// ApplyWithdrawalRequestsContractCall.
func (s *SystemCaller) ApplyPreWithdrawalRequestsContractCall(backend vm.Backend) ([]byte, error) {
	source := StateChangeSource{Kind: StateChangePreWithdrawalRequests}
	return s.applyRequestsContractCall(source, backend, params.WithdrawalQueueAddress)
}

// ApplyConsolidationRequestsContractCall performs the post-block EIP-7251
// system call and returns the raw consolidation-request payload. Semantics
// match ApplyWithdrawalRequestsContractCall.
func (s *SystemCaller) ApplyConsolidationRequestsContractCall(backend vm.Backend) ([]byte, error) {
	source := StateChangeSource{Kind: StateChangePostConsolidationRequests}
	return s.applyRequestsContractCall(source, backend, params.ConsolidationQueueAddress)
}

// ApplyPostExecutionChanges runs whichever post-block system calls are active
// for this block and returns their request payloads tagged by type, in
// ascending type order.
func (s *SystemCaller) ApplyPostExecutionChanges(backend vm.Backend) (Requests, error) {
	var requests Requests

	withdrawalRequests, err := s.ApplyWithdrawalRequestsContractCall(backend)
	if err != nil {
		return nil, err
	}
	requests.Push(WithdrawalRequestType, withdrawalRequests)

	consolidationRequests, err := s.ApplyConsolidationRequestsContractCall(backend)
	if err != nil {
		return nil, err
	}
	requests.Push(ConsolidationRequestType, consolidationRequests)

	return requests, nil
}

func (s *SystemCaller) applyRequestsContractCall(source StateChangeSource, backend vm.Backend, contract common.Address) ([]byte, error) {
	env := backend.BlockEnv()
	if !s.config.IsPrague(new(big.Int).SetUint64(env.Number), env.Timestamp) {
		return nil, nil
	}
	res, err := s.transactAndCommit(source, backend, contract, nil)
	if err != nil {
		return nil, &SystemCallError{Contract: contract, Detail: "execution failed: " + err.Error()}
	}
	if !res.Succeeded() {
		return nil, &SystemCallError{Contract: contract, Detail: outcomeDetail(res)}
	}
	return res.Output, nil
}

// transactAndCommit executes a system call, scrubs the resulting diff to the
// target contract, surfaces it through the observation hook and commits it.
func (s *SystemCaller) transactAndCommit(source StateChangeSource, backend vm.Backend, contract common.Address, data []byte) (*vm.ExecutionOutcome, error) {
	defer func(start time.Time) {
		systemCallTimer.UpdateSince(start)
	}(time.Now())

	res, err := backend.ExecuteSystemCall(params.SystemAddress, contract, data)
	if err != nil {
		return nil, err
	}
	// The backend marks the synthetic caller and the block beneficiary as
	// touched; only the contract's own changes belong in the changeset.
	res.State.Retain(contract)
	s.OnState(source, res.State)
	backend.StateDB().Commit(res.State)
	log.Trace("Applied system call", "contract", contract, "source", source, "gas", res.GasUsed)
	return res, nil
}

func outcomeDetail(res *vm.ExecutionOutcome) string {
	switch res.Status {
	case vm.ExecutionRevert:
		return fmt.Sprintf("execution reverted: %x", res.Output)
	case vm.ExecutionHalt:
		return "execution halted"
	}
	return "execution failed"
}
