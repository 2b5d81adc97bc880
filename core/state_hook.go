package core

import (
	"fmt"

	"github.com/will-2012/wrapper-evm/core/vm"
)

// StateChangeKind enumerates what produced a state change surfaced through
// the observation hook.
type StateChangeKind byte

const (
	// StateChangeTransaction is a change produced by a block transaction;
	// the source carries the receipt index it was tagged with.
	StateChangeTransaction StateChangeKind = iota
	// StateChangePreBlockHashes is the EIP-2935 blockhashes contract call.
	StateChangePreBlockHashes
	// StateChangePreBeaconRoot is the EIP-4788 beacon root contract call.
	StateChangePreBeaconRoot
	// StateChangePreWithdrawalRequests is a pre-block EIP-7002 withdrawal
	// requests contract call (used by chains that front-load the call).
	StateChangePreWithdrawalRequests
	// StateChangePostBalanceIncrements covers block rewards, withdrawals and
	// irregular state transitions applied after the transaction loop.
	StateChangePostBalanceIncrements
	// StateChangePostWithdrawalRequests is the post-block EIP-7002 call.
	StateChangePostWithdrawalRequests
	// StateChangePostConsolidationRequests is the post-block EIP-7251 call.
	StateChangePostConsolidationRequests
)

// StateChangeSource is the provenance tag attached to every state diff
// surfaced through the observation hook. It only lives for the duration of
// the hook call.
type StateChangeSource struct {
	Kind StateChangeKind
	// TxIndex is the receipt index for StateChangeTransaction sources and
	// zero otherwise.
	TxIndex int
}

// TransactionSource tags a diff as produced by the transaction at the given
// receipt index.
func TransactionSource(index int) StateChangeSource {
	return StateChangeSource{Kind: StateChangeTransaction, TxIndex: index}
}

// String implements fmt.Stringer.
func (s StateChangeSource) String() string {
	switch s.Kind {
	case StateChangeTransaction:
		return fmt.Sprintf("transaction(%d)", s.TxIndex)
	case StateChangePreBlockHashes:
		return "pre-block blockhashes contract"
	case StateChangePreBeaconRoot:
		return "pre-block beacon root contract"
	case StateChangePreWithdrawalRequests:
		return "pre-block withdrawal requests contract"
	case StateChangePostBalanceIncrements:
		return "post-block balance increments"
	case StateChangePostWithdrawalRequests:
		return "post-block withdrawal requests contract"
	case StateChangePostConsolidationRequests:
		return "post-block consolidation requests contract"
	}
	return "unknown"
}

// OnStateHook observes every state change during block execution, tagged with
// its source. The hook is invoked synchronously, before the change is
// committed, and must treat the diff as read-only.
type OnStateHook func(source StateChangeSource, state vm.StateDiff)
