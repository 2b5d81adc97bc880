package core

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/params"

	"github.com/will-2012/wrapper-evm/core/vm"
)

// ExecutionContext is the per-block input the caller assembles before
// creating an executor. It is read-only to the executor.
type ExecutionContext struct {
	// ParentHash is the hash of the parent block.
	ParentHash common.Hash
	// ParentBeaconRoot is the parent beacon block root, nil when the block
	// carries none.
	ParentBeaconRoot *common.Hash
	// Ommers are the block's uncle headers.
	Ommers []*types.Header
	// Withdrawals is the block's withdrawal list, nil before the
	// withdrawal fork.
	Withdrawals types.Withdrawals
}

// BlockExecutionResult is the immutable outcome of executing one block.
type BlockExecutionResult struct {
	// Receipts holds one receipt per committed transaction, in transaction
	// order.
	Receipts []*types.Receipt
	// Requests holds the block's protocol request payloads grouped by
	// request type.
	Requests Requests
	// GasUsed is the total gas used by the block's transactions.
	GasUsed uint64
}

type executionPhase byte

const (
	phaseCreated executionPhase = iota
	phasePreExecuted
	phaseFinished
)

// BlockExecutor drives one block through pre-execution, the transaction loop
// and post-execution against an execution backend. Each phase runs exactly
// once, in order; Finish consumes the executor.
type BlockExecutor struct {
	config *params.ChainConfig
	ctx    ExecutionContext

	backend        vm.Backend
	systemCaller   *SystemCaller
	receiptBuilder ReceiptBuilder

	receipts []*types.Receipt
	gasUsed  uint64
	phase    executionPhase
}

// NewBlockExecutor creates an executor for a single block. A nil
// receiptBuilder defaults to EthReceiptBuilder.
func NewBlockExecutor(backend vm.Backend, ctx ExecutionContext, config *params.ChainConfig, receiptBuilder ReceiptBuilder) *BlockExecutor {
	if receiptBuilder == nil {
		receiptBuilder = EthReceiptBuilder{}
	}
	return &BlockExecutor{
		config:         config,
		ctx:            ctx,
		backend:        backend,
		systemCaller:   NewSystemCaller(config),
		receiptBuilder: receiptBuilder,
	}
}

// SetStateHook installs (or clears, with nil) the observation hook invoked
// with every state change during execution.
func (e *BlockExecutor) SetStateHook(hook OnStateHook) {
	e.systemCaller.SetStateHook(hook)
}

// Backend exposes the underlying execution backend.
func (e *BlockExecutor) Backend() vm.Backend {
	return e.backend
}

// ApplyPreExecutionChanges configures state clearing for the active hardfork
// and performs the pre-block system calls. Any system-call failure is fatal
// to the block.
func (e *BlockExecutor) ApplyPreExecutionChanges() error {
	switch e.phase {
	case phasePreExecuted:
		return ErrPreExecutionApplied
	case phaseFinished:
		return ErrExecutorFinished
	}
	env := e.backend.BlockEnv()

	// Empty-account clearing applies from the Spurious Dragon fork on.
	e.backend.StateDB().SetStateClearFlag(e.config.IsEIP158(new(big.Int).SetUint64(env.Number)))

	if err := e.systemCaller.ApplyBlockhashesContractCall(e.ctx.ParentHash, e.backend); err != nil {
		return err
	}
	if err := e.systemCaller.ApplyBeaconRootContractCall(e.ctx.ParentBeaconRoot, e.backend); err != nil {
		return err
	}
	e.phase = phasePreExecuted
	return nil
}

// ExecuteTransaction executes a single transaction, commits its state diff
// and returns the gas it used.
func (e *BlockExecutor) ExecuteTransaction(tx *types.Transaction) (uint64, error) {
	return e.ExecuteTransactionWithResult(tx, nil)
}

// ExecuteTransactionWithResult executes a single transaction like
// ExecuteTransaction and additionally invokes inspect with the raw execution
// outcome before the receipt is built.
func (e *BlockExecutor) ExecuteTransactionWithResult(tx *types.Transaction, inspect func(*vm.ExecutionOutcome)) (uint64, error) {
	gasUsed, _, err := e.executeTransaction(tx, func(res *vm.ExecutionOutcome) bool {
		if inspect != nil {
			inspect(res)
		}
		return true
	})
	return gasUsed, err
}

// ExecuteTransactionWithCommitCondition executes a single transaction and
// lets decide choose whether its outcome is committed. On skip, no receipt is
// produced, no gas is accounted and the state diff is discarded; the returned
// flag reports whether the transaction was committed.
func (e *BlockExecutor) ExecuteTransactionWithCommitCondition(tx *types.Transaction, decide func(*vm.ExecutionOutcome) bool) (uint64, bool, error) {
	return e.executeTransaction(tx, decide)
}

func (e *BlockExecutor) executeTransaction(tx *types.Transaction, decide func(*vm.ExecutionOutcome) bool) (uint64, bool, error) {
	switch e.phase {
	case phaseCreated:
		return 0, false, ErrPreExecutionNotApplied
	case phaseFinished:
		return 0, false, ErrExecutorFinished
	}

	// The sum of the transaction's gas limit and the gas used so far must
	// not exceed the block's gas limit. The backend is never invoked for an
	// over-limit transaction.
	env := e.backend.BlockEnv()
	availableGas := env.GasLimit - e.gasUsed
	if tx.Gas() > availableGas {
		return 0, false, &GasLimitError{TxGasLimit: tx.Gas(), AvailableGas: availableGas}
	}

	res, err := e.backend.Execute(tx)
	if err != nil {
		// Fatal either way: an invalid transaction invalidates the block,
		// the state transition has no skip-and-continue semantics.
		return 0, false, fmt.Errorf("could not apply tx %d [%v]: %w", len(e.receipts), tx.Hash(), err)
	}

	// The hook index is the count of receipts appended so far, so skipped
	// transactions do not advance it.
	e.systemCaller.OnState(TransactionSource(len(e.receipts)), res.State)

	if !decide(res) {
		txSkippedMeter.Mark(1)
		log.Trace("Skipped transaction by commit condition", "tx", tx.Hash())
		return 0, false, nil
	}

	e.gasUsed += res.GasUsed
	e.receipts = append(e.receipts, e.receiptBuilder.BuildReceipt(&ReceiptBuilderCtx{
		Tx:                tx,
		Backend:           e.backend,
		Result:            res,
		State:             res.State,
		CumulativeGasUsed: e.gasUsed,
	}))
	e.backend.StateDB().Commit(res.State)

	return res.GasUsed, true, nil
}

// Finish applies the post-execution changes and returns the backend together
// with the immutable block execution result. The executor is consumed: any
// further use fails with ErrExecutorFinished.
func (e *BlockExecutor) Finish() (vm.Backend, *BlockExecutionResult, error) {
	switch e.phase {
	case phaseCreated:
		return nil, nil, ErrPreExecutionNotApplied
	case phaseFinished:
		return nil, nil, ErrExecutorFinished
	}
	env := e.backend.BlockEnv()
	number := new(big.Int).SetUint64(env.Number)

	var requests Requests
	if e.config.IsPrague(number, env.Timestamp) {
		deposits, err := ParseDepositRequests(e.config, e.receipts)
		if err != nil {
			return nil, nil, err
		}
		requests.Push(DepositRequestType, deposits)

		systemRequests, err := e.systemCaller.ApplyPostExecutionChanges(e.backend)
		if err != nil {
			return nil, nil, err
		}
		requests = append(requests, systemRequests...)
	}

	increments := PostBlockBalanceIncrements(e.config, env, e.ctx.Ommers, e.ctx.Withdrawals)

	// Irregular state change at the DAO hardfork block.
	if e.config.DAOForkSupport && e.config.DAOForkBlock != nil && e.config.DAOForkBlock.Cmp(number) == 0 {
		if err := applyDAOHardFork(e.backend.StateDB(), increments); err != nil {
			return nil, nil, err
		}
	}

	if err := e.backend.StateDB().IncrementBalances(increments); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrIncrementBalanceFailed, err)
	}

	if err := e.systemCaller.TryOnStateWith(func() (StateChangeSource, vm.StateDiff, error) {
		state, err := BalanceIncrementState(increments, e.backend.StateDB())
		return StateChangeSource{Kind: StateChangePostBalanceIncrements}, state, err
	}); err != nil {
		return nil, nil, err
	}

	e.phase = phaseFinished
	blockTxsMeter.Mark(int64(len(e.receipts)))
	blockGasUsedMeter.Mark(int64(e.gasUsed))
	log.Debug("Finished block execution", "number", env.Number, "txs", len(e.receipts), "gasUsed", e.gasUsed, "requests", len(requests))

	return e.backend, &BlockExecutionResult{
		Receipts: e.receipts,
		Requests: requests,
		GasUsed:  e.gasUsed,
	}, nil
}

// ExecuteBlock drives all three phases in one call: pre-execution, the
// transaction loop over txs in order, and post-execution.
func (e *BlockExecutor) ExecuteBlock(txs []*types.Transaction) (*BlockExecutionResult, error) {
	defer func(start time.Time) {
		blockExecutionTimer.UpdateSince(start)
	}(time.Now())

	if err := e.ApplyPreExecutionChanges(); err != nil {
		return nil, err
	}
	for _, tx := range txs {
		if _, err := e.ExecuteTransaction(tx); err != nil {
			return nil, err
		}
	}
	_, result, err := e.Finish()
	return result, err
}
