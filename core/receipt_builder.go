package core

import (
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/will-2012/wrapper-evm/core/vm"
)

// ReceiptBuilderCtx carries everything available when a committed
// transaction's receipt is derived.
type ReceiptBuilderCtx struct {
	Tx                *types.Transaction
	Backend           vm.Backend
	Result            *vm.ExecutionOutcome
	State             vm.StateDiff
	CumulativeGasUsed uint64
}

// ReceiptBuilder is the pluggable receipt-construction strategy. Receipts are
// chain-specific; the executor never inspects them beyond appending to the
// block result.
type ReceiptBuilder interface {
	BuildReceipt(ctx *ReceiptBuilderCtx) *types.Receipt
}

// EthReceiptBuilder derives standard Ethereum receipts.
type EthReceiptBuilder struct{}

// BuildReceipt implements ReceiptBuilder.
func (EthReceiptBuilder) BuildReceipt(ctx *ReceiptBuilderCtx) *types.Receipt {
	receipt := &types.Receipt{
		Type:              ctx.Tx.Type(),
		CumulativeGasUsed: ctx.CumulativeGasUsed,
	}
	if ctx.Result.Succeeded() {
		receipt.Status = types.ReceiptStatusSuccessful
	} else {
		receipt.Status = types.ReceiptStatusFailed
	}
	receipt.TxHash = ctx.Tx.Hash()
	receipt.GasUsed = ctx.Result.GasUsed

	if ctx.Result.ContractAddress != nil {
		receipt.ContractAddress = *ctx.Result.ContractAddress
	}

	receipt.Logs = ctx.Result.Logs
	if receipt.Logs == nil {
		receipt.Logs = []*types.Log{}
	}
	receipt.Bloom = types.CreateBloom(receipt)
	return receipt
}
