package core

import (
	"github.com/ethereum/go-ethereum/metrics"
)

var (
	blockTxsMeter       = metrics.NewRegisteredMeter("executor/block/txs", nil)
	blockGasUsedMeter   = metrics.NewRegisteredMeter("executor/block/gasused", nil)
	txSkippedMeter      = metrics.NewRegisteredMeter("executor/txs/skipped", nil)
	systemCallTimer     = metrics.NewRegisteredTimer("executor/systemcall/duration", nil)
	blockExecutionTimer = metrics.NewRegisteredTimer("executor/block/duration", nil)
)
