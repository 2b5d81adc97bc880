package core

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"

	"github.com/will-2012/wrapper-evm/core/state"
	"github.com/will-2012/wrapper-evm/core/vm"
)

// recordedSystemCall captures one ExecuteSystemCall invocation together with
// the block environment the call observed.
type recordedSystemCall struct {
	caller   common.Address
	contract common.Address
	data     []byte
	gasLimit uint64
	baseFee  *big.Int
}

// mockBackend is a scripted vm.Backend. Transaction outcomes are consumed
// from a queue in call order; system-call outcomes are keyed by target
// contract and default to an empty success touching the contract, the
// synthetic caller and the coinbase.
type mockBackend struct {
	t     *testing.T
	env   vm.BlockEnv
	state *state.MemoryStateDB

	txQueue  []func() (*vm.ExecutionOutcome, error)
	executed []*types.Transaction

	systemResults map[common.Address]*vm.ExecutionOutcome
	systemErrs    map[common.Address]error
	systemCalls   []recordedSystemCall
}

func newMockBackend(t *testing.T, env vm.BlockEnv) *mockBackend {
	return &mockBackend{
		t:             t,
		env:           env,
		state:         state.NewMemoryStateDB(),
		systemResults: make(map[common.Address]*vm.ExecutionOutcome),
		systemErrs:    make(map[common.Address]error),
	}
}

func (b *mockBackend) BlockEnv() *vm.BlockEnv { return &b.env }
func (b *mockBackend) StateDB() vm.StateDB    { return b.state }

// queueOutcome schedules the outcome for the next Execute call.
func (b *mockBackend) queueOutcome(res *vm.ExecutionOutcome) {
	if res.State == nil {
		res.State = make(vm.StateDiff)
	}
	b.txQueue = append(b.txQueue, func() (*vm.ExecutionOutcome, error) { return res, nil })
}

// queueError schedules a backend error for the next Execute call.
func (b *mockBackend) queueError(err error) {
	b.txQueue = append(b.txQueue, func() (*vm.ExecutionOutcome, error) { return nil, err })
}

func (b *mockBackend) Execute(tx *types.Transaction) (*vm.ExecutionOutcome, error) {
	if len(b.txQueue) == 0 {
		b.t.Fatalf("unexpected Execute call for tx %s", tx.Hash())
	}
	next := b.txQueue[0]
	b.txQueue = b.txQueue[1:]
	b.executed = append(b.executed, tx)
	return next()
}

// setSystemOutcome scripts the outcome of system calls targeting contract.
func (b *mockBackend) setSystemOutcome(contract common.Address, res *vm.ExecutionOutcome) {
	if res.State == nil {
		res.State = defaultSystemDiff(b.env.Coinbase, contract)
	}
	b.systemResults[contract] = res
}

// setSystemError scripts a backend failure for system calls targeting
// contract.
func (b *mockBackend) setSystemError(contract common.Address, err error) {
	b.systemErrs[contract] = err
}

func (b *mockBackend) ExecuteSystemCall(caller, contract common.Address, data []byte) (*vm.ExecutionOutcome, error) {
	return vm.WithSystemCallEnv(&b.env, func() (*vm.ExecutionOutcome, error) {
		b.systemCalls = append(b.systemCalls, recordedSystemCall{
			caller:   caller,
			contract: contract,
			data:     append([]byte(nil), data...),
			gasLimit: b.env.GasLimit,
			baseFee:  new(big.Int).Set(b.env.BaseFee),
		})
		if err, ok := b.systemErrs[contract]; ok {
			return nil, err
		}
		if res, ok := b.systemResults[contract]; ok {
			out := *res
			out.State = res.State.Copy()
			return &out, nil
		}
		return &vm.ExecutionOutcome{
			Status:  vm.ExecutionSuccess,
			GasUsed: 23000,
			State:   defaultSystemDiff(b.env.Coinbase, contract),
		}, nil
	})
}

// defaultSystemDiff mimics the backend marking the synthetic caller and the
// coinbase as touched alongside the contract's own storage write. The
// contract carries a nonzero nonce so empty-account clearing never prunes it.
func defaultSystemDiff(coinbase, contract common.Address) vm.StateDiff {
	return vm.StateDiff{
		contract: {
			Account: vm.AccountInfo{Balance: new(uint256.Int), Nonce: 1, CodeHash: types.EmptyCodeHash},
			Storage: map[common.Hash]common.Hash{{0x01}: {0x02}},
		},
		params.SystemAddress: {
			Account: vm.AccountInfo{Balance: new(uint256.Int), CodeHash: types.EmptyCodeHash},
		},
		coinbase: {
			Account: vm.AccountInfo{Balance: new(uint256.Int), CodeHash: types.EmptyCodeHash},
		},
	}
}

// newMergedConfig returns a chain config merged from genesis with every fork
// through Prague active. Tests disable individual forks by nulling the
// corresponding field.
func newMergedConfig() *params.ChainConfig {
	zero := uint64(0)
	return &params.ChainConfig{
		ChainID:                 big.NewInt(1337),
		HomesteadBlock:          big.NewInt(0),
		EIP150Block:             big.NewInt(0),
		EIP155Block:             big.NewInt(0),
		EIP158Block:             big.NewInt(0),
		ByzantiumBlock:          big.NewInt(0),
		ConstantinopleBlock:     big.NewInt(0),
		PetersburgBlock:         big.NewInt(0),
		IstanbulBlock:           big.NewInt(0),
		BerlinBlock:             big.NewInt(0),
		LondonBlock:             big.NewInt(0),
		ShanghaiTime:            &zero,
		CancunTime:              &zero,
		PragueTime:              &zero,
		TerminalTotalDifficulty: big.NewInt(0),
		DepositContractAddress:  common.HexToAddress("0x00000000219ab540356cBB839Cbe05303d7705Fa"),
	}
}

// testBlockEnv returns a block environment with sane defaults for a post-merge
// block.
func testBlockEnv(number uint64) vm.BlockEnv {
	return vm.BlockEnv{
		Number:    number,
		Timestamp: 1700000000 + number*12,
		GasLimit:  30_000_000,
		BaseFee:   big.NewInt(1_000_000_000),
		Coinbase:  common.HexToAddress("0xc0ffee0000000000000000000000000000000000"),
	}
}
