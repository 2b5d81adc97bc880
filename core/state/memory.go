// Package state provides a self-contained, in-memory implementation of the
// mutable world-state handle consumed by the block executor. It backs the
// package tests and gives embedders a state handle that needs no database.
package state

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"

	"github.com/will-2012/wrapper-evm/core/vm"
)

// MemoryStateDB is an address-keyed account map implementing vm.StateDB.
// It is not safe for concurrent use; block execution is strictly sequential.
type MemoryStateDB struct {
	accounts map[common.Address]*vm.AccountInfo
	storage  map[common.Address]map[common.Hash]common.Hash
	code     map[common.Address][]byte

	stateClear bool
}

// NewMemoryStateDB creates an empty in-memory state.
func NewMemoryStateDB() *MemoryStateDB {
	return &MemoryStateDB{
		accounts: make(map[common.Address]*vm.AccountInfo),
		storage:  make(map[common.Address]map[common.Hash]common.Hash),
		code:     make(map[common.Address][]byte),
	}
}

// Account implements vm.StateReader. Non-existent accounts load as
// zero-valued records.
func (s *MemoryStateDB) Account(addr common.Address) (*vm.AccountInfo, error) {
	if info, ok := s.accounts[addr]; ok {
		return info.Copy(), nil
	}
	return &vm.AccountInfo{Balance: new(uint256.Int), CodeHash: types.EmptyCodeHash}, nil
}

// SetAccount installs an account record, replacing any existing one.
func (s *MemoryStateDB) SetAccount(addr common.Address, info *vm.AccountInfo) {
	s.accounts[addr] = info.Copy()
}

// Balance returns the current balance of addr, zero if absent.
func (s *MemoryStateDB) Balance(addr common.Address) *uint256.Int {
	if info, ok := s.accounts[addr]; ok {
		return new(uint256.Int).Set(info.Balance)
	}
	return new(uint256.Int)
}

// Storage returns the current value of the given slot.
func (s *MemoryStateDB) Storage(addr common.Address, slot common.Hash) common.Hash {
	return s.storage[addr][slot]
}

// SetStateClearFlag implements vm.StateDB.
func (s *MemoryStateDB) SetStateClearFlag(clear bool) {
	s.stateClear = clear
}

// IncrementBalances implements vm.StateDB. Zero increments never touch an
// account.
func (s *MemoryStateDB) IncrementBalances(increments map[common.Address]*uint256.Int) error {
	for addr, inc := range increments {
		if inc == nil || inc.IsZero() {
			continue
		}
		info := s.ensure(addr)
		if _, overflow := info.Balance.AddOverflow(info.Balance, inc); overflow {
			return fmt.Errorf("balance overflow incrementing %s", addr)
		}
	}
	return nil
}

// DrainBalances implements vm.StateDB.
func (s *MemoryStateDB) DrainBalances(addrs []common.Address) (*uint256.Int, error) {
	total := new(uint256.Int)
	for _, addr := range addrs {
		info, ok := s.accounts[addr]
		if !ok {
			continue
		}
		total.Add(total, info.Balance)
		info.Balance = new(uint256.Int)
	}
	return total, nil
}

// Commit implements vm.StateDB, applying a diff produced by the execution
// backend. Account records overwrite, storage writes merge, mirroring a
// block-level journal flush.
func (s *MemoryStateDB) Commit(diff vm.StateDiff) {
	for addr, change := range diff {
		if s.stateClear && change.Account.Nonce == 0 && change.Account.Balance.IsZero() &&
			(change.Account.CodeHash == types.EmptyCodeHash || change.Account.CodeHash == common.Hash{}) &&
			len(change.Code) == 0 {
			// Empty account per EIP-161: prune instead of materializing.
			delete(s.accounts, addr)
			delete(s.storage, addr)
			delete(s.code, addr)
			continue
		}
		info := change.Account.Copy()
		if info.CodeHash == (common.Hash{}) {
			info.CodeHash = types.EmptyCodeHash
		}
		s.accounts[addr] = info
		if len(change.Code) > 0 {
			s.code[addr] = append([]byte(nil), change.Code...)
		}
		if len(change.Storage) > 0 {
			slots := s.storage[addr]
			if slots == nil {
				slots = make(map[common.Hash]common.Hash, len(change.Storage))
				s.storage[addr] = slots
			}
			for k, v := range change.Storage {
				slots[k] = v
			}
		}
	}
}

func (s *MemoryStateDB) ensure(addr common.Address) *vm.AccountInfo {
	info, ok := s.accounts[addr]
	if !ok {
		info = &vm.AccountInfo{Balance: new(uint256.Int), CodeHash: types.EmptyCodeHash}
		s.accounts[addr] = info
	}
	return info
}
