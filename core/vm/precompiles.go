package vm

import (
	"bytes"
	"errors"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	gethvm "github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
)

// PrecompileInput bundles the arguments of a single precompile invocation.
type PrecompileInput struct {
	Input  []byte
	Gas    uint64
	Caller common.Address
	Value  *uint256.Int
	State  StateReader
}

// PrecompileResult is the successful outcome of a precompile invocation.
// Reverted marks precompiles that consumed gas but want the surrounding call
// frame to observe a revert with the given output.
type PrecompileResult struct {
	Output   []byte
	GasUsed  uint64
	Reverted bool
}

// Precompile is a contract implemented in host code rather than bytecode.
//
// Run returns a result, or an error that is either recoverable (ErrOutOfGas
// and ordinary failures, surfaced to the calling contract as a failed call)
// or fatal (see FatalError, aborts the whole transaction).
//
// Pure precompiles derive their output from the input alone and may be
// result-cached by address and input; stateful ones must be re-invoked on
// every call.
type Precompile interface {
	Run(in PrecompileInput) (*PrecompileResult, error)
	Pure() bool
}

// PrecompileFunc adapts a function to a pure Precompile.
type PrecompileFunc func(in PrecompileInput) (*PrecompileResult, error)

// Run implements Precompile.
func (f PrecompileFunc) Run(in PrecompileInput) (*PrecompileResult, error) { return f(in) }

// Pure implements Precompile. Function precompiles are assumed pure; wrap
// with NewStatefulPrecompile when the output depends on mutable state.
func (f PrecompileFunc) Pure() bool { return true }

type statefulPrecompile struct {
	fn PrecompileFunc
}

func (p statefulPrecompile) Run(in PrecompileInput) (*PrecompileResult, error) { return p.fn(in) }
func (p statefulPrecompile) Pure() bool                                        { return false }

// NewStatefulPrecompile wraps fn into a precompile whose results must never
// be cached.
func NewStatefulPrecompile(fn PrecompileFunc) Precompile {
	return statefulPrecompile{fn: fn}
}

// builtinPrecompile adapts a go-ethereum builtin contract. All builtin
// contracts are pure: their gas cost and output depend only on the input.
type builtinPrecompile struct {
	contract gethvm.PrecompiledContract
}

func (p builtinPrecompile) Pure() bool { return true }

func (p builtinPrecompile) Run(in PrecompileInput) (*PrecompileResult, error) {
	gasCost := p.contract.RequiredGas(in.Input)
	if gasCost > in.Gas {
		return nil, ErrOutOfGas
	}
	output, err := p.contract.Run(in.Input)
	if err != nil {
		return nil, err
	}
	return &PrecompileResult{Output: output, GasUsed: gasCost}, nil
}

// builtinTable is the read-only, fork-indexed precompile table shared across
// every block of the same fork. Tables are built once at package init; a
// registry backed by a builtin table performs no allocation until mutated.
type builtinTable struct {
	contracts map[common.Address]Precompile
	addresses []common.Address // sorted, never mutated
}

func newBuiltinTable(contracts map[common.Address]gethvm.PrecompiledContract) *builtinTable {
	t := &builtinTable{
		contracts: make(map[common.Address]Precompile, len(contracts)),
		addresses: make([]common.Address, 0, len(contracts)),
	}
	for addr, contract := range contracts {
		t.contracts[addr] = builtinPrecompile{contract: contract}
		t.addresses = append(t.addresses, addr)
	}
	sort.Slice(t.addresses, func(i, j int) bool {
		return bytes.Compare(t.addresses[i][:], t.addresses[j][:]) < 0
	})
	return t
}

var (
	builtinHomestead = newBuiltinTable(gethvm.PrecompiledContractsHomestead)
	builtinByzantium = newBuiltinTable(gethvm.PrecompiledContractsByzantium)
	builtinIstanbul  = newBuiltinTable(gethvm.PrecompiledContractsIstanbul)
	builtinBerlin    = newBuiltinTable(gethvm.PrecompiledContractsBerlin)
	builtinCancun    = newBuiltinTable(gethvm.PrecompiledContractsCancun)
	builtinPrague    = newBuiltinTable(gethvm.PrecompiledContractsPrague)
)

// builtinPrecompiles returns the shared builtin table for the given rules.
func builtinPrecompiles(rules params.Rules) *builtinTable {
	switch {
	case rules.IsPrague:
		return builtinPrague
	case rules.IsCancun:
		return builtinCancun
	case rules.IsBerlin:
		return builtinBerlin
	case rules.IsIstanbul:
		return builtinIstanbul
	case rules.IsByzantium:
		return builtinByzantium
	default:
		return builtinHomestead
	}
}

// FallbackResolver answers precompile lookups that neither the builtin nor
// the dynamic table satisfied. Precompiles resolved this way are treated as
// not previously warmed for gas-cost purposes.
type FallbackResolver interface {
	ResolvePrecompile(addr common.Address) (Precompile, bool)
}

// FallbackFunc adapts a function to a FallbackResolver.
type FallbackFunc func(addr common.Address) (Precompile, bool)

// ResolvePrecompile implements FallbackResolver.
func (f FallbackFunc) ResolvePrecompile(addr common.Address) (Precompile, bool) { return f(addr) }

// Registry resolves calls to reserved addresses into host-code contracts.
//
// A registry starts out backed by a read-only builtin table shared across
// blocks of the same fork. The first mutation converts it, once and for the
// registry's lifetime, into a dynamic representation that supports runtime
// modification (tracing and test tooling). Exactly one representation is
// active at any time.
type Registry struct {
	builtin    *builtinTable // active until the first mutation, then nil
	dynamic    map[common.Address]Precompile
	registered mapset.Set[common.Address]
	order      []common.Address // dynamic iteration order, stable absent mutation
	fallback   FallbackResolver
}

// NewRegistry returns a registry backed by the builtin table active under the
// given chain rules. No allocation beyond the registry header occurs until a
// mutation is requested.
func NewRegistry(rules params.Rules) *Registry {
	return &Registry{builtin: builtinPrecompiles(rules)}
}

// NewEmptyRegistry returns a dynamic registry with no precompiles. Intended
// for tests and custom chains.
func NewEmptyRegistry() *Registry {
	r := &Registry{builtin: &builtinTable{contracts: map[common.Address]Precompile{}}}
	r.EnsureDynamic()
	return r
}

// EnsureDynamic converts the registry to its dynamic representation. The
// conversion is one-way and preserves the behaviour of every builtin
// precompile; calling it on an already-dynamic registry is a no-op.
func (r *Registry) EnsureDynamic() {
	if r.builtin == nil {
		return
	}
	r.dynamic = make(map[common.Address]Precompile, len(r.builtin.contracts))
	r.registered = mapset.NewThreadUnsafeSet[common.Address]()
	r.order = make([]common.Address, len(r.builtin.addresses))
	copy(r.order, r.builtin.addresses)
	for addr, p := range r.builtin.contracts {
		r.dynamic[addr] = p
		r.registered.Add(addr)
	}
	r.builtin = nil
}

// Lookup resolves addr to a precompile. The second return value reports
// whether the address counts as warm: table-resolved precompiles are warm,
// fallback-resolved ones are not. A nil precompile means no match.
func (r *Registry) Lookup(addr common.Address) (Precompile, bool) {
	if r.builtin != nil {
		if p, ok := r.builtin.contracts[addr]; ok {
			return p, true
		}
	} else if p, ok := r.dynamic[addr]; ok {
		return p, true
	}
	if r.fallback != nil {
		if p, ok := r.fallback.ResolvePrecompile(addr); ok {
			return p, false
		}
	}
	return nil, false
}

// Get returns the precompile registered for addr, or nil.
func (r *Registry) Get(addr common.Address) Precompile {
	p, _ := r.Lookup(addr)
	return p
}

// Contains reports whether addr resolves to a precompile.
func (r *Registry) Contains(addr common.Address) bool {
	return r.Get(addr) != nil
}

// Addresses returns the registered precompile addresses. The order is
// unspecified but stable between successive calls absent mutation. The
// returned slice must not be modified. Fallback-resolvable addresses are not
// included.
func (r *Registry) Addresses() []common.Address {
	if r.builtin != nil {
		return r.builtin.addresses
	}
	return r.order
}

// WarmAddresses returns the addresses to pre-warm in the access list, which
// are exactly the table-registered ones.
func (r *Registry) WarmAddresses() []common.Address {
	return r.Addresses()
}

// Set registers p at addr, replacing any existing precompile. Forces the
// dynamic representation.
func (r *Registry) Set(addr common.Address, p Precompile) {
	r.EnsureDynamic()
	if !r.registered.Contains(addr) {
		r.registered.Add(addr)
		r.order = append(r.order, addr)
	}
	r.dynamic[addr] = p
}

// Remove unregisters the precompile at addr. Forces the dynamic
// representation.
func (r *Registry) Remove(addr common.Address) {
	r.EnsureDynamic()
	if !r.registered.Contains(addr) {
		return
	}
	r.registered.Remove(addr)
	delete(r.dynamic, addr)
	for i, a := range r.order {
		if a == addr {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Transform replaces the precompile at addr with f applied to it. A no-op if
// addr is not registered. Forces the dynamic representation.
func (r *Registry) Transform(addr common.Address, f func(Precompile) Precompile) {
	r.EnsureDynamic()
	if p, ok := r.dynamic[addr]; ok {
		r.dynamic[addr] = f(p)
	}
}

// TransformAll replaces every registered precompile with f applied to it.
// Forces the dynamic representation.
func (r *Registry) TransformAll(f func(addr common.Address, p Precompile) Precompile) {
	r.EnsureDynamic()
	for addr, p := range r.dynamic {
		r.dynamic[addr] = f(addr, p)
	}
}

// SetFallback installs the resolver consulted for addresses absent from the
// active table. Forces the dynamic representation.
func (r *Registry) SetFallback(resolver FallbackResolver) {
	r.EnsureDynamic()
	r.fallback = resolver
}

// CallStatus classifies the outcome of a dispatched precompile call.
type CallStatus byte

const (
	// CallReturn means the precompile ran successfully.
	CallReturn CallStatus = iota
	// CallRevert means the precompile reverted with output.
	CallRevert
	// CallFailure means the precompile failed recoverably; the surrounding
	// call frame continues per normal call semantics.
	CallFailure
	// CallOutOfGas means the recoverable failure was an out-of-gas
	// condition, which callers refund differently from other failures.
	CallOutOfGas
)

// CallOutcome is the interpreter-level result of dispatching a call to a
// reserved address through the registry.
type CallOutcome struct {
	Status  CallStatus
	Output  []byte
	GasUsed uint64
}

// Run dispatches a call targeting addr. It returns (nil, nil) when no
// precompile is registered at addr, letting the backend fall through to
// regular contract-call semantics. Fatal precompile errors are propagated
// and must abort the enclosing transaction; recoverable errors consume the
// call's gas and are reported through the outcome status.
func (r *Registry) Run(addr common.Address, in PrecompileInput) (*CallOutcome, error) {
	p := r.Get(addr)
	if p == nil {
		return nil, nil
	}
	res, err := p.Run(in)
	if err != nil {
		if IsFatal(err) {
			return nil, err
		}
		status := CallFailure
		if errors.Is(err, ErrOutOfGas) {
			status = CallOutOfGas
		}
		return &CallOutcome{Status: status, GasUsed: in.Gas}, nil
	}
	if res.GasUsed > in.Gas {
		// A successful precompile can never have consumed more than the
		// call's gas limit; this is a host-code bug, not a runtime error.
		panic("gas underflow after successful precompile call")
	}
	status := CallReturn
	if res.Reverted {
		status = CallRevert
	}
	return &CallOutcome{Status: status, Output: res.Output, GasUsed: res.GasUsed}, nil
}
