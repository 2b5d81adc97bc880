package vm

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	"github.com/stretchr/testify/require"
)

var (
	sha256Addr   = common.BytesToAddress([]byte{0x02})
	identityAddr = common.BytesToAddress([]byte{0x04})
	blake2FAddr  = common.BytesToAddress([]byte{0x09})
)

func berlinRules() params.Rules {
	return params.Rules{
		IsHomestead: true, IsEIP150: true, IsEIP155: true, IsEIP158: true,
		IsByzantium: true, IsConstantinople: true, IsPetersburg: true,
		IsIstanbul: true, IsBerlin: true,
	}
}

func TestRegistryBuiltinLookup(t *testing.T) {
	registry := NewRegistry(berlinRules())

	p, warm := registry.Lookup(identityAddr)
	require.NotNil(t, p)
	require.True(t, warm)
	require.True(t, p.Pure())

	// Blake2F only exists from Istanbul on; a Homestead registry must not
	// resolve it.
	homestead := NewRegistry(params.Rules{IsHomestead: true})
	require.Nil(t, homestead.Get(blake2FAddr))
	require.NotNil(t, registry.Get(blake2FAddr))

	require.Nil(t, registry.Get(common.HexToAddress("0xdead")))
	require.False(t, registry.Contains(common.HexToAddress("0xdead")))
}

func TestRegistryAddressesSorted(t *testing.T) {
	registry := NewRegistry(berlinRules())

	addrs := registry.Addresses()
	require.NotEmpty(t, addrs)
	for i := 1; i < len(addrs); i++ {
		require.True(t, bytes.Compare(addrs[i-1][:], addrs[i][:]) < 0, "addresses not sorted at %d", i)
	}
	require.Equal(t, addrs, registry.WarmAddresses())
}

func TestEnsureDynamicPreservesBehaviour(t *testing.T) {
	input := []byte("registry conversion probe")
	in := PrecompileInput{Input: input, Gas: 10_000}

	builtin := NewRegistry(berlinRules())
	wantRes, wantErr := builtin.Get(sha256Addr).Run(in)
	require.NoError(t, wantErr)
	require.Len(t, wantRes.Output, 32)
	wantAddrs := append([]common.Address(nil), builtin.Addresses()...)

	dynamic := NewRegistry(berlinRules())
	dynamic.EnsureDynamic()
	dynamic.EnsureDynamic() // idempotent

	gotRes, gotErr := dynamic.Get(sha256Addr).Run(in)
	require.NoError(t, gotErr)
	require.Equal(t, wantRes, gotRes)
	require.Equal(t, wantAddrs, dynamic.Addresses())
}

func TestRegistrySetAndRemove(t *testing.T) {
	registry := NewRegistry(berlinRules())
	baseline := len(registry.Addresses())

	custom := common.HexToAddress("0x0000000000000000000000000000000000000100")
	registry.Set(custom, PrecompileFunc(func(in PrecompileInput) (*PrecompileResult, error) {
		return &PrecompileResult{Output: []byte{0x01}, GasUsed: 1}, nil
	}))

	require.True(t, registry.Contains(custom))
	addrs := registry.Addresses()
	require.Len(t, addrs, baseline+1)
	// New registrations append; the builtin prefix keeps its order.
	require.Equal(t, custom, addrs[len(addrs)-1])

	// Replacing does not duplicate the address.
	registry.Set(custom, PrecompileFunc(func(in PrecompileInput) (*PrecompileResult, error) {
		return &PrecompileResult{Output: []byte{0x02}, GasUsed: 1}, nil
	}))
	require.Len(t, registry.Addresses(), baseline+1)
	res, err := registry.Get(custom).Run(PrecompileInput{Gas: 10})
	require.NoError(t, err)
	require.Equal(t, []byte{0x02}, res.Output)

	registry.Remove(custom)
	require.False(t, registry.Contains(custom))
	require.Len(t, registry.Addresses(), baseline)

	// Builtins can be removed too once dynamic.
	registry.Remove(identityAddr)
	require.False(t, registry.Contains(identityAddr))
}

func TestRegistryFallbackNotWarm(t *testing.T) {
	registry := NewRegistry(berlinRules())
	fallbackAddr := common.HexToAddress("0x0000000000000000000000000000000000000200")
	registry.SetFallback(FallbackFunc(func(addr common.Address) (Precompile, bool) {
		if addr != fallbackAddr {
			return nil, false
		}
		return PrecompileFunc(func(in PrecompileInput) (*PrecompileResult, error) {
			return &PrecompileResult{GasUsed: 5}, nil
		}), true
	}))

	p, warm := registry.Lookup(fallbackAddr)
	require.NotNil(t, p)
	require.False(t, warm)

	// Table-registered precompiles stay warm; fallback addresses never join
	// the warm set.
	_, warm = registry.Lookup(identityAddr)
	require.True(t, warm)
	require.NotContains(t, registry.WarmAddresses(), fallbackAddr)
}

func TestRegistryTransform(t *testing.T) {
	registry := NewRegistry(berlinRules())

	var wrapped int
	registry.Transform(identityAddr, func(p Precompile) Precompile {
		return PrecompileFunc(func(in PrecompileInput) (*PrecompileResult, error) {
			wrapped++
			return p.Run(in)
		})
	})
	// Transform on an unregistered address is a no-op.
	registry.Transform(common.HexToAddress("0xdead"), func(p Precompile) Precompile {
		t.Fatal("transform callback ran for unregistered address")
		return p
	})

	res, err := registry.Get(identityAddr).Run(PrecompileInput{Input: []byte{0x07}, Gas: 10_000})
	require.NoError(t, err)
	require.Equal(t, []byte{0x07}, res.Output)
	require.Equal(t, 1, wrapped)
}

func TestRunUnregisteredAddress(t *testing.T) {
	registry := NewRegistry(berlinRules())
	outcome, err := registry.Run(common.HexToAddress("0xdead"), PrecompileInput{Gas: 100})
	require.NoError(t, err)
	require.Nil(t, outcome)
}

func TestRunOutcomeTranslation(t *testing.T) {
	registry := NewEmptyRegistry()
	addr := common.HexToAddress("0x0000000000000000000000000000000000000100")

	registry.Set(addr, PrecompileFunc(func(in PrecompileInput) (*PrecompileResult, error) {
		return &PrecompileResult{Output: []byte{0x01}, GasUsed: 7}, nil
	}))
	outcome, err := registry.Run(addr, PrecompileInput{Gas: 100})
	require.NoError(t, err)
	require.Equal(t, CallReturn, outcome.Status)
	require.Equal(t, []byte{0x01}, outcome.Output)
	require.Equal(t, uint64(7), outcome.GasUsed)

	registry.Set(addr, PrecompileFunc(func(in PrecompileInput) (*PrecompileResult, error) {
		return &PrecompileResult{Output: []byte{0xee}, GasUsed: 9, Reverted: true}, nil
	}))
	outcome, err = registry.Run(addr, PrecompileInput{Gas: 100})
	require.NoError(t, err)
	require.Equal(t, CallRevert, outcome.Status)
	require.Equal(t, []byte{0xee}, outcome.Output)

	// Recoverable failures consume the entire call gas.
	registry.Set(addr, PrecompileFunc(func(in PrecompileInput) (*PrecompileResult, error) {
		return nil, errors.New("bad input length")
	}))
	outcome, err = registry.Run(addr, PrecompileInput{Gas: 100})
	require.NoError(t, err)
	require.Equal(t, CallFailure, outcome.Status)
	require.Equal(t, uint64(100), outcome.GasUsed)

	registry.Set(addr, PrecompileFunc(func(in PrecompileInput) (*PrecompileResult, error) {
		return nil, ErrOutOfGas
	}))
	outcome, err = registry.Run(addr, PrecompileInput{Gas: 100})
	require.NoError(t, err)
	require.Equal(t, CallOutOfGas, outcome.Status)
	require.Equal(t, uint64(100), outcome.GasUsed)

	// Fatal errors abort instead of being folded into the outcome.
	registry.Set(addr, PrecompileFunc(func(in PrecompileInput) (*PrecompileResult, error) {
		return nil, Fatal("kzg setup missing")
	}))
	outcome, err = registry.Run(addr, PrecompileInput{Gas: 100})
	require.Nil(t, outcome)
	require.True(t, IsFatal(err))
}

func TestRunBuiltinOutOfGas(t *testing.T) {
	registry := NewRegistry(berlinRules())

	// Identity costs 15 gas base; one gas cannot cover it.
	outcome, err := registry.Run(identityAddr, PrecompileInput{Input: []byte{0x01}, Gas: 1})
	require.NoError(t, err)
	require.Equal(t, CallOutOfGas, outcome.Status)
	require.Equal(t, uint64(1), outcome.GasUsed)
}

func TestStatefulPrecompileNotPure(t *testing.T) {
	p := NewStatefulPrecompile(func(in PrecompileInput) (*PrecompileResult, error) {
		return &PrecompileResult{GasUsed: 1}, nil
	})
	require.False(t, p.Pure())

	fn := PrecompileFunc(func(in PrecompileInput) (*PrecompileResult, error) {
		return &PrecompileResult{GasUsed: 1}, nil
	})
	require.True(t, fn.Pure())
}
