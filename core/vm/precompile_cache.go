package vm

import (
	"encoding/binary"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/metrics"
)

var (
	precompileCacheHitMeter  = metrics.NewRegisteredMeter("precompiles/cache/hits", nil)
	precompileCacheMissMeter = metrics.NewRegisteredMeter("precompiles/cache/misses", nil)
)

// Cache memoizes the results of pure precompiles by (address, input). A pure
// precompile's output and gas cost depend only on its input, so repeated
// calls within a block (or across blocks of the same fork) can be answered
// without re-executing the host code. Stateful precompiles pass through
// untouched.
type Cache struct {
	inner *fastcache.Cache
}

// NewCache creates a precompile result cache bounded to maxBytes.
func NewCache(maxBytes int) *Cache {
	return &Cache{inner: fastcache.New(maxBytes)}
}

// WrapAll installs the cache in front of every pure precompile registered in
// r. This forces r into its dynamic representation.
func (c *Cache) WrapAll(r *Registry) {
	r.TransformAll(c.Wrap)
}

// Wrap returns p memoized under addr, or p itself if it is stateful.
func (c *Cache) Wrap(addr common.Address, p Precompile) Precompile {
	if !p.Pure() {
		return p
	}
	return &cachedPrecompile{addr: addr, inner: p, cache: c.inner}
}

type cachedPrecompile struct {
	addr  common.Address
	inner Precompile
	cache *fastcache.Cache
}

// Pure implements Precompile. The wrapper caches precisely because the inner
// precompile is pure.
func (p *cachedPrecompile) Pure() bool { return true }

func (p *cachedPrecompile) Run(in PrecompileInput) (*PrecompileResult, error) {
	key := crypto.Keccak256(p.addr.Bytes(), in.Input)
	if enc, ok := p.cache.HasGet(nil, key); ok {
		res := decodeCachedResult(enc)
		if res != nil {
			precompileCacheHitMeter.Mark(1)
			// The recorded cost still applies; replay the out-of-gas
			// failure if this call cannot afford it.
			if res.GasUsed > in.Gas {
				return nil, ErrOutOfGas
			}
			return res, nil
		}
	}
	res, err := p.inner.Run(in)
	if err != nil {
		// Failures are not cached: out-of-gas depends on the call's gas
		// limit and other failures should surface the live error.
		return nil, err
	}
	precompileCacheMissMeter.Mark(1)
	p.cache.Set(key, encodeCachedResult(res))
	return res, nil
}

// Cached results are encoded as an 8-byte big-endian gas cost, a revert flag
// byte and the raw output.
func encodeCachedResult(res *PrecompileResult) []byte {
	enc := make([]byte, 9+len(res.Output))
	binary.BigEndian.PutUint64(enc, res.GasUsed)
	if res.Reverted {
		enc[8] = 1
	}
	copy(enc[9:], res.Output)
	return enc
}

func decodeCachedResult(enc []byte) *PrecompileResult {
	if len(enc) < 9 {
		return nil
	}
	res := &PrecompileResult{
		GasUsed:  binary.BigEndian.Uint64(enc),
		Reverted: enc[8] == 1,
	}
	if len(enc) > 9 {
		res.Output = append([]byte(nil), enc[9:]...)
	}
	return res
}
