package compiler

import (
	"encoding/binary"
	"math"

	"github.com/VictoriaMetrics/fastcache"

	"github.com/quillrt/quill/internal/bytecode"
	"github.com/quillrt/quill/internal/value"
)

// constPool deduplicates constant-pool entries across every function
// compiled into one Module. Keys are a type tag byte plus the literal's
// byte encoding; fastcache gives a byte-keyed, byte-valued cache the same
// way it backs go-ethereum's trie-node cache, which is the right shape
// here since the key space (arbitrary literal bytes) isn't a Go-comparable
// type the stdlib map could use directly without an extra encode step
// anyway.
type constPool struct {
	cache   *fastcache.Cache
	module  *bytecode.Module
	strings *value.InternTable
}

func newConstPool(m *bytecode.Module) *constPool {
	return &constPool{
		cache:   fastcache.New(64 * 1024),
		module:  m,
		strings: value.NewInternTable(1024),
	}
}

func (cp *constPool) number(n float64) uint32 {
	key := make([]byte, 9)
	key[0] = 'n'
	binary.LittleEndian.PutUint64(key[1:], math.Float64bits(n))
	return cp.lookupOrInsert(key, bytecode.Const{Kind: bytecode.ConstNumber, Number: n})
}

func (cp *constPool) str(s string) uint32 {
	key := append([]byte{'s'}, []byte(s)...)
	return cp.lookupOrInsert(key, bytecode.Const{Kind: bytecode.ConstString, Str: cp.strings.Intern(value.NewString(s))})
}

func (cp *constPool) lookupOrInsert(key []byte, c bytecode.Const) uint32 {
	if v, ok := cp.cache.HasGet(nil, key); ok {
		return binary.LittleEndian.Uint32(v)
	}
	idx := cp.module.AddConstant(c)
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, idx)
	cp.cache.Set(key, buf)
	return idx
}
