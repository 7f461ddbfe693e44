package bytecode

import (
	"math/big"

	"github.com/quillrt/quill/internal/value"
)

// ConstKind discriminates the constant pool's union (spec.md §4.3:
// "strings, numbers, bigints, regex patterns").
type ConstKind uint8

const (
	ConstString ConstKind = iota
	ConstNumber
	ConstBigInt
	ConstRegExp
)

// Const is one constant-pool entry.
type Const struct {
	Kind   ConstKind
	Str    *value.String
	Number float64
	Big    *big.Int
	Regex  string // source pattern; flags encoded inline (e.g. "/foo/gi")
}

// Module is a compiled unit: every Function defined at any nesting depth,
// with index 0 always the top-level script/module body, plus the shared
// constant pool (spec.md §4.3).
type Module struct {
	Functions []*Function
	Constants []Const
	IsModule  bool // ES module vs. classic script
	IsStrict  bool
}

func NewModule() *Module {
	return &Module{}
}

func (m *Module) AddFunction(f *Function) int {
	m.Functions = append(m.Functions, f)
	return len(m.Functions) - 1
}

func (m *Module) AddConstant(c Const) uint32 {
	m.Constants = append(m.Constants, c)
	return uint32(len(m.Constants) - 1)
}
