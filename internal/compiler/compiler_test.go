package compiler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quillrt/quill/internal/bytecode"
)

func TestFoldDeepConstantExpression(t *testing.T) {
	prog := NewParser("-(2 + 3) * 4;").ParseProgram()
	require.Len(t, prog.Body, 1)
	folded := FoldConstants(prog.Body[0])
	exprStmt, ok := folded.(*ExprStmt)
	require.True(t, ok)
	lit, ok := exprStmt.Expr.(*NumberLiteral)
	require.True(t, ok, "expected a single folded NumberLiteral, got %T", exprStmt.Expr)
	require.Equal(t, float64(-20), lit.Value)
}

func TestCompileDeepConstantExpressionEmitsSingleLoadConst(t *testing.T) {
	mod, err := Compile("-(2 + 3) * 4;")
	require.NoError(t, err)
	require.Len(t, mod.Functions, 1)
	script := mod.Functions[0]

	var loadConsts int
	for _, instr := range script.Instructions {
		if instr.Op == bytecode.OpLoadConst {
			loadConsts++
			require.Equal(t, float64(-20), mod.Constants[instr.Const].Number)
		}
	}
	require.Equal(t, 1, loadConsts, "the whole expression must fold to one LoadConst")
}

func TestFoldRefusesTypeofOnIdentifier(t *testing.T) {
	prog := NewParser("typeof x;").ParseProgram()
	folded := FoldConstants(prog.Body[0])
	exprStmt := folded.(*ExprStmt)
	_, isUnary := exprStmt.Expr.(*UnaryExpr)
	require.True(t, isUnary, "typeof on an identifier must not be folded away")
}

func TestFoldRefusesAbstractEquality(t *testing.T) {
	prog := NewParser("1 == 1;").ParseProgram()
	folded := FoldConstants(prog.Body[0])
	exprStmt := folded.(*ExprStmt)
	_, isBinary := exprStmt.Expr.(*BinaryExpr)
	require.True(t, isBinary, "abstract equality must never be constant-folded")
}

func TestFoldStrictEqualityIsFoldable(t *testing.T) {
	prog := NewParser("1 === 1;").ParseProgram()
	folded := FoldConstants(prog.Body[0])
	exprStmt := folded.(*ExprStmt)
	lit, ok := exprStmt.Expr.(*BoolLiteral)
	require.True(t, ok)
	require.True(t, lit.Value)
}

func TestConstantPoolDeduplicates(t *testing.T) {
	mod, err := Compile("1; 1; 'x'; 'x';")
	require.NoError(t, err)
	require.Len(t, mod.Constants, 2, "identical literals must share one constant-pool slot")
}

func TestSourceMapTracksLines(t *testing.T) {
	mod, err := Compile("1;\n2;\n3;\n")
	require.NoError(t, err)
	fn := mod.Functions[0]
	require.NotEmpty(t, fn.SourceMap)
	line, ok := fn.FindSourceLine(0)
	require.True(t, ok)
	require.Equal(t, uint32(1), line)
}
