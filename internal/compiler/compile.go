package compiler

import (
	"fmt"

	"github.com/quillrt/quill/internal/bytecode"
)

// state is one function's in-progress compilation: its growing instruction
// stream, a simple linear register allocator, and a name->register table
// for locals/parameters (no block-scoped shadowing; good enough for the
// register-VM shape this exercise targets, see SPEC_FULL.md §4).
type state struct {
	instrs    []bytecode.Instruction
	nextReg   uint16
	locals    map[string]uint16
	sourceMap []bytecode.SourceMapEntry
	breaks    [][]int // indices of jump instructions needing patch, one slice per enclosing loop
	continues [][]int
	line      uint32
}

func newState() *state {
	return &state{locals: map[string]uint16{}}
}

func (s *state) alloc() uint16 {
	r := s.nextReg
	s.nextReg++
	return r
}

func (s *state) emit(i bytecode.Instruction) int {
	i.Line = s.line
	s.instrs = append(s.instrs, i)
	if len(s.sourceMap) == 0 || s.sourceMap[len(s.sourceMap)-1].Line != s.line {
		s.sourceMap = append(s.sourceMap, bytecode.SourceMapEntry{Index: uint32(len(s.instrs) - 1), Line: s.line})
	}
	return len(s.instrs) - 1
}

// patchJumpToHere backpatches an unconditional OpJump's target (held in A,
// since it has no operand register to conflict with).
func (s *state) patchJumpToHere(idx int) {
	s.instrs[idx].A = uint16(len(s.instrs))
}

// patchCondJumpToHere backpatches an OpJumpIfFalse/OpJumpIfTrue's target.
// A already holds the condition register for these ops, so the target
// lives in B instead.
func (s *state) patchCondJumpToHere(idx int) {
	s.instrs[idx].B = uint16(len(s.instrs))
}

// Compiler lowers a parsed, folded AST into a bytecode.Module.
type Compiler struct {
	module *bytecode.Module
	pool   *constPool
}

// NewCompiler constructs a Compiler targeting a fresh Module.
func NewCompiler() *Compiler {
	m := bytecode.NewModule()
	return &Compiler{module: m, pool: newConstPool(m)}
}

// Compile parses, constant-folds, and compiles src into a Module whose
// Functions[0] is the top-level script body.
func Compile(src string) (mod *bytecode.Module, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("compiler: %v", r)
		}
	}()
	prog := NewParser(src).ParseProgram()
	for i := range prog.Body {
		prog.Body[i] = FoldConstants(prog.Body[i])
	}
	c := NewCompiler()
	c.compileProgram(prog)
	return c.module, nil
}

func (c *Compiler) compileProgram(prog *Program) {
	s := newState()
	// The script's result is the value of its last top-level expression
	// statement, which lands in the first register that statement allocates.
	var result uint16
	hasResult := false
	for _, stmt := range prog.Body {
		if _, ok := stmt.(*ExprStmt); ok {
			result, hasResult = s.nextReg, true
		}
		c.compileStmt(s, stmt)
	}
	if !hasResult {
		result = s.alloc()
		s.emit(bytecode.Instruction{Op: bytecode.OpLoadUndefined, A: result})
	}
	s.emit(bytecode.Instruction{Op: bytecode.OpReturn, A: result})
	fn := bytecode.NewFunction("<script>", 0, len(s.locals), int(s.nextReg), bytecode.Flags{}, s.instrs, nil)
	fn.SourceMap = s.sourceMap
	c.module.AddFunction(fn)
}

func (c *Compiler) compileStmt(s *state, n Node) {
	switch st := n.(type) {
	case *VarDecl:
		reg := s.alloc()
		s.locals[st.Name] = reg
		if st.Init != nil {
			c.compileExprInto(s, st.Init, reg)
		} else {
			s.emit(bytecode.Instruction{Op: bytecode.OpLoadUndefined, A: reg})
		}
	case *ExprStmt:
		r := s.alloc()
		c.compileExprInto(s, st.Expr, r)
	case *BlockStmt:
		for _, child := range st.Body {
			c.compileStmt(s, child)
		}
	case *IfStmt:
		c.compileIf(s, st)
	case *WhileStmt:
		c.compileWhile(s, st)
	case *ForStmt:
		c.compileFor(s, st)
	case *ReturnStmt:
		if st.Arg != nil {
			r := s.alloc()
			c.compileExprInto(s, st.Arg, r)
			s.emit(bytecode.Instruction{Op: bytecode.OpReturn, A: r})
		} else {
			s.emit(bytecode.Instruction{Op: bytecode.OpReturn, A: 0})
		}
	case *ThrowStmt:
		r := s.alloc()
		c.compileExprInto(s, st.Arg, r)
		s.emit(bytecode.Instruction{Op: bytecode.OpThrow, A: r})
	case *TryStmt:
		c.compileTry(s, st)
	case *FunctionDecl:
		reg := s.alloc()
		s.locals[st.Fn.Name] = reg
		c.compileFunctionExpr(s, st.Fn, reg)
	case *BreakStmt:
		idx := s.emit(bytecode.Instruction{Op: bytecode.OpJump})
		if len(s.breaks) > 0 {
			top := len(s.breaks) - 1
			s.breaks[top] = append(s.breaks[top], idx)
		}
	case *ContinueStmt:
		idx := s.emit(bytecode.Instruction{Op: bytecode.OpJump})
		if len(s.continues) > 0 {
			top := len(s.continues) - 1
			s.continues[top] = append(s.continues[top], idx)
		}
	default:
		// Unknown statement kinds are expression statements in disguise or
		// no-ops for this grammar subset.
	}
}

func (c *Compiler) compileIf(s *state, st *IfStmt) {
	cond := s.alloc()
	c.compileExprInto(s, st.Test, cond)
	jf := s.emit(bytecode.Instruction{Op: bytecode.OpJumpIfFalse, A: cond})
	c.compileStmt(s, st.Consequent)
	if st.Alternate != nil {
		jend := s.emit(bytecode.Instruction{Op: bytecode.OpJump})
		s.patchCondJumpToHere(jf)
		c.compileStmt(s, st.Alternate)
		s.patchJumpToHere(jend)
	} else {
		s.patchCondJumpToHere(jf)
	}
}

func (c *Compiler) compileWhile(s *state, st *WhileStmt) {
	s.breaks = append(s.breaks, nil)
	s.continues = append(s.continues, nil)
	top := len(s.instrs)
	cond := s.alloc()
	c.compileExprInto(s, st.Test, cond)
	jf := s.emit(bytecode.Instruction{Op: bytecode.OpJumpIfFalse, A: cond})
	c.compileStmt(s, st.Body)
	for _, idx := range s.continues[len(s.continues)-1] {
		s.instrs[idx].A = uint16(len(s.instrs))
	}
	s.emit(bytecode.Instruction{Op: bytecode.OpJump, A: uint16(top)})
	s.patchCondJumpToHere(jf)
	for _, idx := range s.breaks[len(s.breaks)-1] {
		s.instrs[idx].A = uint16(len(s.instrs))
	}
	s.breaks = s.breaks[:len(s.breaks)-1]
	s.continues = s.continues[:len(s.continues)-1]
}

func (c *Compiler) compileFor(s *state, st *ForStmt) {
	if st.Init != nil {
		c.compileStmt(s, st.Init)
	}
	s.breaks = append(s.breaks, nil)
	s.continues = append(s.continues, nil)
	top := len(s.instrs)
	var jf int
	hasTest := st.Test != nil
	if hasTest {
		cond := s.alloc()
		c.compileExprInto(s, st.Test, cond)
		jf = s.emit(bytecode.Instruction{Op: bytecode.OpJumpIfFalse, A: cond})
	}
	c.compileStmt(s, st.Body)
	for _, idx := range s.continues[len(s.continues)-1] {
		s.instrs[idx].A = uint16(len(s.instrs))
	}
	if st.Update != nil {
		r := s.alloc()
		c.compileExprInto(s, st.Update, r)
	}
	s.emit(bytecode.Instruction{Op: bytecode.OpJump, A: uint16(top)})
	if hasTest {
		s.patchCondJumpToHere(jf)
	}
	for _, idx := range s.breaks[len(s.breaks)-1] {
		s.instrs[idx].A = uint16(len(s.instrs))
	}
	s.breaks = s.breaks[:len(s.breaks)-1]
	s.continues = s.continues[:len(s.continues)-1]
}

// noCatchReg marks an OpPushTry with no catch-parameter binding.
const noCatchReg = 0xFFFF

func (c *Compiler) compileTry(s *state, st *TryStmt) {
	pushIdx := s.emit(bytecode.Instruction{Op: bytecode.OpPushTry, B: noCatchReg})
	c.compileStmt(s, st.Block)
	s.emit(bytecode.Instruction{Op: bytecode.OpPopTry})
	jend := s.emit(bytecode.Instruction{Op: bytecode.OpJump})
	s.instrs[pushIdx].A = uint16(len(s.instrs)) // catch/finally entry point
	if st.CatchBlock != nil {
		s.instrs[pushIdx].Const = 1 // a real catch clause: the exception is consumed here
		if st.CatchParam != "" {
			reg := s.alloc()
			s.locals[st.CatchParam] = reg
			s.instrs[pushIdx].B = reg
		}
		c.compileStmt(s, st.CatchBlock)
	}
	s.patchJumpToHere(jend)
	if st.FinallyBlock != nil {
		c.compileStmt(s, st.FinallyBlock)
		s.emit(bytecode.Instruction{Op: bytecode.OpEndFinally})
	}
}

func (c *Compiler) compileFunctionExpr(s *state, fe *FunctionExpr, dest uint16) {
	fs := newState()
	for _, param := range fe.Params {
		reg := fs.alloc()
		fs.locals[param] = reg
	}
	for _, stmt := range fe.Body {
		c.compileStmt(fs, FoldConstants(stmt))
	}
	fs.emit(bytecode.Instruction{Op: bytecode.OpReturn, A: 0})
	fn := bytecode.NewFunction(fe.Name, len(fe.Params), len(fs.locals), int(fs.nextReg), bytecode.Flags{
		IsGenerator: fe.IsGenerator,
		IsAsync:     fe.IsAsync,
		IsArrow:     fe.IsArrow,
	}, fs.instrs, nil)
	fn.SourceMap = fs.sourceMap
	idx := c.module.AddFunction(fn)
	s.emit(bytecode.Instruction{Op: bytecode.OpClosure, A: dest, Const: uint32(idx)})
}

// compileExprInto compiles n so its result ends up in register dest.
func (c *Compiler) compileExprInto(s *state, n Node, dest uint16) {
	switch e := n.(type) {
	case *NumberLiteral:
		idx := c.pool.number(e.Value)
		s.emit(bytecode.Instruction{Op: bytecode.OpLoadConst, A: dest, Const: idx})
	case *StringLiteral:
		idx := c.pool.str(e.Value)
		s.emit(bytecode.Instruction{Op: bytecode.OpLoadConst, A: dest, Const: idx})
	case *BoolLiteral:
		if e.Value {
			s.emit(bytecode.Instruction{Op: bytecode.OpLoadTrue, A: dest})
		} else {
			s.emit(bytecode.Instruction{Op: bytecode.OpLoadFalse, A: dest})
		}
	case *NullLiteral:
		s.emit(bytecode.Instruction{Op: bytecode.OpLoadNull, A: dest})
	case *UndefinedLiteral:
		s.emit(bytecode.Instruction{Op: bytecode.OpLoadUndefined, A: dest})
	case *Identifier:
		if reg, ok := s.locals[e.Name]; ok {
			s.emit(bytecode.Instruction{Op: bytecode.OpMove, A: dest, B: reg})
		} else {
			idx := c.pool.str(e.Name)
			s.emit(bytecode.Instruction{Op: bytecode.OpLoadGlobal, A: dest, Const: idx, Feedback: -1})
		}
	case *UnaryExpr:
		c.compileUnary(s, e, dest)
	case *BinaryExpr:
		c.compileBinary(s, e, dest)
	case *LogicalExpr:
		c.compileLogical(s, e, dest)
	case *AssignExpr:
		c.compileAssign(s, e, dest)
	case *MemberExpr:
		c.compileMemberGet(s, e, dest)
	case *CallExpr:
		c.compileCall(s, e, dest)
	case *FunctionExpr:
		c.compileFunctionExpr(s, e, dest)
	case *YieldExpr:
		c.compileYield(s, e, dest)
	case *AwaitExpr:
		c.compileAwait(s, e, dest)
	case *ArrayLiteral:
		s.emit(bytecode.Instruction{Op: bytecode.OpNewArray, A: dest})
		for i, el := range e.Elements {
			v := s.alloc()
			c.compileExprInto(s, el, v)
			s.emit(bytecode.Instruction{Op: bytecode.OpSetIndex, A: dest, B: uint16(i), C: v})
		}
	case *ObjectLiteral:
		s.emit(bytecode.Instruction{Op: bytecode.OpNewObject, A: dest})
		for _, prop := range e.Props {
			v := s.alloc()
			c.compileExprInto(s, prop.Value, v)
			keyIdx := c.pool.str(prop.Key.(*StringLiteral).Value)
			s.emit(bytecode.Instruction{Op: bytecode.OpSetProp, A: dest, C: v, Const: keyIdx})
		}
	default:
		s.emit(bytecode.Instruction{Op: bytecode.OpLoadUndefined, A: dest})
	}
}

// compileYield lowers `yield`/`yield*` to a single OpYield: the suspended
// value is read out of dest before the interpreter overwrites it with
// whatever .next()/.throw()/.return() resumes the generator with, so
// reusing dest for both sides of the suspension point is safe.
func (c *Compiler) compileYield(s *state, e *YieldExpr, dest uint16) {
	if e.Arg != nil {
		c.compileExprInto(s, e.Arg, dest)
	} else {
		s.emit(bytecode.Instruction{Op: bytecode.OpLoadUndefined, A: dest})
	}
	s.emit(bytecode.Instruction{Op: bytecode.OpYield, A: dest, B: dest})
}

func (c *Compiler) compileAwait(s *state, e *AwaitExpr, dest uint16) {
	c.compileExprInto(s, e.Arg, dest)
	s.emit(bytecode.Instruction{Op: bytecode.OpAwait, A: dest, B: dest})
}

func (c *Compiler) compileUnary(s *state, e *UnaryExpr, dest uint16) {
	if e.Op == "typeof" {
		c.compileExprInto(s, e.Operand, dest)
		s.emit(bytecode.Instruction{Op: bytecode.OpTypeof, A: dest, B: dest})
		return
	}
	if e.Op == "delete" {
		if m, ok := e.Operand.(*MemberExpr); ok {
			obj := s.alloc()
			c.compileExprInto(s, m.Object, obj)
			keyIdx := c.propKeyConst(s, m)
			s.emit(bytecode.Instruction{Op: bytecode.OpDelete, A: dest, B: obj, Const: keyIdx})
			return
		}
	}
	c.compileExprInto(s, e.Operand, dest)
	switch e.Op {
	case "-":
		s.emit(bytecode.Instruction{Op: bytecode.OpNeg, A: dest, B: dest})
	case "!":
		s.emit(bytecode.Instruction{Op: bytecode.OpNot, A: dest, B: dest})
	}
}

var binOpCode = map[string]bytecode.Op{
	"+": bytecode.OpAdd, "-": bytecode.OpSub, "*": bytecode.OpMul, "/": bytecode.OpDiv, "%": bytecode.OpMod,
	"==": bytecode.OpEq, "===": bytecode.OpStrictEq,
	"<": bytecode.OpLess, "<=": bytecode.OpLessEq, ">": bytecode.OpGreater, ">=": bytecode.OpGreaterEq,
	"instanceof": bytecode.OpInstanceof, "in": bytecode.OpIn,
}

func (c *Compiler) compileBinary(s *state, e *BinaryExpr, dest uint16) {
	left := s.alloc()
	c.compileExprInto(s, e.Left, left)
	right := s.alloc()
	c.compileExprInto(s, e.Right, right)
	op, ok := binOpCode[e.Op]
	if !ok {
		op = bytecode.OpAdd
	}
	s.emit(bytecode.Instruction{Op: op, A: dest, B: left, C: right})
}

func (c *Compiler) compileLogical(s *state, e *LogicalExpr, dest uint16) {
	c.compileExprInto(s, e.Left, dest)
	var jidx int
	if e.Op == "&&" {
		jidx = s.emit(bytecode.Instruction{Op: bytecode.OpJumpIfFalse, A: dest})
	} else {
		jidx = s.emit(bytecode.Instruction{Op: bytecode.OpJumpIfTrue, A: dest})
	}
	c.compileExprInto(s, e.Right, dest)
	s.patchCondJumpToHere(jidx)
}

func (c *Compiler) compileAssign(s *state, e *AssignExpr, dest uint16) {
	switch target := e.Target.(type) {
	case *Identifier:
		if reg, ok := s.locals[target.Name]; ok {
			if e.Op == "=" {
				c.compileExprInto(s, e.Value, reg)
			} else {
				rhs := s.alloc()
				c.compileExprInto(s, e.Value, rhs)
				op := binOpCode[string([]byte(e.Op)[:len(e.Op)-1])]
				s.emit(bytecode.Instruction{Op: op, A: reg, B: reg, C: rhs})
			}
			s.emit(bytecode.Instruction{Op: bytecode.OpMove, A: dest, B: reg})
			return
		}
		rhs := s.alloc()
		c.compileExprInto(s, e.Value, rhs)
		idx := c.pool.str(target.Name)
		s.emit(bytecode.Instruction{Op: bytecode.OpStoreGlobal, A: rhs, Const: idx})
		s.emit(bytecode.Instruction{Op: bytecode.OpMove, A: dest, B: rhs})
	case *MemberExpr:
		obj := s.alloc()
		c.compileExprInto(s, target.Object, obj)
		rhs := s.alloc()
		c.compileExprInto(s, e.Value, rhs)
		if target.Computed {
			idxReg := s.alloc()
			c.compileExprInto(s, target.Property, idxReg)
			s.emit(bytecode.Instruction{Op: bytecode.OpSetIndex, A: obj, B: idxReg, C: rhs})
		} else {
			keyIdx := c.propKeyConst(s, target)
			s.emit(bytecode.Instruction{Op: bytecode.OpSetProp, A: obj, C: rhs, Const: keyIdx})
		}
		s.emit(bytecode.Instruction{Op: bytecode.OpMove, A: dest, B: rhs})
	}
}

func (c *Compiler) compileMemberGet(s *state, e *MemberExpr, dest uint16) {
	obj := s.alloc()
	c.compileExprInto(s, e.Object, obj)
	if e.Computed {
		idxReg := s.alloc()
		c.compileExprInto(s, e.Property, idxReg)
		s.emit(bytecode.Instruction{Op: bytecode.OpGetIndex, A: dest, B: obj, C: idxReg})
		return
	}
	keyIdx := c.propKeyConst(s, e)
	s.emit(bytecode.Instruction{Op: bytecode.OpGetProp, A: dest, B: obj, Const: keyIdx})
}

func (c *Compiler) propKeyConst(s *state, m *MemberExpr) uint32 {
	if sl, ok := m.Property.(*StringLiteral); ok {
		return c.pool.str(sl.Value)
	}
	return c.pool.str("")
}

func (c *Compiler) compileCall(s *state, e *CallExpr, dest uint16) {
	callee := s.alloc()
	c.compileExprInto(s, e.Callee, callee)
	argStart := s.nextReg
	for _, a := range e.Args {
		r := s.alloc()
		c.compileExprInto(s, a, r)
	}
	s.emit(bytecode.Instruction{Op: bytecode.OpCall, A: dest, B: callee, C: uint16(len(e.Args)), Const: uint32(argStart)})
}
