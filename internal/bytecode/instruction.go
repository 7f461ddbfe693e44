// Package bytecode implements the register VM's wire format: instructions,
// Function records, the per-instruction feedback vector inline caches hang
// off, and the Module a compiled script produces (spec.md §3.5, §3.6).
// Grounded on tetratelabs-wazero's internal/wazeroir (IR op enum) and
// internal/engine/interpreter/interpreter.go (per-function compiled-body /
// union-of-fields instruction encoding), supplemented by
// original_source/crates/otter-vm-bytecode/src/function.rs for the exact
// Function field list.
package bytecode

// Op is the register-machine opcode set. Operands are register indices
// (uint16) or immediate/constant-pool indices packed into Instruction.
type Op uint8

const (
	OpLoadConst Op = iota
	OpLoadUndefined
	OpLoadNull
	OpLoadTrue
	OpLoadFalse
	OpMove
	OpLoadGlobal
	OpStoreGlobal
	OpLoadLocal
	OpStoreLocal
	OpLoadUpvalue
	OpStoreUpvalue
	OpGetProp  // IC-carrying
	OpSetProp  // IC-carrying
	OpGetIndex // IC-carrying
	OpSetIndex // IC-carrying
	OpAdd      // IC-carrying (records numeric TypeFlags)
	OpSub
	OpMul
	OpDiv
	OpMod
	OpNeg
	OpNot
	OpTypeof
	OpInstanceof
	OpIn
	OpEq // abstract equality; never folded at compile time
	OpStrictEq
	OpLess
	OpLessEq
	OpGreater
	OpGreaterEq
	OpJump
	OpJumpIfFalse
	OpJumpIfTrue
	OpCall // IC-carrying (call-site monomorphism)
	OpNew
	OpReturn
	OpThrow
	OpPushTry
	OpPopTry
	OpEndFinally // closes a finally block: re-raises a pending error, if any
	OpYield
	OpAwait
	OpClosure // builds a closure from a Function + upvalue descriptors
	OpNewObject
	OpNewArray
	OpDelete
	numOps
)

// icCarrying marks which opcodes reserve a feedback slot (spec.md §4.3:
// "property load/store, global load/store, binary ops over numerics, call
// sites").
var icCarrying = [numOps]bool{
	OpGetProp: true, OpSetProp: true, OpGetIndex: true, OpSetIndex: true,
	OpLoadGlobal: true, OpStoreGlobal: true,
	OpAdd: true, OpSub: true, OpMul: true, OpDiv: true, OpMod: true,
	OpCall: true,
}

func (o Op) IsICCarrying() bool { return icCarrying[o] }

// Instruction is one linear bytecode instruction. Not every field is used
// by every Op; A/B/C are register or small-immediate operands, Const is a
// constant-pool index, Feedback is the slot index into the owning
// Function's FeedbackVector (valid only when Op.IsICCarrying()).
type Instruction struct {
	Op       Op
	A, B, C  uint16
	Const    uint32
	Feedback int32 // -1 when the instruction carries no IC slot
	Line     uint32
}
