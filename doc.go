// Package quill implements a register-bytecode JavaScript runtime: a
// lexer/parser/compiler pipeline, a tracing garbage-collected value and
// object model, a single-threaded event loop with microtasks and timers,
// and a capability-gated extension layer for host-provided ops.
//
// Construct a Runtime with NewRuntime, open one or more isolated Realms
// from it with Runtime.NewRealm, and evaluate script with Realm.Eval.
package quill
