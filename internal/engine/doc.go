// Package engine is the host that runs stateful program instances.
//
// The engine executes every message as one atomic call: it opens a store
// transaction, loads the instance and the image its code pointer names,
// hands the message to the program, and commits the new state, any code
// pointer change, and the call record together. If the handler fails for
// any reason the transaction is rolled back, so the instance's state and
// code pointer are exactly what they were, and the call is journaled with
// its failure receipt in a separate transaction.
//
// SERIALIZATION:
//
// Calls are serialized host-wide. Call may be used from any goroutine and
// takes the engine's lock; Submit queues a call for the single-writer Run
// loop, which processes submissions in FIFO order. Either way no two calls
// ever observe each other's intermediate state.
//
// CODE REPLACEMENT:
//
// A program reaches the runtime registry through Env.SetCodeHash. The
// registry writes the new pointer inside the call's transaction. The
// current call keeps running the image it started with; the next call on
// the instance runs the new one.
//
// LOGICAL CLOCK:
//
// Every image, instance, call and receipt is stamped with a seq from a
// monotonic Clock. No wall-clock time is stored. New resumes the clock
// from the highest seq in the store.
package engine
