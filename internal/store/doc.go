// Package store provides SQLite-backed durable storage for the setcode host.
//
// The store holds four tables:
//   - code_images: registered code images, keyed by their 32-byte code hash
//   - instances: program instances with their code pointer and state
//   - calls: every attempted call, committed or not
//   - receipts: the outcome of each call
//
// # Atomic Execution
//
// InTx runs a function inside one SQL transaction. Any error rolls back
// every write made through the Tx, which is how the host guarantees that a
// failed call leaves an instance's code pointer and state exactly as they were.
//
// # Logical Time
//
// All ordering uses seq INTEGER (logical clock), never timestamps. Queries
// order by seq ASC, id ASC COLLATE BINARY so results are identical across
// runs.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
