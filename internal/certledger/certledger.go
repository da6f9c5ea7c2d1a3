// Package certledger implements the simulated certification ledger.
//
// Each certification produces an immutable Record carrying a Keccak-256
// transaction hash, a block number and a confirmed status. Records are held
// in a fixed-capacity buffer: once it is full, every new record evicts the
// oldest one. Nothing is persisted; the ledger lives as long as the process.
//
// MemoryLedger is the only implementation. All writes are serialised, so the
// length used for block numbering, the append and the eviction happen as a
// single step even under concurrent requests.
package certledger
