// Package timelock implements a time-locked conditional-transfer escrow. A
// Book holds a Ledger of participant balances and a Registry of Funds, each
// Fund being an amount reserved from a payer that its payee may claim inside
// an unlock/expire window, and that the payer may reclaim once the window has
// passed.
//
// Books are event sourced. Every mutation is a Command run by an Executor
// that validates against the current Book, raises events, and commits them
// with a single conditional append, so a balance check, its debit, and the
// Fund it funds are never observed apart. Committed events are fanned out to
// EventHub consumers after the append succeeds.
//
// Typical usage looks like:
//   - Open a Backend (Redis, bbolt, or Postgres)
//   - Wrap it in a Store with NewStore
//   - Create an Engine with NewEngine, optionally injecting a Clock
//   - Call Borrow, LockFund, and Withdraw on behalf of a caller
//   - Consume escrow events from Engine.Subscribe
package timelock
