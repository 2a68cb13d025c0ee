// Package models defines the core domain models of the shared ledger.
//
// # Models
//
//   - Participant: a person who can owe or be owed money
//   - Group: the scope in which participants transact together
//   - LedgerEntry: one shared expense, split across consumers by weight
//   - RecurringTemplate: a pattern that materializes LedgerEntries on a schedule
//   - Settlement: a direct, unweighted transfer between two participants
//   - ModificationRecord: an audit record linking an actor to the record they touched
//
// # Shares
//
// Consumer weights and their cached total live in the immutable Shares value.
// A Shares can only be obtained through NewShares (which validates and sums)
// or RestoreShares (which checks a persisted total against its rows), so the
// cached total always equals the sum of the weights it travels with.
//
// # Design Principles
//
//  1. Use ID strings instead of pointers for relationships
//  2. Amounts and weights are fixed-point decimals, never floats
//  3. Timestamps are UTC
package models
