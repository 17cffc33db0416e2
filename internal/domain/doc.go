// Package domain contains the core entities of a disbursement run.
//
// This package is the innermost layer. It has no dependencies on
// infrastructure concerns (files, HTTP, logging) and holds only the data
// model and the rules every persisted snapshot must satisfy.
//
// # Entities
//
//   - [Recipient]: an address/amount pair awaiting disbursement
//   - [TransferRecord]: the terminal outcome of one recipient
//   - [BatchState]: the four categorized lists plus the in-flight marker
//   - [Attempt]: a transfer that was started but has no recorded outcome yet
//
// # Partition invariant
//
// Every recipient of the source list is, at every persisted snapshot, in
// exactly one of RemainingWork, UnregisteredUsers, Succeeded or Failed.
// [CheckPartition] verifies this.
package domain
