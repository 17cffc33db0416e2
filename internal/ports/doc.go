// Package ports defines the interfaces (ports) that connect the application
// layer to infrastructure adapters.
//
// # Port Interfaces
//
//   - [StateStore]: Persists and loads the batch state of one source list
//   - [Transferrer]: Submits one transfer and waits for its confirmation
//   - [EligibilityChecker]: Decides whether an address can receive a transfer
//   - [BalanceQuerier]: Reads the sending account's available balance
//   - [AuditorKeySource]: Supplies the auditor key required by every transfer
//   - [Reconciler]: Resolves a transfer whose outcome was never recorded
//   - [Logger]: Structured logging abstraction
//   - [HTTPClient]: HTTP request abstraction for dependency injection
//
// The application layer (internal/app) depends only on these interfaces.
// Infrastructure adapters (internal/adapters) implement them with the file
// system, SQLite, HTTP and zerolog.
package ports
