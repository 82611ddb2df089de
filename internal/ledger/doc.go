// Package ledger keeps an append-only SQLite history of nxcheck runs.
//
// Every check, compare or validate run can be recorded with its score,
// report fingerprint and full JSON report. The ledger is optional; nxcheck
// keeps no state when no database is configured.
//
// # Ordering
//
// Runs are ordered by seq INTEGER, a logical clock assigned on insert,
// never by wall time. All queries use ORDER BY seq ASC, id COLLATE BINARY
// ASC so that listings are stable.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON
package ledger
