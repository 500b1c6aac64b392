// Package scheduler runs the periodic maintenance jobs of the UDF backend:
//   - pruning cached history bars past their retention
//   - dropping expired rate limiter windows
//
// The symbol synchronizer is not a cron job; it paces itself. See services.SymbolSynchronizer.
package scheduler
