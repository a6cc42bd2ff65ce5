// Package runstore persists pipeline run history in SQLite.
//
// Each run gets a row, every stage execution gets a result row, and the run
// context is checkpointed after each merge so an interrupted run can resume
// from its last good state. The store is also what the runs listing reads.
package runstore
