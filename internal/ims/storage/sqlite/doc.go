// Package sqlite contains SQLite repository implementations for the
// mobility expansion domain types.
//
// All database read/write operations for feature lists, expanded series
// and expansion runs belong here rather than in the domain layers
// (L1-L4) or the pipeline. The schema itself is owned by internal/db.
package sqlite
