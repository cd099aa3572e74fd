// Package store provides SQLite-backed storage for the story library and
// participant performance.
//
// Tables:
//   - stories: the story library, one row per story script
//   - participants: each participant's current level
//   - sessions: one row per played session with its summary
//   - story_history: which stories each participant has been told
//   - responses: every classified participant response
//
// # Ordering
//
// "Least recently told" and response order use AUTOINCREMENT ids, never
// timestamps, so story choice is reproducible for a given history.
//
// # Text Normalization
//
// Story and participant names are NFC-normalized on the way in, so the
// same name typed on different keyboards maps to one row.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait up to 5s for locks
//   - foreign_keys=ON: Enforce referential integrity
package store
