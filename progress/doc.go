// Package progress records challenge attempt results.
//
// The progress package defines the Recorder interface through which the
// sandbox core reports graded attempts, and a sqlite-backed
// implementation that appends them to an audit table. Downstream
// scoring (XP, streaks, skill mastery) consumes these records outside
// the sandbox core; recording failures are logged by callers, never
// surfaced to the learner.
package progress
