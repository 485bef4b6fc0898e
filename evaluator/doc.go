// Package evaluator grades captured terminal output.
//
// The evaluator package compares the output a learner's command produced
// against a challenge's expectations. All comparisons run on normalized
// text (ANSI escapes stripped, whitespace collapsed, lowercased) so that
// terminal formatting never causes false negatives. Supported modes are
// exact, contains (with a similarity fallback for partial credit),
// command, and file_exists; contains doubles as the fallback for unset
// or unrecognized modes.
//
// Everything here is pure and deterministic given its inputs.
package evaluator
