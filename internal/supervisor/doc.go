// Package supervisor runs a codetango session end to end: it launches both
// participant processes against a coordinator, waits for them, and reports
// whether every barrier in the sequence was reached by both sides.
package supervisor
