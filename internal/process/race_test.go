//go:build race

package process

// The race runtime keeps per-thread state that does not survive a bare
// fork, so tests that continue running Go code in the child skip under it.
const raceEnabled = true
