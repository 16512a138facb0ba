// Package timer abstracts callback scheduling behind a small capability
// interface.
//
// The transport core depends on timers in three places: the signaling
// liveness check, the heartbeat sender, and the prober's retry loop. All
// three must keep firing while the hosting process is suspended by the OS,
// which on mobile platforms requires background-capable timers the core
// cannot implement itself. The Scheduler interface lets the host inject that
// capability; Background is the default stand-in, Foreground is for timers
// that are allowed to pause, and Mock drives tests deterministically.
package timer
