// Package engine plays social story session scripts.
//
// A session script is a tab-separated instruction file. The engine keeps a
// stack of at most three script contexts: the main session script, an
// optional repeating block, and an optional story. Lines are always read
// from the innermost context; when it runs out the state machine in
// Engine.exhausted decides whether to pop it, repeat it, or end the session.
//
// Single-Writer Loop:
// The Driver owns the Engine and steps it from one goroutine. Transport
// goroutines only touch the control queue, so interpreter state needs no
// locking.
//
// Blocking Waits:
// A WAIT line blocks Step until the participant answers or the attempt
// times out. Each attempt timeout is clamped to the remaining game time.
// Control messages queued during a wait are applied when it returns;
// cancelling the context ends the wait immediately.
//
// Errors:
// Missing files, malformed lines and unloaded pools are logged as
// RuntimeErrors and skipped. Only unexpected failures are returned from Step.
package engine
