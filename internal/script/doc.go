// Package script reads session scripts and parses their lines.
//
// A script is UTF-8 text with one instruction per line. Fields are separated
// by a single tab; the first field is the opcode. Sources are sequential and
// one-shot: once Next returns ErrEndOfScript the script must be reopened to
// play it again.
//
// ErrEndOfScript is a control-flow signal, not a failure. Callers should
// test for it with errors.Is before treating an error as an I/O problem.
package script
