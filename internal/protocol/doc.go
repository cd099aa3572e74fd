// Package protocol defines the vocabulary shared by the script engine, the
// personalization store, and the robot/tablet transport.
//
// Nothing in this package performs I/O. It exists so that the engine, the
// store, and the transport can agree on response classifications, story
// selections, and command payload shapes without importing each other.
package protocol
