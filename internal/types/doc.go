// Package types defines the shared wire and data model for the context
// bridge: the message envelope exchanged over the duplex channel, the page
// context snapshot sent by the frontend, screenshot options, and the
// analysis structures produced by the context analyzer.
package types
