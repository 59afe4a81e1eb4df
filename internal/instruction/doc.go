// Package instruction defines the closed set of backend-authored
// instructions, their payload schemas, the strict wire codec, and the
// result type produced by execution.
//
// The model is a tagged union: every instruction carries exactly one Type
// tag and a payload whose shape is fixed by that tag. Payloads implement
// the sealed Payload interface so executor dispatch can switch
// exhaustively over concrete types.
package instruction
