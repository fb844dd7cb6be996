// Package router implements the Message Router component.
//
// Every inbound message is classified to exactly one handler:
//   - Explicit mention ("@fitness ...") selects the named handler with confidence 1.0
//   - Keyword tier: deterministic substring hit counts, no I/O
//   - Fallback tier: a remote Classifier, bounded by a timeout
//
// Classify never fails; every internal failure degrades to the default
// handler with a low fixed confidence.
package router
