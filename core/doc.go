// Package core provides the foundational domain types and contracts used by
// Maestro. It defines the core abstractions for:
//
//   - Sessions (persistent conversation threads tied to a resource context)
//   - Conversation messages (logged turns with stable ids supporting
//     in-place streaming updates)
//   - Context messages (the rolling single-row-per-session prompt snapshot)
//   - The canonical, provider-neutral chat message / tool call model
//   - The pluggable SessionStore persistence contract
//
// The package intentionally keeps implementation concerns (storage backends,
// provider SDKs, turn orchestration) out of scope, exposing small interfaces
// to enable custom backends and extensions.
package core
