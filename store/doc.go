// Package store houses concrete implementations of core.SessionStore. The
// interface itself (and the entity structs) live in the core package to
// centralize domain contracts; keeping only implementations here prevents
// higher level packages (dispatch, chat) from depending on concrete storage.
//
// InMemoryStore is the volatile reference implementation used by tests and
// demos. Durable backends live in sub-packages (postgres, sqlite) so only the
// wiring layer decides which implementation to instantiate.
package store
