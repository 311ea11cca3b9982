// Package llm defines the provider-agnostic abstractions for chat completion
// backends in Maestro.
//
// Core goals:
//   - One canonical interface (Provider.ChatCompletion) regardless of vendor
//   - Normalized tool / function call representation via core.ToolCall
//   - Value-return error model: transport and vendor failures come back as an
//     error-status Response so callers inspect Status instead of catching
//     provider-specific errors
//   - Environment-driven configuration validated at adapter construction
//
// Vendors (OpenAI, Anthropic, Google Gemini) implement the Provider interface
// in sub-packages so higher layers (dispatch, chat) remain decoupled from
// vendor SDKs. Swapping or adding a vendor requires only a new adapter.
package llm
