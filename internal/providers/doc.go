// Package providers implements the Generator interface for each supported
// LLM provider.
//
// Supported providers: Google (Gemini, the default) and Ollama / LM Studio
// for local models. Both share a common retry helper with exponential
// back-off on rate limits; authentication errors are never retried.
//
// HTTP endpoints are held in a baseURL field so tests can redirect calls to
// local httptest servers without making live API requests.
//
// Use [New] to obtain a Generator by provider name and model string.
package providers
