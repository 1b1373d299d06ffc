// Package core defines the shared vocabulary of the prompt orchestration
// protocol: the StreamEvent tagged union carried on the wire, the
// PromptRequest accepted from notebook clients, tool call / tool result
// records, conversation content parts and the typed error taxonomy.
//
// Everything here is transport-agnostic. The server, engine, model adapters
// and client consumer all speak in these types; encoding to SSE frames and
// decoding from them lives at the edges (server and client packages).
package core
