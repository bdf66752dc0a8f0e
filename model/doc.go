// Package model defines the provider‑agnostic capability consumed by the
// tool-calling loop of taskmesh.
//
// Core goals:
//   - Three request shapes behind one interface: plain chat, chat with a
//     tool list, and schema constrained (structured) output
//   - Normalized tool call representation shared with the loop (core.ToolCall)
//   - Transport independent turn shape (Turn) carrying token usage
//   - Lightweight scripted mocking for tests (ScriptedModel)
//
// Providers (model/openai, model/anthropic) implement the Model interface so
// agents remain decoupled from vendor SDKs.
package model
