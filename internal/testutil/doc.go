// Package testutil contains helper builders and utilities used across tests
// to reduce boilerplate when constructing core values (events, model turns,
// tool calls) and a started run harness with an event recorder. These
// helpers are not intended for production usage.
package testutil
