// Package logx is fractald's zerolog front end: field helpers, child
// loggers carrying fixed fields, and a Service whose level and sinks
// (console and an append-only JSON file) follow config reloads.
package logx
