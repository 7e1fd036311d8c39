/*
Package server provides HTTP server lifecycle management for the optional
ops surface: non-blocking startup, graceful shutdown, and signal handling.
It is not a correctness surface for the memory substrate itself, only for
exposing /metrics and /health from cmd/cogmemd.

# Core types

  - Manager: wraps http.Server and net.Listener, with an async error
    channel and Start/StartTLS/Shutdown/WaitForShutdown lifecycle methods.
  - Config: listen address, read/write/idle timeouts, max header size, and
    graceful shutdown timeout.

# Capabilities

  - Non-blocking startup: Start/StartTLS run the server in a background
    goroutine.
  - Graceful shutdown: Shutdown drains in-flight requests within the
    configured timeout.
  - Signal handling: WaitForShutdown listens for SIGINT/SIGTERM and
    triggers Shutdown automatically.
  - Error propagation: Errors() exposes an async channel for monitoring.
  - TLS support via StartTLS, which serves with the given certificate and
    key files.
*/
package server
