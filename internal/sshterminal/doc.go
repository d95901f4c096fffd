// Package sshterminal manages the interactive processes behind browser
// terminals. Each websocket connection owns at most one child process, which
// runs the outbound ssh client under a pseudo-terminal (or the pipe fallback,
// see [ptyproc.Detect]).
//
// # Core Components
//
//   - [ProcessManager]: registry of live handles keyed by connection id, with
//     start/input/resize/close, a timeout sweep and manager-wide shutdown.
//   - [Relay]: the outbound side of a connection. The manager pushes [Frame]
//     values into it; the websocket writer drains it.
//   - [SSHTarget]: builds the ssh command line spawned for every terminal.
//   - [RateLimiter]: token bucket rate limiter for websocket message throttling.
//
// # Handle Lifecycle
//
//  1. [ProcessManager.Start] reserves the connection id → state=[StateStarting].
//     A second Start for the same id fails with [ErrAlreadyExists].
//
//  2. The backend spawns the process → state=[StateRunning] and a ready frame
//     is sent. Output frames only follow the ready frame.
//
//  3. The first of process exit, [ProcessManager.Close], the timeout sweep,
//     [ProcessManager.KillAllForUser] or [ProcessManager.ShutdownAll] moves the
//     handle to [StateExiting] and kills the process. Later triggers see the
//     handle is exiting and do nothing. The id stays reserved, so Start still
//     fails with [ErrAlreadyExists].
//
//  4. Once the process has been reaped (or the reap wait has run out) exactly
//     one exit frame is sent, the handle is removed from the registry and it
//     reaches [StateClosed].
//
// # Security
//
//   - Input size limit: [MaxInputMessageSize] (64 KB) prevents oversized messages.
//   - Terminal dimensions: clamped by [ClampSize] to [MaxTermCols] (500) x
//     [MaxTermRows] (200).
//   - Message rate limiting: [MessageRateLimit] (100/s) with [MessageRateBurst]
//     (200) burst prevents client-side abuse.
//   - Process lifetime: absolute, [DefaultProcessTimeout] unless configured.
package sshterminal
