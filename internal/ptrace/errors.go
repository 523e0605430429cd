package ptrace

import "errors"

// ErrAttachFailed marks lifecycle failures enumerating or attaching to the
// target's threads. It is always fatal to the tracer.
var ErrAttachFailed = errors.New("attach failed")

// ErrPatchFailed marks a peek/poke failure while installing or restoring a
// single breakpoint. Only that breakpoint is affected; others still install.
var ErrPatchFailed = errors.New("breakpoint patch failed")

// ErrUnknownStop marks a wait result that is neither WIFEXITED nor
// WIFSTOPPED. It is always fatal to the tracer.
var ErrUnknownStop = errors.New("unexpected wait status")
