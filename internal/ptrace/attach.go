//go:build linux

// Package ptrace implements the tracer's attach, breakpoint, and wait/resume
// mechanics on top of Linux's ptrace(2).
//
// ptrace is bound to the OS thread that issued the attach: every subsequent
// ptrace(2) call against a tracee — PTRACE_PEEKTEXT, PTRACE_POKETEXT,
// PTRACE_GETREGS, PTRACE_SETREGS, PTRACE_CONT, PTRACE_SINGLESTEP, and the
// wait4 that follows each — must come from that same thread, or the kernel
// rejects them with ESRCH. Go's scheduler is otherwise free to move a
// goroutine between OS threads across any blocking call, so the caller of
// AttachAllThreads and Loop.Run must call runtime.LockOSThread() first and
// keep every call into this package on that same goroutine for the life of
// the trace.
package ptrace

import (
	"fmt"
	"os"
	"strconv"
	"syscall"

	"github.com/sirupsen/logrus"
)

// AttachAllThreads enumerates every thread of pid under /proc/<pid>/task,
// ptrace-attaches each one, and waits for it to stop before continuing it.
// Once every thread has been attached, it sends SIGSTOP to the main thread
// so that the caller can safely patch breakpoints before resuming anything.
//
// A thread that has exited between the readdir and the attach call is
// logged and skipped rather than treated as fatal; only an unreadable
// /proc/<pid>/task is fatal, per the tracer's AttachFailed policy.
func AttachAllThreads(pid int, log logrus.FieldLogger) error {
	taskDir := fmt.Sprintf("/proc/%d/task", pid)
	entries, err := os.ReadDir(taskDir)
	if err != nil {
		return fmt.Errorf("%w: opening %s: %v", ErrAttachFailed, taskDir, err)
	}

	for _, entry := range entries {
		tid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		if err := syscall.PtraceAttach(tid); err != nil {
			log.WithError(err).WithField("tid", tid).Warn("ptrace attach failed, skipping thread")
			continue
		}
		var status syscall.WaitStatus
		if _, err := syscall.Wait4(-1, &status, syscall.WALL, nil); err != nil {
			log.WithError(err).WithField("tid", tid).Warn("wait after attach failed")
			continue
		}
		if err := syscall.PtraceCont(tid, 0); err != nil {
			log.WithError(err).WithField("tid", tid).Warn("continue after attach failed")
		}
	}

	if err := syscall.Tgkill(pid, pid, syscall.SIGSTOP); err != nil {
		return fmt.Errorf("%w: tgkill SIGSTOP: %v", ErrAttachFailed, err)
	}
	var status syscall.WaitStatus
	if _, err := syscall.Wait4(pid, &status, 0, nil); err != nil {
		return fmt.Errorf("%w: waiting for SIGSTOP: %v", ErrAttachFailed, err)
	}
	return nil
}
