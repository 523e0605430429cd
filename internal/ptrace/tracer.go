//go:build linux

package ptrace

import (
	"fmt"
	"syscall"

	"github.com/sirupsen/logrus"
)

// signalStopEquivalent is a stop signal observed alongside SIGSTOP in the
// field that must also be passed through transparently. It is not a
// universal SIGSTOP alias in the kernel; see DESIGN.md for the open
// question this leaves and why the loop logs it instead of assuming more.
const signalStopEquivalent = 21

// Loop is the tracer's single-threaded state machine: it waits on any
// thread of the target, classifies the stop, and dispatches breakpoint
// hits. It is the sole writer of both the breakpoint table's byte state and
// whatever shadow state its AfterHit callback touches, which is what makes
// the rest of the system lock-free.
type Loop struct {
	Table   *Table
	AfterHit func()
	Log     logrus.FieldLogger
}

// NewLoop returns a Loop ready to run against an already-attached,
// already-patched target.
func NewLoop(table *Table, afterHit func(), log logrus.FieldLogger) *Loop {
	return &Loop{Table: table, AfterHit: afterHit, Log: log}
}

// Run blocks until the target exits cleanly (returning nil) or a wait
// result can't be classified as exited or stopped (returning a wrapped
// ErrUnknownStop).
func (l *Loop) Run() error {
	for {
		var status syscall.WaitStatus
		tid, err := syscall.Wait4(-1, &status, syscall.WALL, nil)
		if err != nil {
			return fmt.Errorf("%w: wait4: %v", ErrUnknownStop, err)
		}

		if status.Exited() {
			l.Log.WithField("tid", tid).Info("target exited")
			return nil
		}
		if !status.Stopped() {
			return fmt.Errorf("%w: tid=%d status=%#x", ErrUnknownStop, tid, uint32(status))
		}

		sig := status.StopSignal()
		switch sig {
		case syscall.SIGTRAP:
			l.handleTrap(tid)
		case syscall.SIGSTOP, signalStopEquivalent:
			l.Log.WithFields(logrus.Fields{"tid": tid, "signal": int(sig)}).Debug("swallowing attach/kernel stop")
			if err := syscall.PtraceCont(tid, 0); err != nil {
				l.Log.WithError(err).WithField("tid", tid).Warn("continue after stop signal failed")
			}
		default:
			l.Log.WithFields(logrus.Fields{"tid": tid, "signal": int(sig)}).Debug("forwarding signal")
			if err := syscall.PtraceCont(tid, int(sig)); err != nil {
				l.Log.WithError(err).WithField("tid", tid).Warn("continue with signal failed")
			}
		}
	}
}

// handleTrap processes a SIGTRAP stop: look up the breakpoint by rip-1,
// dispatch if matched, then restore/rewind/single-step/rearm/continue. An
// unmatched trap is passed through untouched.
func (l *Loop) handleTrap(tid int) {
	var regs syscall.PtraceRegs
	if err := syscall.PtraceGetRegs(tid, &regs); err != nil {
		l.Log.WithError(err).WithField("tid", tid).Warn("getregs failed on trap")
		_ = syscall.PtraceCont(tid, 0)
		return
	}

	addr, handler, ok := l.Table.Lookup(regs.Rip)
	if !ok {
		if err := syscall.PtraceCont(tid, 0); err != nil {
			l.Log.WithError(err).WithField("tid", tid).Warn("continue after unmapped trap failed")
		}
		return
	}

	l.Log.WithFields(logrus.Fields{"tid": tid, "address": fmt.Sprintf("%#x", addr)}).Debug("breakpoint hit")
	handler(tid, &regs)
	if l.AfterHit != nil {
		l.AfterHit()
	}

	if err := l.Table.Restore(tid, addr); err != nil {
		l.Log.WithError(err).WithField("tid", tid).Warn("restore failed")
	}

	regs.Rip--
	if err := syscall.PtraceSetRegs(tid, &regs); err != nil {
		l.Log.WithError(err).WithField("tid", tid).Warn("setregs failed")
	}

	if err := syscall.PtraceSingleStep(tid); err != nil {
		l.Log.WithError(err).WithField("tid", tid).Warn("single-step failed")
	} else {
		var status syscall.WaitStatus
		if _, err := syscall.Wait4(tid, &status, syscall.WALL, nil); err != nil {
			l.Log.WithError(err).WithField("tid", tid).Warn("wait after single-step failed")
		}
	}

	if err := l.Table.Rearm(tid, addr); err != nil {
		l.Log.WithError(err).WithField("tid", tid).Warn("rearm failed")
	}

	if err := syscall.PtraceCont(tid, 0); err != nil {
		l.Log.WithError(err).WithField("tid", tid).Warn("continue after trap failed")
	}
}
