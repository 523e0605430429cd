//go:build linux

// Command bdswatch attaches to a running Bedrock Dedicated Server process,
// traces a fixed set of hardcoded hook addresses, and publishes a live JSON
// status feed over stdout and, optionally, HTTP and gRPC.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/brightfern/bdswatch/internal/config"
	"github.com/brightfern/bdswatch/internal/dispatch"
	"github.com/brightfern/bdswatch/internal/lockfile"
	"github.com/brightfern/bdswatch/internal/ptrace"
	"github.com/brightfern/bdswatch/internal/publish"
	"github.com/brightfern/bdswatch/internal/report"
	"github.com/brightfern/bdswatch/internal/shadow"
	"github.com/brightfern/bdswatch/internal/transport/grpcfeed"
	"github.com/brightfern/bdswatch/internal/transport/httpfeed"
	"github.com/brightfern/bdswatch/internal/transport/stdout"
	"github.com/brightfern/bdswatch/internal/vmem"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to an optional YAML config file")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: bdswatch [-config path] <pid>")
		return 2
	}
	pid, err := strconv.Atoi(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid pid %q: %v\n", flag.Arg(0), err)
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		return 1
	}

	log := logrus.New()
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parsing logLevel: %v\n", err)
		return 1
	}
	log.SetLevel(level)
	entry := logrus.NewEntry(log).WithField("pid", pid)

	lock, err := lockfile.Acquire(cfg.LockDir, pid)
	if err != nil {
		entry.WithError(err).Error("acquiring lock, another instance may already be attached")
		return 1
	}
	defer lock.Release()

	// internal/ptrace requires every ptrace(2) call for this tracee to come
	// from the same OS thread that attached; pin run()'s goroutine to one
	// for the remainder of the trace before the first Ptrace* call.
	runtime.LockOSThread()

	if err := ptrace.AttachAllThreads(pid, entry); err != nil {
		entry.WithError(err).Error("attach failed")
		return 1
	}
	entry.Info("attached to all threads")

	level0 := shadow.NewLevel()
	mem := vmem.New(pid)
	handlers := dispatch.New(level0, mem, entry)
	table := ptrace.NewTable(handlers.HookSpecs())
	for _, armErr := range table.ArmAll(pid) {
		entry.WithError(armErr).Warn("failed to arm a breakpoint")
	}

	reporter := report.New()

	var sinks []publish.Sink
	if cfg.Transports.Stdout {
		sinks = append(sinks, stdout.New(os.Stdout))
	}

	var group errgroup.Group
	var httpSrv *http.Server
	var grpcSink *grpcfeed.Sink
	var grpcServer *grpc.Server

	if cfg.Transports.HTTP.Enabled {
		httpSink := httpfeed.New(entry.WithField("transport", "http"))
		sinks = append(sinks, httpSink)
		lis, err := net.Listen("tcp", cfg.Transports.HTTP.Addr)
		if err != nil {
			entry.WithError(err).Error("http listen failed")
			return 1
		}
		httpSrv = &http.Server{Handler: httpSink.Router()}
		group.Go(func() error {
			if err := httpSrv.Serve(lis); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})
	}

	if cfg.Transports.GRPC.Enabled {
		grpcSink = grpcfeed.New(entry.WithField("transport", "grpc"))
		sinks = append(sinks, grpcSink)
		lis, err := net.Listen("tcp", cfg.Transports.GRPC.Addr)
		if err != nil {
			entry.WithError(err).Error("grpc listen failed")
			return 1
		}
		grpcServer = grpc.NewServer()
		grpcfeed.RegisterFeedServer(grpcServer, grpcSink)
		group.Go(func() error { return grpcServer.Serve(lis) })
	}

	publisher := publish.New(64, entry.WithField("component", "publisher"), sinks...)
	go publisher.Run()

	loop := ptrace.NewLoop(table, func() {
		payload, changed := reporter.Render(level0)
		if changed {
			publisher.Enqueue(payload)
		}
	}, entry.WithField("component", "tracer"))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		entry.Info("signal received, detaching")
		_ = syscall.Kill(pid, syscall.SIGCONT)
	}()

	runErr := loop.Run()
	publisher.Close()
	publisher.Wait()
	if httpSrv != nil {
		_ = httpSrv.Shutdown(context.Background())
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	_ = group.Wait()

	if runErr != nil {
		entry.WithError(runErr).Error("tracer loop exited with error")
		return 1
	}
	entry.Info("target exited, shutting down cleanly")
	return 0
}
