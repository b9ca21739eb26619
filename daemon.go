package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"nextedit/client/suggestapi"
	"nextedit/logger"
	"nextedit/metrics"

	"github.com/neovim/go-client/nvim"
)

const metricsLogInterval = time.Minute

type Daemon struct {
	config      Config
	service     *suggestapi.Client
	telemetry   *metrics.Provider
	traceFile   *os.File
	listener    net.Listener
	socketPath  string
	pidPath     string
	clientCount int64
	ctx         context.Context
	cancel      context.CancelFunc
}

func NewDaemon(config Config) (*Daemon, error) {
	var traceFile *os.File
	if config.TracesEnabled {
		f, err := os.OpenFile(runtimePath("nextedit-traces.jsonl"), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("open trace file: %w", err)
		}
		traceFile = f
	}

	telemetry, err := metrics.Setup(metrics.ProviderConfig{
		EnableMetrics: config.MetricsEnabled,
		EnableTraces:  config.TracesEnabled,
		TraceWriter:   traceFile,
	})
	if err != nil {
		if traceFile != nil {
			traceFile.Close()
		}
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Daemon{
		config:     config,
		service:    suggestapi.NewClient(config.ServiceURL, config.APIKey, config.CompletionTimeout, telemetry.TracerProvider()),
		telemetry:  telemetry,
		traceFile:  traceFile,
		socketPath: getSocketPath(),
		pidPath:    getPidPath(),
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

func (d *Daemon) Start() error {
	d.writePidFile()
	defer d.removePidFile()

	if err := d.setupSocket(); err != nil {
		return err
	}
	defer d.cleanup()

	logger.Info("daemon listening on socket: %s", d.socketPath)

	d.setupShutdownHandling()

	go d.acceptConnections()
	go d.monitorIdleShutdown()
	if d.config.MetricsEnabled {
		go d.logMetrics()
	}

	<-d.ctx.Done()
	logger.Info("daemon shutting down...")
	d.service.Wait()
	d.flushMetrics()
	if err := d.telemetry.Shutdown(context.Background()); err != nil {
		logger.Warn("telemetry shutdown: %v", err)
	}
	if d.traceFile != nil {
		d.traceFile.Close()
	}
	return nil
}

func (d *Daemon) setupSocket() error {
	os.Remove(d.socketPath)

	listener, err := net.Listen("unix", d.socketPath)
	if err != nil {
		return err
	}
	d.listener = listener
	return nil
}

func (d *Daemon) setupShutdownHandling() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received shutdown signal")
		d.Stop()
	}()
}

func (d *Daemon) acceptConnections() {
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			select {
			case <-d.ctx.Done():
				return
			default:
				logger.Error("error accepting connection: %v", err)
				continue
			}
		}

		atomic.AddInt64(&d.clientCount, 1)
		logger.Info("new client connected, total clients: %d", atomic.LoadInt64(&d.clientCount))
		go d.handleConnection(conn)
	}
}

func (d *Daemon) handleConnection(conn net.Conn) {
	defer conn.Close()
	defer func() {
		atomic.AddInt64(&d.clientCount, -1)
		logger.Info("client disconnected, remaining clients: %d", atomic.LoadInt64(&d.clientCount))
	}()

	n, err := nvim.New(conn, conn, conn, log.Printf)
	if err != nil {
		logger.Error("error creating nvim client: %v", err)
		return
	}

	s := newSession(d.ctx, n, d.service, d.telemetry.Tracker(), d.config)
	if err := s.register(); err != nil {
		logger.Error("error registering handlers: %v", err)
		return
	}
	defer s.close()

	go func() {
		<-d.ctx.Done()
		n.Close()
	}()

	if err := n.Serve(); err != nil && err != io.EOF {
		logger.Error("error serving connection: %v", err)
	}
}

func (d *Daemon) monitorIdleShutdown() {
	// In debug mode, shut down as soon as no clients are connected
	if d.config.DebugImmediateShutdown {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-d.ctx.Done():
				return
			case <-ticker.C:
				if atomic.LoadInt64(&d.clientCount) == 0 {
					logger.Info("debug mode: no clients connected, shutting down daemon immediately")
					d.Stop()
					return
				}
			}
		}
	}

	idleTimer := time.NewTimer(30 * time.Second)
	defer idleTimer.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-idleTimer.C:
			if atomic.LoadInt64(&d.clientCount) == 0 {
				logger.Info("no clients connected for timeout period, shutting down daemon")
				d.Stop()
				return
			}
		}

		if atomic.LoadInt64(&d.clientCount) == 0 {
			idleTimer.Reset(5 * time.Second)
		} else {
			idleTimer.Reset(30 * time.Second)
		}
	}
}

func (d *Daemon) logMetrics() {
	ticker := time.NewTicker(metricsLogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.flushMetrics()
		}
	}
}

func (d *Daemon) flushMetrics() {
	summary, err := d.telemetry.Summary(context.Background())
	if err != nil {
		logger.Warn("metrics: %v", err)
		return
	}
	if summary != "" {
		logger.Info("metrics: %s", summary)
	}
}

func (d *Daemon) Stop() {
	if d.listener != nil {
		d.listener.Close()
	}
	d.cancel()
}

func (d *Daemon) cleanup() {
	os.Remove(d.socketPath)
}

func (d *Daemon) writePidFile() {
	pid := os.Getpid()
	if err := os.WriteFile(d.pidPath, []byte(strconv.Itoa(pid)), 0644); err != nil {
		logger.Warn("could not write PID file: %v", err)
	}
	logger.Info("server started with PID %d", pid)
}

func (d *Daemon) removePidFile() {
	if err := os.Remove(d.pidPath); err != nil && !os.IsNotExist(err) {
		logger.Warn("could not remove PID file: %v", err)
	}
}
