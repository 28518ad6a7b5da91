package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/logserver/internal/archive"
	"github.com/tinytelemetry/logserver/internal/console"
	"github.com/tinytelemetry/logserver/internal/dispatch"
	"github.com/tinytelemetry/logserver/internal/forward"
	"github.com/tinytelemetry/logserver/internal/httpserver"
	"github.com/tinytelemetry/logserver/internal/inetaddr"
	"github.com/tinytelemetry/logserver/internal/metrics"
	"github.com/tinytelemetry/logserver/internal/udpserver"
)

var shutdownSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGQUIT}

// runServer binds the listener, wires the dispatcher and blocks until a
// termination signal. Any error before the receive loop starts is a fatal
// configuration error.
func runServer(cfg appConfig) error {
	cleanupLogger := configureRuntimeLogger(cfg.RuntimeLog)
	defer cleanupLogger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	resolver := inetaddr.NewResolver(nil)
	bindAddr, ok := resolver.ResolveInput(ctx, cfg.ServerAddress)
	if !ok {
		return fmt.Errorf("invalid server-address: %q", cfg.ServerAddress)
	}

	m := metrics.New()
	cons := console.New(os.Stdout, console.Config{Location: cfg.location})

	listener := udpserver.NewServer(udpserver.ServerConfig{
		BufferSize:     cfg.BufferSize,
		ReceiveTimeout: cfg.ReceiveTimeout,
		NonBlocking:    cfg.NonBlocking,
		ReadBuffer:     cfg.ReadBuffer,
		Observer:       m,
	})
	if err := listener.Bind(bindAddr, cfg.ServerPort); err != nil {
		return err
	}

	var (
		recorders []dispatch.Recorder
		store     *archive.Store
		retention *archive.RetentionCleaner
	)
	abort := func(err error) error {
		retention.Stop()
		for _, r := range recorders {
			r.Close()
		}
		listener.Close()
		return err
	}

	if cfg.ArchiveEnabled {
		s, err := archive.NewStore(cfg.ArchivePath, archive.StoreConfig{
			BatchSize: cfg.ArchiveBatchSize,
			Location:  cfg.location,
		})
		if err != nil {
			return abort(fmt.Errorf("failed to initialize archive: %w", err))
		}
		store = s
		recorders = append(recorders, s)
		retention = archive.NewRetentionCleaner(s, archive.RetentionConfig{RetentionDays: cfg.ArchiveRetentionDays})
	}
	if cfg.ForwardEnabled {
		f, err := forward.New(cfg.ForwardEndpoint, forwardConfig(cfg))
		if err != nil {
			return abort(fmt.Errorf("failed to initialize forwarder: %w", err))
		}
		recorders = append(recorders, f)
	}

	d, err := dispatch.New(ctx, dispatch.Config{
		Sources:         cfg.Sources,
		JournalDir:      cfg.ServerLogDir,
		Resolver:        resolver,
		Listener:        listener,
		Console:         cons,
		Metrics:         m,
		Recorders:       recorders,
		Location:        cfg.location,
		SourceMaxLines:  cfg.SourceMaxLines,
		JournalMaxLines: cfg.JournalMaxLines,
		FlushInterval:   cfg.FlushInterval,
	})
	if err != nil {
		return abort(err)
	}

	if cfg.APIEnabled {
		var ms httpserver.MessageStore
		if store != nil {
			ms = store
		}
		apiServer := httpserver.NewServer(cfg.APIAddr, d, ms, m.Handler())
		if err := apiServer.Start(); err != nil {
			retention.Stop()
			d.Shutdown()
			return fmt.Errorf("failed to start API server: %w", err)
		}
		defer apiServer.Stop()
	}

	printStartupBanner(cfg, d)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, shutdownSignals...)
	defer signal.Stop(sigCh)

	go func() {
		sig, ok := <-sigCh
		if !ok {
			return
		}
		cons.Info("Received %s, shutting down (send again to force)", sig)
		cancel()

		deadline := time.NewTimer(10 * time.Second)
		defer deadline.Stop()
		select {
		case <-sigCh:
			fmt.Println("\nForce shutdown.")
		case <-deadline.C:
			fmt.Println("Shutdown timed out, forcing exit.")
		}
		os.Exit(1)
	}()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		return listener.Serve(gctx, d.Handle)
	})

	var flushed int
	g.Go(func() error {
		<-gctx.Done()
		retention.Stop()
		var err error
		flushed, err = d.Shutdown()
		return err
	})

	err = g.Wait()
	log.Printf("server: shutdown flushed %d log buffers", flushed)
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func forwardConfig(cfg appConfig) forward.ForwarderConfig {
	return forward.ForwarderConfig{
		BatchSize: cfg.ForwardBatchSize,
		Timeout:   cfg.ForwardTimeout,
		Location:  cfg.location,
	}
}

// configureRuntimeLogger sends diagnostics to path when set, else stderr.
func configureRuntimeLogger(path string) func() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.SetOutput(os.Stderr)
	if path == "" {
		return func() {}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		log.Printf("server: runtime log directory: %v", err)
		return func() {}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("server: runtime log: %v", err)
		return func() {}
	}

	log.SetOutput(f)
	return func() {
		log.SetOutput(os.Stderr)
		_ = f.Close()
	}
}

func printStartupBanner(cfg appConfig, d *dispatch.Dispatcher) {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	bold := lipgloss.NewStyle().Bold(true)

	check := green.Render("●")
	dot := dim.Render("●")

	var lines []string
	lines = append(lines, "")
	lines = append(lines, "    "+cyan.Bold(true).Render("logserver")+" "+dim.Render("v"+version))
	lines = append(lines, "")

	separator := dim.Render("    ─────────────────────────────────")
	lines = append(lines, separator)
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Listener"))
	lines = append(lines, "")
	listen := cfg.ServerAddress + ":" + strconv.Itoa(cfg.ServerPort)
	lines = append(lines, fmt.Sprintf("    %s  UDP            %s", check, cyan.Render(listen)))
	lines = append(lines, fmt.Sprintf("    %s  Journal        %s", check, dim.Render(shortenPath(cfg.ServerLogDir))))
	if cfg.APIEnabled {
		lines = append(lines, fmt.Sprintf("    %s  HTTP API       %s", check, cyan.Render(cfg.APIAddr)))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  HTTP API       %s", dot, dim.Render("disabled")))
	}
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Sources"))
	lines = append(lines, "")
	sources := d.Sources()
	if len(sources) == 0 {
		lines = append(lines, fmt.Sprintf("    %s  %s", dot, yellow.Render("none configured, every sender is unknown")))
	}
	for _, src := range sources {
		mode := "raw"
		if src.Parse {
			mode = "parsed"
		}
		lines = append(lines, fmt.Sprintf("    %s  %-15s %s %s", check, cyan.Render(src.Address), dim.Render(shortenPath(src.Dir)), dim.Render("("+mode+")")))
	}
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Outputs"))
	lines = append(lines, "")
	if cfg.ArchiveEnabled {
		lines = append(lines, fmt.Sprintf("    %s  Archive        %s", check, dim.Render(shortenPath(cfg.ArchivePath))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Archive        %s", dot, dim.Render("disabled")))
	}
	if cfg.ForwardEnabled {
		lines = append(lines, fmt.Sprintf("    %s  OTLP Forward   %s", check, cyan.Render(cfg.ForwardEndpoint)))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  OTLP Forward   %s", dot, dim.Render("disabled")))
	}
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Config"))
	lines = append(lines, "")
	if cfg.ConfigPath != "" {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", check, dim.Render(shortenPath(cfg.ConfigPath))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", dot, dim.Render("default (no file)")))
	}
	lines = append(lines, fmt.Sprintf("    %s  Timezone       %s", check, dim.Render(cfg.Timezone)))

	lines = append(lines, "")
	lines = append(lines, separator)
	lines = append(lines, "")
	lines = append(lines, "    "+dim.Render("Press ")+yellow.Render("Ctrl+C")+dim.Render(" to stop"))
	lines = append(lines, "")

	fmt.Println(strings.Join(lines, "\n"))
}

func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
