// Консольный софтфон: регистрируется на АТС и управляет звонками командами
// со стандартного ввода.
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	ossignal "os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/arzzra/web_phone/pkg/history"
	"github.com/arzzra/web_phone/pkg/logger"
	"github.com/arzzra/web_phone/pkg/phone"
	"github.com/arzzra/web_phone/pkg/registry"
	"github.com/arzzra/web_phone/pkg/signal"
	"github.com/arzzra/web_phone/pkg/sipua"
	"github.com/arzzra/web_phone/pkg/storage"
	"github.com/dimiro1/banner"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const version = "dev"

func printBanner() {
	tpl := "{{ .Title \"WebPhone\" \"\" 0 }}\nVersion: " + version + "\n"
	banner.Init(os.Stdout, true, true, bytes.NewBufferString(tpl))
}

func main() {
	configPath := flag.String("config", "", "path to config file (yaml, toml or json)")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	if err := run(*configPath, *debug); err != nil {
		fmt.Fprintln(os.Stderr, "softphone:", err)
		os.Exit(1)
	}
}

func run(configPath string, debug bool) error {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return err
	}

	log := newLogger(cfg.Log, debug)
	logger.SetDefault(log)
	ctx, stop := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	printBanner()

	kv, closeKV, err := openStorage(cfg.History)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeKV(); err != nil {
			log.LogError(context.Background(), err, "failed to close history storage")
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	registry.SetDefault(registry.New(
		sipua.Factory(sipua.Options{
			UserAgent:      cfg.SIPUA.UserAgent,
			RegisterExpiry: cfg.SIPUA.RegisterExpiry,
			MediaHost:      cfg.SIPUA.MediaHost,
			Logger:         log,
		}),
		registry.WithLogger(log),
		registry.WithMetrics(reg),
	))

	hub := signal.NewHub()
	opts := phone.DefaultOptions()
	opts.DisablePersist = !cfg.History.Persist
	opts.HistoryKey = cfg.History.Key
	opts.MaxHistoryItems = cfg.History.MaxItems
	opts.Storage = kv
	opts.Signals = hub
	opts.Logger = log
	opts.Metrics = phone.NewMetrics(reg, phone.DefaultMetricsConfig())

	out := os.Stdout
	m := phone.NewManager(cfg.SIP, consoleEvents(out), opts)
	m.Initialize()
	defer m.Destroy()

	if cfg.Metrics.Listen != "" {
		srv := &http.Server{Addr: cfg.Metrics.Listen, Handler: metricsHandler(reg), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.LogError(ctx, err, "metrics server failed")
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
		log.Info(ctx, "metrics listening", logger.String("addr", cfg.Metrics.Listen))
	}

	c := &console{phone: m, hub: hub, out: out}
	fmt.Fprintln(out, helpText)
	return c.run(ctx, os.Stdin)
}

func newLogger(cfg LogConfig, debug bool) *logger.ZeroLogger {
	var l *logger.ZeroLogger
	if cfg.Format == "json" {
		l = logger.New(os.Stderr)
	} else {
		l = logger.NewConsole(os.Stderr)
	}
	level, ok := logger.ParseLevel(cfg.Level)
	if !ok {
		level = logger.LevelInfo
	}
	if debug {
		level = logger.LevelDebug
	}
	l.SetLevel(level)
	return l
}

// openStorage открывает хранилище истории и возвращает функцию закрытия
func openStorage(cfg HistoryConfig) (storage.KV, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Backend {
	case "memory":
		return storage.NewMemoryStore(), noop, nil
	case "file":
		fs, err := storage.NewFileStore(cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open history dir: %w", err)
		}
		return fs, noop, nil
	case "sqlite":
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create history dir: %w", err)
		}
		db, err := storage.OpenSQLite(filepath.Join(cfg.Path, "webphone.db"))
		if err != nil {
			return nil, nil, fmt.Errorf("open history db: %w", err)
		}
		return db, db.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown history backend %q", cfg.Backend)
}

func metricsHandler(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return mux
}

// consoleEvents печатает изменения состояния телефона
func consoleEvents(out *os.File) phone.Events {
	return phone.Events{
		OnStatusChange: func(s phone.Status) {
			fmt.Fprintf(out, "* call status: %s\n", s)
		},
		OnConnectionChange: func(s phone.ConnectionStatus) {
			fmt.Fprintf(out, "* connection: %s\n", s)
		},
		OnRegistered: func() {
			fmt.Fprintln(out, "* registered")
		},
		OnRegistrationFailed: func(cause string) {
			fmt.Fprintf(out, "* registration failed: %s\n", cause)
		},
		OnIncomingCall: func(number, name string) {
			if name != "" {
				number = name + " <" + number + ">"
			}
			fmt.Fprintf(out, "* incoming call from %s (answer/reject)\n", number)
		},
		OnCallEnd: func(number string, duration int, outcome history.Status) {
			fmt.Fprintf(out, "* call with %s %s after %ds\n", number, outcome, duration)
		},
	}
}
