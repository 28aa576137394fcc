// Command server runs a framelink server that echoes every frame back to
// the peer that sent it.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/Zereker/framelink"
	"github.com/Zereker/framelink/example/internal/zlog"
)

func main() {
	configPath := flag.String("config", "", "TOML configuration file")
	port := flag.Int("port", framelink.DefaultPort, "port to listen on")
	maxPending := flag.Int("max-pending", framelink.DefaultMaxPending, "maximum pending connections")
	level := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	flag.Parse()

	logger := zlog.NewConsole(os.Stderr, *level)

	cfg := framelink.DefaultConfig()
	if *configPath != "" {
		loaded, err := framelink.LoadConfig(*configPath)
		if err != nil {
			logger.Error("failed to load config", "path", *configPath, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Server.Port = *port
		case "max-pending":
			cfg.Server.MaxPending = *maxPending
		}
	})

	server := cfg.Server.NewServer(
		framelink.ServerLoggerOption(logger),
		framelink.OnAcceptOption(func(conn *framelink.Conn) {
			conn.AddListener(&echo{conn: conn, logger: logger})
		}),
	)

	if err := server.Start(); err != nil {
		logger.Error("failed to start server", "error", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down server...")
	if err := server.Stop(); err != nil {
		logger.Error("server stop error", "error", err)
	}
}

// echo sends every frame back on its connection.
type echo struct {
	conn   *framelink.Conn
	logger framelink.Logger
}

func (e *echo) OnReceive(payload []byte) {
	e.logger.Info("frame received", "remote_addr", e.conn.Addr(), "length", len(payload))
	if err := e.conn.Send(payload); err != nil {
		e.logger.Warn("echo failed", "remote_addr", e.conn.Addr(), "error", err)
	}
}

func (e *echo) OnError(code int, description string) {
	e.logger.Warn("client link lost", "remote_addr", e.conn.Addr(), "code", code, "description", description)
}
