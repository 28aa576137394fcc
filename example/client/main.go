// Command client is an interactive framelink client. Each line typed is
// sent as one frame; received frames are printed as text.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Zereker/framelink"
	"github.com/Zereker/framelink/example/internal/zlog"
	"github.com/chzyer/readline"
)

const help = `commands:
  /connect      open the connection
  /disconnect   close the connection
  /status       show the connection state
  /quit         leave
anything else is sent as one frame`

func main() {
	configPath := flag.String("config", "", "TOML configuration file")
	host := flag.String("host", framelink.DefaultHost, "server host")
	port := flag.Int("port", framelink.DefaultPort, "server port")
	level := flag.String("log-level", "warn", "log level (debug, info, warn, error)")
	flag.Parse()

	cfg := framelink.DefaultConfig()
	if *configPath != "" {
		loaded, err := framelink.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "host":
			cfg.Client.Host = *host
		case "port":
			cfg.Client.Port = *port
		}
	})

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "framelink> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "/quit",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("/connect"),
			readline.PcItem("/disconnect"),
			readline.PcItem("/status"),
			readline.PcItem("/quit"),
		),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create readline: %v\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	out := rl.Stdout()
	client := cfg.Client.NewClient(
		framelink.LoggerOption(zlog.NewConsole(rl.Stderr(), *level)),
		framelink.ListenerOption(&framelink.ListenerFuncs{
			Receive: func(payload []byte) {
				fmt.Fprintf(out, "<< %s\n", payload)
			},
			Error: func(code int, description string) {
				fmt.Fprintf(out, "!! link lost (%d): %s\n", code, description)
			},
		}),
	)
	defer client.Disconnect()

	connect(out, client)

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			if errors.Is(err, io.EOF) {
				return
			}
			fmt.Fprintf(os.Stderr, "readline: %v\n", err)
			return
		}

		line = strings.TrimSpace(line)
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return
		case "/help":
			fmt.Fprintln(out, help)
		case "/connect":
			connect(out, client)
		case "/disconnect":
			client.Disconnect()
			client.Wait()
			fmt.Fprintln(out, "disconnected")
		case "/status":
			fmt.Fprintf(out, "%s %s\n", client.Addr(), client.State())
		default:
			if err := client.SendString(line); err != nil {
				fmt.Fprintf(out, "send failed: %v\n", err)
			}
		}
	}
}

func connect(out io.Writer, client *framelink.Client) {
	if err := client.Connect(context.Background()); err != nil {
		fmt.Fprintf(out, "connect failed: %v\n", err)
		return
	}
	fmt.Fprintf(out, "connected to %s\n", client.Addr())
}
