// fsapictl is an interactive shell for a single FSAPI receiver.
//
// It talks to the receiver directly over HTTP, without the bridge or MQTT,
// which makes it the quickest way to check a PIN, list a receiver's modes or
// read an arbitrary node while writing a bridge config.
//
//	fsapictl -device http://192.168.1.40:80/device -pin 1234
//	fsapictl -discover
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chzyer/readline"

	"github.com/nerrad567/gray-logic-fsapi/internal/discovery"
	"github.com/nerrad567/gray-logic-fsapi/internal/fsapi"
	"github.com/nerrad567/gray-logic-fsapi/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-fsapi/internal/infrastructure/logging"
)

var version = "dev"

// options are the command-line flags.
type options struct {
	deviceURL string
	pin       string
	timeout   time.Duration
	intrusive bool
	discover  bool
	wait      time.Duration
	localAddr string
	logLevel  string
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("fsapictl", flag.ContinueOnError)
	fs.StringVar(&opts.deviceURL, "device", "", "Receiver bootstrap URL, e.g. http://192.168.1.40:80/device")
	fs.StringVar(&opts.pin, "pin", "1234", "Receiver remote-control PIN")
	fs.DurationVar(&opts.timeout, "timeout", fsapi.DefaultTimeout, "Per-request timeout")
	fs.BoolVar(&opts.intrusive, "intrusive", false, "Open a session for reads too (takes control from other remotes)")
	fs.BoolVar(&opts.discover, "discover", false, "Search the LAN for receivers and exit")
	fs.DurationVar(&opts.wait, "wait", discovery.DefaultWait, "How long -discover listens for answers")
	fs.StringVar(&opts.localAddr, "local-addr", "", "Interface address for -discover")
	fs.StringVar(&opts.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if !opts.discover && opts.deviceURL == "" {
		return options{}, fmt.Errorf("-device is required unless -discover is given")
	}
	return opts, nil
}

func newLogger(w io.Writer, level string) *logging.Logger {
	return logging.NewWithWriter(w, config.LoggingConfig{Level: level, Format: "text"}, "fsapictl", version)
}

func run(ctx context.Context, opts options) error {
	if opts.discover {
		scanner := discovery.NewScanner(discovery.Options{
			LocalAddr: opts.localAddr,
			Logger:    newLogger(os.Stderr, opts.logLevel),
		})
		return runDiscover(ctx, scanner, opts.wait, os.Stdout)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "fsapi> ",
		HistoryFile:     historyFile(),
		AutoComplete:    completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	client, err := fsapi.New(fsapi.Config{
		DeviceURL: opts.deviceURL,
		PIN:       opts.pin,
		Timeout:   opts.timeout,
		Intrusive: opts.intrusive,
		Logger:    newLogger(rl.Stderr(), opts.logLevel),
	})
	if err != nil {
		return err
	}

	sh := newShell(client, rl.Stdout())
	defer sh.close()

	fmt.Fprintf(rl.Stdout(), "Connected to %s (type 'help' for commands)\n", client.DeviceURL())

	for {
		if ctx.Err() != nil {
			return nil
		}

		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if err != nil {
			return nil
		}

		if quit := sh.execute(ctx, line); quit {
			return nil
		}
	}
}

// runDiscover prints every receiver that answers an SSDP search.
func runDiscover(ctx context.Context, d bridgeDiscoverer, wait time.Duration, out io.Writer) error {
	found, err := d.Search(ctx, wait)
	if err != nil {
		return err
	}
	if len(found) == 0 {
		fmt.Fprintln(out, "No receivers found.")
		return nil
	}
	for _, r := range found {
		server := r.Server
		if server == "" {
			server = "-"
		}
		fmt.Fprintf(out, "%-40s %s  %s\n", r.DeviceURL, r.USN, server)
	}
	return nil
}

// bridgeDiscoverer is satisfied by *discovery.Scanner.
type bridgeDiscoverer interface {
	Search(ctx context.Context, wait time.Duration) ([]discovery.Receiver, error)
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home + "/.fsapictl_history"
}

func completer() *readline.PrefixCompleter {
	items := make([]readline.PrefixCompleterInterface, 0, len(shellCommands))
	for _, c := range shellCommands {
		items = append(items, readline.PcItem(c.name))
	}
	return readline.NewPrefixCompleter(items...)
}
