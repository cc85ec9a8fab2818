// terminal runs a VeloPOS terminal (POS or kitchen display) against the API.
//
// Usage:
//
//	terminal [-config terminal.yaml] run           Resolve, pair or log in, then keep the session alive
//	terminal [-config terminal.yaml] pair <code>   Pair this device with a 6-digit code
//	terminal [-config terminal.yaml] unbind        Remove the local device credential
//	terminal [-config terminal.yaml] status        Show the stored credential and check it
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/velopos/pos/internal/config"
	applog "github.com/velopos/pos/internal/log"
	"github.com/velopos/pos/internal/terminal"
	"github.com/velopos/pos/internal/terminal/backend"
	"github.com/velopos/pos/internal/terminal/feed"
	"github.com/velopos/pos/internal/terminal/settings"
	"github.com/velopos/pos/internal/terminal/tokenstore"
)

func main() {
	configPath := flag.String("config", "", "path to terminal.yaml")
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	_ = godotenv.Load(".env")

	cfg, err := config.LoadTerminal(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	logger := applog.NewWithWriter(os.Stderr, cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	term, store, err := newTerminal(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize terminal")
	}

	args := flag.Args()
	switch args[0] {
	case "run":
		err = run(ctx, term, os.Stdin, logger)
	case "pair":
		if len(args) != 2 {
			err = errors.New("usage: terminal pair <code>")
			break
		}
		err = pair(ctx, term, args[1])
	case "unbind":
		err = term.Unbind()
		if err == nil {
			fmt.Println("Device credential removed.")
		}
	case "status":
		err = status(ctx, store, backend.New(cfg.APIURL, cfg.RequestTimeout))
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: terminal [-config terminal.yaml] run | pair <code> | unbind | status")
}

func newTerminal(cfg *config.TerminalConfig, logger zerolog.Logger) (*terminal.Terminal, *tokenstore.Store, error) {
	store, err := tokenstore.Open(cfg.StateDir)
	if err != nil {
		return nil, nil, err
	}
	api := backend.New(cfg.APIURL, cfg.RequestTimeout)
	events := feed.New(cfg.APIURL, logger)
	term := terminal.New(api, events, store, logger, terminal.WithHeartbeatInterval(cfg.HeartbeatInterval))

	term.Settings().OnChange(func(s settings.Snapshot) {
		logger.Info().
			Bool("is_open", s.IsOpen).
			Bool("allow_dine_in", s.AllowDineIn).
			Bool("allow_take_out", s.AllowTakeOut).
			Float64("service_charge_percent", s.ServiceChargePercent).
			Str("order_type", s.OrderType).
			Msg("store settings updated")
	})
	return term, store, nil
}

func pair(ctx context.Context, term *terminal.Terminal, code string) error {
	if err := term.Pair(ctx, code); err != nil {
		return err
	}
	cred, _ := term.Credential()
	fmt.Printf("Paired with %s as %s.\n", cred.StoreName, cred.Role)
	return nil
}

func status(ctx context.Context, store *tokenstore.Store, api *backend.Client) error {
	cred, err := store.Load()
	if err != nil {
		if errors.Is(err, tokenstore.ErrNotFound) {
			fmt.Println("Not paired.")
			return nil
		}
		return err
	}

	fmt.Printf("Store:       %s (%s)\n", cred.StoreName, cred.StoreID)
	fmt.Printf("Role:        %s\n", cred.Role)
	fmt.Printf("Tenant mode: %s\n", cred.TenantMode)
	fmt.Printf("Device:      %s\n", cred.DeviceName)
	fmt.Printf("Paired at:   %s\n", cred.PairedAt.Format("2006-01-02 15:04"))
	if e, err := store.LoadEmployee(); err == nil {
		fmt.Printf("Employee:    %s (%s)\n", e.Name, e.Role)
	}

	valid, err := api.Check(ctx, cred.Token)
	switch {
	case err != nil:
		fmt.Printf("Backend:     unreachable (%v)\n", err)
	case valid:
		fmt.Println("Backend:     credential valid")
	default:
		fmt.Println("Backend:     credential revoked, re-pair required")
	}
	return nil
}

// run drives the screens from stdin until ctx is cancelled
func run(ctx context.Context, term *terminal.Terminal, in io.Reader, logger zerolog.Logger) error {
	go func() {
		for n := range term.Notices() {
			logger.Warn().Str("kind", string(n.Kind)).Msg(n.Message)
		}
	}()

	if err := term.Resolve(ctx); err != nil {
		return fmt.Errorf("%w (credentials kept, try again later)", err)
	}

	lines := readLines(in)
	for ctx.Err() == nil {
		if term.Screen() == terminal.ScreenPairing {
			code, ok := prompt(ctx, lines, "Pairing code: ")
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return terminal.ErrNotPaired
			}
			if err := pair(ctx, term, code); err != nil {
				fmt.Println(describe(err))
			}
			continue
		}

		done := make(chan error, 1)
		go func() { done <- term.Run(ctx) }()
		if err := session(ctx, term, lines, done); err != nil {
			return err
		}
	}
	return nil
}

// session handles PIN entry and employee commands while Run keeps the device session alive.
// It returns nil when the device went back to pairing or ctx ended.
func session(ctx context.Context, term *terminal.Terminal, lines <-chan string, done <-chan error) error {
	for {
		if lines != nil {
			if term.Screen() == terminal.ScreenEmployeeLogin {
				fmt.Print("Employee PIN: ")
			} else {
				fmt.Print("(logout | unbind | status) > ")
			}
		}

		var line string
		select {
		case err := <-done:
			fmt.Println()
			// A logout that lands before Run starts leaves the terminal unpaired.
			if errors.Is(err, terminal.ErrLoggedOut) || errors.Is(err, terminal.ErrNotPaired) {
				return nil
			}
			return err
		case l, ok := <-lines:
			if !ok {
				// Without stdin the session keeps running until a signal.
				lines = nil
				continue
			}
			line = strings.TrimSpace(l)
		}

		switch {
		case term.Screen() == terminal.ScreenEmployeeLogin:
			if err := term.LoginEmployee(ctx, line); err != nil {
				fmt.Println(describe(err))
				continue
			}
			e, _ := term.Employee()
			fmt.Printf("Logged in as %s on %s.\n", e.Name, term.Screen())
		case line == "logout":
			if err := term.LogoutEmployee(); err != nil {
				fmt.Println(describe(err))
			}
		case line == "unbind":
			if err := term.Unbind(); err != nil {
				fmt.Println(describe(err))
			}
		case line == "status":
			s := term.Settings().Snapshot()
			fmt.Printf("connectivity=%s open=%t order_type=%s service_charge=%.0f%%\n",
				term.Connectivity(), s.IsOpen, s.OrderType, s.ServiceChargePercent)
		}
	}
}

func prompt(ctx context.Context, lines <-chan string, label string) (string, bool) {
	fmt.Print(label)
	select {
	case <-ctx.Done():
		return "", false
	case line, ok := <-lines:
		if !ok {
			return "", false
		}
		return strings.TrimSpace(line), true
	}
}

func readLines(in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}

func describe(err error) string {
	switch {
	case errors.Is(err, backend.ErrInvalidCodeFormat):
		return "The pairing code must be 6 digits."
	case errors.Is(err, backend.ErrInvalidPairingCode):
		return "Invalid or expired pairing code."
	case errors.Is(err, backend.ErrInvalidPIN):
		return "Wrong PIN."
	case errors.Is(err, backend.ErrInvalidToken):
		return "This device is no longer paired."
	}
	return "Error: " + err.Error()
}
