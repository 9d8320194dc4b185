package main

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/sweepbox/sweepbox/internal/announcer"
	"github.com/sweepbox/sweepbox/internal/bridge"
	"github.com/sweepbox/sweepbox/internal/config"
	"github.com/sweepbox/sweepbox/internal/purge"
	"github.com/sweepbox/sweepbox/internal/report"
	"github.com/sweepbox/sweepbox/internal/scan"
	"github.com/sweepbox/sweepbox/internal/session"
	"github.com/sweepbox/sweepbox/internal/tui"
)

const configEnvVar = "SWEEPBOX_CONFIG"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:           "sweepbox",
		Usage:          "find and purge bulk senders in an IMAP mailbox",
		DefaultCommand: "tui",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to YAML config file (or set " + configEnvVar + ")"},
			&cli.StringFlag{Name: "env-file", Value: ".env", Usage: "dotenv file loaded before reading credentials"},
		},
		Commands: []*cli.Command{
			tuiCommand(),
			scanCommand(),
			purgeCommand(),
			watchCommand(),
		},
	}
}

func folderFlag() cli.Flag {
	return &cli.StringFlag{Name: "folder", Aliases: []string{"f"}, Usage: "mailbox folder to operate on"}
}

func depthFlag() cli.Flag {
	return &cli.IntFlag{Name: "depth", Usage: "only scan the N most recent messages (0 = all)"}
}

func concurrencyFlag() cli.Flag {
	return &cli.IntFlag{Name: "concurrency", Usage: "parallel scan sessions"}
}

func tuiCommand() *cli.Command {
	return &cli.Command{
		Name:  "tui",
		Usage: "interactive triage (the default)",
		Flags: []cli.Flag{folderFlag(), depthFlag(), concurrencyFlag()},
		Action: func(c *cli.Context) error {
			cfg, err := setup(c)
			if err != nil {
				return err
			}
			logger, closeLogs, err := buildLogger(cfg, true)
			if err != nil {
				return err
			}
			defer closeLogs()

			// Env credentials are optional here; the login form covers the rest.
			var account *config.Account
			if acc, err := config.AccountFromEnv(); err == nil {
				account = &acc
			}

			b, _, err := buildBridge(logger, cfg.Concurrency)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer cancel()

			appModel := tui.NewAppModel(ctx, cancel, b, cfg, account)
			p := tea.NewProgram(&appModel, tea.WithAltScreen())
			finalModel, err := p.Run()
			if err != nil {
				return err
			}
			if m, ok := finalModel.(*tui.AppModel); ok && m.Err != nil {
				return m.Err
			}
			return nil
		},
	}
}

func scanCommand() *cli.Command {
	return &cli.Command{
		Name:  "scan",
		Usage: "tally senders and write a report",
		Flags: []cli.Flag{
			folderFlag(),
			depthFlag(),
			concurrencyFlag(),
			&cli.IntFlag{Name: "top", Usage: "limit the report to the N busiest senders (0 = all)"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "report destination (default stdout)"},
			&cli.StringFlag{Name: "format", Value: "csv", Usage: "report format: csv or json"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := setup(c)
			if err != nil {
				return err
			}
			format, err := report.ParseFormat(c.String("format"))
			if err != nil {
				return err
			}
			logger, closeLogs, err := buildLogger(cfg, false)
			if err != nil {
				return err
			}
			defer closeLogs()

			creds, err := credsFromEnv()
			if err != nil {
				return err
			}
			b, _, err := buildBridge(logger, cfg.Concurrency)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := b.StartScan(ctx, creds, cfg.Folder, cfg.ScanDepth); err != nil {
				return err
			}
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case event := <-b.Events():
					switch e := event.(type) {
					case bridge.ScanProgress:
						logger.Info("scan progress", "label", e.Label, "percent", int(e.Fraction*100))
					case bridge.ScanError:
						return errors.New(e.Message)
					case bridge.ScanComplete:
						tallies := report.Top(e.Senders, c.Int("top"))
						if err := writeReport(c.String("output"), format, tallies); err != nil {
							return err
						}
						announce(logger, "scan", cfg.Folder, e.TotalMessages)
						return nil
					}
				}
			}
		},
	}
}

func purgeCommand() *cli.Command {
	return &cli.Command{
		Name:  "purge",
		Usage: "remove every message from the given senders",
		Flags: []cli.Flag{
			folderFlag(),
			&cli.StringSliceFlag{Name: "sender", Aliases: []string{"s"}, Required: true, Usage: "sender address to purge; repeatable"},
			&cli.StringFlag{Name: "mode", Value: "trash", Usage: "trash moves to the provider trash folder, permanent expunges"},
			&cli.BoolFlag{Name: "dry-run", Usage: "report match counts without making changes"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := setup(c)
			if err != nil {
				return err
			}
			mode, err := purge.ParseMode(c.String("mode"))
			if err != nil {
				return err
			}
			logger, closeLogs, err := buildLogger(cfg, false)
			if err != nil {
				return err
			}
			defer closeLogs()

			creds, err := credsFromEnv()
			if err != nil {
				return err
			}
			b, deleter, err := buildBridge(logger, cfg.Concurrency)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			senders := c.StringSlice("sender")
			if c.Bool("dry-run") {
				total := 0
				for _, address := range senders {
					count, err := deleter.CountSender(ctx, creds, cfg.Folder, address)
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "Dry run: would purge %d messages from %s\n", count, address)
					total += count
				}
				fmt.Fprintf(c.App.Writer, "Dry run: %d messages total\n", total)
				return nil
			}

			if err := b.StartDelete(ctx, creds, cfg.Folder, senders, mode); err != nil {
				return err
			}
			failures := 0
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case event := <-b.Events():
					switch e := event.(type) {
					case bridge.DeleteProgress:
						logger.Info("purge progress", "label", e.Label, "percent", int(e.Fraction*100))
					case bridge.DeleteError:
						failures++
						fmt.Fprintln(c.App.ErrWriter, e.Message)
					case bridge.DeleteComplete:
						fmt.Fprintf(c.App.Writer, "Removed %d messages from %d senders\n", e.TotalRemoved, len(e.Removed))
						announce(logger, "purge", cfg.Folder, e.TotalRemoved)
						if failures > 0 {
							return cli.Exit(fmt.Sprintf("%d of %d senders failed", failures, len(senders)), 1)
						}
						return nil
					}
				}
			}
		},
	}
}

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "periodically rescan and log the busiest senders",
		Flags: []cli.Flag{
			folderFlag(),
			depthFlag(),
			concurrencyFlag(),
			&cli.DurationFlag{Name: "every", Value: 6 * time.Hour, Usage: "time between scans"},
			&cli.IntFlag{Name: "top", Value: 10, Usage: "senders to log per scan"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := setup(c)
			if err != nil {
				return err
			}
			logger, closeLogs, err := buildLogger(cfg, false)
			if err != nil {
				return err
			}
			defer closeLogs()

			creds, err := credsFromEnv()
			if err != nil {
				return err
			}
			b, _, err := buildBridge(logger, cfg.Concurrency)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			runScan := func() {
				if err := b.StartScan(ctx, creds, cfg.Folder, cfg.ScanDepth); err != nil {
					logger.Warn("scan not started", "error", err)
					return
				}
				for {
					select {
					case <-ctx.Done():
						return
					case event := <-b.Events():
						switch e := event.(type) {
						case bridge.ScanProgress:
							logger.Debug("scan progress", "label", e.Label)
						case bridge.ScanError:
							// Transient failures must not kill the watch loop.
							logger.Warn("scan failed", "message", e.Message)
							return
						case bridge.ScanComplete:
							for _, tally := range report.Top(e.Senders, c.Int("top")) {
								logger.Info("sender tally", "sender", tally.Address, "count", tally.Count)
							}
							logger.Info("watch scan complete", "folder", cfg.Folder, "total_messages", e.TotalMessages, "senders", len(e.Senders))
							announce(logger, "scan", cfg.Folder, e.TotalMessages)
							return
						}
					}
				}
			}

			runScan()
			ticker := time.NewTicker(c.Duration("every"))
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					logger.Info("watch stopped")
					return nil
				case <-ticker.C:
					runScan()
				}
			}
		},
	}
}

// setup loads the env file, resolves settings from flags over config over
// defaults, and validates the result.
func setup(c *cli.Context) (config.Settings, error) {
	if err := loadEnvFile(c.String("env-file")); err != nil {
		return config.Settings{}, err
	}

	cfg := config.Defaults()
	path := c.String("config")
	if path == "" {
		path = os.Getenv(configEnvVar)
	}
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return config.Settings{}, err
		}
		cfg = loaded
	}

	if c.IsSet("folder") {
		cfg.Folder = c.String("folder")
	}
	if c.IsSet("depth") {
		cfg.ScanDepth = c.Int("depth")
	}
	if c.IsSet("concurrency") {
		cfg.Concurrency = c.Int("concurrency")
	}

	if err := config.Validate(cfg); err != nil {
		return config.Settings{}, err
	}
	return cfg, nil
}

func loadEnvFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

// buildLogger keeps interactive sessions quiet on the terminal; the TUI owns
// the screen, so logs go to the configured file or nowhere.
func buildLogger(cfg config.Settings, interactive bool) (*slog.Logger, func(), error) {
	if !interactive {
		return slog.New(slog.NewJSONHandler(os.Stderr, nil)), func() {}, nil
	}
	if cfg.LogFile == "" {
		return slog.New(slog.NewJSONHandler(io.Discard, nil)), func() {}, nil
	}
	file, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return slog.New(slog.NewJSONHandler(file, nil)), func() { _ = file.Close() }, nil
}

func buildBridge(logger *slog.Logger, concurrency int) (*bridge.Bridge, *purge.Deleter, error) {
	factoryOpts := []session.FactoryOption{session.WithLogger(logger)}
	if addr := config.EndpointOverride(); addr != "" {
		factoryOpts = append(factoryOpts, session.WithEndpoint(addr))
	}
	factory, err := session.NewFactory(factoryOpts...)
	if err != nil {
		return nil, nil, err
	}

	scanner, err := scan.New(scan.WithOpener(factory), scan.WithLogger(logger), scan.WithWorkers(concurrency))
	if err != nil {
		return nil, nil, err
	}
	deleter, err := purge.New(purge.WithOpener(factory), purge.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	b, err := bridge.New(bridge.WithScanner(scanner), bridge.WithPurger(deleter), bridge.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	return b, deleter, nil
}

func credsFromEnv() (session.Credentials, error) {
	account, err := config.AccountFromEnv()
	if err != nil {
		return session.Credentials{}, err
	}
	return session.Credentials{Email: account.User, Secret: session.Secret(account.Pass)}, nil
}

func writeReport(path string, format report.Format, tallies []scan.SenderTally) error {
	if path == "" || path == "-" {
		return report.Write(os.Stdout, format, tallies)
	}
	return report.WriteFile(report.OSFileCreator{}, path, format, tallies)
}

func announce(logger *slog.Logger, action, folder string, count int) {
	a := announcer.New(announcer.WithWebhookURL(config.WebhookURL()))
	if err := a.Do(action, folder, count); err != nil {
		logger.Warn("announcement failed", "error", err)
	}
}
