package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"github.com/emberandwick/storefront-backend/pkg/config"
	"github.com/emberandwick/storefront-backend/pkg/db"
	"github.com/emberandwick/storefront-backend/pkg/logger"
	"github.com/emberandwick/storefront-backend/pkg/migrate"
)

const serviceName = "migrate"

var errUsage = errors.New("usage")

type options struct {
	cmd     string
	dir     string
	name    string
	version string
}

func main() {
	_ = godotenv.Load()

	var opts options
	flag.StringVar(&opts.cmd, "cmd", "up", "up|down|redo|status|to|create|validate")
	flag.StringVar(&opts.dir, "dir", migrate.DefaultDir, "migration directory for create and validate")
	flag.StringVar(&opts.name, "name", "", "migration name for -cmd=create")
	flag.StringVar(&opts.version, "version", "", "target YYYYMMDDHHMMSS for -cmd=to")
	flag.Parse()

	if err := run(context.Background(), opts); err != nil {
		if errors.Is(err, errUsage) {
			flag.Usage()
		}
		fmt.Fprintf(os.Stderr, "migrate %s: %v\n", opts.cmd, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	// Authoring commands work on the checked-out tree and never need config.
	switch opts.cmd {
	case "create":
		if opts.name == "" {
			return fmt.Errorf("%w: -name is required", errUsage)
		}
		path, err := migrate.Create(opts.dir, opts.name, time.Now())
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	case "validate":
		if err := migrate.ValidateDir(opts.dir); err != nil {
			return err
		}
		fmt.Println("ok")
		return nil
	case "up", "down", "redo", "to", "status":
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, opts.cmd)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logg := logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "cmd": opts.cmd})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		return fmt.Errorf("unwrap sql.DB: %w", err)
	}
	runner, err := migrate.NewRunner(sqlDB, logg)
	if err != nil {
		return err
	}

	switch opts.cmd {
	case "up":
		return runner.Up(ctx)
	case "down":
		return runner.Down(ctx)
	case "redo":
		return runner.Redo(ctx)
	case "to":
		target, err := migrate.ParseVersion(opts.version)
		if err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
		return runner.To(ctx, target)
	case "status":
		states, err := runner.Status(ctx)
		if err != nil {
			return err
		}
		printStatus(states)
	}
	return nil
}

func printStatus(states []migrate.State) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tAPPLIED AT\tMIGRATION")
	for _, s := range states {
		applied := "pending"
		if s.Applied {
			applied = s.AppliedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", s.Version, applied, s.Name)
	}
	w.Flush()
}
