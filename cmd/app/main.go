package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"
	"golang.org/x/crypto/bcrypt"

	"github.com/starford/ocrlabel/internal"
	pkgconfig "github.com/starford/ocrlabel/pkg/config"
)

var version = "dev"

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	// Flags and their env vars win over the file.
	if dir := cmd.String("data-dir"); dir != "" {
		cfg.Dataset.DataDir = dir
	}
	if dir := cmd.String("labeled-dir"); dir != "" {
		cfg.Dataset.LabeledDir = dir
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg), internal.WithVersion(version)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx,
		internal.WithConfig(cfg),
		internal.WithVersion(version),
		internal.WithLogOutput(os.Stderr))
}

func status(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.PrintStatus(ctx, os.Stdout, internal.WithConfig(cfg))
}

func hashPassword(_ context.Context, cmd *cli.Command) error {
	password := cmd.Args().First()
	if password == "" {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if password == "" {
		return errors.New("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), int(cmd.Int("cost")))
	if err != nil {
		return err
	}
	fmt.Println(string(hash))
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:    "ocrlabel",
		Usage:   "Web tool for labeling OCR and licence plate images one at a time",
		Version: version,
		Action:  serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file (optional)",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "data-dir",
				Usage:   "Directory with images to label",
				Sources: cli.EnvVars("DATA_PATH"),
			},
			&cli.StringFlag{
				Name:    "labeled-dir",
				Usage:   "Directory receiving labeled copies",
				Sources: cli.EnvVars("RESULTS_PATH"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the labeling web server (default)",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve labeling tools over MCP stdio",
				Action: serveMCP,
			},
			{
				Name:   "status",
				Usage:  "Print cursor progress as JSON",
				Action: status,
			},
			{
				Name:      "hash-password",
				Usage:     "Print a bcrypt hash for auth.password_hash",
				ArgsUsage: "[password]",
				Action:    hashPassword,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "cost",
						Usage: "bcrypt cost",
						Value: int64(bcrypt.DefaultCost),
					},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
