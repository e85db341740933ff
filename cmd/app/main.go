package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/noosphere/internal"
	"github.com/starford/noosphere/internal/classify"
	pkgconfig "github.com/starford/noosphere/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if _, err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func mcpStdio(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if user := cmd.String("user"); user != "" {
		cfg.Auth.DefaultUser = user
	}

	if err := internal.RunStdio(ctx, internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr)); err != nil {
		return fmt.Errorf("mcp stdio error: %w", err)
	}
	return nil
}

func exportCmd(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	report, err := internal.Export(ctx, cmd.String("dir"), cmd.String("project"), cmd.String("user"),
		internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
	if err != nil {
		return fmt.Errorf("export error: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func classifyCmd(_ context.Context, cmd *cli.Command) error {
	c := classify.Default()
	if path := cmd.String("lexicon"); path != "" {
		lex, err := classify.LoadLexicon(path)
		if err != nil {
			return err
		}
		if c, err = classify.New(lex); err != nil {
			return err
		}
	}

	text := strings.Join(cmd.Args().Slice(), " ")
	if text == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		text = string(data)
	}

	decision, speculative := c.Scores(text)
	fmt.Printf("%s (decision=%d speculative=%d)\n", c.Classify(text), decision, speculative)
	return nil
}

func userFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "user",
		Aliases: []string{"u"},
		Usage:   "User id to act as (defaults to auth.default_user)",
		Sources: cli.EnvVars("NOOSPHERE_USER"),
	}
}

func main() {
	cmd := &cli.Command{
		Name:   "noosphere",
		Usage:  "Persistent working memory for AI sessions: living state documents, an entry log, and keyword search",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP server (REST API, MCP endpoint, SSE, metrics)",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP over stdin/stdout",
				Flags:  []cli.Flag{userFlag()},
				Action: mcpStdio,
			},
			{
				Name:  "export",
				Usage: "Write projects as Markdown files",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "dir",
						Aliases:  []string{"d"},
						Usage:    "Destination directory",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "project",
						Aliases: []string{"p"},
						Usage:   "Export a single project (default: all)",
					},
					userFlag(),
				},
				Action: exportCmd,
			},
			{
				Name:      "classify",
				Usage:     "Classify text with the entry heuristics",
				ArgsUsage: "[text...]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "lexicon",
						Usage: "YAML lexicon file (default: built-in)",
					},
				},
				Action: classifyCmd,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
