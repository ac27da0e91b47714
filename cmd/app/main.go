package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/setlist/internal"
	"github.com/starford/setlist/internal/prefs"
	"github.com/starford/setlist/internal/transpose"
	pkgconfig "github.com/starford/setlist/pkg/config"
)

var version = "dev"

func loadConfig(cmd *cli.Command) ([]internal.Option, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return []internal.Option{internal.WithConfig(cfg)}, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func syncLibrary(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunSync(ctx, os.Stdout, opts...)
}

func prepare(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunPrepare(ctx, os.Stdout, cmd.Args().First(), opts...)
}

func presentSetlist(ctx context.Context, cmd *cli.Command) error {
	id := cmd.Args().First()
	if id == "" {
		return fmt.Errorf("setlist id is required")
	}
	opts, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunPresent(ctx, id, opts...)
}

func pedal(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunPedal(ctx, os.Stdout, prefs.Pedal{
		PrevPage: cmd.String("prev-page"),
		NextPage: cmd.String("next-page"),
		PrevSong: cmd.String("prev-song"),
		NextSong: cmd.String("next-song"),
	}, opts...)
}

func transposeFile(_ context.Context, cmd *cli.Command) error {
	var (
		data []byte
		err  error
	)
	if path := cmd.Args().First(); path != "" && path != "-" {
		data, err = os.ReadFile(path)
	} else {
		data, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	if cmd.Bool("chords") {
		chords := transpose.Extract(transpose.Content(string(data), cmd.Int("semitones"))).Sorted()
		_, err = fmt.Println(strings.Join(chords, " "))
		return err
	}
	_, err = fmt.Print(transpose.Content(string(data), cmd.Int("semitones")))
	return err
}

func mcp(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, version, opts...)
}

func main() {
	cmd := &cli.Command{
		Name:    "setlist",
		Usage:   "Song library and offline setlist presentation with chord transposition",
		Version: version,
		Action:  serve,
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
				Usage:  "Run the document store server",
				Action: serve,
			},
			{
				Name:   "sync",
				Usage:  "Import the song library into the document store once",
				Action: syncLibrary,
			},
			{
				Name:      "prepare",
				Usage:     "Store an offline snapshot of a setlist, or list setlists",
				ArgsUsage: "[setlist-id]",
				Action:    prepare,
			},
			{
				Name:      "present",
				Usage:     "Present a prepared setlist in the terminal",
				ArgsUsage: "<setlist-id>",
				Action:    presentSetlist,
			},
			{
				Name:  "pedal",
				Usage: "Show or change the page-turner pedal key bindings",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "prev-page", Usage: "Key for the previous page"},
					&cli.StringFlag{Name: "next-page", Usage: "Key for the next page"},
					&cli.StringFlag{Name: "prev-song", Usage: "Key for the previous song"},
					&cli.StringFlag{Name: "next-song", Usage: "Key for the next song"},
				},
				Action: pedal,
			},
			{
				Name:      "transpose",
				Usage:     "Transpose the chords of a song file or stdin",
				ArgsUsage: "[file]",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "semitones",
						Aliases: []string{"s"},
						Usage:   "Semitones to shift, negative shifts down",
					},
					&cli.BoolFlag{
						Name:  "chords",
						Usage: "Print the transposed chord set instead of the content",
					},
				},
				Action: transposeFile,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the song tools over MCP on stdin/stdout",
				Action: mcp,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
