package main

import (
	"fmt"
	"os"
	"path/filepath"

	"companion/internal/app"
	"companion/internal/tui"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const version = "1.0.0"

func newLogger(debug bool) (zerolog.Logger, func()) {
	if !debug {
		return zerolog.Nop(), func() {}
	}
	// The TUI owns the terminal, so debug traces go to a file.
	path := filepath.Join(os.TempDir(), "companion-debug.log")
	if base, err := os.UserConfigDir(); err == nil {
		dir := filepath.Join(base, "companion")
		if err := os.MkdirAll(dir, 0o755); err == nil {
			path = filepath.Join(dir, "debug.log")
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return zerolog.Nop(), func() {}
	}
	logger := zerolog.New(f).With().Timestamp().Logger().Level(zerolog.DebugLevel)
	return logger, func() { _ = f.Close() }
}

func run(cfgPath, provider string, debug bool) error {
	logger, closeLog := newLogger(debug)
	defer closeLog()

	if cfgPath == "" {
		cfgPath = app.DefaultConfigPath()
	}
	cfg, err := app.LoadConfig(cfgPath, nil)
	if err != nil {
		return err
	}

	events := app.NewEventLog(cfg.LogCapacity)
	video := app.NewOdysseyClient(cfg, events, logger)
	cloud := app.NewOpenRouterClient(cfg, events, logger)
	local := app.NewOllamaClient(cfg, events, logger)

	orch := app.NewOrchestrator(video, cloud, local, app.ScreenCapture{}, events, logger)
	if provider != "" {
		if err := orch.SwitchChatProvider(app.ChatProvider(provider)); err != nil {
			return err
		}
	}
	return tui.Run(orch, events)
}

func main() {
	var (
		cfgPath  string
		provider string
		debug    bool
	)

	root := &cobra.Command{
		Use:   "companion",
		Short: "Desktop companion for Odyssey video generation with local or cloud chat",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfgPath, provider, debug)
		},
		SilenceUsage: true,
	}
	root.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (key=value or YAML; default: user config dir)")
	root.Flags().StringVarP(&provider, "provider", "p", "", "chat provider to start with (cloud|local)")
	root.Flags().BoolVar(&debug, "debug", false, "write debug traces to the companion log file")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("companion " + version)
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
