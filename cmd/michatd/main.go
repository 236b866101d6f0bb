package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/fx"

	"github.com/Andrew-022/michatapp-sub000/internal/app"
	"github.com/Andrew-022/michatapp-sub000/internal/config"
)

func main() {
	configFlag := flag.String("config", "", "config file path (default ~/.michatapp/config.toml)")
	flag.Parse()

	configPath := *configFlag
	if configPath == "" {
		configPath = filepath.Join(config.DefaultDataDir(), "config.toml")
	}
	if _, err := os.Stat(configPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: config not found at %s\n", configPath)
		os.Exit(1)
	}

	fx.New(
		app.Module(app.Params{ConfigPath: configPath}),
	).Run()
}
