package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/lucasreis/chatsync/internal/daemon"
	"github.com/lucasreis/chatsync/internal/session"
	"go.uber.org/fx"
)

func main() {
	configFlag := flag.String("config", "", "config file path (default ~/.chatsync/config.toml)")
	clientFlag := flag.String("client", "", "client id (overrides config)")
	flag.Parse()

	// Optional .env for CHATSYNC_* overrides; absence is fine.
	_ = godotenv.Load()

	if *clientFlag != "" {
		if err := session.ValidateClientID(*clientFlag); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	}

	configPath := *configFlag
	if configPath == "" {
		configPath = session.ConfigPath()
	}

	app := fx.New(
		daemon.Module(daemon.Params{ConfigPath: configPath, ClientID: *clientFlag}),
	)

	app.Run()
}
