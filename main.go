// notewell - chat with your notes from the terminal.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/notewell/notewell-cli/internal/api"
	"github.com/notewell/notewell-cli/internal/chat"
	"github.com/notewell/notewell-cli/internal/cli"
	"github.com/notewell/notewell-cli/internal/config"
	"github.com/notewell/notewell-cli/internal/model"
	"github.com/notewell/notewell-cli/internal/search"
	"github.com/notewell/notewell-cli/internal/session"
	"github.com/notewell/notewell-cli/internal/storage"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to a config file (TOML or JSON)")
		serverURL  = flag.String("server", "", "backend URL (overrides config)")
		projectID  = flag.Int64("project", 0, "project id (overrides config)")
		verbose    = flag.Bool("verbose", false, "log HTTP requests to stderr")
		version    = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *version {
		fmt.Printf("notewell %s (%s, built %s)\n", Version, GitCommit, BuildDate)
		return
	}

	if *verbose {
		log.SetOutput(os.Stderr)
		log.SetFlags(log.Ltime | log.Lmicroseconds)
	} else {
		log.SetOutput(io.Discard)
	}

	if err := run(*configPath, *serverURL, *projectID); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, serverURL string, projectID int64) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if serverURL != "" {
		cfg.Server.URL = serverURL
	}
	if projectID != 0 {
		cfg.Project.ID = projectID
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// An interactive run without a token prompts for one instead of failing
	// on the first request.
	if cfg.Server.APIToken == "" && cli.IsStdoutTTY() {
		token, err := cli.PromptToken()
		if err != nil {
			return err
		}
		cfg.Server.APIToken = token
	}

	client := api.NewClient(cfg.Server.URL, cfg.Server.APIToken).
		WithMaxRetries(cfg.Server.MaxRetries)

	transcript := model.NewTranscript()
	tracker := search.NewTracker()
	store := session.NewStore(client, cfg.Project.ID, transcript)
	controller := chat.NewController(client, store, tracker, transcript, cfg.Project.ID)

	if cfg.Chat.ArchiveEnabled {
		archive, err := storage.OpenArchive(cfg.Chat.ArchivePath)
		if err != nil {
			return fmt.Errorf("failed to open archive: %w", err)
		}
		defer archive.Close()
		controller.SetArchiver(archive)
	}

	repl := cli.NewREPL(cfg, store, tracker, transcript, controller)

	// Live-reload the source filter when the config file is edited.
	if path := resolveConfigPath(configPath); path != "" {
		watcher, err := config.NewWatcher(path, func(fresh *config.Config) {
			repl.SetSourceIDs(fresh.Project.DefaultSourceIDs)
		})
		if err == nil {
			defer watcher.Close()
		}
	}

	return repl.Run(context.Background())
}

func loadConfig(configPath string) (*config.Config, error) {
	if configPath != "" {
		cfg, err := config.LoadFromPath(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		return cfg, nil
	}
	return config.Load()
}

// resolveConfigPath picks the file the watcher should follow: the explicit
// flag when given, otherwise whichever default config file exists.
func resolveConfigPath(configPath string) string {
	if configPath != "" {
		return configPath
	}
	for _, locate := range []func() (string, error){config.ConfigPathTOML, config.ConfigPathJSON} {
		candidate, err := locate()
		if err != nil {
			continue
		}
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}
