// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/groupsio/claudegw/internal/app"
	"github.com/groupsio/claudegw/internal/config"
)

var version = "0.1"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "init" {
		if err := runInit(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	var (
		configPath  string
		host        string
		port        int
		showVersion bool
		debug       bool
	)

	flag.StringVar(&configPath, "config", "", "Path to config file (default: auto-detect)")
	flag.StringVar(&configPath, "c", "", "Path to config file (short)")
	flag.StringVar(&host, "host", "", "HTTP server host (overrides config)")
	flag.IntVar(&port, "port", 0, "HTTP server port (overrides config)")
	flag.BoolVar(&showVersion, "version", false, "Show version")
	flag.BoolVar(&showVersion, "v", false, "Show version (short)")
	flag.BoolVar(&debug, "debug", false, "Enable debug mode")
	flag.Parse()

	if showVersion {
		fmt.Printf("claudegw %s\n", version)
		os.Exit(0)
	}

	if configPath == "" {
		loader := config.NewLoader()
		found, err := loader.FindConfig()
		if err != nil {
			log.Fatalf("Error: %v", err)
		}
		configPath = found
	}

	log.Printf("Using config: %s", configPath)

	application, err := app.New(app.Options{
		ConfigPath: configPath,
		Host:       host,
		Port:       port,
		Debug:      debug,
		Version:    version,
	})
	if err != nil {
		log.Fatalf("Failed to create app: %v", err)
	}

	ctx := context.Background()
	if err := application.Run(ctx); err != nil {
		log.Fatalf("App error: %v", err)
	}
}

// runInit handles "claudegw init": writes a starter claudegw.hjson.
func runInit() error {
	initFlags := flag.NewFlagSet("init", flag.ExitOnError)
	showHelp := initFlags.Bool("help", false, "Show help for init command")
	initFlags.BoolVar(showHelp, "h", false, "Show help for init command")
	initFlags.Parse(os.Args[2:])

	if *showHelp {
		fmt.Println(`Usage: claudegw init [options]

Create a new claudegw.hjson configuration file in the current directory.

Options:
  -h, -help    Show this help message`)
		return nil
	}

	configFile := "claudegw.hjson"
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("%s already exists; remove it first or use a different directory", configFile)
	}

	if err := os.WriteFile(configFile, []byte(defaultConfig), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Println("Created " + configFile)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Review and edit claudegw.hjson as needed")
	fmt.Println("  2. Run: ./claudegw")
	fmt.Println("  3. POST to http://localhost:8787/v1/messages")

	return nil
}

const defaultConfig = `{
  // =============================================================================
  // claudegw configuration
  // =============================================================================
  //
  // This is an HJSON file (JSON with comments and relaxed syntax).

  // ---------------------------------------------------------------------------
  // Server Settings
  // ---------------------------------------------------------------------------
  server: {
    host: "127.0.0.1"
    port: 8787

    // For HTTPS, uncomment and set paths to your certificates:
    // tls_cert: "~/.claudegw/cert.pem"
    // tls_key: "~/.claudegw/key.pem"

    // Or provision certs automatically from the local tailnet daemon:
    // tls_tailscale: true
  }

  // ---------------------------------------------------------------------------
  // CLI
  // ---------------------------------------------------------------------------
  //
  // The interactive assistant CLI binary this gateway drives as a child
  // process, and the working directory each child runs in. The CLI keeps
  // its session transcripts under ~/.claude/projects/<workspace path with
  // "/" and "." replaced by "-">.
  cli: {
    binary_path: "claude"
    workspace_dir: "."
  }

  // ---------------------------------------------------------------------------
  // Sessions
  // ---------------------------------------------------------------------------
  session: {
    store_path: ".claudegw/sessions.json"
    ttl: "720h"
    regenerate_keeps_original: true
  }

  // ---------------------------------------------------------------------------
  // Identity
  // ---------------------------------------------------------------------------
  //
  // Maps alternate identities (e.g. a secondary channel handle) to the
  // canonical identity a session key should migrate to.
  // identity: {
  //   alias_map_path: ".claudegw/aliases.yaml"
  // }

  // ---------------------------------------------------------------------------
  // Deploy webhook
  // ---------------------------------------------------------------------------
  //
  // webhook: {
  //   secret: "change-me"
  // }

  // ---------------------------------------------------------------------------
  // Idle timeouts
  // ---------------------------------------------------------------------------
  idle_timeout: {
    baseline: "60s"
    tool_executing: "5m"
    compacting: "10m"
  }

  // ---------------------------------------------------------------------------
  // Monitor event history
  // ---------------------------------------------------------------------------
  events: {
    history: {
      max_events: 10000
      max_age: "24h"
    }
  }

  // ---------------------------------------------------------------------------
  // Logging
  // ---------------------------------------------------------------------------
  logging: {
    level: "info"
  }
}
`
