// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"
	"os"

	"github.com/relabs-tech/head_tracker/internal/app"
	"github.com/relabs-tech/head_tracker/internal/config"
)

func main() {
	configPath := flag.String("config", "tracker_config.txt", "path to configuration file")
	every := flag.Int("every", 100, "print every n-th fused sample")
	flag.Parse()

	if flag.NArg() != 1 {
		log.Fatalf("usage: replay_dump [-config file] [-every n] recording.bin")
	}

	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunReplayDump(config.Get(), flag.Arg(0), *every, os.Stdout); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
