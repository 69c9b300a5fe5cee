// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"
	"net/http"

	"github.com/relabs-tech/head_tracker/internal/app"
	"github.com/relabs-tech/head_tracker/internal/config"
	"github.com/relabs-tech/head_tracker/internal/device"
)

func main() {
	configPath := flag.String("config", "tracker_config.txt", "path to config file")
	addr := flag.String("addr", ":8081", "listen address")
	flag.Parse()

	log.Println("starting tracker feature report debug tool (standalone)")

	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg := config.Get()

	dev, err := device.Open(cfg)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	defer dev.Close()
	info := dev.Info()
	log.Printf("debugging %s (serial %q)", info.Product, info.SerialNumber)

	dbg := app.NewFeatureDebugger(dev)
	go func() {
		if err := dbg.ReadReports(); err != nil {
			log.Printf("input reports stopped: %v", err)
		}
	}()

	log.Printf("Feature debug tool listening on %s", *addr)
	log.Printf("Open http://localhost%s in your browser", *addr)
	if err := http.ListenAndServe(*addr, dbg.Handler("web/feature_debug.html")); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
