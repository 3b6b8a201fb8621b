package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/semmidev/rotabak/internal/app"
	"github.com/semmidev/rotabak/internal/config"
	"github.com/semmidev/rotabak/internal/domain"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run a single backup even if a schedule is configured")
	date := flag.String("date", "", "reference date as YYYY-MM-DD for a single run (default: today minus date_offset_days)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("Error: load config: %v", err)
		return domain.ExitStartup
	}

	var opts app.RunOptions
	opts.Once = *once
	if *date != "" {
		opts.Date, err = time.ParseInLocation(domain.DateLayout, *date, time.Local)
		if err != nil {
			log.Printf("Error: invalid -date %q: %v", *date, err)
			return domain.ExitStartup
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	application, err := app.New(ctx, cfg)
	if err != nil {
		log.Printf("Error: initialize app: %v", err)
		return domain.ExitStartup
	}
	defer application.Shutdown()

	if err := application.Run(ctx, opts); err != nil {
		return domain.ExitCodeFor(err)
	}
	return domain.ExitOK
}
