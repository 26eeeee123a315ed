package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/CiaranWoodward/roomhub/config"
	"github.com/CiaranWoodward/roomhub/logging"
	"github.com/CiaranWoodward/roomhub/tracker"
	"github.com/urfave/cli/v2"
)

func main() {
	//Using urfave/cli to make sensible CLI argument parsing
	app := &cli.App{
		Name:                   "tracker",
		Usage:                  "The roomhub tracker, where clients list, create and join chat rooms",
		Action:                 runTracker,
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load settings from a JSON or CBOR `FILE`.",
			},
			&cli.StringFlag{
				Name:    "host",
				Aliases: []string{"H"},
				Usage:   "Listen on the given `HOST`; rooms are advertised on it too.",
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"P"},
				Usage:   "Listen on the given `PORT` for incoming TCP connections.",
			},
			&cli.IntFlag{
				Name:    "maxconns",
				Aliases: []string{"m"},
				Usage:   "Accept at most `N` connections, on the tracker and on each room.",
			},
			&cli.IntFlag{
				Name:    "messagelength",
				Aliases: []string{"l"},
				Usage:   "Reject frames longer than `BYTES`.",
			},
			&cli.IntFlag{
				Name:  "roomports",
				Usage: "Hand out room ports starting at `PORT` (default: tracker port + 1).",
			},
			&cli.StringFlag{
				Name:  "log",
				Usage: "Write the rotating log to `FILE`.",
			},
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

// Handle the top-level CLI arguments, start the tracker
func runTracker(c *cli.Context) error {
	cfg, err := config.LoadTrackerConfig(c.String("config"))
	if err != nil {
		return err
	}
	if c.IsSet("host") {
		cfg.Host = c.String("host")
	}
	if c.IsSet("port") {
		cfg.Port = c.Int("port")
	}
	if c.IsSet("maxconns") {
		cfg.MaxConnections = c.Int("maxconns")
	}
	if c.IsSet("messagelength") {
		cfg.MaxMessageLength = c.Int("messagelength")
	}
	if c.IsSet("roomports") {
		cfg.RoomPortBase = c.Int("roomports")
	}
	if c.IsSet("log") {
		cfg.LogFile = c.String("log")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	closer, err := logging.Setup("tracker", cfg.LogFile)
	if err != nil {
		return err
	}
	defer closer.Close()

	daemon := tracker.NewDaemon(cfg.Daemon())
	if err := daemon.Start(); err != nil {
		return err
	}
	log.Printf("Tracker ready on %s.", daemon.Addr())
	log.Println("Use Ctl-C to exit.")

	// Run until ctl-c
	quit := make(chan os.Signal, 2)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down tracker.")
	daemon.Close()
	return nil
}
