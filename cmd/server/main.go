package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CiaranWoodward/roomhub/config"
	"github.com/CiaranWoodward/roomhub/logging"
	"github.com/CiaranWoodward/roomhub/server"
	"github.com/CiaranWoodward/roomhub/tracker"
	"github.com/urfave/cli/v2"
)

func main() {
	//Using urfave/cli to make sensible CLI argument parsing
	app := &cli.App{
		Name:                   "server",
		Usage:                  "A standalone roomhub room server, optionally registered with a tracker",
		Action:                 runServer,
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load settings from a JSON or CBOR `FILE`.",
			},
			&cli.StringFlag{
				Name:    "name",
				Aliases: []string{"n"},
				Usage:   "Name the room `NAME`.",
			},
			&cli.StringFlag{
				Name:    "host",
				Aliases: []string{"H"},
				Usage:   "Listen on the given `HOST`.",
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"P"},
				Usage:   "Listen on the given `PORT` for incoming TCP connections.",
			},
			&cli.IntFlag{
				Name:    "maxconns",
				Aliases: []string{"m"},
				Usage:   "Accept at most `N` members.",
			},
			&cli.IntFlag{
				Name:    "messagelength",
				Aliases: []string{"l"},
				Usage:   "Reject frames longer than `BYTES`.",
			},
			&cli.StringFlag{
				Name:  "admin",
				Usage: "Seed `USER` as the room admin.",
			},
			&cli.StringFlag{
				Name:  "passkey",
				Usage: "Make the room private, guarded by `KEY`.",
			},
			&cli.StringFlag{
				Name:    "tracker",
				Aliases: []string{"t"},
				Usage:   "Register the room with the tracker at `HOST:PORT`.",
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

// Handle the top-level CLI arguments, start the room
func runServer(c *cli.Context) error {
	cfg, err := config.LoadRoomConfig(c.String("config"))
	if err != nil {
		return err
	}
	if c.IsSet("name") {
		cfg.Name = c.String("name")
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
	if c.IsSet("admin") {
		cfg.AdminUser = c.String("admin")
	}
	if c.IsSet("passkey") {
		cfg.Private = true
		cfg.Passkey = c.String("passkey")
	}
	if c.IsSet("tracker") {
		cfg.Tracker = c.String("tracker")
	}
	if c.IsSet("log") {
		cfg.LogFile = c.String("log")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	closer, err := logging.Setup("server", cfg.LogFile)
	if err != nil {
		return err
	}
	defer closer.Close()

	room := server.NewRoom(cfg.Room())
	if err := room.Start(); err != nil {
		return err
	}
	defer room.Close()
	log.Printf("Room '%s' ready on %s.", room.Name(), room.Addr())

	if cfg.Tracker != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		echo, err := tracker.Register(ctx, cfg.Tracker, tracker.Room{
			Name:      cfg.Name,
			Address:   room.Addr(),
			AdminUser: cfg.AdminUser,
			Private:   cfg.Private,
			Passkey:   cfg.Passkey,
		})
		cancel()
		if err != nil {
			return fmt.Errorf("register with %s: %w", cfg.Tracker, err)
		}
		log.Printf("Registered with tracker %s: %s", cfg.Tracker, echo)
	}
	log.Println("Use Ctl-C to exit.")

	// Run until ctl-c
	quit := make(chan os.Signal, 2)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Printf("Shutting down room '%s'.", room.Name())
	return nil
}
