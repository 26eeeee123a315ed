/*
Interactive CLI for the roomhub client
*/
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/CiaranWoodward/roomhub/client"
	"github.com/CiaranWoodward/roomhub/config"
	"github.com/CiaranWoodward/roomhub/logging"
	"github.com/urfave/cli/v2"
)

func main() {
	//Using urfave/cli to give sensible CLI argument parsing
	app := &cli.App{
		Name:                   "client",
		Usage:                  "The roomhub client, for chatting in rooms found through a tracker",
		Action:                 runClient,
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
				Usage:   "Connect to the tracker at the provided `HOSTNAME`.",
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"P"},
				Usage:   "Connect to the given `PORT` of the tracker.",
			},
			&cli.StringFlag{
				Name:    "username",
				Aliases: []string{"u"},
				Usage:   "Chat as `NAME` instead of being asked.",
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

// Handle the top-level CLI arguments, start the session
func runClient(c *cli.Context) error {
	cfg, err := config.LoadClientConfig(c.String("config"))
	if err != nil {
		return err
	}
	if c.IsSet("host") {
		cfg.TrackerHost = c.String("host")
	}
	if c.IsSet("port") {
		cfg.TrackerPort = c.Int("port")
	}
	if c.IsSet("username") {
		cfg.Username = c.String("username")
	}
	if c.IsSet("log") {
		cfg.LogFile = c.String("log")
	}
	if cfg.TrackerPort < 1 || cfg.TrackerPort > 0xFFFF {
		return fmt.Errorf("PORT out of range: %d", cfg.TrackerPort)
	}

	// The console owns the terminal, so the log only goes to file
	closer, err := logging.SetupQuiet("client", cfg.LogFile)
	if err != nil {
		return err
	}
	defer closer.Close()

	ui, err := newConsole("> ")
	if err != nil {
		return err
	}
	defer ui.Close()

	if cfg.Username == "" {
		if cfg.Username, err = ui.ask("Choose your username: "); err != nil {
			return nil
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	input := make(chan string)
	session := client.NewSession(cfg.Session(), input)
	done := make(chan struct{})
	go ui.readInto(input, done)

	printed := make(chan struct{})
	go func() {
		defer close(printed)
		ui.printMessages(session.Messages)
	}()

	ui.println(fmt.Sprintf("Connecting to %s as %s...", session.TrackerAddr(), session.Username()))
	ui.rl.SetPrompt(session.Username() + "> ")
	err = session.Run(ctx)
	close(done)
	<-printed
	if err != nil && ctx.Err() == nil {
		ui.println(fmt.Sprintf("Disconnected: %v", err))
	}
	return nil
}
