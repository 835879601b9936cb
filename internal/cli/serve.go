package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/prostopil/patchwatch/internal/server"
	"github.com/prostopil/patchwatch/internal/ui"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the watcher with the HTTP control surface",
		Description: `Start monitoring and expose the control endpoints (status,
   start/stop, config, scan, logs, test-path) for the operator UI.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address for the control server (overrides config)",
			},
			&cli.BoolFlag{
				Name:  "no-watch",
				Usage: "Do not start monitoring; wait for POST /control",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			addr := cfg.Server.Addr
			if v := cmd.String("addr"); v != "" {
				addr = v
			}

			o, _, err := buildOrchestrator(cfg)
			if err != nil {
				return err
			}

			if !cmd.Bool("no-watch") {
				if err := o.Start(); err != nil {
					return err
				}
				defer o.Stop()
			}

			srv := server.New(server.Options{
				Addr:       addr,
				Controller: o,
				Ring:       logRing,
			})

			fmt.Printf("%s control server on %s\n", ui.StatusSuccess(""), ui.Bold(addr))
			return srv.Run(ctx)
		},
	}
}
