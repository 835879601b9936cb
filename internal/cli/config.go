package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/prostopil/patchwatch/internal/config"
	"github.com/prostopil/patchwatch/internal/ui"
)

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Inspect or initialize the configuration",
		Commands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Display the effective configuration",
				Action: func(_ context.Context, cmd *cli.Command) error {
					cfg, err := loadConfig(cmd)
					if err != nil {
						return err
					}

					fmt.Println(ui.Header("Watch"))
					fmt.Printf("  Root:         %s\n", orUnset(cfg.Watch.Root))
					fmt.Printf("  Quiet window: %s\n", cfg.Watch.QuietWindow)
					fmt.Printf("  State path:   %s\n", cfg.Watch.StatePath)
					fmt.Printf("  Mirror dir:   %s\n", orUnset(cfg.Watch.MirrorDir))
					fmt.Printf("  Workers:      %d\n", cfg.Watch.Workers)
					fmt.Printf("  Max retries:  %d\n", cfg.Watch.MaxRetries)

					fmt.Println(ui.Header("Remote"))
					fmt.Printf("  URL:     %s\n", orUnset(cfg.Remote.BaseURL))
					fmt.Printf("  Project: %s\n", orUnset(cfg.Remote.ProjectID))
					fmt.Printf("  Branch:  %s\n", orUnset(cfg.Remote.Branch))

					fmt.Println(ui.Header("Policy"))
					fmt.Printf("  Auto confirm: %v\n", cfg.Policy.AutoConfirm)
					fmt.Printf("  Auto sync:    %v\n", cfg.Policy.AutoSync)
					fmt.Printf("  Auto delete:  %v\n", cfg.Policy.AutoDelete)

					fmt.Println(ui.Header("Mappings"))
					if len(cfg.Mappings) == 0 {
						fmt.Println(ui.Dim("  (built-in defaults)"))
					}
					for _, r := range cfg.Mappings {
						fmt.Printf("  %s -> %s\n", r.Source, r.Target)
					}
					return nil
				},
			},
			{
				Name:  "init",
				Usage: "Write a default configuration file",
				Action: func(_ context.Context, cmd *cli.Command) error {
					if path := cmd.String("config"); path != "" {
						cfg := config.Default()
						if err := cfg.SaveToPath(path); err != nil {
							return err
						}
						fmt.Println(ui.StatusSuccess("wrote " + path))
						return nil
					}

					if config.Exists() {
						return fmt.Errorf("configuration already exists at %s", config.FilePath())
					}
					if err := config.Default().Save(); err != nil {
						return err
					}
					fmt.Println(ui.StatusSuccess("wrote " + config.FilePath()))
					return nil
				},
			},
			{
				Name:  "path",
				Usage: "Print the configuration file path",
				Action: func(_ context.Context, _ *cli.Command) error {
					fmt.Println(config.FilePath())
					return nil
				},
			},
		},
	}
}

func orUnset(s string) string {
	if s == "" {
		return ui.Dim("(unset)")
	}
	return s
}
