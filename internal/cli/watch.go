package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/prostopil/patchwatch/internal/config"
	"github.com/prostopil/patchwatch/internal/engine"
	"github.com/prostopil/patchwatch/internal/model"
	"github.com/prostopil/patchwatch/internal/policy"
	"github.com/prostopil/patchwatch/internal/ui"
)

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Monitor the drop folder and push changes to the remote",
		Description: `Watch the configured drop folder for changes and commit them to
   the remote repository as they settle. Intents held for confirmation
   are prompted for on the terminal; with --yes (or auto_confirm in the
   configuration) everything is pushed unattended.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "yes",
				Aliases: []string{"y"},
				Usage:   "Confirm all pending changes without prompting",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Bool("yes") {
				cfg.Policy.AutoConfirm = true
			}

			o, store, err := buildOrchestrator(cfg)
			if err != nil {
				return err
			}

			if err := o.Start(); err != nil {
				return err
			}
			defer o.Stop()

			fmt.Printf("%s watching %s\n", ui.StatusSuccess(""), ui.Bold(cfg.Watch.Root))
			fmt.Println(ui.Dim("Press Ctrl+C to stop."))

			prompter := newConfirmPrompter(o, store)
			ticker := time.NewTicker(3 * time.Second)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					fmt.Println()
					fmt.Println(ui.StatusSkipped("stopping"))
					return nil
				case <-ticker.C:
					prompter.promptPending()
				}
			}
		},
	}
}

// confirmPrompter asks the operator about intents the policy holds for
// confirmation. It only prompts on an interactive terminal; otherwise
// held intents stay queued for the control surface to approve.
type confirmPrompter struct {
	o           *engine.Orchestrator
	store       *config.Store
	reader      *bufio.Reader
	interactive bool
	declined    map[string]time.Time
}

func newConfirmPrompter(o *engine.Orchestrator, store *config.Store) *confirmPrompter {
	return &confirmPrompter{
		o:           o,
		store:       store,
		reader:      bufio.NewReader(os.Stdin),
		interactive: term.IsTerminal(int(os.Stdin.Fd())),
		declined:    make(map[string]time.Time),
	}
}

func (p *confirmPrompter) promptPending() {
	if !p.interactive {
		return
	}

	cfg := p.store.Snapshot()
	if cfg.Policy.AutoConfirm {
		return
	}

	for _, in := range p.o.Pending() {
		if policy.Decide(in, cfg.Policy) != policy.RequireConfirmation {
			continue
		}
		// A declined intent is asked about again only when a newer
		// event for the path arrives.
		if at, ok := p.declined[in.TargetPath]; ok && !in.DetectedAt.After(at) {
			continue
		}
		if p.promptOne(in) {
			delete(p.declined, in.TargetPath)
			p.o.Confirm(in.TargetPath)
		} else {
			p.declined[in.TargetPath] = in.DetectedAt
		}
	}
}

func (p *confirmPrompter) promptOne(in model.Intent) bool {
	verb := "push"
	if in.Kind == model.KindDelete {
		verb = "delete"
	}
	fmt.Printf("%s %s %s? [y/N]: ", ui.Warning("?"), verb, ui.Bold(in.TargetPath))

	response, err := p.reader.ReadString('\n')
	if err != nil {
		if !errors.Is(err, os.ErrClosed) {
			fmt.Println()
		}
		p.interactive = false
		return false
	}

	switch strings.ToLower(strings.TrimSpace(response)) {
	case "y", "yes":
		return true
	default:
		fmt.Println(ui.StatusSkipped("held"))
		return false
	}
}
