package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"

	"github.com/prostopil/patchwatch/internal/engine"
	"github.com/prostopil/patchwatch/internal/progress"
	"github.com/prostopil/patchwatch/internal/ui"
)

func scanCommand() *cli.Command {
	return &cli.Command{
		Name:  "scan",
		Usage: "Run a one-shot full scan of the drop folder",
		Description: `Walk the whole drop folder, diff it against the last-synced
   snapshot, and push every difference to the remote. Files the remote
   already has at identical content are skipped unless --force is given.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "force",
				Aliases: []string{"f"},
				Usage:   "Re-commit every mapped file even when unchanged",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			// One-shot scans push everything they find.
			cfg.Policy.AutoConfirm = true

			o, _, err := buildOrchestrator(cfg)
			if err != nil {
				return err
			}

			var bar *progress.Bar
			report, err := o.Rescan(ctx, cmd.Bool("force"), func(done, total int) {
				if bar == nil {
					bar = progress.Simple(int64(total), "Scanning")
				}
				_ = bar.Set(done)
			})
			if bar != nil {
				_ = bar.Finish()
			}
			if err != nil {
				return err
			}

			printReport(report)
			if report.Failed > 0 {
				os.Exit(1)
			}
			return nil
		},
	}
}

func printReport(report *engine.ScanReport) {
	fmt.Println()
	fmt.Println(ui.Header("Scan Report"))
	fmt.Printf("  Scanned: %d file(s)\n", report.Scanned)
	fmt.Printf("  Synced:  %s\n", ui.Success(fmt.Sprintf("%d (%s)", report.Synced, humanize.Bytes(uint64(report.Bytes)))))
	fmt.Printf("  Deleted: %d\n", report.Deleted)
	fmt.Printf("  Skipped: %d\n", report.Skipped)
	if report.Failed > 0 {
		fmt.Printf("  Failed:  %s\n", ui.Error(fmt.Sprintf("%d", report.Failed)))
	}
	fmt.Printf("  Took:    %s\n", ui.Dim(report.Duration.Round(time.Millisecond).String()))

	for _, res := range report.Results {
		switch res.Action {
		case "failed":
			fmt.Printf("  %s %s: %s\n", ui.StatusError(""), res.Target, res.Error)
		case "delete":
			fmt.Printf("  %s %s\n", ui.StatusWarning(""), res.Target)
		default:
			fmt.Printf("  %s %s\n", ui.StatusSuccess(""), res.Target)
		}
	}
}
