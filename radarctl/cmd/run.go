package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"github.com/sarchlab/radarctl/datarecording"
	"github.com/sarchlab/radarctl/monitoring"
	"github.com/sarchlab/radarctl/protocol"
	"github.com/sarchlab/radarctl/system"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline on the simulated platform.",
	Long: "`run --frames 100` runs the active mode for 100 frame periods " +
		"and prints the counters of the run. Without --frames it runs " +
		"until interrupted. With --cubes the compute core is driven by " +
		"cube_ready requests of the control core instead of the frame timer.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		frames, _ := cmd.Flags().GetUint64("frames")
		cubes, _ := cmd.Flags().GetInt("cubes")
		db, _ := cmd.Flags().GetString("db")

		b := system.MakeBuilder().
			WithConfig(cfg).
			WithLogger(newLogger())

		if db != "" {
			b = b.WithRecorder(datarecording.New(db))
		}

		sys, err := b.Build("Radar")
		if err != nil {
			return err
		}

		err = sys.Configure()
		if err != nil {
			return fmt.Errorf("mode %q does not fit: %w", cfg.ActiveMode, err)
		}

		m, err := startMonitor(cmd, sys, frames)
		if err != nil {
			return err
		}

		if m != nil {
			defer m.Shutdown(context.Background())
		}

		ctx, stop := signal.NotifyContext(context.Background(),
			os.Interrupt, syscall.SIGTERM)
		defer stop()

		err = sys.Run(ctx, system.RunOptions{
			Frames: frames,
			Cubes:  cubes,
			OnResult: func(r *protocol.SlotResult) error {
				printf(cmd, "frame %d mode=%s stage=%s bytes=%d\n",
					r.Frame, r.Mode, r.Stage, len(r.Data))
				return nil
			},
		})
		if err != nil {
			return err
		}

		return printSnapshot(cmd, sys.Snapshot())
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().String("mode", "", "Mode to run. Defaults to active_mode.")
	runCmd.Flags().Uint64("frames", 0,
		"Number of frame periods to run. 0 runs until interrupted.")
	runCmd.Flags().Int("cubes", 0,
		"Number of cubes requested by the control core.")
	runCmd.Flags().String("db", "",
		"Record frames and traces into this SQLite database.")
	runCmd.Flags().Bool("monitor", false, "Serve the monitor while running.")
	runCmd.Flags().Int("monitor-port", 0,
		"Port of the monitor. A random port is used if 0.")
	runCmd.Flags().Bool("open-monitor", false,
		"Open the monitor in a browser. Implies --monitor.")
}

func startMonitor(
	cmd *cobra.Command,
	sys *system.System,
	frames uint64,
) (*monitoring.Monitor, error) {
	enabled, _ := cmd.Flags().GetBool("monitor")
	open, _ := cmd.Flags().GetBool("open-monitor")

	if !enabled && !open {
		return nil, nil
	}

	port, _ := cmd.Flags().GetInt("monitor-port")

	m := monitoring.NewMonitor()
	if port != 0 {
		m = m.WithPortNumber(port)
	}

	m.RegisterSystem(sys)

	if frames > 0 {
		sys.Frames().AcceptHook(m.CreateProgressBar("Frames", frames))
	}

	url := m.StartServer()

	if open {
		err := browser.OpenURL(url)
		if err != nil {
			return m, err
		}
	}

	return m, nil
}

func printSnapshot(cmd *cobra.Command, snap system.Snapshot) error {
	out, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}

	printf(cmd, "%s\n", out)

	return nil
}
