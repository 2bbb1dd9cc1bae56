package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sarchlab/radarctl/system"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Configure a mode offline and print what it allocates.",
	Long: "`plan --mode tracking` runs one configuration pass of the mode " +
		"against empty pools and prints the resources of every stage and " +
		"the usage of every pool. It fails if the mode does not fit.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		sys, err := system.MakeBuilder().
			WithConfig(cfg).
			WithLogger(newLogger()).
			Build("Radar")
		if err != nil {
			return err
		}

		err = sys.Configure()
		if err != nil {
			return fmt.Errorf("mode %q does not fit: %w", cfg.ActiveMode, err)
		}

		printPlan(cmd, sys)

		return nil
	},
}

func init() {
	rootCmd.AddCommand(planCmd)
	planCmd.Flags().String("mode", "", "Mode to plan. Defaults to active_mode.")
}

func printPlan(cmd *cobra.Command, sys *system.System) {
	c := sys.Controller()
	printf(cmd, "mode %s: %+v\n\n", c.ActiveMode(), c.Params())

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)

	fmt.Fprintln(w, "STAGE\tKIND\tDMA\tPARAM\tTRIGGER\tWINDOW\tSCRATCH\tOUTPUTS")

	for _, st := range sys.Stages() {
		if !st.Configured() {
			continue
		}

		r := st.Resources()
		fmt.Fprintf(w, "%s\t%s\t%d+%d\t%d+%d\t%d+%d\t%d+%d\t%#x\t%#x,%#x\n",
			st.Name(), st.Kind(),
			r.DMAStart, r.DMACount,
			r.ParamSetStart, r.ParamSetCount,
			r.TriggerStart, r.TriggerCount,
			r.WindowOffset, r.WindowLength,
			uint64(r.Scratch), uint64(r.Outputs[0]), uint64(r.Outputs[1]))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "POOL\tKIND\tUSED\tCAPACITY\tHIGH WATER")

	for _, u := range sys.Pools().Usage() {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\n",
			u.Name, u.Kind, u.Used, u.Capacity, u.HighWater)
	}

	w.Flush()
}
