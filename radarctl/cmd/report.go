package cmd

import (
	"context"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sarchlab/radarctl/datarecording"
	"github.com/sarchlab/radarctl/frametask"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize a recorded run.",
	Long: "`report --db run` reads the frames recorded by `run --db run` " +
		"and prints the frame count and mean duration per mode and per stage.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		db, _ := cmd.Flags().GetString("db")
		if db == "" {
			return fmt.Errorf("--db is required")
		}

		reader, err := datarecording.NewReader(db)
		if err != nil {
			return err
		}
		defer reader.Close()

		rep, err := buildReport(cmd.Context(), reader)
		if err != nil {
			return err
		}

		printReport(cmd, rep)

		return nil
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().String("db", "",
		"SQLite database written by `run --db`, without the extension.")
}

type durationStat struct {
	Name    string
	Count   int
	TotalUs float64
}

func (s durationStat) MeanUs() float64 {
	if s.Count == 0 {
		return 0
	}

	return s.TotalUs / float64(s.Count)
}

type report struct {
	Modes  []durationStat
	Stages []durationStat
}

func buildReport(
	ctx context.Context,
	reader datarecording.DataReader,
) (report, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	reader.MapTable(frametask.FrameTable, frametask.FrameRecord{})
	reader.MapTable(frametask.StageTimingTable, frametask.StageTimingRecord{})

	frames, _, err := reader.Query(ctx, frametask.FrameTable,
		datarecording.QueryParams{})
	if err != nil {
		return report{}, err
	}

	timings, _, err := reader.Query(ctx, frametask.StageTimingTable,
		datarecording.QueryParams{})
	if err != nil {
		return report{}, err
	}

	modes := make(map[string]*durationStat)
	for _, f := range frames {
		r := f.(*frametask.FrameRecord)
		accumulate(modes, r.Mode, r.DurationUs)
	}

	stages := make(map[string]*durationStat)
	for _, t := range timings {
		r := t.(*frametask.StageTimingRecord)
		accumulate(stages, r.Stage, r.DurationUs)
	}

	return report{
		Modes:  sortedStats(modes),
		Stages: sortedStats(stages),
	}, nil
}

func accumulate(m map[string]*durationStat, name string, us float64) {
	s, ok := m[name]
	if !ok {
		s = &durationStat{Name: name}
		m[name] = s
	}

	s.Count++
	s.TotalUs += us
}

func sortedStats(m map[string]*durationStat) []durationStat {
	stats := make([]durationStat, 0, len(m))
	for _, s := range m {
		stats = append(stats, *s)
	}

	sort.Slice(stats, func(i, j int) bool {
		return stats[i].Name < stats[j].Name
	})

	return stats
}

func printReport(cmd *cobra.Command, rep report) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)

	fmt.Fprintln(w, "MODE\tFRAMES\tMEAN (us)")
	for _, s := range rep.Modes {
		fmt.Fprintf(w, "%s\t%d\t%.1f\n", s.Name, s.Count, s.MeanUs())
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "STAGE\tRUNS\tMEAN (us)")
	for _, s := range rep.Stages {
		fmt.Fprintf(w, "%s\t%d\t%.1f\n", s.Name, s.Count, s.MeanUs())
	}

	w.Flush()
}
