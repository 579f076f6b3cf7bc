package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/iti/mplsgos"
)

// progressLogger reports the progress of the clock every tenth of the run
type progressLogger struct {
	last int
}

func (pl *progressLogger) ProgressChanged(evt mplsgos.ProgressEvent) {
	if evt.Percentage/10 > pl.last/10 {
		log.WithField("percent", evt.Percentage).Info("simulation progress")
	}
	pl.last = evt.Percentage
}

func newRun(pather CommandPather) *cobra.Command {
	var flags struct {
		trace   string
		metrics string
		quiet   bool
	}
	var cmd = &cobra.Command{
		Use:     "run <scenario>",
		Short:   "Run a scenario to its finish time",
		Example: fmt.Sprintf(`  %[1]s run scenario.yaml --trace trace.yaml`, pather.CommandPath()),
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if ok, err := mplsgos.CheckOutputFiles([]string{flags.trace, flags.metrics}); !ok {
				return err
			}
			sd, err := mplsgos.ReadScenarioDesc(args[0], nil)
			if err != nil {
				return err
			}
			if len(flags.trace) > 0 {
				sd.Trace = true
			}
			cmd.SilenceUsage = true

			topo, err := mplsgos.BuildTopology(sd, nil, nil)
			if err != nil {
				return err
			}
			if err := topo.Clock().AddProgressListener(new(progressLogger)); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if err := topo.Run(ctx); err != nil && err != context.Canceled {
				return err
			}

			if !flags.quiet {
				printStats(cmd.OutOrStdout(), topo.Stats())
				printLinks(cmd.OutOrStdout(), topo.Links())
			}
			if len(flags.trace) > 0 {
				if err := topo.Trace().WriteToFile(flags.trace); err != nil {
					return err
				}
			}
			if len(flags.metrics) > 0 {
				if err := prometheus.WriteToTextfile(flags.metrics, topo.Metrics().Registry); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&flags.trace, "trace", "", "Write a trace of the run (.yaml or .json)")
	cmd.Flags().StringVar(&flags.metrics, "metrics", "", "Write the counters in Prometheus text format")
	cmd.Flags().BoolVar(&flags.quiet, "quiet", false, "Do not print the per-node summary")
	return cmd
}

// printStats renders one row per node
func printStats(w io.Writer, stats []mplsgos.NodeStats) {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	table.SetHeader([]string{"NODE", "KIND", "IP", "RECEIVED", "SENT", "DROPPED", "DELIVERED",
		"RECOVERED", "EVICTED", "ENTRIES"})
	for _, st := range stats {
		table.Append([]string{st.Name, st.Kind, st.IP,
			strconv.FormatInt(st.Received, 10), strconv.FormatInt(st.Sent, 10),
			strconv.FormatInt(st.Dropped, 10), strconv.FormatInt(st.Delivered, 10),
			strconv.FormatInt(st.Recovered, 10), strconv.FormatInt(st.Evicted, 10),
			strconv.Itoa(st.Entries)})
	}
	table.Render()
}

// printLinks renders one row per link
func printLinks(w io.Writer, links []*mplsgos.Link) {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	table.SetHeader([]string{"LINK", "DELAY(NS)", "BROKEN", "CARRIED", "LOST", "IN FLIGHT"})
	for _, lk := range links {
		table.Append([]string{lk.Name(), strconv.FormatInt(lk.Delay(), 10), strconv.FormatBool(lk.IsBroken()),
			strconv.FormatInt(lk.Carried(), 10), strconv.FormatInt(lk.Lost(), 10), strconv.Itoa(lk.InFlight())})
	}
	table.Render()
}
