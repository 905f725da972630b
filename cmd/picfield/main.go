package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/notargets/PICKernel/config"
)

type rootFlags struct {
	configFile string
	logLevel   string
	logJSON    bool
}

type runFlags struct {
	steps    int
	snapshot string
	plot     string
	table    string
	device   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var rf rootFlags
	root := &cobra.Command{
		Use:   "picfield",
		Short: "Electromagnetic field core of a particle-in-cell simulation",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(rf.logLevel, rf.logJSON)
		},
		SilenceUsage: true,
	}
	addRootFlags(root.PersistentFlags(), &rf)
	root.AddCommand(newCheckCmd(&rf), newRunCmd(&rf))
	return root
}

func addRootFlags(fs *pflag.FlagSet, rf *rootFlags) {
	fs.StringVarP(&rf.configFile, "config", "c", "", "TOML namelist of the run")
	fs.StringVar(&rf.logLevel, "log-level", "info", "trace, debug, info, warn or error")
	fs.BoolVar(&rf.logJSON, "log-json", false, "log as JSON lines")
}

func addRunFlags(fs *pflag.FlagSet, f *runFlags) {
	fs.IntVarP(&f.steps, "steps", "n", -1, "number of steps, overrides n_time")
	fs.StringVar(&f.snapshot, "snapshot", "", "directory for the final field dumps, overrides output.snapshot")
	fs.StringVar(&f.plot, "plot", "", "energy plot file (.png, .svg, .pdf), overrides output.plot")
	fs.StringVar(&f.table, "table", "", "energy table file, overrides output.table")
	fs.StringVar(&f.device, "device", "", `run the Poisson vector updates on an OCCA device, e.g. '{"mode": "Serial"}' or "auto"`)
}

func setupLogging(level string, asJSON bool) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return err
	}
	log.SetLevel(lvl)
	if asJSON {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return nil
}

func loadConfig(rf *rootFlags) (*config.Config, error) {
	if rf.configFile == "" {
		return nil, fmt.Errorf("--config is required")
	}
	return config.Load(rf.configFile)
}

func newCheckCmd(rf *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Decode and validate a namelist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig(rf)
			if err != nil {
				return err
			}
			printSummary(cmd, c)
			return nil
		},
	}
}

func printSummary(cmd *cobra.Command, c *config.Config) {
	out := cmd.OutOrStdout()
	g := c.Grid
	fmt.Fprintf(out, "grid       %v cells of %v, oversize %v\n",
		[3]int{g.NSpace[0] * g.NumberOfPatches[0], g.NSpace[1] * g.NumberOfPatches[1], g.NSpace[2] * g.NumberOfPatches[2]},
		g.CellLength, g.Oversize)
	fmt.Fprintf(out, "patches    %v over %d rank(s), %d thread(s)\n", g.NumberOfPatches, c.Ranks, c.Threads)
	fmt.Fprintf(out, "time       %d steps of %g\n", c.NTime, c.Timestep)
	for _, s := range c.Species {
		fmt.Fprintf(out, "species    %s charge %d density %q\n", s.Name, s.Charge, s.Density)
	}
	fmt.Fprintf(out, "fields     %d external, %d antenna(s)\n", len(c.ExternalFields), len(c.Antennas))
}

func newRunCmd(rf *rootFlags) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Initialise the fields and advance them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig(rf)
			if err != nil {
				return err
			}
			applyOverrides(c, cmd.Flags(), &f)

			sim := &Simulation{Config: c, Device: f.device}
			if err := sim.Run(); err != nil {
				return err
			}
			return sim.Output()
		},
	}
	addRunFlags(cmd.Flags(), &f)
	return cmd
}

// applyOverrides copies the flags given on the command line into c
func applyOverrides(c *config.Config, fs *pflag.FlagSet, f *runFlags) {
	if fs.Changed("steps") && f.steps >= 0 {
		c.NTime = f.steps
	}
	if fs.Changed("snapshot") {
		c.Output.Snapshot = f.snapshot
	}
	if fs.Changed("plot") {
		c.Output.Plot = f.plot
	}
	if fs.Changed("table") {
		c.Output.Table = f.table
	}
}
