package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	service "github.com/okian/pitwall/internal/app"
	"github.com/okian/pitwall/internal/config"
	"github.com/okian/pitwall/internal/domain/model"
	"github.com/okian/pitwall/pkg/logger"
)

// rootOptions holds flags shared by every command. Zero values mean "keep
// what the config says".
type rootOptions struct {
	season   int
	out      string
	cacheDir string
	logLevel string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "pitwall",
		Short: "Download a Formula 1 season's timing data as CSV",
		Long: `pitwall walks every completed event of a season and saves laps, race
control messages and standings as CSV files. Runs are resumable: units
already on disk are skipped and provider cache is pruned once a unit is
safely stored.

Configuration is read from defaults, the YAML file named by PITWALL_CONFIG
and PITWALL_* environment variables; flags win over all three.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.IntVar(&opts.season, "season", 0, "championship year (default from config, else the current year)")
	pf.StringVar(&opts.out, "out", "", "output directory")
	pf.StringVar(&opts.cacheDir, "cache-dir", "", "provider cache directory (default <out>/provider_cache)")
	pf.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error")

	cmd.AddCommand(newFetchCommand(opts))
	cmd.AddCommand(newStatusCommand(opts))
	cmd.AddCommand(newPruneCommand(opts))
	return cmd
}

// load builds the effective config: koanf layers first, then flags.
func (o *rootOptions) load(ctx context.Context) (*config.Config, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, wrapExit(exitConfig, "failed to load config", err)
	}
	if o.season != 0 {
		cfg.Season = o.season
	}
	if o.out != "" {
		cfg.OutputDir = o.out
	}
	if o.cacheDir != "" {
		cfg.CacheDir = o.cacheDir
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	return cfg, nil
}

func validate(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return wrapExit(exitConfig, "invalid configuration", err)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		return wrapExit(exitConfig, "invalid log level", err)
	}
	return nil
}

type fetchOptions struct {
	*rootOptions
	resume    bool
	force     bool
	cutoff    string
	callDelay time.Duration
	dryRun    bool
}

func newFetchCommand(root *rootOptions) *cobra.Command {
	opts := &fetchOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download every completed session of the season",
		Long: `Download every completed session of the season.

With --resume (the default) units whose files already exist are skipped.
--force fetches everything again and wins over --resume. --resume=false
without --force is a fresh run that still overwrites in place.

Example:
  pitwall fetch --season 2025 --out f1data
  pitwall fetch --force --cutoff 2025-06-30
  pitwall fetch --dry-run`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFetch(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.BoolVar(&opts.resume, "resume", true, "skip units that are already downloaded")
	f.BoolVar(&opts.force, "force", false, "fetch every unit even if already downloaded")
	f.StringVar(&opts.cutoff, "cutoff", "", "treat events up to this date as completed (default now)")
	f.DurationVar(&opts.callDelay, "call-delay", 0, "delay before every provider request")
	f.BoolVar(&opts.dryRun, "dry-run", false, "print what would be fetched and exit")
	return cmd
}

func runFetch(cmd *cobra.Command, opts *fetchOptions) error {
	ctx := cmd.Context()
	cfg, err := opts.load(ctx)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("resume") {
		cfg.Resume = opts.resume
	}
	if cmd.Flags().Changed("force") {
		cfg.Force = opts.force
	}
	if opts.cutoff != "" {
		cfg.Cutoff = opts.cutoff
	}
	if cmd.Flags().Changed("call-delay") {
		cfg.CallDelay = opts.callDelay
	}
	if err := validate(cfg); err != nil {
		return err
	}

	env, err := openEnv(ctx, cfg, envOptions{runLog: !opts.dryRun, stdout: cmd.OutOrStdout()})
	if err != nil {
		return err
	}
	defer env.close(ctx)

	svc := env.service()

	if opts.dryRun {
		decisions, err := svc.Plan(ctx)
		if err != nil {
			return wrapExit(exitFailure, "plan failed", err)
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ACTION\tEVENT\tSESSION")
		fetch := 0
		for _, d := range decisions {
			if d.Action == model.ActionFetch {
				fetch++
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", d.Action, d.Unit.Event.Name, d.Unit.Session)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d units, %d to fetch (%s)\n", len(decisions), fetch, cfg.Mode())
		return nil
	}

	env.serveOps(ctx, svc)
	rep, runErr := svc.Run(ctx)
	env.writeMetrics(ctx)

	fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d fetched, %d skipped, %d failed, %d pruned\n",
		rep.RunID, rep.Fetched, rep.Skipped, rep.Failed, rep.Pruned)
	switch {
	case runErr == nil:
		return nil
	case errors.Is(runErr, context.Canceled):
		return wrapExit(exitFailure, "run interrupted", runErr)
	case errors.Is(runErr, service.ErrOutputRoot):
		return wrapExit(exitConfig, "output directory not writable", runErr)
	default:
		return wrapExit(exitFailure, "run failed", runErr)
	}
}

func newStatusCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "status",
		Short:         "Show what the ledger knows about the season",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := root.load(ctx)
			if err != nil {
				return err
			}
			if err := validate(cfg); err != nil {
				return err
			}
			env, err := openEnv(ctx, cfg, envOptions{stdout: cmd.OutOrStdout()})
			if err != nil {
				return err
			}
			defer env.close(ctx)

			svc := env.service()
			st, err := svc.Status(ctx)
			if err != nil {
				return wrapExit(exitFailure, "status failed", err)
			}
			return printStatus(cmd.OutOrStdout(), cfg.Season, st)
		},
	}
}

func printStatus(out io.Writer, season int, st service.Status) error {
	if len(st.Records) == 0 {
		fmt.Fprintf(out, "season %d: no units recorded\n", season)
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "EVENT\tSESSION\tSTATE\tPRODUCED\tATTEMPTS\tLAST ERROR")
	for _, r := range st.Records {
		kinds := make([]string, 0, len(r.Produced))
		for _, k := range r.Produced {
			kinds = append(kinds, string(k))
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%d\t%s\n", r.Key.Event, r.Key.Session, r.State, kinds, r.Attempts, r.LastError)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	states := make([]string, 0, len(st.Counts))
	for s := range st.Counts {
		states = append(states, string(s))
	}
	sort.Strings(states)
	fmt.Fprintf(out, "season %d:", season)
	for _, s := range states {
		fmt.Fprintf(out, " %s=%d", s, st.Counts[model.UnitState(s)])
	}
	fmt.Fprintln(out)

	if run := st.LastRun; run != nil {
		state := "running or interrupted"
		switch {
		case run.Error != "":
			state = "failed: " + run.Error
		case run.Finished():
			state = "finished " + run.FinishedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(out, "last run %s (%s): %d fetched, %d skipped, %d failed; %s\n",
			run.ID, run.Mode, run.Fetched, run.Skipped, run.Failed, state)
	}
	return nil
}

func newPruneCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Remove provider cache of every unit that is fully downloaded",
		Long: `Remove provider cache of every unit that is fully downloaded.

Only units recorded in the ledger are considered; units that are not done
keep their cache.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := root.load(ctx)
			if err != nil {
				return err
			}
			if err := validate(cfg); err != nil {
				return err
			}
			env, err := openEnv(ctx, cfg, envOptions{stdout: cmd.OutOrStdout()})
			if err != nil {
				return err
			}
			defer env.close(ctx)

			svc := env.service()
			res, err := svc.Prune(ctx)
			if err != nil {
				return wrapExit(exitFailure, "prune failed", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pruned %d, kept %d, errors %d\n", res.Pruned, res.Kept, res.Errors)
			return nil
		},
	}
}
