package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"airwave.click/internal/status"
	"airwave.click/internal/tracking"
)

var errTrackingUnavailable = errors.New("tracking database unavailable")

// addFilterFlags registers the flags shared by events and sessions
func addFilterFlags(cmd *cobra.Command, defaultLimit int) {
	cmd.Flags().String("since", "", "Only show entries since a date, e.g. \"yesterday\" or \"2 hours ago\"")
	cmd.Flags().String("preset", "", "Date preset: today, yesterday, week, last-week, month, last-month, all")
	cmd.Flags().Int("days", 0, "Only show the last N days")
	cmd.Flags().String("session", "", "Only show one session")
	cmd.Flags().String("location", "", "Only show sessions whose location contains this")
	cmd.Flags().Int("limit", defaultLimit, "Maximum number of rows")
	cmd.Flags().Bool("json", false, "Print JSON instead of a table")
}

func newEventsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show recorded status events",
		Long:  "Show status events recorded during past playback sessions, newest first.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvents(cmd)
		},
	}
	addFilterFlags(cmd, 50)
	cmd.Flags().String("code", "", "Only show one status code, e.g. reconnecting")
	cmd.Flags().Bool("counts", false, "Show counts per status code instead of events")
	return cmd
}

func newSessionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Show recorded playback sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessions(cmd)
		},
	}
	addFilterFlags(cmd, 20)
	return cmd
}

// openTrackingForQuery loads the config and opens the tracking database
func openTrackingForQuery(cmd *cobra.Command) (*CLI, error) {
	cli, err := requireCLI(cmd)
	if err != nil {
		return nil, err
	}
	cfg, err := loadAndValidateConfig(cmd, cli)
	if err != nil {
		return nil, err
	}
	setupLogging(cfg, cli.configManager, cmd.ErrOrStderr())

	if cfg.Tracking == nil || !cfg.Tracking.Enabled {
		return nil, fmt.Errorf("%w: tracking is disabled", errTrackingUnavailable)
	}
	cli.initializeTracking(cfg)
	if cli.trackingDB == nil {
		return nil, fmt.Errorf("%w: %s", errTrackingUnavailable,
			cli.configManager.ResolveDatabasePath(cfg.Tracking))
	}
	return cli, nil
}

// buildFilter turns the filter flags into a QueryFilter
func buildFilter(cmd *cobra.Command, now time.Time) (tracking.QueryFilter, error) {
	var filter tracking.QueryFilter
	flags := cmd.Flags()

	filter.DatePreset, _ = flags.GetString("preset")
	filter.Days, _ = flags.GetInt("days")
	filter.SessionID, _ = flags.GetString("session")
	filter.Location, _ = flags.GetString("location")
	filter.Limit, _ = flags.GetInt("limit")

	if filter.DatePreset != "" {
		if _, _, err := tracking.ParseDatePreset(filter.DatePreset, now); err != nil {
			return filter, err
		}
	}
	if since, _ := flags.GetString("since"); since != "" {
		start, err := tracking.ParseNaturalDate(since, now)
		if err != nil {
			return filter, err
		}
		filter.StartTime = &start
	}
	if flags.Lookup("code") != nil {
		code, _ := flags.GetString("code")
		if code != "" {
			if _, ok := status.ParseCode(code); !ok {
				return filter, fmt.Errorf("unknown status code '%s'", code)
			}
			filter.Code = code
		}
	}
	return filter, nil
}

func runEvents(cmd *cobra.Command) error {
	filter, err := buildFilter(cmd, time.Now())
	if err != nil {
		return err
	}
	cli, err := openTrackingForQuery(cmd)
	if err != nil {
		return err
	}
	asJSON, _ := cmd.Flags().GetBool("json")
	out := cmd.OutOrStdout()

	if counts, _ := cmd.Flags().GetBool("counts"); counts {
		byCode, err := tracking.EventCounts(cli.trackingDB, filter)
		if err != nil {
			return fmt.Errorf("failed to count events: %w", err)
		}
		if asJSON {
			return writeJSON(out, byCode)
		}
		return printEventCounts(out, byCode)
	}

	events, err := tracking.RecentEvents(cli.trackingDB, filter)
	if err != nil {
		return fmt.Errorf("failed to query events: %w", err)
	}
	slog.Debug("events queried", "count", len(events))
	if asJSON {
		return writeJSON(out, events)
	}
	return printEvents(out, events)
}

func runSessions(cmd *cobra.Command) error {
	filter, err := buildFilter(cmd, time.Now())
	if err != nil {
		return err
	}
	cli, err := openTrackingForQuery(cmd)
	if err != nil {
		return err
	}

	sessions, err := tracking.SessionSummaries(cli.trackingDB, filter)
	if err != nil {
		return fmt.Errorf("failed to query sessions: %w", err)
	}
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return writeJSON(cmd.OutOrStdout(), sessions)
	}
	return printSessions(cmd.OutOrStdout(), sessions)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printEvents(w io.Writer, events []tracking.EventRecord) error {
	if len(events) == 0 {
		fmt.Fprintln(w, "No events recorded.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tCODE\tATTEMPT\tMESSAGE\tLOCATION")
	for _, ev := range events {
		attempt := "-"
		if ev.Attempt > 0 {
			attempt = fmt.Sprint(ev.Attempt)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			ev.Time.Local().Format(time.DateTime), ev.Code, attempt, ev.Message, ev.Location)
	}
	return tw.Flush()
}

func printEventCounts(w io.Writer, counts map[string]int) error {
	if len(counts) == 0 {
		fmt.Fprintln(w, "No events recorded.")
		return nil
	}
	codes := make([]string, 0, len(counts))
	for code := range counts {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool {
		if counts[codes[i]] != counts[codes[j]] {
			return counts[codes[i]] > counts[codes[j]]
		}
		return codes[i] < codes[j]
	})

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CODE\tCOUNT")
	for _, code := range codes {
		fmt.Fprintf(tw, "%s\t%d\n", code, counts[code])
	}
	return tw.Flush()
}

func printSessions(w io.Writer, sessions []tracking.SessionSummary) error {
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No sessions recorded.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tDURATION\tRESULT\tFORMAT\tSINK\tSAMPLES\tERRORS\tEVENTS\tLOCATION")
	for _, s := range sessions {
		result := s.Result
		if result == "" {
			result = "open"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			s.StartedAt.Local().Format(time.DateTime), s.Duration().Round(time.Second),
			result, s.Format, s.Sink, s.Samples, s.DecodeErrors, s.Events, s.Location)
	}
	return tw.Flush()
}
