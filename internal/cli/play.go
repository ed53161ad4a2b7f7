package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"airwave.click/internal/config"
	airfs "airwave.click/internal/fs"
	"airwave.click/internal/metrics"
	"airwave.click/internal/player"
	"airwave.click/internal/sink"
	"airwave.click/internal/source"
	"airwave.click/internal/status"
	"airwave.click/internal/tracking"
)

// playOptions are the per-run flags that never live in the config file
type playOptions struct {
	location   string
	format     string
	recordPath string
	silent     bool
	duration   time.Duration
}

// runPlayE is the root command: play one stream
func runPlayE(cmd *cobra.Command, args []string) error {
	cli, err := requireCLI(cmd)
	if err != nil {
		return err
	}

	if v, _ := cmd.Flags().GetBool("version"); v {
		printVersion(cmd.OutOrStdout())
		return nil
	}
	if len(args) == 0 {
		return cmd.Help()
	}

	cfg, err := loadAndValidateConfig(cmd, cli)
	if err != nil {
		return err
	}
	setupLogging(cfg, cli.configManager, cmd.ErrOrStderr())

	opts := playOptions{location: args[0]}
	opts.format, _ = cmd.Flags().GetString("format")
	opts.recordPath, _ = cmd.Flags().GetString("record")
	opts.silent, _ = cmd.Flags().GetBool("silent")
	opts.duration, _ = cmd.Flags().GetDuration("duration")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return cli.play(ctx, cmd, cfg, opts)
}

func (c *CLI) play(ctx context.Context, cmd *cobra.Command, cfg *config.Config, opts playOptions) error {
	emitter := status.NewEmitter()
	if c.isInteractive(cmd.ErrOrStderr()) {
		emitter.Add(newStatusPrinter(cmd.ErrOrStderr()).Hook())
	}

	c.initializeTracking(cfg)
	var recorder *tracking.Recorder
	if c.trackingDB != nil {
		recorder = tracking.NewRecorder(c.trackingDB, "")
		emitter.Add(recorder.Hook())
	}

	var collector *metrics.Collector
	if cfg.MetricsAddr != "" {
		collector = metrics.NewCollector("")
		emitter.Add(collector.Hook())
		addr, err := collector.Serve(ctx, cfg.MetricsAddr)
		if err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		slog.Info("serving metrics", "addr", addr.String())
	}

	pcfg := player.Config{
		Location:   opts.location,
		Format:     opts.format,
		RingSize:   cfg.RingBufferSize,
		BufferSize: cfg.BufferSize,
		Duration:   opts.duration,
		HTTPOptions: []source.HTTPOption{
			source.WithReconnect(cfg.ReconnectTries, cfg.ReconnectDelay()),
			source.WithReadTimeout(cfg.ReadTimeout()),
			source.WithUserAgent(cfg.UserAgent),
		},
		Fs:      airfs.ReadOnly(c.fs),
		Emitter: emitter,
	}
	if collector != nil {
		pcfg.OnStep = collector.Observe
	}

	p, err := player.Open(ctx, pcfg)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", opts.location, err)
	}
	defer p.Close()

	sinkOpts := sink.Options{
		Type:       cfg.Sink,
		Command:    cfg.Command,
		RecordPath: opts.recordPath,
		Volume:     float32(cfg.Volume),
	}
	if opts.silent {
		sinkOpts.Type = sink.TypeDiscard
		sinkOpts.Paced = true
	}
	out, err := c.sinkFactory.Create(sinkOpts)
	if err != nil {
		return fmt.Errorf("failed to create sink: %w", err)
	}

	if recorder != nil {
		if err := recorder.Start(opts.location, p.Format().Name, sinkOpts.Type); err != nil {
			slog.Warn("tracking session not recorded", "error", err)
		}
	}

	runErr := p.Run(ctx, out)
	st := p.Stats()

	result := tracking.ResultCompleted
	switch {
	case runErr != nil && ctx.Err() == nil:
		result = tracking.ResultFailed
	case ctx.Err() != nil:
		result = tracking.ResultStopped
	case pcfg.Duration > 0 && st.Elapsed >= pcfg.Duration:
		result = tracking.ResultStopped
	}

	if recorder != nil {
		err := recorder.Finish(tracking.Summary{
			Samples:      st.Engine.Samples,
			Frames:       st.Engine.Frames,
			DecodeErrors: st.Engine.DecodeErrors,
			Result:       result,
		})
		if err != nil {
			slog.Warn("tracking session not finished", "error", err)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s, %d frames, %d samples, %d decode errors in %s\n",
		result, st.Format, st.Engine.Frames, st.Engine.Samples, st.Engine.DecodeErrors,
		st.Elapsed.Round(time.Millisecond))

	if result == tracking.ResultFailed {
		return runErr
	}
	return nil
}
