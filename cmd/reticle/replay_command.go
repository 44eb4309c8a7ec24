package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"reticle/internal/camera"
	"reticle/internal/config"
	"reticle/internal/daemon"
	"reticle/internal/detector/replay"
	"reticle/internal/engine"
	"reticle/internal/logging"
	"reticle/internal/workflow"
)

type replayOptions struct {
	Mode     string
	Manual   bool
	Duration time.Duration
	JSON     bool
	LogJSON  string
	Verbose  bool
}

// replayReport is the outcome of one scripted session.
type replayReport struct {
	Script      string                 `json:"script"`
	Frames      camera.SourceStats     `json:"frames"`
	Session     engine.StatusSummary   `json:"session"`
	Transitions []workflow.Transition  `json:"transitions"`
	Result      *daemon.ResultResponse `json:"result,omitempty"`
}

func newReplayCommand(ctx *commandContext) *cobra.Command {
	var opts replayOptions
	cmd := &cobra.Command{
		Use:   "replay <script>",
		Short: "Run a scripted camera session through the engine and print its transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			report, err := runReplay(cmd.Context(), *cfg, args[0], opts)
			if err != nil {
				return err
			}
			if opts.JSON {
				return writeJSON(cmd, report)
			}
			renderReplayReport(newPrinter(cmd.OutOrStdout()), report)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.Mode, "mode", "", "Detection mode override (multi_object, prominent_object, barcode)")
	cmd.Flags().BoolVar(&opts.Manual, "manual", false, "Require an explicit search after confirmation")
	cmd.Flags().DurationVar(&opts.Duration, "duration", 0, "Stop after this long (required for looping scripts)")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Output the report as JSON")
	cmd.Flags().StringVar(&opts.LogJSON, "log-json", "", "Also write JSON logs to this file")
	cmd.Flags().BoolVarP(&opts.Verbose, "verbose", "v", false, "Write session logs to stderr")
	return cmd
}

func runReplay(parent context.Context, cfg config.Config, path string, opts replayOptions) (*replayReport, error) {
	if parent == nil {
		parent = context.Background()
	}
	if opts.Mode != "" {
		cfg.Detection.Mode = strings.TrimSpace(opts.Mode)
	}
	if opts.Manual {
		cfg.Search.Mode = config.SearchModeManual
	}

	script, err := replay.Load(path)
	if err != nil {
		return nil, err
	}
	if script.Loop && opts.Duration <= 0 {
		return nil, errors.New("script loops forever; pass --duration to bound the replay")
	}

	logger, err := replayLogger(cfg, opts)
	if err != nil {
		return nil, err
	}

	backends := daemon.BuildBackends(parent, &cfg, logger)
	defer backends.Close()

	engineOpts, err := engine.OptionsFromConfig(&cfg)
	if err != nil {
		return nil, err
	}
	machine := workflow.New(logger, workflow.WithHistory(4096))
	eng, err := engine.New(replay.New(script), backends.Lookup, engineOpts, logger, engine.WithMachine(machine))
	if err != nil {
		return nil, err
	}
	defer eng.Stop()

	runCtx := parent
	if opts.Duration > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(parent, opts.Duration)
		defer cancel()
	}
	if err := eng.Start(runCtx); err != nil {
		return nil, err
	}

	source := camera.NewScriptSource(script)
	if err := source.Run(runCtx, eng); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}
	settle(parent, eng, machine, script, cfg.SearchTimeout())

	report := &replayReport{
		Script:      path,
		Frames:      source.Stats(),
		Session:     eng.Status(),
		Transitions: machine.History(),
	}
	if evt, ok := machine.LastEntity(); ok {
		res := daemon.NewResultResponse(evt)
		report.Result = &res
	}
	return report, nil
}

// settle lets the last in-flight detection land and any outstanding lookup
// finish before the report is taken.
func settle(ctx context.Context, eng *engine.Engine, machine *workflow.StateMachine, script *replay.Script, searchTimeout time.Duration) {
	timer := time.NewTimer(script.Tick() + script.Latency())
	select {
	case <-ctx.Done():
		timer.Stop()
		return
	case <-timer.C:
	}

	if eng.State() != workflow.Searching {
		return
	}
	if searchTimeout <= 0 {
		searchTimeout = 10 * time.Second
	}
	waitCtx, cancel := context.WithTimeout(ctx, searchTimeout+time.Second)
	defer cancel()
	snap := machine.Snapshot()
	for snap.State == workflow.Searching {
		next, err := machine.Wait(waitCtx, snap.Version)
		if err != nil {
			return
		}
		snap = next
	}
}

func replayLogger(cfg config.Config, opts replayOptions) (*slog.Logger, error) {
	var logger *slog.Logger
	if opts.Verbose {
		console, err := logging.New(logging.Options{
			Level:       cfg.Logging.Level,
			Format:      "console",
			OutputPaths: []string{"stderr"},
		})
		if err != nil {
			return nil, err
		}
		logger = console
	}
	if path := strings.TrimSpace(opts.LogJSON); path != "" {
		jsonLogger, err := logging.New(logging.Options{
			Level:            cfg.Logging.Level,
			Format:           "json",
			OutputPaths:      []string{path},
			ErrorOutputPaths: []string{path},
		})
		if err != nil {
			return nil, fmt.Errorf("open json log: %w", err)
		}
		logger = logging.TeeLogger(logger, jsonLogger.Handler())
	}
	if logger == nil {
		return logging.NewNop(), nil
	}
	return logger, nil
}

func renderReplayReport(p *printer, report *replayReport) {
	p.section("Session")
	p.row("Script", toneInfo, report.Script)
	p.row("Mode", toneInfo, string(report.Session.Mode))
	p.row("Auto search", toneInfo, yesNo(report.Session.AutoSearch))
	p.rowf("Frames", toneInfo, "%d emitted, %d accepted, %d detected",
		report.Frames.Emitted, report.Frames.Accepted, report.Session.Pipeline.Processed)
	p.row("Final state", stateTone(report.Session.State), report.Session.State.String())
	p.blank()

	p.section("Transitions")
	p.table([]string{"#", "Elapsed", "From", "To", "Reason"}, transitionRows(report.Transitions),
		text.AlignRight, text.AlignRight)
	p.blank()

	if report.Result != nil {
		renderResult(p, report.Result)
	}
}

// transitionRows lists transitions with their offset from the first one.
func transitionRows(transitions []workflow.Transition) [][]string {
	rows := make([][]string, 0, len(transitions))
	var origin time.Time
	if len(transitions) > 0 {
		origin = transitions[0].At
	}
	for _, tr := range transitions {
		rows = append(rows, []string{
			strconv.FormatUint(tr.Version, 10),
			fmt.Sprintf("+%dms", tr.At.Sub(origin).Milliseconds()),
			tr.From.String(),
			tr.To.String(),
			tr.Reason,
		})
	}
	return rows
}
