// Command graphplay builds a small audio graph, a sine oscillator through a
// gain stage and a peak meter, and plays it on the default audio device, or
// renders it headless.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joeycumines/go-audiograph"
	"github.com/joeycumines/go-audiograph/kernels"
	"github.com/joeycumines/go-audiograph/output"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	defaultFrequency = 440
	defaultDuration  = 3 * time.Second
	defaultFade      = 250 * time.Millisecond
	meterInterval    = 500 * time.Millisecond
)

type config struct {
	ConfigFile  string
	LogLevel    string
	SampleRate  int
	Channels    int
	Quantum     int
	Parallel    int
	Frequency   float64
	Amplitude   float64
	Duration    time.Duration
	Fade        time.Duration
	Latency     time.Duration
	Headless    bool
	Int16       bool
	LeakTracked bool
}

func main() {
	if err := newRootCommand(os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand(logOutput io.Writer) *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:   "graphplay",
		Short: "Play a sine tone through an audiograph render graph",
		Long: `graphplay builds sine -> gain -> peak meter -> root, fades the gain in and
out, and renders the graph for the requested duration, either to the default
audio device or, with --headless, as fast as possible into memory.

Every flag may also be set by an AUDIOGRAPH_ prefixed environment variable,
or a config file.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, logOutput, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.String("config", "", "Path to a configuration file (yaml, json or toml)")
	f.String("log-level", "info", "Log level (debug, info, notice, warning, error)")
	f.Int("sample-rate", audiograph.DefaultSampleRate, "Sample rate, in Hz")
	f.Int("channels", audiograph.DefaultChannels, "Output channel count")
	f.Int("quantum", audiograph.DefaultQuantumSize, "Frames per render quantum")
	f.Int("parallel", 1, "Number of goroutines executing nodes")
	f.Float64("frequency", defaultFrequency, "Tone frequency, in Hz")
	f.Float64("amplitude", 0.25, "Tone amplitude, 0 to 1")
	f.Duration("duration", defaultDuration, "How long to play")
	f.Duration("fade", defaultFade, "Fade in and out time")
	f.Duration("latency", 0, "Audio device buffer size (0 for the driver default)")
	f.Bool("headless", !output.Available, "Render into memory instead of the audio device")
	f.Bool("int16", false, "Ask the device for 16-bit samples")
	f.Bool("leak-tracking", false, "Report allocations outstanding at exit")

	_ = v.BindPFlags(f)
	v.SetEnvPrefix("AUDIOGRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return cmd
}

func loadConfig(v *viper.Viper) (*config, error) {
	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}
	cfg := &config{
		ConfigFile:  v.GetString("config"),
		LogLevel:    v.GetString("log-level"),
		SampleRate:  v.GetInt("sample-rate"),
		Channels:    v.GetInt("channels"),
		Quantum:     v.GetInt("quantum"),
		Parallel:    v.GetInt("parallel"),
		Frequency:   v.GetFloat64("frequency"),
		Amplitude:   v.GetFloat64("amplitude"),
		Duration:    v.GetDuration("duration"),
		Fade:        v.GetDuration("fade"),
		Latency:     v.GetDuration("latency"),
		Headless:    v.GetBool("headless"),
		Int16:       v.GetBool("int16"),
		LeakTracked: v.GetBool("leak-tracking"),
	}
	if cfg.Duration <= 0 {
		return nil, fmt.Errorf("duration must be positive, got %s", cfg.Duration)
	}
	if cfg.Fade < 0 || 2*cfg.Fade > cfg.Duration {
		return nil, fmt.Errorf("fade %s does not fit duration %s", cfg.Fade, cfg.Duration)
	}
	if _, err := parseLevel(cfg.LogLevel); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseLevel(s string) (logiface.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return logiface.LevelDebug, nil
	case "info", "informational":
		return logiface.LevelInformational, nil
	case "notice":
		return logiface.LevelNotice, nil
	case "warn", "warning":
		return logiface.LevelWarning, nil
	case "err", "error":
		return logiface.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

func newLogger(w io.Writer, level logiface.Level) *logiface.Logger[logiface.Event] {
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		stumpy.L.WithLevel(level),
	).Logger()
}

// patch is the demo graph.
type patch struct {
	sine  audiograph.NodeHandle
	gain  audiograph.NodeHandle
	meter audiograph.NodeHandle
}

func buildPatch(g *audiograph.Graph, cfg *config) (*patch, error) {
	var p patch
	b := g.NewCommandBlock()
	err := func() (err error) {
		if p.sine, err = kernels.CreateSine(b, 1); err != nil {
			return err
		}
		if p.gain, err = kernels.CreateGain(b, 1); err != nil {
			return err
		}
		if p.meter, err = kernels.CreatePeakMeter(b, g.Channels()); err != nil {
			return err
		}
		if err = b.SetFloat(p.sine, kernels.SineFrequency, float32(cfg.Frequency)); err != nil {
			return err
		}
		if err = b.SetFloat(p.sine, kernels.SineAmplitude, float32(cfg.Amplitude)); err != nil {
			return err
		}
		if _, err = b.Connect(p.sine, 0, p.gain, 0); err != nil {
			return err
		}
		// the mono gain output is spread over every meter channel
		if _, err = b.Connect(p.gain, 0, p.meter, 0); err != nil {
			return err
		}
		if _, err = b.Connect(p.meter, 0, g.Root(), 0); err != nil {
			return err
		}
		return scheduleFades(b, p.gain, g, cfg)
	}()
	if err != nil {
		b.Cancel()
		return nil, err
	}
	return &p, b.Complete()
}

// scheduleFades ramps the gain from silence, holds it, then ramps back to
// silence at the end of the duration.
func scheduleFades(b *audiograph.CommandBlock, gain audiograph.NodeHandle, g *audiograph.Graph, cfg *config) error {
	rate := float64(g.SampleRate())
	start := g.Clock()
	total := start + uint64(cfg.Duration.Seconds()*rate)
	fade := uint64(cfg.Fade.Seconds() * rate)
	if fade == 0 {
		return nil
	}
	if err := b.SetFloat(gain, kernels.GainLevel, 0); err != nil {
		return err
	}
	if err := b.AddFloatKey(gain, kernels.GainLevel, start+fade, 1); err != nil {
		return err
	}
	if err := b.SustainFloat(gain, kernels.GainLevel, total-fade); err != nil {
		return err
	}
	return b.AddFloatKey(gain, kernels.GainLevel, total, 0)
}

func run(ctx context.Context, cfg *config, logOutput, out io.Writer) error {
	level, _ := parseLevel(cfg.LogLevel)
	logger := newLogger(logOutput, level)

	format := audiograph.SampleFormatFloat32
	if cfg.Int16 {
		format = audiograph.SampleFormatInt16
	}

	g, err := audiograph.New(
		audiograph.WithLogger(logger),
		audiograph.WithChannels(cfg.Channels),
		audiograph.WithSampleRate(cfg.SampleRate),
		audiograph.WithQuantumSize(cfg.Quantum),
		audiograph.WithParallelism(cfg.Parallel),
		audiograph.WithSampleFormat(format),
		audiograph.WithMetrics(true),
		audiograph.WithLeakTracking(cfg.LeakTracked),
	)
	if err != nil {
		return err
	}
	defer g.Dispose()

	p, err := buildPatch(g, cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	dispatchDone := make(chan error, 1)
	go func() { dispatchDone <- g.Dispatch(ctx, nil) }()

	submitter := g.NewSubmitter(nil)
	defer submitter.Close()
	go pollMeter(ctx, submitter, p.meter, logger)

	logger.Info().
		Int(`sample_rate`, cfg.SampleRate).
		Int(`channels`, cfg.Channels).
		Float64(`frequency`, cfg.Frequency).
		Dur(`duration`, cfg.Duration).
		Bool(`headless`, cfg.Headless).
		Log(`playing`)

	if cfg.Headless {
		err = renderHeadless(ctx, g, cfg)
	} else {
		err = play(ctx, g, cfg)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	_ = submitter.Shutdown(context.Background())
	cancel()
	<-dispatchDone

	m := g.Metrics()
	_, err = fmt.Fprintf(out,
		"quanta=%d commands=%d failed=%d overruns=%d latency p50=%s p99=%s max=%s\n",
		m.Quanta, m.CommandsApplied, m.CommandsFailed, m.Overruns,
		m.Latency.P50, m.Latency.P99, m.Latency.Max,
	)
	return err
}

func renderHeadless(ctx context.Context, g *audiograph.Graph, cfg *config) error {
	d := output.NewHeadless(0)
	if err := g.AttachOutput(d); err != nil {
		return err
	}
	total := int(cfg.Duration.Seconds() * float64(cfg.SampleRate))
	for d.Frames() < total {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := g.OutputMix(nil, min(cfg.Quantum, total-d.Frames())); err != nil {
			return err
		}
	}
	return nil
}

func play(ctx context.Context, g *audiograph.Graph, cfg *config) error {
	d := output.NewOto(cfg.Latency)
	if err := g.AttachOutput(d); err != nil {
		return err
	}
	if err := d.Play(g); err != nil {
		return err
	}
	timer := time.NewTimer(cfg.Duration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		d.Pause()
		return nil
	}
}

// pollMeter periodically reads and resets the peak meter, logging the
// result.
func pollMeter(ctx context.Context, s *audiograph.Submitter, meter audiograph.NodeHandle, logger *logiface.Logger[logiface.Event]) {
	ticker := time.NewTicker(meterInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		var peak float32
		_, err := s.Submit(ctx, func(b *audiograph.CommandBlock) error {
			_, err := b.CreateUpdateRequest(meter, audiograph.UpdateAs(func(m *kernels.PeakMeter) error {
				peak = m.Reset()
				return nil
			}), func(r *audiograph.UpdateRequest) {
				if r.Err() == nil {
					logger.Debug().
						Float32(`peak`, peak).
						Log(`meter`)
				}
				_ = r.Dispose()
			})
			return err
		})
		if err != nil {
			return
		}
	}
}
