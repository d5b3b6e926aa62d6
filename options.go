package audiograph

import (
	"fmt"
	"time"

	"github.com/joeycumines/logiface"
)

const (
	// DefaultChannels is the default output channel count.
	DefaultChannels = 2
	// DefaultSampleRate is the default sample rate, in Hz.
	DefaultSampleRate = 48000
	// DefaultQuantumSize is the default number of frames per render quantum.
	DefaultQuantumSize = 256
	// MaxChannels bounds the channel count of the graph and of any port.
	MaxChannels = 64
)

// graphOptions holds configuration for Graph creation.
type graphOptions struct {
	logger             *logiface.Logger[logiface.Event]
	logRates           map[time.Duration]int
	channels           int
	sampleRate         int
	quantumSize        int
	parallelism        int
	format             SampleFormat
	executeUnreachable bool
	strictValidation   bool
	leakTracking       bool
	metricsEnabled     bool
}

// Option configures a Graph.
type Option interface {
	applyGraph(*graphOptions) error
}

// graphOptionImpl implements Option.
type graphOptionImpl struct {
	applyGraphFunc func(*graphOptions) error
}

func (o *graphOptionImpl) applyGraph(opts *graphOptions) error {
	return o.applyGraphFunc(opts)
}

// WithChannels sets the channel count of the root node and of the mixed
// output.
func WithChannels(channels int) Option {
	return &graphOptionImpl{func(opts *graphOptions) error {
		if channels <= 0 || channels > MaxChannels {
			return fmt.Errorf("audiograph: invalid channel count %d: %w", channels, ErrInvalidChannelCount)
		}
		opts.channels = channels
		return nil
	}}
}

// WithSampleRate sets the sample rate passed to kernels and output drivers.
func WithSampleRate(rate int) Option {
	return &graphOptionImpl{func(opts *graphOptions) error {
		if rate <= 0 {
			return fmt.Errorf("audiograph: invalid sample rate %d", rate)
		}
		opts.sampleRate = rate
		return nil
	}}
}

// WithQuantumSize sets the number of frames rendered per quantum. The render
// clock advances by this amount every quantum.
func WithQuantumSize(frames int) Option {
	return &graphOptionImpl{func(opts *graphOptions) error {
		if frames <= 0 {
			return fmt.Errorf("audiograph: invalid quantum size %d", frames)
		}
		opts.quantumSize = frames
		return nil
	}}
}

// WithSampleFormat sets the format reported to output drivers. Mixing is
// always performed in float32.
func WithSampleFormat(format SampleFormat) Option {
	return &graphOptionImpl{func(opts *graphOptions) error {
		if !format.valid() {
			return fmt.Errorf("audiograph: invalid sample format %d", format)
		}
		opts.format = format
		return nil
	}}
}

// WithParallelism sets the number of goroutines executing nodes, including
// the rendering goroutine. Values of 1 or less render sequentially.
func WithParallelism(n int) Option {
	return &graphOptionImpl{func(opts *graphOptions) error {
		opts.parallelism = max(n, 1)
		return nil
	}}
}

// WithExecuteUnreachable sets whether nodes that do not feed the root are
// executed anyway. By default they are skipped.
func WithExecuteUnreachable(enabled bool) Option {
	return &graphOptionImpl{func(opts *graphOptions) error {
		opts.executeUnreachable = enabled
		return nil
	}}
}

// WithStrictValidation makes schedule-time validation failures panic with
// the *CommandError, rather than logging and skipping the command. It
// defaults to enabled when built with the audiographdebug tag.
func WithStrictValidation(enabled bool) Option {
	return &graphOptionImpl{func(opts *graphOptions) error {
		opts.strictValidation = enabled
		return nil
	}}
}

// WithLeakTracking records every job memory block, kernel allocation and
// interpolation key, and logs those still outstanding when the graph is
// disposed. It adds a mutex to allocation paths and is meant for debugging.
func WithLeakTracking(enabled bool) Option {
	return &graphOptionImpl{func(opts *graphOptions) error {
		opts.leakTracking = enabled
		return nil
	}}
}

// WithMetrics enables render metrics, accessible via Graph.Metrics.
func WithMetrics(enabled bool) Option {
	return &graphOptionImpl{func(opts *graphOptions) error {
		opts.metricsEnabled = enabled
		return nil
	}}
}

// WithLogger sets the structured logger. A nil logger disables logging.
//
// Failed commands and overruns are logged from the render path, as they
// happen. Each such entry passes through the rate limiter, which takes a
// mutex, and builds an event, which allocates. Quanta without failures or
// overruns touch neither. Use WithLogRateLimits to bound the cost.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &graphOptionImpl{func(opts *graphOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithLogRateLimits sets the per-category sliding window limits applied to
// log entries emitted from the render path, in the form accepted by
// catrate.NewLimiter. A nil or empty map disables rate limiting.
func WithLogRateLimits(rates map[time.Duration]int) Option {
	return &graphOptionImpl{func(opts *graphOptions) error {
		opts.logRates = rates
		return nil
	}}
}

// resolveGraphOptions applies Option instances to graphOptions.
func resolveGraphOptions(opts []Option) (*graphOptions, error) {
	cfg := &graphOptions{
		channels:         DefaultChannels,
		sampleRate:       DefaultSampleRate,
		quantumSize:      DefaultQuantumSize,
		parallelism:      1,
		format:           SampleFormatFloat32,
		strictValidation: defaultStrictValidation,
		logRates: map[time.Duration]int{
			time.Second: 10,
			time.Minute: 100,
		},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyGraph(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
