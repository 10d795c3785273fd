package selfenc

import (
	"fmt"
	"runtime"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/bitfsorg/selfenc-go/codec"
	"github.com/bitfsorg/selfenc-go/config"
	"github.com/bitfsorg/selfenc-go/metrics"
)

// DefaultCacheSize is the number of decrypted chunks kept for sliding reads.
const DefaultCacheSize = 8

// tracerName identifies spans emitted by this package.
const tracerName = "github.com/bitfsorg/selfenc-go/selfenc"

type options struct {
	params      codec.Params
	compression codec.Compression
	logger      logrus.FieldLogger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	workers     int
	cacheSize   int
}

func defaultOptions() options {
	return options{
		params:      codec.DefaultParams(),
		compression: codec.CompressNone,
		logger:      logrus.StandardLogger(),
		tracer:      otel.GetTracerProvider().Tracer(tracerName),
		workers:     runtime.GOMAXPROCS(0),
		cacheSize:   DefaultCacheSize,
	}
}

// Option configures a SelfEncryptor.
type Option func(*options) error

// WithParams sets the chunk size thresholds.
func WithParams(p codec.Params) Option {
	return func(o *options) error {
		if err := p.Validate(); err != nil {
			return err
		}
		o.params = p
		return nil
	}
}

// WithCompression sets the scheme applied to chunks before encryption.
func WithCompression(c codec.Compression) Option {
	return func(o *options) error {
		if !c.Valid() {
			return fmt.Errorf("%w: %w: %s", ErrInvalidOption, codec.ErrUnsupportedCompression, c)
		}
		o.compression = c
		return nil
	}
}

// WithLogger sets the logger. Nil keeps the logrus standard logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) error {
		if l != nil {
			o.logger = l
		}
		return nil
	}
}

// WithMetrics enables Prometheus recording.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) error {
		o.metrics = m
		return nil
	}
}

// WithTracerProvider sets the OpenTelemetry provider. Nil keeps the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) error {
		if tp != nil {
			o.tracer = tp.Tracer(tracerName)
		}
		return nil
	}
}

// WithWorkers bounds close parallelism. Zero means GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) error {
		if n < 0 {
			return fmt.Errorf("%w: workers %d", ErrInvalidOption, n)
		}
		if n == 0 {
			n = runtime.GOMAXPROCS(0)
		}
		o.workers = n
		return nil
	}
}

// WithCacheSize sets how many decrypted chunks are cached. Zero disables
// the cache.
func WithCacheSize(n int) Option {
	return func(o *options) error {
		if n < 0 {
			return fmt.Errorf("%w: cache size %d", ErrInvalidOption, n)
		}
		o.cacheSize = n
		return nil
	}
}

// OptionsFromConfig translates the engine settings of cfg.
func OptionsFromConfig(cfg config.Config) ([]Option, error) {
	scheme, err := codec.ParseCompression(cfg.Compression)
	if err != nil {
		return nil, err
	}
	return []Option{
		WithParams(codec.Params{MinChunkSize: cfg.MinChunk, MaxChunkSize: cfg.MaxChunk}),
		WithCompression(scheme),
		WithWorkers(cfg.Workers),
		WithCacheSize(cfg.CacheChunks),
	}, nil
}
