package telemetry

import "github.com/felixgeelhaar/campusconnect/internal/version"

// Config holds configuration for the tracer
type Config struct {
	// ServiceName is reported as service.name
	ServiceName string

	// ServiceVersion is reported as service.version
	ServiceVersion string

	// Environment is the deployment environment (development, staging, production)
	Environment string

	// Enabled determines whether tracing is enabled.
	// When false, a noop tracer is used
	Enabled bool

	// Endpoint is the OTLP/HTTP collector URL, e.g. http://localhost:4318.
	// If empty, spans are recorded but not exported
	Endpoint string

	// Insecure sends spans over plain HTTP when Endpoint has no scheme
	Insecure bool

	// SampleRate is the fraction of root traces to sample (0.0 to 1.0)
	SampleRate float64
}

// DefaultConfig returns the configuration used when nothing is configured.
// Tracing is off for the CLI unless asked for.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "campusconnect",
		ServiceVersion: version.GetInfo().Short(),
		Environment:    "development",
		SampleRate:     1.0,
	}
}
