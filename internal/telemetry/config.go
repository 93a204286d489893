package telemetry

// Config configures span export.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	Endpoint       string  // OTLP/gRPC collector, host:port
	Insecure       bool    // plaintext gRPC
	SampleRate     float64 // fraction of root spans kept, 0 to 1
}

// DefaultConfig exports nothing. Enabling it targets a local collector.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "layerfs",
		ServiceVersion: "dev",
		Endpoint:       "localhost:4317",
		Insecure:       true,
		SampleRate:     1.0,
	}
}

// ProfilingConfig configures continuous profiling. Profiles carry the
// service version as a tag.
type ProfilingConfig struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	Endpoint       string   // Pyroscope server URL
	ProfileTypes   []string // see profileTypes for accepted names
}
