package types

// RunMode is the deployment mode the binary starts in
type RunMode string

const (
	// ModeLocal runs the API server and the in-process job scheduler together
	ModeLocal RunMode = "local"
	// ModeAPI runs only the HTTP API including the cron trigger endpoints
	ModeAPI RunMode = "api"
	// ModeCron runs the billing jobs once and exits; meant for external schedulers
	ModeCron RunMode = "cron"
)

// LogLevel is the logging level for the application
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// GatewayProvider selects the payment gateway implementation
type GatewayProvider string

const (
	GatewayProviderStripe GatewayProvider = "stripe"
	GatewayProviderFake   GatewayProvider = "fake"
)
