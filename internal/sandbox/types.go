package sandbox

import (
	"errors"
	"time"

	"github.com/GriffinCanCode/scriptkit/internal/shared/id"
	"github.com/bytedance/sonic"
)

var (
	ErrTimeout     = errors.New("execution timeout exceeded")
	ErrRejected    = errors.New("script promise rejected")
	ErrNeverSettle = errors.New("script promise never settled")
	ErrClosed      = errors.New("sandbox is closed")
)

// Config defines sandbox configuration
type Config struct {
	Timeout          time.Duration // Execution timeout, event loop included
	EnableConsole    bool          // Allow console.log/warn/error
	MaxCallStackSize int           // Zero leaves the goja default
	ConsoleRate      float64       // Console entries per second, zero is unlimited
	ConsoleBurst     int
}

// Result holds execution result
type Result struct {
	ID       id.ExecutionID `json:"id"`
	Value    any            `json:"value"`
	Console  []LogEntry     `json:"console"`
	Dropped  int            `json:"console_dropped,omitempty"` // Console entries over the rate limit
	Duration time.Duration  `json:"duration_ns"`
	Error    error          `json:"-"`
}

// LogEntry represents console output
type LogEntry struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// JSON encodes the result with sorted object keys
func (r *Result) JSON() ([]byte, error) {
	return sonic.ConfigStd.Marshal(r)
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		Timeout:          30 * time.Second,
		EnableConsole:    true,
		MaxCallStackSize: 1024,
		ConsoleBurst:     100,
	}
}
