// internal/logger/config.go
package logger

type Config struct {
	LogFile     string
	MaxSize     int  // megabytes
	MaxAge      int  // days
	MaxBackups  int  // number of rotated files
	Compress    bool // compress rotated files
	Development bool
}

// DefaultConfig returns the default logger configuration.
func DefaultConfig() *Config {
	return &Config{
		LogFile:     "swap.log",
		MaxSize:     100,
		MaxAge:      7,
		MaxBackups:  3,
		Compress:    true,
		Development: false,
	}
}
