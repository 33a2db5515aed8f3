package config

import (
	"io"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogOutput returns stdout, tee'd into a size-rotated file when log.file is set.
func (c *Config) LogOutput() io.Writer {
	if c.Log.File == "" {
		return os.Stdout
	}
	return io.MultiWriter(os.Stdout, &lumberjack.Logger{
		Filename:   c.Log.File,
		MaxSize:    c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAge:     c.Log.MaxAgeDays,
		Compress:   true,
	})
}
