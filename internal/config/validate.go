package config

import (
	"errors"
	"fmt"
	"net"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or an error describing every problem found.
func Validate(cfg *Config) error {
	var errs []error

	// At least one source, from the command line or a playlist file
	if len(cfg.Sources) == 0 && cfg.PlaylistFile == "" {
		errs = append(errs, ValidationError{
			Field:   "sources",
			Message: "at least one source or --playlist is required",
		})
	}

	if cfg.WatchPlaylist && cfg.PlaylistFile == "" {
		errs = append(errs, ValidationError{
			Field:   "watch_playlist",
			Message: "requires --playlist",
		})
	}

	// -1 is forever; anything below is meaningless
	if cfg.Loop < -1 {
		errs = append(errs, ValidationError{
			Field:   "loop",
			Message: fmt.Sprintf("must be -1, 0 or positive (got %d)", cfg.Loop),
		})
	}

	validStrategies := map[string]bool{"rebuild": true, "seamless": true}
	if !validStrategies[cfg.Strategy] {
		errs = append(errs, ValidationError{
			Field:   "strategy",
			Message: fmt.Sprintf("must be 'rebuild' or 'seamless' (got %q)", cfg.Strategy),
		})
	}

	// Layers
	if cfg.Layer < 0 || cfg.BackgroundLayer < 0 {
		errs = append(errs, ValidationError{
			Field:   "layer",
			Message: "layers must not be negative",
		})
	}
	if cfg.Layer == cfg.BackgroundLayer {
		errs = append(errs, ValidationError{
			Field:   "background_layer",
			Message: fmt.Sprintf("must differ from layer (both %d)", cfg.Layer),
		})
	}

	// Engine
	if cfg.BufferNum < 1 {
		errs = append(errs, ValidationError{
			Field:   "buffer_num",
			Message: "must be at least 1",
		})
	}
	if cfg.BufferSize < 1 {
		errs = append(errs, ValidationError{
			Field:   "buffer_size",
			Message: "must be at least 1",
		})
	}
	if cfg.FrameSize < 1 {
		errs = append(errs, ValidationError{
			Field:   "frame_size",
			Message: "must be at least 1",
		})
	}
	if cfg.FrameInterval < 0 {
		errs = append(errs, ValidationError{
			Field:   "frame_interval",
			Message: "must not be negative",
		})
	}

	// Restart policy
	if cfg.RestartOnError < 0 {
		errs = append(errs, ValidationError{
			Field:   "restart_on_error",
			Message: "must not be negative",
		})
	}
	if cfg.BackoffInitial <= 0 {
		errs = append(errs, ValidationError{
			Field:   "backoff_initial",
			Message: "must be positive",
		})
	}
	if cfg.BackoffMax < cfg.BackoffInitial {
		errs = append(errs, ValidationError{
			Field:   "backoff_max",
			Message: "must be >= backoff_initial",
		})
	}
	if cfg.BackoffMultiply < 1.0 {
		errs = append(errs, ValidationError{
			Field:   "backoff_multiply",
			Message: "must be >= 1.0",
		})
	}

	// Observability
	if cfg.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.MetricsAddr); err != nil {
			errs = append(errs, ValidationError{
				Field:   "metrics_addr",
				Message: err.Error(),
			})
		}
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.LogFormat] {
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf("must be 'json' or 'text' (got %q)", cfg.LogFormat),
		})
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[cfg.LogLevel] {
		errs = append(errs, ValidationError{
			Field:   "log_level",
			Message: fmt.Sprintf("must be debug, info, warn or error (got %q)", cfg.LogLevel),
		})
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}
