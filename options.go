// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package hostloop

// runOptions holds configuration options for Run.
type runOptions struct {
	logger         LoggerType
	metricsEnabled bool
}

// --- Run Options ---

// RunOption configures a Run invocation.
type RunOption interface {
	applyRun(*runOptions) error
}

// runOptionImpl implements RunOption.
type runOptionImpl struct {
	applyRunFunc func(*runOptions) error
}

func (r *runOptionImpl) applyRun(opts *runOptions) error {
	return r.applyRunFunc(opts)
}

// WithLogger attaches a structured logger to the runtime. A nil logger (the
// default) disables logging entirely; logiface builders are nil-safe, so the
// runtime pays only a nil check per site.
func WithLogger(logger LoggerType) RunOption {
	return &runOptionImpl{func(opts *runOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithMetrics enables runtime counter collection, readable via
// [Handle.Metrics]. Disabled by default; the counters are plain atomics, so
// the overhead when enabled is a handful of increments per host event.
func WithMetrics(enabled bool) RunOption {
	return &runOptionImpl{func(opts *runOptions) error {
		opts.metricsEnabled = enabled
		return nil
	}}
}

// resolveRunOptions applies RunOption instances to runOptions.
func resolveRunOptions(opts []RunOption) (*runOptions, error) {
	cfg := &runOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue // Skip nil options gracefully
		}
		if err := opt.applyRun(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
