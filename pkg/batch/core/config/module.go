package config

import "go.uber.org/fx"

// NewLoggingConfigProvider extracts *LoggingConfig from *Config.
func NewLoggingConfigProvider(cfg *Config) *LoggingConfig {
	return &cfg.Sweep.System.Logging
}

// NewRunStateConfigProvider extracts *RunStateConfig from *Config.
func NewRunStateConfigProvider(cfg *Config) *RunStateConfig {
	return &cfg.Sweep.RunState
}

// NewDispatchConfigProvider extracts *DispatchConfig from *Config.
func NewDispatchConfigProvider(cfg *Config) *DispatchConfig {
	return &cfg.Sweep.Dispatch
}

// Module provides the section providers and the EnvironmentExpander.
// *Config itself is supplied by the caller, which loads it before the fx graph is built.
var Module = fx.Options(
	fx.Provide(NewLoggingConfigProvider),
	fx.Provide(NewRunStateConfigProvider),
	fx.Provide(NewDispatchConfigProvider),
	fx.Provide(func() EnvironmentExpander {
		return NewOsEnvironmentExpander()
	}),
)
