package config

const (
	defaultDataDir                = "~/.local/share/planproc"
	defaultLogDir                 = "~/.local/share/planproc/logs"
	defaultAPIBind                = "127.0.0.1:7519"
	defaultLogLevel               = "info"
	defaultLogFormat              = "console"
	defaultPlanDeadline           = 3600
	defaultDeadlineResyncInterval = 60
	defaultNotifyRequestTimeout   = 10
	defaultNotifyErrorsPerMinute  = 6
	defaultNotifyErrorBurst       = 3
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
		Workflow: Workflow{
			PlanDeadline:           defaultPlanDeadline,
			DeadlineResyncInterval: defaultDeadlineResyncInterval,
		},
		Notifications: Notifications{
			RequestTimeout:  defaultNotifyRequestTimeout,
			Completion:      true,
			Failure:         true,
			ErrorsPerMinute: defaultNotifyErrorsPerMinute,
			ErrorBurst:      defaultNotifyErrorBurst,
		},
	}
}
