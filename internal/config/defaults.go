package config

const (
	defaultDataDir             = "~/.local/share/clipflow"
	defaultLogDir              = "~/.local/share/clipflow/logs"
	defaultAPIBind             = "127.0.0.1:7490"
	defaultPollInterval        = 60
	defaultDiscoveryTimeout    = 30
	defaultAnalysisTimeout     = 300
	defaultUploadTimeout       = 300
	defaultPostTimeout         = 60
	defaultMaxConcurrentJobs   = 2
	defaultJobTimeout          = 900
	defaultMaxStageRetries     = 3
	defaultRetryBackoffBase    = 10
	defaultRetryBackoffCeiling = 600
	defaultBacklogThreshold    = 25
	defaultMaxSizeMB           = 15
	defaultReencodeAttempts    = 3
	defaultCRF                 = 23
	defaultAudioBitrateKbps    = 128
	defaultHookSeconds         = 3.0
	defaultNotifyTimeout       = 10
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Discovery: Discovery{
			PollInterval:   defaultPollInterval,
			RequestTimeout: defaultDiscoveryTimeout,
		},
		Analysis: Analysis{
			TimeoutSeconds: defaultAnalysisTimeout,
		},
		Publish: Publish{
			UploadTimeout: defaultUploadTimeout,
			PostTimeout:   defaultPostTimeout,
		},
		Pipeline: Pipeline{
			MaxConcurrentJobs:   defaultMaxConcurrentJobs,
			JobTimeout:          defaultJobTimeout,
			MaxStageRetries:     defaultMaxStageRetries,
			RetryBackoffBase:    defaultRetryBackoffBase,
			RetryBackoffCeiling: defaultRetryBackoffCeiling,
			BacklogThreshold:    defaultBacklogThreshold,
		},
		Output: Output{
			MaxSizeMB:        defaultMaxSizeMB,
			ReencodeAttempts: defaultReencodeAttempts,
			CRF:              defaultCRF,
			AudioBitrateKbps: defaultAudioBitrateKbps,
			HookSeconds:      defaultHookSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Publishes:      true,
			Errors:         true,
			Passes:         false,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
