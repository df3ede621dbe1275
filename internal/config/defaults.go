package config

const (
	defaultStateDir            = "~/.local/share/callpipe/state"
	defaultOutputDir           = "~/.local/share/callpipe/output"
	defaultLogDir              = "~/.local/share/callpipe/logs"
	defaultLogLevel            = "info"
	defaultLogFormat           = "console"
	defaultPageSize            = 100
	defaultSourceTimeout       = 60
	defaultDownloadConcurrency = 4
	defaultDownloadTimeout     = 120
	defaultTempSuffix          = ".part"
	defaultTranscribeModel     = "large-v3"
	defaultTranscribeLanguage  = "cs"
	defaultTranscribeWorkers   = 2
	defaultTranscribeTimeout   = 900
	defaultAnonymizeSalt       = "callpipe"
	defaultAnonymizeWorkers    = 4
	defaultUploadTimeout       = 120
	defaultMaxRetry            = 3
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:  defaultStateDir,
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
		Source: Source{
			PageSize:       defaultPageSize,
			TimeoutSeconds: defaultSourceTimeout,
		},
		Download: Download{
			Concurrency:       defaultDownloadConcurrency,
			TempSuffix:        defaultTempSuffix,
			ValidateOggHeader: true,
			TimeoutSeconds:    defaultDownloadTimeout,
		},
		Transcribe: Transcribe{
			Model:          defaultTranscribeModel,
			Language:       defaultTranscribeLanguage,
			Concurrency:    defaultTranscribeWorkers,
			TimeoutSeconds: defaultTranscribeTimeout,
		},
		Anonymize: Anonymize{
			Salt:        defaultAnonymizeSalt,
			Concurrency: defaultAnonymizeWorkers,
		},
		Upload: Upload{
			TimeoutSeconds: defaultUploadTimeout,
		},
		Retry: Retry{
			MaxRetry: defaultMaxRetry,
		},
	}
}
