package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"   validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Protein  ProteinConfig  `mapstructure:"protein"  validate:"required"`
	Worker   WorkerConfig   `mapstructure:"worker"   validate:"required"`
	Engine   EngineConfig   `mapstructure:"engine"   validate:"required"`
	Callback CallbackConfig `mapstructure:"callback" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// ProteinConfig configures the protein store resolver: the local cache
// directory, the remote archive consulted on cache miss, and the
// optional identifier remap table.
type ProteinConfig struct {
	// CacheDir is the directory of ${id}.pdb / ${id}.pdb.gz structure files.
	CacheDir string `mapstructure:"cache_dir" validate:"required"`

	// ArchiveBaseURL is the remote archive queried on local cache miss.
	// Empty disables remote fetching, making unknown identifiers a hard
	// not-found.
	ArchiveBaseURL string `mapstructure:"archive_base_url" validate:"omitempty,url"`

	// RemapPath points at an optional CSV of old-name,canonical-name
	// pairs consulted before the cache lookup.
	RemapPath string `mapstructure:"remap_path"`

	// MinFileBytes rejects structure files smaller than this as corrupt.
	MinFileBytes int64 `mapstructure:"min_file_bytes" validate:"gte=0"`

	// FetchTimeout bounds one remote archive transfer.
	FetchTimeout time.Duration `mapstructure:"fetch_timeout" validate:"gt=0"`
}

// WorkerConfig configures the GPU worker pool.
type WorkerConfig struct {
	// AcceleratorCount is the number of accelerator-pinned workers.
	// Each worker is bound to one accelerator index and runs one job at
	// a time.
	AcceleratorCount int `mapstructure:"accelerator_count" validate:"required,gt=0"`

	// QueueSize is the in-memory dispatch buffer between intake and the
	// worker pool.
	QueueSize int `mapstructure:"queue_size" validate:"required,gt=0"`

	// JobTimeout is the wall-clock budget for one inference run.
	// Exceeding it counts as a transient failure.
	JobTimeout time.Duration `mapstructure:"job_timeout" validate:"gt=0"`

	// MaxJobAttempts caps how many times a job is run before a
	// transient failure becomes terminal.
	MaxJobAttempts int `mapstructure:"max_job_attempts" validate:"required,gte=1"`

	// ResultsDir is where result artifacts (docking poses) are stored.
	ResultsDir string `mapstructure:"results_dir" validate:"required"`

	// StuckDeliveryCheckInterval is how often the runner scans for
	// callback deliveries that stopped without recording an outcome.
	StuckDeliveryCheckInterval time.Duration `mapstructure:"stuck_delivery_check_interval" validate:"gt=0"`

	// StuckDeliveryAge is how long a job may sit in the delivering
	// status before it is released for a fresh delivery sequence.
	StuckDeliveryAge time.Duration `mapstructure:"stuck_delivery_age" validate:"gt=0"`
}

// EngineConfig configures how the DiffDock inference subprocess is
// invoked. The engine itself is an external collaborator; these
// settings only shape the command line.
type EngineConfig struct {
	// Python is the interpreter used to launch the inference module.
	Python string `mapstructure:"python" validate:"required"`

	// WorkDir is the directory the inference module runs in (the
	// DiffDock checkout).
	WorkDir string `mapstructure:"work_dir"`

	// ConfigPath is the inference argument file passed via --config.
	ConfigPath string `mapstructure:"config_path" validate:"required"`
}

// CallbackConfig configures outbound webhook delivery.
type CallbackConfig struct {
	// MaxRetries is the number of redeliveries after the first POST, so
	// at most MaxRetries+1 requests hit the callback URL per terminal
	// transition.
	MaxRetries int `mapstructure:"max_retries" validate:"gte=0"`

	// BaseDelay seeds the exponential backoff between delivery attempts.
	BaseDelay time.Duration `mapstructure:"base_delay" validate:"gt=0"`

	// RequestTimeout bounds a single callback POST.
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
}
