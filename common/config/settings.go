package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/longkeyy/datax-synctrack/common/logger"
)

// MessageLogMode controls which protocol messages are echoed to the MESSAGES logger.
type MessageLogMode string

const (
	MessageLogNone  MessageLogMode = "none"
	MessageLogState MessageLogMode = "state"
	MessageLogAll   MessageLogMode = "all"
)

// StoreSettings selects and parameterises the stream status store backend.
type StoreSettings struct {
	Type       string // memory | sql | mongo | redis
	Driver     string // sql only: sqlite | mysql | postgres | sqlserver
	DSN        string
	URI        string
	Database   string
	Collection string
	Addr       string
	Password   string
	DB         int
	KeyPrefix  string
	Timeout    time.Duration

	RetryAttempts uint
	RetryDelay    time.Duration
}

// AttemptSettings identifies the sync attempt being tracked.
type AttemptSettings struct {
	WorkspaceID   uuid.UUID
	ConnectionID  uuid.UUID
	JobID         int64
	AttemptNumber int
	IsReset       bool
}

// InputSettings points the replay CLI at recorded connector output.
type InputSettings struct {
	Source      string
	Destination string
}

// Settings is the typed runtime view over a Configuration.
type Settings struct {
	Logger         logger.LoggerConfig
	MessageLogging MessageLogMode
	ReportInterval time.Duration
	StatusStore    StoreSettings
	Attempt        AttemptSettings
	Input          InputSettings
}

// DefaultSettings returns settings for an in-memory store with logging of
// protocol messages disabled.
func DefaultSettings() Settings {
	return Settings{
		Logger:         *logger.DefaultConfig(),
		MessageLogging: MessageLogNone,
		ReportInterval: 30 * time.Second,
		StatusStore: StoreSettings{
			Type:          "memory",
			Collection:    "stream_statuses",
			KeyPrefix:     "synctrack:status:",
			Timeout:       10 * time.Second,
			RetryAttempts: 3,
			RetryDelay:    500 * time.Millisecond,
		},
	}
}

// LoadSettings reads Settings from conf, falling back to DefaultSettings for
// anything not set.
func LoadSettings(conf Configuration) (Settings, error) {
	s := DefaultSettings()
	if conf == nil {
		return s, nil
	}

	s.Logger.Level = logger.LogLevel(conf.GetStringWithDefault("logger.level", string(s.Logger.Level)))
	s.Logger.OutputPath = conf.GetStringWithDefault("logger.outputPath", s.Logger.OutputPath)
	s.Logger.Development = conf.GetBoolWithDefault("logger.development", s.Logger.Development)
	s.Logger.Console = conf.GetBoolWithDefault("logger.console", s.Logger.Console)

	mode := MessageLogMode(strings.ToLower(conf.GetStringWithDefault("tracker.messageLogging", string(s.MessageLogging))))
	switch mode {
	case MessageLogNone, MessageLogState, MessageLogAll:
		s.MessageLogging = mode
	default:
		return s, fmt.Errorf("invalid tracker.messageLogging %q", mode)
	}

	s.ReportInterval = conf.GetDurationWithDefault("tracker.reportInterval", s.ReportInterval)

	store := conf.GetConfiguration("statusStore")
	s.StatusStore.Type = strings.ToLower(store.GetStringWithDefault("type", s.StatusStore.Type))
	s.StatusStore.Driver = strings.ToLower(store.GetString("driver"))
	s.StatusStore.DSN = store.GetString("dsn")
	s.StatusStore.URI = store.GetString("uri")
	s.StatusStore.Database = store.GetString("database")
	s.StatusStore.Collection = store.GetStringWithDefault("collection", s.StatusStore.Collection)
	s.StatusStore.Addr = store.GetString("addr")
	s.StatusStore.Password = store.GetString("password")
	s.StatusStore.DB = store.GetIntWithDefault("db", 0)
	s.StatusStore.KeyPrefix = store.GetStringWithDefault("keyPrefix", s.StatusStore.KeyPrefix)
	s.StatusStore.Timeout = store.GetDurationWithDefault("timeout", s.StatusStore.Timeout)
	s.StatusStore.RetryAttempts = uint(store.GetIntWithDefault("retry.attempts", int(s.StatusStore.RetryAttempts)))
	s.StatusStore.RetryDelay = store.GetDurationWithDefault("retry.delay", s.StatusStore.RetryDelay)

	var err error
	if s.Attempt.WorkspaceID, err = parseUUID(conf, "attempt.workspaceId"); err != nil {
		return s, err
	}
	if s.Attempt.ConnectionID, err = parseUUID(conf, "attempt.connectionId"); err != nil {
		return s, err
	}
	s.Attempt.JobID = conf.GetLongWithDefault("attempt.jobId", 0)
	s.Attempt.AttemptNumber = conf.GetIntWithDefault("attempt.attemptNumber", 0)
	s.Attempt.IsReset = conf.GetBoolWithDefault("attempt.isReset", false)

	s.Input.Source = conf.GetString("input.source")
	s.Input.Destination = conf.GetString("input.destination")

	return s, nil
}

// parseUUID returns a random id when path is unset, so ad-hoc replays still get
// distinct contexts.
func parseUUID(conf Configuration, path string) (uuid.UUID, error) {
	raw := conf.GetString(path)
	if raw == "" {
		return uuid.New(), nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s: %w", path, err)
	}
	return id, nil
}
