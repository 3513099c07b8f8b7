package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LogLevelFromString converts string to LogLevel
func LogLevelFromString(level string) LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return DEBUG
	case "info":
		return INFO
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	case "fatal":
		return FATAL
	default:
		return INFO
	}
}

// InitializeFromConfig initializes the global logger from configuration
func InitializeFromConfig(nodeID string, logConfig LogConfig) (*Logger, error) {
	if logConfig.LogDir != "" {
		if err := os.MkdirAll(logConfig.LogDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	logFile := logConfig.LogFile
	if logFile == "" && logConfig.EnableFile {
		if logConfig.LogDir != "" {
			logFile = filepath.Join(logConfig.LogDir, fmt.Sprintf("%s.log", nodeID))
		} else {
			logFile = fmt.Sprintf("%s.log", nodeID)
		}
	}

	config := Config{
		Level:         LogLevelFromString(logConfig.Level),
		NodeID:        nodeID,
		LogFile:       logFile,
		EnableConsole: logConfig.EnableConsole,
		EnableFile:    logConfig.EnableFile,
		BufferSize:    logConfig.BufferSize,
	}

	logger := NewLogger(config)
	SetGlobalLogger(logger)

	return logger, nil
}

// LogConfig mirrors the YAML logging configuration shape
type LogConfig struct {
	Level         string `yaml:"level"`
	EnableConsole bool   `yaml:"enable_console"`
	EnableFile    bool   `yaml:"enable_file"`
	LogFile       string `yaml:"log_file"`
	BufferSize    int    `yaml:"buffer_size"`
	LogDir        string `yaml:"log_dir"`
}

// Component names one of the frame cache core's five components (or the
// Agent facade that wires them), attached to every log entry so a reader
// can filter the stream by subsystem without parsing the message text.
type Component string

const (
	ComponentStore     Component = "store"
	ComponentMonitor   Component = "monitor"
	ComponentPattern   Component = "pattern"
	ComponentPreload   Component = "preload"
	ComponentOptimizer Component = "optimizer"
	ComponentAgent     Component = "agent"
	ComponentEvents    Component = "events"
	ComponentConfig    Component = "config"
	ComponentMain      Component = "main"
)

// Action names the operation within a Component that produced a log entry.
type Action string

const (
	ActionStart    Action = "start"
	ActionStop     Action = "stop"
	ActionGet      Action = "get"
	ActionPut      Action = "put"
	ActionEvict    Action = "evict"
	ActionPreload  Action = "preload"
	ActionCancel   Action = "cancel"
	ActionOptimize Action = "optimize"
	ActionWarning  Action = "warning"
	ActionPublish  Action = "publish"
	ActionShutdown Action = "shutdown"
)
