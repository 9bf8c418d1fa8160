package logging

const (
	BaseDataDir = "data"
	LogsDir     = "logs"
	TimeFormat  = "2006-01-02 15:04:05"
)

// ProcessName type to ensure valid process names
type ProcessName string

const (
	EconomyProcess    ProcessName = "economy"
	GovernanceProcess ProcessName = "governance"
	TestProcess       ProcessName = "test"
)

type LoggerConfig struct {
	LogDir        string
	ProcessName   ProcessName
	IsDevelopment bool
}

func NewDefaultConfig(processName ProcessName) LoggerConfig {
	return LoggerConfig{
		LogDir:        BaseDataDir,
		ProcessName:   processName,
		IsDevelopment: true,
	}
}
