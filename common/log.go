package common

import (
	"log"
	"os"
	"strings"
	"sync"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LOG_LEVEL is the level used by the configuration layer; it is mapped onto
// zap levels when a logger is built.
type LOG_LEVEL int

const (
	LEVEL_DEBUG LOG_LEVEL = iota
	LEVEL_INFO
	LEVEL_WARN
	LEVEL_ERROR
)

var (
	LOG_LEVEL_Name = map[LOG_LEVEL]string{
		0: "DEBUG",
		1: "INFO",
		2: "WARN",
		3: "ERROR",
	}
	LOG_LEVEL_Value = map[string]LOG_LEVEL{
		"DEBUG": 0,
		"INFO":  1,
		"WARN":  2,
		"ERROR": 3,
	}
)

// ParseLogLevel maps a level name (case-insensitive) to a LOG_LEVEL.
func ParseLogLevel(name string) (LOG_LEVEL, error) {
	lvl, ok := LOG_LEVEL_Value[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return 0, errors.Errorf("unknown log level %q", name)
	}
	return lvl, nil
}

const (
	LOG_MODE_DEV  = "DEV"
	LOG_MODE_PROD = "PROD"
)

type LogConfig struct {
	BriefMode          string
	ModuleSpecialLevel map[string]LOG_LEVEL // per-module level override

	LogPath        string
	LogLevel       LOG_LEVEL
	RotationMaxAge int // days
	RotationTime   int // hours
	RotationSize   int // MB
	ShowLine       bool
	LogInConsole   bool
}

// DefaultLogConfig returns the DEV settings when isDEV is set, PROD otherwise.
func DefaultLogConfig(isDEV bool) *LogConfig {
	if isDEV {
		return defaultBriefLogConfigForDEV()
	}

	return defaultBriefLogConfigForPROD()
}

func defaultBriefLogConfigForDEV() *LogConfig {
	return &LogConfig{
		LogPath:        "./coinem.dev.log",
		LogLevel:       LEVEL_DEBUG,
		RotationMaxAge: 1,
		RotationTime:   1,
		RotationSize:   10,
		ShowLine:       true,
		LogInConsole:   true,
	}
}

func defaultBriefLogConfigForPROD() *LogConfig {
	return &LogConfig{
		LogPath:        "./coinem.prod.log",
		LogLevel:       LEVEL_INFO,
		RotationMaxAge: 7,
		RotationTime:   24,
		RotationSize:   30,
		ShowLine:       true,
		LogInConsole:   false,
	}
}

func adjustLogConfig(name string, lc *LogConfig) *LogConfig {
	if lc.BriefMode != "" {
		return DefaultLogConfig(lc.BriefMode != LOG_MODE_PROD)
	}

	newC := *lc
	newC.ModuleSpecialLevel = nil
	if lvl, ok := lc.ModuleSpecialLevel[name]; ok {
		newC.LogLevel = lvl
	}

	return &newC
}

func zapLevelOf(l LOG_LEVEL) zapcore.Level {
	switch l {
	case LEVEL_DEBUG:
		return zap.DebugLevel
	case LEVEL_INFO:
		return zap.InfoLevel
	case LEVEL_WARN:
		return zap.WarnLevel
	case LEVEL_ERROR:
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

func NewSugaredLogger(name string, lc *LogConfig) *zap.SugaredLogger {
	lcc := adjustLogConfig(name, lc)

	zapLevel := zapLevelOf(lcc.LogLevel)
	priorityLevel := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= zapLevel
	})

	var syncers []zapcore.WriteSyncer
	if lcc.LogPath != "" {
		rotationWriter, err := rotatelogs.New(
			lcc.LogPath+".%Y%m%d%H",
			rotatelogs.WithRotationTime(time.Duration(lcc.RotationTime)*time.Hour),
			rotatelogs.WithRotationSize(int64(lcc.RotationSize)*1024*1024),
			rotatelogs.WithMaxAge(time.Hour*24*time.Duration(lcc.RotationMaxAge)),
		)
		if err != nil {
			log.Fatalf("new rotation log failed, %s", err)
		}
		syncers = append(syncers, zapcore.AddSync(rotationWriter))
	}
	if lcc.LogInConsole {
		syncers = append(syncers, zapcore.AddSync(os.Stdout))
	}

	customLevelEncoder := func(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString("[" + level.CapitalString() + "]")
	}
	customTimeEncoder := func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.Format("2006-01-02 15:04:05.000"))
	}
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "line",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    customLevelEncoder,
		EncodeTime:     customTimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
		EncodeName:     zapcore.FullNameEncoder,
	}
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.NewMultiWriteSyncer(syncers...),
		priorityLevel,
	)
	logger := zap.New(core).Named(name)

	var opts []zap.Option
	if lcc.ShowLine {
		opts = append(opts, zap.AddCaller())
	}
	// CoinEMLogger wraps every call, skip that frame.
	opts = append(opts, zap.AddCallerSkip(1))

	return logger.WithOptions(opts...).Sugar()
}

const (
	MODULE_EM        = "[EM]"
	MODULE_CONFIG    = "[Config]"
	MODULE_RUNNER    = "[Runner]"
	MODULE_CLI       = "[CLI]"
	MODULE_TELEMETRY = "[Telemetry]"
)

type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
}

// CoinEMLogger is the registry entry handed out by GetLogger. The underlying
// zap logger is swapped in place when SetLogConfig is called.
type CoinEMLogger struct {
	zlog  *zap.SugaredLogger
	name  string
	mutex sync.RWMutex
}

func (l *CoinEMLogger) Logger() *zap.SugaredLogger {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return l.zlog
}

func (l *CoinEMLogger) Debug(args ...interface{}) {
	l.Logger().Debug(args...)
}

func (l *CoinEMLogger) Debugf(format string, args ...interface{}) {
	l.Logger().Debugf(format, args...)
}

func (l *CoinEMLogger) Info(args ...interface{}) {
	l.Logger().Info(args...)
}

func (l *CoinEMLogger) Infof(format string, args ...interface{}) {
	l.Logger().Infof(format, args...)
}

func (l *CoinEMLogger) Warn(args ...interface{}) {
	l.Logger().Warn(args...)
}

func (l *CoinEMLogger) Warnf(format string, args ...interface{}) {
	l.Logger().Warnf(format, args...)
}

func (l *CoinEMLogger) Error(args ...interface{}) {
	l.Logger().Error(args...)
}

func (l *CoinEMLogger) Errorf(format string, args ...interface{}) {
	l.Logger().Errorf(format, args...)
}

func (l *CoinEMLogger) Sync() error {
	return l.Logger().Sync()
}

func (l *CoinEMLogger) SetLogger(logger *zap.SugaredLogger) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.zlog = logger
}

var (
	coinemLoggersMap = make(map[string]*CoinEMLogger)
	loggerMutex      sync.RWMutex
	coinemLogConfig  *LogConfig
)

// GetLogger returns the cached logger for a module, building it from the
// current log config on first use.
func GetLogger(name string) *CoinEMLogger {
	loggerMutex.Lock()
	defer loggerMutex.Unlock()

	if logger, ok := coinemLoggersMap[name]; ok {
		return logger
	}

	if coinemLogConfig == nil {
		coinemLogConfig = DefaultLogConfig(true)
	}

	logger := &CoinEMLogger{
		name: name,
		zlog: NewSugaredLogger(name, coinemLogConfig),
	}
	coinemLoggersMap[name] = logger

	return logger
}

// SetLogConfig replaces the log config and rebuilds every logger handed out
// so far. Call it before the first GetLogger to avoid creating DEV log files.
func SetLogConfig(config *LogConfig) {
	loggerMutex.Lock()
	defer loggerMutex.Unlock()

	coinemLogConfig = config
	for _, logger := range coinemLoggersMap {
		logger.SetLogger(NewSugaredLogger(logger.name, coinemLogConfig))
	}
}

// SyncLoggers flushes every registered logger.
func SyncLoggers() {
	loggerMutex.RLock()
	defer loggerMutex.RUnlock()

	for _, logger := range coinemLoggersMap {
		_ = logger.Sync()
	}
}
