package mlog

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CoreConfig describes one log sink. OutputType is "console" or "file".
type CoreConfig struct {
	OutputType  string
	OutputPath  string
	Level       string
	EncodeType  string
	EncodeColor bool
}

var (
	mu          sync.RWMutex
	coreConfigs []CoreConfig
)

// SetOutputTypes registers sinks for loggers created afterwards.
func SetOutputTypes(configs ...CoreConfig) {
	mu.Lock()
	defer mu.Unlock()
	coreConfigs = append(coreConfigs, configs...)
}

func NewCore() zapcore.Core {
	mu.RLock()
	configs := append([]CoreConfig(nil), coreConfigs...)
	mu.RUnlock()

	cores := make([]zapcore.Core, 0, len(configs))
	for _, cfg := range configs {
		var core zapcore.Core
		switch cfg.OutputType {
		case "file":
			core = FileCore(cfg)
		case "console":
			core = ConsoleCore(cfg)
		}

		if core != nil {
			cores = append(cores, core)
		}
	}

	if len(cores) == 0 {
		cores = append(cores, ConsoleCore(CoreConfig{Level: "info", EncodeColor: true}))
	}
	return zapcore.NewTee(cores...)
}

func encoderConfig(cfg CoreConfig, caller bool) zapcore.EncoderConfig {
	ec := zapcore.EncoderConfig{
		// Keys can be anything except the empty string.
		TimeKey:          "T",
		LevelKey:         "L",
		NameKey:          "N",
		FunctionKey:      zapcore.OmitKey,
		MessageKey:       "M",
		StacktraceKey:    "S",
		EncodeTime:       zapcore.RFC3339TimeEncoder,
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeLevel:      zapcore.CapitalLevelEncoder,
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: "\t",
	}
	if caller {
		ec.CallerKey = "C"
		ec.EncodeCaller = zapcore.ShortCallerEncoder
	}
	if cfg.EncodeColor {
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return ec
}

func newEncoder(cfg CoreConfig, ec zapcore.EncoderConfig) zapcore.Encoder {
	if strings.ToLower(cfg.EncodeType) == "json" {
		return zapcore.NewJSONEncoder(ec)
	}
	return zapcore.NewConsoleEncoder(ec)
}

func parseLevel(level string) zap.AtomicLevel {
	l, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return l
}

func ConsoleCore(cfg CoreConfig) zapcore.Core {
	out := "stdout"
	if strings.ToLower(cfg.OutputPath) == "stderr" {
		out = "stderr"
	}
	writer, _, err := zap.Open(out)
	if err != nil {
		return nil
	}
	return zapcore.NewCore(newEncoder(cfg, encoderConfig(cfg, true)), writer, parseLevel(cfg.Level))
}

func FileCore(cfg CoreConfig) zapcore.Core {
	if cfg.OutputPath == "" {
		return nil
	}
	// color escapes make no sense in a file
	cfg.EncodeColor = false

	os.MkdirAll(filepath.Dir(cfg.OutputPath), 0o755)
	writer, _, err := zap.Open(cfg.OutputPath)
	if err != nil {
		return nil
	}
	return zapcore.NewCore(newEncoder(cfg, encoderConfig(cfg, false)), writer, parseLevel(cfg.Level))
}
