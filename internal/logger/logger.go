package logger

import (
	"encoding/json"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync"
	"time"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

type Format int

const (
	FormatText Format = iota
	FormatJSON
)

var (
	mu           sync.RWMutex
	currentLevel = LevelInfo
	currentFmt   = FormatText
	logger       = stdlog.New(os.Stdout, "", 0)
	output       io.Closer
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func SetLevel(level string) {
	mu.Lock()
	defer mu.Unlock()

	switch strings.ToUpper(level) {
	case "DEBUG":
		currentLevel = LevelDebug
	case "INFO":
		currentLevel = LevelInfo
	case "WARN":
		currentLevel = LevelWarn
	case "ERROR":
		currentLevel = LevelError
	}
}

// SetFormat selects the line format: "text" (default) or "json".
func SetFormat(format string) {
	mu.Lock()
	defer mu.Unlock()

	if strings.EqualFold(format, "json") {
		currentFmt = FormatJSON
	} else {
		currentFmt = FormatText
	}
}

// SetWriter redirects log output to w.
func SetWriter(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	logger = stdlog.New(w, "", 0)
}

// SetOutput routes log output to "stdout", "stderr" or a file path opened in
// append mode. A previously opened log file is closed.
func SetOutput(target string) error {
	var (
		w      io.Writer
		closer io.Closer
	)

	switch strings.ToLower(target) {
	case "", "stdout":
		w = os.Stdout
	case "stderr":
		w = os.Stderr
	default:
		f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("open log file %s: %w", target, err)
		}
		w = f
		closer = f
	}

	mu.Lock()
	defer mu.Unlock()

	if output != nil {
		_ = output.Close()
	}
	output = closer
	logger = stdlog.New(w, "", 0)
	return nil
}

type jsonLine struct {
	Time    string `json:"time"`
	Level   string `json:"level"`
	Message string `json:"msg"`
}

func log(level Level, format string, v ...any) {
	mu.RLock()
	defer mu.RUnlock()

	if level < currentLevel {
		return
	}

	now := time.Now()
	message := fmt.Sprintf(format, v...)

	if currentFmt == FormatJSON {
		line, err := json.Marshal(jsonLine{
			Time:    now.Format(time.RFC3339Nano),
			Level:   level.String(),
			Message: message,
		})
		if err == nil {
			logger.Println(string(line))
			return
		}
	}

	timestamp := now.Format("2006-01-02 15:04:05")
	prefix := fmt.Sprintf("[%s] [%s] ", timestamp, level.String())
	logger.Println(prefix + message)
}

func Debug(format string, v ...any) {
	log(LevelDebug, format, v...)
}

func Info(format string, v ...any) {
	log(LevelInfo, format, v...)
}

func Warn(format string, v ...any) {
	log(LevelWarn, format, v...)
}

func Error(format string, v ...any) {
	log(LevelError, format, v...)
}
