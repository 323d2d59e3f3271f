package logx

import (
	"fmt"
	"io"
	"log"
	"os"
	"strconv"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
)

const (
	defaultLogFile   = "bitvm20.log"
	defaultMaxSizeMB = 100
	defaultMaxAge    = 7
)

var logger = log.New(newWriter(), "", log.Ldate|log.Ltime|log.Lmicroseconds)

// newWriter returns the rotating log file, or stderr when LOGFILE is "-".
func newWriter() io.Writer {
	if os.Getenv("LOGFILE") == "-" {
		return os.Stderr
	}
	return &lumberjack.Logger{
		Filename: getLogFilename(),
		MaxSize:  getEnvInt("LOGFILE_MAX_SIZE_MB", defaultMaxSizeMB), // megabytes
		MaxAge:   getEnvInt("LOGFILE_MAX_AGE_DAYS", defaultMaxAge),   // days
	}
}

func getLogFilename() string {
	if logFile := os.Getenv("LOGFILE"); logFile != "" {
		return "./logs/" + logFile
	}
	return "./logs/" + defaultLogFile
}

func getEnvInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		log.Printf("invalid value %q for %s, using %d", raw, name, fallback)
		return fallback
	}
	return v
}

// SetOutput redirects all categories to w.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

func Info(category string, content ...interface{}) {
	message := fmt.Sprint(content...)
	coloredCategory := fmt.Sprintf("%s[INFO][%s]%s", ColorGreen, category, ColorReset)
	logger.Printf("%s: %s", coloredCategory, message)
}

func Error(category string, content ...interface{}) {
	message := fmt.Sprint(content...)
	coloredCategory := fmt.Sprintf("%s[ERROR][%s]%s", ColorRed, category, ColorReset)
	logger.Printf("%s: %s", coloredCategory, message)
}

func Warn(category string, content ...interface{}) {
	message := fmt.Sprint(content...)
	coloredCategory := fmt.Sprintf("%s[WARN][%s]%s", ColorYellow, category, ColorReset)
	logger.Printf("%s: %s", coloredCategory, message)
}

func Debug(category string, content ...interface{}) {
	message := fmt.Sprint(content...)
	coloredCategory := fmt.Sprintf("%s[DEBUG][%s]%s", ColorBlue, category, ColorReset)
	logger.Printf("%s: %s", coloredCategory, message)
}

// Errorf logs an error message and returns a formatted error
func Errorf(category string, format string, args ...interface{}) error {
	err := fmt.Errorf(format, args...)
	Error(category, err.Error())
	return err
}
