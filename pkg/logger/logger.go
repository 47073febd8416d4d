// Package logger is the colored console logger used across netcore,
// backed by go.uber.org/zap. Call SetLevel/ShowTime once at startup;
// the package-level functions are safe to call from any goroutine.
package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ANSI color codes
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorWhite  = "\033[37m"
	ColorCyan   = "\033[36m"
	ColorGray   = "\033[90m"
)

// Log levels
const (
	LevelDebug = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelSuccess
)

var levelToZap = map[int]zapcore.Level{
	LevelDebug:   zapcore.DebugLevel,
	LevelInfo:    zapcore.InfoLevel,
	LevelWarn:    zapcore.WarnLevel,
	LevelError:   zapcore.ErrorLevel,
	LevelSuccess: zapcore.InfoLevel,
}

type Logger struct {
	level    *zap.AtomicLevel
	showTime bool
	sugar    *zap.SugaredLogger
}

var defaultLogger *Logger

func init() {
	defaultLogger = newLogger(LevelInfo, true)
}

func newLogger(level int, showTime bool) *Logger {
	atom := zap.NewAtomicLevelAt(levelToZap[level])

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	if !showTime {
		encCfg.TimeKey = zapcore.OmitKey
	} else {
		encCfg.TimeKey = "ts"
		encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	}

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stdout), atom)
	return &Logger{
		level:    &atom,
		showTime: showTime,
		sugar:    zap.New(core).Sugar(),
	}
}

// SetLevel sets the minimum log level.
func SetLevel(level int) {
	defaultLogger.level.SetLevel(levelToZap[level])
}

// ShowTime enables or disables timestamps in logs. It rebuilds the
// underlying encoder, so call it before logging starts in earnest.
func ShowTime(show bool) {
	defaultLogger = newLogger(int(zapLevelToLocal(defaultLogger.level.Level())), show)
}

func zapLevelToLocal(l zapcore.Level) int {
	for k, v := range levelToZap {
		if v == l {
			return k
		}
	}
	return LevelInfo
}

// With returns a child logger carrying the given structured fields for
// every subsequent call — the idiomatic zap way to attach a connection's
// endpoint or UUID to every log line it produces.
func With(args ...interface{}) *zap.SugaredLogger {
	return defaultLogger.sugar.With(args...)
}

func Debug(format string, args ...interface{}) {
	defaultLogger.sugar.Debugf(format, args...)
}

func Info(format string, args ...interface{}) {
	defaultLogger.sugar.Infof(format, args...)
}

func Warn(format string, args ...interface{}) {
	defaultLogger.sugar.Warnf(format, args...)
}

func Error(format string, args ...interface{}) {
	defaultLogger.sugar.Errorf(format, args...)
}

// Success logs at info level with a green-tinted prefix; zap has no
// dedicated "success" level so it is folded into Info.
func Success(format string, args ...interface{}) {
	defaultLogger.sugar.Infof(ColorGreen+format+ColorReset, args...)
}

// Fatal logs and exits, mirroring the teacher's Fatal.
func Fatal(format string, args ...interface{}) {
	defaultLogger.sugar.Errorf(format, args...)
	os.Exit(1)
}

// InfoCyan logs an info message with a cyan tint, used for handshake and
// connection-lifecycle highlights.
func InfoCyan(format string, args ...interface{}) {
	defaultLogger.sugar.Infof(ColorCyan+format+ColorReset, args...)
}

// Section prints a boxed section header directly to stdout.
func Section(title string) {
	border := "═══════════════════════════════════════════════════════════"
	fmt.Printf("\n%s╔%s╗%s\n", ColorCyan, border, ColorReset)
	fmt.Printf("%s║%s %-57s %s║%s\n", ColorCyan, ColorReset, title, ColorCyan, ColorReset)
	fmt.Printf("%s╚%s╝%s\n\n", ColorCyan, border, ColorReset)
}

// Banner prints the application banner directly to stdout.
func Banner(title, version string) {
	banner := `
╔═══════════════════════════════════════════════════════════╗
║                                                           ║
║   ██████╗ ███████╗██╗     ██╗██╗   ██╗██████╗ ██████╗    ║
║   ██╔══██╗██╔════╝██║     ██║██║   ██║██╔══██╗██╔══██╗   ║
║   ██████╔╝█████╗  ██║     ██║██║   ██║██║  ██║██████╔╝   ║
║   ██╔══██╗██╔══╝  ██║     ██║██║   ██║██║  ██║██╔═══╝    ║
║   ██║  ██║███████╗███████╗██║╚██████╔╝██████╔╝██║        ║
║   ╚═╝  ╚═╝╚══════╝╚══════╝╚═╝ ╚═════╝ ╚═════╝ ╚═╝        ║
║                                                           ║
║              %s%-37s%s║
║                    %sVersion %-7s%s                      ║
║                                                           ║
╚═══════════════════════════════════════════════════════════╝
`
	fmt.Printf(banner, ColorCyan, title, ColorReset, ColorGreen, version, ColorReset)
}
