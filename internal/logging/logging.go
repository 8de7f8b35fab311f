package logging

import (
	"log"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config mirrors the log.* command line flags.
type Config struct {
	DirPath     string
	FileName    string
	FileSizeMax int
	FilesAgeMax int
	FilesMax    int
	Compress    bool
}

// SetupLogger points the default log package at a size and age rotated
// file in the configured directory.
func SetupLogger(cfg Config) {
	log.SetOutput(&lumberjack.Logger{
		Filename:   filepath.Join(cfg.DirPath, cfg.FileName),
		MaxSize:    cfg.FileSizeMax,
		MaxAge:     cfg.FilesAgeMax,
		MaxBackups: cfg.FilesMax,
		Compress:   cfg.Compress,
	})
}
