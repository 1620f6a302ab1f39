package main

import "github.com/its-the-vibe/JiraBolt/internal/logger"

// Leveled logging for the main package.
var (
	SetLogLevel = logger.SetLogLevel
	Debug       = logger.Debug
	Info        = logger.Info
	Warn        = logger.Warn
	Error       = logger.Error
	Fatal       = logger.Fatal
)
