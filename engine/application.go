package engine

import (
	"github.com/spaghettifunk/anima-memory/engine/config"
	"github.com/spaghettifunk/anima-memory/engine/core"
)

type ApplicationConfig struct {
	// The application name used in log output.
	Name     string
	LogLevel core.LogLevel
	// Config drives the memory systems; nil means config.Default().
	Config *config.Config
	// ConfigPath, if set, is watched while running and valid revisions are
	// applied live.
	ConfigPath string
}
