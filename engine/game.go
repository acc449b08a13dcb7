package engine

import (
	"context"
	"time"

	"github.com/spaghettifunk/anima-memory/engine/systems"
)

type Game struct {
	ApplicationConfig *ApplicationConfig
	SystemManager     *systems.SystemManager
	State             interface{}
	FnBoot            Boot
	FnInitialize      Initialize
	FnUpdate          Update
	FnShutdown        Shutdown
}

type Boot func() error
type Initialize func(ctx context.Context) error
type Update func(ctx context.Context, deltaTime time.Duration) error
type Shutdown func() error
