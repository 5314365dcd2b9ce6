package handlers

import (
	"sync"

	"github.com/d4l-data4life/go-svc/pkg/instrumented"

	"github.com/fikriaf/ordo-backend/pkg/config"
)

var once sync.Once

var instance *instrumented.HandlerFactory

// GetHandlerFactory returns a global singleton InstrumentedHandlerFactory object
func GetHandlerFactory() *instrumented.HandlerFactory {
	once.Do(func() {
		instance = instrumented.NewHandlerFactory("ordo", config.DefaultInstrumentInitOptions, config.DefaultInstrumentOptions)
	})
	return instance
}
