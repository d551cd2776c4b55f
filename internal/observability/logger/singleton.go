// Package logger provee el zap compartido del servicio. main llama Init una
// vez; cada componente (coordinator, ledger, cluster, email, http) pide el
// suyo con Named, y el código dentro de un request usa From(ctx) para
// heredar el request_id que inyecta el middleware.
package logger

import (
	"sync"

	"go.uber.org/zap"
)

var (
	once     sync.Once
	instance *zap.Logger
)

// Init construye el singleton. Idempotente: llamadas posteriores no pisan la
// configuración inicial.
func Init(cfg Config) {
	once.Do(func() {
		instance = build(cfg)
	})
}

// L devuelve el singleton. Sin Init previo cae a dev/info, que es lo que
// quieren los tests.
func L() *zap.Logger {
	if instance == nil {
		Init(Config{Env: "dev", Level: "info"})
	}
	return instance
}

// Named devuelve un logger con nombre de componente.
func Named(name string) *zap.Logger {
	return L().Named(name)
}

// With devuelve un logger con campos persistentes.
func With(fields ...zap.Field) *zap.Logger {
	return L().With(fields...)
}

// Sync flushea buffers pendientes; con defer en main alcanza.
func Sync() error {
	if instance != nil {
		return instance.Sync()
	}
	return nil
}
