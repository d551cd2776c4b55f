package logger

import (
	"go.uber.org/zap"
)

// Campos estándar del dominio, para que los nombres queden consistentes en
// todos los componentes.

// Vault crea un campo para la address del vault.
func Vault(v string) zap.Field {
	return zap.String("vault", v)
}

// Domain crea un campo para el identificador de dominio.
func Domain(v uint64) zap.Field {
	return zap.Uint64("domain", v)
}

// Fingerprint crea un campo para el fingerprint de una acción.
func Fingerprint(v string) zap.Field {
	return zap.String("fingerprint", v)
}

// Identity crea un campo para una identidad aprobadora.
func Identity(v string) zap.Field {
	return zap.String("identity", v)
}

// RequestID crea un campo para el ID del request HTTP.
func RequestID(v string) zap.Field {
	return zap.String("request_id", v)
}

// Component crea un campo para el componente/módulo.
func Component(v string) zap.Field {
	return zap.String("component", v)
}

// Err crea un campo para un error.
func Err(err error) zap.Field {
	return zap.Error(err)
}
