package core

import "errors"

var (
	// ErrNotFound: el fingerprint referido no tiene acción pendiente.
	ErrNotFound = errors.New("not found")
	// ErrConflict: idempotencia — la identidad declarada ya aprobó. Se
	// rechaza, nunca se pisa ni se mergea en silencio.
	ErrConflict = errors.New("conflict")
	// ErrInvalid: campos faltantes o mal formados en el boundary.
	ErrInvalid = errors.New("invalid")
)
