package repository

import "errors"

var (
	// ErrNotFound indica que el recurso solicitado no existe.
	ErrNotFound = errors.New("not found")

	// ErrConflict indica un conflicto (duplicado, constraint violation, guard que no matcheó).
	ErrConflict = errors.New("conflict")

	// ErrStaleVersion indica que la fila cambió desde que se leyó (fence optimista).
	ErrStaleVersion = errors.New("stale version")

	// ErrInvalidInput indica que los datos de entrada son inválidos.
	ErrInvalidInput = errors.New("invalid input")
)

// IsNotFound verifica si el error es ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict verifica si el error es ErrConflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsStaleVersion verifica si el error es ErrStaleVersion.
func IsStaleVersion(err error) bool {
	return errors.Is(err, ErrStaleVersion)
}
