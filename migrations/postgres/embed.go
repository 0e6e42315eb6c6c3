// Package migrations embebe las migraciones SQL del core.
package migrations

import "embed"

// FS contiene los pares NNNN_name_up.sql / NNNN_name_down.sql.
//
//go:embed *.sql
var FS embed.FS
