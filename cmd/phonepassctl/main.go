// phonepassctl agrupa las tareas operativas: migraciones, generación de
// secretos y administración de credenciales y bindings.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd(newCLI()).Execute(); err != nil {
		os.Exit(1)
	}
}
