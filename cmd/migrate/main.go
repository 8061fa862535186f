// migrate runs DB migrations from embedded SQL; use with go run ./cmd/migrate.
package main

import (
	"flag"
	"fmt"
	"os"

	"lms-session-manager/backend/internal/config"
	"lms-session-manager/backend/internal/db/migrate"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	showVersion := flag.Bool("version", false, "Print the current schema version and exit")
	flag.Parse()

	dsn := config.LoadDatabaseURL()
	if dsn == "" {
		fmt.Fprintln(os.Stderr, migrate.ErrMissingDSN)
		os.Exit(1)
	}

	if *showVersion {
		v, dirty, err := migrate.Version(dsn)
		if err != nil {
			fmt.Fprintln(os.Stderr, "migrate:", err)
			os.Exit(1)
		}
		fmt.Printf("version %d dirty=%v\n", v, dirty)
		return
	}

	if err := migrate.Run(dsn, *direction); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}
