// Package main contains the demo/simulation CLI.
//
// kimberlite-sim drives one tenant against an in-process
// runtime.Runtime to exercise the core pipeline end-to-end: stream
// append/read, offset guards, deterministic state hashing, tamper
// detection on the record log, point-in-time projection reads, RBAC
// query rewriting, and schema migration. It is not the
// consensus/cluster supervisor; it never talks to another replica.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// configPath is the optional --config TOML file; scenarios fall back
// to built-in defaults (in-memory backend, no compression) without it.
var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "kimberlite-sim",
		Short: "Deterministic single-tenant simulation harness for kimberlite",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a kimberlite.toml runtime config")

	rootCmd.AddCommand(streamCmd())
	rootCmd.AddCommand(offsetGuardCmd())
	rootCmd.AddCommand(determinismCmd())
	rootCmd.AddCommand(tamperCmd())
	rootCmd.AddCommand(snapshotCmd())
	rootCmd.AddCommand(rbacCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
