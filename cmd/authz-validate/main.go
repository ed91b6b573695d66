// Command authz-validate loads the permission matrix documents from a
// configuration directory and validates them, exiting non-zero when any
// document is missing or malformed. Intended for CI and pre-deploy checks.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/KenIjiwoye/immune-me-sub004/internal/authz"
	"github.com/KenIjiwoye/immune-me-sub004/internal/config"
	"github.com/KenIjiwoye/immune-me-sub004/pkg/logger"
)

func main() {
	var configDir string
	flag.StringVar(&configDir, "config-dir", "", "directory holding the permission matrix JSON documents (overrides config)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if configDir == "" {
		configDir = cfg.Authz.ConfigDir
	}

	log := logger.New(cfg.LogLevel)

	store := authz.NewFileConfigStore(configDir, log)
	loader := authz.NewMatrixLoader(store, log)

	if err := loader.Initialize(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "invalid permission configuration: %v\n", err)
		os.Exit(1)
	}

	resources := loader.Resources()
	fmt.Printf("permission configuration OK: %d resources, %d roles\n",
		len(resources), len(loader.RoleHierarchy()))
	for _, resource := range resources {
		fmt.Printf("  %s\n", resource)
	}
}
