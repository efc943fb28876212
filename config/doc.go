// Package config loads the host configuration: logging, the metrics endpoint, the
// driver modules to load and the pipelines to run.
//
// Files are YAML or JSON. Layers are merge-patched in order, so an override file
// only carries what it changes:
//
//	loader := config.NewLoader()
//	loader.AddLayer("mads.yaml")
//	loader.AddLayer("mads.local.yaml")
//	loader.EnableValidation(true)
//	cfg, err := loader.Load()
//
// ${NAME} and ${NAME:-default} are expanded from the environment before parsing.
// MADS_LOG_LEVEL, MADS_LOG_FORMAT, MADS_METRICS_ADDR and MADS_MODULES_DIR override
// the corresponding fields after merging.
//
// Validate checks the document on its own. ValidateDrivers additionally resolves
// every stage against a plugin.Registry and runs driver schemas.
package config
