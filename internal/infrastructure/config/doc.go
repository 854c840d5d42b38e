// Package config loads and validates the registry service configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with REGISTRY_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Secrets (JWT secret, broker password, InfluxDB token) belong in the environment
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Registry.AccessMode)
package config
