// Package config handles loading and validating the access core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields and secret strength
//   - Default value handling
//
// Security Considerations:
//   - The JWT secret, integrity key and biometric key should be set via
//     environment variables, never committed in the YAML file
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Site.Name)
package config
