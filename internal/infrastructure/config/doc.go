// Package config handles loading and validating own-bridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (OWNBRIDGE_*)
//   - Validation of required fields
//   - Default value handling
//
// Gateway and thing definitions live in a separate file named by
// openwebnet.config_file; see package openwebnet.
//
// Security Considerations:
//   - Sensitive values (MQTT password, InfluxDB token) should be set via environment variables
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
