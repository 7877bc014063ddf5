// Package config handles loading and validating provisioner configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - The IoT Agent API key, MQTT password, InfluxDB token and JWT secret
//     should be supplied through the environment, not the file
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.IoTAgent.NorthURL())
package config
