// Package config loads and validates the gateway configuration.
//
// The file is YAML. Values may reference the environment with ${VAR} or
// ${VAR:-default}; "$$" produces a literal dollar sign. Unset keys keep the
// values from DefaultConfig, so a minimal file only lists routes:
//
//	environment: Staging
//	routes:
//	  - name: catalog
//	    pathPrefix: /api/catalog
//	    upstream: http://catalog:8080
//	    anonymous: true
//
// The configuration is read once at startup. ValidateConfig reports every
// problem in a single ValidationErrors value and an invalid configuration
// must stop the process before it serves traffic.
package config
