// Package config loads mcpgate's configuration.
//
// Configuration lives in a directory (default ~/.config/mcpgate) holding
// config.yaml and an optional .env file. Values are layered in this order:
//
//  1. built-in defaults (Default)
//  2. config.yaml
//  3. MCPGATE_* environment variables, including those from .env
//
// A minimal config.yaml:
//
//	server:
//	  port: 8090
//	  publicURL: https://gate.example.com
//	cache:
//	  backend: valkey
//	  valkey:
//	    address: localhost:6379
//	store:
//	  backend: dynamodb
//	  dynamodb:
//	    table: McpServers
//	    region: eu-west-1
//	logging:
//	  level: debug
//
// Validation reports every problem at once as a *ConfigurationErrorCollection.
// Watcher reloads config.yaml on change; the serve command uses it to apply
// a new log level without a restart.
package config
