/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package config loads configuration of the service components from files and environment variables.
//
// Every component describes its configuration with a type implementing Config.
// Loader first lets every Config register its default values in the DataProvider
// and then lets it read the resulting values back, so the precedence is
// explicit override > environment variable > file > default.
package config

// Config is a common interface for configuration objects that may be used by Loader.
type Config interface {
	SetProviderDefaults(dp DataProvider)
	Set(dp DataProvider) error
}

// KeyPrefixProvider is an interface for providing key prefix that will be used for configuration parameters.
type KeyPrefixProvider interface {
	KeyPrefix() string
}
