// Package config loads the process configuration and reads node property
// maps.
//
// # Loading
//
// A Loader starts from Default, merges each file layer on top (JSON or
// YAML, chosen by extension), applies SEMFLOW_* environment overrides and
// validates the result with go-playground/validator struct tags:
//
//	loader := config.NewLoader()
//	loader.AddLayer("semflow.yaml")
//	loader.AddLayer("semflow.local.json") // overrides the first layer
//
//	cfg, err := loader.Load()
//	if err != nil {
//		return err
//	}
//
// Only keys present in a layer override earlier values, so a layer can set
// a single nested field. Durations accept Go syntax ("2s"), a day suffix
// ("14d") or nanoseconds.
//
// # Environment
//
// Overrides use PREFIX_SECTION_FIELD names, for example SEMFLOW_SERVER_ADDR,
// SEMFLOW_NATS_URLS (comma separated), SEMFLOW_STORAGE_MODE, SEMFLOW_MCP_URL
// and SEMFLOW_LOG_LEVEL. Empty values are ignored.
//
// # Node properties
//
// GetString, GetFloat64 and GetBool read values from a node's property map
// with a default, accepting numbers and booleans sent as text.
package config
