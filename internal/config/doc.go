// Package config loads the bot's configuration and watches it for changes.
//
// # Configuration Loading
//
// Load merges configuration from several sources. Later sources override
// earlier ones key by key:
//
//  1. Built-in defaults (see Default)
//  2. Global config (~/.config/cmdclient/)
//  3. Project config (cmdclient.* and .cmdclient/cmdclient.* in the directory)
//  4. CMDCLIENT_CONFIG file
//  5. CMDCLIENT_CONFIG_CONTENT inline JSON
//  6. CMDCLIENT_* environment variables
//
// # Supported Formats
//
// Files are chosen by extension:
//   - cmdclient.json, cmdclient.jsonc - JSON, comments stripped with tidwall/jsonc
//   - cmdclient.yaml, cmdclient.yml - YAML via gopkg.in/yaml.v3
//
// A key present in a file replaces the value loaded before it; lists are
// replaced, not appended to. Durations are written as Go duration strings
// ("250ms", "30s") or as a number of milliseconds.
//
// # Variable Interpolation
//
// {env:VAR_NAME} in a file expands to the value of the environment variable.
//
// # Environment Variables
//
//	CMDCLIENT_PREFIXES               comma separated
//	CMDCLIENT_OWNERS                 comma separated
//	CMDCLIENT_CACHE_SIZE
//	CMDCLIENT_CLEANUP_POLL_INTERVAL
//	CMDCLIENT_CLEANUP_TIMEOUT
//	CMDCLIENT_COMMAND_TIMEOUT
//	CMDCLIENT_DISABLED_MODULES       comma separated
//	CMDCLIENT_LOG_LEVEL
//	CMDCLIENT_PRETTY_LOGS
//	CMDCLIENT_HTTP_ADDR
//
// # Watching
//
// Watcher reloads the configuration when one of the files it was loaded
// from changes and hands the result to a callback.
package config
