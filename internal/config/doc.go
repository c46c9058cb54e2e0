// Package config handles configuration loading for sealnote.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from SEALNOTE_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/sealnote/config.yaml
//  3. ~/.config/sealnote/config.yaml
//
// Files ending in .toml are parsed as TOML; everything else as YAML. A missing
// file is not an error for LoadOrDefault.
//
// # Environment Variable Expansion
//
//	account:
//	  email: "${SEALNOTE_EMAIL}"
//
// # Configuration Sections
//
//	server:
//	  url: "https://sync.example.com"
//	  timeout: "30s"
//	database:
//	  path: "~/.local/share/sealnote/sealnote.db"
//	sync:
//	  interval: "5m"    # daemon auto-sync period
//	  parallelism: 4    # concurrent encrypt/decrypt workers
//	kdf:                # parameters used when registering a new account
//	  func: "pbkdf2"
//	  alg: "sha512"
//	  cost: 60000
//	  key_size: 512
//	logging:
//	  level: "info"     # debug, info, warn, error
//	  format: "text"    # text, json
//	  file: ""          # rotated log file; empty logs to stderr
//	publish:
//	  dir: "~/.local/share/sealnote/public"
package config
