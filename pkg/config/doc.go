/*
Package config loads and validates the MoonMind server configuration.

Configuration is a single YAML file decoded strictly: any key outside the
recognized knob set fails the load, so typos surface at startup instead of
silently falling back to defaults.

# Usage

	cfg, err := config.Load("/etc/moonmind/server.yaml")
	if err != nil {
		log.Fatal(err.Error())
	}

	store, err := storage.Open(cfg)

# Knob Groups

	server      listen_addr, request_timeout_seconds, log_*
	database    database_url, pool sizing, conn lifetime
	artifacts   artifact_root, artifact_max_bytes
	retries     retry_backoff_base/max, default_retry_delay, lease sweep
	sessions    live_session_* (provider, TTLs, web exposure)
	contracts   default_publish_mode, default_runtime,
	            manifest_required_capabilities, allow_manifest_path_source
	skills      mirror roots, policy mode, allowlist, cache root, signatures
	webhooks    notifications_* (url, authorization, timeout, enabled)
	review      moonmind_ci_repository

Second/minute-based knobs expose time.Duration helpers so call sites never
multiply by time.Second themselves.
*/
package config
