// Copyright 2026 The Gymlink Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads gymlink configuration.
//
// Configuration comes from a single file named by the GYMLINK_CONFIG
// environment variable (via [Load]) or a --config flag (via
// [LoadFile]). There is no discovery and no environment overrides of
// individual values. Files are YAML; files ending in .json or .jsonc
// are JSON with comments and trailing commas allowed.
//
// After loading, ${HOME}, ${XDG_RUNTIME_DIR} and ${VAR:-default}
// patterns are expanded in path fields.
package config
