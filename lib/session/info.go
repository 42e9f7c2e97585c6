// Copyright 2026 The Gymlink Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/jsonc"
)

// parseInfo turns the simulator's free-form info string into a
// mapping. An empty string is an empty mapping, a JSON object (comments
// and trailing commas allowed) is used as is, and anything else is
// kept verbatim under "info".
func parseInfo(raw string) map[string]any {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}
	}
	var info map[string]any
	if err := json.Unmarshal(jsonc.ToJSON([]byte(raw)), &info); err == nil && info != nil {
		return info
	}
	return map[string]any{"info": raw}
}
