// Copyright 2026 The Gymlink Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Setting is one simulator command-line option.
type Setting struct {
	Key   string
	Value string
}

// Settings is an ordered list of simulator options. Order is
// preserved from configuration to the command line.
type Settings []Setting

// Args renders one "--key=value" token per setting, in order.
func (s Settings) Args() []string {
	args := make([]string, len(s))
	for i, setting := range s {
		args[i] = "--" + setting.Key + "=" + setting.Value
	}
	return args
}

// Set replaces the value of key, or appends it when absent.
func (s *Settings) Set(key, value string) {
	for i := range *s {
		if (*s)[i].Key == key {
			(*s)[i].Value = value
			return
		}
	}
	*s = append(*s, Setting{Key: key, Value: value})
}

// Get returns the value of key.
func (s Settings) Get(key string) (string, bool) {
	for _, setting := range s {
		if setting.Key == key {
			return setting.Value, true
		}
	}
	return "", false
}

// UnmarshalYAML reads a mapping of scalars, keeping document order.
func (s *Settings) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: settings must be a mapping", node.Line)
	}
	settings := make(Settings, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		if value.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: setting %q must be a scalar", value.Line, key.Value)
		}
		settings.Set(key.Value, value.Value)
	}
	*s = settings
	return nil
}

// MarshalYAML writes the settings back as an ordered mapping.
func (s Settings) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, setting := range s {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: setting.Key},
			&yaml.Node{Kind: yaml.ScalarNode, Value: setting.Value},
		)
	}
	return node, nil
}
