// Copyright 2013 The Gorilla WebSocket Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// config is the daemon's YAML configuration:
//
//	listen: ":8080"
//	hosts:
//	  - "echo.example.org"
//	subprotocols:
//	  - "echo"
//	max_message_bytes: 1048576
//	handshake_timeout: 5s
//	close_timeout: 1s
//
// An empty hosts list accepts any Host header.
type config struct {
	Listen           string   `yaml:"listen"`
	Hosts            []string `yaml:"hosts"`
	Subprotocols     []string `yaml:"subprotocols"`
	MaxMessageBytes  int64    `yaml:"max_message_bytes"`
	HandshakeTimeout duration `yaml:"handshake_timeout"`
	CloseTimeout     duration `yaml:"close_timeout"`
}

func defaultConfig() *config {
	return &config{Listen: ":8080"}
}

func loadConfig(path string) (*config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// hostValidator builds the endpoint's Host check from the configured list.
func (c *config) hostValidator() func(string) bool {
	if len(c.Hosts) == 0 {
		return nil
	}
	allowed := make(map[string]bool, len(c.Hosts))
	for _, h := range c.Hosts {
		allowed[h] = true
	}
	return func(host string) bool { return allowed[host] }
}

// duration lets the YAML file spell timeouts as Go duration strings.
type duration time.Duration

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = duration(parsed)
	return nil
}

func (d duration) std() time.Duration { return time.Duration(d) }
