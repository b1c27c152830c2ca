// Copyright 2013 The Gorilla WebSocket Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	cfg, err := loadConfig("testdata/config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9090", cfg.Listen)
	assert.Equal(t, []string{"echo.example.org", "echo.example.org:9090"}, cfg.Hosts)
	assert.Equal(t, []string{"echo"}, cfg.Subprotocols)
	assert.Equal(t, int64(1048576), cfg.MaxMessageBytes)
	assert.Equal(t, 2*time.Second, cfg.HandshakeTimeout.std())
	assert.Equal(t, 500*time.Millisecond, cfg.CloseTimeout.std())

	validate := cfg.hostValidator()
	require.NotNil(t, validate)
	assert.True(t, validate("echo.example.org"))
	assert.False(t, validate("other.example.org"))
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := loadConfig("testdata/absent.yaml")
	assert.Error(t, err)
}

func TestDefaultConfigAcceptsAnyHost(t *testing.T) {
	cfg := defaultConfig()
	assert.Nil(t, cfg.hostValidator())
}
