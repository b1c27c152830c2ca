// Copyright 2013 The Gorilla WebSocket Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command wsechod runs a WebSocket echo daemon. Every message a client
// sends is delivered back on the same session. The daemon is configured
// with flags or a YAML file; see config.go for the file format.
package main

import (
	"fmt"
	"log/slog"
	"net"
	"os"

	"github.com/spf13/cobra"

	"github.com/endpointlab/websocket"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		listen     string
		logLevel   string
		logFormat  string
	)

	cmd := &cobra.Command{
		Use:           "wsechod",
		Short:         "WebSocket echo daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := defaultConfig()
			if configPath != "" {
				loaded, err := loadConfig(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			if cmd.Flags().Changed("listen") {
				cfg.Listen = listen
			}

			logger, err := newLogger(logLevel, logFormat)
			if err != nil {
				return err
			}
			return serve(cfg, logger)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	cmd.Flags().StringVarP(&listen, "listen", "l", ":8080", "listen address")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")
	return cmd
}

func newLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch format {
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	}
	return nil, fmt.Errorf("invalid log format %q", format)
}

func serve(cfg *config, logger *slog.Logger) error {
	ep := websocket.NewEndpoint(websocket.Config{
		MaxMessageSize:   cfg.MaxMessageBytes,
		HandshakeTimeout: cfg.HandshakeTimeout.std(),
		CloseTimeout:     cfg.CloseTimeout.std(),
		Subprotocols:     cfg.Subprotocols,
		ValidateHost:     cfg.hostValidator(),
		Logger:           logger,
	})

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return err
	}
	logger.Info("listening", slog.String("addr", ln.Addr().String()))

	h := &echoHandler{log: logger}
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go ep.Accept(conn, h).Run()
	}
}

// echoHandler sends every delivered message straight back.
type echoHandler struct {
	log *slog.Logger
}

func (h *echoHandler) OnOpen(s *websocket.Session) {
	h.log.Info("session open", slog.String("resource", s.Resource()))
}

func (h *echoHandler) OnMessage(s *websocket.Session, messageType int, data []byte) {
	if messageType == websocket.TextMessage {
		s.SendText(data)
	} else {
		s.SendBinary(data)
	}
}

func (h *echoHandler) OnClose(s *websocket.Session) {
	info := s.CloseInfo()
	h.log.Info("session closed",
		slog.Bool("clean", info.WasClean),
		slog.Int("code", info.RemoteCode))
}
