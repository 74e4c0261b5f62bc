package main

import (
	"context"
	"fmt"
	"os"

	"github.com/grandcat/zeroconf"
)

// mdnsServiceType is the advertised service type for LAN discovery of
// conferencing hubs.
const mdnsServiceType = "_confhub._tcp"

// startMDNS registers the hub via mDNS so LAN clients can discover it
// without a pre-shared address. Safe to call when disabled (no-op).
func startMDNS(ctx context.Context, cfg Config) (func(), error) {
	if !cfg.MDNSEnable {
		return func() {}, nil
	}
	instance := cfg.MDNSName
	if instance == "" {
		host, _ := os.Hostname()
		instance = fmt.Sprintf("confhub-%s", host)
	}
	meta := []string{
		fmt.Sprintf("control_port=%d", cfg.ControlPort),
		fmt.Sprintf("video_port=%d", cfg.VideoPort),
		fmt.Sprintf("audio_port=%d", cfg.AudioPort),
	}
	svc, err := zeroconf.Register(instance, mdnsServiceType, "local.", cfg.ControlPort, meta, nil)
	if err != nil {
		return nil, fmt.Errorf("mdns register: %w", err)
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		svc.Shutdown()
	}()
	return func() { close(done) }, nil
}
