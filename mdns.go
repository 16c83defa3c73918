/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
	"os"

	"github.com/hashicorp/mdns"
)

const serviceType = "_doodlebox._tcp"

// advertise announces the board on the local network so nearby devices can
// find it without typing an address.
func advertise(cfg *Config) (*mdns.Server, error) {
	host, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("could not get hostname: %w", err)
	}

	service, err := mdns.NewMDNSService(
		host,
		serviceType,
		"",
		"",
		cfg.port,
		nil,
		[]string{"doodlebox v" + releaseVersion, "path=" + cfg.prefix + "/"},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("failed to start mDNS server: %w", err)
	}

	return server, nil
}
