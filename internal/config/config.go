// Package config loads node configuration from the environment,
// optionally seeded by a .env file, the way the pack's HTTP services
// load theirs.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Node holds the environment-derived settings a node binary needs to
// start: identity, storage location, listen address, and bootstrap
// peers.
type Node struct {
	NodeID    string
	DataDir   string
	Host      string
	Port      int
	Peers     []string
	HTTPPeers bool
}

// Load reads .env (if present; a missing file is not an error, mirroring
// the pack's godotenv.Load() call sites) and then NODE_ID, KADO_DATA_DIR,
// KADO_HOST, KADO_PORT, KADO_PEERS, KADO_HTTP_TRANSPORT from the process
// environment, applying defaults for anything unset.
func Load() (Node, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Node{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Node{
		NodeID:  getenv("NODE_ID", "node-1"),
		DataDir: getenv("KADO_DATA_DIR", "./data"),
		Host:    getenv("KADO_HOST", "0.0.0.0"),
	}

	portStr := getenv("KADO_PORT", "9000")
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Node{}, fmt.Errorf("parse KADO_PORT=%q: %w", portStr, err)
	}
	cfg.Port = port

	if raw := os.Getenv("KADO_PEERS"); raw != "" {
		for _, p := range strings.Split(raw, ",") {
			p = strings.TrimSpace(p)
			if p != "" {
				cfg.Peers = append(cfg.Peers, p)
			}
		}
	}

	cfg.HTTPPeers = getenv("KADO_HTTP_TRANSPORT", "false") == "true"

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// ListenAddr formats Host/Port as a dial-and-listen address.
func (n Node) ListenAddr() string {
	return fmt.Sprintf("%s:%d", n.Host, n.Port)
}
