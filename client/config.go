package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"qsb.qbck.io/did/keystore"
	"qsb.qbck.io/did/ledger/grpcledger"
	"qsb.qbck.io/did/schemaarchive"
)

// Config describes how to wire a Client from JSON or the environment.
//
// Example:
//
//	{
//	  "gateway_target": "localhost:9944",
//	  "store_dir": "/home/alice/.qsb",
//	  "archive_dir": "/home/alice/.qsb/schemas",
//	  "rpc_timeout_seconds": 30
//	}
//
// ArchiveDir is optional; without it registered schemas are not archived
// locally.
type Config struct {
	GatewayTarget     string `json:"gateway_target"`
	StoreDir          string `json:"store_dir"`
	ArchiveDir        string `json:"archive_dir,omitempty"`
	RPCTimeoutSeconds int    `json:"rpc_timeout_seconds,omitempty"`
}

// Environment variable names recognized by FromEnv.
const (
	EnvGatewayTarget = "QSB_GATEWAY_TARGET"
	EnvStoreDir      = "QSB_STORE_DIR"
	EnvArchiveDir    = "QSB_ARCHIVE_DIR"
)

func LoadFile(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, errors.New("client: empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// FromEnv overlays environment variables onto c. Set variables win over the
// JSON values; unset ones leave c untouched.
func (c Config) FromEnv() Config {
	if v := os.Getenv(EnvGatewayTarget); v != "" {
		c.GatewayTarget = v
	}
	if v := os.Getenv(EnvStoreDir); v != "" {
		c.StoreDir = v
	}
	if v := os.Getenv(EnvArchiveDir); v != "" {
		c.ArchiveDir = v
	}
	return c
}

func (c Config) Validate() error {
	if c.GatewayTarget == "" {
		return errors.New("client: gateway target is required")
	}
	if c.StoreDir == "" {
		return errors.New("client: store dir is required")
	}
	if c.RPCTimeoutSeconds < 0 {
		return fmt.Errorf("client: invalid rpc_timeout_seconds %d", c.RPCTimeoutSeconds)
	}
	return nil
}

// Open dials the gateway and assembles a Client per config. The returned
// close func releases the gRPC connection.
func (c Config) Open() (*Client, func() error, error) {
	if err := c.Validate(); err != nil {
		return nil, nil, err
	}
	var opts grpcledger.DialOptions
	if c.RPCTimeoutSeconds > 0 {
		opts.Timeout = time.Duration(c.RPCTimeoutSeconds) * time.Second
	}
	gw, err := grpcledger.Dial(c.GatewayTarget, opts)
	if err != nil {
		return nil, nil, err
	}
	cl := &Client{
		Gateway: gw,
		Store:   keystore.New(c.StoreDir),
	}
	if c.ArchiveDir != "" {
		arch, err := schemaarchive.New(c.ArchiveDir)
		if err != nil {
			_ = gw.Close()
			return nil, nil, err
		}
		cl.Archive = arch
	}
	return cl, gw.Close, nil
}
