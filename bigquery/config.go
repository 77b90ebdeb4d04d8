// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package bigquery

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/api/option"

	"storj.io/ekeyd"
	"storj.io/ekeyd/destination"
)

// DefaultPrefix is the table name prefix when none is configured.
const DefaultPrefix = "ekey"

// Factory creates a BigQuery destination from its layer parameters:
//
//	bigquery:project=...,dataset=...
//	bigquery:project=...,dataset=...,prefix=gate,credentialsPath=/path/to/service-account.json
func Factory(ctx context.Context, log *zap.Logger, params destination.Params) (ekeyd.Destination, error) {
	cfg, err := ParseParams(params)
	if err != nil {
		return nil, err
	}
	return cfg.Open(ctx, log)
}

// Config selects the dataset events are written to.
type Config struct {
	Project         string
	Dataset         string
	Prefix          string
	CredentialsPath string
	Instance        string
}

// ParseParams reads a Config from destination parameters.
func ParseParams(params destination.Params) (cfg Config, err error) {
	if err := params.Only("bigquery", "project", "dataset", "prefix", "credentialsPath", "instance"); err != nil {
		return cfg, err
	}
	if cfg.Project, err = params.Require("project"); err != nil {
		return cfg, err
	}
	if cfg.Dataset, err = params.Require("dataset"); err != nil {
		return cfg, err
	}
	cfg.Prefix = params["prefix"]
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	cfg.CredentialsPath = params["credentialsPath"]
	cfg.Instance = params["instance"]
	return cfg, nil
}

// Open connects and returns the destination.
func (cfg Config) Open(ctx context.Context, log *zap.Logger) (*Destination, error) {
	var options []option.ClientOption
	if cfg.CredentialsPath != "" {
		options = append(options, option.WithCredentialsFile(cfg.CredentialsPath))
	}
	client, err := NewClient(ctx, log, cfg.Project, cfg.Dataset, options...)
	if err != nil {
		return nil, err
	}
	d := NewDestination(log, client, cfg.Prefix)
	if cfg.Instance != "" {
		d.Instance = cfg.Instance
	}
	return d, nil
}
