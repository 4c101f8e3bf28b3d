package main

import (
	"time"

	"github.com/smartpixl/core/pkg/config"
)

// cfgType is the Edge process's [Global] configuration section, loaded
// from an INI-style .conf file via gcfg.
type cfgType struct {
	Global struct {
		Bind               string
		PipePath           string
		PipeConnectTimeout int // seconds
		PipeRetryInterval  int // seconds
		QueueCapacity      int
		FailoverDir        string
		CIDRDataFile       string
		LogDir             string
		LogLevel           string
		HealthBind         string // localhost-only admin bind, queue-depth + health
	}
}

func defaultConfig() *cfgType {
	var c cfgType
	c.Global.Bind = ":8080"
	c.Global.PipePath = "/var/run/smartpixl/enrichment.sock"
	c.Global.PipeConnectTimeout = 5
	c.Global.PipeRetryInterval = 5
	c.Global.QueueCapacity = 10000
	c.Global.FailoverDir = "/var/spool/smartpixl/edge-failover"
	c.Global.CIDRDataFile = "/etc/smartpixl/datacenter_cidrs.csv"
	c.Global.LogDir = "/var/log/smartpixl"
	c.Global.LogLevel = "INFO"
	c.Global.HealthBind = "127.0.0.1:8081"
	return &c
}

func loadConfig(path string) (*cfgType, error) {
	c := defaultConfig()
	if path == "" {
		return c, nil
	}
	if err := config.LoadFile(c, path); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *cfgType) connectTimeout() time.Duration {
	return time.Duration(c.Global.PipeConnectTimeout) * time.Second
}

func (c *cfgType) retryInterval() time.Duration {
	return time.Duration(c.Global.PipeRetryInterval) * time.Second
}
