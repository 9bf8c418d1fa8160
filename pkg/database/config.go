package database

import (
	"time"
)

type Config struct {
	Hosts       []string
	Keyspace    string
	Timeout     time.Duration
	Retries     int
	ConnectWait time.Duration
}

func NewConfig(host, port string) *Config {
	return &Config{
		Hosts:       []string{host + ":" + port},
		Keyspace:    "agora",
		Timeout:     10 * time.Second,
		Retries:     3,
		ConnectWait: 5 * time.Second,
	}
}

func (c *Config) WithHosts(hosts []string) *Config {
	c.Hosts = hosts
	return c
}

func (c *Config) WithKeyspace(keyspace string) *Config {
	c.Keyspace = keyspace
	return c
}
