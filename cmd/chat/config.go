package main

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// CHAT_ADDR is host:port for tcp, a ws:// URL for websocket
	Addr      string `envconfig:"CHAT_ADDR" default:"localhost:7000"`
	Transport string `envconfig:"CHAT_TRANSPORT" default:"tcp"`
	Token     string `envconfig:"CHAT_TOKEN"`
	// CHAT_COLOURS enables colorized output
	Colours      bool `envconfig:"CHAT_COLOURS" default:"true"`
	MaxFrameSize int  `envconfig:"CHAT_MAX_FRAME_SIZE" default:"65536"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
