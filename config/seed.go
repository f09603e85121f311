package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ChannelSeed is one channel declared in the seed file.
type ChannelSeed struct {
	Platform string `yaml:"platform"`
	Name     string `yaml:"name"`
	Listen   bool   `yaml:"listen"`
}

type seedFile struct {
	Channels []ChannelSeed `yaml:"channels"`
}

// LoadChannelSeeds reads a YAML file of the form
//
//	channels:
//	  - platform: twitch
//	    name: somechannel
//	    listen: true
func LoadChannelSeeds(path string) ([]ChannelSeed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read channels file: %w", err)
	}
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse channels file: %w", err)
	}
	for i, s := range f.Channels {
		f.Channels[i].Platform = strings.ToLower(strings.TrimSpace(s.Platform))
		f.Channels[i].Name = strings.TrimSpace(s.Name)
		if f.Channels[i].Platform == "" || f.Channels[i].Name == "" {
			return nil, fmt.Errorf("channels[%d]: platform and name are required", i)
		}
	}
	return f.Channels, nil
}
