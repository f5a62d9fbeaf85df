package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Account is one backend account.
type Account struct {
	Name           string `yaml:"name"`
	URL            string `yaml:"url"`
	Token          string `yaml:"token"`
	AppKey         string `yaml:"appKey"`
	Model          string `yaml:"model"`
	MaxConnections int64  `yaml:"maxConnections"`
}

// Agents lists the accounts of every backend pool.
type Agents struct {
	TTS  []Account `yaml:"tts"`
	Cosy []Account `yaml:"cosy"`
	ASR  []Account `yaml:"asr"`
}

// ErrDuplicateAccount is returned when a pool names an account twice.
var ErrDuplicateAccount = errors.New("duplicate account name")

// LoadAgents reads the accounts file. An empty path yields no accounts.
func LoadAgents(path string) (*Agents, error) {
	if path == "" {
		return &Agents{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read agents file: %w", err)
	}
	return ParseAgents(data)
}

// ParseAgents decodes and validates an accounts document.
func ParseAgents(data []byte) (*Agents, error) {
	var a Agents
	if err := yaml.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("parse agents file: %w", err)
	}
	for pool, accounts := range map[string][]Account{"tts": a.TTS, "cosy": a.Cosy, "asr": a.ASR} {
		seen := make(map[string]bool, len(accounts))
		for i, acc := range accounts {
			if acc.Name == "" {
				return nil, fmt.Errorf("%s account %d: name is required", pool, i)
			}
			if seen[acc.Name] {
				return nil, fmt.Errorf("%s: %w: %s", pool, ErrDuplicateAccount, acc.Name)
			}
			seen[acc.Name] = true
		}
	}
	return &a, nil
}
