package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	yaml "gopkg.in/yaml.v3"
)

// AppConfig is the process-wide configuration. Values come from the
// environment, optionally overridden by a YAML file (CHESSLENS_CONFIG), so
// several tracking sessions can run under different metadata without any
// ambient globals.
type AppConfig struct {
	VisionBaseURL string
	VisionWSURL   string

	RedisURL    string
	DatabaseURL string

	OutputDir string

	SessionTTLSec          int
	MaterialImbalanceLimit int
	InitialTurn            string // "white" or "black"

	// PGN header defaults applied by the notation assembler.
	HeaderEvent string
	HeaderSite  string
	HeaderRound string
	HeaderWhite string
	HeaderBlack string
}

type fileConfig struct {
	Headers struct {
		Event string `yaml:"event"`
		Site  string `yaml:"site"`
		Round string `yaml:"round"`
		White string `yaml:"white"`
		Black string `yaml:"black"`
	} `yaml:"headers"`
	Validator struct {
		MaterialImbalanceLimit int `yaml:"material_imbalance_limit"`
	} `yaml:"validator"`
	Session struct {
		TTLSeconds int `yaml:"ttl_seconds"`
	} `yaml:"session"`
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		OutputDir:              "output",
		SessionTTLSec:          86400,
		MaterialImbalanceLimit: 15,
		InitialTurn:            "white",
	}

	cfg.VisionBaseURL = strings.TrimSpace(os.Getenv("VISION_BASE_URL"))
	cfg.VisionWSURL = strings.TrimSpace(os.Getenv("VISION_WS_URL"))
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))

	if v := strings.TrimSpace(os.Getenv("OUTPUT_DIR")); v != "" {
		cfg.OutputDir = v
	}
	if v := strings.TrimSpace(os.Getenv("SESSION_TTL")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SessionTTLSec = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("MATERIAL_IMBALANCE_LIMIT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaterialImbalanceLimit = n
		}
	}
	if v := strings.ToLower(strings.TrimSpace(os.Getenv("INITIAL_TURN"))); v == "white" || v == "black" {
		cfg.InitialTurn = v
	}

	cfg.HeaderEvent = strings.TrimSpace(os.Getenv("PGN_EVENT"))
	cfg.HeaderSite = strings.TrimSpace(os.Getenv("PGN_SITE"))
	cfg.HeaderRound = strings.TrimSpace(os.Getenv("PGN_ROUND"))
	cfg.HeaderWhite = strings.TrimSpace(os.Getenv("PGN_WHITE"))
	cfg.HeaderBlack = strings.TrimSpace(os.Getenv("PGN_BLACK"))

	if path := strings.TrimSpace(os.Getenv("CHESSLENS_CONFIG")); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func (c *AppConfig) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	if fc.Headers.Event != "" {
		c.HeaderEvent = fc.Headers.Event
	}
	if fc.Headers.Site != "" {
		c.HeaderSite = fc.Headers.Site
	}
	if fc.Headers.Round != "" {
		c.HeaderRound = fc.Headers.Round
	}
	if fc.Headers.White != "" {
		c.HeaderWhite = fc.Headers.White
	}
	if fc.Headers.Black != "" {
		c.HeaderBlack = fc.Headers.Black
	}
	if fc.Validator.MaterialImbalanceLimit > 0 {
		c.MaterialImbalanceLimit = fc.Validator.MaterialImbalanceLimit
	}
	if fc.Session.TTLSeconds > 0 {
		c.SessionTTLSec = fc.Session.TTLSeconds
	}
	return nil
}
