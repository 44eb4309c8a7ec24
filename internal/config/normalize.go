package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeCamera()
	if err := c.normalizeDetection(); err != nil {
		return err
	}
	c.normalizeSearch()
	c.normalizeCache()
	if err := c.normalizeVision(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LockDir) == "" {
		c.Paths.LockDir = defaultLockDir
	}
	if c.Paths.LockDir, err = expandPath(c.Paths.LockDir); err != nil {
		return fmt.Errorf("paths.lock_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("RETICLE_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeCamera() {
	c.Camera.Device = strings.TrimSpace(c.Camera.Device)
	if c.Camera.FrameRate <= 0 {
		c.Camera.FrameRate = defaultFrameRate
	}
}

func (c *Config) normalizeDetection() error {
	c.Detection.Mode = strings.ToLower(strings.TrimSpace(c.Detection.Mode))
	if c.Detection.Mode == "" {
		c.Detection.Mode = ModeMultiObject
	}
	c.Detection.Backend = strings.ToLower(strings.TrimSpace(c.Detection.Backend))
	if c.Detection.Backend == "" {
		c.Detection.Backend = BackendReplay
	}
	if c.Detection.ReplayScript != "" {
		expanded, err := expandPath(c.Detection.ReplayScript)
		if err != nil {
			return fmt.Errorf("detection.replay_script: %w", err)
		}
		c.Detection.ReplayScript = expanded
	}
	if c.Detection.BarcodeResultDelayMs < 0 {
		c.Detection.BarcodeResultDelayMs = 0
	}
	return nil
}

func (c *Config) normalizeSearch() {
	c.Search.Mode = strings.ToLower(strings.TrimSpace(c.Search.Mode))
	if c.Search.Mode == "" {
		c.Search.Mode = SearchModeAuto
	}
	c.Search.Endpoint = strings.TrimSpace(c.Search.Endpoint)
	if c.Search.APIKey == "" {
		if value, ok := os.LookupEnv("RETICLE_SEARCH_API_KEY"); ok {
			c.Search.APIKey = strings.TrimSpace(value)
		}
	}
	if c.Search.PlaceholderResults < 0 {
		c.Search.PlaceholderResults = 0
	}
}

func (c *Config) normalizeCache() {
	c.Cache.RedisAddr = strings.TrimSpace(c.Cache.RedisAddr)
	if c.Cache.RedisAddr == "" {
		c.Cache.RedisAddr = defaultRedisAddr
	}
	if c.Cache.RedisPassword == "" {
		if value, ok := os.LookupEnv("RETICLE_REDIS_PASSWORD"); ok {
			c.Cache.RedisPassword = value
		}
	}
	c.Cache.Namespace = strings.TrimSpace(c.Cache.Namespace)
	if c.Cache.Namespace == "" {
		c.Cache.Namespace = defaultCacheNamespace
	}
}

func (c *Config) normalizeVision() error {
	if c.Vision.CredentialsFile == "" {
		return nil
	}
	expanded, err := expandPath(c.Vision.CredentialsFile)
	if err != nil {
		return fmt.Errorf("vision.credentials_file: %w", err)
	}
	c.Vision.CredentialsFile = expanded
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "":
		c.Logging.Format = defaultLogFormat
	case "auto", "console", "json":
	default:
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
