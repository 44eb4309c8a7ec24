package config

import (
	"errors"
	"fmt"
	"strings"

	"reticle/internal/services"
)

// Validate ensures the configuration is usable. Every failure is marked with
// services.ErrConfiguration so callers can treat it as fatal.
func (c *Config) Validate() error {
	for _, check := range []func() error{
		c.validateCamera,
		c.validateDetection,
		c.validateConfirmation,
		c.validateSearch,
		c.validateCache,
		c.validateVision,
		c.validateNotifications,
	} {
		if err := check(); err != nil {
			return fmt.Errorf("%w: %w", services.ErrConfiguration, err)
		}
	}
	return nil
}

func (c *Config) validateCamera() error {
	if c.Camera.OverlayWidth <= 0 || c.Camera.OverlayHeight <= 0 {
		return errors.New("camera.overlay_width and camera.overlay_height must be positive")
	}
	return nil
}

func (c *Config) validateDetection() error {
	switch c.Detection.Mode {
	case ModeMultiObject, ModeProminentObject, ModeBarcode:
	default:
		return fmt.Errorf("detection.mode %q is not one of %s, %s, %s", c.Detection.Mode, ModeMultiObject, ModeProminentObject, ModeBarcode)
	}
	switch c.Detection.Backend {
	case BackendReplay:
	case BackendCloudVision:
		if c.Detection.Mode == ModeBarcode {
			return errors.New("detection.backend cloud_vision does not support barcode mode")
		}
	default:
		return fmt.Errorf("detection.backend %q is not supported", c.Detection.Backend)
	}
	if c.Detection.SelectionDistancePx <= 0 {
		return errors.New("detection.selection_distance_px must be positive")
	}
	if c.Detection.BarcodeMinWidthPercent <= 0 || c.Detection.BarcodeMinWidthPercent > 100 {
		return errors.New("detection.barcode_min_width_percent must be within (0, 100]")
	}
	return nil
}

func (c *Config) validateConfirmation() error {
	if c.Confirmation.WindowMs <= 0 {
		return errors.New("confirmation.window_ms must be positive")
	}
	if c.Confirmation.GraceFrames < 0 {
		return errors.New("confirmation.grace_frames must not be negative")
	}
	return nil
}

func (c *Config) validateSearch() error {
	switch c.Search.Mode {
	case SearchModeAuto, SearchModeManual:
	default:
		return fmt.Errorf("search.mode %q must be auto or manual", c.Search.Mode)
	}
	if c.Search.RequestTimeout <= 0 {
		return errors.New("search.request_timeout must be positive")
	}
	if c.Search.Endpoint != "" && !strings.HasPrefix(c.Search.Endpoint, "http://") && !strings.HasPrefix(c.Search.Endpoint, "https://") {
		return errors.New("search.endpoint must be an http(s) URL")
	}
	return nil
}

func (c *Config) validateCache() error {
	if !c.Cache.Enabled {
		return nil
	}
	if c.Cache.TTLSeconds <= 0 {
		return errors.New("cache.ttl_seconds must be positive when cache.enabled is true")
	}
	if c.Cache.RedisDB < 0 {
		return errors.New("cache.redis_db must not be negative")
	}
	return nil
}

func (c *Config) validateVision() error {
	if c.Detection.Backend != BackendCloudVision {
		return nil
	}
	if c.Vision.MaxResults <= 0 {
		return errors.New("vision.max_results must be positive")
	}
	if c.Vision.MinScore < 0 || c.Vision.MinScore > 1 {
		return errors.New("vision.min_score must be between 0 and 1")
	}
	if c.Vision.RequestTimeout <= 0 {
		return errors.New("vision.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}
