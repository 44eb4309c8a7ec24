package config

const (
	ModeMultiObject     = "multi_object"
	ModeProminentObject = "prominent_object"
	ModeBarcode         = "barcode"

	BackendReplay      = "replay"
	BackendCloudVision = "cloud_vision"

	SearchModeAuto   = "auto"
	SearchModeManual = "manual"
)

const (
	defaultLogDir                 = "~/.local/share/reticle/logs"
	defaultLockDir                = "~/.local/share/reticle/locks"
	defaultAPIBind                = "127.0.0.1:7491"
	defaultCameraDevice           = "/dev/video0"
	defaultOverlayWidth           = 1080
	defaultOverlayHeight          = 1920
	defaultFrameRate              = 30
	defaultSelectionDistancePx    = 96
	defaultBarcodeMinWidthPercent = 50
	defaultBarcodeResultDelayMs   = 2000
	defaultConfirmationWindowMs   = 1500
	defaultSearchTimeout          = 10
	defaultCacheTTLSeconds        = 600
	defaultCacheNamespace         = "reticle:lookup"
	defaultRedisAddr              = "127.0.0.1:6379"
	defaultVisionMaxResults       = 10
	defaultVisionMinScore         = 0.5
	defaultVisionTimeout          = 5
	defaultNotifyTimeout          = 10
	defaultLogFormat              = "auto"
	defaultLogLevel               = "info"
	defaultLogRetentionDays       = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LogDir:  defaultLogDir,
			LockDir: defaultLockDir,
			APIBind: defaultAPIBind,
		},
		Camera: Camera{
			Device:        defaultCameraDevice,
			OverlayWidth:  defaultOverlayWidth,
			OverlayHeight: defaultOverlayHeight,
			FrameRate:     defaultFrameRate,
		},
		Detection: Detection{
			Mode:                   ModeMultiObject,
			Backend:                BackendReplay,
			SelectionDistancePx:    defaultSelectionDistancePx,
			BarcodeMinWidthPercent: defaultBarcodeMinWidthPercent,
			BarcodeResultDelayMs:   defaultBarcodeResultDelayMs,
		},
		Confirmation: Confirmation{
			WindowMs: defaultConfirmationWindowMs,
		},
		Search: Search{
			Mode:           SearchModeAuto,
			RequestTimeout: defaultSearchTimeout,
		},
		Cache: Cache{
			RedisAddr:  defaultRedisAddr,
			TTLSeconds: defaultCacheTTLSeconds,
			Namespace:  defaultCacheNamespace,
		},
		Vision: Vision{
			MaxResults:     defaultVisionMaxResults,
			MinScore:       defaultVisionMinScore,
			RequestTimeout: defaultVisionTimeout,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Confirmed:      false,
			Searched:       true,
			Camera:         true,
			Errors:         true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
