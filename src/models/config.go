package models

// MConfig Structure
type MConfig struct {
	Name         string              `yaml:"name"`
	Host         string              `yaml:"host"`
	Port         int                 `yaml:"port"`
	LogLevel     string              `yaml:"log_level"`
	Storage      MStorageConfig      `yaml:"storage"`
	Provider     MProviderConfig     `yaml:"provider"`
	Subscription MSubscriptionConfig `yaml:"subscription"`
	Margin       MMarginConfig       `yaml:"margin"`
}

type MStorageConfig struct {
	DBType             string `yaml:"db_type"`
	DBPath             string `yaml:"db_path"`
	DBConnectionString string `yaml:"db_connection_string"`
}

type MProviderConfig struct {
	RestURL                 string `yaml:"rest_url"`
	StreamURL               string `yaml:"stream_url"`
	APIKeyEnv               string `yaml:"api_key_env"`
	RequestTimeoutSeconds   int    `yaml:"request_timeout_seconds"`
	RequestsPerWindow       int    `yaml:"requests_per_window"`
	WindowSeconds           int    `yaml:"window_seconds"`
	ReconnectDelaySeconds   int    `yaml:"reconnect_delay_seconds"`
	KeepaliveIntervalSecond int    `yaml:"keepalive_interval_seconds"`
}

type MSubscriptionConfig struct {
	Quota                   int  `yaml:"quota"`
	RotationIntervalSeconds int  `yaml:"rotation_interval_seconds"`
	MarketHoursGate         bool `yaml:"market_hours_gate"`
}

type MMarginConfig struct {
	MaintenanceRate float64 `yaml:"maintenance_rate"`
}
