package config

// ProviderConfig 外部コンテキストAPIの接続設定
type ProviderConfig struct {
	Name    string
	APIKey  string
	BaseURL string
}

// Enabled BaseURLが設定されているか
func (p ProviderConfig) Enabled() bool {
	return p.BaseURL != ""
}

// OpenWeatherMap OpenWeatherMap設定を取得
func (c *Config) OpenWeatherMap() ProviderConfig {
	return ProviderConfig{Name: "openweathermap", APIKey: c.OpenWeatherMapAPIKey, BaseURL: c.OpenWeatherMapBaseURL}
}

// Events イベントAPI設定を取得
func (c *Config) Events() ProviderConfig {
	return ProviderConfig{Name: "events", APIKey: c.EventsAPIKey, BaseURL: c.EventsAPIURL}
}

// Sports スポーツAPI設定を取得
func (c *Config) Sports() ProviderConfig {
	return ProviderConfig{Name: "sports", APIKey: c.SportsAPIKey, BaseURL: c.SportsAPIURL}
}
