package config

import "time"

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:           8000,
			MetricsPort:        9090,
			ReadTimeout:        30 * time.Second,
			WriteTimeout:       120 * time.Second,
			ShutdownTimeout:    15 * time.Second,
			CORSAllowedOrigins: []string{"*"},
			RateLimitRPS:       20,
			RateLimitBurst:     40,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			DB:           0,
			PoolSize:     10,
			MinIdleConns: 2,
			KeyPrefix:    "forge3d",
		},
		Gemini: GeminiConfig{
			ProModel:      "gemini-3-pro-image-preview",
			FlashModel:    "gemini-2.5-flash-image",
			ThinkingLevel: "high",
			ImageSize:     "2K",
			AspectRatio:   "16:9",
			Timeout:       120 * time.Second,
		},
		Trellis: TrellisConfig{
			BaseURL:              "https://queue.fal.run",
			Timeout:              10 * time.Minute,
			EnableMultiImage:     false,
			MultiImageAlgo:       "stochastic",
			Seed:                 1337,
			TextureSize:          2048,
			MeshSimplify:         0.95,
			SSSamplingSteps:      20,
			SSGuidanceStrength:   8.0,
			SlatSamplingSteps:    20,
			SlatGuidanceStrength: 4.0,
		},
		Export: ExportConfig{
			Dir: "",
		},
		Demo: DemoConfig{
			MockMode:     false,
			CreateDelay:  200 * time.Millisecond,
			EditDelay:    200 * time.Millisecond,
			FixturesPath: "demo_fixtures.json",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
