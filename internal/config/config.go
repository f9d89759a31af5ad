package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config application configuration structure
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Redis     RedisConfig     `yaml:"redis"`
	NATS      NATSConfig      `yaml:"nats"`
	Merkl     MerklConfig     `yaml:"merkl"`
	Llama     LlamaConfig     `yaml:"llama"`
	LLM       LLMConfig       `yaml:"llm"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Chain     ChainConfig     `yaml:"chain"`
	CORS      CORSConfig      `yaml:"cors"`
	Admin     AdminConfig     `yaml:"admin"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// RedisConfig Redis cache configuration
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Timeout  int    `yaml:"timeout"` // dial timeout in seconds
}

// Addr returns host:port for the Redis client.
func (r RedisConfig) Addr() string {
	host := r.Host
	if host == "" {
		host = "localhost"
	}
	port := r.Port
	if port == 0 {
		port = 6379
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// NATSConfig NATS message server configuration
type NATSConfig struct {
	URL           string `yaml:"url"`
	Timeout       int    `yaml:"timeout"`
	ReconnectWait int    `yaml:"reconnect_wait"`
	MaxReconnects int    `yaml:"max_reconnects"`
	Subject       string `yaml:"subject"` // refresh event subject
}

// MerklConfig Merkl API client configuration
type MerklConfig struct {
	BaseURL      string `yaml:"baseUrl"`
	Timeout      int    `yaml:"timeout"`      // request timeout (seconds)
	PageSize     int    `yaml:"pageSize"`     // items per page
	MaxPages     int    `yaml:"maxPages"`     // safety bound on pagination
	PageDelayMS  int    `yaml:"pageDelayMs"`  // sleep between uncached pages
	RewardSymbol string `yaml:"rewardSymbol"` // incentive token to aggregate (MON)
}

// LlamaConfig DeFiLlama API client configuration
type LlamaConfig struct {
	BaseURL        string `yaml:"baseUrl"`
	VolumesBaseURL string `yaml:"volumesBaseUrl"`
	Timeout        int    `yaml:"timeout"`
}

// LLMConfig report generation configuration
type LLMConfig struct {
	Provider    string `yaml:"provider"` // "grok" or "claude"
	Model       string `yaml:"model"`
	MaxTokens   int    `yaml:"maxTokens"`
	MaxAttempts int    `yaml:"maxAttempts"` // full call+parse attempts
	Timeout     int    `yaml:"timeout"`     // request timeout (seconds)

	// Keys are env-only (GROK_API_KEY / ANTHROPIC_API_KEY), never yaml.
	GrokAPIKey   string `yaml:"-"`
	ClaudeAPIKey string `yaml:"-"`
}

// DashboardConfig refresh pipeline configuration
type DashboardConfig struct {
	RefreshInterval int `yaml:"refreshInterval"` // hours between scheduled refreshes, default 24
	WindowDays      int `yaml:"windowDays"`      // aggregation window, default 7

	// TTLs in minutes per cached data category
	CampaignTTL    int `yaml:"campaignTtl"`
	OpportunityTTL int `yaml:"opportunityTtl"`
	TVLTTL         int `yaml:"tvlTtl"`
	VolumeTTL      int `yaml:"volumeTtl"`
	SnapshotTTL    int `yaml:"snapshotTtl"`
}

// ChainConfig target chain configuration
type ChainConfig struct {
	ID   int    `yaml:"id"`   // Monad mainnet
	Name string `yaml:"name"` // slug used by external APIs
}

// CORSConfig CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowedOrigins"`
	AllowCredentials bool     `yaml:"allowCredentials"`
	MaxAge           int      `yaml:"maxAge"`
}

// AdminConfig Admin API access control configuration
type AdminConfig struct {
	AllowedIPs []string `yaml:"allowedIPs"` // IP addresses or CIDR ranges
}

var AppConfig *Config

// TimeoutDuration returns the LLM request timeout, defaulting to 5m.
func (l LLMConfig) TimeoutDuration() time.Duration {
	if l.Timeout <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(l.Timeout) * time.Second
}

// RefreshIntervalDuration returns the scheduled refresh interval as a Duration.
func (d DashboardConfig) RefreshIntervalDuration() time.Duration {
	if d.RefreshInterval <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(d.RefreshInterval) * time.Hour
}

// Window returns the aggregation window in days, defaulting to 7.
func (d DashboardConfig) Window() int {
	if d.WindowDays <= 0 {
		return 7
	}
	return d.WindowDays
}

// LoadConfig Load configuration file
func LoadConfig(configPath string) error {
	if configPath == "" {
		configPath = "config.yaml"
		if _, err := os.Stat("config.local.yaml"); err == nil {
			configPath = "config.local.yaml"
			log.Printf("🔧 Using local configuration file: config.local.yaml")
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	fmt.Printf("✅ [%s] Loading configuration from config file: %s\n", time.Now().Format("2006-01-02 15:04:05"), configPath)

	applyDefaults(&config)
	overrideFromEnv(&config)

	fmt.Printf("📋 [Config] Merkl: baseUrl=%s pageSize=%d, chain=%s(%d)\n",
		config.Merkl.BaseURL, config.Merkl.PageSize, config.Chain.Name, config.Chain.ID)
	fmt.Printf("📋 [Config] LLM provider=%s model=%s\n", config.LLM.Provider, config.LLM.Model)

	if len(config.Admin.AllowedIPs) > 0 {
		fmt.Printf("📋 [Config] Admin IP whitelist loaded: %d IPs/CIDRs configured\n", len(config.Admin.AllowedIPs))
	} else {
		fmt.Printf("📋 [Config] Admin IP whitelist: not configured (localhost-only mode)\n")
	}

	AppConfig = &config
	return nil
}

// applyDefaults fills zero-valued fields that have sane defaults.
func applyDefaults(config *Config) {
	if config.Server.Port == 0 {
		config.Server.Port = 8080
	}
	if config.Merkl.BaseURL == "" {
		config.Merkl.BaseURL = "https://api.merkl.xyz/v4"
	}
	if config.Merkl.PageSize == 0 {
		config.Merkl.PageSize = 100
	}
	if config.Merkl.MaxPages == 0 {
		config.Merkl.MaxPages = 50
	}
	if config.Merkl.PageDelayMS == 0 {
		config.Merkl.PageDelayMS = 100
	}
	if config.Merkl.RewardSymbol == "" {
		config.Merkl.RewardSymbol = "MON"
	}
	if config.Llama.BaseURL == "" {
		config.Llama.BaseURL = "https://api.llama.fi"
	}
	if config.Llama.VolumesBaseURL == "" {
		config.Llama.VolumesBaseURL = "https://api.llama.fi"
	}
	if config.LLM.Provider == "" {
		config.LLM.Provider = "grok"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 4096
	}
	if config.LLM.MaxAttempts == 0 {
		config.LLM.MaxAttempts = 3
	}
	if config.Chain.ID == 0 {
		config.Chain.ID = 143
	}
	if config.Chain.Name == "" {
		config.Chain.Name = "monad"
	}
	if config.Dashboard.CampaignTTL == 0 {
		config.Dashboard.CampaignTTL = 60
	}
	if config.Dashboard.OpportunityTTL == 0 {
		config.Dashboard.OpportunityTTL = 60
	}
	if config.Dashboard.TVLTTL == 0 {
		config.Dashboard.TVLTTL = 30
	}
	if config.Dashboard.VolumeTTL == 0 {
		config.Dashboard.VolumeTTL = 30
	}
	if config.Dashboard.SnapshotTTL == 0 {
		// Must outlive the WoW lookback (one window) with slack.
		config.Dashboard.SnapshotTTL = 14 * 24 * 60
	}
}

// overrideFromEnv applies environment variable overrides.
func overrideFromEnv(config *Config) {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if redisHost := os.Getenv("REDIS_HOST"); redisHost != "" {
		config.Redis.Host = redisHost
	}
	if redisPort := os.Getenv("REDIS_PORT"); redisPort != "" {
		if p, err := strconv.Atoi(redisPort); err == nil {
			config.Redis.Port = p
		}
	}
	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		config.Redis.Password = redisPassword
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		config.NATS.URL = natsURL
	}
	if natsTimeout := os.Getenv("NATS_TIMEOUT"); natsTimeout != "" {
		if t, err := strconv.Atoi(natsTimeout); err == nil {
			config.NATS.Timeout = t
		}
	}

	if merklURL := os.Getenv("MERKL_BASE_URL"); merklURL != "" {
		config.Merkl.BaseURL = merklURL
	}
	if llamaURL := os.Getenv("LLAMA_BASE_URL"); llamaURL != "" {
		config.Llama.BaseURL = llamaURL
	}
	if volumesURL := os.Getenv("LLAMA_VOLUMES_BASE_URL"); volumesURL != "" {
		config.Llama.VolumesBaseURL = volumesURL
	}

	if provider := os.Getenv("LLM_PROVIDER"); provider != "" {
		config.LLM.Provider = strings.ToLower(provider)
	}
	if model := os.Getenv("LLM_MODEL"); model != "" {
		config.LLM.Model = model
	}
	config.LLM.GrokAPIKey = os.Getenv("GROK_API_KEY")
	config.LLM.ClaudeAPIKey = os.Getenv("ANTHROPIC_API_KEY")

	if interval := os.Getenv("DASHBOARD_REFRESH_INTERVAL"); interval != "" {
		if h, err := strconv.Atoi(interval); err == nil {
			config.Dashboard.RefreshInterval = h
		}
	}

	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		origins := strings.Split(corsOrigins, ",")
		config.CORS.AllowedOrigins = make([]string, 0, len(origins))
		for _, origin := range origins {
			trimmed := strings.TrimSpace(origin)
			if trimmed != "" {
				config.CORS.AllowedOrigins = append(config.CORS.AllowedOrigins, trimmed)
			}
		}
	}
}
