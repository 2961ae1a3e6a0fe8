package common

import (
	"testing"
	"time"
)

func TestConfig_DefaultPort(t *testing.T) {
	cfg := NewDefaultConfig()
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port default = %d, want %d", cfg.Server.Port, 8080)
	}
}

func TestConfig_PortEnvOverride(t *testing.T) {
	t.Setenv("CERTFORGE_PORT", "9090")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d after env override, want %d", cfg.Server.Port, 9090)
	}
}

func TestConfig_StoreAddrEnvOverride(t *testing.T) {
	t.Setenv("CERTFORGE_STORE_ADDR", "redis.internal:6380")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Store.Addr != "redis.internal:6380" {
		t.Errorf("Store.Addr = %q, want %q", cfg.Store.Addr, "redis.internal:6380")
	}
}

func TestConfig_GatewayEnvOverrides(t *testing.T) {
	t.Setenv("CERTFORGE_GATEWAY_BASE_URL", "https://files.example.com")
	t.Setenv("CERTFORGE_GATEWAY_ACCESS_KEY", "ak")
	t.Setenv("CERTFORGE_GATEWAY_SECRET_KEY", "sk")
	t.Setenv("CERTFORGE_GATEWAY_PROJECT_ID", "proj-1")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Gateway.BaseURL != "https://files.example.com" {
		t.Errorf("Gateway.BaseURL = %q", cfg.Gateway.BaseURL)
	}
	if cfg.Gateway.AccessKey != "ak" || cfg.Gateway.SecretKey != "sk" {
		t.Errorf("Gateway access/secret key not overridden: %+v", cfg.Gateway)
	}
	if cfg.Gateway.ProjectID != "proj-1" {
		t.Errorf("Gateway.ProjectID = %q", cfg.Gateway.ProjectID)
	}
}

func TestStoreConfig_GetJobTTL_Default(t *testing.T) {
	cfg := &StoreConfig{}
	if got := cfg.GetJobTTL(); got != time.Hour {
		t.Errorf("GetJobTTL() = %v, want 1h", got)
	}
}

func TestStoreConfig_GetJobTTL_EnforcesMinimum(t *testing.T) {
	cfg := &StoreConfig{JobTTL: "10s"}
	if got := cfg.GetJobTTL(); got != 60*time.Second {
		t.Errorf("GetJobTTL() = %v, want 60s floor", got)
	}
}

func TestStoreConfig_GetJobTTL_Configured(t *testing.T) {
	cfg := &StoreConfig{JobTTL: "2h"}
	if got := cfg.GetJobTTL(); got != 2*time.Hour {
		t.Errorf("GetJobTTL() = %v, want 2h", got)
	}
}

func TestPipelineConfig_GetConcurrency_Default(t *testing.T) {
	cfg := &PipelineConfig{}
	if got := cfg.GetConcurrency(); got != 4 {
		t.Errorf("GetConcurrency() = %d, want 4", got)
	}
}

func TestPipelineConfig_GetConcurrency_Configured(t *testing.T) {
	cfg := &PipelineConfig{ConcurrencyPerBatch: 8}
	if got := cfg.GetConcurrency(); got != 8 {
		t.Errorf("GetConcurrency() = %d, want 8", got)
	}
}

func TestPipelineConfig_GetTemplateCacheTTL_Default(t *testing.T) {
	cfg := &PipelineConfig{}
	if got := cfg.GetTemplateCacheTTL(); got != 24*time.Hour {
		t.Errorf("GetTemplateCacheTTL() = %v, want 24h", got)
	}
}

func TestGatewayConfig_Timeouts_Default(t *testing.T) {
	cfg := &GatewayConfig{}
	if got := cfg.GetDownloadTimeout(); got != 30*time.Second {
		t.Errorf("GetDownloadTimeout() = %v, want 30s", got)
	}
	if got := cfg.GetUploadTimeout(); got != 60*time.Second {
		t.Errorf("GetUploadTimeout() = %v, want 60s", got)
	}
}

func TestConfig_IsProduction(t *testing.T) {
	cfg := &Config{Environment: "Production"}
	if !cfg.IsProduction() {
		t.Errorf("IsProduction() = false, want true")
	}
	cfg.Environment = "development"
	if cfg.IsProduction() {
		t.Errorf("IsProduction() = true, want false")
	}
}
