package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old := os.Getenv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if old == "" {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, old)
		}
	})
}

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "ENV", "LOG_LEVEL", "DATABASE_URL", "CLASSIFIER_URL",
		"CLASSIFIER_TIMEOUT", "RPC_URL", "CHAIN_ID", "PRIVATE_KEY",
		"CONTRACT_ADDRESS", "RATE_LIMIT_RPM", "ALLOWED_ORIGINS",
	} {
		setEnv(t, key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultEnv, cfg.Env)
	assert.Equal(t, DefaultClassifierURL, cfg.ClassifierURL)
	assert.Equal(t, DefaultClassifierTimeout, cfg.ClassifierTimeout)
	assert.Equal(t, DefaultRateLimit, cfg.RateLimitRPM)
	assert.Empty(t, cfg.DatabaseURL)
	assert.False(t, cfg.LedgerConfigured())
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_Overrides(t *testing.T) {
	setEnv(t, "PORT", "9090")
	setEnv(t, "ENV", "staging")
	setEnv(t, "CLASSIFIER_URL", "http://classifier:8000/predict")
	setEnv(t, "CLASSIFIER_TIMEOUT", "5s")
	setEnv(t, "RATE_LIMIT_RPM", "30")
	setEnv(t, "ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "staging", cfg.Env)
	assert.Equal(t, "http://classifier:8000/predict", cfg.ClassifierURL)
	assert.Equal(t, 5*time.Second, cfg.ClassifierTimeout)
	assert.Equal(t, 30, cfg.RateLimitRPM)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.AllowedOrigins)
}

func TestLoad_InvalidPrivateKeyLength(t *testing.T) {
	setEnv(t, "PRIVATE_KEY", "tooshort")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "64 hex characters")
}

func TestConfig_Validate(t *testing.T) {
	validKey := "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{
			name: "valid minimal config",
			config: Config{
				ClassifierURL: DefaultClassifierURL,
			},
			wantErr: "",
		},
		{
			name:    "missing classifier URL",
			config:  Config{},
			wantErr: "CLASSIFIER_URL is required",
		},
		{
			name: "private key without prefix",
			config: Config{
				ClassifierURL: DefaultClassifierURL,
				PrivateKey:    validKey,
			},
			wantErr: "",
		},
		{
			name: "private key with 0x prefix",
			config: Config{
				ClassifierURL: DefaultClassifierURL,
				PrivateKey:    "0x" + validKey,
			},
			wantErr: "",
		},
		{
			name: "private key wrong length",
			config: Config{
				ClassifierURL: DefaultClassifierURL,
				PrivateKey:    "abc123",
			},
			wantErr: "64 hex characters",
		},
		{
			name: "production rejects loopback classifier",
			config: Config{
				Env:           "production",
				ClassifierURL: "http://localhost:8000/predict",
			},
			wantErr: "CLASSIFIER_URL",
		},
		{
			name: "production rejects private RPC endpoint",
			config: Config{
				Env:           "production",
				ClassifierURL: "http://203.0.113.10:8000/predict",
				RPCURL:        "http://10.0.0.5:8545",
			},
			wantErr: "RPC_URL",
		},
		{
			name: "production accepts public endpoints",
			config: Config{
				Env:           "production",
				ClassifierURL: "http://203.0.113.10:8000/predict",
				RPCURL:        "http://198.51.100.20:8545",
			},
			wantErr: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfig_LedgerConfigured(t *testing.T) {
	full := Config{
		RPCURL:          "https://sepolia.base.org",
		ChainID:         84532,
		PrivateKey:      "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef",
		ContractAddress: "0x1234567890123456789012345678901234567890",
	}
	assert.True(t, full.LedgerConfigured())

	partial := full
	partial.ContractAddress = ""
	assert.False(t, partial.LedgerConfigured())

	assert.False(t, (&Config{}).LedgerConfigured())
}
