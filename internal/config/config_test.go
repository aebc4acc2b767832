package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPasetoKey = "0123456789abcdef0123456789abcdef"

func TestParse_DefaultValues(t *testing.T) {
	t.Setenv("PASETO_KEY", testPasetoKey)

	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.True(t, cfg.Server.IsDevelopment())
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.TrustedOrigins)
	assert.Equal(t, StorePostgres, cfg.Store.Driver)
	assert.True(t, cfg.Store.MigrateOnStart)
	assert.Equal(t, "host=localhost port=5432 user=postgres password=postgres dbname=referrals sslmode=disable", cfg.Database.ConnectionString())
	assert.Equal(t, "mongodb://localhost:27017", cfg.Mongo.URI)
	assert.Equal(t, "aveksana", cfg.Mongo.Database)
	assert.Equal(t, "localhost:6379", cfg.Redis.Address())
	assert.Equal(t, 10, cfg.RateLimit.Requests)
	assert.Equal(t, 15*time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, TokenPaseto, cfg.Auth.TokenFormat)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.AccessTokenDuration)
	assert.Equal(t, 20, cfg.Referral.SignupGiftCredits)
	assert.Equal(t, 30*24*time.Hour, cfg.Referral.SuperActivationWindow)
	assert.Equal(t, 50, cfg.Referral.SuperActivationCredits)
	assert.Equal(t, "Aveksana Ambassador", cfg.Referral.SuperActivationBadge)
}

func TestParse_EnvironmentOverrides(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		expected func(*testing.T, *Config)
	}{
		{
			name: "server override",
			envVars: map[string]string{
				"SERVER_PORT":     "9090",
				"APP_ENV":         "prod",
				"TRUSTED_ORIGINS": "https://a.example,https://b.example",
			},
			expected: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "9090", cfg.Server.Port)
				assert.False(t, cfg.Server.IsDevelopment())
				assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.TrustedOrigins)
			},
		},
		{
			name: "mongo store",
			envVars: map[string]string{
				"STORE_DRIVER":   "mongo",
				"MONGO_URI":      "mongodb://mongo:27017",
				"MONGO_DATABASE": "referrals",
			},
			expected: func(t *testing.T, cfg *Config) {
				assert.Equal(t, StoreMongo, cfg.Store.Driver)
				assert.Equal(t, "mongodb://mongo:27017", cfg.Mongo.URI)
				assert.Equal(t, "referrals", cfg.Mongo.Database)
			},
		},
		{
			name: "neon channel binding",
			envVars: map[string]string{
				"DB_HOST":            "ep-x.neon.tech",
				"DB_SSLMODE":         "require",
				"DB_CHANNEL_BINDING": "require",
			},
			expected: func(t *testing.T, cfg *Config) {
				assert.Contains(t, cfg.Database.ConnectionString(), "host=ep-x.neon.tech")
				assert.Contains(t, cfg.Database.ConnectionString(), " channel_binding=require")
			},
		},
		{
			name: "jwt tokens",
			envVars: map[string]string{
				"AUTH_TOKEN_FORMAT":     "jwt",
				"JWT_SECRET":            "a-very-long-secret-that-is-over-32-bytes",
				"ACCESS_TOKEN_DURATION": "1h",
			},
			expected: func(t *testing.T, cfg *Config) {
				assert.Equal(t, TokenJWT, cfg.Auth.TokenFormat)
				assert.Equal(t, time.Hour, cfg.Auth.AccessTokenDuration)
			},
		},
		{
			name: "referral rules",
			envVars: map[string]string{
				"REFERRAL_SIGNUP_GIFT_CREDITS":      "5",
				"REFERRAL_SUPER_ACTIVATION_WINDOW":  "48h",
				"REFERRAL_SUPER_ACTIVATION_CREDITS": "10",
				"REFERRAL_SUPER_ACTIVATION_BADGE":   "Early Bird",
			},
			expected: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 5, cfg.Referral.SignupGiftCredits)
				assert.Equal(t, 48*time.Hour, cfg.Referral.SuperActivationWindow)
				assert.Equal(t, 10, cfg.Referral.SuperActivationCredits)
				assert.Equal(t, "Early Bird", cfg.Referral.SuperActivationBadge)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("PASETO_KEY", testPasetoKey)
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg, err := Parse()
			require.NoError(t, err)
			tt.expected(t, cfg)
		})
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr string
	}{
		{"short paseto key", map[string]string{"PASETO_KEY": "short"}, "PASETO_KEY must be exactly 32 bytes"},
		{"short jwt secret", map[string]string{"AUTH_TOKEN_FORMAT": "jwt", "JWT_SECRET": "short"}, "JWT_SECRET must be at least 32 bytes"},
		{"unknown token format", map[string]string{"AUTH_TOKEN_FORMAT": "opaque"}, "AUTH_TOKEN_FORMAT"},
		{"unknown store", map[string]string{"PASETO_KEY": testPasetoKey, "STORE_DRIVER": "sqlite"}, "STORE_DRIVER"},
		{"bad duration", map[string]string{"PASETO_KEY": testPasetoKey, "SERVER_READ_TIMEOUT": "soon"}, "failed to parse config"},
		{"negative credits", map[string]string{"PASETO_KEY": testPasetoKey, "REFERRAL_SIGNUP_GIFT_CREDITS": "-1"}, "must not be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			_, err := Parse()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
