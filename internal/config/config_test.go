package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		TimeResolution: "1m",
		TimeAlignment:  "floor",
		StepMode:       "auto",
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"json log format", func(c *Config) { c.LogFormat = "json" }, ""},
		{"bad resolution", func(c *Config) { c.TimeResolution = "2m" }, "invalid time resolution"},
		{"bad alignment", func(c *Config) { c.TimeAlignment = "up" }, "invalid time alignment"},
		{"bad step mode", func(c *Config) { c.StepMode = "random" }, "invalid step mode"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "invalid log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNew_ReadsViper(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	viper.Set("log_dir", "/tmp/logs")
	viper.Set("run_dir", "/tmp/logs/log_1")
	viper.Set("step_mode", "sequence")

	c := New()
	assert.Equal(t, "/tmp/logs", c.LogDir)
	assert.Equal(t, "/tmp/logs/log_1", c.RunDir)
	assert.Equal(t, "sequence", c.StepMode)
}

func TestIsDatabricks(t *testing.T) {
	tests := []struct {
		uri  string
		want bool
	}{
		{"databricks", true},
		{"databricks://dev", true},
		{"https://adb-123.azuredatabricks.net/", true},
		{"https://x.cloud.databricks.com", true},
		{"http://localhost:5000", false},
		{"https://mlflow.example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			c := &Config{TrackingURI: tt.uri}
			assert.Equal(t, tt.want, c.IsDatabricks())
		})
	}
}

func TestGetDatabricksProfile(t *testing.T) {
	assert.Equal(t, "dev", (&Config{TrackingURI: "databricks://dev/extra"}).GetDatabricksProfile())
	assert.Equal(t, "", (&Config{TrackingURI: "databricks"}).GetDatabricksProfile())
}

func TestValidateTracking(t *testing.T) {
	assert.Error(t, (&Config{}).ValidateTracking())
	assert.NoError(t, (&Config{TrackingURI: "http://localhost:5000"}).ValidateTracking())
}
