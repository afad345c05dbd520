package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{name: "all flags", args: []string{
			"-a", "127.0.0.1:8081", "-h", "127.0.0.1:9090", "-d", "db", "-m", "memory", "-s", "secret",
			"-x", "production", "-l", "debug", "-w", "https://certs.example.org", "-f", "/fonts", "-t", "3",
			"-u", "user", "-p", "password", "-b", "bucket", "-g", "us-west-1", "-e", "http://endpoint",
			"-r", "cdn.example.org, .assets.example.org,",
		}, expectPanic: false,
			expected: &Config{
				EndpointAddrHTTP: "127.0.0.1:8081",
				EndpointAddrGRPC: "127.0.0.1:9090",
				DatabaseDSN:      "db",
				Storage:          StorageMemory,
				SecretKey:        "secret",
				Mode:             "production",
				LogLevel:         "debug",
				PublicBaseURL:    "https://certs.example.org",
				FontsDir:         "/fonts",
				TemplateHosts:    []string{"cdn.example.org", ".assets.example.org"},
				ShutdownTimeout:  3 * time.Second,
				S3RootUser:       "user",
				S3RootPassword:   "password",
				S3Bucket:         "bucket",
				S3Region:         "us-west-1",
				S3BaseEndpoint:   "http://endpoint",
			}},
		{name: "unknown flags ignored", args: []string{"-c", "cfg.json", "-z", "1", "-a", ":1"},
			expected: &Config{EndpointAddrHTTP: ":1"}},
		{name: "bad int panics", args: []string{"-t", "soon"}, expectPanic: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := &Config{}

			if !tt.expectPanic {
				require.NotPanics(t, func() { parseFlags(config, tt.args) })
				assert.Empty(t, cmp.Diff(config, tt.expected))
			} else {
				require.Panics(t, func() { parseFlags(config, tt.args) })
			}
		})
	}
}
