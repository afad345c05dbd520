package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/certkeeper/internal/flagx"
	"github.com/dmitrijs2005/certkeeper/internal/timex"
)

// JsonConfig is the on-disk shape of the config file. Keys that are absent
// leave the corresponding Config value untouched.
type JsonConfig struct {
	EndpointAddrHTTP *string         `json:"endpoint_addr_http"`
	EndpointAddrGRPC *string         `json:"endpoint_addr_grpc"`
	DatabaseDSN      *string         `json:"database_dsn"`
	Storage          *string         `json:"storage"`
	SecretKey        *string         `json:"secret_key"`
	Mode             *string         `json:"mode"`
	LogLevel         *string         `json:"log_level"`
	PublicBaseURL    *string         `json:"public_base_url"`
	FontsDir         *string         `json:"fonts_dir"`
	TemplateHosts    []string        `json:"template_hosts"`
	ShutdownTimeout  *timex.Duration `json:"shutdown_timeout"`
	S3RootUser       *string         `json:"s3_root_user"`
	S3RootPassword   *string         `json:"s3_root_password"`
	S3Bucket         *string         `json:"s3_bucket"`
	S3Region         *string         `json:"s3_region"`
	S3BaseEndpoint   *string         `json:"s3_base_endpoint"`
}

// parseJson overlays values from the JSON file named by -c/-config.
// Without that flag nothing is loaded. An unreadable or malformed file panics,
// as does a bad flag in parseFlags.
func parseJson(config *Config, args []string) {
	path := flagx.ConfigPath(args)
	if path == "" {
		return
	}

	file, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	set(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	set(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	set(&config.DatabaseDSN, c.DatabaseDSN)
	set(&config.Storage, c.Storage)
	set(&config.SecretKey, c.SecretKey)
	set(&config.Mode, c.Mode)
	set(&config.LogLevel, c.LogLevel)
	set(&config.PublicBaseURL, c.PublicBaseURL)
	set(&config.FontsDir, c.FontsDir)
	if c.TemplateHosts != nil {
		config.TemplateHosts = c.TemplateHosts
	}
	if c.ShutdownTimeout != nil {
		config.ShutdownTimeout = c.ShutdownTimeout.Duration
	}
	set(&config.S3RootUser, c.S3RootUser)
	set(&config.S3RootPassword, c.S3RootPassword)
	set(&config.S3Bucket, c.S3Bucket)
	set(&config.S3Region, c.S3Region)
	set(&config.S3BaseEndpoint, c.S3BaseEndpoint)
}

func set(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
