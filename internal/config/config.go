// Package config loads the model server configuration from a key=value
// properties file, overlays SERVING_ environment variables and command line
// overrides, and exposes typed accessors plus the frozen policy snapshot
// consumed by transport-identity resolution and error-rate admission gating.
package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Property keys understood by the server.
const (
	KeyInferenceAddress   = "inference_address"
	KeyManagementAddress  = "management_address"
	KeyJobQueueSize       = "job_queue_size"
	KeyMaxIdleTime        = "max_idle_time"
	KeyBatchSize          = "batch_size"
	KeyMaxBatchDelay      = "max_batch_delay"
	KeyMaxRequestSize     = "max_request_size"
	KeyChunkedReadTimeout = "chunked_read_timeout"

	KeyKeystore        = "keystore"
	KeyKeystorePass    = "keystore_pass"
	KeyKeystoreType    = "keystore_type"
	KeyPrivateKeyFile  = "private_key_file"
	KeyCertificateFile = "certificate_file"

	KeyBadRequestErrorHTTPCode = "bad_request_http_code"
	KeyWlmErrorHTTPCode        = "wlm_error_http_code"
	KeyThrottleErrorHTTPCode   = "throttle_error_http_code"
	KeyTimeoutErrorHTTPCode    = "timeout_http_code"
	KeyServerErrorHTTPCode     = "server_error_http_code"
	KeyRequestIDHeaderKey      = "request_id_header_key"
)

const (
	envPrefix       = "SERVING_"
	errorRatePrefix = "error_rate_"

	defaultMaxRequestSize = 64 * 1024 * 1024
)

// Config holds the resolved key/value settings for the process. It is frozen
// once loading completes and safe for concurrent reads.
type Config struct {
	props      map[string]string
	configFile string
}

// Load reads the properties file at path (optional, may be empty), then
// overlays SERVING_ prefixed environment variables. Later layers win.
func Load(path string) (*Config, error) {
	c := &Config{props: map[string]string{}}

	if path != "" {
		props, err := godotenv.Read(path)
		if err != nil {
			return nil, fmt.Errorf("unable to read configuration file %s: %w", path, err)
		}
		for k, v := range props {
			c.props[k] = v
		}
		c.configFile = path
	}

	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, envPrefix) {
			continue
		}
		c.props[strings.ToLower(strings.TrimPrefix(key, envPrefix))] = value
	}

	return c, nil
}

// Set applies a command line override. Overrides win over the file and the
// environment, and must be applied before the first snapshot is taken.
func (c *Config) Set(key, value string) {
	c.props[key] = value
}

// Property returns the raw value for key, or def when unset.
func (c *Config) Property(key, def string) string {
	if v, ok := c.props[key]; ok {
		return v
	}
	return def
}

// IntProperty returns the integer value for key, or def when unset or
// unparsable.
func (c *Config) IntProperty(key string, def int) int {
	v, ok := c.props[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}

// InferenceAddress returns the binding for the inference endpoint.
func (c *Config) InferenceAddress() string {
	return c.Property(KeyInferenceAddress, "https://127.0.0.1:8080")
}

// ManagementAddress returns the binding for the management endpoint.
func (c *Config) ManagementAddress() string {
	return c.Property(KeyManagementAddress, "https://127.0.0.1:8081")
}

// JobQueueSize returns the default job queue size.
func (c *Config) JobQueueSize() int {
	return c.IntProperty(KeyJobQueueSize, 1000)
}

// BatchSize returns the default batch size.
func (c *Config) BatchSize() int {
	return c.IntProperty(KeyBatchSize, 1)
}

// MaxBatchDelay returns the maximum delay in milliseconds to wait for a batch
// to fill.
func (c *Config) MaxBatchDelay() time.Duration {
	return time.Duration(c.IntProperty(KeyMaxBatchDelay, 100)) * time.Millisecond
}

// MaxIdleTime returns how long an idle worker is kept around.
func (c *Config) MaxIdleTime() time.Duration {
	return time.Duration(c.IntProperty(KeyMaxIdleTime, 60)) * time.Second
}

// MaxRequestSize returns the maximum allowed request size in bytes.
func (c *Config) MaxRequestSize() int {
	return c.IntProperty(KeyMaxRequestSize, defaultMaxRequestSize)
}

// ChunkedReadTimeout returns the chunked response read timeout.
func (c *Config) ChunkedReadTimeout() time.Duration {
	return time.Duration(c.IntProperty(KeyChunkedReadTimeout, 120)) * time.Second
}

// BadRequestErrorHTTPCode returns the status code used for bad request errors.
func (c *Config) BadRequestErrorHTTPCode() int {
	return c.IntProperty(KeyBadRequestErrorHTTPCode, 400)
}

// WlmErrorHTTPCode returns the status code used for workload manager errors.
func (c *Config) WlmErrorHTTPCode() int {
	return c.IntProperty(KeyWlmErrorHTTPCode, 503)
}

// ThrottleErrorHTTPCode returns the status code used once an error category
// has tripped its rate limit.
func (c *Config) ThrottleErrorHTTPCode() int {
	return c.IntProperty(KeyThrottleErrorHTTPCode, 503)
}

// TimeoutErrorHTTPCode returns the status code used for request timeouts.
func (c *Config) TimeoutErrorHTTPCode() int {
	return c.IntProperty(KeyTimeoutErrorHTTPCode, 400)
}

// ServerErrorHTTPCode returns the status code used for generic server errors.
func (c *Config) ServerErrorHTTPCode() int {
	return c.IntProperty(KeyServerErrorHTTPCode, 500)
}

// RequestIDHeaderKey returns the header used to propagate request ids.
func (c *Config) RequestIDHeaderKey() string {
	return c.Property(KeyRequestIDHeaderKey, "x-request-id")
}

// Dump renders the effective configuration for startup logging. Secret values
// are masked.
func (c *Config) Dump() string {
	keys := make([]string, 0, len(c.props))
	for k := range c.props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Config file: %s", valueOr(c.configFile, "N/A"))
	fmt.Fprintf(&sb, "\nInference address: %s", c.InferenceAddress())
	fmt.Fprintf(&sb, "\nManagement address: %s", c.ManagementAddress())
	fmt.Fprintf(&sb, "\nDefault job_queue_size: %d", c.JobQueueSize())
	fmt.Fprintf(&sb, "\nDefault batch_size: %d", c.BatchSize())
	fmt.Fprintf(&sb, "\nDefault max_batch_delay: %s", c.MaxBatchDelay())
	fmt.Fprintf(&sb, "\nDefault max_idle_time: %s", c.MaxIdleTime())
	fmt.Fprintf(&sb, "\nMaximum Request Size: %d", c.MaxRequestSize())
	fmt.Fprint(&sb, "\nProperties:")
	for _, k := range keys {
		v := c.props[k]
		if k == KeyKeystorePass {
			v = "***"
		}
		fmt.Fprintf(&sb, "\n    %s: %s", k, v)
	}
	return sb.String()
}

func valueOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
