package httputil

import (
	"net/http"
	"time"
)

const DefaultTimeout = 30 * time.Second

const UserAgent = "TobitaWeather/1.0"

// NewClient returns an HTTP client with standard timeout configuration.
func NewClient() *http.Client {
	return &http.Client{
		Timeout: DefaultTimeout,
	}
}
