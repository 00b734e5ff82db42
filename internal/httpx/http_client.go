package httpx

import (
	"net/http"
	"time"
)

const defaultExternalHTTPTimeout = 30 * time.Second

var externalHTTPClient = &http.Client{
	Timeout: defaultExternalHTTPTimeout,
}

// ExternalHTTPClient returns the client shared by every outbound call to the
// tracker and the chat webhook.
func ExternalHTTPClient() *http.Client {
	return externalHTTPClient
}

func ConfigureExternalHTTPClient(timeoutSeconds int) time.Duration {
	timeout := defaultExternalHTTPTimeout
	if timeoutSeconds > 0 {
		timeout = time.Duration(timeoutSeconds) * time.Second
	}
	externalHTTPClient.Timeout = timeout
	return timeout
}
