// utils/http.go
package utils

import (
	"net/http"
	"time"
)

// HTTPClient is shared by outbound calls (EVM RPC, object storage).
var HTTPClient = &http.Client{
	Timeout: 2 * time.Minute,
}
