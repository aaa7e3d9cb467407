// utils/http.go
package utils

import (
	"net/http"
	"time"
)

// HTTPClient is shared by outbound collaborator calls (referral sync)
var HTTPClient = &http.Client{
	Timeout: 30 * time.Second,
}
