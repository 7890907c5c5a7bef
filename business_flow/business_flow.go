// Package businessflow contains the business logic for the survey engine.
package businessflow

import (
	"time"

	"github.com/opencohort/longwave/utils"
)

const RequestIDKey = "X-Request-ID"

// Clock is an injectable source of current time so expiry and aging logic can
// be tested deterministically. A nil Clock falls back to utils.UTCNow.
type Clock func() time.Time

func clockOrDefault(c Clock) Clock {
	if c == nil {
		return utils.UTCNow
	}
	return c
}

// ClientMetadata holds client-related information for audit logging
type ClientMetadata struct {
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`
	RequestID string `json:"request_id,omitempty"`
}

// NewClientMetadata creates a new ClientMetadata instance
func NewClientMetadata(ipAddress, userAgent string) *ClientMetadata {
	return &ClientMetadata{
		IPAddress: ipAddress,
		UserAgent: userAgent,
	}
}

// SetRequestID sets the request ID
func (cm *ClientMetadata) SetRequestID(requestID string) {
	cm.RequestID = requestID
}
