package model

import (
	"database/sql"
	"strings"
	"time"
)

// EndpointType tags the kind of principal behind an endpoint. The tag decides
// how subscriptions behave: non-transient types (REST, service) may hold at
// most one active subscription per topic, while transient types (WebSocket)
// create a fresh subscription per physical connection.
type EndpointType string

const (
	// EndpointREST is a security-definition based REST caller.
	EndpointREST EndpointType = "rest"

	// EndpointService is an internal backend service.
	EndpointService EndpointType = "srv"

	// EndpointWebSocket is a live WebSocket connection.
	EndpointWebSocket EndpointType = "wsx"
)

// IsTransient reports whether subscriptions of this endpoint type are bound
// to a physical connection rather than to the endpoint itself.
func (t EndpointType) IsTransient() bool {
	return t == EndpointWebSocket
}

// Valid reports whether the type tag is one of the known endpoint types.
func (t EndpointType) Valid() bool {
	switch t {
	case EndpointREST, EndpointService, EndpointWebSocket:
		return true
	}
	return false
}

// Endpoint represents a subscriber principal. One endpoint may back many
// subscriptions (WebSocket) or at most one active subscription per topic
// (REST, service).
//
// The ACL of subscribe-permitted topic patterns is stored as a
// semicolon-separated list; Patterns splits it.
type Endpoint struct {
	ID          int64         `json:"id"`
	Name        string        `json:"name" db:"name"`
	Type        EndpointType  `json:"type" db:"endpoint_type"`
	SecurityID  sql.NullInt64 `json:"securityID" db:"security_id"`  // Security definition backing REST endpoints
	ChannelID   sql.NullInt64 `json:"channelID" db:"channel_id"`    // WebSocket channel backing WSX endpoints
	ServiceID   sql.NullInt64 `json:"serviceID" db:"service_id"`    // Service backing service endpoints
	SubPatterns string        `json:"subPatterns" db:"sub_patterns"` // Semicolon-separated topic patterns this endpoint may subscribe to
	IsActive    bool          `json:"isActive" db:"is_active"`
	CreatedAt   time.Time     `json:"createdAt" db:"created_at"`
}

// TableName returns the database table name for Endpoint.
func (e Endpoint) TableName() string {
	return tablePrefix + "endpoint"
}

// NewEndpoint creates a new active endpoint with the given ACL patterns.
func NewEndpoint(name string, typ EndpointType, patterns ...string) Endpoint {
	return Endpoint{
		ID:          0,
		Name:        name,
		Type:        typ,
		SubPatterns: strings.Join(patterns, ";"),
		IsActive:    true,
		CreatedAt:   time.Now(),
	}
}

// Patterns returns the endpoint's subscribe ACL as a slice, empty entries
// removed.
func (e Endpoint) Patterns() []string {
	if e.SubPatterns == "" {
		return nil
	}
	parts := strings.Split(e.SubPatterns, ";")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
