package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEndpoint_TableName(t *testing.T) {
	endpoint := Endpoint{}
	assert.Equal(t, "pubsub_endpoint", endpoint.TableName())
}

func TestEndpointType_IsTransient(t *testing.T) {
	assert.False(t, EndpointREST.IsTransient())
	assert.False(t, EndpointService.IsTransient())
	assert.True(t, EndpointWebSocket.IsTransient())
}

func TestEndpointType_Valid(t *testing.T) {
	assert.True(t, EndpointREST.Valid())
	assert.True(t, EndpointService.Valid())
	assert.True(t, EndpointWebSocket.Valid())
	assert.False(t, EndpointType("smtp").Valid())
	assert.False(t, EndpointType("").Valid())
}

func TestNewEndpoint(t *testing.T) {
	e := NewEndpoint("billing", EndpointREST, "orders.*", "invoices.sent")

	assert.Equal(t, "billing", e.Name)
	assert.Equal(t, EndpointREST, e.Type)
	assert.Equal(t, "orders.*;invoices.sent", e.SubPatterns)
	assert.True(t, e.IsActive)
}

func TestEndpoint_Patterns(t *testing.T) {
	tests := []struct {
		name        string
		subPatterns string
		want        []string
	}{
		{"empty", "", nil},
		{"single", "orders.*", []string{"orders.*"}},
		{"multiple", "orders.*;invoices.sent", []string{"orders.*", "invoices.sent"}},
		{"whitespace and empties", " orders.* ; ;invoices.sent;", []string{"orders.*", "invoices.sent"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := Endpoint{SubPatterns: tt.subPatterns}
			assert.Equal(t, tt.want, e.Patterns())
		})
	}
}
