// Package api provides HTTP handlers for the subhub server REST API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/coregx/subhub"
	ws "github.com/coregx/subhub/adapters/websocket"
	"github.com/coregx/subhub/model"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	coordinator *subhub.Coordinator
	publisher   *subhub.Publisher
	logger      subhub.Logger
}

// NewHandler creates a new API handler.
func NewHandler(coordinator *subhub.Coordinator, publisher *subhub.Publisher, logger subhub.Logger) *Handler {
	return &Handler{
		coordinator: coordinator,
		publisher:   publisher,
		logger:      logger,
	}
}

// PublishRequest represents a publish message request.
type PublishRequest struct {
	TopicName string      `json:"topicName"`
	Data      interface{} `json:"data"`
	HasGD     *bool       `json:"hasGD,omitempty"`
}

// SubscribeRequest represents a subscription creation request. Exactly one of
// the identity fields must be set; TopicNames may carry one or more topics.
type SubscribeRequest struct {
	TopicNames []string `json:"topicNames"`

	EndpointID int64 `json:"endpointID,omitempty"`
	SecurityID int64 `json:"securityID,omitempty"`
	ChannelID  int64 `json:"channelID,omitempty"`
	ServiceID  int64 `json:"serviceID,omitempty"`

	HasGD             *bool  `json:"hasGD,omitempty"`
	DeliveryBatchSize int    `json:"deliveryBatchSize,omitempty"`
	MaxDeliveryRetry  int    `json:"maxDeliveryRetry,omitempty"`
	BlockOnError      bool   `json:"blockOnError,omitempty"`
	ExtClientID       string `json:"extClientID,omitempty"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// SuccessResponse represents a success response.
type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// HandlePublish handles POST /api/v1/publish
func (h *Handler) HandlePublish(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	var req PublishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "INVALID_JSON")
		return
	}
	if req.TopicName == "" {
		h.respondError(w, http.StatusBadRequest, "topicName is required", subhub.ErrCodeValidation)
		return
	}

	dataJSON, err := json.Marshal(req.Data)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Failed to serialize data", subhub.ErrCodeValidation)
		return
	}

	result, err := h.publisher.Publish(r.Context(), subhub.PublishRequest{
		TopicName: req.TopicName,
		Data:      string(dataJSON),
		HasGD:     req.HasGD,
	})
	if err != nil {
		h.logger.Errorf("Publish failed: %v", err)
		h.respondCodedError(w, err)
		return
	}

	h.respondSuccess(w, http.StatusCreated, result, "Message published successfully")
}

// HandleSubscribe handles POST /api/v1/subscribe
func (h *Handler) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	var req SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "INVALID_JSON")
		return
	}
	if len(req.TopicNames) == 0 {
		h.respondError(w, http.StatusBadRequest, "topicNames is required", subhub.ErrCodeValidation)
		return
	}

	single := subhub.SubscribeRequest{
		Descriptor: subhub.Descriptor{
			EndpointID: req.EndpointID,
			SecurityID: req.SecurityID,
			ChannelID:  req.ChannelID,
			ServiceID:  req.ServiceID,
		},
		HasGD:             req.HasGD,
		DeliveryBatchSize: req.DeliveryBatchSize,
		MaxDeliveryRetry:  req.MaxDeliveryRetry,
		BlockOnError:      req.BlockOnError,
		ExtClientID:       req.ExtClientID,
		IsAPICall:         true,
	}

	if len(req.TopicNames) == 1 {
		single.TopicName = req.TopicNames[0]
		result, err := h.coordinator.Subscribe(r.Context(), single)
		if err != nil {
			h.logger.Errorf("Subscribe failed: %v", err)
			h.respondCodedError(w, err)
			return
		}
		h.recordInteraction(r, "rest", result.SubKey)
		h.respondSuccess(w, http.StatusCreated, result, "Subscription created successfully")
		return
	}

	results, err := h.coordinator.SubscribeMany(r.Context(), subhub.SubscribeManyRequest{
		TopicNames: req.TopicNames,
		Request:    single,
	})
	if err != nil {
		h.logger.Errorf("Batch subscribe failed: %v", err)
		h.respondCodedError(w, err)
		return
	}

	out := make([]map[string]interface{}, 0, len(results))
	var created []string
	for _, res := range results {
		entry := map[string]interface{}{"topicName": res.TopicName}
		if res.Err != nil {
			entry["error"] = res.Err.Error()
		} else {
			entry["subKey"] = res.SubKey
			entry["queueDepth"] = res.QueueDepth
			created = append(created, res.SubKey)
		}
		out = append(out, entry)
	}
	h.recordInteraction(r, "rest", created...)
	h.respondSuccess(w, http.StatusCreated, out, "")
}

// HandleUnsubscribe handles DELETE /api/v1/subscriptions/:subKey
func (h *Handler) HandleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	subKey := strings.TrimPrefix(r.URL.Path, "/api/v1/subscriptions/")
	if subKey == "" || strings.Contains(subKey, "/") {
		h.respondError(w, http.StatusBadRequest, "Invalid subscriber key", subhub.ErrCodeValidation)
		return
	}

	if err := h.coordinator.Unsubscribe(r.Context(), subKey); err != nil {
		h.logger.Errorf("Unsubscribe failed: %v", err)
		h.respondCodedError(w, err)
		return
	}
	h.respondSuccess(w, http.StatusOK, nil, "Unsubscribed successfully")
}

// HandleUnsubscribeEndpoint handles DELETE /api/v1/endpoints/:id/subscriptions
func (h *Handler) HandleUnsubscribeEndpoint(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/v1/endpoints/")
	idStr := strings.TrimSuffix(path, "/subscriptions")
	endpointID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || endpointID <= 0 {
		h.respondError(w, http.StatusBadRequest, "Invalid endpoint ID", subhub.ErrCodeValidation)
		return
	}

	subKeys, err := h.coordinator.UnsubscribeEndpoint(r.Context(), endpointID)
	if err != nil {
		h.logger.Errorf("Endpoint unsubscribe failed: %v", err)
		h.respondCodedError(w, err)
		return
	}
	h.respondSuccess(w, http.StatusOK, map[string]interface{}{"deleted": subKeys}, "")
}

// HandleWebSocket handles GET /ws. The connection subscribes to the topics in
// the "topic" query parameters and receives their messages until it closes.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	topics := r.URL.Query()["topic"]
	if len(topics) == 0 {
		h.respondError(w, http.StatusBadRequest, "at least one topic query parameter is required", subhub.ErrCodeValidation)
		return
	}
	securityID, _ := strconv.ParseInt(r.URL.Query().Get("securityID"), 10, 64)
	extClientID := r.URL.Query().Get("extClientID")

	// The request context dies with this handler while the socket lives on,
	// so close handling runs on its own context.
	conn, err := ws.Upgrade(w, r, func(connKey string) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := h.coordinator.HandleSocketClose(ctx, connKey); err != nil {
			h.logger.Errorf("Socket close handling failed for %s: %v", connKey, err)
		}
	}, h.logger)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade failed: %v", err)
		return
	}

	for _, topic := range topics {
		req := subhub.SubscribeRequest{
			TopicName:    topic,
			Descriptor:   subhub.Descriptor{SecurityID: securityID},
			ExtClientID:  extClientID,
			UnsubOnClose: true,
			Conn:         conn,
			IsAPICall:    true,
		}
		res, err := h.coordinator.Subscribe(r.Context(), req)
		if err != nil {
			h.logger.Errorf("WebSocket subscribe to %s failed: %v", topic, err)
			_ = conn.Close()
			return
		}
		h.recordInteraction(r, "wsx", res.SubKey)
	}
}

// recordInteraction refreshes last-interaction metadata on the freshly
// touched subscriptions. Best effort; failures are only logged.
func (h *Handler) recordInteraction(r *http.Request, source string, subKeys ...string) {
	if len(subKeys) == 0 {
		return
	}
	interaction := model.Interaction{
		RemoteAddr: r.RemoteAddr,
		UserAgent:  r.UserAgent(),
		Source:     source,
		Time:       time.Now(),
	}
	if err := h.coordinator.UpdateInteraction(r.Context(), subKeys, interaction); err != nil {
		h.logger.Warnf("Interaction update failed for %v: %v", subKeys, err)
	}
}

// HandleHealth handles GET /api/v1/health
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   "0.1.0",
	}
	h.respondSuccess(w, http.StatusOK, health, "")
}

// respondCodedError maps engine error codes onto HTTP statuses.
func (h *Handler) respondCodedError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := ""
	var engineErr *subhub.Error
	if errors.As(err, &engineErr) {
		code = engineErr.Code
		switch {
		case subhub.IsNotFound(err) || subhub.IsNoData(err):
			status = http.StatusNotFound
		case subhub.IsForbidden(err):
			status = http.StatusForbidden
		case subhub.IsAlreadySubscribed(err):
			status = http.StatusConflict
		case subhub.IsLockTimeout(err):
			status = http.StatusServiceUnavailable
		case engineErr.Code == subhub.ErrCodeValidation:
			status = http.StatusBadRequest
		}
	}
	h.respondError(w, status, err.Error(), code)
}

// respondError sends an error response.
func (h *Handler) respondError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// respondSuccess sends a success response.
func (h *Handler) respondSuccess(w http.ResponseWriter, status int, data interface{}, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(SuccessResponse{
		Success: true,
		Data:    data,
		Message: message,
	})
}
