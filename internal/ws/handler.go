// Package ws pushes owner-scoped change events over websockets.
package ws

import (
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/devpilot-hq/devpilot/internal/logger"
	"github.com/devpilot-hq/devpilot/internal/middleware"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var subscriptionTopicPattern = regexp.MustCompile(`^[A-Za-z0-9:_-]+$`)

// Handler upgrades authenticated HTTP connections to websocket clients.
// It must sit behind middleware that puts the owner on the request context.
type Handler struct {
	Hub *Hub
	// AllowedOrigins lists extra origins besides the request host. "*" allows all.
	AllowedOrigins []string
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.OwnerFromContext(r.Context())
	if ownerID == "" {
		http.Error(w, `{"error":"missing or invalid access token"}`, http.StatusUnauthorized)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return isWebSocketOriginAllowed(r, h.AllowedOrigins)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := NewClient(h.Hub, conn)
	client.SetOwnerID(ownerID)
	h.Hub.Register(client)

	log := logger.WithComponent("ws").With().
		Str("owner_id", ownerID).
		Str("client_id", client.ID()).
		Logger()
	log.Debug().Msg("websocket client connected")

	go client.WritePump()
	client.ReadPump()
	log.Debug().Msg("websocket client disconnected")
}

type clientMessage struct {
	Type  string `json:"type"`
	Topic string `json:"topic,omitempty"`
}

// ReadPump pumps subscription messages from the websocket connection.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			break
		}

		var payload clientMessage
		if err := json.Unmarshal(message, &payload); err != nil {
			continue
		}
		processClientMessage(c, payload)
	}
}

// WritePump pumps messages from the hub to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func processClientMessage(client *Client, payload clientMessage) {
	if client == nil {
		return
	}

	topic := strings.TrimSpace(payload.Topic)
	if !isAllowedSubscriptionTopic(topic) {
		return
	}

	switch strings.ToLower(strings.TrimSpace(payload.Type)) {
	case "subscribe":
		client.SubscribeTopic(topic)
	case "unsubscribe":
		client.UnsubscribeTopic(topic)
	}
}

func isAllowedSubscriptionTopic(topic string) bool {
	topic = strings.TrimSpace(topic)
	if topic == "" || len(topic) > 200 {
		return false
	}
	return subscriptionTopicPattern.MatchString(topic)
}

func isWebSocketOriginAllowed(r *http.Request, allowList []string) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	originHost := normalizeOriginHost(originURL.Host)
	if originHost == "" {
		return false
	}

	reqHost := normalizeOriginHost(r.Host)
	if reqHost == originHost || isLoopbackAliasPair(reqHost, originHost) {
		return true
	}

	for _, candidate := range allowList {
		if isAllowedOriginCandidate(originURL, candidate) {
			return true
		}
	}
	return false
}

func normalizeOriginHost(host string) string {
	host = strings.TrimSpace(strings.ToLower(host))
	if host == "" {
		return ""
	}
	if parsedHost, _, err := net.SplitHostPort(host); err == nil {
		return strings.Trim(parsedHost, "[]")
	}
	return strings.Trim(host, "[]")
}

func isLoopbackAliasPair(a, b string) bool {
	loopback := map[string]bool{
		"localhost": true,
		"127.0.0.1": true,
		"::1":       true,
	}
	return loopback[a] && loopback[b]
}

func isAllowedOriginCandidate(originURL *url.URL, candidate string) bool {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return false
	}
	if candidate == "*" {
		return true
	}

	parsedCandidate, err := url.Parse(candidate)
	if err != nil {
		return false
	}
	if parsedCandidate.Scheme != "" && parsedCandidate.Scheme != originURL.Scheme {
		return false
	}
	patternHost := normalizeOriginHost(parsedCandidate.Host)
	if patternHost == "" {
		return false
	}

	actualHost := normalizeOriginHost(originURL.Host)
	if suffix, ok := strings.CutPrefix(patternHost, "*."); ok {
		return actualHost != suffix && strings.HasSuffix(actualHost, "."+suffix)
	}
	return actualHost == patternHost
}
