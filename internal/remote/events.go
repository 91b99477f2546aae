package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// eventBuffer is how many undelivered events the stream holds before the
// reader blocks.
const eventBuffer = 64

// Event is one change notification from the remote. The cache only uses it
// as a hint to rescan sooner.
type Event struct {
	Type     string    `json:"type"`
	VolumeID string    `json:"volumeId"`
	ShareID  string    `json:"shareId"`
	NodeID   string    `json:"nodeId"`
	ParentID string    `json:"parentId"`
	At       time.Time `json:"at"`
}

// Events subscribes to change notifications for a volume. The returned
// channel is closed when ctx is canceled or the connection ends.
func (c *Client) Events(ctx context.Context, volumeID string) (<-chan Event, error) {
	wsURL, err := c.eventsURL(volumeID)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("User-Agent", userAgent)

	if err := c.authorize(header); err != nil {
		return nil, err
	}

	// The subscription lives as long as ctx; a client timeout would cut it.
	dialClient := *c.httpClient
	dialClient.Timeout = 0

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPClient: &dialClient,
		HTTPHeader: header,
	})
	if err != nil {
		return nil, fmt.Errorf("remote: subscribing to events: %w", err)
	}

	c.logger.Info("subscribed to change events", slog.String("volume_id", volumeID))

	out := make(chan Event, eventBuffer)

	go c.readEvents(ctx, conn, volumeID, out)

	return out, nil
}

func (c *Client) readEvents(ctx context.Context, conn *websocket.Conn, volumeID string, out chan<- Event) {
	defer close(out)
	defer conn.CloseNow()

	for {
		var ev Event
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			switch {
			case ctx.Err() != nil:
			case websocket.CloseStatus(err) == websocket.StatusNormalClosure:
				c.logger.Info("event stream closed by server", slog.String("volume_id", volumeID))
			case errors.Is(err, context.Canceled):
			default:
				c.logger.Warn("event stream ended",
					slog.String("volume_id", volumeID),
					slog.String("error", err.Error()),
				)
			}

			return
		}

		if ev.VolumeID == "" {
			ev.VolumeID = volumeID
		}

		c.logger.Debug("change event",
			slog.String("type", ev.Type),
			slog.String("node_id", ev.NodeID),
		)

		select {
		case out <- ev:
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) eventsURL(volumeID string) (string, error) {
	u, err := url.Parse(c.baseURL + "/volumes/" + url.PathEscape(volumeID) + "/events")
	if err != nil {
		return "", fmt.Errorf("remote: building events URL: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}

	return u.String(), nil
}
