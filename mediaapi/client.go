// Package mediaapi reads media metadata from the P100's built-in player and
// sends transport controls over its HTTP side channel.
package mediaapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	// DefaultPort is the HTTP API port.
	DefaultPort = 8080

	// DefaultTimeout bounds each request.
	DefaultTimeout = 5 * time.Second

	playerDataPath    = "player:player/data"
	playerDataRoles   = "title,value,mediaData,icon,type"
	playTimePath      = "player:player/data/playTime"
	playerControlPath = "player:player/control"
)

// Client talks to the media HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient returns a client for host. Port 0 means DefaultPort.
func NewClient(host string, port int) *Client {
	if port == 0 {
		port = DefaultPort
	}
	return NewClientWithURL("http://" + net.JoinHostPort(host, strconv.Itoa(port)))
}

// NewClientWithURL returns a client for an explicit base URL.
func NewClientWithURL(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// SetLogger sets the structured logger.
func (c *Client) SetLogger(logger *slog.Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// MediaInfo returns what the player is playing, or nil when the device has
// no media data to report.
func (c *Client) MediaInfo(ctx context.Context) (*MediaInfo, error) {
	var data []json.RawMessage
	ok, err := c.getData(ctx, playerDataPath, playerDataRoles, &data)
	if err != nil || !ok || len(data) < 2 {
		return nil, err
	}

	var player playerData
	if err := json.Unmarshal(data[1], &player); err != nil {
		c.logger.Debug("player data not an object", "error", err)
		return nil, nil
	}
	info := player.mediaInfo()

	pos, ok, err := c.playTime(ctx)
	if err != nil {
		c.logger.Debug("play time unavailable", "error", err)
	} else if ok {
		info.PositionMS = pos
		info.HasPosition = true
	}
	return info, nil
}

func (c *Client) playTime(ctx context.Context) (int64, bool, error) {
	var data []playTime
	ok, err := c.getData(ctx, playTimePath, "value", &data)
	if err != nil || !ok || len(data) == 0 || data[0].I64 == nil {
		return 0, false, err
	}
	return *data[0].I64, true, nil
}

// PlayPause toggles playback.
func (c *Client) PlayPause(ctx context.Context) error {
	return c.control(ctx, "pause")
}

// Play resumes playback. The device only knows a pause toggle.
func (c *Client) Play(ctx context.Context) error {
	return c.control(ctx, "pause")
}

// Pause pauses playback. The device only knows a pause toggle.
func (c *Client) Pause(ctx context.Context) error {
	return c.control(ctx, "pause")
}

// NextTrack skips to the next track.
func (c *Client) NextTrack(ctx context.Context) error {
	return c.control(ctx, "next")
}

// PreviousTrack skips to the previous track.
func (c *Client) PreviousTrack(ctx context.Context) error {
	return c.control(ctx, "previous")
}

func (c *Client) control(ctx context.Context, action string) error {
	value, err := json.Marshal(map[string]string{"control": action})
	if err != nil {
		return err
	}
	params := url.Values{
		"path":  {playerControlPath},
		"roles": {"activate"},
		"value": {string(value)},
	}
	body, status, err := c.get(ctx, "/api/setData", params)
	if err != nil {
		return fmt.Errorf("media control %s: %w", action, err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("media control %s: status %d: %s", action, status, body)
	}
	return nil
}

// getData fetches path and decodes the reply into out. It returns false
// without an error when the device answers 403, which it does when there
// is nothing to report.
func (c *Client) getData(ctx context.Context, path, roles string, out any) (bool, error) {
	params := url.Values{"path": {path}, "roles": {roles}}
	body, status, err := c.get(ctx, "/api/getData", params)
	if err != nil {
		return false, fmt.Errorf("get %s: %w", path, err)
	}
	switch status {
	case http.StatusOK:
	case http.StatusForbidden:
		return false, nil
	default:
		return false, fmt.Errorf("get %s: status %d: %s", path, status, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return false, fmt.Errorf("parsing %s: %w", path, err)
	}
	return true, nil
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values) ([]byte, int, error) {
	u := c.baseURL + endpoint + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	c.logger.Debug("media api", "endpoint", endpoint, "path", params.Get("path"), "status", resp.StatusCode)
	return body, resp.StatusCode, nil
}
