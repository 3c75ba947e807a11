package federation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/core"
)

// HTTPBridge talks to remote federation endpoints over plain JSON. Each
// notification is one POST; the remote answers with the canonical
// display name and cloud id of the invited user.
type HTTPBridge struct {
	client *http.Client
	scheme string
}

type Option func(*HTTPBridge)

// WithInsecureHTTP switches remote calls to plain http, for tests and
// local federation setups only.
func WithInsecureHTTP() Option {
	return func(b *HTTPBridge) { b.scheme = "http" }
}

func WithClient(c *http.Client) Option {
	return func(b *HTTPBridge) { b.client = c }
}

func NewHTTPBridge(timeout time.Duration, opts ...Option) *HTTPBridge {
	b := &HTTPBridge{
		client: &http.Client{Timeout: timeout},
		scheme: "https",
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type inviteBody struct {
	CloudID     string `json:"cloudId"`
	AccessToken string `json:"accessToken"`
	AddedByID   string `json:"addedById"`
	RoomToken   string `json:"roomToken"`
	RoomName    string `json:"roomName"`
	RoomType    int    `json:"roomType"`
}

type inviteResponse struct {
	DisplayName string `json:"displayName"`
	CloudID     string `json:"cloudId"`
}

type removeBody struct {
	AccessToken string `json:"accessToken"`
	RoomToken   string `json:"roomToken"`
}

func (b *HTTPBridge) NotifyRemoteAdd(ctx context.Context, req core.RemoteAddRequest) (*core.RemoteInfo, error) {
	url := fmt.Sprintf("%s://%s/ocm/invites", b.scheme, req.RemoteServer)
	body := inviteBody{
		CloudID:     req.CloudID,
		AccessToken: req.AccessToken,
		AddedByID:   req.AddedByID,
		RoomToken:   string(req.RoomToken),
		RoomName:    req.RoomName,
		RoomType:    req.RoomType,
	}

	var resp inviteResponse
	if err := b.post(ctx, url, body, &resp); err != nil {
		return nil, err
	}

	log.Debug().Str("module", "adapters.federation").Str("server", req.RemoteServer).
		Str("cloud_id", req.CloudID).Msg("remote invite accepted")
	return &core.RemoteInfo{DisplayName: resp.DisplayName, CloudID: resp.CloudID}, nil
}

func (b *HTTPBridge) NotifyRemoteRemove(ctx context.Context, req core.RemoteRemoveRequest) error {
	url := fmt.Sprintf("%s://%s/ocm/invites/remove", b.scheme, req.RemoteServer)
	return b.post(ctx, url, removeBody{
		AccessToken: req.AccessToken,
		RoomToken:   string(req.RoomToken),
	}, nil)
}

func (b *HTTPBridge) post(ctx context.Context, url string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("remote returned status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
