// Package booth is a client for the Deschool Booth API, which links
// external social-graph handles to the user's Deschool account.
package booth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/0xdeschool/deschool-lens/internal/account"
	"github.com/0xdeschool/deschool-lens/internal/remote"
)

// DefaultEndpoint is the Booth API base URL.
const DefaultEndpoint = "https://booth.deschool.app/api"

// PlatformType identifies a social graph a handle belongs to.
type PlatformType int

const (
	PlatformLens PlatformType = iota
	PlatformCyberConnect
)

func (p PlatformType) String() string {
	switch p {
	case PlatformLens:
		return "Lens"
	case PlatformCyberConnect:
		return "CyberConnect"
	default:
		return fmt.Sprintf("PlatformType(%d)", int(p))
	}
}

// ErrNoDeschoolToken is returned when linking is attempted without a
// Deschool session.
var ErrNoDeschoolToken = errors.New("not logged in to deschool")

// TokenSource yields the Deschool session token, or "".
type TokenSource func() string

// AccountToken reads the token field of the Deschool profile in the latest
// account snapshot.
func AccountToken() string {
	d := account.Snapshot().DeschoolProfile()
	if d == nil {
		return ""
	}
	var tok string
	if ok, err := d.Field("token", &tok); err != nil || !ok {
		return ""
	}
	return tok
}

// LinkResult is the Booth answer to a link request.
type LinkResult struct {
	Address  string       `json:"address"`
	Handle   string       `json:"handle"`
	Platform PlatformType `json:"platform"`
	Linked   bool         `json:"linked"`
}

// Client talks to the Booth API.
type Client struct {
	rc    *remote.Client
	token TokenSource
}

// New wraps rc. token is consulted on every call.
func New(rc *remote.Client, token TokenSource) *Client {
	if token == nil {
		token = AccountToken
	}
	return &Client{rc: rc, token: token}
}

// LinkPlatform links handle on platform to the current Deschool account.
func (c *Client) LinkPlatform(ctx context.Context, handle string, platform PlatformType) (*LinkResult, error) {
	tok := c.token()
	if tok == "" {
		return nil, ErrNoDeschoolToken
	}
	c.rc.SetBearerToken(tok)

	req := struct {
		Handle   string       `json:"handle"`
		Platform PlatformType `json:"platform"`
	}{handle, platform}

	var out struct {
		Data LinkResult `json:"data"`
	}
	if err := c.rc.Do(ctx, http.MethodPost, "/account/linkPlatform", req, &out); err != nil {
		return nil, fmt.Errorf("failed to link %s handle: %w", platform, err)
	}
	return &out.Data, nil
}
