// Package cyberconnect is a client for the CyberConnect GraphQL API: the
// wallet-signature login and primary profile lookup.
package cyberconnect

import (
	"context"
	"errors"
	"fmt"

	"github.com/0xdeschool/deschool-lens/internal/account"
	"github.com/0xdeschool/deschool-lens/internal/remote"
)

const (
	// DefaultEndpoint is the CyberConnect GraphQL endpoint.
	DefaultEndpoint = "https://api.cyberconnect.dev/testnet/"
	// DefaultDomain is the domain the login challenge is issued for.
	DefaultDomain = "test.com"
)

var (
	loginGetMessageOp = remote.MustParseOperation(`mutation loginGetMessage($input: LoginGetMessageInput!) {
  loginGetMessage(input: $input) {
    message
  }
}`)

	loginVerifyOp = remote.MustParseOperation(`mutation loginVerify($input: LoginVerifyInput!) {
  loginVerify(input: $input) {
    accessToken
  }
}`)

	primaryProfileOp = remote.MustParseOperation(`query primaryProfile($address: AddressEVM!) {
  address(address: $address) {
    wallet {
      primaryProfile {
        profileID
        handle
        avatar
        metadata
        metadataInfo {
          displayName
          avatar
        }
      }
    }
  }
}`)
)

// ErrEmptyChallenge is returned when the service answers without a message to sign.
var ErrEmptyChallenge = errors.New("cyberconnect returned an empty login message")

// Client talks to the CyberConnect API.
type Client struct {
	rc *remote.Client
}

// New wraps rc, which must point at the GraphQL endpoint and carry the API key.
func New(rc *remote.Client) *Client {
	return &Client{rc: rc}
}

// LoginGetMessage fetches the challenge text address must sign.
func (c *Client) LoginGetMessage(ctx context.Context, address, domain string) (string, error) {
	var out struct {
		LoginGetMessage struct {
			Message string `json:"message"`
		} `json:"loginGetMessage"`
	}
	vars := map[string]any{"input": map[string]string{"address": address, "domain": domain}}
	if err := c.rc.GraphQL(ctx, loginGetMessageOp, vars, &out); err != nil {
		return "", err
	}
	if out.LoginGetMessage.Message == "" {
		return "", ErrEmptyChallenge
	}
	return out.LoginGetMessage.Message, nil
}

// LoginVerify exchanges the signed challenge for an access token.
func (c *Client) LoginVerify(ctx context.Context, address, domain, signature string) (string, error) {
	var out struct {
		LoginVerify struct {
			AccessToken string `json:"accessToken"`
		} `json:"loginVerify"`
	}
	vars := map[string]any{"input": map[string]string{
		"address":   address,
		"domain":    domain,
		"signature": signature,
	}}
	if err := c.rc.GraphQL(ctx, loginVerifyOp, vars, &out); err != nil {
		return "", err
	}
	if out.LoginVerify.AccessToken == "" {
		return "", fmt.Errorf("%s: %w", loginVerifyOp.Name, &remote.ServiceError{
			StatusCode: 200,
			Message:    "no access token in response",
		})
	}
	return out.LoginVerify.AccessToken, nil
}

type primaryProfile struct {
	ProfileID    jsonID `json:"profileID"`
	Handle       string `json:"handle"`
	Avatar       string `json:"avatar"`
	Metadata     string `json:"metadata"`
	MetadataInfo *struct {
		DisplayName string `json:"displayName"`
		Avatar      string `json:"avatar"`
	} `json:"metadataInfo"`
}

// PrimaryProfile returns the primary profile of address, or nil when the
// address has none.
func (c *Client) PrimaryProfile(ctx context.Context, address string) (*account.Profile, error) {
	var out struct {
		Address *struct {
			Wallet *struct {
				PrimaryProfile *primaryProfile `json:"primaryProfile"`
			} `json:"wallet"`
		} `json:"address"`
	}
	if err := c.rc.GraphQL(ctx, primaryProfileOp, map[string]any{"address": address}, &out); err != nil {
		return nil, err
	}
	if out.Address == nil || out.Address.Wallet == nil || out.Address.Wallet.PrimaryProfile == nil {
		return nil, nil
	}

	pp := out.Address.Wallet.PrimaryProfile
	p := &account.Profile{
		ID:       string(pp.ProfileID),
		Handle:   pp.Handle,
		Avatar:   pp.Avatar,
		Metadata: pp.Metadata,
	}
	if pp.MetadataInfo != nil {
		p.DisplayName = pp.MetadataInfo.DisplayName
		if p.Avatar == "" {
			p.Avatar = pp.MetadataInfo.Avatar
		}
	}
	return p, nil
}
