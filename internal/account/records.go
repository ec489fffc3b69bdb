// Package account aggregates the user's identity across CyberConnect,
// Deschool and the wallet-signature session token, and keeps it in
// durable storage between runs.
package account

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Storage keys, one per credential slot.
const (
	ProfileKey         = "graphProfileA"
	DeschoolProfileKey = "graphProfileB"
	TokenKey           = "walletSessionToken"
)

// DefaultAvatar is shown for profiles without an avatar.
const DefaultAvatar = "https://s3.us-east-1.amazonaws.com/deschool/Avatars/avatar_def.png"

// Profile is the user's CyberConnect primary profile. Handle has the ".cc"
// suffix removed; HandleStr keeps the handle as the service returned it.
type Profile struct {
	ID          string `json:"profileID,omitempty"`
	Handle      string `json:"handle,omitempty"`
	HandleStr   string `json:"handleStr,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
	Metadata    string `json:"metadata,omitempty"`
}

// AvatarOrDefault returns the avatar URL, falling back to DefaultAvatar.
func (p *Profile) AvatarOrDefault() string {
	if p == nil || p.Avatar == "" {
		return DefaultAvatar
	}
	return p.Avatar
}

func (p *Profile) clone() *Profile {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

// DeschoolProfile is the user's Deschool profile. Address identifies it;
// every other field is carried opaquely in Fields.
type DeschoolProfile struct {
	Address string
	Fields  map[string]json.RawMessage
}

func (d DeschoolProfile) MarshalJSON() ([]byte, error) {
	m := make(map[string]json.RawMessage, len(d.Fields)+1)
	for k, v := range d.Fields {
		m[k] = v
	}
	addr, err := json.Marshal(d.Address)
	if err != nil {
		return nil, err
	}
	m["address"] = addr
	return json.Marshal(m)
}

func (d *DeschoolProfile) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	var addr string
	if raw, ok := m["address"]; ok {
		if err := json.Unmarshal(raw, &addr); err != nil {
			return fmt.Errorf("deschool profile address: %w", err)
		}
		delete(m, "address")
	}
	d.Address = addr
	d.Fields = nil
	if len(m) > 0 {
		d.Fields = m
	}
	return nil
}

// Field decodes the named extra field into out. It reports false when the
// field is absent.
func (d *DeschoolProfile) Field(name string, out any) (bool, error) {
	raw, ok := d.Fields[name]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("deschool profile field %s: %w", name, err)
	}
	return true, nil
}

func (d *DeschoolProfile) clone() *DeschoolProfile {
	if d == nil {
		return nil
	}
	c := &DeschoolProfile{Address: d.Address}
	if d.Fields != nil {
		c.Fields = make(map[string]json.RawMessage, len(d.Fields))
		for k, v := range d.Fields {
			c.Fields[k] = append(json.RawMessage(nil), v...)
		}
	}
	return c
}

// TokenInfo is the session token issued by the CyberConnect auth service
// after a verified wallet signature.
type TokenInfo struct {
	Address     string `json:"address"`
	AccessToken string `json:"accessToken"`
}

func (t *TokenInfo) clone() *TokenInfo {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
