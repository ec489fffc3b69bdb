package cyberconnect

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/0xdeschool/deschool-lens/internal/remote"
)

type gqlRequest struct {
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
}

// newService answers each operation with the canned body in responses.
func newService(t *testing.T, responses map[string]string) (*Client, *[]gqlRequest) {
	t.Helper()
	var seen []gqlRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-API-KEY"); got != "test-key" {
			t.Errorf("X-API-KEY = %q", got)
		}
		var req gqlRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		seen = append(seen, req)
		body, ok := responses[req.OperationName]
		if !ok {
			t.Errorf("unexpected operation %q", req.OperationName)
			body = `{"data":null}`
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return New(remote.New(srv.URL, remote.WithAPIKey("test-key"))), &seen
}

func TestLoginGetMessage(t *testing.T) {
	c, seen := newService(t, map[string]string{
		"loginGetMessage": `{"data":{"loginGetMessage":{"message":"Sign in to test.com\nNonce: 1"}}}`,
	})

	msg, err := c.LoginGetMessage(context.Background(), "0xAA", DefaultDomain)
	if err != nil {
		t.Fatalf("LoginGetMessage: %v", err)
	}
	if msg != "Sign in to test.com\nNonce: 1" {
		t.Errorf("message = %q", msg)
	}
	input := (*seen)[0].Variables["input"].(map[string]any)
	if input["address"] != "0xAA" || input["domain"] != "test.com" {
		t.Errorf("input = %v", input)
	}
}

func TestLoginGetMessage_Empty(t *testing.T) {
	c, _ := newService(t, map[string]string{
		"loginGetMessage": `{"data":{"loginGetMessage":{"message":""}}}`,
	})
	if _, err := c.LoginGetMessage(context.Background(), "0xAA", DefaultDomain); !errors.Is(err, ErrEmptyChallenge) {
		t.Errorf("error = %v, want ErrEmptyChallenge", err)
	}
}

func TestLoginVerify(t *testing.T) {
	c, seen := newService(t, map[string]string{
		"loginVerify": `{"data":{"loginVerify":{"accessToken":"tok-123"}}}`,
	})

	tok, err := c.LoginVerify(context.Background(), "0xAA", DefaultDomain, "0xsig")
	if err != nil {
		t.Fatalf("LoginVerify: %v", err)
	}
	if tok != "tok-123" {
		t.Errorf("token = %q", tok)
	}
	input := (*seen)[0].Variables["input"].(map[string]any)
	if input["signature"] != "0xsig" {
		t.Errorf("input = %v", input)
	}
}

func TestLoginVerify_Failures(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"graphql error", `{"data":null,"errors":[{"message":"invalid signature"}]}`},
		{"missing token", `{"data":{"loginVerify":{"accessToken":""}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newService(t, map[string]string{"loginVerify": tt.body})
			_, err := c.LoginVerify(context.Background(), "0xAA", DefaultDomain, "0xsig")
			var se *remote.ServiceError
			if !errors.As(err, &se) {
				t.Fatalf("error = %v, want *remote.ServiceError", err)
			}
		})
	}
}

func TestPrimaryProfile(t *testing.T) {
	c, seen := newService(t, map[string]string{
		"primaryProfile": `{"data":{"address":{"wallet":{"primaryProfile":{
			"profileID": 42,
			"handle": "alice.cc",
			"avatar": "",
			"metadata": "ipfs://meta",
			"metadataInfo": {"displayName": "Alice", "avatar": "https://img/alice.png"}
		}}}}}`,
	})

	p, err := c.PrimaryProfile(context.Background(), "0xAA")
	if err != nil {
		t.Fatalf("PrimaryProfile: %v", err)
	}
	if p == nil {
		t.Fatal("expected a profile")
	}
	if p.ID != "42" || p.Handle != "alice.cc" || p.DisplayName != "Alice" || p.Avatar != "https://img/alice.png" || p.Metadata != "ipfs://meta" {
		t.Errorf("profile = %+v", p)
	}
	if (*seen)[0].Variables["address"] != "0xAA" {
		t.Errorf("variables = %v", (*seen)[0].Variables)
	}
}

func TestPrimaryProfile_None(t *testing.T) {
	for name, body := range map[string]string{
		"null profile": `{"data":{"address":{"wallet":{"primaryProfile":null}}}}`,
		"null wallet":  `{"data":{"address":{"wallet":null}}}`,
		"null data":    `{"data":null}`,
	} {
		t.Run(name, func(t *testing.T) {
			c, _ := newService(t, map[string]string{"primaryProfile": body})
			p, err := c.PrimaryProfile(context.Background(), "0xAA")
			if err != nil || p != nil {
				t.Errorf("PrimaryProfile = (%+v, %v), want (nil, nil)", p, err)
			}
		})
	}
}

func TestJSONID(t *testing.T) {
	for in, want := range map[string]string{`7`: "7", `"7"`: "7", `null`: ""} {
		var id jsonID
		if err := json.Unmarshal([]byte(in), &id); err != nil {
			t.Fatalf("Unmarshal(%s): %v", in, err)
		}
		if string(id) != want {
			t.Errorf("Unmarshal(%s) = %q, want %q", in, id, want)
		}
	}
}
