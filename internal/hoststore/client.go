// Package hoststore is the client for the external host/credential and
// user/session store. The store owns host CRUD, sharing, and console user
// authentication; the bridge only reads what it needs: session-token
// verification, stored credentials, and an audit sink.
package hoststore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/termgate/termgate/internal/crypto"
)

const requestTimeout = 10 * time.Second

// Client talks to the host store's REST API with a service bearer token.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New returns a Client for baseURL. token is the service-to-service bearer
// credential issued to this gateway.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: requestTimeout},
	}
}

// User is the verified console identity behind a session token.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Admin bool   `json:"admin"`
}

// VerifyToken resolves a console session token to a User. A nil error with
// a populated User means the caller may open bridge connections.
func (c *Client) VerifyToken(ctx context.Context, token string) (*User, error) {
	body, err := json.Marshal(map[string]string{"token": token})
	if err != nil {
		return nil, err
	}
	var user User
	if err := c.do(ctx, http.MethodPost, "/api/session/verify", body, &user); err != nil {
		return nil, err
	}
	if user.ID == "" {
		return nil, fmt.Errorf("hoststore: token verification returned no user")
	}
	return &user, nil
}

// Host is a connection target owned by a console user. The credential, if
// any, is referenced by id and fetched separately.
type Host struct {
	ID           string `json:"id"`
	Address      string `json:"address"`
	Port         int    `json:"port"`
	Username     string `json:"username"`
	CredentialID string `json:"credential_id"`
}

// GetHost fetches the host record for id. Ownership and share checks are
// the store's concern; a 403/404 surfaces as an error here.
func (c *Client) GetHost(ctx context.Context, id string) (*Host, error) {
	var host Host
	if err := c.do(ctx, http.MethodGet, "/api/hosts/"+id, nil, &host); err != nil {
		return nil, err
	}
	if host.Address == "" {
		return nil, fmt.Errorf("hoststore: host %s has no address", id)
	}
	if host.Port <= 0 {
		host.Port = 22
	}
	return &host, nil
}

// storedCredential is the wire shape of a credential record. The secret
// value is AES-256-GCM encrypted with the key shared between the store and
// this gateway.
type storedCredential struct {
	ID       string `json:"id"`
	AuthType string `json:"auth_type"` // "password" | "private_key"
	Secret   string `json:"secret"`
	// Passphrase, when present, is also encrypted.
	Passphrase string `json:"passphrase"`
}

// ResolveCredential fetches and decrypts the stored credential id and
// returns its plaintext parts. Exactly one of password/privateKey is
// non-empty on success. Satisfies the bridge's CredentialResolver.
func (c *Client) ResolveCredential(ctx context.Context, id string) (password, privateKey, passphrase string, err error) {
	var rec storedCredential
	if err = c.do(ctx, http.MethodGet, "/api/credentials/"+id, nil, &rec); err != nil {
		return "", "", "", err
	}
	secret, err := crypto.Decrypt(rec.Secret)
	if err != nil {
		return "", "", "", fmt.Errorf("hoststore: credential %s: %w", id, err)
	}
	if rec.Passphrase != "" {
		passphrase, err = crypto.Decrypt(rec.Passphrase)
		if err != nil {
			return "", "", "", fmt.Errorf("hoststore: credential %s passphrase: %w", id, err)
		}
	}
	switch rec.AuthType {
	case "private_key", "key":
		return "", secret, passphrase, nil
	default:
		return secret, "", "", nil
	}
}

// PostAuditRecord delivers one audit record to the store. Called by the
// worker, never inline with session traffic.
func (c *Client) PostAuditRecord(ctx context.Context, record any) error {
	body, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, "/api/audit", body, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("hoststore: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("hoststore: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("hoststore: %s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(msg))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("hoststore: %s %s: decode response: %w", method, path, err)
	}
	return nil
}
