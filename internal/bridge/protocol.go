package bridge

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Wire contract. One JSON envelope per WebSocket text message:
//
//	{"event": "<name>", "payload": <shape>}
//
// Event names and payload shapes match the existing browser client exactly.
const (
	// client → server
	EventConnectToHost = "connectToHost"
	EventData          = "data"
	EventResize        = "resize"
	EventPing          = "ping"

	// server → client
	EventError          = "error"
	EventNoAuthRequired = "noAuthRequired"
	EventDisconnect     = "disconnect"
	EventPong           = "pong"
	// EventData is bidirectional.
)

type envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type connectPayload struct {
	Cols       uint16         `json:"cols"`
	Rows       uint16         `json:"rows"`
	HostConfig wireHostConfig `json:"hostConfig"`
}

// wireHostConfig is the client-side shape of a connection target. The dual
// sshKey/rsaKey field names are schema migration residue in the client;
// both are accepted inbound and collapse into the canonical PrivateKey.
type wireHostConfig struct {
	IP           string `json:"ip"`
	User         string `json:"user"`
	Port         any    `json:"port"` // number or string; non-numeric falls back to 22
	Password     string `json:"password"`
	SSHKey       string `json:"sshKey"`
	RSAKey       string `json:"rsaKey"` // legacy alias for sshKey
	Passphrase   string `json:"passphrase"`
	KeyType      string `json:"keyType"`
	AuthMethod   string `json:"authMethod"` // "password" | "key" on interactive re-connect
	CredentialID string `json:"credentialId"`
}

// HostConfig is the canonical, server-side connection target.
type HostConfig struct {
	Address      string
	Port         int
	Username     string
	Password     string
	PrivateKey   string
	Passphrase   string
	CredentialID string
}

func (w wireHostConfig) canonical() HostConfig {
	key := w.SSHKey
	if key == "" {
		key = w.RSAKey
	}
	h := HostConfig{
		Address:      strings.TrimSpace(w.IP),
		Port:         coercePort(w.Port),
		Username:     strings.TrimSpace(w.User),
		Password:     w.Password,
		PrivateKey:   key,
		Passphrase:   w.Passphrase,
		CredentialID: w.CredentialID,
	}
	// An explicit authMethod discriminator narrows the credential to one
	// kind; stray fields from a stale form are ignored.
	switch w.AuthMethod {
	case "password":
		h.PrivateKey = ""
		h.Passphrase = ""
	case "key":
		h.Password = ""
	}
	return h
}

// HasCredentials reports whether the config carries anything usable for
// authentication, directly or by store reference.
func (h HostConfig) HasCredentials() bool {
	return h.Password != "" || h.PrivateKey != "" || h.CredentialID != ""
}

// coercePort accepts the loosely typed wire port (number, numeric string,
// or absent) and falls back to 22.
func coercePort(v any) int {
	switch p := v.(type) {
	case float64:
		if p >= 1 && p <= 65535 {
			return int(p)
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(p)); err == nil && n >= 1 && n <= 65535 {
			return n
		}
	}
	return 22
}

type resizePayload struct {
	Cols uint16 `json:"cols"`
	Rows uint16 `json:"rows"`
}

func decodeConnectPayload(raw json.RawMessage) (connectPayload, error) {
	var p connectPayload
	if len(raw) == 0 {
		return p, fmt.Errorf("bridge: empty connectToHost payload")
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("bridge: malformed connectToHost payload: %w", err)
	}
	return p, nil
}

func decodeResizePayload(raw json.RawMessage) (resizePayload, error) {
	var p resizePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("bridge: malformed resize payload: %w", err)
	}
	return p, nil
}

// decodeDataPayload accepts either a JSON string or raw text.
func decodeDataPayload(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return []byte(s)
		}
	}
	return raw
}
