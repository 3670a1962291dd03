package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/termgate/termgate/internal/hoststore"
	"github.com/termgate/termgate/internal/terminal"
)

// SFTP serves file operations against a stored host. Every request opens a
// short-lived SFTP session: resolve the host and its credential through the
// store, dial, perform the operation, close.
type SFTP struct {
	store *hoststore.Client
}

// NewSFTP returns handlers backed by the given host store client.
func NewSFTP(store *hoststore.Client) *SFTP {
	return &SFTP{store: store}
}

// openClient resolves {hostId} and opens an SFTP session to it.
func (h *SFTP) openClient(r *http.Request) (*terminal.SFTPClient, error) {
	hostID := chi.URLParam(r, "hostId")
	if hostID == "" {
		return nil, fmt.Errorf("hostId is required")
	}
	host, err := h.store.GetHost(r.Context(), hostID)
	if err != nil {
		return nil, err
	}

	cfg := terminal.ConnectorConfig{
		Host: host.Address,
		Port: host.Port,
		User: host.Username,
	}
	if host.CredentialID != "" {
		password, privateKey, passphrase, err := h.store.ResolveCredential(r.Context(), host.CredentialID)
		if err != nil {
			return nil, err
		}
		cfg.Password = password
		cfg.PrivateKey = privateKey
		cfg.Passphrase = passphrase
	}

	return terminal.NewSFTPClient(r.Context(), cfg)
}

// List returns directory entries for ?path=.
func (h *SFTP) List(w http.ResponseWriter, r *http.Request) {
	client, err := h.openClient(r)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	defer client.Close()

	dir := queryPath(r, "/")
	entries, err := client.ListDir(dir)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, map[string]any{"path": dir, "entries": entries})
}

// Stat returns metadata for ?path=.
func (h *SFTP) Stat(w http.ResponseWriter, r *http.Request) {
	client, err := h.openClient(r)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	defer client.Close()

	entry, err := client.Stat(queryPath(r, ""))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, entry)
}

// Download streams the remote file at ?path= as an attachment.
func (h *SFTP) Download(w http.ResponseWriter, r *http.Request) {
	client, err := h.openClient(r)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	defer client.Close()

	remote := queryPath(r, "")
	if remote == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("path is required"))
		return
	}
	name := path.Base(remote)
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	if err := client.Download(remote, w); err != nil {
		// Headers may already be sent; log instead of rewriting the status.
		log.Error().Err(err).Str("path", remote).Msg("sftp: download")
	}
}

// Upload writes the request body to ?path=.
func (h *SFTP) Upload(w http.ResponseWriter, r *http.Request) {
	client, err := h.openClient(r)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	defer client.Close()

	remote := queryPath(r, "")
	if remote == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("path is required"))
		return
	}

	var src io.Reader = r.Body
	// Accept multipart form uploads from the console as well as raw bodies.
	if mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mt == "multipart/form-data" {
		file, _, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("multipart upload: %w", err))
			return
		}
		defer file.Close()
		src = file
	}

	if err := client.Upload(remote, src); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, map[string]string{"status": "uploaded", "path": remote})
}

// Delete removes the file or empty directory at ?path=.
func (h *SFTP) Delete(w http.ResponseWriter, r *http.Request) {
	client, err := h.openClient(r)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	defer client.Close()

	remote := queryPath(r, "")
	if err := client.Delete(remote); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, map[string]string{"status": "deleted", "path": remote})
}

// Read returns the text content of ?path= (size-capped).
func (h *SFTP) Read(w http.ResponseWriter, r *http.Request) {
	client, err := h.openClient(r)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	defer client.Close()

	remote := queryPath(r, "")
	content, err := client.ReadFile(remote)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, map[string]string{"path": remote, "content": content})
}

// Write replaces the content of the file named in the JSON body.
func (h *SFTP) Write(w http.ResponseWriter, r *http.Request) {
	client, err := h.openClient(r)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	defer client.Close()

	var body struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Path == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("path and content are required"))
		return
	}
	if err := client.WriteFile(body.Path, body.Content); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, map[string]string{"status": "written", "path": body.Path})
}

func queryPath(r *http.Request, fallback string) string {
	if p := r.URL.Query().Get("path"); p != "" {
		return p
	}
	return fallback
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"message": err.Error()})
}
