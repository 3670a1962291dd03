package terminal

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/pkg/sftp"
	cryptossh "golang.org/x/crypto/ssh"
)

const sftpMaxUploadBytes = 50 << 20 // 50 MB
const sftpMaxReadBytes = 2 << 20    // 2 MB — reasonable limit for text editing

// SFTPClient wraps an SFTP session opened over a dedicated SSH connection.
// It is short-lived: open it, perform one or more operations, then Close.
type SFTPClient struct {
	sshClient  *cryptossh.Client
	sftpClient *sftp.Client
}

// NewSFTPClient dials SSH and opens an SFTP subsystem session.
// The caller must call Close when done.
func NewSFTPClient(ctx context.Context, cfg ConnectorConfig) (*SFTPClient, error) {
	if !cfg.HasCredentials() {
		return nil, connectErr(KindNoCredentials, "sftp: no credentials for %s@%s", cfg.User, cfg.Host)
	}
	authMethods, err := authMethodsFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("sftp: auth config: %w", err)
	}

	clientCfg := &cryptossh.ClientConfig{
		User:            cfg.User,
		Auth:            authMethods,
		HostKeyCallback: cryptossh.InsecureIgnoreHostKey(), //nolint:gosec
		Timeout:         defaultDialTimeout,
	}

	port := cfg.Port
	if port <= 0 {
		port = 22
	}
	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", port))

	type dialResult struct {
		client *cryptossh.Client
		err    error
	}
	ch := make(chan dialResult, 1)
	go func() {
		cl, err := cryptossh.Dial("tcp", addr, clientCfg)
		ch <- dialResult{cl, err}
	}()

	var sshClient *cryptossh.Client
	select {
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.client != nil {
				_ = r.client.Close()
			}
		}()
		return nil, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("sftp: dial %s: %w", addr, r.err)
		}
		sshClient = r.client
	}

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, fmt.Errorf("sftp: open subsystem: %w", err)
	}

	return &SFTPClient{sshClient: sshClient, sftpClient: sftpClient}, nil
}

// Close releases SFTP and SSH connections.
func (c *SFTPClient) Close() error {
	_ = c.sftpClient.Close()
	return c.sshClient.Close()
}

// DirEntry is a single file or directory entry returned by ListDir.
type DirEntry struct {
	Name       string    `json:"name"`
	Type       string    `json:"type"` // "file" | "dir" | "symlink"
	Size       int64     `json:"size"`
	Mode       string    `json:"mode"`
	ModifiedAt time.Time `json:"modified_at"`
}

// ListDir returns all entries (including dot-files) in the given remote path.
func (c *SFTPClient) ListDir(dirPath string) ([]DirEntry, error) {
	infos, err := c.sftpClient.ReadDir(dirPath)
	if err != nil {
		return nil, fmt.Errorf("sftp: readdir %q: %w", dirPath, err)
	}

	entries := make([]DirEntry, 0, len(infos))
	for _, fi := range infos {
		entries = append(entries, DirEntry{
			Name:       fi.Name(),
			Type:       entryType(fi),
			Size:       fi.Size(),
			Mode:       fi.Mode().String(),
			ModifiedAt: fi.ModTime().UTC(),
		})
	}
	return entries, nil
}

// Stat returns metadata for a single file or directory.
func (c *SFTPClient) Stat(filePath string) (DirEntry, error) {
	fi, err := c.sftpClient.Lstat(filePath)
	if err != nil {
		return DirEntry{}, fmt.Errorf("sftp: stat %q: %w", filePath, err)
	}
	return DirEntry{
		Name:       fi.Name(),
		Type:       entryType(fi),
		Size:       fi.Size(),
		Mode:       fi.Mode().String(),
		ModifiedAt: fi.ModTime().UTC(),
	}, nil
}

// Download streams the remote file to dst (e.g. http.ResponseWriter).
func (c *SFTPClient) Download(remotePath string, dst io.Writer) error {
	f, err := c.sftpClient.Open(remotePath)
	if err != nil {
		return fmt.Errorf("sftp: open %q: %w", remotePath, err)
	}
	defer f.Close()
	_, err = io.Copy(dst, f)
	return err
}

// Upload writes src to remotePath. The total read from src must not exceed
// sftpMaxUploadBytes (50 MB); excess bytes cause an error and the partial
// remote file is removed.
func (c *SFTPClient) Upload(remotePath string, src io.Reader) error {
	limited := io.LimitReader(src, sftpMaxUploadBytes+1)

	f, err := c.sftpClient.Create(remotePath)
	if err != nil {
		return fmt.Errorf("sftp: create %q: %w", remotePath, err)
	}
	defer f.Close()

	n, err := io.Copy(f, limited)
	if err != nil {
		_ = c.sftpClient.Remove(remotePath)
		return fmt.Errorf("sftp: write %q: %w", remotePath, err)
	}
	if n > sftpMaxUploadBytes {
		_ = c.sftpClient.Remove(remotePath)
		return fmt.Errorf("sftp: upload exceeds %d bytes limit", int64(sftpMaxUploadBytes))
	}
	return nil
}

// Delete removes a file or an empty directory. For recursive removal,
// callers must walk the tree themselves.
func (c *SFTPClient) Delete(path string) error {
	fi, err := c.sftpClient.Lstat(path)
	if err != nil {
		return fmt.Errorf("sftp: stat %q: %w", path, err)
	}
	if fi.IsDir() && fi.Mode()&os.ModeSymlink == 0 {
		if err := c.sftpClient.RemoveDirectory(path); err != nil {
			return fmt.Errorf("sftp: rmdir %q: %w", path, err)
		}
		return nil
	}
	if err := c.sftpClient.Remove(path); err != nil {
		return fmt.Errorf("sftp: remove %q: %w", path, err)
	}
	return nil
}

// ReadFile reads up to sftpMaxReadBytes of a remote file and returns it as a
// string. Returns an error if the file exceeds the limit.
func (c *SFTPClient) ReadFile(path string) (string, error) {
	f, err := c.sftpClient.Open(path)
	if err != nil {
		return "", fmt.Errorf("sftp: open %q: %w", path, err)
	}
	defer f.Close()

	limited := io.LimitReader(f, sftpMaxReadBytes+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return "", fmt.Errorf("sftp: read %q: %w", path, err)
	}
	if int64(len(data)) > sftpMaxReadBytes {
		return "", fmt.Errorf("sftp: file %q exceeds %d bytes limit", path, int64(sftpMaxReadBytes))
	}
	return string(data), nil
}

// WriteFile writes content to a remote file, creating or truncating it.
// Content is capped at sftpMaxReadBytes to match the read limit.
func (c *SFTPClient) WriteFile(path string, content string) error {
	if int64(len(content)) > sftpMaxReadBytes {
		return fmt.Errorf("sftp: content exceeds %d bytes limit", int64(sftpMaxReadBytes))
	}
	f, err := c.sftpClient.Create(path)
	if err != nil {
		return fmt.Errorf("sftp: create %q: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write([]byte(content)); err != nil {
		return fmt.Errorf("sftp: write %q: %w", path, err)
	}
	return nil
}

func entryType(fi os.FileInfo) string {
	switch {
	case fi.Mode()&os.ModeSymlink != 0:
		return "symlink"
	case fi.IsDir():
		return "dir"
	default:
		return "file"
	}
}
