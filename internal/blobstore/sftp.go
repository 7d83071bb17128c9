package blobstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/sweepies/imgur-sans-bullshit/internal/conf"
	"github.com/sweepies/imgur-sans-bullshit/internal/errors"
)

const sftpConnectTimeout = 30 * time.Second

// SFTPStore keeps blobs on a remote host over SFTP, using the same
// file-plus-sidecar layout as the local backend.
type SFTPStore struct {
	cfg      *conf.SFTPBlobSettings
	basePath string

	mu     sync.Mutex
	client *sftp.Client
	conn   *ssh.Client
}

// NewSFTPStore validates the configuration; the connection is established
// lazily on first use.
func NewSFTPStore(cfg *conf.SFTPBlobSettings) (*SFTPStore, error) {
	if cfg.Host == "" {
		return nil, errors.Newf("sftp blob store host is empty").
			Component("blobstore").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return &SFTPStore{
		cfg:      cfg,
		basePath: strings.TrimRight(cfg.BasePath, "/"),
	}, nil
}

// connect returns the cached SFTP client, dialing if necessary.
func (s *SFTPStore) connect() (*sftp.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return s.client, nil
	}

	config := &ssh.ClientConfig{
		User: s.cfg.Username,
		// TODO: support known_hosts verification instead of accepting any key
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         sftpConnectTimeout,
	}

	switch {
	case s.cfg.KeyFile != "":
		key, err := os.ReadFile(s.cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("sftp: failed to read private key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("sftp: failed to parse private key: %w", err)
		}
		config.Auth = []ssh.AuthMethod{ssh.PublicKeys(signer)}
	case s.cfg.Password != "":
		config.Auth = []ssh.AuthMethod{ssh.Password(s.cfg.Password)}
	default:
		return nil, fmt.Errorf("sftp: no authentication method configured")
	}

	addr := fmt.Sprintf("%s:%s", s.cfg.Host, s.cfg.Port)
	conn, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, fmt.Errorf("sftp: failed to connect to %s: %w", addr, err)
	}

	client, err := sftp.NewClient(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("sftp: failed to create client: %w", err)
	}

	if s.basePath != "" {
		if err := client.MkdirAll(s.basePath); err != nil {
			client.Close()
			conn.Close()
			return nil, fmt.Errorf("sftp: failed to create base path %s: %w", s.basePath, err)
		}
	}

	s.conn = conn
	s.client = client
	return client, nil
}

func (s *SFTPStore) remotePath(name string) string {
	if s.basePath == "" {
		return name
	}
	return path.Join(s.basePath, name)
}

// Get reads the blob and its sidecar from the remote host.
func (s *SFTPStore) Get(ctx context.Context, key string) (*Object, error) {
	client, err := s.connect()
	if err != nil {
		return nil, err
	}

	f, err := client.Open(s.remotePath(objectFileName(key)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("sftp: reading blob %s: %w", key, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("sftp: reading blob %s: %w", key, err)
	}

	obj := &Object{Data: data, ContentType: "application/octet-stream"}

	if mf, err := client.Open(s.remotePath(metaFileName(key))); err == nil {
		metaData, readErr := io.ReadAll(mf)
		mf.Close()
		if readErr == nil {
			var meta blobMeta
			if err := json.Unmarshal(metaData, &meta); err == nil {
				if meta.ContentType != "" {
					obj.ContentType = meta.ContentType
				}
				obj.Metadata = meta.Metadata
			}
		}
	}

	return obj, nil
}

// Put writes the blob and its sidecar to the remote host.
func (s *SFTPStore) Put(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) error {
	client, err := s.connect()
	if err != nil {
		return err
	}

	if err := s.writeRemote(client, s.remotePath(objectFileName(key)), data); err != nil {
		return fmt.Errorf("sftp: writing blob %s: %w", key, err)
	}

	metaData, err := json.Marshal(blobMeta{ContentType: contentType, Metadata: metadata})
	if err != nil {
		return fmt.Errorf("sftp: marshaling blob metadata %s: %w", key, err)
	}
	if err := s.writeRemote(client, s.remotePath(metaFileName(key)), metaData); err != nil {
		return fmt.Errorf("sftp: writing blob metadata %s: %w", key, err)
	}

	return nil
}

func (s *SFTPStore) writeRemote(client *sftp.Client, remotePath string, data []byte) error {
	f, err := client.Create(remotePath)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Delete removes the blob and its sidecar. Missing files are ignored.
func (s *SFTPStore) Delete(ctx context.Context, key string) error {
	client, err := s.connect()
	if err != nil {
		return err
	}

	if err := client.Remove(s.remotePath(objectFileName(key))); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("sftp: deleting blob %s: %w", key, err)
	}
	if err := client.Remove(s.remotePath(metaFileName(key))); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("sftp: deleting blob metadata %s: %w", key, err)
	}
	return nil
}

// Exists probes for the blob's data file on the remote host.
func (s *SFTPStore) Exists(ctx context.Context, key string) (bool, error) {
	client, err := s.connect()
	if err != nil {
		return false, err
	}

	if _, err := client.Stat(s.remotePath(objectFileName(key))); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("sftp: checking blob %s: %w", key, err)
	}
	return true, nil
}

// Close tears down the SFTP session and SSH connection.
func (s *SFTPStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.client != nil {
		errs = append(errs, s.client.Close())
		s.client = nil
	}
	if s.conn != nil {
		errs = append(errs, s.conn.Close())
		s.conn = nil
	}
	return errors.Join(errs...)
}
