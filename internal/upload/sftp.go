package upload

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/forensant/triage-collector/pkg/errors"
	"github.com/forensant/triage-collector/pkg/retry"
)

// SFTPConfig names the remote endpoint and auth material for an
// SFTPSink. Authentication is public-key only, matching the original
// collector's design: no passphrase support, one private key file.
type SFTPConfig struct {
	Host              string
	Port              int
	Username          string
	PrivateKeyPath    string
	RemotePath        string
	ConnectionTimeout time.Duration
	RetryAttempts     int
	RetryInitialDelay time.Duration
}

func (c SFTPConfig) withDefaults() SFTPConfig {
	if c.Port == 0 {
		c.Port = 22
	}
	if c.ConnectionTimeout <= 0 {
		c.ConnectionTimeout = 30 * time.Second
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 3
	}
	if c.RetryInitialDelay <= 0 {
		c.RetryInitialDelay = 250 * time.Millisecond
	}
	return c
}

func (c SFTPConfig) retryer() *retry.Retryer {
	return retry.New(retry.Config{
		MaxAttempts:  c.RetryAttempts,
		InitialDelay: c.RetryInitialDelay,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	})
}

// SFTPSink streams into one remote file over a single SSH/SFTP session.
// Writes are serialized by a mutex since the underlying session handles
// one request at a time; there is no concurrent-part model here the way
// there is for S3, so retries wrap the whole write call.
type SFTPSink struct {
	cfg SFTPConfig

	sshClient  *ssh.Client
	sftpClient *sftp.Client
	remoteFile *sftp.File

	mu      sync.Mutex
	written uint64
	done    bool
}

// NewSFTPSink opens the SSH session, authenticates by private key,
// starts the SFTP subsystem, and creates the target file.
func NewSFTPSink(cfg SFTPConfig) (*SFTPSink, error) {
	cfg = cfg.withDefaults()

	key, err := os.ReadFile(cfg.PrivateKeyPath)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeOpenFailed, "failed to read SFTP private key").
			WithComponent("upload").WithOperation("NewSFTPSink").WithCause(err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "failed to parse SFTP private key").
			WithComponent("upload").WithOperation("NewSFTPSink").WithCause(err)
	}

	sshConfig := &ssh.ClientConfig{
		User:            cfg.Username,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // triage targets rarely carry a known_hosts entry for the collector
		Timeout:         cfg.ConnectionTimeout,
	}

	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))
	sshClient, err := ssh.Dial("tcp", addr, sshConfig)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeConnectionFailed, "SSH dial failed").
			WithComponent("upload").WithOperation("NewSFTPSink").WithContext("host", cfg.Host).WithCause(err)
	}

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, errors.NewError(errors.ErrCodeConnectionFailed, "failed to start SFTP subsystem").
			WithComponent("upload").WithOperation("NewSFTPSink").WithCause(err)
	}

	remoteFile, err := sftpClient.Create(cfg.RemotePath)
	if err != nil {
		sftpClient.Close()
		sshClient.Close()
		return nil, errors.NewError(errors.ErrCodeOpenFailed, "failed to create remote file").
			WithComponent("upload").WithOperation("NewSFTPSink").WithContext("remote_path", cfg.RemotePath).WithCause(err)
	}

	return &SFTPSink{
		cfg:        cfg,
		sshClient:  sshClient,
		sftpClient: sftpClient,
		remoteFile: remoteFile,
	}, nil
}

// Write forwards p to the remote file handle, serialized by a mutex
// and retried with the same backoff schedule as the S3 sink.
func (s *SFTPSink) Write(ctx context.Context, p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	err := s.cfg.retryer().DoWithContext(ctx, func(context.Context) error {
		written, writeErr := s.remoteFile.Write(p)
		n = written
		if writeErr != nil {
			return errors.NewError(errors.ErrCodeNetworkError, "SFTP write failed").
				WithComponent("upload").WithOperation("Write").WithCause(writeErr).WithRetryable(true)
		}
		return nil
	})
	if err != nil {
		return n, errors.NewError(errors.ErrCodeUploadRetriesExhausted, "SFTP write failed after retries").
			WithComponent("upload").WithOperation("Write").WithContext("remote_path", s.cfg.RemotePath).WithCause(err)
	}

	atomic.AddUint64(&s.written, uint64(n))
	return n, nil
}

// Complete closes the remote file and the SFTP/SSH session.
func (s *SFTPSink) Complete(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return nil
	}
	s.done = true

	closeErr := s.remoteFile.Close()
	s.sftpClient.Close()
	s.sshClient.Close()
	if closeErr != nil {
		return errors.NewError(errors.ErrCodeUploadFailed, "failed to close remote file").
			WithComponent("upload").WithOperation("Complete").WithCause(closeErr)
	}
	return nil
}

// Abort closes the session and best-effort unlinks the partial remote
// file; an unlink failure is reported but does not mask the original
// caller error since it is the pipeline's job to decide what to log.
func (s *SFTPSink) Abort(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return nil
	}
	s.done = true

	s.remoteFile.Close()
	removeErr := s.sftpClient.Remove(s.cfg.RemotePath)
	s.sftpClient.Close()
	s.sshClient.Close()

	if removeErr != nil {
		return errors.NewError(errors.ErrCodeUploadFailed, "failed to remove partial remote file").
			WithComponent("upload").WithOperation("Abort").WithContext("remote_path", s.cfg.RemotePath).WithCause(removeErr)
	}
	return nil
}

// BytesWritten returns the monotonic count of bytes accepted so far.
func (s *SFTPSink) BytesWritten() uint64 {
	return atomic.LoadUint64(&s.written)
}
