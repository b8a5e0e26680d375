package voicedrop

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// ErrTransport marks connect/list failures on the file drop. It is fatal to
// the current ingestion run: no files are processed.
var ErrTransport = errors.New("voicedrop: transport failure")

// Credentials are the file-drop connection parameters. They are read from
// the sync_settings table at run time, never from config files.
type Credentials struct {
	Host       string
	Port       string
	Username   string
	Password   string
	RemotePath string
}

// CredentialsFromSettings builds Credentials from the settings map.
// Missing required keys are a whole-run precondition failure.
func CredentialsFromSettings(settings map[string]string) (Credentials, error) {
	c := Credentials{
		Host:       settings["sftp_host"],
		Port:       settings["sftp_port"],
		Username:   settings["sftp_username"],
		Password:   settings["sftp_password"],
		RemotePath: settings["sftp_remote_path"],
	}
	if c.Host == "" || c.Username == "" || c.Password == "" {
		return Credentials{}, fmt.Errorf("%w: missing sftp credentials in sync_settings", ErrTransport)
	}
	if c.Port == "" {
		c.Port = "22"
	}
	if c.RemotePath == "" {
		c.RemotePath = "/"
	}
	return c, nil
}

// Session is one live connection to the file drop. A session is created per
// ingestion run and torn down when the run's downloads complete.
type Session interface {
	// List returns the names of regular files in the remote drop directory.
	List() ([]string, error)
	// Download copies one remote file to localPath and returns its size.
	Download(remoteName, localPath string) (int64, error)
	Close() error
}

// Dialer opens Sessions. Implementations retry the connection attempt with
// backoff before giving up.
type Dialer interface {
	Dial(creds Credentials) (Session, error)
}

// SFTPDialer connects to the drop over SFTP. A fresh SSH session is dialed
// per ingestion run and never pooled across runs; stale-connection bugs on
// this endpoint cost more than the extra handshake.
type SFTPDialer struct {
	Timeout time.Duration
	Retries int
}

// NewSFTPDialer creates a dialer with the given connect timeout and retry
// budget.
func NewSFTPDialer(timeout time.Duration, retries int) *SFTPDialer {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if retries <= 0 {
		retries = 3
	}
	return &SFTPDialer{Timeout: timeout, Retries: retries}
}

// Dial opens an SFTP session, retrying with linear backoff.
func (d *SFTPDialer) Dial(creds Credentials) (Session, error) {
	sshCfg := &ssh.ClientConfig{
		User:            creds.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(creds.Password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         d.Timeout,
	}
	addr := creds.Host + ":" + creds.Port

	var lastErr error
	for attempt := 1; attempt <= d.Retries; attempt++ {
		sshConn, err := ssh.Dial("tcp", addr, sshCfg)
		if err != nil {
			lastErr = err
			time.Sleep(time.Duration(attempt) * time.Second)
			continue
		}
		sc, err := sftp.NewClient(sshConn)
		if err != nil {
			sshConn.Close()
			lastErr = err
			time.Sleep(time.Duration(attempt) * time.Second)
			continue
		}
		return &sftpSession{ssh: sshConn, sftp: sc, remotePath: creds.RemotePath}, nil
	}
	return nil, fmt.Errorf("%w: dial %s after %d attempts: %v", ErrTransport, addr, d.Retries, lastErr)
}

type sftpSession struct {
	ssh        *ssh.Client
	sftp       *sftp.Client
	remotePath string
}

func (s *sftpSession) List() ([]string, error) {
	entries, err := s.sftp.ReadDir(s.remotePath)
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", ErrTransport, s.remotePath, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

func (s *sftpSession) Download(remoteName, localPath string) (int64, error) {
	remote, err := s.sftp.Open(path.Join(s.remotePath, remoteName))
	if err != nil {
		return 0, fmt.Errorf("open remote %s: %w", remoteName, err)
	}
	defer remote.Close()

	local, err := os.Create(localPath)
	if err != nil {
		return 0, fmt.Errorf("create local %s: %w", localPath, err)
	}
	defer local.Close()

	n, err := io.Copy(local, remote)
	if err != nil {
		os.Remove(localPath)
		return 0, fmt.Errorf("copy %s: %w", remoteName, err)
	}
	return n, nil
}

func (s *sftpSession) Close() error {
	serr := s.sftp.Close()
	cerr := s.ssh.Close()
	if serr != nil {
		return serr
	}
	return cerr
}

// hasExtension reports whether name carries the ingestion file extension
// (case-insensitive).
func hasExtension(name, ext string) bool {
	return strings.HasSuffix(strings.ToLower(name), strings.ToLower(ext))
}
