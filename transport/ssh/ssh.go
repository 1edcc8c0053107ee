// Package ssh implements the SSH persistent-stream dialer: it runs
// git-upload-pack/git-receive-pack as a remote command over an SSH
// session, the same way the git CLI's ssh transport does.
package ssh

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kevinburke/ssh_config"
	"github.com/skeema/knownhosts"
	sshagent "github.com/xanzy/ssh-agent"
	"golang.org/x/crypto/ssh"

	"github.com/pktwire/pktwire/transport"
)

// Dialer opens SSH sessions, resolving host aliases from ~/.ssh/config
// (kevinburke/ssh_config), verifying host keys against ~/.ssh/known_hosts
// (skeema/knownhosts) when that file exists (host keys are not checked
// when it does not), and falling back to ssh-agent-forwarded auth
// (xanzy/ssh-agent) when no explicit AuthMethod is supplied.
type Dialer struct {
	KnownHostsPath string
	SSHConfigPath  string
}

// PublicKeysAuth is the simplest AuthMethod: an already-parsed signer.
type PublicKeysAuth struct {
	User   string
	Signer ssh.Signer
}

func (a *PublicKeysAuth) Name() string   { return "ssh-publickey" }
func (a *PublicKeysAuth) String() string { return fmt.Sprintf("user: %s", a.User) }

func (d *Dialer) Stateless() bool { return false }

func (d *Dialer) Dial(ctx context.Context, ep *transport.Endpoint, service transport.Service, auth transport.AuthMethod) (transport.FrameStream, error) {
	host, port, user := resolveHostAlias(ep, d.SSHConfigPath)

	callback, err := d.hostKeyCallback()
	if err != nil {
		return nil, fmt.Errorf("ssh: loading known_hosts: %w", err)
	}

	authMethods, err := d.authMethods(auth, user)
	if err != nil {
		return nil, err
	}

	cfg := &ssh.ClientConfig{
		User:            user,
		Auth:            authMethods,
		HostKeyCallback: callback,
	}

	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := ssh.Dial("tcp", addr, cfg)
	if err != nil {
		return nil, fmt.Errorf("ssh: dial %s: %w", addr, err)
	}

	session, err := conn.NewSession()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh: new session: %w", err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		return nil, err
	}

	cmd := fmt.Sprintf("%s '%s'", service, ep.Path)
	if err := session.Start(cmd); err != nil {
		return nil, fmt.Errorf("ssh: starting %s: %w", service, err)
	}

	return &stream{conn: conn, session: session, stdin: stdin, stdout: stdout}, nil
}

func resolveHostAlias(ep *transport.Endpoint, cfgPath string) (host string, port int, user string) {
	host, port, user = ep.Host, ep.Port, ep.User
	if port == 0 {
		port = 22
	}
	if cfgPath == "" {
		cfgPath = filepath.Join(homeDir(), ".ssh", "config")
	}
	f, err := os.Open(cfgPath)
	if err != nil {
		return host, port, user
	}
	defer f.Close()
	cfg, err := ssh_config.Decode(f)
	if err != nil {
		return host, port, user
	}
	if alias, err := cfg.Get(ep.Host, "HostName"); err == nil && alias != "" {
		host = alias
	}
	if u, err := cfg.Get(ep.Host, "User"); err == nil && u != "" && user == "" {
		user = u
	}
	return host, port, user
}

func (d *Dialer) hostKeyCallback() (ssh.HostKeyCallback, error) {
	path := d.KnownHostsPath
	if path == "" {
		path = filepath.Join(homeDir(), ".ssh", "known_hosts")
	}
	khdb, err := knownhosts.NewDB(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ssh.InsecureIgnoreHostKey(), nil
		}
		return nil, err
	}
	return khdb.HostKeyCallback(), nil
}

func (d *Dialer) authMethods(auth transport.AuthMethod, user string) ([]ssh.AuthMethod, error) {
	if pk, ok := auth.(*PublicKeysAuth); ok {
		return []ssh.AuthMethod{ssh.PublicKeys(pk.Signer)}, nil
	}

	agentConn, _, err := sshagent.New()
	if err != nil {
		return nil, fmt.Errorf("ssh: no explicit auth and no agent available: %w", err)
	}
	return []ssh.AuthMethod{ssh.PublicKeysCallback(agentConn.Signers)}, nil
}

func homeDir() string {
	h, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return h
}

type stream struct {
	conn    *ssh.Client
	session *ssh.Session
	stdin   ioWriteCloser
	stdout  interface{ Read([]byte) (int, error) }
}

type ioWriteCloser interface {
	Write([]byte) (int, error)
	Close() error
}

func (s *stream) Read(p []byte) (int, error)  { return s.stdout.Read(p) }
func (s *stream) Write(p []byte) (int, error) { return s.stdin.Write(p) }
func (s *stream) CloseWrite() error           { return s.stdin.Close() }
func (s *stream) Close() error {
	s.session.Close()
	return s.conn.Close()
}
