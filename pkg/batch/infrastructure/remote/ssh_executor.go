package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	port "github.com/tigerroll/simsweep/pkg/batch/core/application/port"
	config "github.com/tigerroll/simsweep/pkg/batch/core/config"
	exception "github.com/tigerroll/simsweep/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/simsweep/pkg/batch/support/util/logger"
)

// SSHExecutor runs commands on compute nodes over SSH.
// One client connection is kept per host and reused across sessions.
type SSHExecutor struct {
	cfg config.SSHConfig

	mu      sync.Mutex
	clients map[string]*ssh.Client

	// dial is replaced in tests.
	dial func(ctx context.Context, network, addr string, cc *ssh.ClientConfig) (*ssh.Client, error)

	clientConfigOnce sync.Once
	clientConfig     *ssh.ClientConfig
	clientConfigErr  error
}

// NewSSHExecutor creates an SSHExecutor for the given SSH settings.
func NewSSHExecutor(cfg config.SSHConfig) *SSHExecutor {
	return &SSHExecutor{
		cfg:     cfg,
		clients: make(map[string]*ssh.Client),
		dial:    dialContext,
	}
}

func dialContext(ctx context.Context, network, addr string, cc *ssh.ClientConfig) (*ssh.Client, error) {
	d := net.Dialer{Timeout: cc.Timeout}
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, cc)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return ssh.NewClient(c, chans, reqs), nil
}

// Run executes cmd on host and returns its combined output.
func (e *SSHExecutor) Run(ctx context.Context, host, cmd string) ([]byte, error) {
	session, err := e.newSession(ctx, host)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	type result struct {
		out []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := session.CombinedOutput(cmd)
		done <- result{out, err}
	}()

	select {
	case <-ctx.Done():
		// Closing the session unblocks CombinedOutput.
		session.Close()
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return r.out, fmt.Errorf("ssh %s: %w", host, r.err)
		}
		return r.out, nil
	}
}

// Start launches cmd on host. The command is expected to background itself;
// Start returns once the remote shell has exited.
func (e *SSHExecutor) Start(ctx context.Context, host, cmd string) error {
	out, err := e.Run(ctx, host, cmd)
	if err != nil {
		logger.Debugf("SSHExecutor: start on %s failed, output: %s", host, string(out))
		return err
	}
	return nil
}

// Close closes every cached connection.
func (e *SSHExecutor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var errs []error
	for host, c := range e.clients {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", host, err))
		}
		delete(e.clients, host)
	}
	return errors.Join(errs...)
}

// newSession opens a session on a cached client, redialing once when the cached connection is gone.
func (e *SSHExecutor) newSession(ctx context.Context, host string) (*ssh.Session, error) {
	client, err := e.client(ctx, host)
	if err != nil {
		return nil, err
	}
	session, err := client.NewSession()
	if err == nil {
		return session, nil
	}

	logger.Debugf("SSHExecutor: session on %s failed (%v), redialing.", host, err)
	e.forget(host, client)
	client, err = e.client(ctx, host)
	if err != nil {
		return nil, err
	}
	session, err = client.NewSession()
	if err != nil {
		e.forget(host, client)
		return nil, fmt.Errorf("ssh %s: open session: %w", host, err)
	}
	return session, nil
}

func (e *SSHExecutor) client(ctx context.Context, host string) (*ssh.Client, error) {
	e.mu.Lock()
	if c, ok := e.clients[host]; ok {
		e.mu.Unlock()
		return c, nil
	}
	e.mu.Unlock()

	cc, err := e.sshClientConfig()
	if err != nil {
		return nil, err
	}
	addr := net.JoinHostPort(host, strconv.Itoa(e.port()))
	c, err := e.dial(ctx, "tcp", addr, cc)
	if err != nil {
		return nil, fmt.Errorf("ssh %s: dial: %w", host, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if existing, ok := e.clients[host]; ok {
		c.Close()
		return existing, nil
	}
	e.clients[host] = c
	return c, nil
}

func (e *SSHExecutor) forget(host string, c *ssh.Client) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.clients[host] == c {
		delete(e.clients, host)
	}
	c.Close()
}

func (e *SSHExecutor) port() int {
	if e.cfg.Port == 0 {
		return 22
	}
	return e.cfg.Port
}

func (e *SSHExecutor) sshClientConfig() (*ssh.ClientConfig, error) {
	e.clientConfigOnce.Do(func() {
		e.clientConfig, e.clientConfigErr = buildClientConfig(e.cfg)
	})
	return e.clientConfig, e.clientConfigErr
}

func buildClientConfig(cfg config.SSHConfig) (*ssh.ClientConfig, error) {
	user := cfg.User
	if user == "" {
		user = os.Getenv("USER")
	}
	if user == "" {
		return nil, exception.NewConfigError("ssh user is not set and $USER is empty", nil)
	}

	hostKeyCallback, err := hostKeyCallback(cfg)
	if err != nil {
		return nil, err
	}

	auth := authMethods(cfg)
	if len(auth) == 0 {
		return nil, exception.NewConfigError("no ssh authentication method available: start ssh-agent or set sweep.ssh.identity_files", nil)
	}

	return &ssh.ClientConfig{
		User:            user,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         cfg.DialTimeout(),
	}, nil
}

func hostKeyCallback(cfg config.SSHConfig) (ssh.HostKeyCallback, error) {
	if cfg.InsecureIgnoreHostKey {
		logger.Warnf("SSHExecutor: host key verification is disabled.")
		return ssh.InsecureIgnoreHostKey(), nil
	}
	path := config.ExpandHome(cfg.KnownHostsFile)
	if path == "" {
		return nil, exception.NewConfigError("sweep.ssh.known_hosts_file is empty and insecure_ignore_host_key is false", nil)
	}
	cb, err := knownhosts.New(path)
	if err != nil {
		return nil, exception.NewConfigError(fmt.Sprintf("failed to read known hosts file '%s'", path), err)
	}
	return cb, nil
}

// authMethods returns the ssh-agent signers followed by every readable identity file.
func authMethods(cfg config.SSHConfig) []ssh.AuthMethod {
	var methods []ssh.AuthMethod

	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if conn, err := net.Dial("unix", sock); err == nil {
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		} else {
			logger.Debugf("SSHExecutor: ssh-agent unavailable: %v", err)
		}
	}

	var signers []ssh.Signer
	for _, f := range cfg.IdentityFiles {
		path := config.ExpandHome(f)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		signer, err := ssh.ParsePrivateKey(data)
		if err != nil {
			logger.Warnf("SSHExecutor: skipping identity file '%s': %v", path, err)
			continue
		}
		signers = append(signers, signer)
	}
	if len(signers) > 0 {
		methods = append(methods, ssh.PublicKeys(signers...))
	}
	return methods
}

var _ port.RemoteExecutor = (*SSHExecutor)(nil)
