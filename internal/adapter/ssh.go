package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"circuitsync/internal/domain"
	"circuitsync/internal/logging"
)

// SSHRunner sends device commands through a command gateway over SSH.
// It implements remediation.CommandRunner and service.ObservedSource.
type SSHRunner struct {
	user        string
	port        int
	auth        []ssh.AuthMethod
	hostKeys    ssh.HostKeyCallback
	gateway     string
	readCommand string
	timeout     time.Duration
	dial        func(ctx context.Context, network, addr string) (net.Conn, error)
	log         *logrus.Entry
}

// SSHOption is a functional option for configuring SSHRunner
type SSHOption func(*SSHRunner)

// WithSSHPort sets the port the gateway listens on
func WithSSHPort(port int) SSHOption {
	return func(r *SSHRunner) {
		if port > 0 {
			r.port = port
		}
	}
}

// WithGateway sets the remote command the command name is appended to
func WithGateway(gateway string) SSHOption {
	return func(r *SSHRunner) {
		r.gateway = strings.TrimSpace(gateway)
	}
}

// WithReadCommand sets the command that returns the observed configuration
func WithReadCommand(name string) SSHOption {
	return func(r *SSHRunner) {
		r.readCommand = name
	}
}

// WithSSHTimeout bounds connection setup
func WithSSHTimeout(d time.Duration) SSHOption {
	return func(r *SSHRunner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithPassword adds password authentication
func WithPassword(password string) SSHOption {
	return func(r *SSHRunner) {
		if password != "" {
			r.auth = append(r.auth, ssh.Password(password))
		}
	}
}

// WithSigner adds public key authentication
func WithSigner(signer ssh.Signer) SSHOption {
	return func(r *SSHRunner) {
		r.auth = append(r.auth, ssh.PublicKeys(signer))
	}
}

// WithHostKeyCallback replaces host key verification
func WithHostKeyCallback(cb ssh.HostKeyCallback) SSHOption {
	return func(r *SSHRunner) {
		r.hostKeys = cb
	}
}

// NewSSHRunner creates a runner logging in as user. Without a host key
// callback every host key is accepted.
func NewSSHRunner(user string, opts ...SSHOption) (*SSHRunner, error) {
	if user == "" {
		return nil, errors.New("ssh user is required")
	}
	r := &SSHRunner{
		user:        user,
		port:        22,
		gateway:     "netconf-gateway run",
		readCommand: "get-config.json",
		timeout:     30 * time.Second,
		log:         logging.For("ssh"),
	}
	for _, opt := range opts {
		opt(r)
	}
	if len(r.auth) == 0 {
		return nil, errors.New("ssh runner needs a key or a password")
	}
	if r.hostKeys == nil {
		r.hostKeys = ssh.InsecureIgnoreHostKey()
	}
	if r.dial == nil {
		dialer := &net.Dialer{Timeout: r.timeout}
		r.dial = dialer.DialContext
	}
	return r, nil
}

// LoadSigner parses a private key file, using passphrase when the key is encrypted
func LoadSigner(path, passphrase string) (ssh.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}
	var signer ssh.Signer
	if passphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(data, []byte(passphrase))
	} else {
		signer, err = ssh.ParsePrivateKey(data)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return signer, nil
}

// LoadKnownHosts builds a host key callback from a known_hosts file
func LoadKnownHosts(path string) (ssh.HostKeyCallback, error) {
	cb, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load known hosts: %w", err)
	}
	return cb, nil
}

// Execute runs a named command on the device and returns its JSON answer
func (r *SSHRunner) Execute(ctx context.Context, device domain.Device, name string, params map[string]any) (domain.CommandResult, error) {
	out, err := r.run(ctx, device, name, params)
	if err != nil {
		return nil, err
	}
	return parseCommandOutput(name, out)
}

// ObservedConfig issues the read command and returns its answer as the
// observed document
func (r *SSHRunner) ObservedConfig(ctx context.Context, circuit domain.Circuit, device domain.Device) (domain.Document, error) {
	result, err := r.Execute(ctx, device, r.readCommand, observedParams(circuit, device))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStateUnavailable, err)
	}
	return domain.Document(result), nil
}

func (r *SSHRunner) run(ctx context.Context, device domain.Device, name string, params map[string]any) ([]byte, error) {
	addr, err := deviceAddress(device, r.port)
	if err != nil {
		return nil, err
	}
	stdin, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode parameters for %s: %w", name, err)
	}

	client, err := r.connect(ctx, addr)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdin = bytes.NewReader(stdin)
	session.Stdout = &stdout
	session.Stderr = &stderr

	cmd := r.commandLine(device, name)
	log := r.log.WithFields(logrus.Fields{"device": device.Ref(), "command": name})
	log.Debug("Running gateway command")

	done := make(chan error, 1)
	go func() {
		done <- session.Run(cmd)
	}()

	select {
	case err := <-done:
		if err != nil {
			var exitErr *ssh.ExitError
			if errors.As(err, &exitErr) {
				return nil, fmt.Errorf("%w: %s exited %d: %s", ErrCommandFailed, name, exitErr.ExitStatus(), strings.TrimSpace(stderr.String()))
			}
			return nil, fmt.Errorf("%w: %s: %v", ErrCommandFailed, name, err)
		}
		return stdout.Bytes(), nil
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return nil, fmt.Errorf("%s on %s: %w", name, device.Ref(), ctx.Err())
	}
}

// commandLine builds the gateway invocation for one command
func (r *SSHRunner) commandLine(device domain.Device, name string) string {
	return fmt.Sprintf("%s --model %s %s", r.gateway, shellQuote(device.Model), shellQuote(name))
}

// connect establishes an SSH connection honouring ctx for the dial
func (r *SSHRunner) connect(ctx context.Context, addr string) (*ssh.Client, error) {
	config := &ssh.ClientConfig{
		User:            r.user,
		Auth:            r.auth,
		HostKeyCallback: r.hostKeys,
		Timeout:         r.timeout,
	}

	conn, err := r.dial(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to establish SSH connection: %w", err)
	}
	_ = conn.SetDeadline(time.Time{})
	return ssh.NewClient(sshConn, chans, reqs), nil
}

// shellQuote single-quotes s for the remote shell
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
