package sshclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"
)

var ErrNoCredentials = errors.New("ssh: username and password are required")

type Config struct {
	Username string
	Password string
	Port     int
	Timeout  time.Duration // dial and handshake
}

// Client runs single commands on network devices over an SSH exec channel.
// Each Run opens its own connection.
type Client struct {
	cfg Config
}

func New(cfg Config) *Client {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{cfg: cfg}
}

// Run executes command on host and returns its raw output. Cancelling ctx
// closes the connection.
func (c *Client) Run(ctx context.Context, host, command string) (string, error) {
	if c.cfg.Username == "" || c.cfg.Password == "" {
		return "", ErrNoCredentials
	}

	config := &ssh.ClientConfig{
		User: c.cfg.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(c.cfg.Password),
		},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         c.cfg.Timeout,
	}

	addr := net.JoinHostPort(host, strconv.Itoa(c.cfg.Port))
	dialer := net.Dialer{Timeout: c.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := conn.SetDeadline(time.Now().Add(c.cfg.Timeout)); err != nil {
		conn.Close()
		return "", err
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return "", contextErr(ctx, fmt.Errorf("handshake with %s: %w", addr, err))
	}
	_ = conn.SetDeadline(time.Time{})

	client := ssh.NewClient(sshConn, chans, reqs)
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return "", contextErr(ctx, fmt.Errorf("failed to create session: %w", err))
	}
	defer session.Close()

	out, err := session.CombinedOutput(command)
	if err != nil {
		return string(out), contextErr(ctx, fmt.Errorf("run %q on %s: %w", command, host, err))
	}
	return string(out), nil
}

func contextErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}
