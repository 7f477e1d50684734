package sshclient

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

// startServer runs an SSH server on loopback that answers exec requests with
// handler's output.
func startServer(t *testing.T, handler func(cmd string) string) (string, int) {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)

	cfg := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if c.User() == "admin" && string(pass) == "secret" {
				return nil, nil
			}
			return nil, errors.New("denied")
		},
	}
	cfg.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveConn(conn, cfg, handler)
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port
}

func serveConn(conn net.Conn, cfg *ssh.ServerConfig, handler func(cmd string) string) {
	defer conn.Close()
	_, chans, reqs, err := ssh.NewServerConn(conn, cfg)
	if err != nil {
		return
	}
	go ssh.DiscardRequests(reqs)

	for nc := range chans {
		if nc.ChannelType() != "session" {
			_ = nc.Reject(ssh.UnknownChannelType, "unsupported")
			continue
		}
		ch, requests, err := nc.Accept()
		if err != nil {
			return
		}
		go func() {
			defer ch.Close()
			for req := range requests {
				if req.Type != "exec" {
					_ = req.Reply(false, nil)
					continue
				}
				var payload struct{ Command string }
				_ = ssh.Unmarshal(req.Payload, &payload)
				_ = req.Reply(true, nil)
				_, _ = io.WriteString(ch, handler(payload.Command))
				_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{0}))
				return
			}
		}()
	}
}

func TestRun(t *testing.T) {
	host, port := startServer(t, func(cmd string) string {
		return "output of " + cmd
	})

	c := New(Config{Username: "admin", Password: "secret", Port: port, Timeout: 5 * time.Second})
	out, err := c.Run(context.Background(), host, "show cdp neighbors")
	require.NoError(t, err)
	assert.Equal(t, "output of show cdp neighbors", out)
}

func TestRun_BadPassword(t *testing.T) {
	host, port := startServer(t, func(string) string { return "" })

	c := New(Config{Username: "admin", Password: "wrong", Port: port, Timeout: 5 * time.Second})
	_, err := c.Run(context.Background(), host, "show cdp neighbors")
	require.Error(t, err)
}

func TestRun_NoCredentials(t *testing.T) {
	_, err := New(Config{}).Run(context.Background(), "127.0.0.1", "show version")
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestRun_ContextCancelled(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	host, port := startServer(t, func(string) string {
		<-release
		return ""
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	c := New(Config{Username: "admin", Password: "secret", Port: port, Timeout: 5 * time.Second})
	_, err := c.Run(ctx, host, "show cdp neighbors")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
