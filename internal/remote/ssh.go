// Package remote runs deploy commands on the target host over ssh
package remote

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/melbahja/goph"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
	"github.com/threefoldtech/shipgate/internal/logwriter"
	"golang.org/x/crypto/ssh"
)

// ErrHostKey is returned when the host key does not match the known hosts file
var ErrHostKey = errors.New("host key verification failed")

// Options of an ssh connection
type Options struct {
	Host string
	Port uint
	User string
	// IdentityFile is a private key file, the ssh agent is used when empty
	IdentityFile string
	// KnownHosts file, defaults to ~/.ssh/known_hosts
	KnownHosts            string
	InsecureIgnoreHostKey bool
	ConnectRetries        uint64
	RetryInterval         time.Duration
	DialTimeout           time.Duration
}

// ExitError is a remote command that exited non zero
type ExitError struct {
	Command string
	Code    int
	Tail    []string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("remote command %q exited with code %d", e.Command, e.Code)
}

// Client is an open ssh connection
type Client struct {
	client *goph.Client
	logger zerolog.Logger
}

// Dial connects to the host, retrying refused or timed out dials. Host key
// failures are never retried.
func Dial(ctx context.Context, opts Options, logger zerolog.Logger) (*Client, error) {
	auth, err := authMethods(opts.IdentityFile)
	if err != nil {
		return nil, err
	}

	callback, err := hostKeyCallback(opts)
	if err != nil {
		return nil, err
	}

	var hostKeyErr error
	verify := func(host string, remote net.Addr, key ssh.PublicKey) error {
		if err := callback(host, remote, key); err != nil {
			hostKeyErr = errors.Wrapf(ErrHostKey, "%s: %s", host, err)
			return hostKeyErr
		}
		return nil
	}

	if opts.RetryInterval == 0 {
		opts.RetryInterval = 5 * time.Second
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 20 * time.Second
	}

	logger = logger.With().Str("host", opts.Host).Uint("port", opts.Port).Str("user", opts.User).Logger()

	var client *goph.Client
	trial := 1
	backoff := retry.WithMaxRetries(opts.ConnectRetries, retry.NewConstant(opts.RetryInterval))

	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		logger.Debug().Int("trial", trial).Msg("connecting")
		trial++

		conn, err := goph.NewConn(&goph.Config{
			User:     opts.User,
			Addr:     opts.Host,
			Port:     opts.Port,
			Auth:     auth,
			Timeout:  opts.DialTimeout,
			Callback: verify,
		})
		if err == nil {
			client = conn
			return nil
		}
		if hostKeyErr != nil {
			return hostKeyErr
		}

		logger.Info().Err(err).Msg("ssh connection attempt failed, retrying...")
		return retry.RetryableError(err)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to establish ssh connection to %s", net.JoinHostPort(opts.Host, fmt.Sprint(opts.Port)))
	}

	logger.Info().Msg("connected")

	return &Client{
		client: client,
		logger: logger,
	}, nil
}

// Run runs command in a new session and streams its output to the log. The session
// is killed when ctx is done.
func (c *Client) Run(ctx context.Context, command string) error {
	session, err := c.client.NewSession()
	if err != nil {
		return errors.Wrap(err, "couldn't open ssh session")
	}
	defer session.Close()

	logger := c.logger.With().Str("command", command).Logger()
	stdout := logwriter.New(logger, zerolog.InfoLevel, "stdout")
	stderr := logwriter.New(logger, zerolog.WarnLevel, "stderr")
	session.Stdout = stdout
	session.Stderr = stderr

	logger.Info().Msg("running remote command")

	if err := session.Start(command); err != nil {
		return errors.Wrapf(err, "couldn't start %q", command)
	}

	done := make(chan error, 1)
	go func() {
		done <- session.Wait()
	}()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
		return errors.Wrapf(ctx.Err(), "remote command %q interrupted", command)
	case err = <-done:
	}

	stdout.Flush()
	stderr.Flush()

	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{Command: command, Code: exitErr.ExitStatus(), Tail: stderr.Tail()}
	}
	if err != nil {
		return errors.Wrapf(err, "remote command %q failed", command)
	}

	return nil
}

// Close the connection
func (c *Client) Close() error {
	return c.client.Close()
}

func authMethods(identityFile string) (goph.Auth, error) {
	if identityFile == "" {
		auth, err := goph.UseAgent()
		if err != nil {
			return nil, errors.Wrap(err, "couldn't use ssh agent, is SSH_AUTH_SOCK set?")
		}
		return auth, nil
	}

	auth, err := goph.Key(identityFile, "")
	if err != nil {
		return nil, errors.Wrapf(err, "couldn't read identity file %s", identityFile)
	}
	return auth, nil
}

func hostKeyCallback(opts Options) (ssh.HostKeyCallback, error) {
	if opts.InsecureIgnoreHostKey {
		return ssh.InsecureIgnoreHostKey(), nil
	}

	knownHosts := opts.KnownHosts
	if knownHosts == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, errors.Wrap(err, "couldn't find home directory")
		}
		knownHosts = filepath.Join(home, ".ssh", "known_hosts")
	}

	if err := ensureFile(knownHosts); err != nil {
		return nil, err
	}

	return func(host string, remote net.Addr, key ssh.PublicKey) error {
		// hostFound is true for a known host, err is set when its key changed
		hostFound, err := goph.CheckKnownHost(host, remote, key, knownHosts)
		if hostFound && err != nil {
			return err
		}

		if hostFound {
			return nil
		}

		return goph.AddKnownHost(host, remote, key, knownHosts)
	}, nil
}

func ensureFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return errors.Wrapf(err, "couldn't create directory of %s", path)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0600)
	if err != nil {
		return errors.Wrapf(err, "couldn't open known hosts file %s", path)
	}
	return f.Close()
}
