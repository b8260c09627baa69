package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/threefoldtech/shipgate/internal/config"
	"github.com/threefoldtech/shipgate/internal/sonar"
)

func sonarServer(t *testing.T, status string) *sonar.Client {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"id":"147B411E","version":"10.4.1","status":%q}`, status)
	}))
	t.Cleanup(srv.Close)
	return sonar.NewClient(srv.URL, "")
}

func sshListener(t *testing.T) (string, uint) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = ln.Close()
	})

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()

	host, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return host, uint(p)
}

func TestProbes(t *testing.T) {
	host, port := sshListener(t)

	conf := config.Default()
	// sh exists on every test machine
	conf.Scanner.Binary = "sh"
	conf.Deploy.Host = host
	conf.Deploy.Port = port

	t.Run("all reachable", func(t *testing.T) {
		results, err := Run(context.Background(), Probes(conf, sonarServer(t, "UP"), time.Second))
		require.NoError(t, err)
		require.Len(t, results, 3)

		assert.Equal(t, "scanner", results[0].Name)
		assert.Equal(t, "sonar", results[1].Name)
		assert.Equal(t, "ssh", results[2].Name)
		for _, result := range results {
			assert.NoError(t, result.Err)
		}
	})

	t.Run("every failure is reported", func(t *testing.T) {
		broken := conf
		broken.Scanner.Binary = "shipgate-missing-scanner"

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		closedPort := ln.Addr().(*net.TCPAddr).Port
		require.NoError(t, ln.Close())
		broken.Deploy.Port = uint(closedPort)

		results, err := Run(context.Background(), Probes(broken, sonarServer(t, "STARTING"), time.Second))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "scanner")
		assert.Contains(t, err.Error(), "STARTING")
		assert.Contains(t, err.Error(), "not reachable")

		for _, result := range results {
			assert.Error(t, result.Err, result.Name)
		}
	})
}

func TestRunFailureDoesNotCancel(t *testing.T) {
	probes := []Probe{
		{Name: "fast", Check: func(ctx context.Context) error {
			return errors.New("refused")
		}},
		{Name: "slow", Check: func(ctx context.Context) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(50 * time.Millisecond):
				return nil
			}
		}},
	}

	results, err := Run(context.Background(), probes)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fast: refused")

	require.Len(t, results, 2)
	assert.Error(t, results[0].Err)
	assert.NoError(t, results[1].Err)
}
