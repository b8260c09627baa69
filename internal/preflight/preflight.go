// Package preflight checks that everything a run talks to is reachable before starting it
package preflight

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/threefoldtech/shipgate/internal/config"
	"github.com/threefoldtech/shipgate/internal/sonar"
	"golang.org/x/sync/errgroup"
)

// Probe is a single check
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

// Result of a probe
type Result struct {
	Name     string
	Err      error
	Duration time.Duration
}

// StatusClient reads the server status
type StatusClient interface {
	Status(ctx context.Context) (sonar.SystemStatus, error)
}

// Probes returns the checks for conf
func Probes(conf config.Config, client StatusClient, dialTimeout time.Duration) []Probe {
	return []Probe{
		{Name: "scanner", Check: func(ctx context.Context) error {
			if _, err := exec.LookPath(conf.Scanner.Binary); err != nil {
				return errors.Wrapf(err, "scanner binary %s not found", conf.Scanner.Binary)
			}
			return nil
		}},
		{Name: "sonar", Check: func(ctx context.Context) error {
			status, err := client.Status(ctx)
			if err != nil {
				return err
			}
			if status.Status != "UP" {
				return errors.Errorf("server %s is %s", conf.Scanner.HostURL, status.Status)
			}
			return nil
		}},
		{Name: "ssh", Check: func(ctx context.Context) error {
			addr := net.JoinHostPort(conf.Deploy.Host, fmt.Sprint(conf.Deploy.Port))
			dialer := net.Dialer{Timeout: dialTimeout}
			conn, err := dialer.DialContext(ctx, "tcp", addr)
			if err != nil {
				return errors.Wrapf(err, "%s is not reachable", addr)
			}
			return conn.Close()
		}},
	}
}

// Run runs every probe concurrently and returns all results in probe order,
// the error aggregates the failed probes. A failing probe does not cancel the others.
func Run(ctx context.Context, probes []Probe) ([]Result, error) {
	results := make([]Result, len(probes))

	var (
		mu     sync.Mutex
		failed *multierror.Error
		g      errgroup.Group
	)

	for i, probe := range probes {
		i, probe := i, probe
		g.Go(func() error {
			start := time.Now()
			err := probe.Check(ctx)
			results[i] = Result{Name: probe.Name, Err: err, Duration: time.Since(start)}
			if err == nil {
				return nil
			}

			err = errors.Wrap(err, probe.Name)
			mu.Lock()
			failed = multierror.Append(failed, err)
			mu.Unlock()
			return err
		})
	}

	if err := g.Wait(); err == nil {
		return results, nil
	}
	return results, failed.ErrorOrNil()
}
