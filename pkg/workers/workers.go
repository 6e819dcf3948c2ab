// Package workers runs child processes that contribute to the parent's
// lineage through the shared region.
//
// Children inherit the region location through their environment. Each
// child wraps its units of work in Unit, which scopes the bookkeeping and
// flushes the unit's inputs to the region. Pool.Run merges the region back
// into the parent once every child has exited.
package workers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"golang.org/x/sync/errgroup"

	"github.com/albertocavalcante/lineage/internal/log"
)

// Parent is the side of a Manifest the pool needs.
type Parent interface {
	Environ() []string
	ParentFlush() error
}

// Scope is the side of a Manifest a unit of work needs.
type Scope interface {
	EnterScope()
	ExitScope() error
	ChildFlush() error
}

// Pool supervises child processes.
type Pool struct {
	parent Parent
	limit  int
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	env    []string
}

// Option configures a Pool.
type Option func(*Pool)

// WithLimit bounds the number of children running at once.
func WithLimit(n int) Option {
	return func(p *Pool) {
		p.limit = n
	}
}

// WithStdio connects children to the given streams. Defaults to the
// parent's standard streams.
func WithStdio(stdin io.Reader, stdout, stderr io.Writer) Option {
	return func(p *Pool) {
		p.stdin = stdin
		p.stdout = stdout
		p.stderr = stderr
	}
}

// WithEnv adds environment entries to every child.
func WithEnv(env ...string) Option {
	return func(p *Pool) {
		p.env = append(p.env, env...)
	}
}

// New creates a Pool whose children join parent's region.
func New(parent Parent, opts ...Option) *Pool {
	p := &Pool{
		parent: parent,
		limit:  -1,
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Command prepares a child process that inherits the region.
func (p *Pool) Command(ctx context.Context, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = p.Environ()
	cmd.Stdin = p.stdin
	cmd.Stdout = p.stdout
	cmd.Stderr = p.stderr
	return cmd
}

// Environ returns the environment given to children.
func (p *Pool) Environ() []string {
	env := os.Environ()
	env = append(env, p.env...)
	return append(env, p.parent.Environ()...)
}

// Run starts cmds, waits for all of them and merges their inputs into the
// parent. The merge happens even when a child fails.
func (p *Pool) Run(ctx context.Context, cmds ...*exec.Cmd) error {
	logger := log.Component("workers")

	var g errgroup.Group
	g.SetLimit(p.limit)
	for _, cmd := range cmds {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			logger.Debug("starting worker", "cmd", cmd.String())
			if err := cmd.Run(); err != nil {
				return fmt.Errorf("worker %s: %w", cmd.Path, err)
			}
			return nil
		})
	}
	runErr := g.Wait()

	flushErr := p.parent.ParentFlush()
	if flushErr != nil {
		logger.Warn("failed to merge worker inputs", "error", flushErr)
	}
	return errors.Join(runErr, flushErr)
}

// Unit runs fn as one unit of work: the manifest state is scoped around it
// and the inputs it recorded are flushed to the shared region before the
// scope is restored.
func Unit(s Scope, fn func() error) error {
	s.EnterScope()
	err := fn()
	flushErr := s.ChildFlush()
	exitErr := s.ExitScope()
	return errors.Join(err, flushErr, exitErr)
}
