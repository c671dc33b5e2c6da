package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/samuelfneumann/distlearn/actor"
	"github.com/samuelfneumann/distlearn/checkpointer"
	"github.com/samuelfneumann/distlearn/config"
	"github.com/samuelfneumann/distlearn/manager"
	"github.com/samuelfneumann/distlearn/messaging"
	"github.com/samuelfneumann/distlearn/observability"
	"github.com/samuelfneumann/distlearn/server"
)

// runtime holds what every process needs besides its own components
type runtime struct {
	config   config.Config
	logger   *observability.Logger
	registry *prometheus.Registry
	metrics  *observability.Metrics
}

// withRuntime loads the configuration, sets up logging, metrics and
// tracing, runs fn and tears everything down again
func withRuntime(ctx context.Context, configPath, service string,
	fn func(context.Context, *runtime) error) (err error) {
	c, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, closer, err := observability.NewLogger(c.Logging)
	if err != nil {
		return err
	}
	defer closer.Close()

	shutdown, err := observability.SetupTracing(ctx, service, c.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		if serr := shutdown(context.WithoutCancel(ctx)); serr != nil {
			err = errors.Join(err, serr)
		}
	}()

	r := &runtime{config: c, logger: logger.With("service", service)}
	if c.Metrics.Enabled {
		r.registry = prometheus.NewRegistry()
		r.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		r.metrics = observability.NewMetrics(r.registry)
	}
	return fn(ctx, r)
}

func (r *runtime) serverOptions() []messaging.ServerOption {
	opts := []messaging.ServerOption{messaging.WithServerLogger(r.logger)}
	if r.registry != nil {
		opts = append(opts, messaging.WithGatherer(r.registry))
	}
	return opts
}

// localManager builds a Local manager over fresh policies
func (r *runtime) localManager() (*manager.Local, error) {
	policies, err := r.config.BuildPolicies()
	if err != nil {
		return nil, err
	}
	opts := append(r.config.ManagerOptions(),
		manager.WithLogger(r.logger), manager.WithMetrics(r.metrics))
	return manager.NewLocal(policies, opts...)
}

// authority builds the policy authority over the configured manager
func (r *runtime) authority(ctx context.Context, numActors int) (*server.Server,
	error) {
	var m manager.Manager
	switch r.config.Server.Manager {
	case config.ManagerRemote:
		proxy, err := r.config.Proxy(messaging.RoleAuthority, r.logger)
		if err != nil {
			return nil, err
		}
		if m, err = manager.NewRemote(ctx, proxy); err != nil {
			return nil, err
		}
	default:
		local, err := r.localManager()
		if err != nil {
			return nil, err
		}
		m = local
	}

	opts := []server.Option{
		server.WithNumActors(numActors),
		server.WithMaxLag(r.config.Server.MaxLag),
		server.WithLogger(r.logger),
		server.WithMetrics(r.metrics),
	}
	ckpt, err := r.config.BuildCheckpointer()
	if err != nil {
		return nil, err
	}
	if ckpt != nil {
		opts = append(opts, server.WithCheckpointer(ckpt))
	}
	return server.New(ctx, m, opts...)
}

// newActor builds the actor with index i speaking through proxy
func (r *runtime) newActor(i int, proxy messaging.Proxy,
	c actor.Config) (*actor.Actor, error) {
	env, err := r.config.BuildEnv(uint64(i))
	if err != nil {
		return nil, err
	}
	evalEnv, err := r.config.BuildEnv(uint64(i) + 1<<32)
	if err != nil {
		return nil, err
	}
	agents, err := r.config.BuildAgents()
	if err != nil {
		return nil, err
	}
	return actor.New(c, env, agents, proxy, actor.WithEvalEnv(evalEnv),
		actor.WithLogger(r.logger), actor.WithMetrics(r.metrics))
}

func runServer(ctx context.Context, r *runtime) error {
	srv, err := r.authority(ctx, r.config.Server.NumActors)
	if err != nil {
		return err
	}
	http := messaging.NewHTTPServer(messaging.RoleAuthority,
		r.config.ListenAddr(messaging.RoleAuthority), srv, r.serverOptions()...)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-srv.Done():
			r.logger.Info("every actor finished", "version", srv.Version())
			cancel()
		case <-ctx.Done():
		}
	}()
	return http.Run(ctx)
}

func runPolicyHost(ctx context.Context, r *runtime) error {
	m, err := r.localManager()
	if err != nil {
		return err
	}
	host := manager.NewHost(m, r.logger)
	http := messaging.NewHTTPServer(messaging.RolePolicyHost,
		r.config.ListenAddr(messaging.RolePolicyHost), host,
		r.serverOptions()...)
	return http.Run(ctx)
}

func runActor(ctx context.Context, r *runtime, i int) error {
	proxy, err := r.config.Proxy(messaging.ActorName(i), r.logger)
	if err != nil {
		return err
	}
	a, err := r.newActor(i, proxy, r.config.Actor)
	if err != nil {
		return err
	}
	return a.Run(ctx)
}

// runLocal runs the authority and n actors over an in-process hub
func runLocal(ctx context.Context, r *runtime, n int) error {
	if n < 1 {
		return fmt.Errorf("local: number of actors must be >= 1, have %v", n)
	}

	hub := messaging.NewHub(r.logger)
	defer hub.Close()

	srv, err := r.authority(ctx, n)
	if err != nil {
		return err
	}
	if err := hub.Register(messaging.RoleAuthority, srv); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		c := r.config.Actor
		if c.ReturnsFile != "" && n > 1 {
			c.ReturnsFile = fmt.Sprintf("%v.%v", c.ReturnsFile, i)
		}
		a, err := r.newActor(i, hub.Proxy(messaging.ActorName(i),
			r.config.Transport.Timeout), c)
		if err != nil {
			return err
		}
		g.Go(func() error {
			return a.Run(ctx)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := hub.Close(); err != nil {
		return err
	}
	r.logger.Info("local run finished", "actors", n, "version", srv.Version(),
		"finished", srv.Finished())
	return nil
}

// printCheckpoint writes a checkpoint to w as indented JSON
func printCheckpoint(w io.Writer, filename string) error {
	c, err := checkpointer.Load(filename)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}
