/*
Copyright 2024 Derrick J. Wippler

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/duh-rpc/duh-go"
	"github.com/kapetan-io/entityqueue"
	"github.com/kapetan-io/entityqueue/service"
	"github.com/kapetan-io/entityqueue/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Daemon struct {
	service  *service.Service
	client   *entityqueue.Client
	servers  []*http.Server
	wg       sync.WaitGroup
	Listener net.Listener
	conf     Config
}

func NewDaemon(ctx context.Context, conf Config) (*Daemon, error) {
	conf.SetDefaults()

	s, err := service.New(ctx, service.Config{
		StorageConfig: conf.StorageConfig,
		DefaultQueues: conf.DefaultQueues,
		DefaultActor:  conf.DefaultActor,
		EntityTypes:   conf.EntityTypes,
		Handlers:      conf.Handlers,
		Version:       conf.Version,
		Cache:         conf.Cache,
		Clock:         conf.Clock,
		Log:           conf.Log,
	})
	if err != nil {
		return nil, err
	}

	conf.Log = conf.Log.With("code.namespace", "Daemon")
	d := &Daemon{
		conf:    conf,
		service: s,
	}
	if err := d.Start(ctx); err != nil {
		_ = d.Shutdown(ctx)
		return nil, err
	}
	return d, nil
}

func (d *Daemon) Start(ctx context.Context) error {
	registry := prometheus.NewRegistry()

	handler := transport.NewHTTPHandler(d.service, promhttp.InstrumentMetricHandler(
		registry, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	), d.conf.MaxRequestSize, d.conf.Log)
	registry.MustRegister(handler)

	if c, ok := d.conf.Cache.(prometheus.Collector); ok {
		registry.MustRegister(c)
	}

	if d.conf.InMemoryListener {
		return d.spawnInMemory(handler)
	}

	if d.conf.ServerTLS() != nil {
		if err := d.spawnHTTPS(ctx, handler); err != nil {
			return err
		}
	} else {
		if err := d.spawnHTTP(ctx, handler); err != nil {
			return err
		}
	}
	return nil
}

func (d *Daemon) Shutdown(ctx context.Context) error {
	if err := d.service.Shutdown(ctx); err != nil {
		return err
	}
	for _, srv := range d.servers {
		d.conf.Log.Info("Shutting down server", "address", srv.Addr)
		_ = srv.Shutdown(ctx)
	}
	d.wg.Wait()
	d.conf.Log.LogAttrs(ctx, slog.LevelDebug, "Shutdown complete")
	d.servers = nil
	return nil
}

func (d *Daemon) Service() *service.Service {
	return d.service
}

func (d *Daemon) MustClient() *entityqueue.Client {
	c, err := d.Client()
	if err != nil {
		panic(fmt.Sprintf("[%s] failed to init daemon client - '%s'", d.conf.ListenAddress, err))
	}
	return c
}

func (d *Daemon) Client() (*entityqueue.Client, error) {
	var err error
	if d.client != nil {
		return d.client, nil
	}

	if d.conf.InMemoryListener {
		d.client, err = entityqueue.NewClient(entityqueue.ClientOptions{
			Endpoint: "http://" + d.Listener.Addr().String(),
			Client: &http.Client{
				Transport: &http.Transport{
					DialContext: d.Listener.(*InMemoryListener).DialContext,
				},
			},
		})
		return d.client, err
	}

	if d.conf.TLS != nil {
		d.client, err = entityqueue.NewClient(entityqueue.WithTLS(d.conf.ClientTLS(), d.Listener.Addr().String()))
		return d.client, err
	}
	d.client, err = entityqueue.NewClient(entityqueue.WithNoTLS(d.Listener.Addr().String()))
	return d.client, err
}

func (d *Daemon) spawnInMemory(h http.Handler) error {
	srv := &http.Server{
		ErrorLog: slog.NewLogLogger(d.conf.Log.Handler(), slog.LevelError),
		Handler:  h,
	}
	d.Listener = NewInMemoryListener()
	srv.Addr = d.Listener.Addr().String()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.conf.Log.Info("In memory listener ready")
		if err := srv.Serve(d.Listener); err != nil {
			if !errors.Is(err, http.ErrServerClosed) {
				d.conf.Log.Error("while serving in memory listener", "error", err)
			}
		}
	}()

	d.servers = append(d.servers, srv)
	return nil
}

func (d *Daemon) spawnHTTPS(ctx context.Context, mux http.Handler) error {
	srv := &http.Server{
		ErrorLog:  slog.NewLogLogger(d.conf.Log.Handler(), slog.LevelError),
		TLSConfig: d.conf.ServerTLS().Clone(),
		Addr:      d.conf.ListenAddress,
		Handler:   mux,
	}

	var err error
	d.Listener, err = net.Listen("tcp", d.conf.ListenAddress)
	if err != nil {
		return fmt.Errorf("while starting HTTPS listener: %w", err)
	}
	srv.Addr = d.Listener.Addr().String()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.conf.Log.Info("HTTPS Listening ...", "address", d.Listener.Addr().String())
		if err := srv.ServeTLS(d.Listener, "", ""); err != nil {
			if !errors.Is(err, http.ErrServerClosed) {
				d.conf.Log.Error("while starting TLS HTTP server", "error", err)
			}
		}
	}()
	d.servers = append(d.servers, srv)

	if err := duh.WaitForConnect(ctx, d.Listener.Addr().String(), d.conf.ClientTLS()); err != nil {
		return err
	}
	return nil
}

func (d *Daemon) spawnHTTP(ctx context.Context, h http.Handler) error {
	srv := &http.Server{
		ErrorLog: slog.NewLogLogger(d.conf.Log.Handler(), slog.LevelError),
		Addr:     d.conf.ListenAddress,
		Handler:  h,
	}
	var err error
	d.Listener, err = net.Listen("tcp", d.conf.ListenAddress)
	if err != nil {
		return fmt.Errorf("while starting HTTP listener: %w", err)
	}
	srv.Addr = d.Listener.Addr().String()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.conf.Log.Info("HTTP Listening ...", "address", d.Listener.Addr().String())
		if err := srv.Serve(d.Listener); err != nil {
			if !errors.Is(err, http.ErrServerClosed) {
				d.conf.Log.Error("while starting HTTP server", "error", err)
			}
		}
	}()
	d.servers = append(d.servers, srv)

	if err := duh.WaitForConnect(ctx, d.Listener.Addr().String(), nil); err != nil {
		return err
	}
	return nil
}
