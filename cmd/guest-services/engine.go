package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nhle/guest-services/internal/credential"
	"github.com/nhle/guest-services/internal/logging"
	"github.com/nhle/guest-services/internal/model"
	"github.com/nhle/guest-services/internal/realtime"
	"github.com/nhle/guest-services/internal/remote"
	"github.com/nhle/guest-services/internal/session"
	"github.com/nhle/guest-services/internal/store"
	"github.com/nhle/guest-services/internal/watermark"
)

// engine owns every resource behind one session.
type engine struct {
	cfg        *model.AppConfig
	logger     logging.Logger
	session    *session.Session
	sqlite     *store.SQLiteStore
	subscriber realtime.Subscriber
	closers    []func() error
}

// openEngine validates c and opens the backend, the push transport and the
// watermark file for c.Viewer. The caller must Close the engine.
func openEngine(c *model.AppConfig) (*engine, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger, closeLog := logging.New(c.Log)
	e := &engine{cfg: c, logger: logger, closers: []func() error{closeLog}}
	if err := e.open(); err != nil {
		_ = e.Close()
		return nil, err
	}
	return e, nil
}

func (e *engine) open() error {
	c := e.cfg

	backend, err := e.openBackend()
	if err != nil {
		return err
	}
	if e.subscriber, err = e.openTransport(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(c.Watermarks.Path), 0o755); err != nil {
		return fmt.Errorf("creating watermark directory: %w", err)
	}
	kv, err := watermark.OpenBoltKV(c.Watermarks.Path)
	if err != nil {
		return err
	}
	e.closers = append(e.closers, kv.Close)

	e.session, err = session.New(session.Options{
		Viewer:        c.Viewer,
		Backend:       backend,
		KV:            kv,
		Subscriber:    e.subscriber,
		PollInterval:  c.Realtime.PollInterval(),
		BackoffMin:    time.Duration(c.Realtime.BackoffMinMs) * time.Millisecond,
		BackoffMax:    time.Duration(c.Realtime.BackoffMaxSec) * time.Second,
		RefreshPerSec: c.Realtime.RefreshPerSec,
		BadgeCap:      c.Display.BadgeCap,
		Logger:        e.logger,
	})
	if err != nil {
		return err
	}
	e.closers = append(e.closers, e.session.Close)
	return nil
}

func (e *engine) openBackend() (store.Backend, error) {
	switch e.cfg.Backend.Driver {
	case model.BackendREST:
		key, err := credential.Lookup(credential.KeyBackendAPIKey)
		if err != nil {
			e.logger.Warn("no backend api key", "err", err)
		}
		return remote.NewClient(e.cfg.Backend.URL, key), nil

	default:
		path := e.cfg.Backend.Path
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		s, err := store.NewSQLiteStore(path)
		if err != nil {
			return nil, err
		}
		e.sqlite = s
		e.closers = append(e.closers, s.Close)
		return s, nil
	}
}

// openTransport builds the push subscriber. A local sqlite backend also
// publishes its own writes on the same transport.
func (e *engine) openTransport() (realtime.Subscriber, error) {
	rt := e.cfg.Realtime
	log := e.logger.With("transport", rt.Transport)

	switch rt.Transport {
	case model.TransportHub:
		hub := realtime.NewHub()
		if e.sqlite != nil {
			e.sqlite.SetNotifier(hub)
		}
		return hub, nil

	case model.TransportRedis:
		password, err := credential.Lookup(credential.KeyRedisPassword)
		if err != nil {
			log.Warn("no redis password", "err", err)
		}
		client := realtime.NewRedisClient(realtime.RedisOptions{
			Addr:     rt.RedisAddr,
			Password: password,
			DB:       rt.RedisDB,
			Prefix:   rt.RedisPrefix,
		})
		e.closers = append(e.closers, client.Close)
		if e.sqlite != nil {
			e.sqlite.SetNotifier(realtime.NewRedisPublisher(client, rt.RedisPrefix, log))
		}
		return realtime.NewRedisSubscriber(client, rt.RedisPrefix, log), nil

	case model.TransportWebsocket:
		key, err := credential.Lookup(credential.KeyBackendAPIKey)
		if err != nil {
			log.Warn("no websocket api key", "err", err)
		}
		return realtime.NewWebsocketSubscriber(rt.WebsocketURL,
			realtime.WithAPIKey(key),
			realtime.WithWebsocketLogger(log),
		), nil
	}

	return nil, nil
}

// Close releases resources in reverse order of acquisition.
func (e *engine) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}
