package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"go.uber.org/zap"

	"github.com/6over3/webplatform"
	"github.com/6over3/webplatform/bridge"
	"github.com/6over3/webplatform/host/cdphost"
	"github.com/6over3/webplatform/host/gojahost"
	"github.com/6over3/webplatform/internal/config"
	"github.com/6over3/webplatform/internal/logging"
	"github.com/6over3/webplatform/internal/tracing"
)

// env is the process-wide state every command builds from its config.
type env struct {
	cfg      *config.Config
	logger   *zap.Logger
	shutdown tracing.Shutdown
	rt       *bridge.Runtime
}

func newEnv(ctx context.Context, cfg *config.Config) (*env, error) {
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	shutdown, err := tracing.Setup(ctx, cfg.Trace)
	if err != nil {
		return nil, err
	}
	rt, err := bridge.New(ctx, &bridge.Options{
		InitialPages: cfg.Memory.InitialPages,
		MaxPages:     cfg.Memory.MaxPages,
		ScratchBytes: cfg.Memory.ScratchBytes,
		Logger:       logger,
	})
	if err != nil {
		_ = shutdown(ctx)
		return nil, err
	}
	return &env{cfg: cfg, logger: logger, shutdown: shutdown, rt: rt}, nil
}

func (e *env) close(ctx context.Context) {
	if err := e.rt.Close(); err != nil {
		e.logger.Warn("close runtime", zap.Error(err))
	}
	if err := e.shutdown(ctx); err != nil {
		e.logger.Warn("shutdown tracing", zap.Error(err))
	}
	_ = e.logger.Sync()
}

func (e *env) session(ctx context.Context, host bridge.Host) (*webplatform.Session, error) {
	return webplatform.Init(ctx, e.rt, host,
		webplatform.WithLogger(e.logger),
		webplatform.WithTracer(tracing.Tracer()),
		webplatform.WithFPS(e.cfg.FPS))
}

func (e *env) onAlert(msg string) {
	e.logger.Info("alert", zap.String("message", msg))
}

func readDocument(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}
	return string(b), nil
}

func loadConfig(name string, args []string) (*config.Config, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	path := fs.String("config", "", "path to a YAML config file")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return config.Load(*path)
}

// driver stands in for the user of a host.
type driver interface {
	fire(selector, typ string) error
	setHash(hash string) error
	render() (string, error)
}

type gojaDriver struct{ h *gojahost.Host }

func (d gojaDriver) fire(selector, typ string) error { return d.h.Fire(selector, typ) }
func (d gojaDriver) setHash(hash string) error       { return d.h.SetHash(hash) }
func (d gojaDriver) render() (string, error)         { return d.h.Render() }

type chromeDriver struct {
	ctx context.Context
	h   *cdphost.Host
}

func (d chromeDriver) fire(selector, typ string) error { return d.h.Fire(d.ctx, selector, typ) }
func (d chromeDriver) setHash(hash string) error       { return d.h.SetHash(d.ctx, hash) }
func (d chromeDriver) render() (string, error)         { return d.h.Render(d.ctx) }

func runCmd(args []string, stdout io.Writer) error {
	cfg, err := loadConfig("run", args)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	e, err := newEnv(ctx, cfg)
	if err != nil {
		return err
	}
	defer e.close(context.Background())

	doc, err := readDocument(cfg.Document)
	if err != nil {
		return err
	}

	var (
		host   bridge.Host
		d      driver
		settle uint64
	)
	switch cfg.Host {
	case config.HostChrome:
		h, err := cdphost.New(ctx, e.rt, cdphost.Options{
			RemoteURL: cfg.Chrome.RemoteURL,
			Headless:  cfg.Chrome.Headless,
			Timeout:   cfg.Chrome.Timeout,
			URL:       cfg.URL,
			HTML:      doc,
			Logger:    e.logger,
			OnAlert:   e.onAlert,
		})
		if err != nil {
			return err
		}
		defer h.Close()
		if cfg.Hash != "" {
			if err := h.SetHash(ctx, cfg.Hash); err != nil {
				return err
			}
		}
		host, d = h, chromeDriver{ctx: ctx, h: h}
		// Browser events arrive asynchronously, so give them half a second
		// of ticks before pausing.
		settle = uint64(max(cfg.FPS/2, 1))
	default:
		h, err := gojahost.New(e.rt, gojahost.Options{
			HTML:    doc,
			Hash:    cfg.Hash,
			Logger:  e.logger,
			OnAlert: e.onAlert,
		})
		if err != nil {
			return err
		}
		host, d = h, gojaDriver{h: h}
	}

	s, err := e.session(ctx, host)
	if err != nil {
		return err
	}
	if _, err := mountApp(s, e.logger); err != nil {
		return fmt.Errorf("mount app: %w", err)
	}

	var replayErr error
	var done uint64
	s.OnTick(func() {
		if s.Ticks() == 1 {
			replayErr = replay(s, d, cfg.Events)
			done = s.Ticks()
		}
		if replayErr != nil || s.Ticks() >= done+settle {
			s.Pause()
		}
	})
	if err := s.Spin(); err != nil {
		return err
	}
	if replayErr != nil {
		return replayErr
	}

	out, err := d.render()
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, out)
	return nil
}

// replay plays scripted events in order. An event with a value first sets
// the element's value property; a hashchange at the window sets the hash to
// the value.
func replay(s *webplatform.Session, d driver, events []config.EventConfig) error {
	for i, ev := range events {
		if ev.Selector == "window" {
			if ev.Type != "hashchange" {
				return fmt.Errorf("events[%d]: only hashchange can target the window", i)
			}
			if err := d.setHash(ev.Value); err != nil {
				return fmt.Errorf("events[%d]: %w", i, err)
			}
			continue
		}
		if ev.Value != "" {
			n, ok, err := s.Query(ev.Selector)
			if err != nil {
				return fmt.Errorf("events[%d]: %w", i, err)
			}
			if !ok {
				return fmt.Errorf("events[%d]: no element matches %q", i, ev.Selector)
			}
			if err := n.SetProp("value", ev.Value); err != nil {
				return fmt.Errorf("events[%d]: %w", i, err)
			}
		}
		if err := d.fire(ev.Selector, ev.Type); err != nil {
			return fmt.Errorf("events[%d]: %w", i, err)
		}
	}
	return nil
}
