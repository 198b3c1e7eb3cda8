package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/typescope/controller"
	"github.com/hazyhaar/typescope/endpoints"
	"github.com/hazyhaar/typescope/httpapi"
	"github.com/hazyhaar/typescope/inspector"
	"github.com/hazyhaar/typescope/internal/browser"
	"github.com/hazyhaar/typescope/internal/clipboard"
	"github.com/hazyhaar/typescope/internal/pageurl"
	"github.com/hazyhaar/typescope/kit"
	"github.com/hazyhaar/typescope/mcpquic"
	"github.com/hazyhaar/typescope/mcptools"
	"github.com/hazyhaar/typescope/page/rodhost"
	"github.com/hazyhaar/typescope/supervisor"
)

var (
	serveHTTP    string
	serveStdio   bool
	serveQUIC    string
	serveInspect bool
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve <url>",
		Short: "Open a page in Chrome and expose the typescope tools over HTTP and MCP",
		Args:  cobra.ExactArgs(1),
		RunE:  runServeCmd,
	}
	cmd.Flags().StringVar(&serveHTTP, "http", "", "HTTP listen address, \"off\" to disable (default from config)")
	cmd.Flags().BoolVar(&serveStdio, "mcp-stdio", false, "serve MCP on stdin/stdout; exit when the client leaves")
	cmd.Flags().StringVar(&serveQUIC, "mcp-quic", "", "serve MCP over QUIC on this address")
	cmd.Flags().BoolVar(&serveInspect, "inspect", false, "enable the hover inspector once the page is loaded")
	return cmd
}

func newBrowserManager() *browser.Manager {
	b := cfg.Browser
	return browser.NewManager(browser.Config{
		RemoteURL:        b.Remote,
		Bin:              b.Bin,
		Headless:         b.Headless,
		Stealth:          b.Stealth,
		ResourceBlocking: b.ResourceBlocking,
		NavigateTimeout:  b.NavigateTimeout,
		ViewportWidth:    b.ViewportWidth,
		ViewportHeight:   b.ViewportHeight,
		RecycleInterval:  b.RecycleInterval,
		MemoryLimit:      b.MemoryLimit,
		Logger:           logger,
	})
}

func newClipboard() inspector.Clipboard {
	if cfg.Session.Clipboard {
		return clipboard.System{}
	}
	return &clipboard.Memory{}
}

// session is the page currently served. Chrome recycles replace it.
type session struct {
	mu   sync.RWMutex
	ctrl *controller.Controller
	set  *endpoints.Set
}

func (s *session) swap(c *controller.Controller, set *endpoints.Set) {
	s.mu.Lock()
	s.ctrl, s.set = c, set
	s.mu.Unlock()
}

// ForceCleanup implements supervisor.Cleaner for whichever controller is live.
func (s *session) ForceCleanup(ctx context.Context) error {
	s.mu.RLock()
	c := s.ctrl
	s.mu.RUnlock()
	if c == nil {
		return nil
	}
	return c.ForceCleanup(ctx)
}

// endpoints returns a Set that forwards to the live session.
func (s *session) endpoints() endpoints.Set {
	pick := func(f func(endpoints.Set) kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			s.mu.RLock()
			set := s.set
			s.mu.RUnlock()
			if set == nil {
				return nil, controller.ErrClosed
			}
			return f(*set)(ctx, req)
		}
	}
	return endpoints.Set{
		Detect:    pick(func(x endpoints.Set) kit.Endpoint { return x.Detect }),
		Highlight: pick(func(x endpoints.Set) kit.Endpoint { return x.Highlight }),
		Scroll:    pick(func(x endpoints.Set) kit.Endpoint { return x.Scroll }),
		Jump:      pick(func(x endpoints.Set) kit.Endpoint { return x.Jump }),
		Styles:    pick(func(x endpoints.Set) kit.Endpoint { return x.Styles }),
		Inspector: pick(func(x endpoints.Set) kit.Endpoint { return x.Inspector }),
		Freeze:    pick(func(x endpoints.Set) kit.Endpoint { return x.Freeze }),
		Cleanup:   pick(func(x endpoints.Set) kit.Endpoint { return x.Cleanup }),
		State:     pick(func(x endpoints.Set) kit.Endpoint { return x.State }),
	}
}

func runServeCmd(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	target, err := pageurl.Normalize(args[0])
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("http") {
		cfg.Serve.HTTPAddr = serveHTTP
	}
	if serveStdio {
		cfg.Serve.MCPStdio = true
	}
	if serveQUIC != "" {
		cfg.Serve.MCPQUICAddr = serveQUIC
	}

	audit, closeAudit, err := openAudit(ctx)
	if err != nil {
		return err
	}
	defer closeAudit()

	mgr := newBrowserManager()
	if _, err := mgr.Start(ctx); err != nil {
		return err
	}
	defer mgr.Close()
	recycled := make(chan struct{}, 1)
	mgr.OnRecycle(func(*rod.Browser) {
		select {
		case recycled <- struct{}{}:
		default:
		}
	})

	cur := &session{}
	set := cur.endpoints()
	errc := make(chan error, 3)

	var httpSrv *http.Server
	if addr := cfg.Serve.HTTPAddr; addr != "" && addr != "off" {
		httpSrv = &http.Server{Addr: addr, Handler: httpapi.NewRouter(set, logger), ReadHeaderTimeout: 10 * time.Second}
		go func() {
			logger.Info("typescope: http listening", "addr", addr)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- fmt.Errorf("http: %w", err)
			}
		}()
	}

	mcpSrv := mcp.NewServer(&mcp.Implementation{Name: "typescope", Version: "1.0.0"}, nil)
	mcptools.Register(mcpSrv, set)

	if addr := cfg.Serve.MCPQUICAddr; addr != "" {
		var tlsCfg *tls.Config
		if cfg.Serve.TLSCert != "" && cfg.Serve.TLSKey != "" {
			tlsCfg, err = mcpquic.ServerTLSConfig(cfg.Serve.TLSCert, cfg.Serve.TLSKey)
		} else {
			tlsCfg, err = mcpquic.SelfSignedTLSConfig()
		}
		if err != nil {
			return err
		}
		ql, err := mcpquic.NewListener(addr, tlsCfg, mcpSrv, logger,
			mcpquic.WithDisconnectHook(func(string) { supervisor.OnDisconnect(cur, logger) }))
		if err != nil {
			return fmt.Errorf("mcp quic: %w", err)
		}
		defer ql.Close()
		go func() {
			if err := ql.Serve(ctx); err != nil && ctx.Err() == nil {
				errc <- fmt.Errorf("mcp quic: %w", err)
			}
		}()
	}

	if cfg.Serve.MCPStdio {
		go func() {
			err := mcpSrv.Run(ctx, &mcp.StdioTransport{})
			supervisor.OnDisconnect(cur, logger)
			if err != nil && ctx.Err() == nil {
				logger.Info("typescope: mcp stdio ended", "error", err)
			}
			cancel()
		}()
	}

	go func() {
		errc <- runSessions(ctx, mgr, cur, audit, target, recycled)
	}()

	select {
	case <-ctx.Done():
	case err = <-errc:
	}
	cancel()
	if httpSrv != nil {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		httpSrv.Shutdown(sctx)
		scancel()
	}
	return err
}

// runSessions opens target and serves it until ctx is done, reopening it
// on a fresh controller whenever Chrome is recycled.
func runSessions(ctx context.Context, mgr *browser.Manager, cur *session, audit endpoints.Auditor, target string, recycled <-chan struct{}) error {
	for {
		tab, err := mgr.OpenTab(ctx, target)
		if err != nil {
			return errors.New(endpoints.UserMessage(err))
		}
		host := rodhost.New(tab.Page, rodhost.WithLogger(logger))
		c := controller.New(host,
			controller.WithLogger(logger),
			controller.WithClipboard(newClipboard()),
			controller.WithCleanupTimeout(cfg.Session.CleanupTimeout))
		set := endpoints.New(c, endpoints.Options{Logger: logger, Audit: audit, PageURL: host.URL})
		cur.swap(c, &set)

		sctx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			c.Run(sctx)
			close(done)
		}()
		go supervisor.Watch(sctx, host, c, logger)

		if serveInspect {
			if err := c.EnableInspector(sctx); err != nil {
				logger.Warn("typescope: enable inspector", "error", err)
			}
		}
		logger.Info("typescope: serving", "url", target)

		var again bool
		select {
		case <-ctx.Done():
		case <-recycled:
			logger.Info("typescope: chrome recycled, reopening page", "url", target)
			again = true
		}
		cancel()
		<-done
		cur.swap(nil, nil)
		tab.Close()
		if !again {
			return nil
		}
	}
}
