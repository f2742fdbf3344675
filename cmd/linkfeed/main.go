package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nhle/linkfeed/internal/credential"
	"github.com/nhle/linkfeed/internal/feed"
	"github.com/nhle/linkfeed/internal/httpapi"
	"github.com/nhle/linkfeed/internal/logger"
	"github.com/nhle/linkfeed/internal/mailbox"
	"github.com/nhle/linkfeed/internal/model"
	"github.com/nhle/linkfeed/internal/poller"
	"github.com/nhle/linkfeed/internal/preview"
	"github.com/nhle/linkfeed/internal/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", model.DefaultConfigPath(), "path to config file")
	mode := flag.String("mode", "all", "poll, serve, all, resolve, purge, set-password, forget-password or init-config")
	rawURL := flag.String("url", "", "link to resolve in resolve mode")
	sender := flag.String("sender", "", "sender whose records purge removes")
	flag.Parse()

	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg, err := model.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *configPath, *mode, *rawURL, *sender, log); err != nil {
		log.Error("linkfeed exited with error", zap.String("mode", *mode), zap.Error(err))
		stop()
		_ = log.Sync()
		os.Exit(1)
	}
}

func run(
	ctx context.Context,
	cfg *model.AppConfig,
	configPath, mode, rawURL, sender string,
	log *zap.Logger,
) error {
	switch mode {
	case "init-config":
		if err := model.SaveConfig(configPath, cfg); err != nil {
			return err
		}
		fmt.Println("Wrote", configPath)
		return nil
	case "set-password":
		return setPassword(cfg)
	case "forget-password":
		vault, err := credential.Open()
		if err != nil {
			return err
		}
		return vault.DeleteMailboxPassword(cfg.Mailbox.Username)
	case "resolve":
		return resolveOne(ctx, cfg, rawURL, log)
	case "purge":
		return purge(ctx, cfg, sender, log)
	case "poll", "serve", "all":
		return serve(ctx, cfg, mode, log)
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
}

// setPassword reads a password from stdin and stores it in the keyring.
func setPassword(cfg *model.AppConfig) error {
	if cfg.Mailbox.Username == "" {
		return errors.New("mailbox.username must be set before storing a password")
	}
	fmt.Fprintf(os.Stderr, "Password for %s: ", cfg.Mailbox.Username)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("reading password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return errors.New("empty password")
	}
	vault, err := credential.Open()
	if err != nil {
		return err
	}
	return vault.SetMailboxPassword(cfg.Mailbox.Username, password)
}

func resolveOne(ctx context.Context, cfg *model.AppConfig, rawURL string, log *zap.Logger) error {
	if rawURL == "" {
		return errors.New("-url is required in resolve mode")
	}
	resolver := preview.NewResolver(preview.OptionsFrom(cfg.Preview), log)
	lp := resolver.Resolve(ctx, rawURL)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{"url": rawURL, "preview": lp})
}

func purge(ctx context.Context, cfg *model.AppConfig, sender string, log *zap.Logger) error {
	if sender == "" {
		return errors.New("-sender is required in purge mode")
	}
	st, err := store.Open(ctx, cfg.Database.URL, log)
	if err != nil {
		return err
	}
	defer st.Close()

	n, err := st.DeleteRecordsBySender(ctx, sender)
	if err != nil {
		return err
	}
	log.Info("purged records", zap.String("sender", sender), zap.Int64("deleted", n))
	return nil
}

// serve runs the poller, the HTTP read path, or both until ctx ends.
func serve(ctx context.Context, cfg *model.AppConfig, mode string, log *zap.Logger) error {
	runPoller := mode == "poll" || mode == "all"
	runServer := mode == "serve" || mode == "all"

	if runPoller {
		if err := fillPassword(cfg, log); err != nil {
			return err
		}
		if err := cfg.ValidateMailbox(); err != nil {
			return err
		}
	}

	st, err := store.Open(ctx, cfg.Database.URL, log)
	if err != nil {
		return err
	}
	defer st.Close()

	g, gctx := errgroup.WithContext(ctx)

	var pl *poller.Poller
	if runPoller {
		client := mailbox.NewIMAPClient(
			cfg.Mailbox.Host, cfg.Mailbox.Port,
			cfg.Mailbox.Username, cfg.Mailbox.Password,
			cfg.Mailbox.TLS, cfg.Mailbox.Folder,
		)
		pl = poller.New(poller.FromIMAP(client), st, poller.ConfigFrom(cfg.Mailbox), log)
		log.Info("starting poller",
			zap.String("addr", client.Addr()),
			zap.String("folder", cfg.Mailbox.Folder),
			zap.Duration("interval", cfg.Mailbox.PollInterval()))
		g.Go(func() error { return pl.Run(gctx) })
	}

	if runServer {
		resolver := preview.NewResolver(preview.OptionsFrom(cfg.Preview), log)
		deps := httpapi.Deps{
			Feed:     feed.NewService(st, resolver, cfg.Server.FeedPageLimitMax, log),
			Previews: resolver,
			Store:    st,
			Logger:   log,
		}
		if pl != nil {
			deps.Poller = pl
		}

		srv := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           httpapi.NewRouter(deps),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			log.Info("http server listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	log.Info("linkfeed stopped", zap.String("mode", mode))
	return err
}

// fillPassword falls back to the keyring when no password is configured.
func fillPassword(cfg *model.AppConfig, log *zap.Logger) error {
	if cfg.Mailbox.Password != "" || cfg.Mailbox.Username == "" {
		return nil
	}
	vault, err := credential.Open()
	if err != nil {
		return err
	}
	password, err := vault.MailboxPassword(cfg.Mailbox.Username)
	if err != nil {
		return fmt.Errorf("no mailbox password configured and keyring lookup failed: %w", err)
	}
	log.Debug("mailbox password loaded from keyring", zap.String("username", cfg.Mailbox.Username))
	cfg.Mailbox.Password = password
	return nil
}
