// Command loginguardd is the loginguard engine process: it loads
// configuration, builds the TW and BL/WL stores, starts their expiry
// workers, the webhook dispatch pool, the replication transport, and the
// HTTP façade.
package main

import (
	"context"
	"encoding/hex"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/loginguard/engine/internal/adapter"
	"github.com/loginguard/engine/internal/blwl"
	cfgpkg "github.com/loginguard/engine/internal/config"
	"github.com/loginguard/engine/internal/httpserver"
	"github.com/loginguard/engine/internal/metrics"
	"github.com/loginguard/engine/internal/replication"
	"github.com/loginguard/engine/internal/tw"
	"github.com/loginguard/engine/internal/webhook"
)

var fieldTypeNames = map[string]tw.FieldType{
	"int":              tw.FieldInt,
	"max":              tw.FieldMax,
	"hll":              tw.FieldHLL,
	"countmin":         tw.FieldCountMin,
	"distinct_strings": tw.FieldDistinctStrings,
}

func buildSchema(names map[string]string) map[string]tw.FieldType {
	schema := make(map[string]tw.FieldType, len(names))
	for field, kind := range names {
		if ft, ok := fieldTypeNames[kind]; ok {
			schema[field] = ft
		}
	}
	return schema
}

// dispatcherAdapter exposes a TW/BL/WL registry pair as a
// replication.Dispatcher.
type dispatcherAdapter struct {
	tw *tw.Registry
	bl *blwl.Store
	wl *blwl.Store
}

func (d *dispatcherAdapter) TWStore(name string) (*tw.Store, bool) { return d.tw.Get(name) }
func (d *dispatcherAdapter) BLStore() *blwl.Store                  { return d.bl }
func (d *dispatcherAdapter) WLStore() *blwl.Store                  { return d.wl }

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := cfgpkg.LoadFromEnv()
	if err != nil {
		log.WithError(err).Fatal("loginguardd: failed to load configuration")
	}
	if level, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		log.SetLevel(level)
	}

	reg := metrics.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	twRegistry := tw.NewRegistry()
	for _, sc := range cfg.TWStores {
		store := tw.New(tw.Config{
			Name: sc.Name, WindowSize: int64(sc.WindowSize), NumWindows: sc.NumWindows,
			NumShards: sc.NumShards, V4Prefix: sc.V4Prefix, V6Prefix: sc.V6Prefix,
			SoftMaxEntries: sc.SoftMaxEntries, ExpireSleepMS: sc.ExpireSleepMS,
			Replicated: sc.Replicated, Schema: buildSchema(sc.FieldSchema),
		}, reg)
		store.StartExpiry(ctx)
		twRegistry.Register(store)
		log.WithField("component", "tw").WithField("store", sc.Name).Info("loginguardd: tw store ready")
	}

	bl := blwl.New("bl", reg)
	wl := blwl.New("wl", reg)
	bl.StartExpiry(ctx)
	wl.StartExpiry(ctx)

	if cfg.Redis.Host != "" {
		persister := blwl.NewRedisPersister(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Prefix,
			time.Duration(cfg.Redis.ConnectTimeoutMS)*time.Millisecond)
		bl.MakePersistent(persister, cfg.Redis.PersistReplicated)
		wl.MakePersistent(persister, cfg.Redis.PersistReplicated)
		if err := bl.LoadPersisted(); err != nil {
			log.WithError(err).WithField("component", "blwl").Warn("loginguardd: failed to load persisted bl entries")
		}
		if err := wl.LoadPersisted(); err != nil {
			log.WithError(err).WithField("component", "blwl").Warn("loginguardd: failed to load persisted wl entries")
		}
	}

	hooks := webhook.NewRegistry()
	for _, hc := range cfg.Hooks {
		events := make(map[webhook.Event]bool, len(hc.Events))
		for _, e := range hc.Events {
			events[webhook.Event(e)] = true
		}
		d := &webhook.Descriptor{
			Name: hc.Name, Events: events, Active: hc.Active,
			Config: map[string]string{"url": hc.URL},
		}
		if hc.Secret != "" {
			d.Config["secret"] = hc.Secret
		}
		if hc.BasicAuth != "" {
			d.Config["basic-auth"] = hc.BasicAuth
		}
		if hc.APIKey != "" {
			d.Config["api-key"] = hc.APIKey
		}
		if hc.ContentType != "" {
			d.Config["content-type"] = hc.ContentType
		}
		if hc.AllowFilter != "" {
			d.Config["allow_filter"] = hc.AllowFilter
		}
		if hc.Kafka {
			d.Config["kafka"] = "true"
		}
		if _, err := hooks.Register(d); err != nil {
			log.WithError(err).WithField("hook", hc.Name).Warn("loginguardd: rejecting invalid hook config")
		}
	}

	dispatcher := webhook.New(webhook.Config{
		NumThreads: cfg.Webhooks.NumThreads, MaxConns: cfg.Webhooks.MaxConns,
		MaxQueueSize: cfg.Webhooks.MaxQueueSize, TimeoutSecs: cfg.Webhooks.TimeoutSecs,
	}, reg, log.WithField("component", "webhook"))
	dispatcher.StartThreads()
	defer dispatcher.Stop()

	blwlHook := adapter.NewBLWLHook(hooks, dispatcher)
	bl.SetHook(blwlHook)
	wl.SetHook(blwlHook)

	if cfg.Replication.ListenAddr != "" && cfg.Replication.PSKHex != "" {
		key, err := hex.DecodeString(cfg.Replication.PSKHex)
		if err != nil {
			log.WithError(err).Fatal("loginguardd: invalid replication psk_hex")
		}
		disp := &dispatcherAdapter{tw: twRegistry, bl: bl, wl: wl}
		transport, err := replication.New(cfg.Replication.ListenAddr, cfg.Replication.Peers, key, disp, reg,
			log.WithField("component", "replication"))
		if err != nil {
			log.WithError(err).Fatal("loginguardd: failed to start replication transport")
		}
		go transport.Listen()
		defer transport.Close()

		for _, sc := range cfg.TWStores {
			if !sc.Replicated {
				continue
			}
			if store, ok := twRegistry.Get(sc.Name); ok {
				store.SetReplicator(transport)
				store.EnableReplication()
			}
		}
		bl.SetReplicator(transport)
		wl.SetReplicator(transport)
	}

	reportStore, _ := twRegistry.Get(cfg.Adapter.ReportStore)
	ad := adapter.New(reportStore, bl, wl, hooks, dispatcher, adapter.Thresholds{
		Field: cfg.Adapter.Field, DenyAt: cfg.Adapter.DenyAt, TarpitAt: cfg.Adapter.TarpitAt,
	})

	srv := httpserver.New(httpserver.Config{
		ListenAddr: cfg.Server.ListenAddr, ListenPort: cfg.Server.ListenPort,
		BasicAuthPassword: cfg.Server.Password, ACL: cfg.Server.ACL,
	}, ad, hooks, dispatcher, reg, log.WithField("component", "httpserver"))

	go func() {
		if err := srv.ListenAndServe(); err != nil && err.Error() != "http: Server closed" {
			log.WithError(err).Fatal("loginguardd: http server failed")
		}
	}()
	log.WithField("component", "httpserver").
		WithField("addr", cfg.Server.ListenAddr).WithField("port", cfg.Server.ListenPort).
		Info("loginguardd: listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("loginguardd: shutting down")
	cancel()
	if err := srv.Close(); err != nil {
		log.WithError(err).Warn("loginguardd: error during http server shutdown")
	}
}
