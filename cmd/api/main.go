package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"worklane.io/internal/attach"
	"worklane.io/internal/auth"
	"worklane.io/internal/cache"
	"worklane.io/internal/httpapi"
	"worklane.io/internal/notify"
	"worklane.io/internal/obs"
	"worklane.io/internal/requirement"
	"worklane.io/internal/store/pg"
	"worklane.io/internal/task"
)

var version = "0.3.0"

func main() {
	obs.Init()

	dsn := os.Getenv("WORKLANE_PG_DSN")
	if dsn == "" {
		log.Fatal("WORKLANE_PG_DSN is required")
	}
	store, err := pg.Open(dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}

	// The permission cache is an optimization; a missing or unreachable
	// Redis degrades to recompute-per-request.
	var permCache cache.Cache = cache.Noop{}
	var redisCache *cache.Redis
	if redisURL := os.Getenv("WORKLANE_REDIS_URL"); redisURL != "" {
		redisCache, err = cache.NewRedis(redisURL)
		if err != nil {
			obs.Warnf("redis unavailable, permission cache disabled: %v", err)
		} else {
			permCache = redisCache
		}
	}

	authSvc, err := auth.NewService(store, auth.WithCache(permCache))
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := authSvc.EnsureBuiltins(ctx); err != nil {
		log.Fatalf("seed permissions: %v", err)
	}
	cancel()

	reqSvc, err := requirement.NewService(store.Requirements())
	if err != nil {
		log.Fatalf("requirement service: %v", err)
	}

	taskOpts := []task.ServiceOption{task.WithSyncer(reqSvc)}
	var files *attach.Store
	if dir := os.Getenv("WORKLANE_ATTACH_DIR"); dir != "" {
		secret := os.Getenv("WORKLANE_ATTACH_SECRET")
		if secret == "" {
			log.Fatal("WORKLANE_ATTACH_SECRET is required when WORKLANE_ATTACH_DIR is set")
		}
		files, err = attach.New(dir, "/v1/files", []byte(secret))
		if err != nil {
			log.Fatalf("attachment store: %v", err)
		}
		taskOpts = append(taskOpts, task.WithFileStore(files))
	}
	taskSvc, err := task.NewService(store.Tasks(), taskOpts...)
	if err != nil {
		log.Fatalf("task service: %v", err)
	}

	api := httpapi.New(httpapi.Config{
		Auth:          authSvc,
		Tasks:         taskSvc,
		Requirements:  reqSvc,
		Files:         files,
		Notify:        notify.LogSender{},
		ReadyProbe:    httpapi.ReadyProbe{DB: store.DB()},
		Version:       version,
		SecureCookies: os.Getenv("WORKLANE_COOKIE_SECURE") != "false",
	})

	addr := os.Getenv("WORKLANE_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting worklane-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	_ = store.Close()
	if redisCache != nil {
		_ = redisCache.Close()
	}
	log.Println("Stopped")
}
