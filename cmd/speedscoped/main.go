package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CAFxX/httpcompression"
	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"

	"github.com/getsentry/speedscope/internal/httputil"
	"github.com/getsentry/speedscope/internal/logutil"
	"github.com/getsentry/speedscope/internal/storageprovider"
	"github.com/getsentry/speedscope/internal/storageutil"
)

type environment struct {
	config ServiceConfig

	profilingWriter KafkaWriter

	storage      storageutil.ObjectHandler
	closeStorage func() error
}

var release string

func newEnvironment(config ServiceConfig) (*environment, error) {
	e := environment{config: config}

	ctx := context.Background()
	switch config.StorageBackend {
	case storageBackendBlob:
		bucket, err := blob.OpenBucket(ctx, config.BucketURL)
		if err != nil {
			return nil, err
		}
		e.storage = &storageprovider.Blob{Bucket: bucket}
		e.closeStorage = bucket.Close
	case storageBackendGcs:
		gcs, err := storageprovider.NewGcs(ctx, config.BucketName)
		if err != nil {
			return nil, err
		}
		e.storage = gcs
		e.closeStorage = gcs.Close
	case storageBackendBadger:
		b, err := storageprovider.OpenBadger(config.BadgerPath)
		if err != nil {
			return nil, err
		}
		e.storage = b
		e.closeStorage = b.Close
	default:
		return nil, fmt.Errorf("unknown storage backend %q", config.StorageBackend)
	}

	e.profilingWriter = newKafkaWriter(config.KafkaBrokers, config.ProfilesKafkaTopic)
	return &e, nil
}

func (e *environment) shutdown() {
	err := e.closeStorage()
	if err != nil {
		sentry.CaptureException(err)
	}
	err = e.profilingWriter.Close()
	if err != nil {
		sentry.CaptureException(err)
	}
	sentry.Flush(5 * time.Second)
}

func (e *environment) newRouter() (*httprouter.Router, error) {
	compress, err := httpcompression.DefaultAdapter()
	if err != nil {
		return nil, err
	}

	routes := []struct {
		method  string
		path    string
		handler http.HandlerFunc
	}{
		{http.MethodGet, "/health", e.getHealth},
		{http.MethodPost, "/profiles", e.postProfile},
		{http.MethodGet, "/profiles/:profile_group_id", e.getProfile},
		{http.MethodGet, "/profiles/:profile_group_id/frames", e.getFrames},
		{http.MethodGet, "/profiles/:profile_group_id/flattened", e.getFlattened},
		{http.MethodGet, "/profiles/:profile_group_id/callers", e.getCallers},
		{http.MethodGet, "/profiles/:profile_group_id/callees", e.getCallees},
	}

	router := httprouter.New()

	for _, route := range routes {
		handlerFunc := httputil.DecompressPayload(route.handler)
		handler := compress(handlerFunc)

		router.Handler(route.method, route.path, handler)
	}

	return router, nil
}

func main() {
	config, err := readServiceConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("error reading the service config")
	}
	logutil.ConfigureLogger(config.LogLevel)

	err = sentry.Init(sentry.ClientOptions{
		Dsn:              config.SentryDSN,
		EnableTracing:    true,
		Environment:      config.Environment,
		Release:          release,
		TracesSampleRate: 1.0,
		BeforeSend:       httputil.SetHTTPStatusCodeTag,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("can't initialize sentry")
	}

	env, err := newEnvironment(config)
	if err != nil {
		log.Fatal().Err(err).Msg("error setting up environment")
	}

	router, err := env.newRouter()
	if err != nil {
		sentry.CaptureException(err)
		log.Fatal().Err(err).Msg("error setting up the router")
	}

	server := http.Server{
		Addr:    ":" + config.Port,
		Handler: sentryhttp.New(sentryhttp.Options{}).Handle(router),
	}

	waitForShutdown := make(chan os.Signal)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		<-c

		cctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(cctx); err != nil {
			sentry.CaptureException(err)
			log.Err(err).Msg("error shutting down server")
		}

		close(waitForShutdown)
	}()

	log.Info().
		Str("port", config.Port).
		Str("storage_backend", config.StorageBackend).
		Msg("listening")

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		sentry.CaptureException(err)
		log.Err(err).Msg("server failed")
	}

	<-waitForShutdown

	// Shutdown the rest of the environment after the HTTP connections are closed
	env.shutdown()
}

func (e *environment) getHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
