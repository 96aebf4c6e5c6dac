package main

import (
	"github.com/ilyakaznacheev/cleanenv"
)

const (
	storageBackendBlob   = "blob"
	storageBackendGcs    = "gcs"
	storageBackendBadger = "badger"
)

type (
	ServiceConfig struct {
		Environment string `env:"SENTRY_ENVIRONMENT" env-default:"development"`
		SentryDSN   string `env:"SENTRY_DSN"`
		Port        string `env:"PORT" env-default:"8080"`
		LogLevel    string `env:"LOG_LEVEL" env-default:"info"`

		// StorageBackend is one of blob, gcs or badger.
		StorageBackend string `env:"STORAGE_BACKEND" env-default:"blob"`
		BucketURL      string `env:"BUCKET_URL" env-default:"mem://"`
		BucketName     string `env:"BUCKET_NAME" env-default:"speedscope-profiles"`
		BadgerPath     string `env:"BADGER_PATH"`

		KafkaBrokers       []string `env:"KAFKA_BROKERS" env-separator:"," env-default:"localhost:9092"`
		ProfilesKafkaTopic string   `env:"PROFILES_KAFKA_TOPIC" env-default:"speedscope-profiles-imported"`

		// DiffNormalized is used when a request doesn't set normalized.
		DiffNormalized bool `env:"DIFF_NORMALIZED" env-default:"false"`
	}
)

func readServiceConfig() (ServiceConfig, error) {
	var c ServiceConfig
	err := cleanenv.ReadEnv(&c)
	return c, err
}
