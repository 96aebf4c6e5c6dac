package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/getsentry/speedscope/internal/errorutil"
	"github.com/getsentry/speedscope/internal/httputil"
	"github.com/getsentry/speedscope/internal/logutil"
	"github.com/getsentry/speedscope/internal/profile"
	"github.com/getsentry/speedscope/internal/speedscope"
	"github.com/getsentry/speedscope/internal/storageutil"
)

type PostProfileResponse struct {
	ID string `json:"id"`
}

func (env *environment) exporter() string {
	if release == "" {
		return "speedscoped"
	}
	return "speedscoped@" + release
}

func (env *environment) importOptions(r *http.Request) (speedscope.ImportOptions, error) {
	normalized, err := httputil.GetBoolQueryParameter(r, "normalized", env.config.DiffNormalized)
	if err != nil {
		return speedscope.ImportOptions{}, err
	}
	inverted, err := httputil.GetBoolQueryParameter(r, "inverted", false)
	if err != nil {
		return speedscope.ImportOptions{}, err
	}
	return speedscope.ImportOptions{DiffNormalized: normalized, DiffInverted: inverted}, nil
}

func (env *environment) postProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hub := hubFromContext(ctx)

	opts, err := env.importOptions(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s := sentry.StartSpan(ctx, "json.unmarshal")
	s.Description = "Decode speedscope file"
	file, err := speedscope.Decode(r.Body)
	s.Finish()
	if err != nil {
		hub.CaptureException(err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s = sentry.StartSpan(ctx, "processing")
	s.Description = "Import profiles"
	g, err := speedscope.Import(file, opts)
	s.Finish()
	if err != nil {
		if errors.Is(err, errorutil.ErrDataIntegrity) {
			http.Error(w, err.Error(), http.StatusBadRequest)
		} else {
			hub.CaptureException(err)
			w.WriteHeader(http.StatusInternalServerError)
		}
		return
	}

	id := uuid.New().String()
	logger := log.Sample(logutil.LevelSampler{Level: zerolog.InfoLevel}).With().Str("profile_group_id", id).Logger()
	hub.Scope().SetTag("profile_group_id", id)
	hub.Scope().SetContext("Profile group", map[string]interface{}{
		"name":     g.Name,
		"profiles": len(g.Profiles),
	})

	s = sentry.StartSpan(ctx, "gcs.write")
	s.Description = "Write profile to storage"
	err = storageutil.CompressedWrite(ctx, env.storage, storageutil.StoragePath(id), file)
	s.Finish()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			// This is a transient error, we'll retry
			w.WriteHeader(http.StatusTooManyRequests)
		} else {
			hub.CaptureException(err)
			w.WriteHeader(http.StatusInternalServerError)
		}
		return
	}

	s = sentry.StartSpan(ctx, "json.marshal")
	s.Description = "Marshal profile Kafka message"
	b, err := json.Marshal(buildProfileImportedKafkaMessage(id, env.config.Environment, g, time.Now()))
	s.Finish()
	if err != nil {
		hub.CaptureException(err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	s = sentry.StartSpan(ctx, "processing")
	s.Description = "Send profile to Kafka"
	err = env.profilingWriter.WriteMessages(ctx, kafka.Message{
		Key:   []byte(id),
		Value: b,
	})
	s.Finish()
	if err != nil {
		// the profile is stored, consumers will miss this one only
		hub.CaptureException(err)
		logger.Err(err).Msg("couldn't publish imported profile")
	}
	logger.Info().Int("profiles", len(g.Profiles)).Msg("profile group stored")

	writeJSON(ctx, w, http.StatusCreated, PostProfileResponse{ID: id})
}

// loadGroup reads a stored file and imports it. It writes the error response
// itself and returns false on failure.
func (env *environment) loadGroup(w http.ResponseWriter, r *http.Request) (*profile.Group, bool) {
	ctx := r.Context()
	hub := hubFromContext(ctx)
	ps := httprouter.ParamsFromContext(ctx)
	id := ps.ByName("profile_group_id")
	if _, err := uuid.Parse(id); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return nil, false
	}
	hub.Scope().SetTag("profile_group_id", id)

	opts, err := env.importOptions(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}

	s := sentry.StartSpan(ctx, "gcs.read")
	s.Description = "Read profile from storage"
	var file speedscope.File
	err = storageutil.UnmarshalCompressed(ctx, env.storage, storageutil.StoragePath(id), &file)
	s.Finish()
	if err != nil {
		switch {
		case errors.Is(err, storageutil.ErrObjectNotFound):
			w.WriteHeader(http.StatusNotFound)
		case errors.Is(err, context.DeadlineExceeded):
			w.WriteHeader(http.StatusGatewayTimeout)
		default:
			hub.CaptureException(err)
			w.WriteHeader(http.StatusInternalServerError)
		}
		return nil, false
	}

	s = sentry.StartSpan(ctx, "processing")
	s.Description = "Import profiles"
	g, err := speedscope.Import(file, opts)
	s.Finish()
	if err != nil {
		// stored files were imported once already
		hub.CaptureException(err)
		w.WriteHeader(http.StatusInternalServerError)
		return nil, false
	}
	return g, true
}

// selectProfile returns the profile chosen by the profile query parameter,
// defaulting to the group's active profile.
func selectProfile(w http.ResponseWriter, r *http.Request, g *profile.Group) (*profile.Profile, bool) {
	if r.URL.Query().Get("profile") == "" {
		p := g.ActiveProfile()
		if p == nil {
			http.Error(w, "profile group is empty", http.StatusBadRequest)
			return nil, false
		}
		return p, true
	}
	i, err := httputil.GetIntQueryParameter(r, "profile", 0)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}
	if i >= len(g.Profiles) {
		http.Error(w, "profile index out of range", http.StatusBadRequest)
		return nil, false
	}
	return g.Profiles[i], true
}

func (env *environment) getProfile(w http.ResponseWriter, r *http.Request) {
	g, ok := env.loadGroup(w, r)
	if !ok {
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, speedscope.Export(g, env.exporter()))
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v interface{}) {
	hub := hubFromContext(ctx)

	s := sentry.StartSpan(ctx, "json.marshal")
	defer s.Finish()

	var b bytes.Buffer
	if err := json.NewEncoder(&b).Encode(v); err != nil {
		hub.CaptureException(err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b.Bytes())
}

func hubFromContext(ctx context.Context) *sentry.Hub {
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		return hub
	}
	return sentry.CurrentHub()
}
