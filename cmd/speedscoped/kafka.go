package main

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/getsentry/speedscope/internal/profile"
)

type (
	KafkaWriter interface {
		WriteMessages(ctx context.Context, msgs ...kafka.Message) error
		Close() error
	}

	// ProfileImportedKafkaMessage announces a stored profile group to
	// downstream consumers.
	ProfileImportedKafkaMessage struct {
		ID          string                    `json:"profile_group_id"`
		Name        string                    `json:"name"`
		Environment string                    `json:"environment,omitempty"`
		Received    int64                     `json:"received"`
		Profiles    []ImportedProfileMetadata `json:"profiles"`
	}

	ImportedProfileMetadata struct {
		Name           string  `json:"name"`
		Unit           string  `json:"unit"`
		TotalWeight    float64 `json:"total_weight"`
		TotalRegWeight float64 `json:"total_reg_weight,omitempty"`
		FrameCount     int     `json:"frame_count"`
		SampleCount    int     `json:"sample_count"`
		HasDiffData    bool    `json:"has_diff_data"`
	}
)

func newKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Async:        true,
		Balancer:     kafka.CRC32Balancer{},
		BatchSize:    10,
		Compression:  kafka.Lz4,
		ReadTimeout:  3 * time.Second,
		Topic:        topic,
		WriteTimeout: 3 * time.Second,
	}
}

func buildProfileImportedKafkaMessage(id, environment string, g *profile.Group, received time.Time) ProfileImportedKafkaMessage {
	m := ProfileImportedKafkaMessage{
		ID:          id,
		Name:        g.Name,
		Environment: environment,
		Received:    received.Unix(),
		Profiles:    make([]ImportedProfileMetadata, 0, len(g.Profiles)),
	}
	for _, p := range g.Profiles {
		m.Profiles = append(m.Profiles, ImportedProfileMetadata{
			Name:           p.Name(),
			Unit:           string(p.WeightUnit()),
			TotalWeight:    p.TotalWeight(),
			TotalRegWeight: p.TotalRegWeight(),
			FrameCount:     p.Size(),
			SampleCount:    len(p.Samples()),
			HasDiffData:    p.HasDiffData(),
		})
	}
	return m
}
