// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrWeaviateUnavailable is returned when the readiness probe fails.
var ErrWeaviateUnavailable = errors.New("weaviate is not available")

// DefaultClassName is the Weaviate class holding function documents.
const DefaultClassName = "TestsynthFunction"

// WeaviateConfig configures a WeaviateIndex.
type WeaviateConfig struct {
	// Host is host:port of the Weaviate REST endpoint.
	Host string

	// Scheme is http or https.
	Scheme string

	// ClassName scopes the index; one class per run keeps runs isolated.
	ClassName string

	RetryAttempts int
	RetryBackoff  time.Duration

	Logger *slog.Logger
}

func (c *WeaviateConfig) applyDefaults() {
	if c.Scheme == "" {
		c.Scheme = "http"
	}
	if c.ClassName == "" {
		c.ClassName = DefaultClassName
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 100 * time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// WeaviateIndex stores vectors in a Weaviate class with vectorizer "none".
//
// Description:
//
//	Objects carry a single "docId" property; the object UUID is derived
//	from the class and document id so re-adding a document overwrites it.
//	Transient failures are retried with exponential backoff and jitter.
//
// Thread Safety: Safe for concurrent use.
type WeaviateIndex struct {
	client *weaviate.Client
	config WeaviateConfig
	logger *slog.Logger
}

// NewWeaviateIndex connects, waits for readiness and ensures the class.
func NewWeaviateIndex(ctx context.Context, config WeaviateConfig) (*WeaviateIndex, error) {
	config.applyDefaults()
	if config.Host == "" {
		return nil, errors.New("weaviate host must not be empty")
	}
	client, err := weaviate.NewClient(weaviate.Config{Host: config.Host, Scheme: config.Scheme})
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}
	idx := &WeaviateIndex{client: client, config: config, logger: config.Logger}

	ready, err := client.Misc().ReadyChecker().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWeaviateUnavailable, err)
	}
	if !ready {
		return nil, ErrWeaviateUnavailable
	}
	if err := idx.ensureClass(ctx); err != nil {
		return nil, err
	}
	return idx, nil
}

func classSchema(name string) *models.Class {
	filterable := true
	return &models.Class{
		Class:       name,
		Description: "Function documents for retrieval-augmented test generation",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{
				Name:            "docId",
				DataType:        []string{"text"},
				Description:     "Qualified function name",
				IndexFilterable: &filterable,
				Tokenization:    "field",
			},
		},
	}
}

func (w *WeaviateIndex) ensureClass(ctx context.Context) error {
	if _, err := w.client.Schema().ClassGetter().WithClassName(w.config.ClassName).Do(ctx); err == nil {
		return nil
	}
	if err := w.client.Schema().ClassCreator().WithClass(classSchema(w.config.ClassName)).Do(ctx); err != nil {
		return fmt.Errorf("create class %s: %w", w.config.ClassName, err)
	}
	w.logger.Info("Created weaviate class", slog.String("class", w.config.ClassName))
	return nil
}

// objectID derives a stable UUID for id within class.
func objectID(class, id string) strfmt.UUID {
	sum := sha256.Sum256([]byte(class + "\x00" + id))
	u, _ := uuid.FromBytes(sum[:16])
	return strfmt.UUID(u.String())
}

// Add implements Index.
func (w *WeaviateIndex) Add(ctx context.Context, id string, vec []float32) error {
	if len(vec) == 0 {
		return ErrEmptyVector
	}
	return w.execute(ctx, "weaviate.Add", func() error {
		res, err := w.client.Batch().ObjectsBatcher().WithObjects(&models.Object{
			Class:      w.config.ClassName,
			ID:         objectID(w.config.ClassName, id),
			Vector:     vec,
			Properties: map[string]interface{}{"docId": id},
		}).Do(ctx)
		if err != nil {
			return err
		}
		for _, obj := range res {
			if obj.Result != nil && obj.Result.Errors != nil && len(obj.Result.Errors.Error) > 0 {
				return fmt.Errorf("store object: %s", obj.Result.Errors.Error[0].Message)
			}
		}
		return nil
	})
}

type nearVectorResponse struct {
	Get map[string][]struct {
		DocID string `json:"docId"`
	} `json:"Get"`
}

// Query implements Index.
func (w *WeaviateIndex) Query(ctx context.Context, vec []float32, k int) ([]string, error) {
	if len(vec) == 0 {
		return nil, ErrEmptyVector
	}
	var ids []string
	err := w.execute(ctx, "weaviate.Query", func() error {
		nearVector := w.client.GraphQL().NearVectorArgBuilder().WithVector(vec)
		resp, err := w.client.GraphQL().Get().
			WithClassName(w.config.ClassName).
			WithFields(graphql.Field{Name: "docId"}).
			WithNearVector(nearVector).
			WithLimit(k).
			Do(ctx)
		if err != nil {
			return err
		}
		if len(resp.Errors) > 0 {
			return fmt.Errorf("graphql: %s", resp.Errors[0].Message)
		}
		ids, err = parseNearVector(resp.Data, w.config.ClassName)
		return err
	})
	return ids, err
}

func parseNearVector(data map[string]models.JSONObject, class string) ([]string, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal graphql data: %w", err)
	}
	var parsed nearVectorResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal graphql data: %w", err)
	}
	hits := parsed.Get[class]
	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.DocID)
	}
	return ids, nil
}

// Reset implements Index by dropping and recreating the class.
func (w *WeaviateIndex) Reset(ctx context.Context) error {
	if err := w.client.Schema().ClassDeleter().WithClassName(w.config.ClassName).Do(ctx); err != nil {
		w.logger.Debug("Weaviate class delete failed", slog.String("error", err.Error()))
	}
	return w.ensureClass(ctx)
}

func (w *WeaviateIndex) execute(ctx context.Context, op string, fn func() error) error {
	ctx, span := otel.Tracer("testsynth.retrieval").Start(ctx, op,
		trace.WithAttributes(attribute.String("weaviate.class", w.config.ClassName)),
	)
	defer span.End()

	var lastErr error
	for attempt := 0; attempt <= w.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff(w.config.RetryBackoff, attempt)):
			}
		}
		lastErr = fn()
		if lastErr == nil {
			span.SetStatus(codes.Ok, "success")
			return nil
		}
		if errors.Is(lastErr, context.Canceled) || errors.Is(lastErr, context.DeadlineExceeded) {
			break
		}
	}
	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "all retries failed")
	return fmt.Errorf("%s: %w", op, lastErr)
}

// backoff returns base*2^attempt with +/-25% jitter, capped at 5s.
func backoff(base time.Duration, attempt int) time.Duration {
	d := base * time.Duration(1<<attempt)
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	jitter := (rand.Float64()*2 - 1) * 0.25 * float64(d)
	return time.Duration(float64(d) + jitter)
}
