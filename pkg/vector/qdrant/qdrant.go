// Package qdrant implements vector.Driver over the Qdrant gRPC client.
package qdrant

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/google/uuid"
	qdrantsdk "github.com/qdrant/go-client/qdrant"

	"github.com/soulprintco/imprint/pkg/vector"
)

// pointIDNamespace makes point ids a pure function of the chunk id, keeping
// replayed upserts idempotent.
var pointIDNamespace = uuid.MustParse("6f8a2f60-3c1e-4a4b-9b1f-1df1b8e7a9c4")

type Config struct {
	// Target is the gRPC host:port of the Qdrant instance.
	Target     string
	Collection string
	Dimensions uint
}

type Driver struct {
	client     *qdrantsdk.Client
	collection string
}

// New connects to Qdrant and creates the collection if it does not exist.
func New(ctx context.Context, cfg Config) (*Driver, error) {
	if cfg.Collection == "" {
		return nil, fmt.Errorf("qdrant: collection is required")
	}
	if cfg.Dimensions == 0 {
		return nil, fmt.Errorf("qdrant: dimensions are required")
	}

	host, portStr, err := net.SplitHostPort(cfg.Target)
	if err != nil {
		return nil, fmt.Errorf("qdrant: invalid target %q: %w", cfg.Target, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("qdrant: invalid port in target %q: %w", cfg.Target, err)
	}

	client, err := qdrantsdk.NewClient(&qdrantsdk.Config{Host: host, Port: port})
	if err != nil {
		return nil, fmt.Errorf("qdrant: connecting to %s: %w", cfg.Target, err)
	}

	d := &Driver{client: client, collection: cfg.Collection}
	if err := d.ensureCollection(ctx, cfg.Dimensions); err != nil {
		client.Close()
		return nil, err
	}
	return d, nil
}

func (d *Driver) ensureCollection(ctx context.Context, dimensions uint) error {
	exists, err := d.client.CollectionExists(ctx, d.collection)
	if err != nil {
		return fmt.Errorf("qdrant: checking collection %q: %w", d.collection, err)
	}
	if exists {
		return nil
	}

	err = d.client.CreateCollection(ctx, &qdrantsdk.CreateCollection{
		CollectionName: d.collection,
		VectorsConfig: qdrantsdk.NewVectorsConfig(&qdrantsdk.VectorParams{
			Size:     uint64(dimensions),
			Distance: qdrantsdk.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: creating collection %q: %w", d.collection, err)
	}
	return nil
}

func (d *Driver) Upsert(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}

	points := make([]*qdrantsdk.PointStruct, len(docs))
	for i, doc := range docs {
		payload := map[string]any{"document_id": doc.ID}
		for k, v := range doc.Payload {
			payload[k] = v
		}

		points[i] = &qdrantsdk.PointStruct{
			Id:      qdrantsdk.NewIDUUID(uuid.NewSHA1(pointIDNamespace, []byte(doc.ID)).String()),
			Vectors: qdrantsdk.NewVectors(doc.Vector...),
			Payload: qdrantsdk.NewValueMap(payload),
		}
	}

	_, err := d.client.Upsert(ctx, &qdrantsdk.UpsertPoints{
		CollectionName: d.collection,
		Points:         points,
		Wait:           qdrantsdk.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("qdrant: upserting %d points: %w", len(docs), err)
	}
	return nil
}

func (d *Driver) Close() error {
	return d.client.Close()
}
