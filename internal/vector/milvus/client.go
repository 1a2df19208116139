package milvus

import (
	"context"
	"fmt"
	"sort"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/relaynet/chatcore/internal/vector"
	"github.com/relaynet/chatcore/pkg/logger"
)

// Client is the Milvus-backed vector store. It uses the inner-product
// metric so that, with normalized embeddings, scores rank identically to
// the in-memory cosine backend.
type Client struct {
	client         client.Client
	collectionName string
	vectorDim      int
}

func NewClient(endpoint, apiKey, collectionName string, vectorDim int) (*Client, error) {
	c, err := client.NewGrpcClient(
		context.Background(),
		endpoint,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Milvus client initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection", collectionName),
	)

	return &Client{
		client:         c,
		collectionName: collectionName,
		vectorDim:      vectorDim,
	}, nil
}

func (m *Client) Close() error {
	return m.client.Close()
}

func (m *Client) EnsureCollection(ctx context.Context) error {
	has, err := m.client.HasCollection(ctx, m.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if has {
		logger.Info("Collection already exists", zap.String("collection", m.collectionName))
		return nil
	}

	schema := &entity.Schema{
		CollectionName: m.collectionName,
		Description:    "Document chunk embeddings",
		Fields: []*entity.Field{
			{
				Name:       "chunk_id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "embedding",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": fmt.Sprintf("%d", m.vectorDim),
				},
			},
			{
				Name:     "doc_id",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "ordinal",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     "text",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "8192",
				},
			},
		},
	}

	err = m.client.CreateCollection(ctx, schema, entity.DefaultShardNumber)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, _ := entity.NewIndexIvfFlat(entity.IP, 1024)
	err = m.client.CreateIndex(ctx, m.collectionName, "embedding", idx, false)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	err = m.client.LoadCollection(ctx, m.collectionName, false)
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	logger.Info("Collection created and loaded", zap.String("collection", m.collectionName))

	return nil
}

func (m *Client) Upsert(ctx context.Context, entries []vector.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	chunkIDs := make([]string, len(entries))
	embeddings := make([][]float32, len(entries))
	docIDs := make([]string, len(entries))
	ordinals := make([]int64, len(entries))
	texts := make([]string, len(entries))

	for i, e := range entries {
		chunkIDs[i] = e.ID
		embeddings[i] = e.Vector
		docIDs[i] = e.DocID
		ordinals[i] = int64(e.Ordinal)
		texts[i] = e.Text
	}

	// Replace-by-id, matching the in-memory backend: rows already present
	// for these chunk ids are removed before the insert so re-ingesting a
	// document never duplicates vectors.
	err := m.client.DeleteByPks(ctx, m.collectionName, "", entity.NewColumnVarChar("chunk_id", chunkIDs))
	if err != nil {
		return fmt.Errorf("failed to delete existing chunks: %w", err)
	}

	_, err = m.client.Insert(
		ctx,
		m.collectionName,
		"",
		entity.NewColumnVarChar("chunk_id", chunkIDs),
		entity.NewColumnFloatVector("embedding", m.vectorDim, embeddings),
		entity.NewColumnVarChar("doc_id", docIDs),
		entity.NewColumnInt64("ordinal", ordinals),
		entity.NewColumnVarChar("text", texts),
	)

	if err != nil {
		return fmt.Errorf("failed to insert chunks: %w", err)
	}

	err = m.client.Flush(ctx, m.collectionName, false)
	if err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	logger.Info("Chunks upserted into vector backend", zap.Int("count", len(entries)))

	return nil
}

func (m *Client) Search(ctx context.Context, vec []float32, topK int) ([]vector.Match, error) {
	sp, _ := entity.NewIndexIvfFlatSearchParam(16)

	searchResult, err := m.client.Search(
		ctx,
		m.collectionName,
		[]string{},
		"",
		[]string{"chunk_id", "doc_id", "ordinal", "text"},
		[]entity.Vector{entity.FloatVector(vec)},
		"embedding",
		entity.IP,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	matches := make([]vector.Match, 0)
	for _, sr := range searchResult {
		chunkIDCol := sr.Fields.GetColumn("chunk_id")
		docIDCol := sr.Fields.GetColumn("doc_id")
		ordinalCol := sr.Fields.GetColumn("ordinal")
		textCol := sr.Fields.GetColumn("text")

		for i := 0; i < sr.ResultCount; i++ {
			chunkID, _ := chunkIDCol.Get(i)
			docID, _ := docIDCol.Get(i)
			ordinal, _ := ordinalCol.Get(i)
			text, _ := textCol.Get(i)

			matches = append(matches, vector.Match{
				Entry: vector.Entry{
					ID:      chunkID.(string),
					DocID:   docID.(string),
					Ordinal: int(ordinal.(int64)),
					Text:    text.(string),
				},
				Score: sr.Scores[i],
			})
		}
	}

	// Milvus returns score order; re-apply the shared tie-break so both
	// backends rank identically.
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		if matches[i].Ordinal != matches[j].Ordinal {
			return matches[i].Ordinal < matches[j].Ordinal
		}
		return matches[i].ID < matches[j].ID
	})

	logger.Debug("Vector search completed",
		zap.Int("topK", topK),
		zap.Int("results", len(matches)),
	)

	return matches, nil
}
