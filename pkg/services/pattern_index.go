package services

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"dinecast-api/pkg/models"

	qdrant "github.com/qdrant/go-client/qdrant"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

// PatternCollection Qdrantのコレクション名
const PatternCollection = "dinecast_patterns"

// SimilarPattern 類似パターンの検索結果
type SimilarPattern struct {
	PatternID      string  `json:"pattern_id"`
	Score          float32 `json:"score"`
	Scope          string  `json:"scope"`
	Region         string  `json:"region,omitempty"`
	CuisineType    string  `json:"cuisine_type,omitempty"`
	ExternalFactor string  `json:"external_factor"`
	Description    string  `json:"description"`
}

// PatternIndex プールされたパターンの類似検索インデックス
type PatternIndex interface {
	Upsert(ctx context.Context, p *models.Pattern) error
	Similar(ctx context.Context, p *models.Pattern, limit uint64) ([]SimilarPattern, error)
	Remove(ctx context.Context, ids ...string) error
}

// NoopPatternIndex Qdrant未設定時の何もしないインデックス
type NoopPatternIndex struct{}

func (NoopPatternIndex) Upsert(context.Context, *models.Pattern) error { return nil }
func (NoopPatternIndex) Similar(context.Context, *models.Pattern, uint64) ([]SimilarPattern, error) {
	return []SimilarPattern{}, nil
}
func (NoopPatternIndex) Remove(context.Context, ...string) error { return nil }

var factorTypeOrder = []models.FactorType{
	models.FactorWeather, models.FactorEvent, models.FactorHoliday, models.FactorSports, models.FactorMultiFactor,
}

var extTypeOrder = []string{
	models.ExtTemperature, models.ExtPrecipitation, models.ExtWeatherQuality, models.ExtLocalEvent,
	models.ExtSportsGame, models.ExtHoliday, models.ExtMenuItemWeather, models.ExtWeekendPerfectEvent,
	models.ExtRainyFriday, models.ExtColdMonday,
}

// PatternVectorSize 特徴ベクトルの次元数
var PatternVectorSize = uint64(len(factorTypeOrder) + len(extTypeOrder) + 3)

// PatternVector パターンの決定的な特徴ベクトル
func PatternVector(p *models.Pattern) []float32 {
	v := make([]float32, 0, PatternVectorSize)
	for _, ft := range factorTypeOrder {
		v = append(v, boolFloat32(p.Type == ft))
	}
	for _, et := range extTypeOrder {
		v = append(v, boolFloat32(p.ExternalFactor.Type == et))
	}
	v = append(v,
		float32(p.Statistics.Correlation),
		float32(clampRange(p.BusinessOutcome.Change/100, -1, 1)),
		float32(p.Confidence/100),
	)
	return v
}

func boolFloat32(b bool) float32 {
	if b {
		return 1
	}
	return 0
}

// QdrantPatternIndex Qdrantによる実装
type QdrantPatternIndex struct {
	points      qdrant.PointsClient
	collections qdrant.CollectionsClient
	collection  string
}

// NewQdrantPatternIndex 接続してコレクションを用意する
func NewQdrantPatternIndex(ctx context.Context, qdrantURL, apiKey string) (*QdrantPatternIndex, error) {
	var dialOpts []grpc.DialOption
	// APIキーの有無で、Cloud接続(TLS+APIキー)とローカル接続(非セキュア)を切り替える
	if apiKey != "" {
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{})))
		authInterceptor := func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
			ctx = metadata.AppendToOutgoingContext(ctx, "api-key", apiKey)
			return invoker(ctx, method, req, reply, cc, opts...)
		}
		dialOpts = append(dialOpts, grpc.WithUnaryInterceptor(authInterceptor))
	} else {
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(qdrantURL, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("QdrantへのgRPCクライアント作成に失敗: %w", err)
	}

	idx := NewQdrantPatternIndexFromClients(qdrant.NewPointsClient(conn), qdrant.NewCollectionsClient(conn))
	if err := idx.EnsureCollection(ctx); err != nil {
		return nil, err
	}
	return idx, nil
}

// NewQdrantPatternIndexFromClients 既存のクライアントから作成
func NewQdrantPatternIndexFromClients(points qdrant.PointsClient, collections qdrant.CollectionsClient) *QdrantPatternIndex {
	return &QdrantPatternIndex{points: points, collections: collections, collection: PatternCollection}
}

// EnsureCollection サーバーの準備を待ってコレクションを作成
func (q *QdrantPatternIndex) EnsureCollection(ctx context.Context) error {
	const maxRetries = 10
	retryInterval := 2 * time.Second

	var res *qdrant.ListCollectionsResponse
	var err error
	for i := 0; i < maxRetries; i++ {
		listCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		res, err = q.collections.List(listCtx, &qdrant.ListCollectionsRequest{})
		cancel()
		if err == nil {
			break
		}
		log.Warn().Err(err).Int("attempt", i+1).Msg("⚠️ Qdrantサーバーの準備確認に失敗、再試行します")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	if err != nil {
		return fmt.Errorf("Qdrantのコレクションリスト取得に失敗: %w", err)
	}

	for _, c := range res.GetCollections() {
		if c.GetName() == q.collection {
			return nil
		}
	}

	createCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err = q.collections.Create(createCtx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     PatternVectorSize,
					Distance: qdrant.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("Qdrantのコレクション作成に失敗: %w", err)
	}
	log.Info().Str("collection", q.collection).Msg("✅ パターンコレクションを作成しました")
	return nil
}

func stringValue(s string) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: s}}
}

// Upsert パターンを登録・更新
func (q *QdrantPatternIndex) Upsert(ctx context.Context, p *models.Pattern) error {
	payload := map[string]*qdrant.Value{
		"pattern_id":      stringValue(p.ID),
		"scope":           stringValue(string(p.Scope)),
		"region":          stringValue(p.Region),
		"cuisine_type":    stringValue(p.CuisineType),
		"type":            stringValue(string(p.Type)),
		"external_factor": stringValue(p.ExternalFactor.Type),
		"description":     stringValue(p.Pattern.Description),
		"confidence":      {Kind: &qdrant.Value_DoubleValue{DoubleValue: p.Confidence}},
		"contributors":    {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(p.Learning.RestaurantsContributing)}},
	}

	wait := true
	_, err := q.points.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points: []*qdrant.PointStruct{
			{
				Id: &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: p.ID}},
				Vectors: &qdrant.Vectors{
					VectorsOptions: &qdrant.Vectors_Vector{Vector: &qdrant.Vector{Data: PatternVector(p)}},
				},
				Payload: payload,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("Qdrantへのパターン保存に失敗: %w", err)
	}
	return nil
}

// Similar 類似パターンを検索（自身は除く）
func (q *QdrantPatternIndex) Similar(ctx context.Context, p *models.Pattern, limit uint64) ([]SimilarPattern, error) {
	withPayload := true
	res, err := q.points.Search(ctx, &qdrant.SearchPoints{
		CollectionName: q.collection,
		Vector:         PatternVector(p),
		Limit:          limit + 1,
		WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: withPayload}},
	})
	if err != nil {
		return nil, fmt.Errorf("Qdrantでの類似検索に失敗: %w", err)
	}

	out := make([]SimilarPattern, 0, len(res.GetResult()))
	for _, sp := range res.GetResult() {
		pl := sp.GetPayload()
		id := pl["pattern_id"].GetStringValue()
		if id == p.ID {
			continue
		}
		out = append(out, SimilarPattern{
			PatternID:      id,
			Score:          sp.GetScore(),
			Scope:          pl["scope"].GetStringValue(),
			Region:         pl["region"].GetStringValue(),
			CuisineType:    pl["cuisine_type"].GetStringValue(),
			ExternalFactor: pl["external_factor"].GetStringValue(),
			Description:    pl["description"].GetStringValue(),
		})
		if uint64(len(out)) >= limit {
			break
		}
	}
	return out, nil
}

// Remove 指定IDのポイントを削除
func (q *QdrantPatternIndex) Remove(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: id}})
	}
	wait := true
	_, err := q.points.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{Points: &qdrant.PointsIdsList{Ids: pointIDs}},
		},
	})
	if err != nil {
		return fmt.Errorf("Qdrantからの削除に失敗: %w", err)
	}
	return nil
}
