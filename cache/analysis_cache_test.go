package cache

import (
	"context"
	"testing"
	"time"

	"djmix/model"

	"github.com/go-redis/redis/v8"
)

func TestAnalysisCacheWithoutClientAlwaysMisses(t *testing.T) {
	c := NewAnalysisCache(nil, time.Hour)
	ctx := context.Background()
	bpm := 128.0

	if err := c.Store(ctx, "k", &model.TrackAnalysis{BPM: &bpm}); err != nil {
		t.Fatalf("store: %v", err)
	}
	a, err := c.Load(ctx, "k")
	if err != nil || a != nil {
		t.Fatalf("load = %v, %v; want nil, nil", a, err)
	}

	var nilCache *AnalysisCache
	if a, err := nilCache.Load(ctx, "k"); a != nil || err != nil {
		t.Fatalf("nil cache load = %v, %v", a, err)
	}
}

func TestAnalysisCacheReportsConnectionErrors(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()
	c := NewAnalysisCache(client, time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := c.Load(ctx, "k"); err == nil {
		t.Fatal("expected an error from an unreachable server")
	}
	if err := c.Store(ctx, "k", &model.TrackAnalysis{}); err == nil {
		t.Fatal("expected an error from an unreachable server")
	}
}

func TestAnalysisKeyIsNamespaced(t *testing.T) {
	if got := analysisKey("/music/a.mp3:1:2:44100"); got != "djmix:analysis:/music/a.mp3:1:2:44100" {
		t.Fatalf("key = %q", got)
	}
}

func TestRedisHelpersWithoutConnection(t *testing.T) {
	saved := RedisClient
	RedisClient = nil
	defer func() { RedisClient = saved }()

	if err := TestRedis(); err == nil {
		t.Fatal("expected error when client is not initialized")
	}
	if err := CloseRedis(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
