package infra

import (
	"context"
	"testing"
	"time"

	"github.com/JonissonGomes/fiap-prova-sub-fase-3-sub000/middleware/ratelimit/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisStatsStore_RecordsTotalsAndCategories(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	s := NewRedisStatsStore(rdb, WithStatsBucket("none"))
	ctx := context.Background()

	events := []domain.StatsEvent{
		{Key: "10.0.0.1", Category: domain.CategoryAuth, Allowed: true, Method: "POST", Path: "/auth/login", At: time.Now()},
		{Key: "10.0.0.1", Category: domain.CategoryAuth, Allowed: false, Fallback: true, Method: "POST", Path: "/auth/login", At: time.Now()},
	}
	for _, ev := range events {
		if err := s.Record(ctx, ev); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	if got := mr.HGet("ratelimit:stats:total", "allowed"); got != "1" {
		t.Fatalf("expected total allowed=1, got %q", got)
	}
	if got := mr.HGet("ratelimit:stats:total", "denied"); got != "1" {
		t.Fatalf("expected total denied=1, got %q", got)
	}
	if got := mr.HGet("ratelimit:stats:total", "fallback"); got != "1" {
		t.Fatalf("expected total fallback=1, got %q", got)
	}
	if got := mr.HGet("ratelimit:stats:category", "auth:denied"); got != "1" {
		t.Fatalf("expected category auth:denied=1, got %q", got)
	}
	if got := mr.HGet("ratelimit:stats:route", "POST /auth/login:allowed"); got != "1" {
		t.Fatalf("expected route counter=1, got %q", got)
	}
}
