package application

import (
	"context"
	"testing"
	"time"

	"github.com/JonissonGomes/fiap-prova-sub-fase-3-sub000/middleware/ratelimit/domain"
)

// fakeStore conta chamadas e devolve uma sequência de respostas pré-programadas.
type fakeStore struct {
	calls int
	resps []fakeResp
}

type fakeResp struct {
	dec domain.Decision
	err error
}

func (f *fakeStore) Allow(_ context.Context, _ domain.Key, _ domain.Policy) (domain.Decision, error) {
	i := f.calls
	f.calls++
	if i >= len(f.resps) {
		i = len(f.resps) - 1
	}
	return f.resps[i].dec, f.resps[i].err
}

var testPolicy = domain.Policy{Limit: 5, Window: 60 * time.Second}

func TestService_PrefersPrimary(t *testing.T) {
	primary := &fakeStore{resps: []fakeResp{{dec: domain.Decision{Allowed: true, Count: 1, Limit: 5}}}}
	fallback := &fakeStore{resps: []fakeResp{{dec: domain.Decision{Allowed: true}}}}

	svc := NewService(primary, fallback, nil)
	dec := svc.Decide(context.Background(), "k", testPolicy)

	if !dec.Allowed || dec.Fallback {
		t.Fatalf("expected primary decision, got %+v", dec)
	}
	if primary.calls != 1 || fallback.calls != 0 {
		t.Fatalf("expected 1 primary call and 0 fallback calls, got %d/%d", primary.calls, fallback.calls)
	}
}

func TestService_RetriesPrimaryOnceBeforeFallback(t *testing.T) {
	primary := &fakeStore{resps: []fakeResp{
		{err: domain.ErrBackendUnavailable},
		{dec: domain.Decision{Allowed: true, Count: 2, Limit: 5}},
	}}
	fallback := &fakeStore{resps: []fakeResp{{dec: domain.Decision{Allowed: true}}}}

	svc := NewService(primary, fallback, nil)
	dec := svc.Decide(context.Background(), "k", testPolicy)

	if !dec.Allowed || dec.Fallback {
		t.Fatalf("expected retried primary decision, got %+v", dec)
	}
	if primary.calls != 2 || fallback.calls != 0 {
		t.Fatalf("expected 2 primary calls and 0 fallback calls, got %d/%d", primary.calls, fallback.calls)
	}
}

func TestService_DegradesSingleCallToFallback(t *testing.T) {
	primary := &fakeStore{resps: []fakeResp{{err: domain.ErrBackendUnavailable}}}
	fallback := &fakeStore{resps: []fakeResp{{dec: domain.Decision{Allowed: false, Count: 5, Limit: 5}}}}

	svc := NewService(primary, fallback, nil)
	dec := svc.Decide(context.Background(), "k", testPolicy)

	if dec.Allowed {
		t.Fatalf("fallback said no; decision must be no")
	}
	if !dec.Fallback {
		t.Fatalf("expected decision to be marked as fallback")
	}
	if fallback.calls != 1 {
		t.Fatalf("expected fallback to be consulted once, got %d", fallback.calls)
	}
}

func TestService_PrimaryIsRetriedOnNextCall(t *testing.T) {
	// queda transitória: próxima chamada volta ao primário sem religamento manual
	primary := &fakeStore{resps: []fakeResp{
		{err: domain.ErrBackendUnavailable},
		{err: domain.ErrBackendUnavailable},
		{dec: domain.Decision{Allowed: true, Count: 1, Limit: 5}},
	}}
	fallback := &fakeStore{resps: []fakeResp{{dec: domain.Decision{Allowed: true}}}}

	svc := NewService(primary, fallback, nil)

	if dec := svc.Decide(context.Background(), "k", testPolicy); !dec.Fallback {
		t.Fatalf("expected first decision from fallback, got %+v", dec)
	}
	if dec := svc.Decide(context.Background(), "k", testPolicy); dec.Fallback {
		t.Fatalf("expected recovered primary decision, got %+v", dec)
	}
	if primary.calls != 3 {
		t.Fatalf("expected primary to be attempted again, calls=%d", primary.calls)
	}
}

func TestService_NilPrimaryUsesLocalOnly(t *testing.T) {
	fallback := &fakeStore{resps: []fakeResp{{dec: domain.Decision{Allowed: true, Count: 1, Limit: 5}}}}

	svc := NewService(nil, fallback, nil)
	dec := svc.Decide(context.Background(), "k", testPolicy)

	if !dec.Allowed {
		t.Fatalf("expected allowed")
	}
	// modo local forçado não é degradação
	if dec.Fallback {
		t.Fatalf("local-only mode must not be flagged as fallback")
	}
}

func TestService_FailsOpenWhenEverythingBreaks(t *testing.T) {
	primary := &fakeStore{resps: []fakeResp{{err: domain.ErrBackendUnavailable}}}
	fallback := &fakeStore{resps: []fakeResp{{err: domain.ErrBackendUnavailable}}}

	svc := NewService(primary, fallback, nil)
	dec := svc.Decide(context.Background(), "k", testPolicy)

	if !dec.Allowed {
		t.Fatalf("limiter failure must never block traffic, got %+v", dec)
	}
}
