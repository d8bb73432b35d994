package session

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/onnwee/grizzpector/persistence"
)

func TestStorePutGet(t *testing.T) {
	st := NewStore(nil)
	a := &Session{identity: testIdentity}
	b := &Session{identity: testIdentity}

	if _, ok := st.Get(context.Background(), testIdentity); ok {
		t.Fatal("Get() on empty store returned a session")
	}
	st.Put(testIdentity, a)
	st.Put(testIdentity, b)
	got, ok := st.Get(context.Background(), testIdentity)
	if !ok || got != b {
		t.Fatalf("Get() = %p, %v; want latest session %p", got, ok, b)
	}
	if st.Len() != 1 {
		t.Errorf("Len() = %d, want 1", st.Len())
	}
}

func TestStoreLoader(t *testing.T) {
	loaded := &Session{identity: testIdentity}
	tests := []struct {
		name   string
		loader Loader
		want   bool
	}{
		{"restored", func(context.Context, Identity) (*Session, error) { return loaded, nil }, true},
		{"never signed in", func(context.Context, Identity) (*Session, error) {
			return nil, fmt.Errorf("load: %w", persistence.ErrNotFound)
		}, false},
		{"backend failure", func(context.Context, Identity) (*Session, error) {
			return nil, persistence.ErrPersistence
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			st := NewStore(func(ctx context.Context, id Identity) (*Session, error) {
				calls++
				return tt.loader(ctx, id)
			})
			got, ok := st.Get(context.Background(), testIdentity)
			if ok != tt.want {
				t.Fatalf("Get() ok = %v, want %v", ok, tt.want)
			}
			if tt.want && got != loaded {
				t.Errorf("Get() returned %p, want %p", got, loaded)
			}
			// A restored session is cached; absent users hit the loader every time.
			st.Get(context.Background(), testIdentity)
			wantCalls := 2
			if tt.want {
				wantCalls = 1
			}
			if calls != wantCalls {
				t.Errorf("loader called %d times, want %d", calls, wantCalls)
			}
		})
	}
}

func TestStoreRestoresFromManager(t *testing.T) {
	m, _, _ := newTestManager(t)
	inner := validInner("bullet-1")
	if _, err := m.CreateSession(context.Background(), testIdentity, validOuter(), Options{Inner: &inner}); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	st := NewStore(m.Restore)
	s, ok := st.Get(context.Background(), testIdentity)
	if !ok {
		t.Fatal("Get() did not restore the persisted session")
	}
	if s.Inner().BulletToken != "bullet-1" {
		t.Errorf("restored inner = %+v", s.Inner())
	}
	if _, ok := st.Get(context.Background(), Identity{ID: "7", Username: "octoling"}); ok {
		t.Error("Get() returned a session for an unknown user")
	}
}

func TestStoreConcurrentAccess(t *testing.T) {
	st := NewStore(nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		id := Identity{ID: fmt.Sprint(i), Username: "user"}
		go func() {
			defer wg.Done()
			st.Put(id, &Session{identity: id})
		}()
		go func() {
			defer wg.Done()
			st.Get(context.Background(), id)
		}()
	}
	wg.Wait()
	if st.Len() != 50 {
		t.Errorf("Len() = %d, want 50", st.Len())
	}
}
