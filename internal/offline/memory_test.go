package offline

import (
	"fmt"
	"net/http"
	"sync"
	"testing"
)

func TestMemoryStore_BasicOperations(t *testing.T) {
	s := NewMemoryStorage(0)
	st, err := s.Open("v1")
	if err != nil {
		t.Fatal(err)
	}

	entry := Entry{Status: http.StatusOK, Header: http.Header{"X": {"1"}}, Body: []byte("body")}
	if err := st.Put("k", entry); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok := st.Get("k")
	if !ok || string(got.Body) != "body" || got.Key != "k" {
		t.Fatalf("Get = %+v, %v", got, ok)
	}

	// Stored data must not alias caller buffers.
	entry.Body[0] = 'X'
	got.Header.Set("X", "2")
	again, _ := st.Get("k")
	if string(again.Body) != "body" || again.Header.Get("X") != "1" {
		t.Errorf("store aliased caller data: %+v", again)
	}

	if err := st.Delete("k"); err != nil {
		t.Fatal(err)
	}
	if st.Len() != 0 || st.Size() != 0 {
		t.Errorf("Len/Size after delete = %d/%d", st.Len(), st.Size())
	}
}

func TestMemoryStore_LRUEviction(t *testing.T) {
	s := NewMemoryStorage(100)
	st, _ := s.Open("v1")

	for i := 0; i < 4; i++ {
		if err := st.Put(fmt.Sprintf("k%d", i), Entry{Body: make([]byte, 22)}); err != nil {
			t.Fatal(err)
		}
	}
	st.Get("k0")
	if err := st.Put("k4", Entry{Body: make([]byte, 22)}); err != nil {
		t.Fatal(err)
	}

	if _, ok := st.Get("k0"); !ok {
		t.Error("recently used k0 evicted")
	}
	if _, ok := st.Get("k1"); ok {
		t.Error("least recently used k1 kept")
	}
	if err := st.Put("big", Entry{Body: make([]byte, 200)}); err != ErrItemTooLarge {
		t.Errorf("err = %v, want %v", err, ErrItemTooLarge)
	}
}

func TestMemoryStorage_OpenDeleteNames(t *testing.T) {
	s := NewMemoryStorage(0)
	if _, err := s.Open(""); err != ErrInvalidName {
		t.Errorf("Open(\"\") err = %v", err)
	}

	a, _ := s.Open("b")
	b, _ := s.Open("b")
	if a != b {
		t.Error("Open returned a different handle for the same name")
	}
	_, _ = s.Open("a")

	names, _ := s.Names()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("Names() = %v", names)
	}

	_ = a.Put("k", Entry{Body: []byte("x")})
	if ok, _ := s.Delete("b"); !ok {
		t.Error("Delete(b) reported nothing removed")
	}
	if _, ok := a.Get("k"); ok {
		t.Error("entry readable through a deleted store")
	}
	if s.Has("b") {
		t.Error("Has(b) after delete")
	}
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	st, _ := NewMemoryStorage(1024).Open("v1")

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				key := fmt.Sprintf("k%d-%d", g, i%5)
				_ = st.Put(key, Entry{Body: make([]byte, 10)})
				st.Get(key)
			}
		}(g)
	}
	wg.Wait()

	if st.Size() > 1024 {
		t.Errorf("size %d over capacity", st.Size())
	}
}

func TestDescribe(t *testing.T) {
	s := NewMemoryStorage(0)
	st, _ := s.Open("v1")
	_ = st.Put("k", Entry{Body: []byte("abc")})

	infos, err := Describe(s)
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 1 || infos[0].Name != "v1" || infos[0].Entries != 1 || infos[0].Size == 0 {
		t.Errorf("Describe() = %+v", infos)
	}
}
