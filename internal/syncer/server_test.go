// ABOUTME: In-memory sync server used by coordinator tests
// ABOUTME: Implements POST /items/sync with token cursors, echoes and failure injection

package syncer

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/2389/sealnote/internal/api"
	"github.com/2389/sealnote/internal/models"
)

type storedRecord struct {
	rec models.ItemRecord
	seq int
}

// fakeServer keeps the latest record per uuid and a change sequence number.
type fakeServer struct {
	mu       sync.Mutex
	records  map[string]storedRecord
	seq      int
	requests []api.SyncRequest

	// fail, when non-zero, makes every request fail with that status.
	fail int
	// onRequest runs before the request is processed, outside the lock.
	onRequest func()
}

func newFakeServer(t *testing.T) (*fakeServer, *api.Client) {
	t.Helper()
	f := &fakeServer{records: make(map[string]storedRecord)}
	srv := httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(srv.Close)
	return f, api.NewClient(srv.URL, 5*time.Second).WithToken("test-token")
}

func (f *fakeServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/items/sync" || r.Header.Get("Authorization") != "Bearer test-token" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req api.SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if hook := f.hook(); hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, req)
	if f.fail != 0 {
		http.Error(w, "injected failure", f.fail)
		return
	}

	since := 0
	if req.SyncToken != "" {
		since, _ = strconv.Atoi(req.SyncToken)
	}

	pushed := make(map[string]bool, len(req.Items))
	saved := make([]models.ItemRecord, 0, len(req.Items))
	for _, rec := range req.Items {
		f.seq++
		rec.UpdatedAt = time.Now().UTC()
		f.records[rec.UUID] = storedRecord{rec: rec, seq: f.seq}
		pushed[rec.UUID] = true
		saved = append(saved, rec)
	}

	retrieved := []models.ItemRecord{}
	for id, s := range f.records {
		if s.seq > since && !pushed[id] {
			retrieved = append(retrieved, s.rec)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(api.SyncResponse{
		SyncToken:      strconv.Itoa(f.seq),
		RetrievedItems: retrieved,
		SavedItems:     saved,
	})
}

func (f *fakeServer) hook() func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.onRequest
}

func (f *fakeServer) setHook(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onRequest = fn
}

func (f *fakeServer) setFail(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = status
}

func (f *fakeServer) record(uuid string) (models.ItemRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.records[uuid]
	return s.rec, ok
}

// tamper rewrites a stored record and marks it changed.
func (f *fakeServer) tamper(uuid string, fn func(rec *models.ItemRecord)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.records[uuid]
	fn(&s.rec)
	f.seq++
	s.seq = f.seq
	f.records[uuid] = s
}

func (f *fakeServer) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeServer) request(i int) api.SyncRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[i]
}
