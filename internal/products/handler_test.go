package products

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/valeevte/pricewatch/internal/state"
)

type stubQueue struct {
	products []string
	batches  [][]string
	labels   []string
	full     bool
}

func (q *stubQueue) EnqueueProduct(id string) error {
	if q.full {
		return ErrQueueFull
	}
	q.products = append(q.products, id)
	return nil
}

func (q *stubQueue) EnqueueBatch(ids []string, label string) error {
	if q.full {
		return ErrQueueFull
	}
	q.batches = append(q.batches, ids)
	q.labels = append(q.labels, label)
	return nil
}

type stubSearcher struct {
	results []SearchResult
}

func (s *stubSearcher) Search(ctx context.Context, query string) ([]SearchResult, error) {
	return s.results, nil
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    map[string]any  `json:"meta"`
}

type apiFixture struct {
	repo   *Repository
	notes  *recordingNotifier
	queue  *stubQueue
	router *gin.Engine
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	repo, notes := newTestRepository(t, state.NewMemoryStore(), ValidateOptions{})
	queue := &stubQueue{}
	r := gin.New()
	h := &Handler{
		Repo:        repo,
		Queue:       queue,
		Searcher:    &stubSearcher{results: []SearchResult{{Name: "Asus TUF", Price: d(19_990_000), SKU: "TUF", Category: "Laptop Gaming"}}},
		QueueStatus: func() any { return map[string]int{"queued": 0} },
	}
	h.Register(r)
	return &apiFixture{repo: repo, notes: notes, queue: queue, router: r}
}

func (f *apiFixture) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return w, env
}

const createBody = `{"name":"Dell G15","sku":"DG15","my_price":"25000000","strategy":"match_lowest","category":"Laptop",
	"competitors":[{"name":"GearVN","url":"https://gearvn.com/g15"}]}`

func TestHandler_CreateThenMerge(t *testing.T) {
	f := newAPIFixture(t)

	w, env := f.do(t, http.MethodPost, "/api/products", createBody)
	if w.Code != http.StatusCreated || env.Code != 0 {
		t.Fatalf("status=%d env=%+v", w.Code, env)
	}
	var p Product
	if err := json.Unmarshal(env.Data, &p); err != nil {
		t.Fatalf("decode product: %v", err)
	}
	if len(f.queue.products) != 1 || f.queue.products[0] != p.ID {
		t.Fatalf("refresh not queued: %v", f.queue.products)
	}

	w, _ = f.do(t, http.MethodPost, "/api/products", strings.Replace(createBody, "Dell G15", "Dell G15 v2", 1))
	if w.Code != http.StatusOK {
		t.Fatalf("merge status=%d want 200", w.Code)
	}
	if n := len(f.repo.List()); n != 1 {
		t.Fatalf("products=%d want 1", n)
	}
}

func TestHandler_ErrorStatuses(t *testing.T) {
	f := newAPIFixture(t)
	_, env := f.do(t, http.MethodPost, "/api/products", createBody)
	var p Product
	_ = json.Unmarshal(env.Data, &p)

	cases := []struct {
		method, path, body string
		want               int
	}{
		{http.MethodPost, "/api/products", `{"name":""}`, http.StatusBadRequest},
		{http.MethodPost, "/api/products", `{"name":"x","strategy":"undercut"}`, http.StatusBadRequest},
		{http.MethodGet, "/api/products/missing", "", http.StatusNotFound},
		{http.MethodDelete, "/api/products/" + p.ID, "", http.StatusPreconditionFailed},
		{http.MethodPost, "/api/products/delete", `{"ids":["` + p.ID + `"]}`, http.StatusPreconditionFailed},
		{http.MethodPatch, "/api/products/missing", `{"name":"y"}`, http.StatusNotFound},
		{http.MethodPost, "/api/search", `{"query":" "}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		w, env := f.do(t, tc.method, tc.path, tc.body)
		if w.Code != tc.want || env.Code != tc.want {
			t.Errorf("%s %s: status=%d code=%d want %d", tc.method, tc.path, w.Code, env.Code, tc.want)
		}
	}
	if _, err := f.repo.Get(p.ID); err != nil {
		t.Fatalf("unconfirmed delete removed the product")
	}

	f.queue.full = true
	if w, _ := f.do(t, http.MethodPost, "/api/refresh", ""); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("refresh with full queue status=%d want 503", w.Code)
	}
	if w, _ := f.do(t, http.MethodPost, "/api/products/"+p.ID+"/refresh", ""); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("product refresh with full queue status=%d want 503", w.Code)
	}
}

func TestHandler_RefreshReportsTargets(t *testing.T) {
	f := newAPIFixture(t)
	f.repo.items = []Product{trackedProduct(), {ID: "p-2", Name: "Mouse", Category: CategoryPeripherals}}

	cases := []struct {
		body string
		want float64
	}{
		{"", 2},
		{`{"ids":["p-2","p-2","gone"]}`, 1},
	}
	for _, tc := range cases {
		w, env := f.do(t, http.MethodPost, "/api/refresh", tc.body)
		if w.Code != http.StatusAccepted {
			t.Fatalf("body %q: status=%d", tc.body, w.Code)
		}
		var data map[string]float64
		if err := json.Unmarshal(env.Data, &data); err != nil || data["targets"] != tc.want {
			t.Fatalf("body %q: data=%v err=%v want targets %v", tc.body, data, err, tc.want)
		}
	}
}

func TestHandler_DeleteConfirmed(t *testing.T) {
	f := newAPIFixture(t)
	_, env := f.do(t, http.MethodPost, "/api/products", createBody)
	var p Product
	_ = json.Unmarshal(env.Data, &p)

	if w, _ := f.do(t, http.MethodDelete, "/api/products/"+p.ID+"?confirm=true", ""); w.Code != http.StatusOK {
		t.Fatalf("delete status=%d", w.Code)
	}
	if len(f.repo.List()) != 0 {
		t.Fatalf("product not deleted")
	}
}

func TestHandler_ImportQueuesBatchAndExports(t *testing.T) {
	f := newAPIFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/api/products/import", strings.NewReader(sampleImport))
	req.Header.Set("Content-Type", "text/csv")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("import status=%d body=%s", w.Code, w.Body.String())
	}
	if len(f.repo.List()) != 3 {
		t.Fatalf("products=%d want 3", len(f.repo.List()))
	}
	if len(f.queue.batches) != 1 || f.queue.labels[0] != "import" || len(f.queue.batches[0]) != 3 {
		t.Fatalf("batches=%v labels=%v", f.queue.batches, f.queue.labels)
	}

	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/products/export", nil))
	if w.Code != http.StatusOK || !strings.HasPrefix(w.Header().Get("Content-Type"), "text/csv") {
		t.Fatalf("export status=%d type=%s", w.Code, w.Header().Get("Content-Type"))
	}
	recs, err := ReadRecords(w.Body)
	if err != nil || len(recs) != 3 {
		t.Fatalf("export not re-importable: %d records, err=%v", len(recs), err)
	}
}

func TestHandler_SearchImportAndSummary(t *testing.T) {
	f := newAPIFixture(t)
	w, env := f.do(t, http.MethodPost, "/api/search", `{"query":"asus"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("search status=%d", w.Code)
	}
	var results []SearchResult
	if err := json.Unmarshal(env.Data, &results); err != nil || len(results) != 1 {
		t.Fatalf("results=%v err=%v", results, err)
	}

	body, _ := json.Marshal(searchImportRequest{Results: results})
	if w, _ := f.do(t, http.MethodPost, "/api/search/import", string(body)); w.Code != http.StatusOK {
		t.Fatalf("search import status=%d", w.Code)
	}
	list := f.repo.List()
	if len(list) != 1 || list[0].Category != CategoryLaptop || len(list[0].Competitors) != 0 {
		t.Fatalf("imported=%+v", list)
	}
	if len(f.queue.batches) != 1 || f.queue.labels[0] != "import" || f.queue.batches[0][0] != list[0].ID {
		t.Fatalf("search import not queued like a bulk import: batches=%v labels=%v", f.queue.batches, f.queue.labels)
	}
	if len(f.notes.imports) != 1 || f.notes.imports[0] != 1 {
		t.Fatalf("import start notifications=%v want [1]", f.notes.imports)
	}

	w, env = f.do(t, http.MethodGet, "/api/summary", "")
	if w.Code != http.StatusOK || env.Meta["scheduler"] == nil {
		t.Fatalf("summary status=%d meta=%v", w.Code, env.Meta)
	}
	var s Summary
	if err := json.Unmarshal(env.Data, &s); err != nil || s.Products != 1 {
		t.Fatalf("summary=%+v err=%v", s, err)
	}
}

func TestHandler_ListFiltersAndHistory(t *testing.T) {
	f := newAPIFixture(t)
	f.repo.items = []Product{trackedProduct(), {ID: "p-2", Name: "Mouse", Category: CategoryPeripherals}}

	_, env := f.do(t, http.MethodGet, "/api/products?category=Laptop", "")
	var list []Product
	if err := json.Unmarshal(env.Data, &list); err != nil || len(list) != 1 || list[0].ID != "p-1" {
		t.Fatalf("filtered=%+v err=%v", list, err)
	}

	_, env = f.do(t, http.MethodGet, "/api/products/p-1/history", "")
	var hist []competitorHistory
	if err := json.Unmarshal(env.Data, &hist); err != nil || len(hist) != 1 || len(hist[0].History) != 5 {
		t.Fatalf("history=%+v err=%v", hist, err)
	}
}
