package products

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/valeevte/pricewatch/internal/httpapi"
)

var (
	ErrQueueFull            = errors.New("refresh queue is full")
	ErrConfirmationRequired = errors.New("deletion must be confirmed")
)

// RefreshQueue accepts refresh work for the background worker.
type RefreshQueue interface {
	EnqueueProduct(id string) error
	EnqueueBatch(ids []string, label string) error
}

type Handler struct {
	Repo     *Repository
	Queue    RefreshQueue
	Searcher Searcher
	Logger   *zap.Logger
	// QueueStatus reports the worker state for the summary. Optional.
	QueueStatus func() any
}

func (h *Handler) Register(r *gin.Engine) {
	api := r.Group("/api")

	group := api.Group("/products")
	group.GET("", h.listProducts)
	group.POST("", h.createProduct)
	group.POST("/bulk", h.bulkCreate)
	group.POST("/import", h.importCSV)
	group.GET("/export", h.exportCSV)
	group.POST("/delete", h.deleteMany)
	group.GET("/:id", h.getProduct)
	group.PATCH("/:id", h.editProduct)
	group.DELETE("/:id", h.deleteProduct)
	group.GET("/:id/history", h.getHistory)
	group.POST("/:id/refresh", h.refreshProduct)

	api.POST("/refresh", h.refreshBatch)
	api.GET("/summary", h.summary)
	api.POST("/search", h.search)
	api.POST("/search/import", h.importSearch)
}

func (h *Handler) log() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

// fail maps domain errors onto statuses.
func (h *Handler) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, ErrConfirmationRequired):
		status = http.StatusPreconditionFailed
	case errors.Is(err, ErrQueueFull):
		status = http.StatusServiceUnavailable
	default:
		h.log().Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	httpapi.Error(c, status, err.Error(), nil)
}

func (h *Handler) listProducts(c *gin.Context) {
	category := Category(strings.TrimSpace(c.Query("category")))
	list := h.Repo.Filter(category, c.Query("q"))
	httpapi.Ok(c, list, map[string]any{"total": len(list)})
}

func (h *Handler) getProduct(c *gin.Context) {
	p, err := h.Repo.Get(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	httpapi.Ok(c, p, nil)
}

// enqueue schedules a refresh and reports whether it was accepted. A full
// queue does not fail the request that triggered it.
func (h *Handler) enqueue(ids []string, label string) bool {
	if h.Queue == nil || len(ids) == 0 {
		return false
	}
	var err error
	if len(ids) == 1 && label == "" {
		err = h.Queue.EnqueueProduct(ids[0])
	} else {
		err = h.Queue.EnqueueBatch(ids, label)
	}
	if err != nil {
		h.log().Warn("refresh not queued", zap.Strings("product_ids", ids), zap.Error(err))
		return false
	}
	return true
}

func (h *Handler) createProduct(c *gin.Context) {
	var in NewProductData
	if err := c.ShouldBindJSON(&in); err != nil {
		h.fail(c, fmt.Errorf("%w: %v", ErrInvalidInput, err))
		return
	}
	p, isNew, err := h.Repo.Add(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	queued := len(p.Competitors) > 0 && h.enqueue([]string{p.ID}, "")
	status := http.StatusOK
	if isNew {
		status = http.StatusCreated
	}
	httpapi.Respond(c, status, p, map[string]any{"created": isNew, "refresh_queued": queued})
}

func (h *Handler) bulkCreate(c *gin.Context) {
	var records []NewProductData
	if err := c.ShouldBindJSON(&records); err != nil {
		h.fail(c, fmt.Errorf("%w: %v", ErrInvalidInput, err))
		return
	}
	h.storeBulk(c, records)
}

func (h *Handler) importCSV(c *gin.Context) {
	records, err := ReadRecords(c.Request.Body)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.storeBulk(c, records)
}

func (h *Handler) storeBulk(c *gin.Context, records []NewProductData) {
	targets, err := h.Repo.AddBulk(c.Request.Context(), records)
	if err != nil {
		h.fail(c, err)
		return
	}
	ids := make([]string, 0, len(targets))
	seen := make(map[string]bool, len(targets))
	for _, p := range targets {
		if !seen[p.ID] {
			seen[p.ID] = true
			ids = append(ids, p.ID)
		}
	}
	queued := h.enqueue(ids, "import")
	httpapi.Ok(c, targets, map[string]any{"rows": len(records), "products": len(ids), "refresh_queued": queued})
}

func (h *Handler) exportCSV(c *gin.Context) {
	list := h.Repo.List()
	var buf bytes.Buffer
	write, name := WriteRecords, "products"
	if c.Query("format") == "report" {
		write, name = WriteReport, "price_report"
	}
	if err := write(&buf, list); err != nil {
		h.fail(c, err)
		return
	}
	filename := fmt.Sprintf("%s_%s.csv", name, time.Now().Format("2006-01-02"))
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func (h *Handler) editProduct(c *gin.Context) {
	var patch ProductPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		h.fail(c, fmt.Errorf("%w: %v", ErrInvalidInput, err))
		return
	}
	p, err := h.Repo.Edit(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		h.fail(c, err)
		return
	}
	httpapi.Ok(c, p, nil)
}

func (h *Handler) deleteProduct(c *gin.Context) {
	if c.Query("confirm") != "true" {
		h.fail(c, ErrConfirmationRequired)
		return
	}
	if err := h.Repo.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	httpapi.Ok(c, gin.H{"deleted": 1}, nil)
}

type deleteManyRequest struct {
	IDs     []string `json:"ids"`
	Confirm bool     `json:"confirm"`
}

func (h *Handler) deleteMany(c *gin.Context) {
	var req deleteManyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, fmt.Errorf("%w: %v", ErrInvalidInput, err))
		return
	}
	if !req.Confirm {
		h.fail(c, ErrConfirmationRequired)
		return
	}
	n, err := h.Repo.DeleteMany(c.Request.Context(), req.IDs)
	if err != nil {
		h.fail(c, err)
		return
	}
	httpapi.Ok(c, gin.H{"deleted": n}, nil)
}

type competitorHistory struct {
	CompetitorID string       `json:"competitor_id"`
	Name         string       `json:"name"`
	History      []PricePoint `json:"history"`
}

func (h *Handler) getHistory(c *gin.Context) {
	p, err := h.Repo.Get(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]competitorHistory, 0, len(p.Competitors))
	for _, comp := range p.Competitors {
		out = append(out, competitorHistory{CompetitorID: comp.ID, Name: comp.Name, History: comp.PriceHistory})
	}
	httpapi.Ok(c, out, nil)
}

func (h *Handler) refreshProduct(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.Repo.Get(id); err != nil {
		h.fail(c, err)
		return
	}
	if h.Queue == nil {
		h.fail(c, ErrQueueFull)
		return
	}
	if err := h.Queue.EnqueueProduct(id); err != nil {
		h.fail(c, err)
		return
	}
	httpapi.Respond(c, http.StatusAccepted, gin.H{"queued": id}, nil)
}

type refreshRequest struct {
	IDs []string `json:"ids"`
}

func (h *Handler) refreshBatch(c *gin.Context) {
	var req refreshRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.fail(c, fmt.Errorf("%w: %v", ErrInvalidInput, err))
			return
		}
	}
	if h.Queue == nil {
		h.fail(c, ErrQueueFull)
		return
	}
	if err := h.Queue.EnqueueBatch(req.IDs, ""); err != nil {
		h.fail(c, err)
		return
	}
	httpapi.Respond(c, http.StatusAccepted, gin.H{"targets": h.countTargets(req.IDs)}, nil)
}

// countTargets reports how many products a batch over ids will visit: every
// product when ids is empty, otherwise the distinct ids that exist.
func (h *Handler) countTargets(ids []string) int {
	all := h.Repo.IDs()
	if len(ids) == 0 {
		return len(all)
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	n := 0
	for _, id := range all {
		if want[id] {
			n++
		}
	}
	return n
}

func (h *Handler) summary(c *gin.Context) {
	meta := map[string]any{}
	if h.QueueStatus != nil {
		meta["scheduler"] = h.QueueStatus()
	}
	httpapi.Ok(c, h.Repo.Summary(), meta)
}

type searchRequest struct {
	Query string `json:"query"`
}

func (h *Handler) search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Query) == "" {
		h.fail(c, fmt.Errorf("%w: query is required", ErrInvalidInput))
		return
	}
	if h.Searcher == nil {
		httpapi.Error(c, http.StatusServiceUnavailable, "search is not configured", nil)
		return
	}
	results, err := h.Searcher.Search(c.Request.Context(), req.Query)
	if err != nil {
		h.log().Warn("search failed", zap.String("query", req.Query), zap.Error(err))
		httpapi.Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	httpapi.Ok(c, results, map[string]any{"total": len(results)})
}

type searchImportRequest struct {
	Results []SearchResult `json:"results"`
}

func (h *Handler) importSearch(c *gin.Context) {
	var req searchImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, fmt.Errorf("%w: %v", ErrInvalidInput, err))
		return
	}
	if len(req.Results) == 0 {
		h.fail(c, fmt.Errorf("%w: no results selected", ErrInvalidInput))
		return
	}
	h.storeBulk(c, ImportSearchResults(req.Results))
}
