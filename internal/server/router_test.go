package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/gin-gonic/gin"
	"github.com/menthalabs/facet/internal/catalog"
	"gorm.io/gorm"
)

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:server_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&catalog.Category{}, &catalog.Item{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	service, err := catalog.New(catalog.Config{Database: db})
	if err != nil {
		t.Fatalf("failed to construct catalog: %v", err)
	}
	handler, err := NewHTTPHandler(Dependencies{Catalog: service})
	if err != nil {
		t.Fatalf("failed to construct handler: %v", err)
	}
	return handler
}

func performJSON(t *testing.T, handler http.Handler, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var request *http.Request
	if body == "" {
		request = httptest.NewRequest(method, target, http.NoBody)
	} else {
		request = httptest.NewRequest(method, target, strings.NewReader(body))
		request.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		request.Header.Set(key, value)
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

func createCategoryOverHTTP(t *testing.T, handler http.Handler, name string) categoryPayload {
	t.Helper()
	recorder := performJSON(t, handler, http.MethodPost, "/catalog/categories", fmt.Sprintf(`{"name":%q}`, name), nil)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected created status, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var payload categoryPayload
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode category: %v", err)
	}
	return payload
}

func TestCreateCategoryReturnsResolvedSlug(t *testing.T) {
	handler := newTestHandler(t)

	created := createCategoryOverHTTP(t, handler, "Science Fiction")
	if created.Slug != "science-fiction" {
		t.Fatalf("unexpected slug: %q", created.Slug)
	}
	if created.ID == "" {
		t.Fatalf("expected generated identifier")
	}
}

func TestCreateCategoryRejectsBlankName(t *testing.T) {
	handler := newTestHandler(t)

	recorder := performJSON(t, handler, http.MethodPost, "/catalog/categories", `{"name":"  "}`, nil)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected bad request status, got %d", recorder.Code)
	}
}

func TestReorderRequiresXMLHttpRequestMarker(t *testing.T) {
	handler := newTestHandler(t)
	created := createCategoryOverHTTP(t, handler, "Books")

	body := fmt.Sprintf(`{"order":[%q]}`, created.ID)
	recorder := performJSON(t, handler, http.MethodPost, "/catalog/categories/reorder", body, nil)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected not found status, got %d", recorder.Code)
	}
}

func TestReorderRequiresOrderList(t *testing.T) {
	handler := newTestHandler(t)

	headers := map[string]string{requestedWithHeader: "XMLHttpRequest"}
	recorder := performJSON(t, handler, http.MethodPost, "/catalog/categories/reorder", `{"order":[]}`, headers)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected not found status, got %d", recorder.Code)
	}
}

func TestReorderAppliesAndRespondsTrue(t *testing.T) {
	handler := newTestHandler(t)
	books := createCategoryOverHTTP(t, handler, "Books")
	games := createCategoryOverHTTP(t, handler, "Games")
	music := createCategoryOverHTTP(t, handler, "Music")

	headers := map[string]string{requestedWithHeader: "XMLHttpRequest"}
	body := fmt.Sprintf(`{"order":[%q,%q,%q]}`, music.ID, books.ID, games.ID)
	recorder := performJSON(t, handler, http.MethodPost, "/catalog/categories/reorder", body, headers)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected ok status, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if recorder.Body.String() != "true" {
		t.Fatalf("expected literal true body, got %s", recorder.Body.String())
	}

	listRecorder := performJSON(t, handler, http.MethodGet, "/catalog/categories", "", nil)
	if listRecorder.Code != http.StatusOK {
		t.Fatalf("expected ok status, got %d", listRecorder.Code)
	}
	var listing struct {
		Categories []categoryPayload `json:"categories"`
	}
	if err := json.Unmarshal(listRecorder.Body.Bytes(), &listing); err != nil {
		t.Fatalf("failed to decode listing: %v", err)
	}
	want := []string{music.ID, books.ID, games.ID}
	if len(listing.Categories) != len(want) {
		t.Fatalf("expected %d categories, got %d", len(want), len(listing.Categories))
	}
	for i, category := range listing.Categories {
		if category.ID != want[i] {
			t.Fatalf("unexpected order at %d: got %s", i, category.ID)
		}
		if category.Position != int64(i+1) {
			t.Fatalf("expected position %d, got %d", i+1, category.Position)
		}
	}
}

func TestReorderRejectsUnknownIdentifier(t *testing.T) {
	handler := newTestHandler(t)
	books := createCategoryOverHTTP(t, handler, "Books")

	headers := map[string]string{requestedWithHeader: "XMLHttpRequest"}
	body := fmt.Sprintf(`{"order":[%q,"ghost"]}`, books.ID)
	recorder := performJSON(t, handler, http.MethodPost, "/catalog/categories/reorder", body, headers)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected bad request status, got %d", recorder.Code)
	}
}

func TestItemLifecycleOverHTTP(t *testing.T) {
	handler := newTestHandler(t)
	books := createCategoryOverHTTP(t, handler, "Books")

	body := fmt.Sprintf(`{"category_id":%q,"title":"Dune"}`, books.ID)
	createRecorder := performJSON(t, handler, http.MethodPost, "/catalog/items", body, nil)
	if createRecorder.Code != http.StatusCreated {
		t.Fatalf("expected created status, got %d: %s", createRecorder.Code, createRecorder.Body.String())
	}
	var created itemPayload
	if err := json.Unmarshal(createRecorder.Body.Bytes(), &created); err != nil {
		t.Fatalf("failed to decode item: %v", err)
	}
	if created.Slug != "dune" {
		t.Fatalf("unexpected slug: %q", created.Slug)
	}

	patchRecorder := performJSON(t, handler, http.MethodPatch, "/catalog/items/"+created.ID, `{"title":"Dune Messiah"}`, nil)
	if patchRecorder.Code != http.StatusOK {
		t.Fatalf("expected ok status, got %d: %s", patchRecorder.Code, patchRecorder.Body.String())
	}
	var updated itemPayload
	if err := json.Unmarshal(patchRecorder.Body.Bytes(), &updated); err != nil {
		t.Fatalf("failed to decode item: %v", err)
	}
	if updated.Slug != "dune-messiah" {
		t.Fatalf("expected regenerated slug, got %q", updated.Slug)
	}

	deleteRecorder := performJSON(t, handler, http.MethodDelete, "/catalog/items/"+created.ID, "", nil)
	if deleteRecorder.Code != http.StatusNoContent {
		t.Fatalf("expected no content status, got %d", deleteRecorder.Code)
	}

	getRecorder := performJSON(t, handler, http.MethodGet, "/catalog/items/"+created.ID, "", nil)
	if getRecorder.Code != http.StatusNotFound {
		t.Fatalf("expected not found status, got %d", getRecorder.Code)
	}
}

func TestCreateItemUnderUnknownCategoryReturnsNotFound(t *testing.T) {
	handler := newTestHandler(t)

	recorder := performJSON(t, handler, http.MethodPost, "/catalog/items", `{"category_id":"ghost","title":"Dune"}`, nil)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected not found status, got %d", recorder.Code)
	}
}

func TestBulkDeleteRequiresCategoryFilter(t *testing.T) {
	handler := newTestHandler(t)

	recorder := performJSON(t, handler, http.MethodDelete, "/catalog/items", "", nil)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected bad request status, got %d", recorder.Code)
	}
}

func TestBulkDeleteRemovesCategoryItems(t *testing.T) {
	handler := newTestHandler(t)
	books := createCategoryOverHTTP(t, handler, "Books")

	for _, title := range []string{"Dune", "Foundation"} {
		body := fmt.Sprintf(`{"category_id":%q,"title":%q}`, books.ID, title)
		recorder := performJSON(t, handler, http.MethodPost, "/catalog/items", body, nil)
		if recorder.Code != http.StatusCreated {
			t.Fatalf("expected created status, got %d", recorder.Code)
		}
	}

	recorder := performJSON(t, handler, http.MethodDelete, "/catalog/items?category="+books.ID, "", nil)
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected no content status, got %d", recorder.Code)
	}
}

func TestNewHTTPHandlerRequiresCatalog(t *testing.T) {
	if _, err := NewHTTPHandler(Dependencies{}); err == nil {
		t.Fatalf("expected dependency error")
	}
}
