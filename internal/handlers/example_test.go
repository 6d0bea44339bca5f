package handlers_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/Totarae/shortlink/internal/handlers"
	"github.com/Totarae/shortlink/internal/service"
	"github.com/Totarae/shortlink/internal/storage"
	"github.com/Totarae/shortlink/internal/util"
	"go.uber.org/zap"
)

// ExampleHandler_ReceiveShorten демонстрирует работу метода ReceiveShorten.
func ExampleHandler_ReceiveShorten() {
	store, _ := storage.New("", nil)
	svc := service.NewShortenerService(store, util.NewCodeGenerator(6), zap.NewNop(), "http://localhost")
	h := handlers.NewHandler(svc, zap.NewNop())

	body := `{"original_url":"https://yandex.ru","ttl_hours":24}`
	req := httptest.NewRequest(http.MethodPost, "/api/shorten", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	h.ReceiveShorten(rec, req)
	resp := rec.Result()
	defer resp.Body.Close()

	var result map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&result)

	fmt.Println(resp.StatusCode)
	fmt.Println(strings.HasPrefix(result["short_url"].(string), "http://localhost/"))
	fmt.Println(result["expires_at"] != nil)

	// Output:
	// 201
	// true
	// true
}
