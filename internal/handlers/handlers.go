package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/Totarae/shortlink/internal/model"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxBodySize = 64 << 10

// LinkService операции над ссылками, которые нужны HTTP-слою.
type LinkService interface {
	Shorten(ctx context.Context, req model.ShortenRequest) (*model.ShortenResponse, error)
	Resolve(ctx context.Context, code string) (model.Resolution, error)
	List(ctx context.Context, search string) ([]*model.LinkRecord, error)
	Preview(ctx context.Context, req model.PreviewRequest) (model.Preview, error)
	ShortURL(code string) string
	Ping(ctx context.Context) error
}

// Handler HTTP-обработчики сервиса.
type Handler struct {
	service LinkService
	logger  *zap.Logger
}

func NewHandler(service LinkService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, logger: logger}
}

// ReceiveURL принимает URL в теле text/plain и отвечает короткой ссылкой.
func (h *Handler) ReceiveURL(res http.ResponseWriter, req *http.Request) {
	body, err := io.ReadAll(io.LimitReader(req.Body, maxBodySize))
	if err != nil {
		http.Error(res, "BadRequest", http.StatusBadRequest)
		return
	}

	resp, err := h.service.Shorten(req.Context(), model.ShortenRequest{OriginalURL: string(body)})
	if err != nil {
		var verr *model.ValidationError
		if errors.As(err, &verr) {
			http.Error(res, verr.Message, http.StatusBadRequest)
			return
		}
		h.logger.Error("Ошибка создания ссылки", zap.Error(err))
		http.Error(res, "Internal server error", http.StatusInternalServerError)
		return
	}

	res.Header().Set("Content-Type", "text/plain")
	res.WriteHeader(http.StatusCreated)
	_, _ = res.Write([]byte(resp.ShortURL))
}

// ReceiveShorten принимает {"original_url": ..., "ttl_hours": ...}.
func (h *Handler) ReceiveShorten(res http.ResponseWriter, req *http.Request) {
	var body model.ShortenRequest
	if err := json.NewDecoder(io.LimitReader(req.Body, maxBodySize)).Decode(&body); err != nil {
		writeJSON(res, http.StatusBadRequest, model.MessageResponse{Message: "Invalid request body"})
		return
	}

	resp, err := h.service.Shorten(req.Context(), body)
	if err != nil {
		h.writeError(res, err)
		return
	}
	writeJSON(res, http.StatusCreated, resp)
}

// ResponseURL перенаправляет по короткому коду.
func (h *Handler) ResponseURL(res http.ResponseWriter, req *http.Request) {
	code := chi.URLParam(req, "id")

	resolution, err := h.service.Resolve(req.Context(), code)
	if err != nil {
		h.logger.Error("Ошибка разрешения кода", zap.String("code", code), zap.Error(err))
		writeJSON(res, http.StatusInternalServerError, model.MessageResponse{Message: "Error processing request"})
		return
	}

	switch resolution.Outcome {
	case model.OutcomeResolved:
		res.Header().Set("Location", resolution.Record.TargetURL)
		res.WriteHeader(http.StatusTemporaryRedirect)
	case model.OutcomeExpired:
		res.Header().Set("Content-Type", "text/plain; charset=utf-8")
		res.WriteHeader(http.StatusGone)
		_, _ = res.Write([]byte("This link has expired"))
	default:
		writeJSON(res, http.StatusNotFound, model.MessageResponse{Message: "URL not found"})
	}
}

// AdminList список ссылок, новые первыми, с необязательным ?search=.
func (h *Handler) AdminList(res http.ResponseWriter, req *http.Request) {
	recs, err := h.service.List(req.Context(), req.URL.Query().Get("search"))
	if err != nil {
		writeJSON(res, http.StatusInternalServerError, model.MessageResponse{Message: "Error fetching URLs"})
		return
	}

	out := make([]model.LinkSummary, 0, len(recs))
	for _, rec := range recs {
		out = append(out, model.NewLinkSummary(rec))
	}
	writeJSON(res, http.StatusOK, out)
}

// AdminExport те же строки, что и AdminList, в виде XLSX.
func (h *Handler) AdminExport(res http.ResponseWriter, req *http.Request) {
	recs, err := h.service.List(req.Context(), req.URL.Query().Get("search"))
	if err != nil {
		writeJSON(res, http.StatusInternalServerError, model.MessageResponse{Message: "Error fetching URLs"})
		return
	}

	buf, err := buildLinksWorkbook(recs, h.service.ShortURL)
	if err != nil {
		h.logger.Error("Ошибка формирования XLSX", zap.Error(err))
		writeJSON(res, http.StatusInternalServerError, model.MessageResponse{Message: "Error exporting URLs"})
		return
	}

	res.Header().Set("Content-Type", xlsxContentType)
	res.Header().Set("Content-Disposition", `attachment; filename="`+exportFilename+`"`)
	res.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(res)
}

// Preview превью целевой страницы. Ошибки загрузки отдаются как значения по умолчанию.
func (h *Handler) Preview(res http.ResponseWriter, req *http.Request) {
	var body model.PreviewRequest
	if err := json.NewDecoder(io.LimitReader(req.Body, maxBodySize)).Decode(&body); err != nil {
		writeJSON(res, http.StatusBadRequest, model.MessageResponse{Message: "Invalid request body"})
		return
	}

	p, err := h.service.Preview(req.Context(), body)
	if err != nil {
		h.writeError(res, err)
		return
	}
	writeJSON(res, http.StatusOK, p)
}

// Ping проверяет доступность хранилища.
func (h *Handler) Ping(res http.ResponseWriter, req *http.Request) {
	if err := h.service.Ping(req.Context()); err != nil {
		h.logger.Error("Хранилище недоступно", zap.Error(err))
		http.Error(res, "Storage unavailable", http.StatusInternalServerError)
		return
	}
	res.WriteHeader(http.StatusOK)
	_, _ = res.Write([]byte("OK"))
}

func (h *Handler) writeError(res http.ResponseWriter, err error) {
	var verr *model.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(res, http.StatusBadRequest, model.MessageResponse{Message: verr.Message})
	case errors.Is(err, model.ErrExhaustedRetries):
		h.logger.Error("Не удалось подобрать свободный код", zap.Error(err))
		writeJSON(res, http.StatusInternalServerError, model.MessageResponse{Message: "Could not allocate a short code"})
	default:
		h.logger.Error("Внутренняя ошибка", zap.Error(err))
		writeJSON(res, http.StatusInternalServerError, model.MessageResponse{Message: "Internal server error"})
	}
}

func writeJSON(res http.ResponseWriter, status int, v any) {
	res.Header().Set("Content-Type", "application/json")
	res.WriteHeader(status)
	_ = json.NewEncoder(res).Encode(v)
}
