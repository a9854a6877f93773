package handler

import (
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"slices"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/samber/lo"

	"bff-gateway/internal/model"
	"bff-gateway/internal/service"
)

// FileHandler exposes the file-storage service under /api/file.
type FileHandler struct {
	service *service.FileService
	logger  *slog.Logger
}

// NewFileHandler creates a FileHandler.
func NewFileHandler(svc *service.FileService, logger *slog.Logger) *FileHandler {
	return &FileHandler{
		service: svc,
		logger:  logger.With("component", "file_handler"),
	}
}

// Upload stages the "file" part and forwards it to the storage service.
func (h *FileHandler) Upload(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	userID := c.FormValue("userId")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "userId is required")
	}

	if fh.Size > h.service.MaxFileBytes() {
		h.service.RecordUpload(service.ErrFileTooLarge)
		return mapError(c, h.logger, service.ErrFileTooLarge)
	}

	src, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "reading upload failed").SetInternal(err)
	}
	staged, err := h.service.Stage(src, fh.Filename)
	_ = src.Close()
	if err != nil {
		h.service.RecordUpload(err)
		return mapError(c, h.logger, err)
	}

	res, err := h.service.Upload(requestContext(c), staged, userID, fh.Filename, c.FormValue("parentFolderId"))
	h.service.RecordUpload(err)
	if err != nil {
		return mapError(c, h.logger, err)
	}
	return respond(c, res)
}

// UploadMultiple forwards every part named "files" (or "files[]"). Per-file
// failures are reported in the body; the status is always 200.
func (h *FileHandler) UploadMultiple(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart form required").SetInternal(err)
	}

	headers := slices.Concat(form.File["files"], form.File["files[]"])
	if len(headers) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "files are required")
	}
	userID := firstValue(form, "userId")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "userId is required")
	}

	files := lo.Map(headers, func(fh *multipart.FileHeader, _ int) model.IncomingFile {
		return model.IncomingFile{
			Filename: fh.Filename,
			Size:     fh.Size,
			Open: func() (io.ReadCloser, error) {
				return fh.Open()
			},
		}
	})

	result := h.service.UploadMultiple(requestContext(c), files, userID, firstValue(form, "parentFolderId"))
	return c.JSON(http.StatusOK, result)
}

func firstValue(form *multipart.Form, key string) string {
	if vals := form.Value[key]; len(vals) > 0 {
		return vals[0]
	}
	return ""
}

// Download streams a file back to the caller as an attachment.
func (h *FileHandler) Download(c echo.Context) error {
	var ref model.FileRef
	if err := bindQuery(c, &ref); err != nil {
		return err
	}

	dl, err := h.service.Download(requestContext(c), ref.FileID, ref.UserID)
	if err != nil {
		return mapError(c, h.logger, err)
	}
	defer func() { _ = dl.Body.Close() }()

	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": dl.Filename})
	if disposition == "" {
		disposition = "attachment"
	}

	header := c.Response().Header()
	header.Set(echo.HeaderContentType, dl.ContentType)
	header.Set(echo.HeaderContentDisposition, disposition)
	header.Set("filename", dl.Filename)
	header.Set(echo.HeaderAccessControlExposeHeaders, "Content-Disposition, filename")
	if dl.ContentLength >= 0 {
		header.Set(echo.HeaderContentLength, strconv.FormatInt(dl.ContentLength, 10))
	}
	c.Response().WriteHeader(http.StatusOK)

	// The status is already sent, so a failed copy only truncates the body.
	if _, err := io.Copy(c.Response(), dl.Body); err != nil {
		h.logger.Error("streaming download",
			"err", err,
			"file_id", ref.FileID,
		)
	}
	return nil
}

// List returns one page of a folder listing.
func (h *FileHandler) List(c echo.Context) error {
	q := model.ListQuery{
		ParentFolderID: model.DefaultFolderID,
		Page:           1,
		PageSize:       20,
	}
	if err := bindQuery(c, &q); err != nil {
		return err
	}

	res, err := h.service.List(requestContext(c), q)
	if err != nil {
		return mapError(c, h.logger, err)
	}
	return respond(c, res)
}

// Search returns one page of matching files.
func (h *FileHandler) Search(c echo.Context) error {
	q := model.SearchQuery{Page: 1, PageSize: 20}
	if err := bindQuery(c, &q); err != nil {
		return err
	}

	res, err := h.service.Search(requestContext(c), q)
	if err != nil {
		return mapError(c, h.logger, err)
	}
	return respond(c, res)
}

// StorageUsage reports quota and usage for the user in the path.
func (h *FileHandler) StorageUsage(c echo.Context) error {
	userID := c.Param("userId")
	if userID == "" {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "userId is required")
	}

	res, err := h.service.StorageUsage(requestContext(c), userID)
	if err != nil {
		return mapError(c, h.logger, err)
	}
	return respond(c, res)
}

// Delete removes a file.
func (h *FileHandler) Delete(c echo.Context) error {
	var ref model.FileRef
	if err := bindQuery(c, &ref); err != nil {
		return err
	}

	res, err := h.service.Delete(requestContext(c), ref)
	if err != nil {
		return mapError(c, h.logger, err)
	}
	return respond(c, res)
}
