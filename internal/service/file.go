package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"bff-gateway/internal/client"
	"bff-gateway/internal/config"
	"bff-gateway/internal/metrics"
	"bff-gateway/internal/model"
)

// fileDetailKeys are the file service's error message fields.
var fileDetailKeys = []string{"error", "message"}

const (
	defaultPage     = 1
	defaultPageSize = 20
)

// FileService forwards file operations to the file-storage service.
type FileService struct {
	forwarder     *Forwarder
	stager        *Stager
	uploadTimeout time.Duration
	maxFileBytes  int64
	workers       int
	logger        *slog.Logger
	metrics       *metrics.Metrics
}

// NewFileService creates a FileService. The metrics parameter is optional.
func NewFileService(c *client.UpstreamClient, cfg *config.Config, logger *slog.Logger, stager *Stager, m *metrics.Metrics) (*FileService, error) {
	timeout := time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second
	fwd, err := NewForwarder(c, "file", cfg.File.BaseURL, timeout, fileDetailKeys, logger)
	if err != nil {
		return nil, err
	}
	workers := cfg.Storage.UploadWorkers
	if workers < 1 {
		workers = 1
	}
	return &FileService{
		forwarder:     fwd,
		stager:        stager,
		uploadTimeout: time.Duration(cfg.File.UploadTimeoutSeconds) * time.Second,
		maxFileBytes:  cfg.Storage.MaxFileBytes,
		workers:       workers,
		logger:        logger.With("component", "file_service"),
		metrics:       m,
	}, nil
}

// MaxFileBytes is the largest file accepted for upload.
func (s *FileService) MaxFileBytes() int64 {
	return s.maxFileBytes
}

// Stage copies an uploaded stream to local disk and returns the staged path.
func (s *FileService) Stage(r io.Reader, filename string) (string, error) {
	return s.stager.Save(r, filename)
}

// Upload sends a staged file to the storage service as multipart form data
// with fields file, userId and parentFolderId. The staged file is removed
// before Upload returns, whatever the outcome.
func (s *FileService) Upload(ctx context.Context, stagedPath, userID, filename, parentFolderID string) (*Result, error) {
	defer s.stager.Remove(stagedPath)

	if parentFolderID == "" {
		parentFolderID = model.DefaultFolderID
	}

	f, err := os.Open(stagedPath)
	if err != nil {
		return nil, &StorageError{Op: "open", Err: err}
	}
	defer func() { _ = f.Close() }()

	mt, err := mimetype.DetectReader(f)
	if err != nil {
		return nil, &StorageError{Op: "read", Err: err}
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, &StorageError{Op: "seek", Err: err}
	}

	// The form is streamed through a pipe; the writer goroutine must finish
	// before the staged file is closed and removed.
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	written := make(chan struct{})
	go func() {
		defer close(written)
		pw.CloseWithError(writeUploadForm(mw, f, filename, mt.String(), userID, parentFolderID))
	}()
	defer func() {
		_ = pr.Close()
		<-written
	}()

	return s.forwarder.Forward(ctx, &Request{
		Method:      http.MethodPost,
		Path:        "/api/files/upload",
		Body:        pr,
		ContentType: mw.FormDataContentType(),
		Timeout:     s.uploadTimeout,
	})
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func writeUploadForm(mw *multipart.Writer, content io.Reader, filename, contentType, userID, parentFolderID string) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(filename)))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, content); err != nil {
		return err
	}
	if err := mw.WriteField("userId", userID); err != nil {
		return err
	}
	if err := mw.WriteField("parentFolderId", parentFolderID); err != nil {
		return err
	}
	return mw.Close()
}

// UploadMultiple stages and uploads each file independently. Oversized files
// are rejected without staging. One file's failure never stops the others,
// and both result lists keep the input order.
func (s *FileService) UploadMultiple(ctx context.Context, files []model.IncomingFile, userID, parentFolderID string) model.BatchUploadResult {
	outcomes := make([]model.UploadResult, len(files))

	var g errgroup.Group
	g.SetLimit(s.workers)
	for i, file := range files {
		g.Go(func() error {
			outcomes[i] = s.uploadOne(ctx, file, userID, parentFolderID)
			return nil
		})
	}
	_ = g.Wait()

	results := lo.Filter(outcomes, func(o model.UploadResult, _ int) bool {
		return o.Success
	})
	failures := lo.FilterMap(outcomes, func(o model.UploadResult, _ int) (string, bool) {
		return o.Filename + ": " + o.Error, !o.Success
	})

	return model.BatchUploadResult{
		Success:  len(results) > 0,
		Uploaded: len(results),
		Failed:   len(failures),
		Results:  results,
		Errors:   failures,
	}
}

func (s *FileService) uploadOne(ctx context.Context, file model.IncomingFile, userID, parentFolderID string) model.UploadResult {
	fail := func(msg string) model.UploadResult {
		return model.UploadResult{Filename: file.Filename, Success: false, Error: msg}
	}

	if file.Size > s.maxFileBytes {
		s.count(metrics.OutcomeRejected)
		return fail(ErrFileTooLarge.Error())
	}

	src, err := file.Open()
	if err != nil {
		s.count(metrics.OutcomeFailure)
		return fail(fmt.Sprintf("open upload: %v", err))
	}
	staged, err := s.Stage(src, file.Filename)
	_ = src.Close()
	if err != nil {
		s.count(metrics.OutcomeFailure)
		return fail(err.Error())
	}

	res, err := s.Upload(ctx, staged, userID, file.Filename, parentFolderID)
	if err != nil {
		s.logger.Warn("file upload failed", "filename", file.Filename, "err", err)
		s.count(metrics.OutcomeFailure)
		return fail(errorDetail(err))
	}

	s.count(metrics.OutcomeSuccess)
	return model.UploadResult{Filename: file.Filename, Success: true, Data: res.Body}
}

func (s *FileService) count(outcome string) {
	if s.metrics != nil {
		s.metrics.UploadedFiles.WithLabelValues(outcome).Inc()
	}
}

// RecordUpload counts a single-file upload outcome handled outside
// UploadMultiple.
func (s *FileService) RecordUpload(err error) {
	switch {
	case err == nil:
		s.count(metrics.OutcomeSuccess)
	case errors.Is(err, ErrFileTooLarge):
		s.count(metrics.OutcomeRejected)
	default:
		s.count(metrics.OutcomeFailure)
	}
}

// Download opens a file for streaming. The filename comes from the upstream
// Content-Disposition header, falling back to file_{fileID}.
func (s *FileService) Download(ctx context.Context, fileID, userID string) (*model.Download, error) {
	st, err := s.forwarder.Open(ctx, &Request{
		Method: http.MethodGet,
		Path:   "/api/files/download",
		Query:  url.Values{"fileId": {fileID}, "userId": {userID}},
		Header: http.Header{"Accept": {"*/*"}},
	})
	if err != nil {
		return nil, err
	}

	filename := DispositionFilename(st.Header.Get("Content-Disposition"))
	if filename == "" {
		filename = "file_" + fileID
	}
	contentType := st.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return &model.Download{
		Body:          st.Body,
		Filename:      filename,
		ContentType:   contentType,
		ContentLength: st.ContentLength,
	}, nil
}

// DispositionFilename extracts the filename parameter from a
// Content-Disposition value. Both filename and fileName spellings are
// accepted, as is RFC 5987 filename*. Directory components are dropped.
func DispositionFilename(cd string) string {
	if cd == "" {
		return ""
	}

	var name string
	if _, params, err := mime.ParseMediaType(cd); err == nil {
		// ParseMediaType lowercases parameter names and decodes filename*.
		name = params["filename"]
	} else if idx := strings.Index(strings.ToLower(cd), "filename="); idx >= 0 {
		name = cd[idx+len("filename="):]
		if end := strings.IndexByte(name, ';'); end >= 0 {
			name = name[:end]
		}
		name = strings.Trim(strings.TrimSpace(name), `"`)
	}

	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "." || name == "/" {
		return ""
	}
	return name
}

// List returns one page of a folder's contents.
func (s *FileService) List(ctx context.Context, q model.ListQuery) (*Result, error) {
	folder := q.ParentFolderID
	if folder == "" {
		folder = model.DefaultFolderID
	}
	params := url.Values{
		"userId":         {q.UserID},
		"parentFolderId": {folder},
	}
	setPage(params, q.Page, q.PageSize)

	return s.forwarder.Forward(ctx, &Request{
		Method: http.MethodGet,
		Path:   "/api/files/list",
		Query:  params,
	})
}

// Delete removes a file owned by the user.
func (s *FileService) Delete(ctx context.Context, ref model.FileRef) (*Result, error) {
	return s.forwarder.Forward(ctx, &Request{
		Method: http.MethodDelete,
		Path:   "/api/files/delete",
		JSON:   ref,
	})
}

// StorageUsage reports the user's quota and usage.
func (s *FileService) StorageUsage(ctx context.Context, userID string) (*Result, error) {
	return s.forwarder.Forward(ctx, &Request{
		Method: http.MethodGet,
		Path:   "/api/files/storage/" + url.PathEscape(userID),
	})
}

// Search runs a file search. fileType is only sent when set.
func (s *FileService) Search(ctx context.Context, q model.SearchQuery) (*Result, error) {
	params := url.Values{
		"userId": {q.UserID},
		"query":  {q.Query},
	}
	if q.FileType != "" {
		params.Set("fileType", q.FileType)
	}
	setPage(params, q.Page, q.PageSize)

	return s.forwarder.Forward(ctx, &Request{
		Method: http.MethodGet,
		Path:   "/api/files/search",
		Query:  params,
	})
}

func setPage(params url.Values, page, pageSize int) {
	if page < 1 {
		page = defaultPage
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	params.Set("page", strconv.Itoa(page))
	params.Set("pageSize", strconv.Itoa(pageSize))
}

// errorDetail returns the client-facing text of a forwarding error.
func errorDetail(err error) string {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Detail
	}
	return err.Error()
}
