package model

import (
	"encoding/json"
	"io"
)

// DefaultFolderID is the parent folder used when the caller names none.
const DefaultFolderID = "root"

// IncomingFile is one file received from a multipart request.
type IncomingFile struct {
	Filename string
	Size     int64
	Open     func() (io.ReadCloser, error)
}

// UploadResult is the per-file outcome of a batch upload.
type UploadResult struct {
	Filename string          `json:"filename"`
	Success  bool            `json:"success"`
	Data     json.RawMessage `json:"data,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// BatchUploadResult aggregates a multi-file upload. Results holds the
// successes and Errors the failure messages, both in input order.
type BatchUploadResult struct {
	Success  bool           `json:"success"`
	Uploaded int            `json:"uploaded"`
	Failed   int            `json:"failed"`
	Results  []UploadResult `json:"results"`
	Errors   []string       `json:"errors"`
}

// Download is a file fetched from the storage service. The caller must
// close Body.
type Download struct {
	Body          io.ReadCloser
	Filename      string
	ContentType   string
	ContentLength int64
}

// ListQuery selects one page of a folder listing.
type ListQuery struct {
	UserID         string `query:"userId" validate:"required"`
	ParentFolderID string `query:"parentFolderId"`
	Page           int    `query:"page" validate:"min=1"`
	PageSize       int    `query:"pageSize" validate:"min=1,max=100"`
}

// SearchQuery selects one page of search results. An empty FileType is not
// sent upstream.
type SearchQuery struct {
	UserID   string `query:"userId" validate:"required"`
	Query    string `query:"query" validate:"required"`
	FileType string `query:"fileType"`
	Page     int    `query:"page" validate:"min=1"`
	PageSize int    `query:"pageSize" validate:"min=1,max=100"`
}

// FileRef identifies one file owned by a user.
type FileRef struct {
	FileID string `query:"fileId" json:"fileId" validate:"required"`
	UserID string `query:"userId" json:"userId" validate:"required"`
}
