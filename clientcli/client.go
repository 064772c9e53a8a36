package clientcli

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultTimeout is the default HTTP client timeout for metadata calls.
// Uploads and downloads are bounded by the caller's context only.
const DefaultTimeout = 30 * time.Second

// Client performs operations against a filekeep server.
type Client struct {
	endpoint   string
	token      string
	httpClient *http.Client
	// transfer streams bodies and carries no overall timeout.
	transfer *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client for all requests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
		c.transfer = client
	}
}

// WithTimeout sets the timeout for metadata requests.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// New creates a new Client with the given config and options.
func New(cfg *Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, ErrConfigRequired
	}

	cfg = cfg.WithDefaults()

	c := &Client{
		endpoint:   strings.TrimSuffix(cfg.Endpoint, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		transfer:   &http.Client{},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	u := c.endpoint + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// doJSON sends req and decodes a JSON response into out when out is non-nil.
func (c *Client) doJSON(req *http.Request, hc *http.Client, wantStatus int, out any) error {
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != wantStatus {
		return parseServerError(resp.StatusCode, body)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// Upload uploads each local path as its own file and collects per-file
// results. It keeps going after a failed file.
func (c *Client) Upload(ctx context.Context, opts UploadOptions) ([]UploadResult, error) {
	if len(opts.Paths) == 0 {
		return nil, fmt.Errorf("upload: %w", ErrNoPaths)
	}
	if opts.Name != "" && len(opts.Paths) > 1 {
		return nil, fmt.Errorf("upload: --name requires a single path")
	}

	results := make([]UploadResult, 0, len(opts.Paths))
	for _, path := range opts.Paths {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		if path == "" {
			results = append(results, UploadResult{LocalPath: path, Err: ErrEmptyPath})
			continue
		}

		name := opts.Name
		if name == "" {
			name = filepath.Base(path)
		}

		info, err := c.uploadSingle(ctx, path, name, opts.ContentType)
		results = append(results, UploadResult{LocalPath: path, File: info, Err: err})
	}

	return results, nil
}

func (c *Client) uploadSingle(ctx context.Context, localPath, name, contentType string) (FileInfo, error) {
	file, err := os.Open(localPath) //#nosec G304 -- localPath is user-provided input
	if err != nil {
		return FileInfo{}, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	stat, err := file.Stat()
	if err != nil {
		return FileInfo{}, fmt.Errorf("stat file: %w", err)
	}
	if stat.IsDir() {
		return FileInfo{}, fmt.Errorf("%s is a directory", localPath)
	}

	if contentType == "" {
		contentType = detectContentType(localPath)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/files", nil, file)
	if err != nil {
		return FileInfo{}, err
	}
	req.ContentLength = stat.Size()
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-File-Name", name)
	req.Header.Set("X-Declared-Size", strconv.FormatInt(stat.Size(), 10))

	var info FileInfo
	if err := c.doJSON(req, c.transfer, http.StatusCreated, &info); err != nil {
		return FileInfo{}, err
	}
	return info, nil
}

// Download fetches a file by id.
// If opts.LocalPath is "-", the content is returned via the io.ReadCloser and must be closed by the caller.
// Otherwise, the content is written to the file and the io.ReadCloser is nil.
func (c *Client) Download(ctx context.Context, opts DownloadOptions) (*DownloadResult, io.ReadCloser, error) {
	if opts.ID == uuid.Nil {
		return nil, nil, fmt.Errorf("download: %w", ErrNoIDs)
	}

	req, err := c.newRequest(ctx, http.MethodGet, "/files/"+opts.ID.String(), nil, http.NoBody)
	if err != nil {
		return nil, nil, err
	}
	if opts.Range != "" {
		req.Header.Set("Range", opts.Range)
	}

	resp, err := c.transfer.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("do request: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, nil, parseServerError(resp.StatusCode, body)
	}

	result := &DownloadResult{
		ID:           opts.ID,
		Name:         dispositionName(resp.Header.Get("Content-Disposition")),
		ETag:         strings.Trim(resp.Header.Get("ETag"), `"`),
		ContentType:  resp.Header.Get("Content-Type"),
		ContentRange: resp.Header.Get("Content-Range"),
		Size:         resp.ContentLength,
	}

	if opts.LocalPath == "-" {
		result.LocalPath = "-"
		return result, resp.Body, nil
	}

	defer func() { _ = resp.Body.Close() }()

	result.LocalPath = cmp.Or(opts.LocalPath, result.Name, opts.ID.String())
	written, err := saveFile(result.LocalPath, resp.Body)
	if err != nil {
		return nil, nil, err
	}
	result.Size = written
	return result, nil, nil
}

// saveFile streams r into a temporary file next to path and renames it into
// place. A failed copy leaves nothing at path.
func saveFile(path string, r io.Reader) (int64, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return 0, fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".filekeep-*")
	if err != nil {
		return 0, fmt.Errorf("create file: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	n, err := io.Copy(tmp, r)
	if err != nil {
		return 0, fmt.Errorf("write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, fmt.Errorf("rename file: %w", err)
	}
	committed = true
	return n, nil
}

// PresignURL asks the server for a direct download URL for id.
// Servers whose blob store cannot presign answer 501 and the returned
// error matches ErrNotSupported.
func (c *Client) PresignURL(ctx context.Context, id uuid.UUID) (string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/files/"+id.String(), url.Values{"redirect": {"1"}}, http.NoBody)
	if err != nil {
		return "", err
	}

	noFollow := *c.httpClient
	noFollow.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	resp, err := noFollow.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusFound {
		return resp.Header.Get("Location"), nil
	}
	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusPartialContent {
		// Server streamed instead of redirecting.
		return "", ErrNotSupported
	}

	body, _ := io.ReadAll(resp.Body)
	return "", parseServerError(resp.StatusCode, body)
}

// Status returns the lifecycle state of a file.
func (c *Client) Status(ctx context.Context, id uuid.UUID) (*FileStatus, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/files/"+id.String()+"/status", nil, http.NoBody)
	if err != nil {
		return nil, err
	}

	var status FileStatus
	if err := c.doJSON(req, c.httpClient, http.StatusOK, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Rename changes the stored name of a file.
func (c *Client) Rename(ctx context.Context, id uuid.UUID, name string) (*FileInfo, error) {
	if name == "" {
		return nil, fmt.Errorf("rename: %w", ErrEmptyName)
	}

	payload, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPatch, "/files/"+id.String(), nil, strings.NewReader(string(payload)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var info FileInfo
	if err := c.doJSON(req, c.httpClient, http.StatusOK, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Delete requests deletion of one or more files.
// Continues on error, collecting results for all ids.
func (c *Client) Delete(ctx context.Context, opts DeleteOptions) ([]DeleteResult, error) {
	if len(opts.IDs) == 0 {
		return nil, ErrNoIDs
	}

	results := make([]DeleteResult, 0, len(opts.IDs))
	for _, id := range opts.IDs {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		results = append(results, c.deleteSingle(ctx, id))
	}

	return results, nil
}

func (c *Client) deleteSingle(ctx context.Context, id uuid.UUID) DeleteResult {
	req, err := c.newRequest(ctx, http.MethodDelete, "/files/"+id.String(), nil, http.NoBody)
	if err != nil {
		return DeleteResult{ID: id, Err: err}
	}

	if err := c.doJSON(req, c.httpClient, http.StatusNoContent, nil); err != nil {
		return DeleteResult{ID: id, Err: err}
	}
	return DeleteResult{ID: id, Deleted: true}
}

// HasDeleteErrors returns true if any delete operation failed.
func HasDeleteErrors(results []DeleteResult) bool {
	for _, r := range results {
		if r.Err != nil {
			return true
		}
	}
	return false
}

// List lists the caller's files.
// If opts.All is true, paginates through all results.
func (c *Client) List(ctx context.Context, opts ListOptions) (*ListResult, error) {
	if opts.All {
		return c.listAll(ctx, opts)
	}
	return c.listPage(ctx, opts)
}

func (c *Client) listPage(ctx context.Context, opts ListOptions) (*ListResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}

	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	if opts.Cursor != "" {
		query.Set("cursor", opts.Cursor)
	}

	req, err := c.newRequest(ctx, http.MethodGet, "/files", query, http.NoBody)
	if err != nil {
		return nil, err
	}

	var result ListResult
	if err := c.doJSON(req, c.httpClient, http.StatusOK, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) listAll(ctx context.Context, opts ListOptions) (*ListResult, error) {
	var allItems []FileInfo
	cursor := opts.Cursor

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := c.listPage(ctx, ListOptions{Limit: opts.Limit, Cursor: cursor})
		if err != nil {
			return nil, err
		}

		allItems = append(allItems, page.Items...)

		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	return &ListResult{Items: allItems}, nil
}

// Reconcile triggers a reconcile pass on the server. Requires files:admin.
func (c *Client) Reconcile(ctx context.Context) (*ReconcileReport, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/admin/reconcile", nil, http.NoBody)
	if err != nil {
		return nil, err
	}

	var report ReconcileReport
	if err := c.doJSON(req, c.transfer, http.StatusOK, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// Ping checks that the server answers its health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/healthz", nil, http.NoBody)
	if err != nil {
		return err
	}
	return c.doJSON(req, c.httpClient, http.StatusOK, nil)
}

// TotalSize calculates the total size of all items in bytes.
func (r *ListResult) TotalSize() int64 {
	var total int64
	for _, item := range r.Items {
		total += item.Size
	}
	return total
}

// ParseIDs parses file ids given on the command line.
func ParseIDs(args []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(args))
	for _, arg := range args {
		id, err := uuid.Parse(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid file id %q: %w", arg, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func dispositionName(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return filepath.Base(params["filename"])
}

// detectContentType returns MIME type based on file extension.
func detectContentType(path string) string {
	ext := filepath.Ext(path)
	if ext == "" {
		return "application/octet-stream"
	}

	mimeType := mime.TypeByExtension(ext)
	if mimeType == "" {
		return "application/octet-stream"
	}

	return mimeType
}

func parseServerError(statusCode int, body []byte) error {
	apiErr := &APIError{StatusCode: statusCode, Body: string(body)}

	var se serverError
	if json.Unmarshal(body, &se) == nil {
		apiErr.Code = se.Error
		apiErr.Message = se.Message
	}
	return apiErr
}

// APIError represents an error response from the server.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return "server error: " + strconv.Itoa(e.StatusCode) + " " + e.Code + ": " + e.Message
	}
	return "server error: " + strconv.Itoa(e.StatusCode) + " - " + e.Body
}

// Is reports whether target matches this error.
// It matches if target is an *APIError with the same StatusCode and,
// when target carries one, the same Code.
func (e *APIError) Is(target error) bool {
	var t *APIError
	if !errors.As(target, &t) {
		return false
	}
	if t.StatusCode != e.StatusCode {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// IsNotFound returns true if the error is a 404.
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// Sentinel errors for common API error conditions.
// Use errors.Is() to check for these conditions.
var (
	// ErrNotFound is returned when the file does not exist (404).
	ErrNotFound = &APIError{StatusCode: http.StatusNotFound}

	// ErrUnauthorized is returned when the token is missing or invalid (401).
	ErrUnauthorized = &APIError{StatusCode: http.StatusUnauthorized}

	// ErrForbidden is returned when the token lacks scope or ownership (403).
	ErrForbidden = &APIError{StatusCode: http.StatusForbidden}

	// ErrNotReady is returned when downloading a file that is not finalized.
	ErrNotReady = &APIError{StatusCode: http.StatusConflict, Code: "not_ready"}

	// ErrNotSupported is returned when the server cannot presign downloads.
	ErrNotSupported = &APIError{StatusCode: http.StatusNotImplemented}
)
