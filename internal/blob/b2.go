package blob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultAuthURL = "https://api.backblazeb2.com/b2api/v2/b2_authorize_account"
	requestTimeout = 30 * time.Second
)

var ErrNoBucket = errors.New("no bucket available for key")

type Config struct {
	KeyID          string
	ApplicationKey string
	Bucket         string
	AuthURL        string
}

// Enabled reports whether credentials are configured.
func (c Config) Enabled() bool {
	return c.KeyID != "" && c.ApplicationKey != ""
}

// Upload describes a single file to store.
type Upload struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
	// Progress receives the percentage sent so far. Optional.
	Progress func(percent int)
}

// Client uploads ad assets with the B2 native API.
type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config, httpClient *http.Client) *Client {
	if cfg.AuthURL == "" {
		cfg.AuthURL = DefaultAuthURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}
	return &Client{cfg: cfg, http: httpClient}
}

type authResponse struct {
	AccountID          string `json:"accountId"`
	AuthorizationToken string `json:"authorizationToken"`
	APIURL             string `json:"apiUrl"`
	DownloadURL        string `json:"downloadUrl"`
}

type bucket struct {
	BucketID   string `json:"bucketId"`
	BucketName string `json:"bucketName"`
}

type uploadURLResponse struct {
	BucketID           string `json:"bucketId"`
	UploadURL          string `json:"uploadUrl"`
	AuthorizationToken string `json:"authorizationToken"`
}

type apiError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Upload authorizes, resolves the bucket, and posts the file. It returns
// the public download URL of the stored file.
func (c *Client) Upload(ctx context.Context, up Upload) (string, error) {
	if !c.cfg.Enabled() {
		return "", errors.New("b2 credentials not configured")
	}
	auth, err := c.authorize(ctx)
	if err != nil {
		return "", err
	}
	b, err := c.findBucket(ctx, auth)
	if err != nil {
		return "", err
	}
	target, err := c.uploadURL(ctx, auth, b.BucketID)
	if err != nil {
		return "", err
	}

	contentType := up.ContentType
	if contentType == "" {
		contentType = "video/mp4"
	}
	body := up.Body
	if up.Progress != nil && up.Size > 0 {
		body = &progressReader{r: up.Body, total: up.Size, report: up.Progress}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.UploadURL, body)
	if err != nil {
		return "", err
	}
	if up.Size > 0 {
		req.ContentLength = up.Size
	}
	req.Header.Set("Authorization", target.AuthorizationToken)
	req.Header.Set("X-Bz-File-Name", url.PathEscape(up.Name))
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Bz-Content-Sha1", "do_not_verify")

	var stored struct {
		FileName string `json:"fileName"`
	}
	if err := c.send(req, &stored); err != nil {
		return "", fmt.Errorf("upload %s: %w", up.Name, err)
	}
	return fmt.Sprintf("%s/file/%s/%s", strings.TrimRight(auth.DownloadURL, "/"), b.BucketName, stored.FileName), nil
}

func (c *Client) authorize(ctx context.Context) (authResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.AuthURL, nil)
	if err != nil {
		return authResponse{}, err
	}
	req.SetBasicAuth(c.cfg.KeyID, c.cfg.ApplicationKey)
	req.Header.Set("Accept", "application/json")
	var auth authResponse
	if err := c.send(req, &auth); err != nil {
		return authResponse{}, fmt.Errorf("authorize account: %w", err)
	}
	return auth, nil
}

// findBucket picks the configured bucket, or the first bucket the key can
// see when no name matches.
func (c *Client) findBucket(ctx context.Context, auth authResponse) (bucket, error) {
	endpoint := auth.APIURL + "/b2api/v2/b2_list_buckets?accountId=" + url.QueryEscape(auth.AccountID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return bucket{}, err
	}
	req.Header.Set("Authorization", auth.AuthorizationToken)
	var payload struct {
		Buckets []bucket `json:"buckets"`
	}
	if err := c.send(req, &payload); err != nil {
		return bucket{}, fmt.Errorf("list buckets: %w", err)
	}
	for _, b := range payload.Buckets {
		if b.BucketName == c.cfg.Bucket {
			return b, nil
		}
	}
	if len(payload.Buckets) == 0 {
		return bucket{}, ErrNoBucket
	}
	return payload.Buckets[0], nil
}

func (c *Client) uploadURL(ctx context.Context, auth authResponse, bucketID string) (uploadURLResponse, error) {
	endpoint := auth.APIURL + "/b2api/v2/b2_get_upload_url?bucketId=" + url.QueryEscape(bucketID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return uploadURLResponse{}, err
	}
	req.Header.Set("Authorization", auth.AuthorizationToken)
	var out uploadURLResponse
	if err := c.send(req, &out); err != nil {
		return uploadURLResponse{}, fmt.Errorf("get upload url: %w", err)
	}
	return out, nil
}

func (c *Client) send(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Message == "" {
			apiErr.Message = "server error"
		}
		return fmt.Errorf("status %d: %s", resp.StatusCode, apiErr.Message)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type progressReader struct {
	r      io.Reader
	total  int64
	sent   int64
	last   int
	report func(int)
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 {
		p.sent += int64(n)
		percent := int(p.sent * 100 / p.total)
		if percent > 100 {
			percent = 100
		}
		if percent != p.last {
			p.last = percent
			p.report(percent)
		}
	}
	return n, err
}
