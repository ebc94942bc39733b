package uploads

import (
	"bytes"
	"context"
	"crypto/sha1"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	gobreaker "github.com/sony/gobreaker/v2"

	"schoolreg/internal/logging"
	"schoolreg/internal/metrics"
)

// CloudinaryConfig holds account credentials for the Cloudinary upload API.
type CloudinaryConfig struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
	// BaseURL defaults to https://api.cloudinary.com/v1_1.
	BaseURL string
}

// CloudinaryStore uploads files to Cloudinary. Calls go through a circuit breaker
// so a Cloudinary outage fails registrations fast instead of holding connections.
type CloudinaryStore struct {
	cfg     CloudinaryConfig
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[uploadResult]
	now     func() time.Time
}

type uploadResult struct {
	PublicID     string `json:"public_id"`
	SecureURL    string `json:"secure_url"`
	ResourceType string `json:"resource_type"`
	Bytes        int    `json:"bytes"`
}

// NewCloudinaryStore builds a store from cfg.
func NewCloudinaryStore(cfg CloudinaryConfig) *CloudinaryStore {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.cloudinary.com/v1_1"
	}
	const name = "cloudinary"
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.UploadCircuitState.WithLabelValues(name).Set(float64(to))
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("upload circuit state changed")
		},
	}
	metrics.UploadCircuitState.WithLabelValues(name).Set(0)
	return &CloudinaryStore{
		cfg:     cfg,
		http:    &http.Client{Timeout: 30 * time.Second},
		breaker: gobreaker.NewCircuitBreaker[uploadResult](settings),
		now:     time.Now,
	}
}

// Save uploads f and returns its secure URL as the reference.
func (s *CloudinaryStore) Save(ctx context.Context, f File) (string, error) {
	res, err := s.breaker.Execute(func() (uploadResult, error) {
		return s.upload(ctx, f)
	})
	if err != nil {
		return "", err
	}
	return res.SecureURL, nil
}

func (s *CloudinaryStore) upload(ctx context.Context, f File) (uploadResult, error) {
	params := map[string]string{
		"timestamp": strconv.FormatInt(s.now().Unix(), 10),
		"public_id": f.Kind.Field + "-" + uuid.NewString(),
	}
	if s.cfg.Folder != "" {
		params["folder"] = s.cfg.Folder
	}
	params["signature"] = s.sign(params)
	params["api_key"] = s.cfg.APIKey

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range params {
		if err := w.WriteField(k, v); err != nil {
			return uploadResult{}, fmt.Errorf("cloudinary: write field: %w", err)
		}
	}
	part, err := w.CreateFormFile("file", f.Kind.Field+f.Extension)
	if err != nil {
		return uploadResult{}, fmt.Errorf("cloudinary: create form file: %w", err)
	}
	if _, err := part.Write(f.Data); err != nil {
		return uploadResult{}, fmt.Errorf("cloudinary: write file: %w", err)
	}
	if err := w.Close(); err != nil {
		return uploadResult{}, fmt.Errorf("cloudinary: close form: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/auto/upload", s.cfg.BaseURL, s.cfg.CloudName)
	var res uploadResult
	if err := s.post(ctx, endpoint, w.FormDataContentType(), &buf, &res); err != nil {
		return uploadResult{}, err
	}
	if res.SecureURL == "" {
		return uploadResult{}, errors.New("cloudinary: response without secure_url")
	}
	return res, nil
}

// Open downloads the file behind a secure URL reference.
func (s *CloudinaryStore) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: create request: %w", err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: download: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, ErrNotFound
	}
	if resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("cloudinary: download failed (%d)", resp.StatusCode)
	}
	return resp.Body, nil
}

// Remove destroys the asset behind ref.
func (s *CloudinaryStore) Remove(ctx context.Context, ref string) error {
	publicID, resourceType, err := parseAssetURL(ref)
	if err != nil {
		return err
	}
	params := map[string]string{
		"public_id": publicID,
		"timestamp": strconv.FormatInt(s.now().Unix(), 10),
	}
	params["signature"] = s.sign(params)
	params["api_key"] = s.cfg.APIKey

	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}
	endpoint := fmt.Sprintf("%s/%s/%s/destroy", s.cfg.BaseURL, s.cfg.CloudName, resourceType)
	var res struct {
		Result string `json:"result"`
	}
	return s.post(ctx, endpoint, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()), &res)
}

func (s *CloudinaryStore) post(ctx context.Context, endpoint, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return fmt.Errorf("cloudinary: create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("cloudinary: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("cloudinary: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("cloudinary: %s failed (%d): %s", path.Base(endpoint), resp.StatusCode, string(raw))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("cloudinary: decode response: %w", err)
	}
	return nil
}

// sign computes the Cloudinary API signature: sorted key=value pairs joined by &,
// followed by the secret, hashed with SHA-1. api_key, file and resource_type are not signed.
func (s *CloudinaryStore) sign(params map[string]string) string {
	exclude := map[string]bool{"api_key": true, "file": true, "resource_type": true}
	pairs := make([]string, 0, len(params))
	for k, v := range params {
		if !exclude[k] && v != "" {
			pairs = append(pairs, k+"="+v)
		}
	}
	sort.Strings(pairs)
	sum := sha1.Sum([]byte(strings.Join(pairs, "&") + s.cfg.APISecret))
	return fmt.Sprintf("%x", sum)
}

// parseAssetURL extracts the public id and resource type from a delivery URL such as
// https://res.cloudinary.com/<cloud>/image/upload/v1712/<folder>/<id>.jpg
func parseAssetURL(ref string) (publicID, resourceType string, err error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", "", fmt.Errorf("cloudinary: parse ref: %w", err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+1 < len(parts); i++ {
		if parts[i+1] != "upload" || i == 0 {
			continue
		}
		rest := parts[i+2:]
		if len(rest) > 0 && len(rest[0]) > 1 && rest[0][0] == 'v' {
			if _, err := strconv.Atoi(rest[0][1:]); err == nil {
				rest = rest[1:]
			}
		}
		if len(rest) == 0 {
			break
		}
		id := strings.Join(rest, "/")
		return strings.TrimSuffix(id, path.Ext(id)), parts[i], nil
	}
	return "", "", fmt.Errorf("cloudinary: unrecognised asset url %q", ref)
}
