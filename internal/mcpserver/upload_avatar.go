package mcpserver

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/ojportal/internal/avatar"
)

const (
	maxAvatarSize     = 5 << 20
	maxImageRedirects = 5
)

// imageTypes maps the sniffed content type of every accepted avatar
// format to its canonical extension.
var imageTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

var errNotImage = errors.New("content is not a png, jpeg, gif or webp image")

// image is a downloaded avatar candidate.
type image struct {
	data        []byte
	contentType string
	ext         string
}

type uploadResult struct {
	UserID     int64  `json:"userId"`
	AvatarPath string `json:"avatarPath"`
	DisplayURL string `json:"displayUrl"`
}

func (s *Server) uploadAvatar(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.deps.Backend == nil {
		return mcp.NewToolResultError("avatar upload is not available"), nil
	}
	if !s.deps.Session.Authenticated() {
		return mcp.NewToolResultError("not signed in"), nil
	}

	src, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var raw []byte
	if strings.HasPrefix(src, "data:") {
		raw, err = readDataURI(src)
	} else {
		raw, err = download(ctx, src)
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	img, err := sniffImage(raw)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	name, err := avatarFilename(req.GetString("filename", ""), src, img.ext)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	up, err := s.deps.Backend.UploadAvatar(ctx, name, img.contentType, img.data)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("upload failed: %v", err)), nil
	}

	id, ok := avatar.OwnerOf(up.AvatarURL)
	if ok {
		s.deps.Avatars.Registry().Touch(id)
	}
	return jsonResult(uploadResult{
		UserID:     id,
		AvatarPath: up.AvatarURL,
		DisplayURL: s.deps.Avatars.URL(up.AvatarURL, id),
	}), nil
}

// sniffImage checks size and detects the image format from content.
func sniffImage(data []byte) (*image, error) {
	if len(data) == 0 {
		return nil, errors.New("image is empty")
	}
	if len(data) > maxAvatarSize {
		return nil, fmt.Errorf("image too large: %d bytes (max %d)", len(data), maxAvatarSize)
	}
	ct, _, _ := strings.Cut(http.DetectContentType(data), ";")
	ext, ok := imageTypes[ct]
	if !ok {
		return nil, fmt.Errorf("%w (detected %s)", errNotImage, ct)
	}
	return &image{data: data, contentType: ct, ext: ext}, nil
}

// avatarFilename picks the upload name: the requested one, else the last
// path element of src, else a random one. The backend stores the file by
// extension, so a name whose extension disagrees with the content is
// rejected.
func avatarFilename(requested, src, ext string) (string, error) {
	name := requested
	if name == "" && !strings.HasPrefix(src, "data:") {
		if u, err := url.Parse(src); err == nil {
			if base := path.Base(u.Path); strings.Contains(base, ".") {
				name = base
			}
		}
	}
	if name == "" {
		return uuid.NewString() + ext, nil
	}

	name = unsafeNameChars.ReplaceAllString(filepath.Base(name), "_")
	got := strings.ToLower(filepath.Ext(name))
	if got == ".jpeg" {
		got = ".jpg"
	}
	switch {
	case got == "":
		return name + ext, nil
	case got != ext:
		return "", fmt.Errorf("file name %s does not match %s content", name, strings.TrimPrefix(ext, "."))
	}
	return name, nil
}

// readDataURI decodes a base64 data:[<mediatype>];base64,<data> URI. The
// declared media type is ignored; the content decides.
func readDataURI(uri string) ([]byte, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return nil, errors.New("invalid data URI: missing comma separator")
	}
	if !strings.HasSuffix(meta, ";base64") {
		return nil, errors.New("only base64 data URIs are supported")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		if data, err = base64.RawStdEncoding.DecodeString(payload); err != nil {
			return nil, fmt.Errorf("invalid base64 data: %w", err)
		}
	}
	return data, nil
}

// download fetches an http(s) image, refusing internal hosts on every hop.
func download(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme: %s (only http/https)", u.Scheme)
	}
	if err := checkBlockedHost(u.Hostname()); err != nil {
		return nil, err
	}

	client := &http.Client{
		Timeout: 30 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxImageRedirects {
				return fmt.Errorf("too many redirects (max %d)", maxImageRedirects)
			}
			return checkBlockedHost(req.URL.Hostname())
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAvatarSize+1))
	if err != nil {
		return nil, fmt.Errorf("read body failed: %w", err)
	}
	return data, nil
}

// checkBlockedHost rejects loopback, link-local and cloud metadata
// addresses.
func checkBlockedHost(host string) error {
	if host == "metadata.google.internal" {
		return fmt.Errorf("blocked host: %s", host)
	}

	ip := net.ParseIP(host)
	if ip == nil {
		ips, err := net.LookupIP(host)
		if err != nil || len(ips) == 0 {
			return nil //nolint:nilerr // the HTTP client reports DNS failures
		}
		ip = ips[0]
	}

	switch {
	case ip.IsLoopback():
		return fmt.Errorf("blocked host: loopback address %s", host)
	case ip.IsLinkLocalUnicast():
		return fmt.Errorf("blocked host: link-local address %s", host)
	}
	return nil
}
