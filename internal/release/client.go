// Package release resolves, downloads, and verifies release artifacts from
// the remote metadata endpoint. Nothing in this package touches installed
// state; all work happens inside a private staging directory.
package release

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/blackwell-systems/overhaul/internal/archive"
)

var (
	// ErrNoPlatformMatch means the release metadata listed platform
	// artifacts but none matched this host's OS and architecture.
	ErrNoPlatformMatch = errors.New("no artifact matches this platform")

	// ErrAmbiguousPlatform means more than one artifact matched this
	// host's OS and architecture. Ambiguous metadata is a hard error,
	// never resolved by preference order.
	ErrAmbiguousPlatform = errors.New("multiple artifacts match this platform")

	// ErrChecksumMismatch means the downloaded bytes did not hash to the
	// value declared in the release metadata.
	ErrChecksumMismatch = errors.New("artifact checksum mismatch")
)

// Release describes one resolved, downloadable version of a component.
// It is metadata only; the Version Ledger, not the Release, is the source
// of truth for what is installed.
type Release struct {
	Component string
	Version   string
	URL       string
	SHA256    string
	Size      int64
}

// Staged is a downloaded, verified, and extracted release sitting in a
// private staging directory. Callers must Discard it on every exit path.
type Staged struct {
	// Root is the staging directory; Discard removes it entirely.
	Root string
	// Dir is the extracted release tree inside Root.
	Dir string
	// ArchivePath is the verified archive inside Root.
	ArchivePath string
}

// Discard removes the staging directory. Safe to call more than once.
func (s *Staged) Discard() {
	if s != nil && s.Root != "" {
		os.RemoveAll(s.Root)
	}
}

// Client talks to the release metadata endpoint and artifact store.
type Client struct {
	baseURL string
	hc      *http.Client

	// Host platform, overridable in tests.
	goos   string
	goarch string
}

// NewClient creates a Client for the given metadata base URL. All network
// operations are bounded by timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		hc:      &http.Client{Timeout: timeout},
		goos:    runtime.GOOS,
		goarch:  runtime.GOARCH,
	}
}

// releaseMetadata is the JSON served by the metadata endpoint: either a
// single platform-independent artifact (url/sha256 at the top level) or a
// list of platform-specific artifacts.
type releaseMetadata struct {
	Version   string             `json:"version"`
	URL       string             `json:"url"`
	SHA256    string             `json:"sha256"`
	Size      int64              `json:"size"`
	Platforms []platformArtifact `json:"platforms"`
}

type platformArtifact struct {
	OS     string `json:"os"`
	Arch   string `json:"arch"`
	URL    string `json:"url"`
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
}

// Resolve fetches release metadata for component at the given version
// specifier ("latest", "", or an explicit semantic version) and selects the
// artifact for this host's platform.
func (c *Client) Resolve(component, spec string) (*Release, error) {
	var metaURL string
	switch {
	case spec == "" || spec == "latest":
		metaURL = fmt.Sprintf("%s/%s/latest.json", c.baseURL, component)
	default:
		v := Canonical(spec)
		if !IsValid(v) {
			return nil, fmt.Errorf("invalid version %q for %s", spec, component)
		}
		metaURL = fmt.Sprintf("%s/%s/%s.json", c.baseURL, component, v)
	}

	resp, err := c.hc.Get(metaURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch release metadata for %s: %w", component, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("release metadata for %s %s: unexpected status %s", component, spec, resp.Status)
	}

	var meta releaseMetadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, fmt.Errorf("failed to parse release metadata for %s: %w", component, err)
	}

	rel := &Release{Component: component, Version: Canonical(meta.Version)}
	if rel.Version == "" || !IsValid(rel.Version) {
		return nil, fmt.Errorf("release metadata for %s declares invalid version %q", component, meta.Version)
	}

	if len(meta.Platforms) == 0 {
		if meta.URL == "" || meta.SHA256 == "" {
			return nil, fmt.Errorf("release metadata for %s %s has no artifact url or checksum", component, rel.Version)
		}
		rel.URL = meta.URL
		rel.SHA256 = meta.SHA256
		rel.Size = meta.Size
		return rel, nil
	}

	var matches []platformArtifact
	for _, p := range meta.Platforms {
		if p.OS == c.goos && p.Arch == c.goarch {
			matches = append(matches, p)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: %s %s needs %s/%s", ErrNoPlatformMatch, component, rel.Version, c.goos, c.goarch)
	case 1:
		rel.URL = matches[0].URL
		rel.SHA256 = matches[0].SHA256
		rel.Size = matches[0].Size
		return rel, nil
	default:
		return nil, fmt.Errorf("%w: %s %s lists %d entries for %s/%s", ErrAmbiguousPlatform, component, rel.Version, len(matches), c.goos, c.goarch)
	}
}

// Stage downloads the release artifact into a fresh directory under
// stagingRoot, verifies its checksum and container format, and extracts it.
// On any error the staging directory is removed and nothing else has been
// touched.
func (c *Client) Stage(rel *Release, stagingRoot string) (*Staged, error) {
	if err := os.MkdirAll(stagingRoot, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging root: %w", err)
	}
	root, err := os.MkdirTemp(stagingRoot, rel.Component+"-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}

	staged, err := c.stageInto(rel, root)
	if err != nil {
		os.RemoveAll(root)
		return nil, err
	}
	return staged, nil
}

func (c *Client) stageInto(rel *Release, root string) (*Staged, error) {
	archivePath := filepath.Join(root, rel.Component+".tar.gz")
	if err := c.download(rel, archivePath); err != nil {
		return nil, err
	}

	// Full table-of-contents pass before anything is extracted.
	if err := archive.Validate(archivePath); err != nil {
		return nil, fmt.Errorf("release %s %s: %w", rel.Component, rel.Version, err)
	}

	dir := filepath.Join(root, "content")
	if err := archive.Extract(archivePath, dir); err != nil {
		return nil, fmt.Errorf("failed to extract release %s %s: %w", rel.Component, rel.Version, err)
	}

	return &Staged{Root: root, Dir: dir, ArchivePath: archivePath}, nil
}

// download streams the artifact to dstPath, hashing as it goes, and rejects
// the file on checksum or size mismatch before anything reads it back.
func (c *Client) download(rel *Release, dstPath string) error {
	resp, err := c.hc.Get(rel.URL)
	if err != nil {
		return fmt.Errorf("failed to download %s %s: %w", rel.Component, rel.Version, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s %s: unexpected status %s", rel.Component, rel.Version, resp.Status)
	}

	f, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("failed to create staging file: %w", err)
	}

	h := sha256.New()
	n, err := io.Copy(f, io.TeeReader(resp.Body, h))
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to write %s %s to staging: %w", rel.Component, rel.Version, err)
	}

	if rel.Size > 0 && n != rel.Size {
		return fmt.Errorf("%w: %s %s: got %d bytes, metadata declares %d", ErrChecksumMismatch, rel.Component, rel.Version, n, rel.Size)
	}
	sum := hex.EncodeToString(h.Sum(nil))
	if !strings.EqualFold(sum, rel.SHA256) {
		return fmt.Errorf("%w: %s %s: got %s, metadata declares %s", ErrChecksumMismatch, rel.Component, rel.Version, sum, rel.SHA256)
	}
	return nil
}
