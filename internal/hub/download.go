package hub

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// DownloadOptions configures a model download.
type DownloadOptions struct {
	Repo    string
	OutDir  string
	HFToken string
	Stdout  io.Writer
}

// ErrAccessDenied is returned when the upstream hub rejects credentials for a
// gated repository.
type ErrAccessDenied struct {
	Repo string
}

func (e *ErrAccessDenied) Error() string {
	return fmt.Sprintf("access denied for %s; provide HF_TOKEN or --hf-token", e.Repo)
}

type lockManifest struct {
	Repo      string            `json:"repo"`
	Generated string            `json:"generated"`
	Files     map[string]string `json:"files"` // filename -> sha256
}

var shaHexPattern = regexp.MustCompile(`(?i)^[a-f0-9]{64}$`)

// Download fetches the model config, tokenizer, shard index, and every
// distinct weight shard into OutDir, verifying each file against a sha256
// resolved from upstream metadata and recording it in a lock manifest.
// Files whose on-disk checksum already matches are skipped.
func Download(opts DownloadOptions) error {
	if opts.Repo == "" {
		return fmt.Errorf("hub: repo is required")
	}

	if opts.OutDir == "" {
		return fmt.Errorf("hub: out dir is required")
	}

	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}

	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return fmt.Errorf("hub: create out dir: %w", err)
	}

	lockPath := filepath.Join(opts.OutDir, "download-manifest.lock.json")
	lock := readLockManifest(lockPath)
	if lock.Files == nil {
		lock.Files = make(map[string]string)
	}

	lock.Repo = opts.Repo
	lock.Generated = time.Now().UTC().Format(time.RFC3339)

	client := &http.Client{Timeout: 0}

	// Config and index first; the index decides which shards exist.
	for _, name := range []string{ConfigFile, TokenizerFile, IndexFile} {
		if err := fetchVerified(client, opts, lock, name); err != nil {
			if name == TokenizerFile {
				// Degraded mode stays available without a tokenizer model.
				fmt.Fprintf(opts.Stdout, "skip %s: %v\n", name, err)
				continue
			}

			return err
		}
	}

	indexData, err := os.ReadFile(filepath.Join(opts.OutDir, IndexFile))
	if err != nil {
		return fmt.Errorf("hub: read downloaded index: %w", err)
	}

	shards, err := ShardsFromIndex(indexData)
	if err != nil {
		return err
	}

	for _, shard := range shards {
		if err := fetchVerified(client, opts, lock, shard); err != nil {
			return err
		}
	}

	if err := writeLockManifest(lockPath, lock); err != nil {
		return err
	}

	fmt.Fprintf(opts.Stdout, "wrote lock manifest: %s\n", lockPath)

	return nil
}

func fetchVerified(client *http.Client, opts DownloadOptions, lock *lockManifest, filename string) error {
	expected := lock.Files[filename]
	if !isSHA256Hex(expected) {
		var err error

		expected, err = resolveChecksumFromMetadata(client, opts.Repo, filename, opts.HFToken)
		if err != nil {
			return err
		}
	}

	localPath := filepath.Join(opts.OutDir, filepath.FromSlash(filename))
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("hub: create local subdir: %w", err)
	}

	if ok, err := existingMatches(localPath, expected); err != nil {
		return err
	} else if ok {
		fmt.Fprintf(opts.Stdout, "skip %s (checksum match)\n", filename)
		lock.Files[filename] = expected

		return nil
	}

	fmt.Fprintf(opts.Stdout, "download %s -> %s\n", filename, localPath)

	actual, err := downloadWithProgress(client, opts.Repo, filename, opts.HFToken, localPath, opts.Stdout)
	if err != nil {
		return err
	}

	if actual != expected {
		return fmt.Errorf("hub: checksum mismatch for %s: expected %s got %s", filename, expected, actual)
	}

	fmt.Fprintf(opts.Stdout, "verified %s (sha256=%s)\n", filename, actual)
	lock.Files[filename] = expected

	return nil
}

func existingMatches(path, expected string) (bool, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, fmt.Errorf("hub: stat existing file: %w", err)
	}

	if fi.IsDir() {
		return false, fmt.Errorf("hub: expected file at %s, found directory", path)
	}

	actual, err := fileSHA256(path)
	if err != nil {
		return false, err
	}

	return actual == expected, nil
}

func downloadWithProgress(client *http.Client, repo, filename, token, outPath string, stdout io.Writer) (string, error) {
	req, err := http.NewRequest(http.MethodGet, resolveURL(repo, filename), nil)
	if err != nil {
		return "", fmt.Errorf("hub: build request: %w", err)
	}

	setAuth(req, token)

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("hub: download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", &ErrAccessDenied{Repo: repo}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("hub: download failed for %s: %s", filename, resp.Status)
	}

	tmp := outPath + ".tmp"

	fh, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("hub: create temp file: %w", err)
	}

	h := sha256.New()
	mw := io.MultiWriter(fh, h)

	var written int64

	buf := make([]byte, 64*1024)
	total := resp.ContentLength
	lastPrint := time.Now()

	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			wn, writeErr := mw.Write(buf[:n])
			if writeErr != nil {
				_ = fh.Close()
				_ = os.Remove(tmp)

				return "", fmt.Errorf("hub: write temp file: %w", writeErr)
			}

			written += int64(wn)

			if time.Since(lastPrint) > 700*time.Millisecond {
				if total > 0 {
					fmt.Fprintf(stdout, "  progress: %.1f%% (%d/%d bytes)\n", float64(written)*100/float64(total), written, total)
				} else {
					fmt.Fprintf(stdout, "  progress: %d bytes\n", written)
				}

				lastPrint = time.Now()
			}
		}

		if readErr == io.EOF {
			break
		}

		if readErr != nil {
			_ = fh.Close()
			_ = os.Remove(tmp)

			return "", fmt.Errorf("hub: download read failed: %w", readErr)
		}
	}

	if err := fh.Close(); err != nil {
		_ = os.Remove(tmp)

		return "", fmt.Errorf("hub: close temp file: %w", err)
	}

	if err := os.Rename(tmp, outPath); err != nil {
		_ = os.Remove(tmp)

		return "", fmt.Errorf("hub: move temp file into place: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

func resolveChecksumFromMetadata(client *http.Client, repo, filename, token string) (string, error) {
	req, err := http.NewRequest(http.MethodHead, resolveURL(repo, filename), nil)
	if err != nil {
		return "", fmt.Errorf("hub: build metadata request: %w", err)
	}

	setAuth(req, token)

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("hub: metadata request failed for %s: %w", filename, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", &ErrAccessDenied{Repo: repo}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 399 {
		return "", fmt.Errorf("hub: metadata request failed for %s: %s", filename, resp.Status)
	}

	for _, key := range []string{"X-Linked-Etag", "Etag"} {
		if v := normalizeETag(resp.Header.Get(key)); isSHA256Hex(v) {
			return strings.ToLower(v), nil
		}
	}

	return "", fmt.Errorf("hub: unable to resolve sha256 metadata for %s", filename)
}

func resolveURL(repo, filename string) string {
	return fmt.Sprintf("https://huggingface.co/%s/resolve/main/%s", repo, filename)
}

func setAuth(req *http.Request, token string) {
	if token == "" {
		return
	}

	req.Header.Set("Authorization", "Bearer "+token)
}

func normalizeETag(v string) string {
	v = strings.TrimSpace(v)
	v = strings.Trim(v, "\"")
	v = strings.TrimPrefix(v, "W/")

	return strings.Trim(v, "\"")
}

func isSHA256Hex(v string) bool {
	return shaHexPattern.MatchString(v)
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("hub: open for checksum: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hub: checksum read: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

func readLockManifest(path string) *lockManifest {
	lock := &lockManifest{}

	data, err := os.ReadFile(path)
	if err != nil {
		return lock
	}

	// A corrupt lock file is regenerated rather than fatal.
	_ = json.Unmarshal(data, lock)

	return lock
}

func writeLockManifest(path string, lock *lockManifest) error {
	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return fmt.Errorf("hub: encode lock manifest: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("hub: write lock manifest: %w", err)
	}

	return nil
}
