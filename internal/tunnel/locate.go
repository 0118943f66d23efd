package tunnel

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

const releaseBaseURL = "https://github.com/cloudflare/cloudflared/releases/latest/download"

// HomeBinary is where Download puts cloudflared by default.
func HomeBinary() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, "cloudflared")
}

// Locate finds a cloudflared binary: ~/cloudflared if it is executable,
// otherwise one on PATH.
func Locate() (string, bool) {
	if p := HomeBinary(); p != "" {
		if fi, err := os.Stat(p); err == nil && fi.Mode().IsRegular() && fi.Mode()&0o111 != 0 {
			return p, true
		}
	}
	if p, err := exec.LookPath(DefaultBinary); err == nil {
		return p, true
	}
	return "", false
}

// ReleaseURL returns the download URL of the cloudflared release for the
// given platform.
func ReleaseURL(goos, goarch string) (string, error) {
	switch goos {
	case "linux", "darwin":
	default:
		return "", fmt.Errorf("%w: %s/%s", ErrUnsupported, goos, goarch)
	}
	switch goarch {
	case "amd64", "arm64":
	default:
		return "", fmt.Errorf("%w: %s/%s", ErrUnsupported, goos, goarch)
	}
	return fmt.Sprintf("%s/cloudflared-%s-%s", releaseBaseURL, goos, goarch), nil
}

// Download fetches cloudflared for this platform to dest and makes it
// executable.
func Download(ctx context.Context, dest string) error {
	url, err := ReleaseURL(runtime.GOOS, runtime.GOARCH)
	if err != nil {
		return err
	}
	return download(ctx, http.DefaultClient, url, dest)
}

func download(ctx context.Context, client *http.Client, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download cloudflared: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download cloudflared: unexpected status %s", resp.Status)
	}

	// Write next to dest so the final rename stays on one filesystem.
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".cloudflared-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("download cloudflared: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o755); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dest)
}
