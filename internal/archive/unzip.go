package archive

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"
)

// ExtractZip shells out to the system 'unzip' to expand an uploaded archive
// in to the destination directory. Unzip failure is one of the few archive
// errors that is fatal to an import job, so it is returned rather than
// swallowed.
func ExtractZip(ctx context.Context, zipPath string, destDir string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "unzip", "-qq", zipPath, "-d", destDir)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("unzip of %s failed: %w (%s)", zipPath, err, stderr.String())
	}

	return nil
}
