package ytdlp

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/NikitaDmitryuk/tube-proxy/internal/logutils"
)

const updateTimeout = 3 * time.Minute

func RunUpdate(ctx context.Context, binaryPath string) {
	if binaryPath == "" {
		binaryPath = defaultYtdlpBinary
	}
	updateCtx, cancel := context.WithTimeout(ctx, updateTimeout)
	defer cancel()

	cmd := exec.CommandContext(updateCtx, binaryPath, "-U")
	output, err := cmd.CombinedOutput()
	out := strings.TrimSpace(string(output))

	if err != nil {
		if updateCtx.Err() != nil {
			logutils.Log.WithError(err).Warn("yt-dlp update timed out or was canceled")
			return
		}
		logutils.Log.WithError(err).WithFields(map[string]any{
			"output": out,
			"binary": binaryPath,
		}).Warn("yt-dlp update failed")
		return
	}

	logutils.Log.WithFields(map[string]any{
		"binary": binaryPath,
		"output": out,
	}).Info("yt-dlp update check completed successfully")
}

// Updater self-updates the yt-dlp binary used by the Transferer.
type Updater struct{ binaryPath string }

func NewUpdater(binaryPath string) *Updater {
	if binaryPath == "" {
		binaryPath = defaultYtdlpBinary
	}
	return &Updater{binaryPath: binaryPath}
}

func (u *Updater) RunUpdate(ctx context.Context) { RunUpdate(ctx, u.binaryPath) }
