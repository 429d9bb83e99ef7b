package bundle

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Watcher reloads the holder whenever the manifest on disk changes.
type Watcher struct {
	holder   *Holder
	interval time.Duration
	logger   *logrus.Logger

	failed string
}

func NewWatcher(holder *Holder, interval time.Duration, logger *logrus.Logger) *Watcher {
	return &Watcher{holder: holder, interval: interval, logger: logger}
}

// Run polls until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.Check(); err != nil {
				w.logger.Debugf("Bundle watch: %v", err)
			}
		}
	}
}

// Check compares the manifest on disk with the bundle in service and reloads
// on change. A manifest that already failed to load is not retried until it
// changes again.
func (w *Watcher) Check() (bool, error) {
	sum, err := ManifestChecksum(w.holder.Dir())
	if err != nil {
		return false, err
	}
	if cur := w.holder.Current(); cur != nil && cur.Checksum == sum {
		return false, nil
	}
	if sum == w.failed {
		return false, nil
	}

	w.logger.Infof("Manifest changed in %s, reloading bundle", w.holder.Dir())
	if _, err := w.holder.Reload(); err != nil {
		w.failed = sum
		return false, err
	}
	w.failed = ""
	return true, nil
}
