package bundle

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Holder serves the current bundle and replaces it with a single pointer
// swap. Readers never observe a partially loaded bundle.
type Holder struct {
	dir     string
	current atomic.Pointer[Bundle]
	logger  *logrus.Logger

	reloadMu sync.Mutex
	onReload func(b *Bundle)
	onError  func(err error)
}

func NewHolder(dir string, logger *logrus.Logger) *Holder {
	return &Holder{dir: dir, logger: logger}
}

// Dir is the models directory the holder reloads from.
func (h *Holder) Dir() string {
	return h.dir
}

// Current returns the bundle in service, or nil before the first load.
func (h *Holder) Current() *Bundle {
	return h.current.Load()
}

// Store puts b into service.
func (h *Holder) Store(b *Bundle) {
	h.current.Store(b)
}

// OnReload sets the callback for successful reloads.
func (h *Holder) OnReload(fn func(b *Bundle)) {
	h.onReload = fn
}

// OnError sets the callback for failed reloads.
func (h *Holder) OnError(fn func(err error)) {
	h.onError = fn
}

// Reload loads the bundle from disk and swaps it in. On failure the previous
// bundle stays in service.
func (h *Holder) Reload() (*Bundle, error) {
	h.reloadMu.Lock()
	defer h.reloadMu.Unlock()

	b, err := Load(h.dir)
	if err != nil {
		h.logger.Errorf("Bundle reload from %s failed: %v", h.dir, err)
		if h.onError != nil {
			h.onError(err)
		}
		return nil, err
	}

	prev := h.current.Swap(b)
	if prev != nil {
		h.logger.Infof("Swapped bundle %s -> %s", prev.ID(), b.ID())
	} else {
		h.logger.Infof("Loaded bundle %s (%d features, %s)", b.ID(), b.Schema.Len(), b.Manifest.Algorithm)
	}
	if h.onReload != nil {
		h.onReload(b)
	}
	return b, nil
}
