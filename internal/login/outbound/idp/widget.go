package idp

import (
	"context"
	"sync"

	"github.com/shandysiswandi/otplogin/internal/login/entity"
)

type widgets struct {
	mu       sync.Mutex
	rendered map[string]*widget
}

func newWidgets() *widgets {
	return &widgets{rendered: make(map[string]*widget)}
}

func (ws *widgets) render(w *widget) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if cur, ok := ws.rendered[w.anchorID]; ok && cur != w {
		return entity.ErrWidgetAlreadyRendered
	}
	ws.rendered[w.anchorID] = w
	return nil
}

func (ws *widgets) unregister(w *widget) {
	ws.mu.Lock()
	if ws.rendered[w.anchorID] == w {
		delete(ws.rendered, w.anchorID)
	}
	ws.mu.Unlock()
}

func (ws *widgets) release(anchorID string) {
	ws.mu.Lock()
	delete(ws.rendered, anchorID)
	ws.mu.Unlock()
}

// widget is an invisible bot-mitigation challenge bound to one anchor. The
// client solves it in the browser and hands the token over; tokens are
// single use, so Reset discards it.
type widget struct {
	registry *widgets
	anchorID string
	opts     entity.VerifierOptions

	mu      sync.Mutex
	token   string
	cleared bool
}

func (w *widget) Verify(context.Context) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cleared {
		return "", entity.NewProviderError("auth/internal-error", "verifier was cleared", nil)
	}
	if err := w.registry.render(w); err != nil {
		return "", err
	}
	if w.token == "" {
		return "", entity.NewProviderError("auth/captcha-check-failed", "", nil)
	}

	return w.token, nil
}

func (w *widget) Reset() {
	w.mu.Lock()
	w.token = ""
	w.mu.Unlock()
}

func (w *widget) Clear() {
	w.mu.Lock()
	w.cleared = true
	w.token = ""
	w.mu.Unlock()
	w.registry.unregister(w)
}
