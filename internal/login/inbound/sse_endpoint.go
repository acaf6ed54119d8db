package inbound

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/shandysiswandi/otplogin/internal/login/usecase"
	"github.com/shandysiswandi/otplogin/internal/pkg/goerror"
)

const ssePingInterval = 25 * time.Second

// StreamFlow streams the flow's view events using Server-Sent Events. The
// event name is the view event type and the data is its JSON payload.
func (h *HTTPEndpoint) StreamFlow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	flowID := httprouter.ParamsFromContext(ctx).ByName("flow_id")

	stream, err := h.uc.StreamFlow(ctx, usecase.StreamFlowInput{FlowID: flowID})
	if err != nil {
		writeStreamError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprint(w, ": connected\n\n"); err != nil {
		slog.ErrorContext(ctx, "failed to send response connected", "error", err)
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(ssePingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		// heartbeat ping, so proxies won't drop idle connections.
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()

		case evt, ok := <-stream:
			if !ok {
				if _, err := fmt.Fprint(w, "event: closed\ndata: {}\n\n"); err == nil {
					flusher.Flush()
				}
				return
			}
			payload, err := json.Marshal(evt.Data)
			if err != nil {
				slog.ErrorContext(ctx, "failed to marshal data", "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, payload); err != nil {
				slog.ErrorContext(ctx, "failed to send response data", "error", err)
				return
			}
			flusher.Flush()
		}
	}
}

func writeStreamError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	msg := "Internal server error"

	var gerr *goerror.Error
	if errors.As(err, &gerr) {
		code = gerr.StatusCode()
		msg = gerr.Msg()
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": msg})
}
