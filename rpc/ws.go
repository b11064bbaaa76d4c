package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"matchpool/core/events"
	"matchpool/core/types"
	"matchpool/native/escrow"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsBuffer       = 256
)

func parseCursor(r *http.Request) (uint64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("from"))
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseUint(raw, 10, 64)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	from, err := parseCursor(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, nil, codeInvalidParams, "invalid cursor", err.Error())
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	writeResult(w, nil, s.eventsSince(from, limit))
}

// errStreamGap reports that records a subscriber missed are no longer
// retained by the log.
var errStreamGap = errors.New("event stream: records no longer retained")

func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		http.Error(w, "event stream unavailable", http.StatusServiceUnavailable)
		return
	}
	from, err := parseCursor(r)
	if err != nil {
		http.Error(w, "invalid cursor", http.StatusBadRequest)
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")
	if err := s.streamEvents(r.Context(), conn, from); err != nil {
		switch {
		case errors.Is(err, errStreamGap):
			_ = conn.Close(websocket.StatusTryAgainLater, err.Error())
		case websocket.CloseStatus(err) == -1:
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) streamEvents(ctx context.Context, conn *websocket.Conn, from uint64) error {
	updates, cancel := s.events.Subscribe(wsBuffer)
	defer cancel()

	ctx = conn.CloseRead(ctx)
	return forwardEvents(ctx, s.events, updates, from, func(evt *types.Event) error {
		return writeEvent(ctx, conn, evt)
	})
}

// forwardEvents replays the retained backlog from the cursor and then
// forwards live records. Records already sent are skipped. When updates
// skipped records, they are re-read from log before the stream continues.
func forwardEvents(ctx context.Context, log *events.Log, updates <-chan *types.Event, from uint64, send func(*types.Event) error) error {
	next := from
	if err := catchUp(log, &next, false, send); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-updates:
			if !ok {
				return nil
			}
			if evt.Sequence < next {
				continue
			}
			if evt.Sequence > next {
				if err := catchUp(log, &next, true, send); err != nil {
					return err
				}
				continue
			}
			if err := send(evt); err != nil {
				return err
			}
			next = evt.Sequence + 1
		}
	}
}

// catchUp sends every retained record from *next on. With contiguous set it
// fails when the log no longer holds the record at *next.
func catchUp(log *events.Log, next *uint64, contiguous bool, send func(*types.Event) error) error {
	for {
		page := log.Since(*next, escrow.MaxPageLimit)
		if contiguous && len(page) > 0 && page[0].Sequence > *next {
			return fmt.Errorf("%w: expected #%d, oldest #%d", errStreamGap, *next, page[0].Sequence)
		}
		contiguous = false
		for _, evt := range page {
			if err := send(evt); err != nil {
				return err
			}
			*next = evt.Sequence + 1
		}
		if len(page) < escrow.MaxPageLimit {
			return nil
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, evt *types.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
