package httpapi

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/memoryd/internal/protocol"
)

const (
	watchReadTimeout  = 120 * time.Second
	watchPingInterval = 30 * time.Second
	watchWriteTimeout = 10 * time.Second
)

// handleWatch streams memory_stored events for one user over a websocket.
// Clients may send client_control messages: "ping" answers with a pong
// system event, "backfill" sends the current timeline.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "watch hub not configured")
		return
	}
	userID := chi.URLParam(r, "user_id")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sub := s.hub.Subscribe(userID)
	s.observeSubscribers()
	defer func() {
		_ = s.hub.Unsubscribe(sub.ID)
		s.observeSubscribers()
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	outbound := make(chan any, 64)
	enqueue := func(msg any) {
		t, _ := messageTypeOf(msg)
		select {
		case outbound <- msg:
		default:
			// Keep websocket writes single-threaded; drop if the queue is saturated.
			s.observeWatchEvent("drop_full_" + string(t))
		}
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(watchPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(watchWriteTimeout)); err != nil {
					cancel()
					return
				}
			case msg := <-outbound:
				_ = conn.SetWriteDeadline(time.Now().Add(watchWriteTimeout))
				if err := conn.WriteJSON(msg); err != nil {
					cancel()
					return
				}
				if t, ok := messageTypeOf(msg); ok && s.metrics != nil {
					s.metrics.WSMessages.WithLabelValues("outbound", string(t)).Inc()
				}
			}
		}
	}()

	// Queued ahead of the forwarder so it is always the first event.
	enqueue(protocol.SystemEvent{
		Type:           protocol.TypeSystemEvent,
		SubscriptionID: sub.ID,
		Code:           "subscribed",
		Detail:         userID,
	})

	// Exits when Unsubscribe closes the channel.
	go func() {
		for item := range sub.C() {
			select {
			case <-ctx.Done():
				return
			case outbound <- protocol.MemoryStored{
				Type:           protocol.TypeMemoryStored,
				SubscriptionID: sub.ID,
				Item:           item,
			}:
			}
		}
	}()

	conn.SetReadLimit(64 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(watchReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(watchReadTimeout))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(watchReadTimeout))
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			enqueue(protocol.ErrorEvent{
				Type:           protocol.TypeErrorEvent,
				SubscriptionID: sub.ID,
				Code:           "invalid_client_message",
				Source:         "gateway",
				Retryable:      false,
				Detail:         err.Error(),
			})
			continue
		}
		if s.metrics != nil {
			s.metrics.WSMessages.WithLabelValues("inbound", string(protocol.TypeClientControl)).Inc()
		}

		control := parsed.(protocol.ClientControl)
		switch control.Action {
		case protocol.ActionPing:
			enqueue(protocol.SystemEvent{
				Type:           protocol.TypeSystemEvent,
				SubscriptionID: sub.ID,
				Code:           "pong",
			})
		case protocol.ActionBackfill:
			items, err := s.store.Get(ctx, userID)
			if err != nil {
				log.Printf("watch backfill failed user=%q: %v", userID, err)
				enqueue(protocol.ErrorEvent{
					Type:           protocol.TypeErrorEvent,
					SubscriptionID: sub.ID,
					Code:           "backfill_failed",
					Source:         "store",
					Retryable:      true,
					Detail:         err.Error(),
				})
				continue
			}
			enqueue(protocol.TimelineSnapshot{
				Type:           protocol.TypeTimelineSnapshot,
				SubscriptionID: sub.ID,
				UserID:         userID,
				Items:          items,
			})
		}
	}

	cancel()
	<-writerDone
}

func (s *Server) observeSubscribers() {
	if s.metrics == nil {
		return
	}
	s.metrics.WatchSubscribers.Set(float64(s.hub.ActiveCount()))
}

func (s *Server) observeWatchEvent(result string) {
	if s.metrics == nil {
		return
	}
	s.metrics.WatchEvents.WithLabelValues(result).Inc()
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.ClientControl:
		return m.Type, true
	case protocol.MemoryStored:
		return m.Type, true
	case protocol.TimelineSnapshot:
		return m.Type, true
	case protocol.SystemEvent:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
