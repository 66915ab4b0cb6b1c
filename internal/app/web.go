package app

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/pantilt/internal/config"
	"github.com/relabs-tech/pantilt/internal/log"
	"github.com/relabs-tech/pantilt/internal/status"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// hub pushes every status to the connected websocket clients. Slow clients
// miss updates rather than stall the MQTT callback.
type hub struct {
	mu      sync.Mutex
	clients map[chan status.Status]struct{}
}

func newHub() *hub {
	return &hub{clients: map[chan status.Status]struct{}{}}
}

func (h *hub) Report(s status.Status) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- s:
		default:
		}
	}
}

func (h *hub) add() chan status.Status {
	ch := make(chan status.Status, 16)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *hub) remove(ch chan status.Status) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
}

func (h *hub) serveWS(latest *status.Latest) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("websocket upgrade failed", "err", err)
			return
		}
		defer conn.Close()

		ch := h.add()
		defer h.remove(ch)

		// The page never sends anything; reading detects the close.
		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		if s, ok := latest.Get(); ok {
			if err := conn.WriteJSON(s); err != nil {
				return
			}
		}
		for {
			select {
			case <-gone:
				return
			case s := <-ch:
				if err := conn.WriteJSON(s); err != nil {
					return
				}
			}
		}
	}
}

// newWebMux serves the latest status, the live push and the static page.
func newWebMux(latest *status.Latest, h *hub, staticDir string) *http.ServeMux {
	mux := http.NewServeMux()

	// JSON API endpoint: latest status
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		s, ok := latest.Get()
		if !ok {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(s); err != nil {
			log.Warn("json encode error", "err", err)
		}
	})

	mux.HandleFunc("/ws", h.serveWS(latest))

	// Static files as the root
	mux.Handle("/", http.FileServer(http.Dir(staticDir)))
	return mux
}

// RunWeb serves a read-only status page fed by the tracker's MQTT status.
func RunWeb() error {
	cfg := config.Get()
	if cfg == nil {
		return fmt.Errorf("config not initialized")
	}
	if cfg.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}

	var latest status.Latest
	h := newHub()

	client, err := status.Connect(cfg.MQTTBroker, cfg.MQTTClientIDWeb)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	log.Info("connected to MQTT broker", "broker", cfg.MQTTBroker)

	if err := status.Subscribe(client, cfg.TopicStatus, status.Multi{&latest, h}); err != nil {
		return err
	}
	log.Info("subscribed to MQTT topic", "topic", cfg.TopicStatus)

	addr := fmt.Sprintf(":%d", cfg.WebServerPort)
	log.Info("web server listening", "addr", addr)
	return http.ListenAndServe(addr, newWebMux(&latest, h, "web"))
}
