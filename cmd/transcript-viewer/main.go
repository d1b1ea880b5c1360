// Transcript Viewer - live transcript display
// Consumes the live and final transcript topics from Kafka and fans events
// out to browsers over WebSocket.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"speech-transcribe-service/internal/config"
)

// TranscriptEvent is the union of the live, block and batch payloads.
type TranscriptEvent struct {
	EventType  string `json:"eventType"`
	SessionID  string `json:"sessionId,omitempty"`
	JobID      string `json:"jobId,omitempty"`
	SourceName string `json:"sourceName,omitempty"`
	TurnID     string `json:"turnId,omitempty"`
	Label      string `json:"label,omitempty"`
	Text       string `json:"text,omitempty"`
	FullText   string `json:"fullText,omitempty"`
	Timestamp  int64  `json:"timestamp"`
}

// Hub manages WebSocket connections
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan TranscriptEvent
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func newHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan TranscriptEvent, 100),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
	}
}

// run owns the client set; only this goroutine touches it.
func (h *Hub) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for conn := range h.clients {
				conn.Close()
			}
			return

		case conn := <-h.register:
			h.clients[conn] = true
			log.Info().Int("clients", len(h.clients)).Msg("Client connected")

		case conn := <-h.unregister:
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			log.Info().Int("clients", len(h.clients)).Msg("Client disconnected")

		case event := <-h.broadcast:
			for conn := range h.clients {
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteJSON(event); err != nil {
					log.Warn().Err(err).Msg("Write error")
					conn.Close()
					delete(h.clients, conn)
				}
			}
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local dev
	},
}

func wsHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Msg("WebSocket upgrade error")
			return
		}
		hub.register <- conn

		// Keep connection alive, handle disconnects
		go func() {
			defer func() {
				hub.unregister <- conn
			}()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}
}

func consumeKafka(ctx context.Context, hub *Hub, brokers []string, topic string, since time.Duration) {
	// Partition reader without a consumer group; every viewer sees every event
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   brokers,
		Topic:     topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	defer reader.Close()

	if err := reader.SetOffsetAt(ctx, time.Now().Add(-since)); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("Could not rewind, reading from the current offset")
	}
	log.Info().Str("topic", topic).Dur("since", since).Msg("Consuming transcript topic")

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Str("topic", topic).Msg("Kafka read error")
			time.Sleep(time.Second)
			continue
		}

		var event TranscriptEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			log.Debug().Err(err).Str("topic", topic).Msg("Skipping undecodable message")
			continue
		}

		text := event.Text
		if text == "" {
			text = event.FullText
		}
		log.Debug().
			Str("eventType", event.EventType).
			Str("sessionId", event.SessionID).
			Str("jobId", event.JobID).
			Str("text", truncate(text, 40)).
			Msg("Received transcript event")

		select {
		case hub.broadcast <- event:
		case <-ctx.Done():
			return
		}
	}
}

const indexHTML = `<!doctype html>
<html><head><meta charset="utf-8"><title>Transcript Viewer</title>
<style>body{font-family:sans-serif;margin:2em}#live{color:#666;min-height:1.5em}pre{white-space:pre-wrap}</style>
</head><body>
<h1>Transcript Viewer</h1>
<div id="live"></div>
<pre id="log"></pre>
<script>
const live = document.getElementById("live"), log = document.getElementById("log");
const ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
ws.onmessage = (m) => {
  const ev = JSON.parse(m.data);
  const ts = new Date(ev.timestamp).toLocaleTimeString();
  if (ev.eventType === "transcript.live") { live.textContent = ev.text; return; }
  if (ev.eventType === "transcript.block") { log.textContent += "[" + ts + "] " + (ev.label || "") + "\n" + ev.text + "\n\n"; return; }
  if (ev.eventType === "transcript.batch") { log.textContent += "[" + ts + "] " + ev.sourceName + "\n" + ev.fullText + "\n\n"; }
};
</script>
</body></html>`

func main() {
	cfg := config.Load()

	port := flag.String("port", "8081", "HTTP server port")
	brokers := flag.String("brokers", strings.Join(cfg.Kafka.Brokers, ","), "Kafka brokers (comma-separated)")
	topicPartial := flag.String("topic-partial", cfg.Kafka.TopicPartial, "Live text topic")
	topicFinal := flag.String("topic-final", cfg.Kafka.TopicFinal, "Finalized transcript topic")
	since := flag.Duration("since", time.Hour, "Replay events newer than this")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := newHub()
	go hub.run(ctx)

	brokerList := strings.Split(*brokers, ",")
	var wg sync.WaitGroup
	for _, topic := range []string{*topicPartial, *topicFinal} {
		wg.Add(1)
		go func(topic string) {
			defer wg.Done()
			consumeKafka(ctx, hub, brokerList, topic, *since)
		}(topic)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(indexHTML))
	})
	mux.HandleFunc("/ws", wsHandler(hub))

	server := &http.Server{Addr: ":" + *port, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Info().
			Str("url", "http://localhost:"+*port).
			Strs("brokers", brokerList).
			Strs("topics", []string{*topicPartial, *topicFinal}).
			Msg("Transcript Viewer starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	wg.Wait()
}
