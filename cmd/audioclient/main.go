// Audio client: streams a PCM WAV file through a realtime WebSocket session
// at real-time pace and prints live text and finalized blocks.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"speech-transcribe-service/internal/models"
	"speech-transcribe-service/internal/service/realtime"
)

// WAV header is 44 bytes for standard PCM files
const wavHeaderSize = 44

const chunkInterval = 100 * time.Millisecond

type message struct {
	Type      string               `json:"type"`
	SessionID string               `json:"sessionId"`
	Delta     *realtime.StateDelta `json:"delta"`
	Snapshot  *realtime.Snapshot   `json:"snapshot"`
	Error     string               `json:"error"`
}

type command struct {
	Op    string `json:"op"`
	Label string `json:"label,omitempty"`
}

func main() {
	audioFile := flag.String("audio", "testdata/sample-16khz.wav", "Path to WAV file (16kHz 16-bit mono)")
	serverURL := flag.String("server", "ws://localhost:8080/v1/realtime/ws", "Realtime WebSocket URL")
	markEvery := flag.Duration("mark-every", 0, "Insert a marker at this interval (0 = never)")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	f, err := os.Open(*audioFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open audio file")
	}
	defer f.Close()

	sampleRate, err := readWAVHeader(f)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid WAV file")
	}
	// 16-bit mono: two bytes per sample
	chunkSize := int(sampleRate) * 2 * int(chunkInterval/time.Millisecond) / 1000

	conn, _, err := websocket.DefaultDialer.Dial(*serverURL, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect")
	}
	defer conn.Close()

	stopped := make(chan struct{})
	final := make(chan realtime.Snapshot, 1)
	go readLoop(conn, stopped, final)

	chunk := make([]byte, chunkSize)
	var (
		totalBytes int64
		chunkNum   int
		lastMark   = time.Now()
	)
	start := time.Now()
	for {
		n, err := io.ReadFull(f, chunk)
		if n > 0 {
			if werr := conn.WriteMessage(websocket.BinaryMessage, chunk[:n]); werr != nil {
				log.Fatal().Err(werr).Msg("Failed to send audio")
			}
			chunkNum++
			totalBytes += int64(n)
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read audio")
		}

		if *markEvery > 0 && time.Since(lastMark) >= *markEvery {
			_ = conn.WriteJSON(command{Op: "marker", Label: fmt.Sprintf("M%d", chunkNum)})
			lastMark = time.Now()
		}
		// Simulate real-time streaming
		time.Sleep(chunkInterval)
	}
	log.Info().Int("chunks", chunkNum).Int64("bytes", totalBytes).Dur("elapsed", time.Since(start)).Msg("Finished streaming")

	_ = conn.WriteJSON(command{Op: "stop"})
	select {
	case <-stopped:
	case <-time.After(10 * time.Second):
		log.Warn().Msg("Timed out waiting for the session to stop")
	}
	_ = conn.WriteJSON(command{Op: "snapshot"})
	select {
	case snap := <-final:
		fmt.Println()
		fmt.Println(models.RenderLog(snap.FinalizedLog))
	case <-time.After(5 * time.Second):
		log.Warn().Msg("No snapshot received")
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func readLoop(conn *websocket.Conn, stopped chan<- struct{}, final chan<- realtime.Snapshot) {
	signalled := false
	for {
		var msg message
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Type {
		case "session":
			log.Info().Str("sessionId", msg.SessionID).Msg("Session opened")
		case "error":
			log.Warn().Str("error", msg.Error).Msg("Server error")
		case "snapshot":
			final <- *msg.Snapshot
		case "delta":
			d := msg.Delta
			if d.LiveText != nil && *d.LiveText != "" {
				fmt.Printf("\r… %s", lastLine(*d.LiveText))
			}
			for _, b := range d.Appended {
				fmt.Printf("\r%s\n", b.String())
			}
			if d.Connection != "" {
				log.Info().Str("connection", d.Connection).Msg("Connection state")
			}
			if d.Connection == realtime.StateStopped && !signalled {
				signalled = true
				close(stopped)
			}
		}
	}
}

func lastLine(s string) string {
	if i := strings.LastIndex(s, "\n"); i >= 0 {
		return s[i+1:]
	}
	return s
}

// readWAVHeader validates a PCM16 mono header and returns its sample rate.
func readWAVHeader(r io.Reader) (uint32, error) {
	header := make([]byte, wavHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, fmt.Errorf("read header: %w", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return 0, fmt.Errorf("not a WAV file")
	}

	audioFormat := binary.LittleEndian.Uint16(header[20:22])
	numChannels := binary.LittleEndian.Uint16(header[22:24])
	sampleRate := binary.LittleEndian.Uint32(header[24:28])
	bitsPerSample := binary.LittleEndian.Uint16(header[34:36])

	log.Info().
		Uint16("format", audioFormat).
		Uint16("channels", numChannels).
		Uint32("sampleRate", sampleRate).
		Uint16("bitsPerSample", bitsPerSample).
		Msg("WAV file")

	if audioFormat != 1 || bitsPerSample != 16 || numChannels != 1 {
		return 0, fmt.Errorf("only 16-bit mono PCM is supported")
	}
	if sampleRate != 16000 {
		log.Warn().Uint32("sampleRate", sampleRate).Msg("Expected 16000 Hz audio")
	}
	return sampleRate, nil
}
