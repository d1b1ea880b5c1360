// Test client for the batch endpoints: uploads a local audio file and prints
// the merged transcript with its time-aligned chunks.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"speech-transcribe-service/internal/models"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "HTTP API base URL")
	file := flag.String("file", "", "Audio file to transcribe")
	segmentSeconds := flag.Int("segment-seconds", 0, "Segment duration in seconds (0 = server default)")
	once := flag.Bool("once", false, "Use the single-call endpoint instead of segmenting")
	timeout := flag.Duration("timeout", 2*time.Hour, "Request timeout")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	if *file == "" {
		log.Fatal().Msg("-file is required")
	}

	body, contentType, err := formBody(*file, *segmentSeconds)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build upload")
	}

	endpoint := *server + "/v1/transcribe/segmented"
	if *once {
		endpoint = *server + "/v1/transcribe"
	}

	client := &http.Client{Timeout: *timeout}
	start := time.Now()
	log.Info().Str("file", *file).Str("endpoint", endpoint).Msg("Uploading")

	resp, err := client.Post(endpoint, contentType, body)
	if err != nil {
		log.Fatal().Err(err).Msg("Request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read response")
	}
	if resp.StatusCode != http.StatusOK {
		log.Fatal().Int("status", resp.StatusCode).Str("body", string(raw)).Msg("Transcription failed")
	}

	if *once {
		var res models.SingleTranscript
		if err := json.Unmarshal(raw, &res); err != nil {
			log.Fatal().Err(err).Msg("Invalid response")
		}
		fmt.Println(res.Text)
		log.Info().Dur("elapsed", time.Since(start)).Msg("Done")
		return
	}

	var res models.FullTranscript
	if err := json.Unmarshal(raw, &res); err != nil {
		log.Fatal().Err(err).Msg("Invalid response")
	}
	for _, c := range res.Chunks {
		fmt.Printf("[%s - %s] %s\n", clock(c.StartSeconds), clock(c.EndSeconds), c.Text)
	}
	fmt.Println()
	fmt.Println(res.FullText)
	log.Info().Int("chunks", len(res.Chunks)).Dur("elapsed", time.Since(start)).Msg("Done")
}

func formBody(path string, segmentSeconds int) (*bytes.Buffer, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if segmentSeconds > 0 {
		if err := mw.WriteField("segmentSeconds", strconv.Itoa(segmentSeconds)); err != nil {
			return nil, "", err
		}
	}
	fw, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(fw, f); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

// clock formats seconds as HH:MM:SS.
func clock(secs float64) string {
	d := time.Duration(secs) * time.Second
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
