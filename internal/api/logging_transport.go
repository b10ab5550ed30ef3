package api

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"os"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// openTransports tracks every LoggingTransport so they can be flushed on exit.
var (
	openTransportsMu sync.Mutex
	openTransports   []*LoggingTransport
)

// LoggingTransport wraps an http.RoundTripper and appends request/response dumps to a file.
type LoggingTransport struct {
	Transport http.RoundTripper
	logFile   *os.File
	mu        sync.Mutex
	writer    *bufio.Writer
	closed    bool
}

// NewLoggingTransport opens logFilePath for appending and wraps transport.
func NewLoggingTransport(transport http.RoundTripper, logFilePath string) (*LoggingTransport, error) {
	f, err := os.OpenFile(logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open API log file %s: %w", logFilePath, err)
	}
	if transport == nil {
		transport = http.DefaultTransport
	}

	t := &LoggingTransport{
		Transport: transport,
		logFile:   f,
		writer:    bufio.NewWriter(f),
	}
	openTransportsMu.Lock()
	openTransports = append(openTransports, t)
	openTransportsMu.Unlock()
	return t, nil
}

// RoundTrip performs the request and logs it. Only JSON bodies are logged, image downloads are not.
func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	startTime := time.Now()

	if reqDump, err := httputil.DumpRequestOut(req, false); err != nil {
		log.WithError(err).Error("Failed to dump API request for logging")
	} else {
		t.writeLog(fmt.Sprintf("--- Request (%s) ---\n%s", startTime.Format(time.RFC3339), reqDump))
	}

	resp, err := t.Transport.RoundTrip(req)
	duration := time.Since(startTime)
	if err != nil {
		t.writeLog(fmt.Sprintf("--- Response Error (Duration: %v) ---\n%s", duration, err))
		return resp, err
	}

	contentType := resp.Header.Get("Content-Type")
	headerDump, dumpErr := httputil.DumpResponse(resp, false)
	if dumpErr != nil {
		headerDump = []byte("Status: " + resp.Status)
	}

	if !strings.HasPrefix(contentType, "application/json") {
		t.writeLog(fmt.Sprintf("--- Response (Duration: %v, Type: %s) ---\n%s(Body not logged)", duration, contentType, headerDump))
		return resp, nil
	}

	bodyBytes, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()
	if readErr != nil {
		t.writeLog(fmt.Sprintf("--- Response (Duration: %v) ---\n%s(Body read failed: %v)", duration, headerDump, readErr))
		return nil, fmt.Errorf("reading response body for logging: %w", readErr)
	}
	// Restore the body for the caller.
	resp.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	t.writeLog(fmt.Sprintf("--- Response (Duration: %v) ---\n%s--- Body (%d bytes) ---\n%s", duration, headerDump, len(bodyBytes), bodyBytes))
	return resp, nil
}

func (t *LoggingTransport) writeLog(entry string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	if _, err := t.writer.WriteString(entry + "\n\n"); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing to API log file: %v\n", err)
		return
	}
	t.writer.Flush()
}

// Close flushes and closes the log file. It is safe to call more than once.
func (t *LoggingTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true

	errFlush := t.writer.Flush()
	errClose := t.logFile.Close()
	if errFlush != nil {
		return fmt.Errorf("failed to flush API log buffer: %w", errFlush)
	}
	return errClose
}

// CloseAllLoggingTransports closes every transport created by NewLoggingTransport.
func CloseAllLoggingTransports() {
	openTransportsMu.Lock()
	defer openTransportsMu.Unlock()
	for _, t := range openTransports {
		if err := t.Close(); err != nil {
			log.WithError(err).Error("Error closing API log file")
		}
	}
	openTransports = nil
}
