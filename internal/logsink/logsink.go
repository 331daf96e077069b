// Package logsink configures the process logger and reads its output
// back for the log history and tail endpoints. Every line is written as
// `<timestamp> - <LEVEL> - <message>`; the engine only produces lines,
// it never parses its own output — the parsing here serves the API's
// display endpoints.
package logsink

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	timestampLayout = "2006-01-02 15:04:05,000"
	separator       = " - "
	pollInterval    = 100 * time.Millisecond
)

// LineFormatter renders entries in the sink's line format.
type LineFormatter struct{}

// Format implements logrus.Formatter.
func (f *LineFormatter) Format(entry *log.Entry) ([]byte, error) {
	level := strings.ToUpper(entry.Level.String())
	line := fmt.Sprintf("%s%s%s%s%s\n",
		entry.Time.Format(timestampLayout), separator, level, separator, entry.Message)
	return []byte(line), nil
}

// Init points the standard logger at stderr plus the append-only log
// file. The file is created if missing.
func Init(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	log.SetFormatter(&LineFormatter{})
	log.SetOutput(io.MultiWriter(os.Stderr, f))
	log.SetLevel(log.InfoLevel)
	return nil
}

// Successf logs a success outcome. Kept as a distinct helper so success
// lines stay greppable in the sink.
func Successf(format string, args ...any) {
	log.Infof("SUCCESS: "+format, args...)
}

// Line is one parsed log line.
type Line struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

// ParseLine splits a raw line into its three fields. Malformed lines
// are reported as not ok and should be skipped by callers.
func ParseLine(raw string) (Line, bool) {
	raw = strings.TrimRight(raw, "\r\n")
	parts := strings.SplitN(raw, separator, 3)
	if len(parts) != 3 {
		return Line{}, false
	}
	return Line{Timestamp: parts[0], Level: parts[1], Message: parts[2]}, true
}

// Tail returns the last n parsed lines of the log file.
func Tail(path string, n int) ([]Line, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	rawLines := bytes.Split(bytes.TrimRight(raw, "\n"), []byte("\n"))
	if len(rawLines) > n {
		rawLines = rawLines[len(rawLines)-n:]
	}

	lines := make([]Line, 0, len(rawLines))
	for _, rl := range rawLines {
		if line, ok := ParseLine(string(rl)); ok {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

// Follow tails the log file from its current end, delivering new lines
// until ctx is cancelled. The returned channel is closed on exit.
func Follow(ctx context.Context, path string) (<-chan Line, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return nil, err
	}

	out := make(chan Line, 64)
	go func() {
		defer close(out)
		defer f.Close()

		reader := bufio.NewReader(f)
		for {
			raw, err := reader.ReadString('\n')
			if err != nil {
				select {
				case <-ctx.Done():
					return
				case <-time.After(pollInterval):
					continue
				}
			}
			line, ok := ParseLine(raw)
			if !ok {
				continue
			}
			select {
			case out <- line:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
