package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	log "github.com/sirupsen/logrus"

	"copytraderv1/internal/logsink"
)

const logHistoryLines = 100

type logHistoryResponse struct {
	Logs    []logsink.Line `json:"logs"`
	Message string         `json:"message,omitempty"`
}

func (s *Server) handleLogHistory(w http.ResponseWriter, r *http.Request) {
	if _, err := os.Stat(s.logPath); err != nil {
		writeError(w, http.StatusNotFound, "Log file not found")
		return
	}

	lines, err := logsink.Tail(s.logPath, logHistoryLines)
	if err != nil {
		log.Errorf("[api] log history read failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to read log history")
		return
	}

	resp := logHistoryResponse{Logs: lines}
	if len(lines) == 0 {
		resp.Logs = []logsink.Line{}
		resp.Message = "No logs available yet. New logs will appear automatically."
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStreamLogs(w http.ResponseWriter, r *http.Request) {
	if _, err := os.Stat(s.logPath); err != nil {
		writeError(w, http.StatusNotFound, "Log file not found")
		return
	}

	lines, err := logsink.Follow(r.Context(), s.logPath)
	if err != nil {
		log.Errorf("[api] log stream open failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to open log stream")
		return
	}

	flusher := sseHeaders(w)
	if flusher == nil {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			payload, err := json.Marshal(line)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}
