package intake

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/relaylight/internal/executor"
	"github.com/nerrad567/relaylight/internal/infrastructure/httpserver"
)

// Status values of a command response.
const (
	statusExecuted = "executed"
	statusFailed   = "failed"
)

// commandResponse is the /command body. Error is set only on failure.
type commandResponse struct {
	Status string `json:"status"`
	Cmd    string `json:"cmd"`
	Error  string `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status string `json:"status"`
	Device string `json:"device"`
}

// handleCommand runs one command and answers when it has finished.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	name := query.Get("cmd")
	if name == "" {
		httpserver.WriteJSON(w, http.StatusBadRequest, errorResponse{Error: "Missing cmd parameter"})
		return
	}

	cmd := executor.NewCommand(name, parseDuration(query.Get("duration")))
	res, err := s.device.Execute(r.Context(), cmd)
	if err != nil {
		s.logger.Warn("command not executed", "cmd", name, "error", err)
		httpserver.WriteJSON(w, http.StatusServiceUnavailable, commandResponse{
			Status: statusFailed,
			Cmd:    name,
			Error:  err.Error(),
		})
		return
	}

	// An unknown action is reported in the body; the request itself succeeded.
	if !res.OK {
		httpserver.WriteJSON(w, http.StatusOK, commandResponse{
			Status: statusFailed,
			Cmd:    name,
			Error:  res.Message,
		})
		return
	}

	httpserver.WriteJSON(w, http.StatusOK, commandResponse{
		Status: statusExecuted,
		Cmd:    name,
	})
}

// handleHealth reports liveness. It waits behind a running command.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h, err := s.device.Health(r.Context())
	if err != nil {
		httpserver.WriteJSON(w, http.StatusServiceUnavailable, healthResponse{
			Status: "unavailable",
			Device: s.device.DeviceID(),
		})
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, healthResponse{
		Status: "ok",
		Device: h.DeviceID,
	})
}

func handleNotFound(w http.ResponseWriter, _ *http.Request) {
	httpserver.WriteText(w, http.StatusNotFound, "Not Found")
}

// maxDurationMS is the largest duration representable as a time.Duration.
const maxDurationMS = math.MaxInt64 / int64(time.Millisecond)

// parseDuration reads the duration parameter in milliseconds.
// Absent, non-numeric and negative values fall back to the default.
func parseDuration(raw string) time.Duration {
	if raw == "" {
		return executor.DefaultDuration
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if errors.Is(err, strconv.ErrRange) && ms > 0 {
		ms = maxDurationMS
	} else if err != nil || ms < 0 {
		return executor.DefaultDuration
	}
	if ms > maxDurationMS {
		ms = maxDurationMS
	}
	return time.Duration(ms) * time.Millisecond
}
