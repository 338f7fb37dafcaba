package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/own-bridge/internal/bridges/openwebnet"
)

// commandSource marks commands that arrived over HTTP.
const commandSource = "api"

// handleListThings returns the live view of every configured device.
func (s *Server) handleListThings(w http.ResponseWriter, r *http.Request) {
	things := s.service.ThingSnapshots()

	if bridge := r.URL.Query().Get("bridge"); bridge != "" {
		filtered := things[:0:0]
		for _, t := range things {
			if t.Bridge == bridge {
				filtered = append(filtered, t)
			}
		}
		things = filtered
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"things": things,
		"count":  len(things),
	})
}

// handleGetThing returns the live view of one device.
func (s *Server) handleGetThing(w http.ResponseWriter, r *http.Request) {
	t, ok := s.service.ThingSnapshot(chi.URLParam(r, "id"))
	if !ok {
		writeNotFound(w, "thing not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// handleChannelCommand sends a command to one channel of a device.
//
// The body is the bare command text ("ON", "50", "INCREASE") or the JSON
// envelope {"id": "...", "command": "..."} also accepted over MQTT. The
// response is the acknowledgement: 202 when the command was dispatched,
// otherwise an error whose code matches the MQTT acknowledgement code.
func (s *Server) handleChannelCommand(w http.ResponseWriter, r *http.Request) {
	thingID := chi.URLParam(r, "id")
	channel := chi.URLParam(r, "channel")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "request body too large")
			return
		}
		writeBadRequest(w, "failed to read request body")
		return
	}

	cmd, err := openwebnet.DecodeCommandMessage(body)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if cmd.ID == "" {
		cmd.ID = requestID(r)
	}
	cmd.Source = commandSource

	if err := s.service.SendCommand(thingID, channel, cmd.Command); err != nil {
		s.logger.Debug("api command rejected",
			"thing", thingID,
			"channel", channel,
			"command", cmd.Command,
			"error", err,
		)
		writeBridgeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, openwebnet.NewAckMessage(cmd, thingID, channel, time.Now()))
}
