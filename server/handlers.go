package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"djmix/core/decoder"
	"djmix/core/dsp"
	"djmix/core/engine"
	"djmix/core/recorder"
	"djmix/logger"

	"github.com/gorilla/mux"
)

// LoadRequest asks for a file to be decoded onto a deck. Relative paths are
// resolved against the music directory.
type LoadRequest struct {
	Path    string `json:"path"`
	TrackID string `json:"trackId,omitempty"`
}

// LoadResponse carries the decode request id echoed in any decode_error.
type LoadResponse struct {
	RequestID string `json:"requestId"`
}

type seekRequest struct {
	Seconds float64 `json:"seconds"`
}

type valueRequest struct {
	Value float64 `json:"value"`
}

type enabledRequest struct {
	Enabled bool `json:"enabled"`
}

type positionRequest struct {
	Position float64 `json:"position"`
}

type autoFadeRequest struct {
	Target  float64 `json:"target"`
	Seconds float64 `json:"seconds"`
}

type activeRequest struct {
	Active bool `json:"active"`
}

type recordingRequest struct {
	Path string `json:"path,omitempty"`
}

// LibraryEntry is one audio file in the music directory.
type LibraryEntry struct {
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// commandStatus maps engine and worker errors to HTTP status codes.
func commandStatus(err error) int {
	switch {
	case errors.Is(err, engine.ErrInvalidDeck):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrCommandQueueFull),
		errors.Is(err, decoder.ErrQueueFull),
		errors.Is(err, decoder.ErrPoolClosed),
		errors.Is(err, engine.ErrRecordingUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, recorder.ErrAlreadyRecording),
		errors.Is(err, recorder.ErrNeedsTerminate):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// accepted reports the outcome of a posted command.
func accepted(w http.ResponseWriter, err error) {
	if err != nil {
		writeError(w, commandStatus(err), err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return false
	}
	return true
}

func deckParam(w http.ResponseWriter, r *http.Request) (engine.DeckID, bool) {
	d, err := engine.ParseDeck(mux.Vars(r)["deck"])
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return 0, false
	}
	return d, true
}

// StateHandler returns the last published full engine state.
func (s *Server) StateHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state.State())
}

// LibraryHandler lists audio files in the music directory.
func (s *Server) LibraryHandler(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(s.cfg.MusicDir)
	if err != nil {
		if os.IsNotExist(err) {
			writeJSON(w, http.StatusOK, []LibraryEntry{})
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]LibraryEntry, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !decoder.IsAudioFile(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, LibraryEntry{
			Name:     e.Name(),
			Path:     filepath.Join(s.cfg.MusicDir, e.Name()),
			Size:     info.Size(),
			Modified: info.ModTime(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// LoadHandler queues a decode for the deck.
func (s *Server) LoadHandler(w http.ResponseWriter, r *http.Request) {
	d, ok := deckParam(w, r)
	if !ok {
		return
	}
	var req LoadRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, errors.New("path is required"))
		return
	}
	path := req.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.cfg.MusicDir, path)
	}

	id, err := s.orch.RequestLoad(d, path, req.TrackID)
	if err != nil {
		logger.Warn("Load request rejected", logger.String("deck", d.String()), logger.ErrorField(err))
		writeError(w, commandStatus(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, LoadResponse{RequestID: id})
}

func (s *Server) PlayHandler(w http.ResponseWriter, r *http.Request) {
	if d, ok := deckParam(w, r); ok {
		accepted(w, s.orch.Engine().Play(d))
	}
}

func (s *Server) PauseHandler(w http.ResponseWriter, r *http.Request) {
	if d, ok := deckParam(w, r); ok {
		accepted(w, s.orch.Engine().Pause(d))
	}
}

func (s *Server) SeekHandler(w http.ResponseWriter, r *http.Request) {
	d, ok := deckParam(w, r)
	if !ok {
		return
	}
	var req seekRequest
	if decode(w, r, &req) {
		accepted(w, s.orch.Engine().Seek(d, req.Seconds))
	}
}

func (s *Server) GainHandler(w http.ResponseWriter, r *http.Request) {
	d, ok := deckParam(w, r)
	if !ok {
		return
	}
	var req valueRequest
	if decode(w, r, &req) {
		accepted(w, s.orch.Engine().SetGain(d, req.Value))
	}
}

func (s *Server) CueHandler(w http.ResponseWriter, r *http.Request) {
	d, ok := deckParam(w, r)
	if !ok {
		return
	}
	var req enabledRequest
	if decode(w, r, &req) {
		accepted(w, s.orch.Engine().SetCue(d, req.Enabled))
	}
}

// EQHandler sets the deck's kill switches; the body is {"low","mid","high"}.
func (s *Server) EQHandler(w http.ResponseWriter, r *http.Request) {
	d, ok := deckParam(w, r)
	if !ok {
		return
	}
	var req dsp.EqCutState
	if decode(w, r, &req) {
		accepted(w, s.orch.Engine().SetEQ(d, req))
	}
}

func (s *Server) CrossfaderHandler(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if decode(w, r, &req) {
		accepted(w, s.orch.Engine().SetCrossfader(req.Position))
	}
}

// AutoCrossfadeHandler starts a timed fade. A missing duration uses the configured default.
func (s *Server) AutoCrossfadeHandler(w http.ResponseWriter, r *http.Request) {
	var req autoFadeRequest
	if !decode(w, r, &req) {
		return
	}
	dur := s.cfg.AutoFadeDefault
	if req.Seconds > 0 {
		dur = time.Duration(req.Seconds * float64(time.Second))
	}
	accepted(w, s.orch.Engine().AutoCrossfade(req.Target, dur))
}

func (s *Server) TalkoverHandler(w http.ResponseWriter, r *http.Request) {
	var req activeRequest
	if decode(w, r, &req) {
		accepted(w, s.orch.Engine().SetTalkover(req.Active))
	}
}

func (s *Server) MicHandler(w http.ResponseWriter, r *http.Request) {
	var req enabledRequest
	if decode(w, r, &req) {
		accepted(w, s.orch.Engine().SetMic(req.Enabled))
	}
}

func (s *Server) RecordingStatusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.RecordingStatus())
}

// StartRecordingHandler accepts an optional {"path"}; an empty body is allowed.
func (s *Server) StartRecordingHandler(w http.ResponseWriter, r *http.Request) {
	var req recordingRequest
	if r.ContentLength != 0 {
		if !decode(w, r, &req) {
			return
		}
	}
	session, err := s.orch.StartRecording(r.Context(), req.Path)
	if err != nil {
		logger.Warn("Recording start failed", logger.ErrorField(err))
		writeError(w, commandStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) StopRecordingHandler(w http.ResponseWriter, r *http.Request) {
	session, err := s.orch.StopRecording(r.Context())
	if err != nil {
		logger.Warn("Recording stop failed", logger.ErrorField(err))
		writeError(w, commandStatus(err), err)
		return
	}
	if session == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// TerminateRecordingHandler abandons the current recording and clears a failed
// recorder so a new one can start.
func (s *Server) TerminateRecordingHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.TerminateRecording(); err != nil {
		writeError(w, commandStatus(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RecordingHistoryHandler pages through finished recordings with ?limit=&offset=.
func (s *Server) RecordingHistoryHandler(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("recording history is not configured"))
		return
	}
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)
	sessions, err := s.history.List(r.Context(), limit, offset)
	if err != nil {
		logger.Error("Failed to list recordings", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func queryInt(r *http.Request, key string, fallback int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return fallback
}
