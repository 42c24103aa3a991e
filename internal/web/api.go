package web

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/sweeney/injector-bench/internal/config"
	"github.com/sweeney/injector-bench/internal/logic"
)

type apiResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func writeAPI(w http.ResponseWriter, code int, resp apiResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(resp)
}

func apiError(w http.ResponseWriter, code int, msg string) {
	writeAPI(w, code, apiResponse{Status: "error", Error: msg})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		apiError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	kind, err := logic.ParseProfileKind(r.URL.Query().Get("profile"))
	if err != nil {
		apiError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.tracker.Snapshot().Session.Running {
		apiError(w, http.StatusConflict, logic.ErrAlreadyRunning.Error())
		return
	}
	if !s.submit(logic.Command{Profile: kind, Source: "http"}) {
		apiError(w, http.StatusServiceUnavailable, "control loop busy")
		return
	}
	writeAPI(w, http.StatusAccepted, apiResponse{Status: "accepted"})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		apiError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !s.submit(logic.Command{Stop: true, Source: "http"}) {
		apiError(w, http.StatusServiceUnavailable, "control loop busy")
		return
	}
	writeAPI(w, http.StatusAccepted, apiResponse{Status: "accepted"})
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(s.store.Current())

	case http.MethodPost:
		if s.tracker.Snapshot().Session.Running {
			apiError(w, http.StatusConflict, "settings are locked while a test is running")
			return
		}
		var in config.Settings
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&in); err != nil {
			apiError(w, http.StatusBadRequest, "bad request")
			return
		}
		if in.Version == "" {
			in.Version = config.Version
		}
		in = in.Normalize()
		if err := s.store.Save(in); err != nil {
			if errors.Is(err, config.ErrInvalid) {
				apiError(w, http.StatusBadRequest, err.Error())
				return
			}
			log.Printf("[web] save settings: %v", err)
			apiError(w, http.StatusInternalServerError, "save failed")
			return
		}
		s.tracker.SetSettings(in, false)
		log.Printf("[web] settings updated: %+v", in)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(in)

	default:
		apiError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}
