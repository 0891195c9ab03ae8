package melody

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/pipelined/piano/log"
	"github.com/pipelined/piano/timeline"
)

// DefaultPhrase seeds the generated music: a C major scale up and down.
var DefaultPhrase = []string{"C4", "D4", "E4", "F4", "G4", "A4", "B4", "C5", "B4", "A4", "G4", "F4", "E4", "D4", "C4"}

// Service serves the melody generation endpoints.
type Service struct {
	Generator *Markov
	// Phrase seeds generated music.
	Phrase []string
	// Spacing between generated notes of music.
	Spacing float64
	// NoteLength of generated notes of music.
	NoteLength float64
	Log        logrus.FieldLogger
}

// Handler returns the http handler of the service.
func (s *Service) Handler() http.Handler {
	if s.Log == nil {
		s.Log = log.GetLogger()
	}
	if s.Generator == nil {
		s.Generator = NewMarkov(DefaultOrder, DefaultLength, 1)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+generatePath, s.generate)
	mux.HandleFunc("GET "+generateMusicPath, s.generateMusic)
	return mux
}

func (s *Service) generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&req); err != nil {
		s.Log.WithError(err).Info("invalid generate request")
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request"})
		return
	}
	if len(req.Notes) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "No notes provided"})
		return
	}
	generated := s.Generator.Continue(req.Notes)
	s.Log.WithFields(logrus.Fields{"input": len(req.Notes), "generated": len(generated)}).Info("melody generated")
	writeJSON(w, http.StatusOK, generateResponse{GeneratedNotes: generated})
}

func (s *Service) generateMusic(w http.ResponseWriter, r *http.Request) {
	phrase := s.Phrase
	if len(phrase) == 0 {
		phrase = DefaultPhrase
	}
	spacing := s.Spacing
	if spacing <= 0 {
		spacing = timeline.DefaultSpacing
	}
	length := s.NoteLength
	if length <= 0 {
		length = spacing
	}
	generated := s.Generator.Continue(phrase)
	notes := make([]Note, len(generated))
	for i, n := range generated {
		start := float64(i) * spacing
		notes[i] = Note{Note: n, StartTime: start, EndTime: start + length}
	}
	s.Log.WithField("generated", len(notes)).Info("music generated")
	writeJSON(w, http.StatusOK, generateMusicResponse{Notes: notes})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
