// Package server serves the piano web page, note samples and the JSON API
// that drives the piano controller.
package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"expvar"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pipelined/piano/capture"
	"github.com/pipelined/piano/log"
	"github.com/pipelined/piano/melody"
	"github.com/pipelined/piano/note"
	"github.com/pipelined/piano/piano"
	"github.com/pipelined/piano/record"
	"github.com/pipelined/piano/render"
	"github.com/pipelined/piano/samplebank"
	"github.com/pipelined/piano/store"
	"github.com/pipelined/piano/timeline"
	"github.com/pipelined/piano/transport"
)

const (
	// FirstOctave is the lowest octave of the keyboard.
	FirstOctave = 1
	// LastOctave is the highest full octave of the keyboard.
	LastOctave = 5

	shutdownTimeout = 5 * time.Second
)

//go:embed web
var embedded embed.FS

// Server is the http front of the piano.
type Server struct {
	piano    *piano.Piano
	sounds   string
	web      fs.FS
	keyboard []note.Key
	log      logrus.FieldLogger
	mux      *http.ServeMux
}

// Option configures the server.
type Option func(*Server)

// WithSounds serves note samples from dir under /sounds/.
func WithSounds(dir string) Option {
	return func(s *Server) {
		s.sounds = dir
	}
}

// WithWebDir serves the page from dir instead of embedded assets.
func WithWebDir(dir string) Option {
	return func(s *Server) {
		if dir != "" {
			s.web = os.DirFS(dir)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Server) {
		s.log = l
	}
}

// New creates a server of the piano.
func New(p *piano.Piano, options ...Option) *Server {
	web, err := fs.Sub(embedded, "web")
	if err != nil {
		panic(err)
	}
	s := &Server{
		piano:    p,
		web:      web,
		keyboard: note.Keyboard(FirstOctave, LastOctave),
		log:      log.GetLogger(),
		mux:      http.NewServeMux(),
	}
	for _, option := range options {
		option(s)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("GET /", http.FileServerFS(s.web))
	if s.sounds != "" {
		s.mux.Handle("GET /sounds/", http.StripPrefix("/sounds/", http.FileServer(http.Dir(s.sounds))))
	}
	s.mux.Handle("GET /debug/vars", expvar.Handler())

	s.mux.HandleFunc("GET /api/keyboard", s.keys)
	s.mux.HandleFunc("GET /api/state", s.state)
	s.mux.HandleFunc("POST /api/notes/{note}", s.play)
	s.mux.HandleFunc("POST /api/record/start", s.startRecording)
	s.mux.HandleFunc("POST /api/record/stop", s.stopRecording)
	s.mux.HandleFunc("POST /api/playback", s.playback)
	s.mux.HandleFunc("POST /api/playback/stop", s.stopPlayback)
	s.mux.HandleFunc("POST /api/generate", s.generate)
	s.mux.HandleFunc("POST /api/generate-music", s.generateMusic)
	s.mux.HandleFunc("GET /api/export", s.export)
	s.mux.HandleFunc("GET /api/takes", s.takes)
	s.mux.HandleFunc("POST /api/takes/{id}/load", s.loadTake)
}

// ServeHTTP logs the request and routes it.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rec, r)
	s.log.WithFields(logrus.Fields{
		"method":   r.Method,
		"path":     r.URL.Path,
		"status":   rec.status,
		"duration": time.Since(start).Round(time.Microsecond),
	}).Debug("request")
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on the listener until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(ln)
	}()
	s.log.Infof("Server is running on http://%s", ln.Addr())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.log.Info("server stopped")
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

type errorResponse struct {
	Error string `json:"error"`
}

type noteResponse struct {
	Note string `json:"note"`
}

type sessionResponse struct {
	SessionID string `json:"sessionId"`
}

type timelineResponse struct {
	Events   []timeline.NoteEvent `json:"events"`
	Duration float64              `json:"duration"`
}

func newTimelineResponse(tl timeline.Timeline) timelineResponse {
	return timelineResponse{
		Events:   append([]timeline.NoteEvent{}, tl.Events()...),
		Duration: tl.End(),
	}
}

func (s *Server) keys(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.keyboard)
}

func (s *Server) state(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.piano.State())
}

func (s *Server) play(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("note")
	if err := s.piano.Play(name); err != nil {
		s.fail(w, err, logrus.Fields{"note": name})
		return
	}
	writeJSON(w, http.StatusOK, noteResponse{Note: name})
}

func (s *Server) startRecording(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sessionResponse{SessionID: s.piano.StartRecording()})
}

func (s *Server) stopRecording(w http.ResponseWriter, r *http.Request) {
	tl, err := s.piano.StopRecording(r.Context())
	if err != nil {
		s.fail(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, newTimelineResponse(tl))
}

func (s *Server) playback(w http.ResponseWriter, r *http.Request) {
	if err := s.piano.Playback(r.Context()); err != nil {
		s.fail(w, err, nil)
		return
	}
	writeJSON(w, http.StatusAccepted, s.piano.State())
}

func (s *Server) stopPlayback(w http.ResponseWriter, r *http.Request) {
	s.piano.StopPlayback()
	writeJSON(w, http.StatusOK, s.piano.State())
}

func (s *Server) generate(w http.ResponseWriter, r *http.Request) {
	tl, err := s.piano.Generate(r.Context())
	if err != nil {
		s.fail(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, newTimelineResponse(tl))
}

func (s *Server) generateMusic(w http.ResponseWriter, r *http.Request) {
	tl, err := s.piano.GenerateMusic(r.Context())
	if err != nil {
		s.fail(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, newTimelineResponse(tl))
}

func (s *Server) export(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "wav"
	}
	f, err := s.piano.Export(r.Context(), format)
	if err != nil {
		s.fail(w, err, logrus.Fields{"format": format})
		return
	}
	w.Header().Set("Content-Type", f.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", f.Name))
	w.Header().Set("Content-Length", fmt.Sprint(len(f.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(f.Data); err != nil {
		s.log.WithError(err).WithField("format", format).Warn("export is not sent")
	}
}

func (s *Server) takes(w http.ResponseWriter, r *http.Request) {
	takes, err := s.piano.Takes(r.Context())
	if err != nil {
		s.fail(w, err, nil)
		return
	}
	if takes == nil {
		takes = []store.Summary{}
	}
	writeJSON(w, http.StatusOK, takes)
}

func (s *Server) loadTake(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	tl, err := s.piano.LoadTake(r.Context(), id)
	if err != nil {
		s.fail(w, err, logrus.Fields{"take": id})
		return
	}
	writeJSON(w, http.StatusOK, newTimelineResponse(tl))
}

// fail logs the error and writes it with the matching status.
func (s *Server) fail(w http.ResponseWriter, err error, fields logrus.Fields) {
	status := Status(err)
	l := s.log.WithError(err).WithFields(fields).WithField("status", status)
	if status >= http.StatusInternalServerError {
		l.Warn("request failed")
	} else {
		l.Info("request rejected")
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// Status maps piano errors to http status codes.
func Status(err error) int {
	switch {
	case errors.Is(err, melody.ErrGenerationFailed):
		return http.StatusBadGateway
	case errors.Is(err, capture.ErrEncode):
		return http.StatusInternalServerError
	case errors.Is(err, store.ErrTakeNotFound),
		errors.Is(err, piano.ErrNoTakes):
		return http.StatusNotFound
	case errors.Is(err, piano.ErrNoRecording),
		errors.Is(err, record.ErrNotRecording),
		errors.Is(err, timeline.ErrEmptyTimeline),
		errors.Is(err, capture.ErrCaptureInFlight),
		errors.Is(err, transport.ErrRunning),
		errors.Is(err, transport.ErrNothingScheduled):
		return http.StatusConflict
	case errors.Is(err, samplebank.ErrUnknownNote),
		errors.Is(err, samplebank.ErrNotLoaded),
		errors.Is(err, samplebank.ErrNoSamples),
		errors.Is(err, render.ErrBankNotLoaded),
		errors.Is(err, render.ErrInvalidFormat),
		errors.Is(err, capture.ErrUnknownFormat),
		errors.Is(err, note.ErrInvalidName):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
