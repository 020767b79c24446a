package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/chicogong/vidioai/pkg/artifact"
	"github.com/chicogong/vidioai/pkg/schemas"
	"github.com/chicogong/vidioai/pkg/session"
	"github.com/chicogong/vidioai/pkg/speech"
	"github.com/chicogong/vidioai/pkg/storage"
	"github.com/chicogong/vidioai/pkg/store"
)

// CreateSessionRequest is the body of POST /sessions
type CreateSessionRequest struct {
	SourceURI string `json:"source_uri,omitempty"`
}

// SourceRequest is the JSON body of PUT /sessions/{id}/source
type SourceRequest struct {
	URI string `json:"uri"`
}

// CommandRequest is the body of POST /sessions/{id}/commands
type CommandRequest struct {
	Text string `json:"text"`
}

// CutRequest is the body of POST /sessions/{id}/cut, in seconds
type CutRequest struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// AudioRequest is the body of POST /sessions/{id}/audio
type AudioRequest struct {
	Category schemas.AudioCategory `json:"category"`
}

// SubtitlesRequest is the body of POST /sessions/{id}/subtitles
type SubtitlesRequest struct {
	Text string `json:"text"`
}

// AcceptedResponse is returned when an operation starts in the background
type AcceptedResponse struct {
	Session  string           `json:"session"`
	Intent   *schemas.Intent  `json:"intent,omitempty"`
	Snapshot schemas.Snapshot `json:"snapshot"`
}

// CommandResponse is returned for commands that were not recognized
type CommandResponse struct {
	Intent  schemas.Intent `json:"intent"`
	Handled bool           `json:"handled"`
	Message string         `json:"message"`
}

// HandleCreateSession handles POST /api/v1/sessions
func (s *Server) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.sendError(w, err)
		return
	}
	if req.SourceURI != "" {
		if err := s.validator.ValidateSource(req.SourceURI); err != nil {
			s.sendError(w, err)
			return
		}
	}

	id := uuid.NewString()
	ctrl := s.newSession(id, session.WithObserver(s.observe(id)))
	rec := &store.Record{ID: id, Owner: owner(r), Snapshot: ctrl.Snapshot()}
	if err := s.store.CreateSession(r.Context(), rec); err != nil {
		s.sendError(w, fmt.Errorf("failed to create session: %w", err))
		return
	}
	sess := &liveSession{ctrl: ctrl}
	if s.newOCR != nil {
		sess.ocr = s.newOCR(id)
	}
	s.register(id, sess)

	if req.SourceURI != "" {
		if err := ctrl.SetSource(schemas.Artifact{URI: req.SourceURI, Kind: schemas.ArtifactVideo}); err != nil {
			s.sendError(w, err)
			return
		}
	}

	rec, err := s.store.GetSession(r.Context(), id)
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.logger.Info().Str("session", id).Str("owner", rec.Owner).Msg("session created")
	s.sendJSON(w, http.StatusCreated, rec)
}

// HandleListSessions handles GET /api/v1/sessions
func (s *Server) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListFilter(r)
	if err != nil {
		s.sendError(w, err)
		return
	}
	filter.Owner = owner(r)

	recs, err := s.store.ListSessions(r.Context(), filter)
	if err != nil {
		s.sendError(w, fmt.Errorf("failed to list sessions: %w", err))
		return
	}
	if recs == nil {
		recs = []*store.Record{}
	}
	s.sendJSON(w, http.StatusOK, recs)
}

// HandleGetSession handles GET /api/v1/sessions/{id}
func (s *Server) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	rec, err := s.record(r)
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, rec)
}

// HandleDeleteSession handles DELETE /api/v1/sessions/{id}. An operation in
// flight is abandoned.
func (s *Server) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	ctrl, err := s.lookup(r)
	if err != nil {
		s.sendError(w, err)
		return
	}

	ctrl.Clear()
	s.unregister(ctrl.ID())
	if err := s.store.DeleteSession(r.Context(), ctrl.ID()); err != nil {
		s.sendError(w, err)
		return
	}
	s.logger.Info().Str("session", ctrl.ID()).Msg("session deleted")
	w.WriteHeader(http.StatusNoContent)
}

// HandleSetSource handles PUT /api/v1/sessions/{id}/source. A JSON body
// names a source URI; any other body is uploaded as the source video.
func (s *Server) HandleSetSource(w http.ResponseWriter, r *http.Request) {
	ctrl, err := s.lookup(r)
	if err != nil {
		s.sendError(w, err)
		return
	}

	var source schemas.Artifact
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req SourceRequest
		if err := decodeJSON(r, &req); err != nil {
			s.sendError(w, err)
			return
		}
		if err := s.validator.ValidateSource(req.URI); err != nil {
			s.sendError(w, err)
			return
		}
		source = schemas.Artifact{URI: req.URI, Kind: schemas.ArtifactVideo}
	} else {
		source, err = s.receiveUpload(w, r)
		if err != nil {
			s.sendError(w, err)
			return
		}
	}

	if err := ctrl.SetSource(source); err != nil {
		s.sendError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, ctrl.Snapshot())
}

// HandleCommand handles POST /api/v1/sessions/{id}/commands
func (s *Server) HandleCommand(w http.ResponseWriter, r *http.Request) {
	ctrl, err := s.lookup(r)
	if err != nil {
		s.sendError(w, err)
		return
	}
	var req CommandRequest
	if err := decodeJSON(r, &req); err != nil {
		s.sendError(w, err)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		s.sendError(w, schemas.InvalidInputf("command text is empty"))
		return
	}

	intent := ctrl.Interpret(req.Text)
	if intent.IsUnknown() {
		s.sendJSON(w, http.StatusOK, CommandResponse{Intent: intent, Message: "Comando não reconhecido"})
		return
	}
	s.apply(w, ctrl, intent)
}

// HandleCut handles POST /api/v1/sessions/{id}/cut
func (s *Server) HandleCut(w http.ResponseWriter, r *http.Request) {
	var req CutRequest
	s.withIntent(w, r, &req, func() schemas.Intent { return schemas.CutVideo(req.Start, req.End) })
}

// HandleAddAudio handles POST /api/v1/sessions/{id}/audio
func (s *Server) HandleAddAudio(w http.ResponseWriter, r *http.Request) {
	var req AudioRequest
	s.withIntent(w, r, &req, func() schemas.Intent {
		if req.Category == "" {
			req.Category = schemas.AudioOther
		}
		return schemas.AddAudio(req.Category)
	})
}

// HandleViral handles POST /api/v1/sessions/{id}/viral
func (s *Server) HandleViral(w http.ResponseWriter, r *http.Request) {
	s.withIntent(w, r, nil, schemas.ViralMode)
}

// HandleRemoveAudio handles POST /api/v1/sessions/{id}/remove-audio
func (s *Server) HandleRemoveAudio(w http.ResponseWriter, r *http.Request) {
	s.withIntent(w, r, nil, schemas.RemoveAudio)
}

// HandleTrimSilence handles POST /api/v1/sessions/{id}/silence
func (s *Server) HandleTrimSilence(w http.ResponseWriter, r *http.Request) {
	s.withIntent(w, r, nil, schemas.ProcessVideo)
}

// HandleSubtitles handles POST /api/v1/sessions/{id}/subtitles
func (s *Server) HandleSubtitles(w http.ResponseWriter, r *http.Request) {
	var req SubtitlesRequest
	s.withIntent(w, r, &req, func() schemas.Intent { return schemas.AddSubtitles(req.Text) })
}

// HandleExport handles POST /api/v1/sessions/{id}/export
func (s *Server) HandleExport(w http.ResponseWriter, r *http.Request) {
	ctrl, err := s.lookup(r)
	if err != nil {
		s.sendError(w, err)
		return
	}
	snap := ctrl.Snapshot()
	switch {
	case !snap.HasSource():
		s.sendError(w, schemas.ErrNoSource)
		return
	case snap.IsProcessing:
		s.sendError(w, schemas.ErrBusy)
		return
	}

	id := ctrl.ID()
	s.start(id, "export", func(ctx context.Context) error {
		exported, err := ctrl.Export(ctx)
		if err != nil {
			return err
		}
		return s.store.RecordExport(ctx, id, exported)
	})
	s.sendJSON(w, http.StatusAccepted, AcceptedResponse{Session: id, Snapshot: ctrl.Snapshot()})
}

// HandleVoice handles POST /api/v1/sessions/{id}/voice. The body is a
// recording; the recognized command runs before the response is written.
func (s *Server) HandleVoice(w http.ResponseWriter, r *http.Request) {
	ctrl, err := s.lookup(r)
	if err != nil {
		s.sendError(w, err)
		return
	}

	commander := speech.NewCommander(s.voice, s.speaker, ctrl, s.logger)
	if !commander.Capabilities().Recognition {
		s.sendError(w, fmt.Errorf("%w: speech recognition", schemas.ErrCapabilityAbsent))
		return
	}

	f, err := os.CreateTemp("", "vidioai-voice-*"+path.Ext(r.Header.Get("X-Filename")))
	if err != nil {
		s.sendError(w, err)
		return
	}
	defer os.Remove(f.Name())
	_, err = io.Copy(f, http.MaxBytesReader(w, r.Body, s.maxUpload()))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		s.sendError(w, schemas.InvalidInputf("failed to read recording: %v", err))
		return
	}

	reply, err := commander.Handle(r.Context(), f.Name())
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, reply)
}

// withIntent decodes the body into req, when given, then starts the intent
// built by build
func (s *Server) withIntent(w http.ResponseWriter, r *http.Request, req any, build func() schemas.Intent) {
	ctrl, err := s.lookup(r)
	if err != nil {
		s.sendError(w, err)
		return
	}
	if req != nil {
		if err := decodeJSON(r, req); err != nil {
			s.sendError(w, err)
			return
		}
	}
	s.apply(w, ctrl, build())
}

// apply checks that intent can start and runs it in the background
func (s *Server) apply(w http.ResponseWriter, ctrl *session.Controller, intent schemas.Intent) {
	if err := ctrl.Validate(intent); err != nil {
		s.sendError(w, err)
		return
	}

	s.start(ctrl.ID(), intent.String(), func(ctx context.Context) error {
		_, err := ctrl.Apply(ctx, intent)
		return err
	})
	s.sendJSON(w, http.StatusAccepted, AcceptedResponse{Session: ctrl.ID(), Intent: &intent, Snapshot: ctrl.Snapshot()})
}

// start runs op in the background. Failures are recorded on the session.
func (s *Server) start(id, op string, run func(ctx context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		err := run(s.ctx)
		log := s.logger.With().Str("session", id).Str("operation", op).Logger()
		switch {
		case err == nil:
			log.Debug().Msg("background operation finished")
		case errors.Is(err, schemas.ErrInvalidated):
			log.Info().Msg("background operation abandoned")
		default:
			log.Warn().Err(err).Msg("background operation failed")
			if rerr := s.store.RecordError(context.Background(), id, schemas.ToErrorInfo(err)); rerr != nil && !errors.Is(rerr, store.ErrSessionNotFound) {
				log.Error().Err(rerr).Msg("failed to record error")
			}
		}
	}()
}

// receiveUpload stores the request body as a new source video
func (s *Server) receiveUpload(w http.ResponseWriter, r *http.Request) (schemas.Artifact, error) {
	if s.uploadRoot == "" {
		return schemas.Artifact{}, schemas.InvalidInputf("uploads are disabled, send a source URI")
	}
	mimeType := r.Header.Get("Content-Type")
	if err := s.upload.Check(mimeType, r.ContentLength); err != nil {
		return schemas.Artifact{}, err
	}

	ext := strings.ToLower(path.Ext(r.Header.Get("X-Filename")))
	if ext == "" {
		ext = ".mp4"
	}
	uri := storage.JoinURI(s.uploadRoot, uuid.NewString()+ext)

	body := http.MaxBytesReader(w, r.Body, r.ContentLength)
	if err := s.storage.Put(r.Context(), uri, body); err != nil {
		return schemas.Artifact{}, schemas.NewCollaboratorError("storage", "upload", err)
	}

	a, err := artifact.Resolve(r.Context(), s.storage, schemas.Artifact{
		URI:      uri,
		Kind:     schemas.ArtifactVideo,
		MimeType: mimeType,
	})
	if err != nil {
		return schemas.Artifact{}, schemas.NewCollaboratorError("storage", "upload", err)
	}
	s.logger.Info().Str("uri", uri).Int64("size", a.Size).Msg("source uploaded")
	return a, nil
}

func (s *Server) maxUpload() int64 {
	if s.upload.MaxSizeMB <= 0 {
		return int64(artifact.DefaultUploadPolicy().MaxSizeMB) << 20
	}
	return int64(s.upload.MaxSizeMB) << 20
}

// observe mirrors session snapshots into the store
func (s *Server) observe(id string) session.Observer {
	return func(snap schemas.Snapshot) {
		err := s.store.UpdateSnapshot(context.Background(), id, snap)
		if err != nil && !errors.Is(err, store.ErrSessionNotFound) {
			s.logger.Error().Err(err).Str("session", id).Msg("failed to record snapshot")
		}
	}
}

// record returns the stored session named by the URL, visible to the caller
func (s *Server) record(r *http.Request) (*store.Record, error) {
	rec, err := s.store.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return nil, err
	}
	if o := owner(r); o != "" && rec.Owner != o {
		return nil, store.ErrSessionNotFound
	}
	return rec, nil
}

// controllers returns the live controllers of the session named by the URL
func (s *Server) controllers(r *http.Request) (*liveSession, error) {
	rec, err := s.record(r)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[rec.ID]
	if !ok {
		return nil, store.ErrSessionNotFound
	}
	return sess, nil
}

// lookup returns the live controller of the session named by the URL
func (s *Server) lookup(r *http.Request) (*session.Controller, error) {
	sess, err := s.controllers(r)
	if err != nil {
		return nil, err
	}
	return sess.ctrl, nil
}

func (s *Server) register(id string, sess *liveSession) {
	s.mu.Lock()
	s.sessions[id] = sess
	n := len(s.sessions)
	s.mu.Unlock()
	s.metrics.SetActiveSessions(n)
}

func (s *Server) unregister(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	n := len(s.sessions)
	s.mu.Unlock()
	s.metrics.SetActiveSessions(n)
}

func parseListFilter(r *http.Request) (*store.ListFilter, error) {
	q := r.URL.Query()
	filter := &store.ListFilter{
		SortBy:    q.Get("sort_by"),
		SortOrder: q.Get("order"),
	}

	if states := q.Get("state"); states != "" {
		for _, st := range strings.Split(states, ",") {
			filter.State = append(filter.State, schemas.State(strings.TrimSpace(st)))
		}
	}

	var err error
	if v := q.Get("limit"); v != "" {
		if filter.Limit, err = strconv.Atoi(v); err != nil || filter.Limit < 0 {
			return nil, schemas.InvalidInputf("invalid limit %q", v)
		}
	}
	if v := q.Get("offset"); v != "" {
		if filter.Offset, err = strconv.Atoi(v); err != nil || filter.Offset < 0 {
			return nil, schemas.InvalidInputf("invalid offset %q", v)
		}
	}
	switch filter.SortBy {
	case "", "created", "updated", "state":
	default:
		return nil, schemas.InvalidInputf("invalid sort_by %q", filter.SortBy)
	}

	return filter, nil
}
