package api

import (
	"fmt"
	"net/http"

	"github.com/chicogong/vidioai/pkg/quiz"
	"github.com/chicogong/vidioai/pkg/schemas"
	"github.com/chicogong/vidioai/pkg/storage"
	"github.com/chicogong/vidioai/pkg/store"
)

// MediaRef names a video either directly or through a session's current
// artifact
type MediaRef struct {
	SessionID string `json:"session_id,omitempty"`
	URI       string `json:"uri,omitempty"`
}

// FrameRequest is the body of POST /sessions/{id}/ocr/frames. An empty URI
// reads the session's current video.
type FrameRequest struct {
	URI     string  `json:"uri,omitempty"`
	Seconds float64 `json:"seconds"`
}

// TextRequest is the body of POST /sessions/{id}/ocr/text. An empty URI
// reads the last extracted frame.
type TextRequest struct {
	URI string `json:"uri,omitempty"`
}

// ReplacementRequest is the body of POST /sessions/{id}/ocr/replacements
type ReplacementRequest struct {
	Original    string `json:"original"`
	Replacement string `json:"replacement"`
}

// TextResponse carries recognized text
type TextResponse struct {
	Text string `json:"text"`
}

// QuizRequest is the body of POST /quiz
type QuizRequest struct {
	MediaRef
	Settings quiz.Settings `json:"settings"`
	Export   bool          `json:"export,omitempty"`
}

// QuizResponse carries a generated quiz and, when requested, its export
type QuizResponse struct {
	Quiz   *quiz.Quiz        `json:"quiz"`
	Export *schemas.Artifact `json:"export,omitempty"`
}

var errOCRDisabled = fmt.Errorf("%w: text recognition", schemas.ErrCapabilityAbsent)

// ocrFor returns the live controllers of the session named by the URL
// when it has an OCR pipeline
func (s *Server) ocrFor(r *http.Request) (*liveSession, error) {
	sess, err := s.controllers(r)
	if err != nil {
		return nil, err
	}
	if sess.ocr == nil {
		return nil, errOCRDisabled
	}
	return sess, nil
}

// HandleOCRState handles GET /api/v1/sessions/{id}/ocr
func (s *Server) HandleOCRState(w http.ResponseWriter, r *http.Request) {
	sess, err := s.ocrFor(r)
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, sess.ocr.State())
}

// HandleExtractFrame handles POST /api/v1/sessions/{id}/ocr/frames
func (s *Server) HandleExtractFrame(w http.ResponseWriter, r *http.Request) {
	sess, err := s.ocrFor(r)
	if err != nil {
		s.sendError(w, err)
		return
	}
	var req FrameRequest
	if err := decodeJSON(r, &req); err != nil {
		s.sendError(w, err)
		return
	}

	var video schemas.Artifact
	if req.URI != "" {
		if err := s.validator.ValidateSource(req.URI); err != nil {
			s.sendError(w, err)
			return
		}
		video = schemas.Artifact{URI: req.URI, Kind: schemas.ArtifactVideo}
	} else if video, err = currentVideo(sess.ctrl.Snapshot()); err != nil {
		s.sendError(w, err)
		return
	}

	frame, err := sess.ocr.ExtractFrame(r.Context(), video, req.Seconds)
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, frame)
}

// HandleRecognizeText handles POST /api/v1/sessions/{id}/ocr/text
func (s *Server) HandleRecognizeText(w http.ResponseWriter, r *http.Request) {
	sess, err := s.ocrFor(r)
	if err != nil {
		s.sendError(w, err)
		return
	}
	var req TextRequest
	if err := decodeJSON(r, &req); err != nil {
		s.sendError(w, err)
		return
	}

	var image schemas.Artifact
	if req.URI != "" {
		if err := s.validator.ValidateSource(req.URI); err != nil {
			s.sendError(w, err)
			return
		}
		image = schemas.Artifact{URI: req.URI, Kind: schemas.ArtifactImage}
	} else if st := sess.ocr.State(); st.Image != nil {
		image = *st.Image
	} else {
		s.sendError(w, schemas.InvalidInputf("no frame extracted yet"))
		return
	}

	text, err := sess.ocr.RecognizeText(r.Context(), image)
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, TextResponse{Text: text})
}

// HandleAddReplacement handles POST /api/v1/sessions/{id}/ocr/replacements
func (s *Server) HandleAddReplacement(w http.ResponseWriter, r *http.Request) {
	sess, err := s.ocrFor(r)
	if err != nil {
		s.sendError(w, err)
		return
	}
	var req ReplacementRequest
	if err := decodeJSON(r, &req); err != nil {
		s.sendError(w, err)
		return
	}
	if err := sess.ocr.AddReplacement(req.Original, req.Replacement); err != nil {
		s.sendError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, sess.ocr.Replacements())
}

// HandleClearReplacements handles DELETE /api/v1/sessions/{id}/ocr/replacements
func (s *Server) HandleClearReplacements(w http.ResponseWriter, r *http.Request) {
	sess, err := s.ocrFor(r)
	if err != nil {
		s.sendError(w, err)
		return
	}
	sess.ocr.ClearReplacements()
	w.WriteHeader(http.StatusNoContent)
}

// HandleApplyReplacements handles POST /api/v1/sessions/{id}/ocr/apply
func (s *Server) HandleApplyReplacements(w http.ResponseWriter, r *http.Request) {
	sess, err := s.ocrFor(r)
	if err != nil {
		s.sendError(w, err)
		return
	}
	result, err := sess.ocr.ApplyReplacements(r.Context())
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, result)
}

// HandleQuiz handles POST /api/v1/quiz
func (s *Server) HandleQuiz(w http.ResponseWriter, r *http.Request) {
	if s.quiz == nil {
		s.sendError(w, fmt.Errorf("%w: quiz generation", schemas.ErrCapabilityAbsent))
		return
	}
	var req QuizRequest
	if err := decodeJSON(r, &req); err != nil {
		s.sendError(w, err)
		return
	}
	source, err := s.resolve(r, req.MediaRef)
	if err != nil {
		s.sendError(w, err)
		return
	}

	q, err := quiz.Collect(s.quiz.Generate(r.Context(), source, req.Settings))
	if err != nil {
		s.sendError(w, err)
		return
	}
	resp := QuizResponse{Quiz: q}

	if req.Export {
		if s.exportRoot == "" {
			s.sendError(w, schemas.InvalidInputf("quiz export is not configured"))
			return
		}
		uri := storage.JoinURI(s.exportRoot, "quiz-"+q.ID+".json")
		for ev := range s.quiz.Export(r.Context(), q, uri) {
			if ev.Err != nil {
				s.sendError(w, ev.Err)
				return
			}
			resp.Export = ev.Artifact
		}
	}
	s.sendJSON(w, http.StatusOK, resp)
}

// resolve returns the video ref names: the current artifact of a session,
// or a validated URI
func (s *Server) resolve(r *http.Request, ref MediaRef) (schemas.Artifact, error) {
	if ref.SessionID == "" {
		if ref.URI == "" {
			return schemas.Artifact{}, schemas.ErrNoSource
		}
		if err := s.validator.ValidateSource(ref.URI); err != nil {
			return schemas.Artifact{}, err
		}
		return schemas.Artifact{URI: ref.URI, Kind: schemas.ArtifactVideo}, nil
	}

	rec, err := s.store.GetSession(r.Context(), ref.SessionID)
	if err != nil {
		return schemas.Artifact{}, err
	}
	if o := owner(r); o != "" && rec.Owner != o {
		return schemas.Artifact{}, store.ErrSessionNotFound
	}
	return currentVideo(rec.Snapshot)
}

// currentVideo returns the latest artifact of a session, falling back to
// its source
func currentVideo(snap schemas.Snapshot) (schemas.Artifact, error) {
	switch {
	case snap.Current != nil && snap.Current.URI != "":
		return *snap.Current, nil
	case snap.Source != nil:
		return *snap.Source, nil
	default:
		return schemas.Artifact{}, schemas.ErrNoSource
	}
}
