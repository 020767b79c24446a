package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chicogong/vidioai/pkg/artifact"
	"github.com/chicogong/vidioai/pkg/audio"
	"github.com/chicogong/vidioai/pkg/auth"
	"github.com/chicogong/vidioai/pkg/cache"
	"github.com/chicogong/vidioai/pkg/executor"
	"github.com/chicogong/vidioai/pkg/metrics"
	"github.com/chicogong/vidioai/pkg/ocr"
	"github.com/chicogong/vidioai/pkg/operators"
	"github.com/chicogong/vidioai/pkg/operators/builtin"
	"github.com/chicogong/vidioai/pkg/quiz"
	"github.com/chicogong/vidioai/pkg/schemas"
	"github.com/chicogong/vidioai/pkg/session"
	"github.com/chicogong/vidioai/pkg/storage"
	"github.com/chicogong/vidioai/pkg/store"
	"github.com/chicogong/vidioai/pkg/transcode"
)

// appendTranscoder appends the operator name to its input. When gate is
// set it blocks until the gate closes.
type appendTranscoder struct {
	calls   atomic.Int32
	err     error
	gate    chan struct{}
	started chan struct{}
	once    sync.Once
}

func (a *appendTranscoder) Transcode(ctx context.Context, req *transcode.Request) (*transcode.Result, error) {
	a.calls.Add(1)
	if a.gate != nil {
		a.once.Do(func() { close(a.started) })
		select {
		case <-a.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if a.err != nil {
		return nil, a.err
	}
	input, err := os.ReadFile(filepath.Join(req.WorkDir, operators.InputName))
	if err != nil {
		return nil, err
	}
	out := filepath.Join(req.WorkDir, operators.OutputName)
	return &transcode.Result{Output: out}, os.WriteFile(out, append(input, []byte("|"+req.Spec.Operator)...), 0o644)
}

// frameGrabber writes the staged input and offset as the frame
type frameGrabber struct {
	calls atomic.Int32
}

func (g *frameGrabber) ExtractFrame(ctx context.Context, workDir string, seconds float64) (string, error) {
	g.calls.Add(1)
	input, err := os.ReadFile(filepath.Join(workDir, operators.InputName))
	if err != nil {
		return "", err
	}
	out := filepath.Join(workDir, operators.FrameName)
	return out, os.WriteFile(out, []byte(fmt.Sprintf("%s@%.0f", input, seconds)), 0o644)
}

// frameReader recognizes the frame bytes as its text
type frameReader struct{}

func (frameReader) Recognize(ctx context.Context, path, language string, progress func(float64)) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	progress(1)
	return string(data), nil
}

type fixture struct {
	server  *Server
	http    http.Handler
	tc      *appendTranscoder
	grabber *frameGrabber
	store   *store.MemoryStore
	dir     string
	source  string
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	return buildFixture(t, false, opts...)
}

// newOCRFixture gives every session an OCR pipeline backed by fakes
func newOCRFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	return buildFixture(t, true, opts...)
}

func buildFixture(t *testing.T, withOCR bool, opts ...Option) *fixture {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, "source.mp4")
	require.NoError(t, os.WriteFile(src, []byte("source-video"), 0o644))

	tc := &appendTranscoder{}
	exec := executor.NewExecutor(builtin.NewRegistry(), tc,
		executor.WithCache(cache.New(context.Background(), cache.NewMemorySubstrate())),
		executor.WithArtifactRoot(storage.FileURI(filepath.Join(dir, "artifacts"))),
		executor.WithTempDir(filepath.Join(dir, "work")),
		executor.WithCacheHitLatency(0),
	)
	factory := func(id string, opts ...session.Option) *session.Controller {
		opts = append(opts, session.WithExportRoot(storage.FileURI(filepath.Join(dir, "exports"))))
		return session.NewController(exec, append([]session.Option{session.WithID(id)}, opts...)...)
	}

	st := store.NewMemoryStore()
	library, err := audio.NewLibrary(audio.DefaultTracks("")...)
	require.NoError(t, err)

	grabber := &frameGrabber{}
	base := []Option{
		WithLibrary(library),
		WithQuiz(quiz.NewGenerator()),
		WithExportRoot(storage.FileURI(filepath.Join(dir, "exports"))),
		WithUploads(artifact.DefaultUploadPolicy(), storage.FileURI(filepath.Join(dir, "uploads"))),
	}
	if withOCR {
		base = append(base, WithOCR(func(id string) *ocr.Controller {
			return ocr.NewController(exec, grabber, frameReader{})
		}))
	}
	s := NewServer(st, factory, append(base, opts...)...)
	t.Cleanup(func() { s.Close() })

	return &fixture{
		server:  s,
		http:    s.Routes(),
		tc:      tc,
		grabber: grabber,
		store:   st,
		dir:     dir,
		source:  storage.FileURI(src),
	}
}

func (f *fixture) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if _, ok := body.([]byte); !ok && body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rr := httptest.NewRecorder()
	f.http.ServeHTTP(rr, req)
	return rr
}

func (f *fixture) createSession(t *testing.T, headers ...string) store.Record {
	t.Helper()
	rr := f.do(t, http.MethodPost, "/api/v1/sessions", CreateSessionRequest{SourceURI: f.source}, headers...)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var rec store.Record
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rec))
	return rec
}

func (f *fixture) get(t *testing.T, id string) store.Record {
	t.Helper()
	rr := f.do(t, http.MethodGet, "/api/v1/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var rec store.Record
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rec))
	return rec
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) schemas.ErrorInfo {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	return *resp.Error
}

func readURI(t *testing.T, uri string) string {
	t.Helper()
	rc, err := storage.NewLocalStorage().Get(context.Background(), uri)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func TestServer_Health(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestServer_SessionLifecycle(t *testing.T) {
	f := newFixture(t)

	rec := f.createSession(t)
	assert.NotEmpty(t, rec.ID)
	require.NotNil(t, rec.Snapshot.Source)
	assert.Equal(t, f.source, rec.Snapshot.Source.URI)

	rr := f.do(t, http.MethodPost, "/api/v1/sessions/"+rec.ID+"/viral", nil)
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	var accepted AcceptedResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &accepted))
	require.NotNil(t, accepted.Intent)
	assert.Equal(t, schemas.KindViralMode, accepted.Intent.Kind)
	f.server.Wait()

	got := f.get(t, rec.ID)
	assert.Equal(t, 1, got.Operations)
	assert.Equal(t, schemas.StateIdle, got.Snapshot.State)
	require.NotNil(t, got.Snapshot.Current)
	assert.Equal(t, "source-video|viral", readURI(t, got.Snapshot.Current.URI))

	rr = f.do(t, http.MethodPost, "/api/v1/sessions/"+rec.ID+"/cut", CutRequest{Start: 1, End: 3})
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	f.server.Wait()
	got = f.get(t, rec.ID)
	assert.Equal(t, "source-video|viral|cut", readURI(t, got.Snapshot.Current.URI))

	rr = f.do(t, http.MethodPost, "/api/v1/sessions/"+rec.ID+"/export", nil)
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	f.server.Wait()
	got = f.get(t, rec.ID)
	require.NotNil(t, got.Export)
	assert.True(t, strings.HasPrefix(filepath.Base(got.Export.URI), rec.ID+"-"))
	assert.Equal(t, "Export complete!", got.Snapshot.StatusMessage)

	rr = f.do(t, http.MethodDelete, "/api/v1/sessions/"+rec.ID, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = f.do(t, http.MethodGet, "/api/v1/sessions/"+rec.ID, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestServer_OperationErrors(t *testing.T) {
	f := newFixture(t)
	rec := f.createSession(t)

	empty := f.do(t, http.MethodPost, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusCreated, empty.Code)
	var bare store.Record
	require.NoError(t, json.Unmarshal(empty.Body.Bytes(), &bare))

	tests := []struct {
		name   string
		path   string
		body   any
		status int
		code   string
	}{
		{"cut end before start", "/api/v1/sessions/" + rec.ID + "/cut", CutRequest{Start: 10, End: 5}, http.StatusBadRequest, schemas.CodeInvalidInput},
		{"unknown audio category", "/api/v1/sessions/" + rec.ID + "/audio", AudioRequest{Category: "jazz"}, http.StatusBadRequest, schemas.CodeInvalidInput},
		{"no source", "/api/v1/sessions/" + bare.ID + "/viral", nil, http.StatusBadRequest, schemas.CodeInvalidInput},
		{"export without source", "/api/v1/sessions/" + bare.ID + "/export", nil, http.StatusBadRequest, schemas.CodeInvalidInput},
		{"unknown session", "/api/v1/sessions/missing/viral", nil, http.StatusNotFound, "NOT_FOUND"},
		{"empty command", "/api/v1/sessions/" + rec.ID + "/commands", CommandRequest{Text: "  "}, http.StatusBadRequest, schemas.CodeInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := f.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, rr.Code, rr.Body.String())
			assert.Equal(t, tt.code, decodeError(t, rr).Code)
		})
	}
	assert.Zero(t, f.tc.calls.Load())
}

func TestServer_Busy(t *testing.T) {
	f := newFixture(t)
	f.tc.gate = make(chan struct{})
	f.tc.started = make(chan struct{})
	rec := f.createSession(t)

	rr := f.do(t, http.MethodPost, "/api/v1/sessions/"+rec.ID+"/viral", nil)
	require.Equal(t, http.StatusAccepted, rr.Code)

	select {
	case <-f.tc.started:
	case <-time.After(5 * time.Second):
		t.Fatal("operation did not start")
	}

	rr = f.do(t, http.MethodPost, "/api/v1/sessions/"+rec.ID+"/remove-audio", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
	info := decodeError(t, rr)
	assert.Equal(t, schemas.CodeBusy, info.Code)
	assert.True(t, info.Retryable)

	got := f.get(t, rec.ID)
	assert.True(t, got.Snapshot.IsProcessing)

	close(f.tc.gate)
	f.server.Wait()
	got = f.get(t, rec.ID)
	assert.False(t, got.Snapshot.IsProcessing)
	assert.Equal(t, int32(1), f.tc.calls.Load())
}

func TestServer_CollaboratorFailureRecorded(t *testing.T) {
	f := newFixture(t)
	f.tc.err = schemas.NewCollaboratorError("ffmpeg", "transcode", io.ErrUnexpectedEOF)
	rec := f.createSession(t)

	rr := f.do(t, http.MethodPost, "/api/v1/sessions/"+rec.ID+"/remove-audio", nil)
	require.Equal(t, http.StatusAccepted, rr.Code)
	f.server.Wait()

	got := f.get(t, rec.ID)
	require.NotNil(t, got.Error)
	assert.Equal(t, schemas.CodeCollaborator, got.Error.Code)
	assert.Zero(t, got.Operations)
	assert.Equal(t, f.source, got.Snapshot.Current.URI, "failure keeps the previous artifact")
}

func TestServer_Commands(t *testing.T) {
	f := newFixture(t)
	rec := f.createSession(t)

	rr := f.do(t, http.MethodPost, "/api/v1/sessions/"+rec.ID+"/commands", CommandRequest{Text: "faça um café"})
	require.Equal(t, http.StatusOK, rr.Code)
	var resp CommandResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.False(t, resp.Handled)
	assert.Equal(t, schemas.KindUnknown, resp.Intent.Kind)

	rr = f.do(t, http.MethodPost, "/api/v1/sessions/"+rec.ID+"/commands", CommandRequest{Text: "modo viral"})
	require.Equal(t, http.StatusAccepted, rr.Code)
	f.server.Wait()

	got := f.get(t, rec.ID)
	require.NotNil(t, got.Snapshot.LastIntent)
	assert.Equal(t, schemas.KindViralMode, got.Snapshot.LastIntent.Kind)
}

func TestServer_SetSource(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodPost, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusCreated, rr.Code)
	var rec store.Record
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rec))
	path := "/api/v1/sessions/" + rec.ID + "/source"

	t.Run("upload", func(t *testing.T) {
		rr := f.do(t, http.MethodPut, path, []byte("uploaded-video"), "Content-Type", "video/mp4", "X-Filename", "clip.MOV")
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		var snap schemas.Snapshot
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snap))
		require.NotNil(t, snap.Source)
		assert.True(t, strings.HasSuffix(snap.Source.URI, ".mov"))
		assert.NotEmpty(t, snap.Source.Identity)
		assert.Equal(t, "uploaded-video", readURI(t, snap.Source.URI))
	})

	t.Run("rejected upload type", func(t *testing.T) {
		rr := f.do(t, http.MethodPut, path, []byte("hello"), "Content-Type", "text/plain")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("uri", func(t *testing.T) {
		rr := f.do(t, http.MethodPut, path, SourceRequest{URI: f.source})
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		assert.Equal(t, f.source, f.get(t, rec.ID).Snapshot.Source.URI)
	})

	t.Run("disallowed scheme", func(t *testing.T) {
		rr := f.do(t, http.MethodPut, path, SourceRequest{URI: "ftp://example.com/a.mp4"})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestServer_ListSessions(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		f.createSession(t)
	}

	rr := f.do(t, http.MethodGet, "/api/v1/sessions?limit=2&sort_by=created&order=asc", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var recs []store.Record
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &recs))
	assert.Len(t, recs, 2)

	rr = f.do(t, http.MethodGet, "/api/v1/sessions?state=processing", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())

	rr = f.do(t, http.MethodGet, "/api/v1/sessions?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestServer_Ownership(t *testing.T) {
	jwt := auth.NewJWTManager("test-secret", time.Hour)
	f := newFixture(t, WithAuth(auth.NewAuthMiddleware(jwt, auth.NewAPIKeyManager(), false)))

	alice, err := jwt.Generate("alice", "", "")
	require.NoError(t, err)
	bob, err := jwt.Generate("bob", "", "")
	require.NoError(t, err)

	rr := f.do(t, http.MethodGet, "/api/v1/sessions", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rec := f.createSession(t, "Authorization", "Bearer "+alice)
	assert.Equal(t, "alice", rec.Owner)

	rr = f.do(t, http.MethodGet, "/api/v1/sessions/"+rec.ID, nil, "Authorization", "Bearer "+bob)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = f.do(t, http.MethodGet, "/api/v1/sessions", nil, "Authorization", "Bearer "+bob)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())

	rr = f.do(t, http.MethodGet, "/api/v1/sessions/"+rec.ID, nil, "Authorization", "Bearer "+alice)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code, "health is public")
}

func (f *fixture) ocrState(t *testing.T, id string, headers ...string) ocr.State {
	t.Helper()
	rr := f.do(t, http.MethodGet, "/api/v1/sessions/"+id+"/ocr", nil, headers...)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var st ocr.State
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &st))
	return st
}

func TestServer_OCR(t *testing.T) {
	f := newOCRFixture(t)
	rec := f.createSession(t)
	base := "/api/v1/sessions/" + rec.ID + "/ocr"

	rr := f.do(t, http.MethodPost, base+"/text", TextRequest{})
	assert.Equal(t, http.StatusBadRequest, rr.Code, "no frame yet")

	rr = f.do(t, http.MethodPost, base+"/frames", FrameRequest{Seconds: 3})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var frame schemas.Artifact
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &frame))
	assert.Equal(t, schemas.ArtifactImage, frame.Kind)
	assert.Equal(t, "source-video@3", readURI(t, frame.URI))

	rr = f.do(t, http.MethodPost, base+"/text", TextRequest{})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var text TextResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &text))
	assert.Equal(t, "source-video@3", text.Text)

	rr = f.do(t, http.MethodPost, base+"/replacements", ReplacementRequest{Original: "source", Replacement: "fonte"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.JSONEq(t, `{"source":"fonte"}`, rr.Body.String())

	rr = f.do(t, http.MethodPost, base+"/replacements", ReplacementRequest{Replacement: "x"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	st := f.ocrState(t, rec.ID)
	require.NotNil(t, st.Video)
	assert.Equal(t, f.source, st.Video.URI)
	assert.Equal(t, "source-video@3", st.Text)
	assert.Equal(t, map[string]string{"source": "fonte"}, st.Replacements)

	rr = f.do(t, http.MethodPost, base+"/apply", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var burned schemas.Artifact
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &burned))
	assert.Equal(t, "source-video|replacements", readURI(t, burned.URI))

	rr = f.do(t, http.MethodDelete, base+"/replacements", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, f.ocrState(t, rec.ID).Replacements)

	rr = f.do(t, http.MethodPost, base+"/apply", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, schemas.CodeInvalidInput, decodeError(t, rr).Code)
}

func TestServer_OCRFrameNeedsSource(t *testing.T) {
	f := newOCRFixture(t)
	rr := f.do(t, http.MethodPost, "/api/v1/sessions", CreateSessionRequest{})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var rec store.Record
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rec))

	rr = f.do(t, http.MethodPost, "/api/v1/sessions/"+rec.ID+"/ocr/frames", FrameRequest{Seconds: 1})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Zero(t, f.grabber.calls.Load())

	rr = f.do(t, http.MethodPost, "/api/v1/sessions/"+rec.ID+"/ocr/frames", FrameRequest{URI: f.source, Seconds: 1})
	assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func TestServer_OCRIsPerOwner(t *testing.T) {
	jwt := auth.NewJWTManager("test-secret", time.Hour)
	f := newOCRFixture(t, WithAuth(auth.NewAuthMiddleware(jwt, auth.NewAPIKeyManager(), false)))

	alice, err := jwt.Generate("alice", "", "")
	require.NoError(t, err)
	bob, err := jwt.Generate("bob", "", "")
	require.NoError(t, err)
	asAlice := []string{"Authorization", "Bearer " + alice}
	asBob := []string{"Authorization", "Bearer " + bob}

	mine := f.createSession(t, asAlice...)
	base := "/api/v1/sessions/" + mine.ID + "/ocr"
	rr := f.do(t, http.MethodPost, base+"/frames", FrameRequest{Seconds: 1}, asAlice...)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	rr = f.do(t, http.MethodPost, base+"/replacements", ReplacementRequest{Original: "a", Replacement: "alice-private"}, asAlice...)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	for _, tc := range []struct {
		method, path string
	}{
		{http.MethodGet, base},
		{http.MethodPost, base + "/text"},
		{http.MethodPost, base + "/replacements"},
		{http.MethodDelete, base + "/replacements"},
		{http.MethodPost, base + "/apply"},
	} {
		rr := f.do(t, tc.method, tc.path, map[string]string{"original": "a", "replacement": "bob"}, asBob...)
		assert.Equal(t, http.StatusNotFound, rr.Code, "%s %s", tc.method, tc.path)
	}
	assert.Zero(t, f.tc.calls.Load(), "nothing burned for bob")

	theirs := f.createSession(t, asBob...)
	st := f.ocrState(t, theirs.ID, asBob...)
	assert.Nil(t, st.Video)
	assert.Empty(t, st.Replacements)

	st = f.ocrState(t, mine.ID, asAlice...)
	assert.Equal(t, map[string]string{"a": "alice-private"}, st.Replacements)
}

func TestServer_Quiz(t *testing.T) {
	f := newFixture(t)
	rec := f.createSession(t)

	rr := f.do(t, http.MethodPost, "/api/v1/quiz", QuizRequest{
		MediaRef: MediaRef{SessionID: rec.ID},
		Settings: quiz.Settings{NumberOfQuestions: 3, Format: quiz.FormatTrueFalse},
		Export:   true,
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp QuizResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotNil(t, resp.Quiz)
	assert.Len(t, resp.Quiz.Questions, 3)
	assert.Equal(t, f.source, resp.Quiz.Source)
	require.NotNil(t, resp.Export)
	assert.Contains(t, readURI(t, resp.Export.URI), resp.Quiz.ID)

	rr = f.do(t, http.MethodPost, "/api/v1/quiz", QuizRequest{Settings: quiz.Settings{Difficulty: "insane"}, MediaRef: MediaRef{URI: f.source}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, http.MethodPost, "/api/v1/quiz", QuizRequest{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestServer_DisabledFeatures(t *testing.T) {
	f := newFixture(t)
	rec := f.createSession(t)

	rr := f.do(t, http.MethodPost, "/api/v1/sessions/"+rec.ID+"/ocr/frames", FrameRequest{Seconds: 1})
	assert.Equal(t, http.StatusNotImplemented, rr.Code)
	assert.Equal(t, schemas.CodeCapabilityAbsent, decodeError(t, rr).Code)

	rr = f.do(t, http.MethodPost, "/api/v1/sessions/"+rec.ID+"/voice", []byte("RIFF"), "Content-Type", "audio/wav")
	assert.Equal(t, http.StatusNotImplemented, rr.Code)
}

func TestServer_AudioTracks(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodGet, "/api/v1/audio/tracks", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var tracks []audio.Track
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &tracks))
	require.Len(t, tracks, 3)
	assert.Equal(t, "lofi1", tracks[0].ID)
}

func TestServer_Metrics(t *testing.T) {
	f := newFixture(t, WithMetrics(metrics.New()))
	f.createSession(t)
	f.do(t, http.MethodGet, "/api/v1/sessions/missing", nil)

	rr := f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "vidioai_active_sessions 1")
	assert.Contains(t, body, "vidioai_http_errors_total 1")
}
