package handler_test

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"appforge/internal/codegen"
	"appforge/internal/conversation"
	"appforge/internal/handler"
	"appforge/internal/llm"
	"appforge/internal/preview"
	"appforge/internal/saver"
)

type testEnv struct {
	fake     *llm.FakeClient
	store    conversation.Store
	saver    *saver.Saver
	generate *handler.GenerateHandler
	preview  *preview.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	fake := llm.NewFakeClient()
	store, err := conversation.NewDiskStore(conversation.DiskConfig{Root: t.TempDir()})
	if err != nil {
		t.Fatalf("disk store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	sv, err := saver.New(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("saver: %v", err)
	}
	pv, err := preview.NewHandler(sv.Root())
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	return &testEnv{
		fake:     fake,
		store:    store,
		saver:    sv,
		generate: handler.NewGenerateHandler(codegen.New(fake, store), sv),
		preview:  pv,
	}
}

func (e *testEnv) postGenerate(t *testing.T, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader(body))
	rec := httptest.NewRecorder()
	e.generate.HandleGenerate(rec, req)
	return rec
}

func (e *testEnv) fetchPreview(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "http://example.test/", nil)
	req.URL.Path = path
	rec := httptest.NewRecorder()
	e.preview.ServeHTTP(rec, req)
	return rec
}

func TestGenerateHTMLEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	env.fake.JSON = json.RawMessage(`{"htmlCode":"<html><head></head><body><button style=\"color:red\">go</button></body></html>"}`)

	rec := env.postGenerate(t, `{"appId":1,"userMessage":"a page with a red button","type":"html"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		DeployKey string `json:"deployKey"`
		Type      string `json:"type"`
		HTMLCode  string `json:"htmlCode"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, strings.HasPrefix(resp.DeployKey, "html_"), "key = %q", resp.DeployKey)
	require.Contains(t, resp.HTMLCode, "red")

	// Served page carries the receiver script exactly once; the saved bytes
	// stay pristine across requests.
	for i := 0; i < 2; i++ {
		pr := env.fetchPreview(t, "/static/"+resp.DeployKey+"/")
		require.Equal(t, http.StatusOK, pr.Code)
		body := pr.Body.String()
		require.Contains(t, body, "red")
		require.Equal(t, 1, strings.Count(body, `id="visual-editor-receiver"`))
	}
}

func TestGenerateMultiFileEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	env.fake.JSON = json.RawMessage(`{"files":[
		{"path":"index.html","content":"<html><body><link href=\"css/app.css\"></body></html>"},
		{"path":"css/app.css","content":"body { margin: 0 }"}
	]}`)

	rec := env.postGenerate(t, `{"appId":2,"userMessage":"split it","type":"multi_file"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		DeployKey string `json:"deployKey"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	css := env.fetchPreview(t, "/static/"+resp.DeployKey+"/css/app.css")
	require.Equal(t, http.StatusOK, css.Code)
	require.Equal(t, "text/css; charset=utf-8", css.Header().Get("Content-Type"))
	require.Equal(t, "body { margin: 0 }", css.Body.String())
}

func TestGenerateBadRequests(t *testing.T) {
	env := newTestEnv(t)

	rec := env.postGenerate(t, `{"appId":1,"userMessage":"hi","type":"nope"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.postGenerate(t, `{"appId":1,"userMessage":"hi","type":"chat"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.postGenerate(t, `{"appId":0,"userMessage":"hi","type":"html"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.postGenerate(t, `not json`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerateConflictWhileTurnInFlight(t *testing.T) {
	env := newTestEnv(t)
	env.fake.Block = make(chan struct{})

	first := make(chan int, 1)
	go func() {
		rec := env.postGenerate(t, `{"appId":3,"userMessage":"slow","type":"html"}`)
		first <- rec.Code
	}()

	// Wait for the first request to reach the model.
	for {
		if _, ok := env.fake.LastCall(); ok {
			break
		}
		time.Sleep(time.Millisecond)
	}

	rec := env.postGenerate(t, `{"appId":3,"userMessage":"again","type":"html"}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	close(env.fake.Block)
	require.Equal(t, http.StatusOK, <-first)
}

func TestGenerateStreamCommitsProject(t *testing.T) {
	env := newTestEnv(t)
	env.fake.Stream = []string{
		"@@FILE:index.html\n<html><body>app</body></html>\n@@ENDFILE\n",
		"@@FILE:src/main.js\nconsole.log(1)\n@@ENDFILE\n",
	}

	req := httptest.NewRequest(http.MethodGet, "/api/generate/stream?appId=4&type=vue_project&message=scaffold", nil)
	rec := httptest.NewRecorder()
	env.generate.HandleGenerateStream(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	var deployKey string
	var kinds []string
	scanner := bufio.NewScanner(rec.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev struct {
			Type      string `json:"type"`
			DeployKey string `json:"deployKey"`
		}
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		kinds = append(kinds, ev.Type)
		if ev.Type == "done" {
			deployKey = ev.DeployKey
		}
	}
	require.NotEmpty(t, kinds)
	require.Equal(t, "done", kinds[len(kinds)-1])
	require.True(t, strings.HasPrefix(deployKey, "vue_"), "key = %q", deployKey)

	// Both files resolve under the committed key.
	page := env.fetchPreview(t, "/static/"+deployKey+"/index.html")
	require.Equal(t, http.StatusOK, page.Code)
	js := env.fetchPreview(t, "/static/"+deployKey+"/src/main.js")
	require.Equal(t, http.StatusOK, js.Code)
	require.Equal(t, "console.log(1)\n", js.Body.String())
}

func TestGenerateStreamChatNoArtifact(t *testing.T) {
	env := newTestEnv(t)
	env.fake.Stream = []string{"sure, ", "here is an idea"}

	req := httptest.NewRequest(http.MethodGet, "/api/generate/stream?appId=5&type=chat&message=brainstorm", nil)
	rec := httptest.NewRecorder()
	env.generate.HandleGenerateStream(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, `"type":"text"`)
	require.Contains(t, body, `"type":"done"`)
	require.NotContains(t, body, "deployKey")
}

func TestGenerateStreamRejectsEscapingPath(t *testing.T) {
	env := newTestEnv(t)
	env.fake.Stream = []string{
		"@@FILE:../outside.html\nnope\n@@ENDFILE\n",
	}

	req := httptest.NewRequest(http.MethodGet, "/api/generate/stream?appId=6&type=vue_project&message=evil", nil)
	rec := httptest.NewRecorder()
	env.generate.HandleGenerateStream(rec, req)

	body := rec.Body.String()
	require.Contains(t, body, `"type":"error"`)
	require.NotContains(t, body, `"type":"done"`)
}

func TestConversationClear(t *testing.T) {
	env := newTestEnv(t)
	ch := handler.NewConversationHandler(codegen.New(env.fake, env.store))

	// Seed a turn.
	rec := env.postGenerate(t, `{"appId":7,"userMessage":"hello","type":"html"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodDelete, "/api/conversation/7", nil)
	del := httptest.NewRecorder()
	ch.HandleClear(del, req)
	require.Equal(t, http.StatusNoContent, del.Code)

	history, err := env.store.Load(req.Context(), 7)
	require.NoError(t, err)
	require.Empty(t, history)

	bad := httptest.NewRecorder()
	ch.HandleClear(bad, httptest.NewRequest(http.MethodDelete, "/api/conversation/abc", nil))
	require.Equal(t, http.StatusBadRequest, bad.Code)
}
