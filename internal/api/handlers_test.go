package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	bolt "go.etcd.io/bbolt"
	"golang.org/x/crypto/bcrypt"

	"github.com/foxzi/pagesend/internal/config"
	"github.com/foxzi/pagesend/internal/db"
	"github.com/foxzi/pagesend/internal/directory"
	"github.com/foxzi/pagesend/internal/dispatch"
	"github.com/foxzi/pagesend/internal/mail"
	"github.com/foxzi/pagesend/internal/matcher"
	"github.com/foxzi/pagesend/internal/models"
	"github.com/foxzi/pagesend/internal/pdfdoc"
	"github.com/foxzi/pagesend/internal/pdfdoc/pdftest"
	"github.com/foxzi/pagesend/internal/repository"
	"github.com/foxzi/pagesend/internal/session"
)

type testEnv struct {
	server  *Server
	dir     *directory.Directory
	sandbox *mail.SandboxStore
}

func newTestEnv(t *testing.T, mutate func(cfg *config.Config)) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("db.New() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := database.Migrate(); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	dir, err := directory.New(ctx, repository.NewRecipientRepository(database.DB), logger)
	if err != nil {
		t.Fatalf("directory.New() error = %v", err)
	}

	boltDB, err := bolt.Open(filepath.Join(t.TempDir(), "sandbox.db"), 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		t.Fatalf("bolt.Open() error = %v", err)
	}
	t.Cleanup(func() { boltDB.Close() })

	store, err := mail.NewSandboxStore(boltDB)
	if err != nil {
		t.Fatalf("NewSandboxStore() error = %v", err)
	}

	sessions := session.NewStore(4, time.Minute)
	engine := dispatch.NewEngine(
		sessions,
		pdfdoc.NewSplitter(),
		mail.NewSandboxSender(store, "test.local", logger),
		nil,
		dispatch.Config{From: "no-reply@example.com"},
		logger,
	)

	cfg := &config.Config{
		Server:    config.ServerConfig{MaxUploadBytes: 1 << 20},
		Directory: config.DirectoryConfig{SeedFile: filepath.Join(t.TempDir(), "terceros.xlsx")},
	}
	if mutate != nil {
		mutate(cfg)
	}

	server := NewServer(cfg, Deps{
		Directory: dir,
		Resolver:  matcher.NewResolver(dir),
		Sessions:  sessions,
		Engine:    engine,
		Sandbox:   store,
		Version:   "test",
	}, logger)

	return &testEnv{server: server, dir: dir, sandbox: store}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("json.Marshal() error = %v", err)
		}
		r = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) upload(t *testing.T, pdf []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if pdf != nil {
		fw, err := mw.CreateFormFile("pdf", "lote.pdf")
		if err != nil {
			t.Fatalf("CreateFormFile() error = %v", err)
		}
		fw.Write(pdf)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/upload-pdf", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestRecipientsCRUD(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/terceros", map[string]any{
		"nit": "900.123.456", "nombre": "Acme SAS", "email": "facturas@acme.com",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("POST with nit status = %d, body %s", rec.Code, rec.Body)
	}
	saved := decode[RecipientResponse](t, rec)
	if !saved.Upserted || saved.Nit != "900123456" {
		t.Errorf("POST with nit = %+v, want upserted nit 900123456", saved)
	}

	// Numeric identifiers are accepted too
	rec = env.do(t, http.MethodPost, "/api/terceros", `{"nit": 800555111, "nombre": "Beta", "email": "b@beta.com"}`)
	if got := decode[RecipientResponse](t, rec); !got.Upserted || got.Nit != "800555111" {
		t.Errorf("POST numeric nit = %+v", got)
	}

	rec = env.do(t, http.MethodPost, "/api/terceros", map[string]any{"nombre": "Gamma", "email": "g@gamma.com"})
	created := decode[RecipientResponse](t, rec)
	if !created.Created {
		t.Errorf("first POST by name = %+v, want created", created)
	}

	rec = env.do(t, http.MethodPost, "/api/terceros", map[string]any{"nombre": "gamma", "email": "otro@gamma.com"})
	updated := decode[RecipientResponse](t, rec)
	if !updated.Updated || updated.ID != created.ID || updated.Email != "otro@gamma.com" {
		t.Errorf("second POST by name = %+v, want update of %d", updated, created.ID)
	}

	rec = env.do(t, http.MethodPost, "/api/terceros", map[string]any{"nombre": "Delta", "email": "no-es-correo"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("POST invalid email status = %d, want 400", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/terceros", nil)
	list := decode[[]models.Recipient](t, rec)
	if len(list) != 3 {
		t.Fatalf("GET returned %d recipients, want 3", len(list))
	}
	if list[0].Name != "Acme SAS" {
		t.Errorf("list not ordered by name: first = %q", list[0].Name)
	}

	if rec := env.do(t, http.MethodDelete, "/api/terceros/abc", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("DELETE bad id status = %d, want 400", rec.Code)
	}
	if rec := env.do(t, http.MethodDelete, "/api/terceros/9999", nil); rec.Code != http.StatusNotFound {
		t.Errorf("DELETE missing status = %d, want 404", rec.Code)
	}

	rec = env.do(t, http.MethodDelete, "/api/terceros/"+itoa(saved.ID), nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"deleted":true`) {
		t.Errorf("DELETE status = %d body %s", rec.Code, rec.Body)
	}
	if env.dir.Known().Contains("900123456") {
		t.Error("deleted identifier still known")
	}
}

func TestUploadAndSend(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	if _, err := env.dir.UpsertByIdentifier(ctx, "900123456", "Acme SAS", "facturas@acme.com"); err != nil {
		t.Fatalf("UpsertByIdentifier() error = %v", err)
	}

	rec := env.upload(t, pdftest.Build("Factura 001 NIT 900.123.456", "Pagina sin identificador"))
	if rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d, body %s", rec.Code, rec.Body)
	}
	res := decode[models.UploadResult](t, rec)

	if res.UploadID == "" || res.TotalPages != 2 || len(res.Rows) != 2 {
		t.Fatalf("upload = %+v, want 2 pages", res)
	}
	if res.Rows[0].Matched == nil || res.Rows[0].Matched.Email != "facturas@acme.com" {
		t.Errorf("rows[0].Matched = %+v, want Acme", res.Rows[0].Matched)
	}
	if res.Rows[0].Nit != "900123456" {
		t.Errorf("rows[0].Nit = %q, want 900123456", res.Rows[0].Nit)
	}
	if res.Rows[1].Matched != nil || res.Rows[1].Nit != "" {
		t.Errorf("rows[1] = %+v, want unmatched", res.Rows[1])
	}
	if !strings.Contains(rec.Body.String(), `"matched":null`) {
		t.Errorf("unmatched row not encoded as null: %s", rec.Body)
	}

	rec = env.do(t, http.MethodPost, "/api/send", SendRequest{
		UploadID: res.UploadID,
		Selections: []models.Selection{
			{Page: 1, Name: "Acme SAS", Email: "facturas@acme.com"},
			{Page: 2, Name: "Nadie", Email: "sin-arroba"},
		},
		SenderEmail: "operador@example.com",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("send status = %d, body %s", rec.Code, rec.Body)
	}
	sent := decode[SendResponse](t, rec)
	if len(sent.Results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(sent.Results))
	}
	if sent.Results[0].Status != models.StatusSent {
		t.Errorf("results[0] = %+v, want sent", sent.Results[0])
	}
	if sent.Results[1].Status != models.StatusSkipped || sent.Results[1].Reason != "sin email válido" {
		t.Errorf("results[1] = %+v, want skipped", sent.Results[1])
	}

	n, err := env.sandbox.Count(ctx)
	if err != nil || n != 1 {
		t.Errorf("sandbox count = %d (%v), want 1", n, err)
	}

	rec = env.do(t, http.MethodGet, "/api/sandbox/messages", nil)
	list := decode[SandboxListResponse](t, rec)
	if list.Total != 1 || list.Messages[0].To != "facturas@acme.com" {
		t.Fatalf("sandbox list = %+v", list)
	}
	if got := list.Messages[0].Attachments; len(got) != 1 || got[0] != "pagina-1.pdf" {
		t.Errorf("attachments = %v, want [pagina-1.pdf]", got)
	}

	rec = env.do(t, http.MethodGet, "/api/sandbox/messages/"+list.Messages[0].ID, nil)
	detail := decode[SandboxMessageDetailResponse](t, rec)
	if !strings.Contains(detail.Body, dispatch.DefaultBody) {
		t.Errorf("detail body = %q, want default body", detail.Body)
	}
	if detail.Headers["Reply-To"] == "" {
		t.Errorf("detail headers missing Reply-To: %v", detail.Headers)
	}
}

func TestUploadErrors(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.upload(t, nil)
	if rec.Code != http.StatusBadRequest || decode[ErrorResponse](t, rec).Error != "PDF requerido" {
		t.Errorf("upload without file = %d %s", rec.Code, rec.Body)
	}

	rec = env.upload(t, []byte("esto no es un pdf"))
	if rec.Code != http.StatusInternalServerError || decode[ErrorResponse](t, rec).Error == "" {
		t.Errorf("upload garbage = %d %s, want 500 with message", rec.Code, rec.Body)
	}
}

func TestSendErrors(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.server.deps.Sessions.Put(pdftest.Build("uno"))
	sel := []models.Selection{{Page: 1, Email: "a@acme.com"}}

	tests := []struct {
		name    string
		body    any
		wantErr string
	}{
		{"malformed json", "{", "payload inválido"},
		{"missing upload id", SendRequest{Selections: sel, SenderEmail: "op@example.com"}, "payload inválido"},
		{"missing selections", map[string]any{"uploadId": id, "senderEmail": "op@example.com"}, "payload inválido"},
		{"bad sender", SendRequest{UploadID: id, Selections: sel, SenderEmail: "op"}, "senderEmail requerido y válido"},
		{"unknown upload", SendRequest{UploadID: "nope", Selections: sel, SenderEmail: "op@example.com"}, "uploadId inválido o expirado"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/send", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			if got := decode[ErrorResponse](t, rec).Error; got != tt.wantErr {
				t.Errorf("error = %q, want %q", got, tt.wantErr)
			}
		})
	}
}

func TestReimportMissingFile(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/reimport-excel", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	got := decode[map[string]any](t, rec)
	if got["ok"] != true || got["message"] != directory.MessageSeedNotFound {
		t.Errorf("reimport = %v", got)
	}
	if got["processed"] != float64(0) {
		t.Errorf("processed = %v, want 0", got["processed"])
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/health", nil)
	got := decode[HealthResponse](t, rec)
	if got.Status != "ok" || got.Version != "test" {
		t.Errorf("health = %+v", got)
	}
}

func TestBasicAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3creta"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("GenerateFromPassword() error = %v", err)
	}
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Auth = config.AuthConfig{Username: "admin", PasswordHash: string(hash)}
	})

	tests := []struct {
		name       string
		path       string
		user, pass string
		want       int
	}{
		{"no credentials", "/api/terceros", "", "", http.StatusUnauthorized},
		{"wrong password", "/api/terceros", "admin", "nope", http.StatusUnauthorized},
		{"wrong user", "/api/terceros", "root", "s3creta", http.StatusUnauthorized},
		{"valid", "/api/terceros", "admin", "s3creta", http.StatusOK},
		{"ui protected", "/", "", "", http.StatusUnauthorized},
		{"health is public", "/health", "", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.user != "" {
				req.SetBasicAuth(tt.user, tt.pass)
			}
			rec := httptest.NewRecorder()
			env.server.Handler().ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestStaticUI(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "uploadForm") {
		t.Errorf("GET / = %d, want the UI page", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/app.js", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "/api/upload-pdf") {
		t.Errorf("GET /app.js = %d", rec.Code)
	}
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
