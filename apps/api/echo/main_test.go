package echoapi_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/prepcards/apps/api/echo"
	"github.com/trezcool/prepcards/apps/jobs"
	"github.com/trezcool/prepcards/core"
	"github.com/trezcool/prepcards/core/card"
	"github.com/trezcool/prepcards/core/reflection"
	"github.com/trezcool/prepcards/core/signal"
	sqlxrepos "github.com/trezcool/prepcards/storage/database/sqlx"
	testutil "github.com/trezcool/prepcards/tests"
)

var (
	ctx     = context.Background()
	fracKey = testutil.ContextKey("math", "4", "fractions", "number_line")

	errMissingToken = httpErr{Error: "missing or malformed jwt"}
	errForbidden    = httpErr{Error: "permission denied"}
	errNotFound     = httpErr{Error: "not found"}
)

type nopLogger struct{}

func (*nopLogger) Debug(string, ...interface{}) {}
func (*nopLogger) Info(string, ...interface{})  {}
func (*nopLogger) Warn(string, ...interface{})  {}
func (*nopLogger) Error(string, ...interface{}) {}
func (*nopLogger) Fatal(string, ...interface{}) {}

type testApp struct {
	Server
	conf    *core.Config
	db      *sqlx.DB
	cardSvc *card.Service
}

func setup(t *testing.T) testApp {
	t.Helper()

	conf := &core.Config{
		AppName:   "PrepCards",
		TestMode:  true,
		SecretKey: "test-secret",
		Server:    core.ServerConfig{JWTExpirationDelta: time.Hour},
		Flagging:  core.FlaggingConfig{MinReflections: 5, FailureRateThreshold: 0.30, ConcentrationThreshold: 0.40},
	}
	db := testutil.PrepareDB(t)
	logger := &nopLogger{}

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)

	cardRepo := sqlxrepos.NewCardRepository(db)
	sigRepo := sqlxrepos.NewSignalRepository(db)
	reviewRepo := sqlxrepos.NewReviewRepository(db)
	cardSvc := card.NewService(cardRepo, validate, nil)

	reflDict, crpDict, err := jobs.LoadDictionaries(conf)
	require.NoError(t, err)
	pipeline := jobs.NewPipeline(conf, db, reflDict, crpDict, nil, logger, nil)

	srv := NewServer(ServerDeps{
		Conf:           conf,
		Logger:         logger,
		CardSvc:        cardSvc,
		Versioner:      card.NewVersioner(db, cardRepo, sigRepo, reviewRepo, validate, logger, nil),
		ReflectionSvc:  reflection.NewService(sqlxrepos.NewReflectionRepository(db), reviewRepo, cardSvc, validate, nil),
		SignalSvc:      signal.NewService(sigRepo),
		Jobs:           jobs.NewRunner(pipeline, nil, logger),
		Validate:       validate,
		Translator:     translator,
		DisableReqLogs: true,
	})
	t.Cleanup(func() { _ = srv.Close() })

	return testApp{Server: srv, conf: conf, db: db, cardSvc: cardSvc}
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func (app testApp) do(method, path, token string, data ...[]byte) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(method, path, token, data...)
	app.ServeHTTP(rec, req)
	return rec
}

func getToken(t *testing.T, conf *core.Config, role string) string {
	token, err := GenerateToken(conf, "subject-"+role, role)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshallObj() failed: %v", err)
	}
	return data
}

func unmarshall(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dest); err != nil {
		t.Fatalf("unmarshall() failed: %v; body %s", err, rec.Body.String())
	}
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
