package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/prepcards/apps/api/echo"
	"github.com/trezcool/prepcards/apps/jobs"
	"github.com/trezcool/prepcards/core"
	"github.com/trezcool/prepcards/core/card"
	"github.com/trezcool/prepcards/core/signal"
	sqlxrepos "github.com/trezcool/prepcards/storage/database/sqlx"
	testutil "github.com/trezcool/prepcards/tests"
)

type nopLogger struct{}

func (*nopLogger) Debug(string, ...interface{}) {}
func (*nopLogger) Info(string, ...interface{})  {}
func (*nopLogger) Warn(string, ...interface{})  {}
func (*nopLogger) Error(string, ...interface{}) {}
func (*nopLogger) Fatal(string, ...interface{}) {}

func setup(t *testing.T) (*commandLine, *bytes.Buffer) {
	conf := &core.Config{
		AppName:   "PrepCards",
		TestMode:  true,
		SecretKey: "test-secret",
		Server:    core.ServerConfig{JWTExpirationDelta: time.Hour},
		Flagging:  core.FlaggingConfig{MinReflections: 5, FailureRateThreshold: 0.30, ConcentrationThreshold: 0.40},
	}
	db := testutil.PrepareDB(t)

	validate := validator.New()
	core.InitValidators(validate, core.NewTranslator())

	reflDict, crpDict, err := jobs.LoadDictionaries(conf)
	require.NoError(t, err)

	out := new(bytes.Buffer)
	return &commandLine{
		conf:    conf,
		db:      db,
		cardSvc: card.NewService(sqlxrepos.NewCardRepository(db), validate, nil),
		jobs:    jobs.NewRunner(jobs.NewPipeline(conf, db, reflDict, crpDict, nil, &nopLogger{}, nil), nil, &nopLogger{}),
		out:     out,
	}, out
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
}

func (tt cliTest) check(t *testing.T, err error) {
	t.Helper()
	switch {
	case tt.wantErr != nil:
		assert.Equal(t, tt.wantErr, errors.Cause(err))
	case tt.wantErrStr != "":
		require.Error(t, err)
		assert.Contains(t, err.Error(), tt.wantErrStr)
	default:
		assert.NoError(t, err)
	}
}

func Test_commandLine_help(t *testing.T) {
	cli, _ := setup(t)

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "migrate: no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "seed: no file", args: []string{"seed"}, wantErr: errHelp},
		{name: "token: no subject", args: []string{"token"}, wantErr: errHelp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(append([]string{"admin"}, tt.args...)))
		})
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _ := setup(t)

	var gotCmd string
	var gotArgs []string
	orig := runMigrationsFunc
	defer func() { runMigrationsFunc = orig }()
	runMigrationsFunc = func(_ context.Context, _ *sqlx.DB, command string, args ...string) error {
		gotCmd, gotArgs = command, args
		return nil
	}

	require.NoError(t, cli.run([]string{"admin", "migrate", "up-to", "2"}))
	assert.Equal(t, "up-to", gotCmd)
	assert.Equal(t, []string{"2"}, gotArgs)

	require.NoError(t, cli.run([]string{"admin", "migrate", "status"}))
	assert.Equal(t, "status", gotCmd)
	assert.Empty(t, gotArgs)
}

func Test_commandLine_seed(t *testing.T) {
	cli, out := setup(t)

	dir := t.TempDir()
	valid := filepath.Join(dir, "cards.yaml")
	require.NoError(t, os.WriteFile(valid, []byte(`
cards:
  - subject: math
    grade: "4"
    topicId: fractions
    situation: number_line
    title: Fractions on a number line
    explanation: Place unit fractions first.
    warningSigns: [students count tick marks instead of spaces]
    remediation: [fold a paper strip]
  - subject: science
    grade: "5"
    topicId: photosynthesis
    situation: lab
    title: Leaf in a jar
    explanation: Watch bubbles form in sunlight.
`), 0o600))
	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("cards: [\n"), 0o600))
	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("cards:\n  - subject: math\n"), 0o600))

	tests := []struct {
		cliTest
		want card.SeedResult
	}{
		{cliTest: cliTest{name: "missing file", args: []string{"seed", "-file", filepath.Join(dir, "nope.yaml")}, wantErrStr: "reading seed file"}},
		{cliTest: cliTest{name: "bad yaml", args: []string{"seed", "-file", broken}, wantErrStr: "parsing"}},
		{cliTest: cliTest{name: "invalid card", args: []string{"seed", "-file", invalid}, wantErrStr: "seeding card #1"}},
		{cliTest: cliTest{name: "create", args: []string{"seed", "-file", valid}}, want: card.SeedResult{Created: 2}},
		{cliTest: cliTest{name: "skip existing", args: []string{"seed", "-file", valid}}, want: card.SeedResult{Skipped: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out.Reset()
			err := cli.run(append([]string{"admin"}, tt.args...))
			tt.check(t, err)
			if err != nil {
				return
			}
			var got card.SeedResult
			require.NoError(t, json.Unmarshal(out.Bytes(), &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func Test_commandLine_runjob(t *testing.T) {
	cli, out := setup(t)

	t.Run("unknown job", func(t *testing.T) {
		cliTest{wantErr: jobs.ErrUnknownJob}.check(t, cli.run([]string{"admin", "runjob", "-name", "reindex"}))
	})

	t.Run("empty store", func(t *testing.T) {
		out.Reset()
		require.NoError(t, cli.run([]string{"admin", "runjob", "-name", jobs.Aggregate}))
		var got signal.AggregateResult
		require.NoError(t, json.Unmarshal(out.Bytes(), &got))
		assert.True(t, got.Empty)
	})

	t.Run("pipeline by default", func(t *testing.T) {
		out.Reset()
		require.NoError(t, cli.run([]string{"admin", "runjob"}))
		var got signal.PipelineResult
		require.NoError(t, json.Unmarshal(out.Bytes(), &got))
		assert.True(t, got.Aggregate.Empty)
		assert.True(t, got.Flag.Empty)
	})
}

func Test_commandLine_token(t *testing.T) {
	cli, out := setup(t)

	cliTest{wantErr: core.ErrInvalidRole}.check(t, cli.run([]string{"admin", "token", "-subject", "ada@school.test", "-role", "admin"}))

	out.Reset()
	require.NoError(t, cli.run([]string{"admin", "token", "-subject", "ada@school.test", "-role", core.RoleCRP}))

	claims := new(echoapi.Claims)
	_, err := jwt.ParseWithClaims(strings.TrimSpace(out.String()), claims, func(*jwt.Token) (interface{}, error) {
		return []byte(cli.conf.SecretKey), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ada@school.test", claims.Subject)
	assert.Equal(t, core.RoleCRP, claims.Role)
}
