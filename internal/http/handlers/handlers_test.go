package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"dolphinpod/internal/apperr"
	dbpkg "dolphinpod/internal/db"
	httpctx "dolphinpod/internal/http/ctx"
	"dolphinpod/internal/http/respond"
	"dolphinpod/internal/identity"
	"dolphinpod/internal/ingest"
	"dolphinpod/internal/llm"
	"dolphinpod/internal/metrics"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return gdb, mock
}

func newCtx(method, uri, body string, userID uint) *fasthttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(uri)
	if body != "" {
		ctx.Request.SetBodyString(body)
	}
	if userID != 0 {
		httpctx.SetUserID(ctx, userID)
	}
	return ctx
}

func errorBody(t *testing.T, ctx *fasthttp.RequestCtx) respond.ErrorBody {
	t.Helper()
	var body respond.ErrorBody
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &body))
	return body
}

type fakeIngester struct {
	gotUser  uint
	gotBatch ingest.Batch
	res      ingest.Result
	err      error
}

func (f *fakeIngester) Ingest(_ context.Context, userID uint, batch ingest.Batch) (ingest.Result, error) {
	f.gotUser, f.gotBatch = userID, batch
	return f.res, f.err
}

func TestSubmitLogs(t *testing.T) {
	ing := &fakeIngester{res: ingest.Result{Submitted: 3, Accepted: 2}}
	h := SubmitLogs(ing)

	ctx := newCtx(fasthttp.MethodPost, "/api/v1/logs",
		`{"logs":[{"package_name":"com.a","usage_time":60,"start_time":"2025-03-01T23:30:00","end_time":"2025-03-01T23:31:00"}],"unlock_count":4}`, 7)
	h(ctx)

	require.Equal(t, fasthttp.StatusCreated, ctx.Response.StatusCode())
	var body submitResponse
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &body))
	assert.Equal(t, "Of 3 records, 2 new records were saved", body.Message)
	assert.Equal(t, 2, body.Accepted)
	assert.Equal(t, uint(7), ing.gotUser)
	require.Len(t, ing.gotBatch.Logs, 1)
	assert.Equal(t, "com.a", ing.gotBatch.Logs[0].PackageName)
	require.NotNil(t, ing.gotBatch.UnlockCount)
	assert.Equal(t, 4, *ing.gotBatch.UnlockCount)
}

func TestSubmitLogsErrors(t *testing.T) {
	cases := []struct {
		name   string
		user   uint
		body   string
		err    error
		status int
		kind   string
	}{
		{"no session", 0, `{"logs":[]}`, nil, fasthttp.StatusUnauthorized, "unauthorized"},
		{"empty body", 1, "", nil, fasthttp.StatusBadRequest, "validation"},
		{"bad json", 1, `{"logs":`, nil, fasthttp.StatusBadRequest, "validation"},
		{"invalid batch", 1, `{"logs":[]}`, apperr.Validation("logs must not be empty"), fasthttp.StatusBadRequest, "validation"},
		{"unknown user", 1, `{"logs":[]}`, apperr.NotFound("user not found"), fasthttp.StatusNotFound, "not_found"},
		{"store failure", 1, `{"logs":[]}`, errors.New("db down"), fasthttp.StatusInternalServerError, "internal_server_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := newCtx(fasthttp.MethodPost, "/api/v1/logs", tc.body, tc.user)
			SubmitLogs(&fakeIngester{err: tc.err})(ctx)
			assert.Equal(t, tc.status, ctx.Response.StatusCode())
			assert.Equal(t, tc.kind, errorBody(t, ctx).ErrorType)
		})
	}
}

func TestSubmitLogsHidesInternalCause(t *testing.T) {
	ctx := newCtx(fasthttp.MethodPost, "/api/v1/logs", `{"logs":[]}`, 1)
	SubmitLogs(&fakeIngester{err: errors.New("pq: password authentication failed")})(ctx)
	assert.NotContains(t, string(ctx.Response.Body()), "password")
}

func TestListLogsNotFoundWhenEmpty(t *testing.T) {
	gdb, mock := newMockDB(t)
	mock.ExpectQuery(`SELECT \* FROM "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "nickname"}).AddRow(3, "a@b.c", "a"))
	mock.ExpectQuery(`SELECT \* FROM "usage_logs"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	ctx := newCtx(fasthttp.MethodGet, "/api/v1/logs", "", 3)
	ListLogs(gdb, time.UTC)(ctx)

	assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())
	assert.Equal(t, "no logs found for the user", errorBody(t, ctx).Message)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListLogsRejectsBadLookup(t *testing.T) {
	gdb, mock := newMockDB(t)
	mock.ExpectQuery(`SELECT \* FROM "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "nickname"}).AddRow(3, "a@b.c", "a"))

	ctx := newCtx(fasthttp.MethodGet, "/api/v1/logs?package_name=com.a&first_time_stamp=soon", "", 3)
	ListLogs(gdb, time.UTC)(ctx)

	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
}

func TestGetMeUnknownUser(t *testing.T) {
	gdb, mock := newMockDB(t)
	mock.ExpectQuery(`SELECT \* FROM "users"`).WillReturnRows(sqlmock.NewRows([]string{"id"}))

	ctx := newCtx(fasthttp.MethodGet, "/api/v1/users/me", "", 9)
	GetMe(gdb)(ctx)
	assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())
}

type fakeVerifier struct {
	id  identity.Identity
	err error
}

func (f fakeVerifier) Verify(context.Context, string) (identity.Identity, error) {
	return f.id, f.err
}

type fakeIssuer struct{}

func (fakeIssuer) Issue(userID uint) (string, time.Time, error) {
	return "session-token", time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC), nil
}

func TestGoogleLoginExistingUser(t *testing.T) {
	gdb, mock := newMockDB(t)
	mock.ExpectQuery(`SELECT \* FROM "users" WHERE email = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "nickname"}).AddRow(4, "lee@example.com", "lee"))

	v := fakeVerifier{id: identity.Identity{Email: "Lee@Example.com", Name: "Lee"}}
	ctx := newCtx(fasthttp.MethodPost, "/auth/google", `{"id_token":"x"}`, 0)
	GoogleLogin(gdb, v, fakeIssuer{})(ctx)

	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode(), string(ctx.Response.Body()))
	var body loginResponse
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &body))
	assert.Equal(t, uint(4), body.ID)
	assert.Equal(t, "session-token", body.Token)
	assert.False(t, body.Created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGoogleLoginRejects(t *testing.T) {
	ctx := newCtx(fasthttp.MethodPost, "/auth/google", `{}`, 0)
	GoogleLogin(nil, fakeVerifier{}, fakeIssuer{})(ctx)
	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())

	ctx = newCtx(fasthttp.MethodPost, "/auth/google", `{"idToken":"forged"}`, 0)
	GoogleLogin(nil, fakeVerifier{err: apperr.Unauthorized("invalid id token")}, fakeIssuer{})(ctx)
	assert.Equal(t, fasthttp.StatusUnauthorized, ctx.Response.StatusCode())
}

type fakeAdvisor struct {
	question json.RawMessage
	err      error
}

func (f fakeAdvisor) DailyComment(context.Context, llm.DailyInput) (llm.Comment, error) {
	return llm.Comment{}, f.err
}

func (f fakeAdvisor) DailyReport(context.Context, string, llm.ReportInput) (llm.Report, error) {
	return llm.Report{}, f.err
}

func (f fakeAdvisor) CheckInQuestion(context.Context, llm.QuestionInput) (json.RawMessage, error) {
	return f.question, f.err
}

func TestCheckInQuestion(t *testing.T) {
	q := json.RawMessage(`{"step":1,"question":"How was today?","options":[],"allow_free_text":true}`)
	ctx := newCtx(fasthttp.MethodPost, "/api/v1/ai/checkin-question", `{"step":1}`, 2)
	CheckInQuestion(fakeAdvisor{question: q})(ctx)

	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.JSONEq(t, string(q), string(ctx.Response.Body()))
}

func TestCheckInQuestionUpstreamFailure(t *testing.T) {
	ctx := newCtx(fasthttp.MethodPost, "/api/v1/ai/checkin-question", `{"step":1}`, 2)
	err := apperr.Upstream(apperr.CategoryLLMNetwork, errors.New("dial tcp: timeout"))
	CheckInQuestion(fakeAdvisor{err: err})(ctx)

	assert.Equal(t, fasthttp.StatusGatewayTimeout, ctx.Response.StatusCode())
	assert.NotContains(t, string(ctx.Response.Body()), "dial tcp")
}

func TestValidateProfile(t *testing.T) {
	str := func(s string) *string { return &s }
	num := func(n int) *int { return &n }
	user := &dbpkg.User{NightModeStart: "23:00", NightModeEnd: "07:00"}

	upd := dbpkg.ProfileUpdate{NightModeStart: str("22:30:00")}
	require.NoError(t, validateProfile(user, &upd))
	assert.Equal(t, "22:30", *upd.NightModeStart)
	assert.Equal(t, "07:00", *upd.NightModeEnd)

	bad := []dbpkg.ProfileUpdate{
		{NightModeEnd: str("25:00")},
		{TargetTime: num(-1)},
		{Timezone: str("Mars/Olympus")},
		{Nickname: str("   ")},
	}
	for _, b := range bad {
		err := validateProfile(user, &b)
		assert.True(t, apperr.Is(err, apperr.KindValidation), "%+v", b)
	}
}

func TestParseDay(t *testing.T) {
	seoul, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)
	now := time.Date(2025, 3, 1, 16, 0, 0, 0, time.UTC) // 01:00 on Mar 2 in Seoul

	d, err := parseDay("", seoul, now)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-02", FormatDay(d, seoul))

	d, err = parseDay("2025-02-28", seoul, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 2, 28, 0, 0, 0, 0, seoul), d)

	_, err = parseDay("02/28/2025", seoul, now)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestMetricsHandlerServesServiceFamilies(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics.Register(reg)
	other := prometheus.NewCounter(prometheus.CounterOpts{Name: "unrelated_total", Help: "x"})
	reg.MustRegister(other)
	metrics.NightModeRecords.Inc()
	other.Inc()

	ctx := newCtx(fasthttp.MethodGet, "/metrics", "", 0)
	MetricsHandler(reg)(ctx)

	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	body := string(ctx.Response.Body())
	assert.Contains(t, body, "dolphinpod_night_mode_records_total")
	assert.NotContains(t, body, "unrelated_total")
	assert.True(t, strings.HasPrefix(string(ctx.Response.Header.ContentType()), "text/plain"))
}

func TestReportContent(t *testing.T) {
	content, err := reportContent(llm.Report{
		Title:    "Quiet day",
		Comments: []string{"Nice"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Quiet day", content["title"])
	assert.Equal(t, []any{"Nice"}, content["comments"])
}
