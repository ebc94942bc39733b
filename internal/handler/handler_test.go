package handler

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoolreg/internal/audit"
	"schoolreg/internal/auth"
	"schoolreg/internal/httpmiddleware"
	"schoolreg/internal/students"
	"schoolreg/internal/uploads"
	"schoolreg/internal/users"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const (
	testIssuer = "schoolreg-test"
	testKey    = "test-signing-key"
	adminPass  = "Admin1234"
	staffPass  = "Staff1234"
)

type fakeUsers struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]users.User
}

func newFakeUsers(t *testing.T) *fakeUsers {
	t.Helper()
	f := &fakeUsers{byID: map[int64]users.User{}}
	for _, u := range []struct{ name, pass, role string }{
		{"admin", adminPass, users.RoleAdmin},
		{"clerk", staffPass, users.RoleStaff},
	} {
		hash, err := auth.HashPassword(u.pass)
		require.NoError(t, err)
		_, err = f.Create(context.Background(), u.name, hash, u.role)
		require.NoError(t, err)
	}
	return f
}

func (f *fakeUsers) GetByUsername(_ context.Context, username string) (users.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.Username == username {
			return u, nil
		}
	}
	return users.User{}, users.ErrNotFound
}

func (f *fakeUsers) GetByID(_ context.Context, id int64) (users.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return users.User{}, users.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) List(_ context.Context) ([]users.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]users.User, 0, len(f.byID))
	for _, u := range f.byID {
		out = append(out, u)
	}
	return out, nil
}

func (f *fakeUsers) Create(_ context.Context, username, hash, role string) (users.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.Username == username {
			return users.User{}, users.ErrDuplicateUsername
		}
	}
	f.nextID++
	u := users.User{ID: f.nextID, Username: username, PasswordHash: hash, Role: role, CreatedAt: time.Now()}
	f.byID[u.ID] = u
	return u, nil
}

func (f *fakeUsers) UpdatePassword(_ context.Context, id int64, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return users.ErrNotFound
	}
	u.PasswordHash = hash
	f.byID[id] = u
	return nil
}

func (f *fakeUsers) Delete(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[id]; !ok {
		return users.ErrNotFound
	}
	delete(f.byID, id)
	return nil
}

type fakeFailures struct {
	mu    sync.Mutex
	times []time.Time
}

func (f *fakeFailures) InsertFailedLogin(_ context.Context, _, _ string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.times = append(f.times, at)
	return nil
}

func (f *fakeFailures) CountFailedLogins(_ context.Context, _, _ string, since time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, at := range f.times {
		if at.After(since) {
			n++
		}
	}
	return n, nil
}

func (f *fakeFailures) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.times)
}

type fakeStudents struct {
	mu      sync.Mutex
	rows    []students.Student
	deleted map[int64]bool
}

func (f *fakeStudents) Create(_ context.Context, s students.Student) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s.ID = int64(len(f.rows) + 1)
	s.SubmittedAt = time.Now()
	f.rows = append(f.rows, s)
	return s.ID, nil
}

func (f *fakeStudents) Each(_ context.Context, flt students.Filter, fn func(students.Student) error) error {
	f.mu.Lock()
	rows := make([]students.Student, 0, len(f.rows))
	for _, s := range f.rows {
		if f.deleted[s.ID] || (flt.Class != "" && s.ClassEnrolled != flt.Class) || (flt.Gender != "" && s.Sex != flt.Gender) {
			continue
		}
		rows = append(rows, s)
	}
	f.mu.Unlock()
	for _, s := range rows {
		if err := fn(s); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeStudents) List(ctx context.Context, flt students.Filter) ([]students.Student, error) {
	out := []students.Student{}
	err := f.Each(ctx, flt, func(s students.Student) error {
		out = append(out, s)
		return nil
	})
	return out, err
}

func (f *fakeStudents) Get(_ context.Context, id int64) (students.Student, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id < 1 || int(id) > len(f.rows) || f.deleted[id] {
		return students.Student{}, students.ErrNotFound
	}
	return f.rows[id-1], nil
}

func (f *fakeStudents) Update(_ context.Context, id int64, c students.Changes) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id < 1 || int(id) > len(f.rows) || f.deleted[id] {
		return students.ErrNotFound
	}
	if c.ClassEnrolled != nil {
		f.rows[id-1].ClassEnrolled = *c.ClassEnrolled
	}
	now := time.Now()
	f.rows[id-1].UpdatedAt = &now
	return nil
}

func (f *fakeStudents) SoftDelete(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id < 1 || int(id) > len(f.rows) || f.deleted[id] {
		return students.ErrNotFound
	}
	if f.deleted == nil {
		f.deleted = map[int64]bool{}
	}
	f.deleted[id] = true
	return nil
}

func (f *fakeStudents) Stats(ctx context.Context) (students.Stats, error) {
	list, _ := f.List(ctx, students.Filter{})
	return students.Stats{Total: len(list), ByClass: []students.ClassCount{}, ByGender: []students.SexCount{}}, nil
}

type fakeAudit struct {
	lastQuery audit.Query
}

func (f *fakeAudit) List(_ context.Context, q audit.Query) ([]audit.Entry, error) {
	f.lastQuery = q
	return []audit.Entry{}, nil
}

func (f *fakeAudit) Recent(_ context.Context, _ int) ([]audit.Entry, error) {
	return []audit.Entry{}, nil
}

func (f *fakeAudit) SecurityAlerts(_ context.Context, _ time.Time, _ int) ([]audit.Alert, error) {
	return []audit.Alert{}, nil
}

type sink struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (s *sink) Record(e audit.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
}

func (s *sink) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.Action)
	}
	return out
}

type testEnv struct {
	router   *gin.Engine
	users    *fakeUsers
	students *fakeStudents
	failures *fakeFailures
	audit    *fakeAudit
	sink     *sink
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		users:    newFakeUsers(t),
		students: &fakeStudents{},
		failures: &fakeFailures{},
		audit:    &fakeAudit{},
		sink:     &sink{},
	}
	files, err := uploads.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	svc := auth.NewService(env.users, env.failures, env.sink, auth.Options{
		Issuer:     testIssuer,
		SigningKey: testKey,
		TokenTTL:   time.Hour,
	})
	h := New(Deps{
		Auth:     svc,
		Users:    env.users,
		Students: env.students,
		Audit:    env.audit,
		Recorder: env.sink,
		Files:    files,
	}, Options{MaxUploadBytes: 64 << 10})
	env.router = NewRouter(h, httpmiddleware.NewLimiter(httpmiddleware.NewMemoryStore()))
	return env
}

func (e *testEnv) token(t *testing.T, username string) string {
	t.Helper()
	u, err := e.users.GetByUsername(context.Background(), username)
	require.NoError(t, err)
	tok, _, err := auth.Issue(auth.Identity{ID: u.ID, Username: u.Username, Role: u.Role}, testIssuer, testKey, time.Hour, time.Now())
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

type errorBody struct {
	Error struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields"`
	} `json:"error"`
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var b errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b), w.Body.String())
	return b
}

func login(username, password string) map[string]string {
	return map[string]string{"username": username, "password": password}
}

func TestLoginIssuesTokenForAdmin(t *testing.T) {
	env := newEnv(t)

	w := env.do(t, http.MethodPost, "/api/auth/login", "", login("admin", adminPass))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Token string        `json:"token"`
		User  auth.Identity `json:"user"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "admin", resp.User.Username)
	assert.Equal(t, users.RoleAdmin, resp.User.Role)
	assert.Zero(t, env.failures.count())
	assert.ElementsMatch(t, []string{audit.ActionLoginSuccess, audit.ActionLoginAttempt}, env.sink.actions())

	me := env.do(t, http.MethodGet, "/api/auth/me", resp.Token, nil)
	require.Equal(t, http.StatusOK, me.Code)
	assert.Contains(t, me.Body.String(), `"username":"admin"`)
}

func TestLoginWrongPasswordRecordsOneFailure(t *testing.T) {
	env := newEnv(t)

	w := env.do(t, http.MethodPost, "/api/auth/login", "", login("admin", "nope"))
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid credentials", decodeError(t, w).Error.Message)
	assert.Equal(t, 1, env.failures.count())

	w = env.do(t, http.MethodPost, "/api/auth/login", "", login("ghost", "whatever"))
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid credentials", decodeError(t, w).Error.Message)
	assert.Equal(t, 2, env.failures.count())
}

func TestLoginMissingFields(t *testing.T) {
	env := newEnv(t)

	w := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"username": "admin"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Username and password required", decodeError(t, w).Error.Message)
	assert.Equal(t, 1, env.failures.count())
}

func TestLoginRateLimit(t *testing.T) {
	env := newEnv(t)

	for i := 0; i < 5; i++ {
		w := env.do(t, http.MethodPost, "/api/auth/login", "", login("admin", "wrong"))
		require.Equal(t, http.StatusUnauthorized, w.Code, "attempt %d", i+1)
	}
	w := env.do(t, http.MethodPost, "/api/auth/login", "", login("admin", adminPass))
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "RATE_LIMITED", decodeError(t, w).Error.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestSuccessfulLoginsDoNotCountTowardsLimit(t *testing.T) {
	env := newEnv(t)

	for i := 0; i < 8; i++ {
		w := env.do(t, http.MethodPost, "/api/auth/login", "", login("clerk", staffPass))
		require.Equal(t, http.StatusOK, w.Code, "login %d", i+1)
	}
}

func TestGeneralRateLimit(t *testing.T) {
	env := newEnv(t)

	for i := 0; i < 100; i++ {
		w := env.do(t, http.MethodGet, "/api/health", "", nil)
		require.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
	}
	w := env.do(t, http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("RateLimit-Remaining"))

	// Routes outside /api are not limited.
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/healthz", "", nil).Code)
}

func TestTokenChecks(t *testing.T) {
	env := newEnv(t)

	w := env.do(t, http.MethodGet, "/api/auth/me", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Access token required", decodeError(t, w).Error.Message)

	w = env.do(t, http.MethodGet, "/api/admin/stats", "garbage", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid token", decodeError(t, w).Error.Message)

	expired, _, err := auth.Issue(auth.Identity{ID: 1, Username: "admin", Role: users.RoleAdmin},
		testIssuer, testKey, time.Minute, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	w = env.do(t, http.MethodGet, "/api/admin/stats", expired, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Token expired", decodeError(t, w).Error.Message)

	w = env.do(t, http.MethodGet, "/api/admin/stats", env.token(t, "clerk"), nil)
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Insufficient permissions", decodeError(t, w).Error.Message)
}

func TestStudentReadsArePublic(t *testing.T) {
	env := newEnv(t)
	require.Equal(t, http.StatusCreated, env.register(t, nil, nil).Code)

	w := env.do(t, http.MethodGet, "/api/students", "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"first_name":"Ada"`)

	w = env.do(t, http.MethodGet, "/api/students/1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, env.sink.actions(), audit.ActionViewStudents)
	assert.Contains(t, env.sink.actions(), audit.ActionViewStudent)

	// Changes still need staff or admin.
	w = env.do(t, http.MethodPut, "/api/students/1", "", map[string]string{"classEnrolled": "Primary 2"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestFailedAuthCallsShareLoginLimit(t *testing.T) {
	env := newEnv(t)

	for i := 0; i < 5; i++ {
		w := env.do(t, http.MethodGet, "/api/auth/me", "", nil)
		require.Equal(t, http.StatusUnauthorized, w.Code, "call %d", i+1)
	}
	w := env.do(t, http.MethodPost, "/api/auth/login", "", login("admin", adminPass))
	require.Equal(t, http.StatusTooManyRequests, w.Code)
}

var pngBytes = func() []byte {
	var buf bytes.Buffer
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}()

func registrationForm(t *testing.T, fields map[string]string, photo []byte) (*bytes.Buffer, string) {
	t.Helper()
	base := map[string]string{
		"firstName":       "Ada",
		"lastName":        "Obi",
		"sex":             "Female",
		"dateOfBirth":     "2015-03-14",
		"religion":        "Christianity",
		"classEnrolled":   "Primary 1",
		"parentName":      "Ngozi Obi",
		"parentPhone":     "08012345678",
		"homeAddress":     "1 Marina Road",
		"state":           "Lagos",
		"lga":             "Ikeja",
		"consentGiven":    "true",
		"parentSignature": "N. Obi",
	}
	for k, v := range fields {
		if v == "" {
			delete(base, k)
			continue
		}
		base[k] = v
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range base {
		require.NoError(t, mw.WriteField(k, v))
	}
	if photo != nil {
		fw, err := mw.CreateFormFile("photo", "face.png")
		require.NoError(t, err)
		_, err = fw.Write(photo)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func (e *testEnv) register(t *testing.T, fields map[string]string, photo []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := registrationForm(t, fields, photo)
	req := httptest.NewRequest(http.MethodPost, "/api/students/register", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestRegisterStudent(t *testing.T) {
	env := newEnv(t)

	w := env.register(t, nil, pngBytes)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp struct {
		StudentID int64 `json:"studentId"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.StudentID)

	s, err := env.students.Get(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, s.PhotoPath)
	assert.True(t, strings.HasSuffix(*s.PhotoPath, ".png"))
	assert.Equal(t, students.DefaultSession(time.Now()), s.AcademicSession)
	assert.Contains(t, env.sink.actions(), audit.ActionRegisterStudent)
}

func TestRegisterStudentValidation(t *testing.T) {
	env := newEnv(t)

	tests := []struct {
		name   string
		fields map[string]string
		photo  []byte
		field  string
	}{
		{"bad phone", map[string]string{"parentPhone": "12345"}, nil, "parentPhone"},
		{"no consent", map[string]string{"consentGiven": "false"}, nil, "consentGiven"},
		{"blank first name", map[string]string{"firstName": "   "}, nil, "firstName"},
		{"bad date", map[string]string{"dateOfBirth": "14/03/2015"}, nil, "dateOfBirth"},
		{"photo not an image", nil, []byte("%PDF-1.4 not a photo"), "photo"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.register(t, tt.fields, tt.photo)
			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.Contains(t, decodeError(t, w).Error.Fields, tt.field)
		})
	}
	list, _ := env.students.List(context.Background(), students.Filter{})
	assert.Empty(t, list)
}

func TestSoftDeletedStudentIsHidden(t *testing.T) {
	env := newEnv(t)
	require.Equal(t, http.StatusCreated, env.register(t, nil, nil).Code)
	admin, clerk := env.token(t, "admin"), env.token(t, "clerk")

	require.Equal(t, http.StatusForbidden, env.do(t, http.MethodDelete, "/api/students/1", clerk, nil).Code)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodDelete, "/api/students/1", admin, nil).Code)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/students/1", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodDelete, "/api/students/1", admin, nil).Code)

	w := env.do(t, http.MethodGet, "/api/students", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestUpdateStudent(t *testing.T) {
	env := newEnv(t)
	require.Equal(t, http.StatusCreated, env.register(t, nil, nil).Code)
	clerk := env.token(t, "clerk")

	w := env.do(t, http.MethodPut, "/api/students/1", clerk, map[string]string{"classEnrolled": "Primary 2"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"class_enrolled":"Primary 2"`)

	w = env.do(t, http.MethodPut, "/api/students/1", clerk, map[string]string{"parentPhone": "555"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeError(t, w).Error.Fields, "parentPhone")

	w = env.do(t, http.MethodPut, "/api/students/1", clerk, map[string]string{})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUserManagement(t *testing.T) {
	env := newEnv(t)
	admin := env.token(t, "admin")
	adminUser, _ := env.users.GetByUsername(context.Background(), "admin")

	w := env.do(t, http.MethodPost, "/api/users", admin, map[string]string{"username": "bursar", "password": "weak", "role": "staff"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeError(t, w).Error.Fields, "password")

	w = env.do(t, http.MethodPost, "/api/users", admin, map[string]string{"username": "bursar", "password": "Bursar123", "role": "staff"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), "Bursar123")

	w = env.do(t, http.MethodPost, "/api/users", admin, map[string]string{"username": "bursar", "password": "Bursar123", "role": "staff"})
	require.Equal(t, http.StatusConflict, w.Code)

	self := "/api/users/" + strconv.FormatInt(adminUser.ID, 10)
	w = env.do(t, http.MethodDelete, self, admin, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Cannot delete your own account", decodeError(t, w).Error.Message)

	w = env.do(t, http.MethodPut, self+"/password", admin, map[string]string{"password": "NewPass123"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Use /change-password to change your own password", decodeError(t, w).Error.Message)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodDelete, "/api/users/999", admin, nil).Code)

	w = env.do(t, http.MethodGet, "/api/users", env.token(t, "clerk"), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestChangeOwnPassword(t *testing.T) {
	env := newEnv(t)
	admin := env.token(t, "admin")

	w := env.do(t, http.MethodPut, "/api/users/change-password", env.token(t, "clerk"),
		map[string]string{"currentPassword": staffPass, "newPassword": "Changed123"})
	require.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodPut, "/api/users/change-password", admin,
		map[string]string{"currentPassword": "wrong", "newPassword": "Changed123"})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodPut, "/api/users/change-password", admin,
		map[string]string{"currentPassword": adminPass, "newPassword": "Changed123"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodPost, "/api/auth/login", "", login("admin", "Changed123"))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminQueries(t *testing.T) {
	env := newEnv(t)
	admin := env.token(t, "admin")

	w := env.do(t, http.MethodGet, "/api/admin/stats", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total":0`)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/admin/audit-logs?limit=abc", admin, nil).Code)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/admin/audit-logs?limit=5&offset=10&action=LOGIN_ATTEMPT&userId=2", admin, nil).Code)
	assert.Equal(t, audit.Query{Limit: 5, Offset: 10, Action: audit.ActionLoginAttempt, UserID: 2}, env.audit.lastQuery)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/admin/security-alerts?hours=0", admin, nil).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/admin/security-alerts", admin, nil).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/admin/recent-activity", admin, nil).Code)

	assert.Contains(t, env.sink.actions(), audit.ActionViewStats)
	assert.Contains(t, env.sink.actions(), audit.ActionViewAuditLogs)
}

func TestExports(t *testing.T) {
	env := newEnv(t)
	require.Equal(t, http.StatusCreated, env.register(t, nil, pngBytes).Code)
	admin := env.token(t, "admin")

	w := env.do(t, http.MethodGet, "/api/admin/export/excel", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "students.xlsx")
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("PK")))

	w = env.do(t, http.MethodGet, "/api/admin/export/pdf/1", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")))

	w = env.do(t, http.MethodGet, "/api/admin/export/pdf/42", admin, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
}

func TestUnknownRoute(t *testing.T) {
	env := newEnv(t)
	w := env.do(t, http.MethodGet, "/nope", "", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", decodeError(t, w).Error.Code)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, w.Header().Get(httpmiddleware.RequestIDHeader))
}
