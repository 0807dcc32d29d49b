package routeguard_test

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"testing"

	"github.com/goliatone/go-router"
	session "github.com/rentora/go-session"
	"github.com/rentora/go-session/middleware/routeguard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockContext mocks router.Context
type MockContext struct {
	mock.Mock
	NextCalled bool
}

func (m *MockContext) Next() error {
	m.NextCalled = true
	return nil
}

func (m *MockContext) Context() context.Context {
	args := m.Called()
	c, ok := args.Get(0).(context.Context)
	if !ok {
		panic("arg needs to be context.Context")
	}
	return c
}

func (m *MockContext) SetContext(ctx context.Context) {
	m.Called(ctx)
}

func (m *MockContext) Path() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) Method() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) Body() []byte {
	args := m.Called()
	return args.Get(0).([]byte)
}

func (m *MockContext) Status(code int) router.Context {
	m.Called(code)
	return m
}

func (m *MockContext) SendString(s string) error {
	args := m.Called(s)
	return args.Error(0)
}

func (m *MockContext) Send(b []byte) error {
	args := m.Called(b)
	return args.Error(0)
}

func (m *MockContext) JSON(code int, val any) error {
	args := m.Called(code, val)
	return args.Error(0)
}

func (m *MockContext) NoContent(code int) error {
	args := m.Called(code)
	return args.Error(0)
}

func (m *MockContext) Render(name string, bind any, layout ...string) error {
	if len(layout) > 0 {
		args := m.Called(name, bind, layout[0])
		return args.Error(0)
	}
	args := m.Called(name, bind)
	return args.Error(0)
}

func (m *MockContext) Redirect(path string, status ...int) error {
	if len(status) > 0 {
		args := m.Called(path, status)
		return args.Error(0)
	}
	args := m.Called(path)
	return args.Error(0)
}

func (m *MockContext) RedirectToRoute(name string, data router.ViewContext, status ...int) error {
	if len(status) > 0 {
		args := m.Called(name, data, status[0])
		return args.Error(0)
	}
	args := m.Called(name, data)
	return args.Error(0)
}

func (m *MockContext) RedirectBack(fallback string, status ...int) error {
	if len(status) > 0 {
		args := m.Called(fallback, status)
		return args.Error(0)
	}
	args := m.Called(fallback)
	return args.Error(0)
}

func (m *MockContext) SetHeader(key, val string) router.Context {
	m.Called(key, val)
	return m
}

func (m *MockContext) Header(key string) string {
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) Get(key string, defaultValue any) any {
	args := m.Called(key, defaultValue)
	return args.Get(0)
}

func (m *MockContext) GetBool(key string, defaultValue bool) bool {
	args := m.Called(key, defaultValue)
	return args.Bool(0)
}

func (m *MockContext) GetInt(key string, def int) int {
	args := m.Called(key, def)
	return args.Int(0)
}

func (m *MockContext) Set(key string, val any) {
	m.Called(key, val)
}

func (m *MockContext) Bind(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) BindJSON(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) BindXML(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) BindQuery(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) CookieParser(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) Cookie(cookie *router.Cookie) {
	m.Called(cookie)
}

func (m *MockContext) Cookies(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		args := m.Called(key, defaultValue[0])
		return args.String(0)
	}
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) Param(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		args := m.Called(key, defaultValue[0])
		return args.String(0)
	}
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) ParamsInt(key string, defaultValue int) int {
	args := m.Called(key, defaultValue)
	return args.Int(0)
}

func (m *MockContext) Query(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		args := m.Called(key, defaultValue[0])
		return args.String(0)
	}
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) QueryValues(name string) []string {
	args := m.Called(name)
	return args.Get(0).([]string)
}

func (m *MockContext) QueryInt(key string, defaultValue int) int {
	args := m.Called(key, defaultValue)
	return args.Int(0)
}

func (m *MockContext) Queries() map[string]string {
	args := m.Called()
	return args.Get(0).(map[string]string)
}

func (m *MockContext) GetString(key string, defaultValue string) string {
	args := m.Called(key, defaultValue)
	return args.String(0)
}

func (m *MockContext) Locals(key any, value ...any) any {
	if len(value) > 0 {
		m.Called(key, value[0])
		return nil
	}
	args := m.Called(key)
	return args.Get(0)
}

func (m *MockContext) LocalsMerge(key any, value map[string]any) map[string]any {
	args := m.Called(key, value)
	if v, ok := args.Get(0).(map[string]any); ok {
		return v
	}
	return nil
}

func (m *MockContext) FormFile(key string) (*multipart.FileHeader, error) {
	args := m.Called(key)
	fh, _ := args.Get(0).(*multipart.FileHeader)
	return fh, args.Error(1)
}

func (m *MockContext) FormValue(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		args := m.Called(key, defaultValue[0])
		return args.String(0)
	}
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) IP() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) SendStatus(code int) error {
	args := m.Called(code)
	return args.Error(0)
}

func (m *MockContext) SendStream(r io.Reader) error {
	args := m.Called(r)
	return args.Error(0)
}

func (m *MockContext) RouteName() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) RouteParams() map[string]string {
	args := m.Called()
	if v, ok := args.Get(0).(map[string]string); ok {
		return v
	}
	return nil
}

func (m *MockContext) OriginalURL() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) OnNext(callback func() error) {
	m.Called(callback)
}

func (m *MockContext) Referer() string {
	args := m.Called()
	return args.String(0)
}

func stateProvider(state session.State) routeguard.StateProvider {
	return func() session.State { return state }
}

func runGuard(cfg routeguard.Config, ctx router.Context) error {
	mw := routeguard.New(cfg)
	handler := mw(func(router.Context) error { return nil })
	return handler(ctx)
}

func customerState() session.State {
	return session.State{
		Status: session.StatusAuthenticated,
		Principal: &session.Principal{
			ID:   "usr-1",
			Role: session.RoleCustomer,
		},
		AccessToken: "token",
	}
}

func TestGuardAllowsPermittedNavigation(t *testing.T) {
	mockCtx := new(MockContext)
	mockCtx.On("OriginalURL").Return("/listings/42")
	mockCtx.On("Locals", "session", mock.Anything).Return(nil)

	err := runGuard(routeguard.Config{
		State: stateProvider(customerState()),
	}, mockCtx)

	require.NoError(t, err)
	assert.True(t, mockCtx.NextCalled)
	mockCtx.AssertExpectations(t)
}

func TestGuardRedirectsAnonymousVisitor(t *testing.T) {
	mockCtx := new(MockContext)
	mockCtx.On("OriginalURL").Return("/admin/dashboard")
	mockCtx.On("Method").Return("GET")
	mockCtx.On("Redirect", "/admin/login", []int{http.StatusFound}).Return(nil)

	err := runGuard(routeguard.Config{
		State: stateProvider(session.State{Status: session.StatusUnauthenticated}),
	}, mockCtx)

	require.NoError(t, err)
	assert.False(t, mockCtx.NextCalled)
	mockCtx.AssertExpectations(t)
}

func TestGuardRedirectsLoggedInUserOffLoginPage(t *testing.T) {
	mockCtx := new(MockContext)
	mockCtx.On("OriginalURL").Return("/login")
	mockCtx.On("Method").Return("POST")
	mockCtx.On("Redirect", "/user", []int{http.StatusSeeOther}).Return(nil)

	err := runGuard(routeguard.Config{
		State: stateProvider(customerState()),
	}, mockCtx)

	require.NoError(t, err)
	mockCtx.AssertExpectations(t)
}

func TestGuardStripsQueryBeforeMatching(t *testing.T) {
	mockCtx := new(MockContext)
	mockCtx.On("OriginalURL").Return("/admin/dashboard?tab=listings")
	mockCtx.On("Method").Return("GET")
	mockCtx.On("Redirect", "/admin/login", []int{http.StatusFound}).Return(nil)

	err := runGuard(routeguard.Config{
		State: stateProvider(session.State{Status: session.StatusUnauthenticated}),
	}, mockCtx)

	require.NoError(t, err)
	mockCtx.AssertExpectations(t)
}

func TestGuardDefersWhileAuthenticating(t *testing.T) {
	mockCtx := new(MockContext)
	mockCtx.On("OriginalURL").Return("/user/bookings")
	mockCtx.On("SetHeader", "Retry-After", "1").Return(nil)
	mockCtx.On("Status", http.StatusServiceUnavailable).Return(nil)
	mockCtx.On("SendString", mock.Anything).Return(nil)

	err := runGuard(routeguard.Config{
		State: stateProvider(session.State{Status: session.StatusAuthenticating}),
	}, mockCtx)

	require.NoError(t, err)
	assert.False(t, mockCtx.NextCalled)
	mockCtx.AssertExpectations(t)
}

func TestGuardEnrichesRequestContext(t *testing.T) {
	mockCtx := new(MockContext)
	mockCtx.On("OriginalURL").Return("/user/bookings")
	mockCtx.On("Locals", "session", mock.Anything).Return(nil)
	mockCtx.On("Context").Return(context.Background())
	mockCtx.On("SetContext", mock.MatchedBy(func(ctx context.Context) bool {
		principal, ok := session.PrincipalFromContext(ctx)
		return ok && principal.ID == "usr-1"
	})).Return()

	err := runGuard(routeguard.Config{
		State:         stateProvider(customerState()),
		EnrichContext: true,
	}, mockCtx)

	require.NoError(t, err)
	assert.True(t, mockCtx.NextCalled)
	mockCtx.AssertExpectations(t)
}

func TestGuardFilterSkipsEvaluation(t *testing.T) {
	mockCtx := new(MockContext)

	err := runGuard(routeguard.Config{
		State:  stateProvider(session.State{Status: session.StatusUnauthenticated}),
		Filter: func(router.Context) bool { return true },
	}, mockCtx)

	require.NoError(t, err)
	assert.True(t, mockCtx.NextCalled)
}

func TestGuardRequiresStateProvider(t *testing.T) {
	assert.Panics(t, func() {
		routeguard.GetDefaultConfig(routeguard.Config{})
	})
}
