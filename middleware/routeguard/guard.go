package routeguard

import (
	"net/http"
	"strings"

	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	session "github.com/rentora/go-session"
)

// StateProvider returns the session state a navigation decision is based on.
// Usually this is Manager.CurrentState.
type StateProvider func() session.State

type Config struct {
	// Filter skips the guard entirely for matching requests, e.g. static assets.
	Filter func(router.Context) bool

	// State supplies the current session snapshot. Required.
	State StateProvider

	// Policy maps paths and roles to navigation verdicts. Defaults to
	// session.DefaultRoutePolicy().
	Policy session.RoutePolicy

	// ContextKey is the router locals key the session state is stored under.
	ContextKey string

	Logger session.Logger

	// SuccessHandler runs when the request is allowed through.
	SuccessHandler router.HandlerFunc

	// DeferHandler runs while the session is still resolving. The default
	// answers 503 with a Retry-After hint so clients poll instead of caching
	// a redirect.
	DeferHandler router.HandlerFunc

	// RedirectHandler performs the redirect for VerdictRedirect decisions.
	RedirectHandler func(ctx router.Context, target string) error

	// EnrichContext propagates the principal into the request's standard
	// context so handlers can use session.PrincipalFromContext.
	EnrichContext bool
}

func New(config ...Config) router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		cfg := GetDefaultConfig(config...)
		return func(ctx router.Context) error {
			if cfg.Filter != nil && cfg.Filter(ctx) {
				return ctx.Next()
			}

			state := cfg.State()
			path := requestPath(ctx)
			decision := cfg.Policy.Evaluate(state, path)

			switch decision.Verdict {
			case session.VerdictDefer:
				cfg.Logger.Debug("route guard deferring %s while session resolves", path)
				return cfg.DeferHandler(ctx)

			case session.VerdictRedirect:
				cfg.Logger.Info("route guard redirect %s -> %s %s",
					path, decision.Target, print.MaybePrettyJSON(map[string]any{
						"status": string(state.Status),
						"role":   string(state.Role()),
					}))
				return cfg.RedirectHandler(ctx, decision.Target)
			}

			ctx.Locals(cfg.ContextKey, state)

			if cfg.EnrichContext && state.Principal != nil {
				stdCtx := session.WithState(ctx.Context(), state)
				stdCtx = session.WithPrincipal(stdCtx, state.Principal)
				ctx.SetContext(stdCtx)
			}

			return cfg.SuccessHandler(ctx)
		}
	}
}

func GetDefaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.State == nil {
		panic("SESSION: route guard configuration: State provider is required.")
	}

	if len(cfg.Policy.Areas) == 0 {
		cfg.Policy = session.DefaultRoutePolicy()
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = "session"
	}

	if cfg.Logger == nil {
		cfg.Logger = session.DefaultLogger()
	}

	if cfg.SuccessHandler == nil {
		cfg.SuccessHandler = func(ctx router.Context) error {
			return ctx.Next()
		}
	}

	if cfg.DeferHandler == nil {
		cfg.DeferHandler = func(ctx router.Context) error {
			ctx.SetHeader("Retry-After", "1")
			return ctx.Status(http.StatusServiceUnavailable).SendString("session check in progress")
		}
	}

	if cfg.RedirectHandler == nil {
		cfg.RedirectHandler = func(ctx router.Context, target string) error {
			statusCode := http.StatusSeeOther
			if ctx.Method() == string(router.GET) {
				statusCode = http.StatusFound
			}
			return ctx.Redirect(target, statusCode)
		}
	}

	return cfg
}

// requestPath strips the query string so policy matching only sees the path.
func requestPath(ctx router.Context) string {
	raw := ctx.OriginalURL()
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[:i]
	}
	if raw == "" {
		return "/"
	}
	return raw
}
