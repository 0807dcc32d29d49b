// Package session manages the client side of authentication for the Rentora
// property portal: credential persistence, token inspection, the session
// state machine, the authenticated request gateway, and role-aware route
// guarding.
//
// Session lifecycle:
//   - A Manager owns the single in-memory session state (unauthenticated,
//     authenticating, authenticated, expired) and is the only component
//     allowed to mutate it. Every async transition carries the generation
//     that was current when it started; completions whose generation no
//     longer matches are discarded, so slow network responses cannot
//     resurrect or destroy a session the user has since changed.
//   - Credentials persist as one atomic CredentialBundle through a
//     CredentialStore. Stores emit change events so other processes sharing
//     the same store (other portal windows) can resynchronize.
//
// Request plumbing:
//   - Gateway wraps every outbound call that needs a principal: it attaches
//     the bearer token, raises expiry into the Manager on 401/403, and
//     normalizes response handling (204, idempotent DELETE, structured error
//     payloads). It never retries after an auth rejection.
//
// Navigation:
//   - RoutePolicy maps roles to area prefixes, login entry points, and
//     landing paths. Guard evaluates every navigation intent against the
//     current session state and yields allow/defer/redirect verdicts;
//     middleware/routeguard adapts the verdicts to go-router handlers.
package session
