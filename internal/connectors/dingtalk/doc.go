// Package dingtalk is the remote client for the DingTalk open platform.
//
// This package provides:
//   - Client, an authenticated client for the organisation directory and
//     work notifications, caching the app access token in a driven.TokenStore
//   - OAuthHandler for end-user login (web consent, QR scan, legacy signed
//     code exchange)
//   - Rate limiting in front of every remote call
//   - Error handling for both API generations
//
// # Envelopes
//
// The legacy API at oapi.dingtalk.com answers HTTP 200 with an
// {"errcode", "errmsg"} envelope. A non-zero errcode becomes a
// *domain.RemoteProtocolError carrying errmsg verbatim. The v1.0 API at
// api.dingtalk.com uses HTTP status codes with a {"code", "message"} body.
//
// # Transport
//
// Every call opens a fresh connection. Certificate verification is off
// unless Config.VerifyTLS is set; the CLI logs a warning when it is off.
package dingtalk
