package dingtalk

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/custodia-labs/dingsync/internal/core/domain"
	"github.com/custodia-labs/dingsync/internal/core/ports/driven"
)

// Ensure OAuthHandler implements the interface.
var _ driven.OAuthProvider = (*OAuthHandler)(nil)

// OAuth paths and scopes.
const (
	webAuthPath    = "/oauth2/auth"
	scanAuthPath   = "/connect/qrconnect"
	userTokenPath  = "/v1.0/oauth2/userAccessToken"
	userMePath     = "/v1.0/contact/users/me"
	signedCodePath = "/sns/getuserinfo_bycode"

	webScope  = "openid"
	scanScope = "snsapi_login"

	accessTokenHeader = "x-acs-dingtalk-access-token"
)

// OAuthHandler implements end-user login for one app.
type OAuthHandler struct {
	client *Client
}

// NewOAuthHandler creates a handler sharing the client's credentials,
// transport and rate limiter.
func NewOAuthHandler(client *Client) *OAuthHandler {
	return &OAuthHandler{client: client}
}

// oauthConfig returns the web login configuration. It only builds auth
// URLs; ExchangeCode does the token exchange.
func (h *OAuthHandler) oauthConfig(redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     h.client.appKey,
		ClientSecret: h.client.appSecret,
		RedirectURL:  redirectURI,
		Scopes:       []string{webScope},
		Endpoint: oauth2.Endpoint{
			AuthURL: h.client.cfg.LoginBaseURL + webAuthPath,
		},
	}
}

// AuthURL builds the URL a user visits to log in.
func (h *OAuthHandler) AuthURL(kind driven.OAuthKind, redirectURI, state string) (string, error) {
	if redirectURI == "" {
		return "", domain.Preconditionf("redirect uri is required")
	}

	switch kind {
	case driven.OAuthWeb, "":
		return h.oauthConfig(redirectURI).AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "consent")), nil
	case driven.OAuthScan:
		params := url.Values{
			"appid":         {h.client.appKey},
			"response_type": {"code"},
			"scope":         {scanScope},
			"state":         {state},
			"redirect_uri":  {redirectURI},
		}
		return h.client.cfg.BaseURL + scanAuthPath + "?" + params.Encode(), nil
	default:
		return "", fmt.Errorf("%w: unknown login kind %q", domain.ErrInvalidInput, kind)
	}
}

type userTokenRequest struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
	Code         string `json:"code"`
	GrantType    string `json:"grantType"`
}

type userTokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpireIn     int64  `json:"expireIn"`
	CorpID       string `json:"corpId"`
}

// ExchangeCode exchanges an authorization code for a user access token.
// The token endpoint takes a camelCase JSON body rather than the form
// oauth2.Config.Exchange posts, so the call goes through callAPI.
// The corp id is available through Token.Extra("corpId").
func (h *OAuthHandler) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	if strings.TrimSpace(code) == "" {
		return nil, domain.Preconditionf("authorization code is required")
	}

	req := userTokenRequest{
		ClientID:     h.client.appKey,
		ClientSecret: h.client.appSecret,
		Code:         code,
		GrantType:    "authorization_code",
	}
	var resp userTokenResponse
	if err := h.client.callAPI(ctx, "user_access_token", http.MethodPost, userTokenPath, nil, req, &resp); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("user_access_token: empty access token")
	}

	token := &oauth2.Token{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenType:    "Bearer",
	}
	if resp.ExpireIn > 0 {
		token.Expiry = time.Now().Add(time.Duration(resp.ExpireIn) * time.Second)
	}
	return token.WithExtra(map[string]any{"corpId": resp.CorpID}), nil
}

type userMeResponse struct {
	Nick      string `json:"nick"`
	UnionID   string `json:"unionId"`
	OpenID    string `json:"openId"`
	Mobile    string `json:"mobile"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatarUrl"`
}

// UserProfile fetches the profile of the user owning accessToken.
func (h *OAuthHandler) UserProfile(ctx context.Context, accessToken string) (*domain.RemoteProfile, error) {
	if accessToken == "" {
		return nil, domain.Preconditionf("access token is required")
	}

	header := http.Header{}
	header.Set(accessTokenHeader, accessToken)
	var resp userMeResponse
	if err := h.client.callAPI(ctx, "user_me", http.MethodGet, userMePath, header, nil, &resp); err != nil {
		return nil, err
	}
	return &domain.RemoteProfile{
		Nick:    resp.Nick,
		UnionID: resp.UnionID,
		OpenID:  resp.OpenID,
		Mobile:  resp.Mobile,
		Email:   resp.Email,
		Avatar:  resp.AvatarURL,
	}, nil
}

type signedCodeRequest struct {
	TmpAuthCode string `json:"tmp_auth_code"`
}

type signedCodeResponse struct {
	UserInfo struct {
		Nick    string `json:"nick"`
		UnionID string `json:"unionid"`
		OpenID  string `json:"openid"`
	} `json:"user_info"`
}

// ExchangeCodeSigned resolves a temporary code through the legacy endpoint
// authenticated by an HMAC signature instead of an access token.
func (h *OAuthHandler) ExchangeCodeSigned(ctx context.Context, code string) (*domain.RemoteProfile, error) {
	if strings.TrimSpace(code) == "" {
		return nil, domain.Preconditionf("authorization code is required")
	}

	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	query := url.Values{
		"accessKey": {h.client.appKey},
		"timestamp": {timestamp},
		"signature": {Sign(h.client.appSecret, timestamp)},
	}
	var resp signedCodeResponse
	err := h.client.call(ctx, "getuserinfo_bycode", http.MethodPost, signedCodePath, query,
		signedCodeRequest{TmpAuthCode: code}, &resp)
	if err != nil {
		return nil, err
	}
	return &domain.RemoteProfile{
		Nick:    resp.UserInfo.Nick,
		UnionID: resp.UserInfo.UnionID,
		OpenID:  resp.UserInfo.OpenID,
	}, nil
}

// Sign returns base64(HMAC-SHA256(secret, timestamp)). The caller URL-escapes
// it when placing it in a query string.
func Sign(secret, timestamp string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
