/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package relay

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"html/template"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/rivo/uniseg"
	"golang.org/x/net/idna"

	"github.com/hookrelay/hookrelay/httpserver/middleware"
	"github.com/hookrelay/hookrelay/log"
	"github.com/hookrelay/hookrelay/restapi"
)

// Error codes of the relay API.
const (
	ErrCodeContentRequired      = "contentRequired"
	ErrCodeWebhookNotConfigured = "webhookNotConfigured"
	ErrCodeWebhookError         = "webhookError"
	ErrCodeWebhookUnavailable   = "webhookUnavailable"
	ErrCodeUpstreamError        = "upstreamError"
	ErrCodeUpstreamUnavailable  = "upstreamUnavailable"
	ErrCodeInvalidUpstreamPath  = "invalidUpstreamPath"
)

const (
	headerCache       = "X-Cache"
	maxErrorDetailLen = 500
	maxUsernameLen    = 80
)

var relayPage = template.Must(template.New("relay").Parse(`<!doctype html><meta charset="utf-8"><title>relay</title>
<body style="font-family:system-ui;padding:16px">
<div>{{.Message}}{{if .Detail}}<br>{{.Detail}}{{end}}</div>
{{if .AutoClose}}<script>setTimeout(()=>window.close(),1200)</script>{{end}}
</body>
`))

type relayPageData struct {
	Message   string
	Detail    string
	AutoClose bool
}

func respondHTML(rw http.ResponseWriter, statusCode int, data relayPageData, logger log.FieldLogger) {
	var buf bytes.Buffer
	if err := relayPage.Execute(&buf, data); err != nil {
		if logger != nil {
			logger.Error("error while rendering relay page", log.Error(err))
		}
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}
	rw.Header().Set("Content-Type", "text/html; charset=utf-8")
	rw.WriteHeader(statusCode)
	if _, err := buf.WriteTo(rw); err != nil && logger != nil {
		logger.Error("error while writing response body", log.Error(err))
	}
}

// Routes registers the relay endpoints in the router.
func (s *Service) Routes(router chi.Router) {
	router.Get("/ping", s.handlePing)
	router.With(s.rateLimit(s.cfg.RateLimit.Costs.Proxy, nil)).Get("/proxy/*", s.handleProxy)
	router.With(s.rateLimit(s.cfg.RateLimit.Costs.Relay, rejectWithHTML)).Get("/relay", s.handleRelay)
	router.With(s.rateLimit(s.cfg.RateLimit.Costs.Webhook, nil)).Post("/discord", s.handleDiscord)
}

func (s *Service) rateLimit(cost int, onReject middleware.RateLimitOnRejectFunc) func(http.Handler) http.Handler {
	return middleware.RateLimitWithOpts(s.limiter, ErrDomain, middleware.RateLimitOpts{
		GetKey: func(r *http.Request) (string, bool, error) {
			return middleware.GetClientIP(r, s.cfg.TrustForwardedFor), false, nil
		},
		GetCost:  func(*http.Request) int { return cost },
		DryRun:   s.cfg.RateLimit.DryRun,
		OnReject: onReject,
	})
}

func rejectWithHTML(
	rw http.ResponseWriter, _ *http.Request, params middleware.RateLimitParams, _ http.Handler, logger log.FieldLogger,
) {
	if logger != nil {
		logger.Warn("too many requests", log.String(middleware.RateLimitLogFieldKey, params.Key))
	}
	rw.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(params.RetryAfter.Seconds()))))
	respondHTML(rw, params.ResponseStatusCode, relayPageData{Message: "Too many requests"}, logger)
}

func (s *Service) requestLogger(r *http.Request) log.FieldLogger {
	logger := middleware.GetLoggerFromContext(r.Context())
	if logger == nil {
		logger = s.logger
	}
	if key := middleware.GetRateLimitKeyFromContext(r.Context()); key != "" {
		logger = logger.With(log.String(middleware.RateLimitLogFieldKey, key))
	}
	return logger
}

func (s *Service) handlePing(rw http.ResponseWriter, r *http.Request) {
	restapi.RespondJSON(rw, map[string]bool{"ok": true}, s.requestLogger(r))
}

func (s *Service) handleProxy(rw http.ResponseWriter, r *http.Request) {
	logger := s.requestLogger(r)

	body, hit, err := s.fetcher.Fetch(r.Context(), chi.URLParam(r, "*"), r.URL.Query())
	if err != nil {
		var statusErr *UpstreamStatusError
		switch {
		case errors.As(err, &statusErr):
			apiErr := restapi.NewError(ErrDomain, ErrCodeUpstreamError, "Upstream responded with an error.").
				AddContext("status", statusErr.StatusCode)
			restapi.RespondError(rw, statusErr.StatusCode, apiErr, logger)
		case errors.Is(err, context.Canceled):
			logger.Warn("proxy request is canceled by client")
		case errors.Is(err, ErrInvalidUpstreamPath):
			restapi.RespondError(rw, http.StatusBadRequest,
				restapi.NewError(ErrDomain, ErrCodeInvalidUpstreamPath, "Invalid upstream path."), logger)
		default:
			logger.Error("upstream request failed", log.Error(err))
			restapi.RespondError(rw, http.StatusBadGateway,
				restapi.NewError(ErrDomain, ErrCodeUpstreamUnavailable, "Upstream is unavailable."), logger)
		}
		return
	}

	if hit {
		rw.Header().Set(headerCache, "HIT")
	} else {
		rw.Header().Set(headerCache, "MISS")
	}
	restapi.RespondCodeAndRawJSON(rw, http.StatusOK, body, logger)
}

// legacyProfileIDParam is sent by the existing profile scraping bookmarklet.
const legacyProfileIDParam = "roblox_id"

func (s *Service) handleRelay(rw http.ResponseWriter, r *http.Request) {
	logger := s.requestLogger(r)

	referer := r.Header.Get("Referer")
	if referer != "" && !s.isRefererAllowed(referer) {
		respondHTML(rw, http.StatusForbidden, relayPageData{Message: "Forbidden (bad referer)"}, logger)
		return
	}

	query := r.URL.Query()
	msg := query.Get("m")
	lang := query.Get("lang")
	code := query.Get("code")

	profileID := query.Get("profile_id")
	if profileID == "" {
		profileID = query.Get(legacyProfileIDParam)
	}
	if profileID != "" {
		code = s.profileCode(r.Context(), profileID, logger)
		if lang == "" {
			lang = "json"
		}
	}

	if code == "" && query.Has("code_b64") {
		decoded, err := decodeBase64Code(query.Get("code_b64"))
		if err != nil {
			respondHTML(rw, http.StatusBadRequest, relayPageData{Message: "Invalid code_b64"}, logger)
			return
		}
		code = decoded
	}

	if msg == "" && code == "" {
		respondHTML(rw, http.StatusBadRequest, relayPageData{Message: "Missing message or code"}, logger)
		return
	}
	if !s.sender.Configured() {
		logger.Error("webhook is not configured")
		respondHTML(rw, http.StatusInternalServerError, relayPageData{Message: "Webhook not configured"}, logger)
		return
	}

	payload := Payload{
		Content:  BuildContent(msg, code, lang),
		Username: relayUsername(query.Get("sender"), query.Get("site"), referer),
	}
	if err := s.sender.Send(r.Context(), payload); err != nil {
		var webhookErr *WebhookError
		if errors.As(err, &webhookErr) {
			logger.Warn("webhook rejected relayed message", log.Int("status", webhookErr.StatusCode))
			respondHTML(rw, http.StatusBadGateway, relayPageData{
				Message: "Discord error: " + strconv.Itoa(webhookErr.StatusCode),
				Detail:  cutText(webhookErr.Body, maxErrorDetailLen),
			}, logger)
			return
		}
		logger.Error("webhook delivery failed", log.Error(err))
		respondHTML(rw, http.StatusBadGateway, relayPageData{Message: "Discord is unavailable"}, logger)
		return
	}

	respondHTML(rw, http.StatusOK, relayPageData{Message: "Sent ✅", AutoClose: true}, logger)
}

type discordRequest struct {
	Content string          `json:"content"`
	Code    string          `json:"code"`
	Lang    string          `json:"lang"`
	Embeds  json.RawMessage `json:"embeds"`
}

func (s *Service) handleDiscord(rw http.ResponseWriter, r *http.Request) {
	logger := s.requestLogger(r)

	var req discordRequest
	if err := restapi.DecodeRequestJSONWithOpts(r, &req, restapi.DecodeOpts{
		AllowEmptyBody:       true,
		SkipContentTypeCheck: true,
	}); err != nil {
		restapi.RespondMalformedRequestOrInternalError(rw, ErrDomain, err, logger)
		return
	}

	hasEmbeds := hasJSONValue(req.Embeds)
	if req.Content == "" && req.Code == "" && !hasEmbeds {
		restapi.RespondError(rw, http.StatusBadRequest,
			restapi.NewError(ErrDomain, ErrCodeContentRequired, "Content, code or embeds is required."), logger)
		return
	}
	if !s.sender.Configured() {
		logger.Error("webhook is not configured")
		restapi.RespondError(rw, http.StatusInternalServerError,
			restapi.NewError(ErrDomain, ErrCodeWebhookNotConfigured, "Webhook is not configured."), logger)
		return
	}

	payload := Payload{Content: BuildContent(req.Content, req.Code, req.Lang)}
	if hasEmbeds {
		payload.Embeds = req.Embeds
	}
	if err := s.sender.Send(r.Context(), payload); err != nil {
		var webhookErr *WebhookError
		if errors.As(err, &webhookErr) {
			apiErr := restapi.NewError(ErrDomain, ErrCodeWebhookError, "Webhook responded with an error.").
				AddContext("status", webhookErr.StatusCode).
				AddContext("detail", webhookErr.Body)
			restapi.RespondError(rw, http.StatusBadGateway, apiErr, logger)
			return
		}
		logger.Error("webhook delivery failed", log.Error(err))
		restapi.RespondError(rw, http.StatusBadGateway,
			restapi.NewError(ErrDomain, ErrCodeWebhookUnavailable, "Webhook is unavailable."), logger)
		return
	}

	rw.WriteHeader(http.StatusNoContent)
}

func (s *Service) isRefererAllowed(referer string) bool {
	if len(s.cfg.AllowedReferers) == 0 {
		return true
	}
	for _, prefix := range s.cfg.AllowedReferers {
		if strings.HasPrefix(referer, prefix) {
			return true
		}
	}
	return false
}

// profileCode returns the pretty-printed profile JSON or a JSON object describing the failure.
func (s *Service) profileCode(ctx context.Context, profileID string, logger log.FieldLogger) string {
	body, _, err := s.fetcher.FetchProfile(ctx, profileID)
	if err != nil {
		var failure interface{}
		var statusErr *UpstreamStatusError
		if errors.As(err, &statusErr) {
			failure = map[string]interface{}{"error": "Failed to fetch from upstream", "status": statusErr.StatusCode}
		} else {
			logger.Warn("profile fetching failed", log.String("profile_id", profileID), log.Error(err))
			failure = map[string]interface{}{"error": err.Error()}
		}
		data, _ := json.MarshalIndent(failure, "", "  ")
		return string(data)
	}
	var buf bytes.Buffer
	if err = json.Indent(&buf, body, "", "  "); err != nil {
		return string(body)
	}
	return buf.String()
}

var base64Encodings = []*base64.Encoding{
	base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding,
}

// decodeBase64Code accepts standard and URL-safe base64, padded or not.
// Spaces are treated as '+' that was not escaped in the query string.
func decodeBase64Code(encoded string) (string, error) {
	encoded = strings.ReplaceAll(strings.TrimSpace(encoded), " ", "+")
	var err error
	for _, enc := range base64Encodings {
		var decoded []byte
		if decoded, err = enc.DecodeString(encoded); err == nil {
			return strings.ToValidUTF8(string(decoded), string(utf8.RuneError)), nil
		}
	}
	return "", err
}

func relayUsername(sender, site, referer string) string {
	if sender == "" {
		return ""
	}
	if site == "" {
		site = refererHost(referer)
	}
	if site == "" {
		return cutText(sender, maxUsernameLen)
	}
	return cutText(sender+" (from "+site+")", maxUsernameLen)
}

func refererHost(referer string) string {
	if referer == "" {
		return ""
	}
	u, err := url.Parse(referer)
	if err != nil {
		return ""
	}
	host := strings.TrimPrefix(u.Hostname(), "www.")
	if unicodeHost, err := idna.ToUnicode(host); err == nil {
		return unicodeHost
	}
	return host
}

func hasJSONValue(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) != 0 && !bytes.Equal(trimmed, []byte("null"))
}

// cutText returns at most n grapheme clusters of s.
func cutText(s string, n int) string {
	if uniseg.GraphemeClusterCount(s) <= n {
		return s
	}
	end := 0
	gr := uniseg.NewGraphemes(s)
	for i := 0; i < n && gr.Next(); i++ {
		_, end = gr.Positions()
	}
	return s[:end]
}
