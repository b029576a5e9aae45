package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"support-agent/internal/domain"
	"support-agent/internal/usecase"
)

const (
	headerCorrelationID = "X-Correlation-Id"
	headerSessionID     = "X-Session-Id"

	errorNotFound         = "NOT_FOUND"
	errorMethodNotAllowed = "METHOD_NOT_ALLOWED"
)

type ChatUseCase interface {
	Chat(ctx context.Context, in usecase.ChatInput) (usecase.ChatOutput, error)
	Reset(ctx context.Context, sessionID string) error
}

type AnalyzeUseCase interface {
	Analyze(ctx context.Context) (usecase.AnalyzeOutput, error)
}

type Handler struct {
	chat     ChatUseCase
	analyzer AnalyzeUseCase
}

type chatRequest struct {
	Message   string `json:"message"`
	Role      string `json:"role"`
	SessionID string `json:"sessionId"`
}

type chatResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"sessionId"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type analyzeResponse struct {
	Message         string               `json:"message"`
	AlertsTriggered []domain.AlertRecord `json:"alertsTriggered"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

func NewHandler(chat ChatUseCase, analyzer AnalyzeUseCase) (*Handler, error) {
	if chat == nil {
		return nil, errors.New("handler: chat use case must not be nil")
	}
	if analyzer == nil {
		return nil, errors.New("handler: analyze use case must not be nil")
	}
	return &Handler{chat: chat, analyzer: analyzer}, nil
}

// Handle routes API Gateway proxy requests. Errors are always rendered into
// the response; the returned error is reserved for the Lambda runtime.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := header(req.Headers, headerCorrelationID)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	headers := map[string]string{
		"Content-Type":      "application/json",
		headerCorrelationID: correlationID,
	}

	path := "/" + strings.Trim(req.Path, "/")
	var handle func(context.Context, events.APIGatewayProxyRequest, map[string]string) (int, any)
	switch path {
	case "/chat":
		handle = h.handleChat
	case "/reset":
		handle = h.handleReset
	case "/analyze":
		handle = h.handleAnalyze
	default:
		return respond(http.StatusNotFound, headers, errorResponse{Error: errorNotFound}), nil
	}
	if req.HTTPMethod != http.MethodPost {
		headers["Allow"] = http.MethodPost
		return respond(http.StatusMethodNotAllowed, headers, errorResponse{Error: errorMethodNotAllowed}), nil
	}

	status, body := handle(ctx, req, headers)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "path", path, "correlation_id", correlationID, "status", status)
	} else {
		slog.Info("request handled", "path", path, "correlation_id", correlationID, "status", status)
	}
	return respond(status, headers, body), nil
}

func (h *Handler) handleChat(ctx context.Context, req events.APIGatewayProxyRequest, headers map[string]string) (int, any) {
	var in chatRequest
	if err := decodeBody(req, &in); err != nil {
		return http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput), Reason: "invalid_json"}
	}
	sessionID := header(req.Headers, headerSessionID)
	if sessionID == "" {
		sessionID = in.SessionID
	}

	out, err := h.chat.Chat(ctx, usecase.ChatInput{SessionID: sessionID, Message: in.Message, Role: in.Role})
	if err != nil {
		return errorStatus(err)
	}
	headers[headerSessionID] = out.SessionID
	return http.StatusOK, chatResponse{Response: out.Response, SessionID: out.SessionID}
}

func (h *Handler) handleReset(ctx context.Context, req events.APIGatewayProxyRequest, _ map[string]string) (int, any) {
	sessionID := header(req.Headers, headerSessionID)
	if sessionID == "" {
		var in chatRequest
		if err := decodeBody(req, &in); err == nil {
			sessionID = in.SessionID
		}
	}
	if err := h.chat.Reset(ctx, sessionID); err != nil {
		return errorStatus(err)
	}
	return http.StatusOK, messageResponse{Message: "Session reset"}
}

func (h *Handler) handleAnalyze(ctx context.Context, _ events.APIGatewayProxyRequest, _ map[string]string) (int, any) {
	out, err := h.analyzer.Analyze(ctx)
	if err != nil {
		return errorStatus(err)
	}
	return http.StatusOK, analyzeResponse{Message: out.Message, AlertsTriggered: out.AlertsTriggered}
}

func decodeBody(req events.APIGatewayProxyRequest, v any) error {
	body := req.Body
	if req.IsBase64Encoded {
		raw, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return err
		}
		body = string(raw)
	}
	if strings.TrimSpace(body) == "" {
		return nil
	}
	return json.Unmarshal([]byte(body), v)
}

func errorStatus(err error) (int, any) {
	code := usecase.Code(err)
	resp := errorResponse{Error: string(code)}
	var ucErr *usecase.Error
	if errors.As(err, &ucErr) {
		resp.Reason = ucErr.Reason
	}
	switch code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest, resp
	case usecase.ErrorConflict:
		return http.StatusConflict, resp
	default:
		return http.StatusInternalServerError, resp
	}
}

func respond(status int, headers map[string]string, body any) events.APIGatewayProxyResponse {
	raw, err := json.Marshal(body)
	if err != nil {
		status = http.StatusInternalServerError
		raw = []byte(`{"error":"INTERNAL_ERROR"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    headers,
		Body:       string(raw),
	}
}

// header looks up name case-insensitively.
func header(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return strings.TrimSpace(v)
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
