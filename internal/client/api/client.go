package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/iudanet/soundlines/pkg/api"
)

// closeTooStale код закрытия потока, когда since уже сжат на сервере
const closeTooStale = 4001

var (
	// ErrUnauthorized сервер отверг токен: нужен повторный вход
	ErrUnauthorized = errors.New("unauthorized")

	// ErrTooStale позиция потока вне журнала сервера: нужен снимок
	ErrTooStale = errors.New("stream position is too stale")

	// ErrStreamLost сервер закрыл поток или соединение оборвалось: можно переподключиться
	ErrStreamLost = errors.New("stream connection lost")
)

// StatusError ответ сервера с кодом ошибки
type StatusError struct {
	Message string
	Code    int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server error (%d): %s", e.Code, e.Message)
}

// ClientAPI операции сервера, которыми пользуется клиент
type ClientAPI interface {
	Register(ctx context.Context, req api.RegisterRequest) (*api.RegisterResponse, error)
	Login(ctx context.Context, req api.LoginRequest) (*api.TokenResponse, error)
	SubmitReport(ctx context.Context, token string, req api.ReportRequest) (*api.ReportResponse, error)
	Nearby(ctx context.Context, token string, lat, lng float64, k int) (*api.NearbyResponse, error)
	FetchWorld(ctx context.Context, token string) (*api.WorldResponse, error)
	FetchSnapshot(ctx context.Context, token string) (*api.WorldResponse, error)
	Ack(ctx context.Context, token string, seq int64) (*api.StatusResponse, error)
	Stream(ctx context.Context, token string, since int64, fn func(api.StreamFrame) error) error
}

// Client представляет HTTP клиент для взаимодействия с сервером
type Client struct {
	httpClient *http.Client
	dialer     *websocket.Dialer
	baseURL    string
}

var _ ClientAPI = (*Client)(nil)

// NewClient создает новый API клиент
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				// Копируем заголовки Authorization при редиректе
				if len(via) > 0 && via[0].Header.Get("Authorization") != "" {
					req.Header.Set("Authorization", via[0].Header.Get("Authorization"))
				}
				return nil
			},
		},
		dialer: &websocket.Dialer{
			HandshakeTimeout:  10 * time.Second,
			EnableCompression: true,
		},
	}
}

// Register регистрирует новый телефон
func (c *Client) Register(ctx context.Context, req api.RegisterRequest) (*api.RegisterResponse, error) {
	var resp api.RegisterResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/devices/register", "", req, &resp); err != nil {
		return nil, fmt.Errorf("register request failed: %w", err)
	}
	return &resp, nil
}

// Login получает access token телефона
func (c *Client) Login(ctx context.Context, req api.LoginRequest) (*api.TokenResponse, error) {
	var resp api.TokenResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/devices/login", "", req, &resp); err != nil {
		return nil, fmt.Errorf("login request failed: %w", err)
	}
	return &resp, nil
}

// SubmitReport отправляет отчёт и возвращает агрегат по соседям
func (c *Client) SubmitReport(ctx context.Context, token string, req api.ReportRequest) (*api.ReportResponse, error) {
	var resp api.ReportResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/reports", token, req, &resp); err != nil {
		return nil, fmt.Errorf("report request failed: %w", err)
	}
	return &resp, nil
}

// Nearby запрашивает k ближайших отчётов к точке
func (c *Client) Nearby(ctx context.Context, token string, lat, lng float64, k int) (*api.NearbyResponse, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lng", strconv.FormatFloat(lng, 'f', -1, 64))
	if k > 0 {
		q.Set("k", strconv.Itoa(k))
	}

	var resp api.NearbyResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/reports/nearby?"+q.Encode(), token, nil, &resp); err != nil {
		return nil, fmt.Errorf("nearby request failed: %w", err)
	}
	return &resp, nil
}

// FetchWorld получает снимок или дифф мира
func (c *Client) FetchWorld(ctx context.Context, token string) (*api.WorldResponse, error) {
	var resp api.WorldResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/world", token, nil, &resp); err != nil {
		return nil, fmt.Errorf("world request failed: %w", err)
	}
	return &resp, nil
}

// FetchSnapshot получает полный снимок мира независимо от курсора на сервере
func (c *Client) FetchSnapshot(ctx context.Context, token string) (*api.WorldResponse, error) {
	var resp api.WorldResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/world?full=true", token, nil, &resp); err != nil {
		return nil, fmt.Errorf("snapshot request failed: %w", err)
	}
	return &resp, nil
}

// Ack подтверждает применённый seq
func (c *Client) Ack(ctx context.Context, token string, seq int64) (*api.StatusResponse, error) {
	var resp api.StatusResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/world/ack", token, api.AckRequest{Seq: &seq}, &resp); err != nil {
		return nil, fmt.Errorf("ack request failed: %w", err)
	}
	return &resp, nil
}

// Stream подписывается на поток диффов начиная после since и вызывает fn
// для каждого кадра. Возвращает ErrTooStale, если сервер уже сжал since,
// ErrStreamLost, если сервер закрыл поток или связь пропала, и nil при отмене ctx.
func (c *Client) Stream(ctx context.Context, token string, since int64, fn func(api.StreamFrame) error) error {
	u, err := url.Parse(c.baseURL + "/api/v1/world/stream")
	if err != nil {
		return fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.RawQuery = url.Values{"since": {strconv.FormatInt(since, 10)}}.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			if resp.StatusCode == http.StatusUnauthorized {
				return ErrUnauthorized
			}
			return &StatusError{Code: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return fmt.Errorf("stream dial failed: %w: %w", ErrStreamLost, err)
	}
	defer conn.Close()

	// Закрываем соединение при отмене контекста, чтобы прервать ReadJSON
	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
			time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer stop()

	for {
		var frame api.StreamFrame
		if err := conn.ReadJSON(&frame); err != nil {
			switch {
			case ctx.Err() != nil:
				return nil
			case websocket.IsCloseError(err, closeTooStale):
				return ErrTooStale
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				return ErrStreamLost
			default:
				return fmt.Errorf("stream read failed: %w: %w", ErrStreamLost, err)
			}
		}
		if err := fn(frame); err != nil {
			return err
		}
	}
}

// doRequest выполняет HTTP запрос
func (c *Client) doRequest(ctx context.Context, method, path, token string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized && token != "" {
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp api.ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Message != "" {
			return &StatusError{Code: resp.StatusCode, Message: errResp.Message}
		}
		return &StatusError{Code: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}
