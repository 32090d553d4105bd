package engine

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

const contentType = "application/msgpack"

type HTTPEngineOptions struct {
	Endpoint     string        `cfg:"endpoint" validate:"required"`
	Timeout      time.Duration `cfg:"timeout" def:"30s"`
	SetupPath    string        `cfg:"setupPath" def:"/v1/workers/setup"`
	TeardownPath string        `cfg:"teardownPath" def:"/v1/workers/teardown"`
}

// response 引擎应答，两个错误字段至多一个非空
type response struct {
	ErrorCode uint16       `msgpack:"errorCode,omitempty"`
	Exception *ScriptError `msgpack:"exception,omitempty"`
}

// HTTPEngine 通过 HTTP 以 msgpack 编码调用计算引擎
type HTTPEngine struct {
	endpoint     string
	setupPath    string
	teardownPath string
	httpClient   *http.Client
}

func NewHTTPEngineWithOptions(options *HTTPEngineOptions) (*HTTPEngine, error) {
	if options == nil || options.Endpoint == "" {
		return nil, errors.New("engine endpoint is required")
	}
	timeout := options.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPEngine{
		endpoint:     strings.TrimSuffix(options.Endpoint, "/"),
		setupPath:    withDefault(options.SetupPath, "/v1/workers/setup"),
		teardownPath: withDefault(options.TeardownPath, "/v1/workers/teardown"),
		httpClient:   &http.Client{Timeout: timeout},
	}, nil
}

func withDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func (e *HTTPEngine) Setup(ctx context.Context, req *SetupRequest) error {
	return e.call(ctx, e.setupPath, req)
}

func (e *HTTPEngine) Teardown(ctx context.Context, req *TeardownRequest) error {
	return e.call(ctx, e.teardownPath, req)
}

func (e *HTTPEngine) call(ctx context.Context, path string, payload any) error {
	body, err := msgpack.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "msgpack.Marshal failed")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "http.NewRequestWithContext failed")
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", contentType)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "post %s failed", path)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "read response failed")
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("engine error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var r response
	if len(respBody) > 0 {
		if err := msgpack.Unmarshal(respBody, &r); err != nil {
			return errors.Wrap(err, "msgpack.Unmarshal response failed")
		}
	}
	if r.Exception != nil {
		return r.Exception
	}
	if r.ErrorCode != 0 {
		return &CodeError{Code: r.ErrorCode}
	}
	return nil
}
