package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"
	"vidscribe/internal/media"
	"vidscribe/pkg/logger"
	"vidscribe/pkg/resilience"

	"go.uber.org/zap"
)

const (
	RecognizeURL  = "https://speech.googleapis.com/v1p1beta1/speech:longrunningrecognize"
	OperationsURL = "https://speech.googleapis.com/v1"

	EncodingLinear16 = "LINEAR16"

	defaultTimeout = 30 * time.Second

	maxResponseBody = 32 << 20
	maxErrorBody    = 4 << 10
	errorBodyLen    = 512
)

type Config struct {
	APIKey        string
	RecognizeURL  string
	OperationsURL string
	Timeout       time.Duration
	// HTTPClient overrides the client built from Timeout
	HTTPClient *http.Client
	// Retry wraps each single round trip; nil or MaxAttempts<=1 disables retrying
	Retry *resilience.RetryConfig
	// Limiter throttles outbound requests when shared by concurrent jobs
	Limiter *resilience.RateLimiter
}

// Client talks to the remote long-running speech recognition API.
// One Client (and its connection pool) is shared by submit and status calls.
type Client struct {
	apiKey        string
	recognizeURL  string
	operationsURL string
	client        *http.Client
	retry         *resilience.RetryConfig
	limiter       *resilience.RateLimiter
}

func NewClient(cfg Config) *Client {
	if cfg.RecognizeURL == "" {
		cfg.RecognizeURL = RecognizeURL
	}
	if cfg.OperationsURL == "" {
		cfg.OperationsURL = OperationsURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: cfg.Timeout,
		}
	}
	return &Client{
		apiKey:        cfg.APIKey,
		recognizeURL:  cfg.RecognizeURL,
		operationsURL: strings.TrimRight(cfg.OperationsURL, "/"),
		client:        httpClient,
		retry:         cfg.Retry,
		limiter:       cfg.Limiter,
	}
}

// Submit starts asynchronous recognition of asset and returns the operation handle.
func (c *Client) Submit(ctx context.Context, asset *media.AudioAsset, cfg RecognitionConfig) (JobHandle, error) {
	fail := func(err error) (JobHandle, error) {
		se := &SubmissionError{Err: err}
		var st *statusError
		if errors.As(err, &st) {
			se.StatusCode, se.Body = st.code, st.body
		}
		return JobHandle{}, se
	}

	if asset == nil || asset.Size() == 0 {
		return fail(errors.New("audio asset is empty"))
	}
	if cfg.LanguageCode == "" {
		return fail(errors.New("language code is required"))
	}
	format := asset.Format()
	encoding, err := encodingOf(format)
	if err != nil {
		return fail(err)
	}

	reqBody := recognizeRequest{
		Config: recognitionSpec{
			Encoding:          encoding,
			SampleRateHertz:   format.SampleRateHz,
			AudioChannelCount: format.Channels,
			LanguageCode:      cfg.LanguageCode,
		},
		Audio: audioContent{
			Content: base64.StdEncoding.EncodeToString(asset.Bytes()),
		},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fail(fmt.Errorf("failed to marshal request: %w", err))
	}

	endpoint, err := c.withKey(c.recognizeURL)
	if err != nil {
		return fail(err)
	}

	logger.Debug("Submitting recognition",
		zap.String("url", c.recognizeURL),
		zap.Int("audio_bytes", asset.Size()),
		zap.String("language", cfg.LanguageCode),
		zap.Stringer("format", format))

	respBody, err := c.roundTrip(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return fail(err)
	}

	var opResp operationResponse
	if err := json.Unmarshal(respBody, &opResp); err != nil {
		return fail(fmt.Errorf("failed to unmarshal response: %w", err))
	}

	handle, err := NewJobHandle(opResp.Name)
	if err != nil {
		return fail(fmt.Errorf("response has no operation name: %w", err))
	}

	logger.Info("Recognition started", zap.Stringer("operation", handle))
	return handle, nil
}

// GetStatus performs one status check of the operation.
func (c *Client) GetStatus(ctx context.Context, handle JobHandle) (*JobStatus, error) {
	fail := func(err error) (*JobStatus, error) {
		pe := &PollError{Operation: handle.Name(), Err: err}
		var st *statusError
		if errors.As(err, &st) {
			pe.StatusCode, pe.Body = st.code, st.body
		}
		return nil, pe
	}

	if handle.IsZero() {
		return fail(errors.New("empty job handle"))
	}

	endpoint, err := c.withKey(c.operationURL(handle))
	if err != nil {
		return fail(err)
	}

	respBody, err := c.roundTrip(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fail(err)
	}

	var opResp operationResponse
	if err := json.Unmarshal(respBody, &opResp); err != nil {
		return fail(fmt.Errorf("failed to unmarshal response: %w", err))
	}

	status := &JobStatus{Done: opResp.Done}
	if opResp.Metadata != nil {
		status.ProgressPercent = opResp.Metadata.ProgressPercent
	}
	if opResp.Done {
		status.Result = opResp.Response
		status.Error = opResp.Error
	}
	return status, nil
}

// roundTrip sends one request, retried only per the client's retry policy,
// and returns the body of a 2xx response.
func (c *Client) roundTrip(ctx context.Context, method, endpoint string, body []byte) ([]byte, error) {
	var respBody []byte
	err := resilience.Retry(ctx, c.retry, func() error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return resilience.Permanent(err)
			}
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return resilience.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return resilience.Permanent(ctx.Err())
			}
			return fmt.Errorf("failed to send request: %w", redactErr(err))
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			se := &statusError{code: resp.StatusCode, body: truncate(string(data), errorBodyLen)}
			if retryable(resp.StatusCode) {
				return se
			}
			return resilience.Permanent(se)
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody+1))
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}
		if len(data) > maxResponseBody {
			return resilience.Permanent(fmt.Errorf("response exceeds %d bytes", maxResponseBody))
		}

		respBody = data
		return nil
	})
	return respBody, err
}

func (c *Client) operationURL(handle JobHandle) string {
	name := handle.Name()
	if !strings.HasPrefix(name, "operations/") {
		name = "operations/" + name
	}
	parts := strings.Split(name, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return c.operationsURL + "/" + strings.Join(parts, "/")
}

func (c *Client) withKey(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	q := u.Query()
	q.Set("key", c.apiKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func encodingOf(f media.Format) (string, error) {
	switch f.SampleFormat {
	case media.SampleFormatS16LE:
		return EncodingLinear16, nil
	default:
		return "", fmt.Errorf("no recognition encoding for sample format %q", f.SampleFormat)
	}
}

func retryable(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// redactErr strips the query (and the api key in it) from url errors
func redactErr(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		if u, perr := url.Parse(ue.URL); perr == nil {
			u.RawQuery = ""
			return &url.Error{Op: ue.Op, URL: u.String(), Err: ue.Err}
		}
	}
	return err
}

// truncate cuts s to at most n bytes without splitting a rune
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
