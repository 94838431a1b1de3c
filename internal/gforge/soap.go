// Package gforge is a client for the GForge SOAP API, limited to what a
// tracker export needs.
package gforge

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/trackbridge/trackbridge/internal/debug"
)

const (
	// DefaultTimeout is the HTTP timeout for one SOAP call.
	DefaultTimeout = 60 * time.Second

	// MaxRetries bounds retries of read-only calls on transport failures.
	MaxRetries = 3

	envelopeNS = "http://schemas.xmlsoap.org/soap/envelope/"
)

// Client calls SOAP operations on one GForge endpoint.
type Client struct {
	Endpoint   string        // SOAP endpoint URL
	Namespace  string        // XML namespace of the operations
	HTTPClient *http.Client  // Optional custom HTTP client
	RetryDelay time.Duration // Initial backoff for read retries
}

// NewClient creates a client for endpoint and namespace.
func NewClient(endpoint, namespace string) *Client {
	return &Client{
		Endpoint:   endpoint,
		Namespace:  namespace,
		HTTPClient: &http.Client{Timeout: DefaultTimeout},
		RetryDelay: time.Second,
	}
}

// Fault is a SOAP fault returned by the server.
type Fault struct {
	Code   string `xml:"faultcode"`
	String string `xml:"faultstring"`
	Detail string `xml:"detail,omitempty"`
}

func (f *Fault) Error() string {
	return fmt.Sprintf("SOAP fault %s: %s", f.Code, f.String)
}

// param is one positional argument of an RPC call.
type param struct {
	name  string
	value interface{}
}

type responseEnvelope struct {
	Body struct {
		Fault *Fault `xml:"Fault"`
		Inner []byte `xml:",innerxml"`
	} `xml:"Body"`
}

// call invokes op and decodes the <return> element of the response into
// out. Read-only calls are retried on transport errors and 5xx responses.
func (c *Client) call(ctx context.Context, op string, readOnly bool, out interface{}, params ...param) error {
	payload, err := c.envelope(op, params)
	if err != nil {
		return fmt.Errorf("failed to build SOAP body for %s: %w", op, err)
	}

	var raw []byte
	attempt := func() error {
		raw, err = c.post(ctx, op, payload)
		if err == nil {
			return nil
		}
		var status *statusError
		if !readOnly || (errors.As(err, &status) && status.code < 500) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.RetryDelay
	b.MaxElapsedTime = 0
	notify := func(err error, wait time.Duration) {
		debug.Logf("gforge: %s failed (%v), retrying in %v\n", op, err, wait)
	}
	if err := backoff.RetryNotify(attempt, backoff.WithContext(backoff.WithMaxRetries(b, MaxRetries), ctx), notify); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	var env responseEnvelope
	if err := xml.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%s: failed to parse SOAP response: %w", op, err)
	}
	if env.Body.Fault != nil {
		return fmt.Errorf("%s: %w", op, env.Body.Fault)
	}
	if out == nil {
		return nil
	}

	wrapper := struct {
		Return interface{} `xml:"return"`
	}{Return: out}
	if err := xml.Unmarshal(env.Body.Inner, &wrapper); err != nil {
		return fmt.Errorf("%s: failed to decode result: %w", op, err)
	}
	return nil
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.code, e.body)
}

func (c *Client) post(ctx context.Context, op string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", c.Namespace+"#"+op)

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	debug.Logf("gforge: POST %s %s\n", c.Endpoint, op)
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	// Faults arrive as 500 with a SOAP body; let the caller decode them.
	if resp.StatusCode >= 300 && !bytes.Contains(body, []byte("Fault")) {
		return nil, &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(body))}
	}
	return body, nil
}

// envelope renders an RPC-style request. Parameters keep their order.
func (c *Client) envelope(op string, params []param) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	fmt.Fprintf(&buf, `<soap:Envelope xmlns:soap="%s"><soap:Body>`, envelopeNS)
	fmt.Fprintf(&buf, `<ns:%s xmlns:ns="%s">`, op, c.Namespace)
	for _, p := range params {
		if err := writeParam(&buf, p); err != nil {
			return nil, err
		}
	}
	fmt.Fprintf(&buf, `</ns:%s></soap:Body></soap:Envelope>`, op)
	return buf.Bytes(), nil
}

func writeParam(buf *bytes.Buffer, p param) error {
	fmt.Fprintf(buf, "<%s>", p.name)
	switch v := p.value.(type) {
	case string:
		if err := xml.EscapeText(buf, []byte(v)); err != nil {
			return err
		}
	case int:
		buf.WriteString(strconv.Itoa(v))
	case []int:
		for _, n := range v {
			fmt.Fprintf(buf, "<item>%d</item>", n)
		}
	default:
		return fmt.Errorf("unsupported parameter type %T for %s", p.value, p.name)
	}
	fmt.Fprintf(buf, "</%s>", p.name)
	return nil
}
