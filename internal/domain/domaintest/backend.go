// Package domaintest provides an in-memory domain.Backend for tests.
package domaintest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/carehub/pharmacy-portal/internal/platform/apiclient"
)

// Call is one recorded backend request.
type Call struct {
	Method   string
	Path     string
	Params   url.Values
	Body     json.RawMessage
	Field    string
	Filename string
	Upload   []byte
}

// DecodeBody unmarshals the recorded JSON body.
func (c Call) DecodeBody(v any) error {
	return json.Unmarshal(c.Body, v)
}

type response struct {
	data json.RawMessage
	err  error
}

// Backend answers requests from canned responses keyed by "METHOD path".
// Unknown routes answer 404.
type Backend struct {
	mu        sync.Mutex
	responses map[string]response
	calls     []Call
}

func NewBackend() *Backend {
	return &Backend{responses: make(map[string]response)}
}

// Reply registers data (any JSON-encodable value or a raw JSON string) as
// the envelope payload for method and path.
func (b *Backend) Reply(method, path string, data any) *Backend {
	var raw json.RawMessage
	switch d := data.(type) {
	case nil:
	case string:
		raw = json.RawMessage(d)
	case json.RawMessage:
		raw = d
	default:
		enc, err := json.Marshal(d)
		if err != nil {
			panic(fmt.Sprintf("domaintest: encode reply: %v", err))
		}
		raw = enc
	}
	b.mu.Lock()
	b.responses[method+" "+path] = response{data: raw}
	b.mu.Unlock()
	return b
}

// Fail makes method and path answer with a backend error.
func (b *Backend) Fail(method, path string, status int, message string) *Backend {
	b.mu.Lock()
	b.responses[method+" "+path] = response{err: &apiclient.Error{
		StatusCode: status, Method: method, Path: path, Message: message,
	}}
	b.mu.Unlock()
	return b
}

// Calls returns the recorded requests in order.
func (b *Backend) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Call(nil), b.calls...)
}

// Last returns the most recent request.
func (b *Backend) Last() (Call, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.calls) == 0 {
		return Call{}, false
	}
	return b.calls[len(b.calls)-1], true
}

func (b *Backend) answer(call Call) (*apiclient.Envelope, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, call)
	r, ok := b.responses[call.Method+" "+call.Path]
	if !ok {
		return nil, &apiclient.Error{StatusCode: http.StatusNotFound, Method: call.Method, Path: call.Path, Message: "not found"}
	}
	if r.err != nil {
		return nil, r.err
	}
	return &apiclient.Envelope{Success: true, Data: r.data}, nil
}

func encode(body any) json.RawMessage {
	if body == nil {
		return nil
	}
	raw, err := json.Marshal(body)
	if err != nil {
		panic(fmt.Sprintf("domaintest: encode body: %v", err))
	}
	return raw
}

func (b *Backend) Get(_ context.Context, path string, params url.Values) (*apiclient.Envelope, error) {
	return b.answer(Call{Method: http.MethodGet, Path: path, Params: params})
}

func (b *Backend) Post(_ context.Context, path string, body any) (*apiclient.Envelope, error) {
	return b.answer(Call{Method: http.MethodPost, Path: path, Body: encode(body)})
}

func (b *Backend) Put(_ context.Context, path string, body any) (*apiclient.Envelope, error) {
	return b.answer(Call{Method: http.MethodPut, Path: path, Body: encode(body)})
}

func (b *Backend) Patch(_ context.Context, path string, body any) (*apiclient.Envelope, error) {
	return b.answer(Call{Method: http.MethodPatch, Path: path, Body: encode(body)})
}

func (b *Backend) Delete(_ context.Context, path string) (*apiclient.Envelope, error) {
	return b.answer(Call{Method: http.MethodDelete, Path: path})
}

func (b *Backend) Upload(_ context.Context, path, field, filename string, r io.Reader, _ map[string]string) (*apiclient.Envelope, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return b.answer(Call{Method: http.MethodPost, Path: path, Field: field, Filename: filename, Upload: data})
}
