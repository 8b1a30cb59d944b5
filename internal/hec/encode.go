// Package hec puts envelopes on the wire for an HTTP Event Collector:
// it encodes payloads per route format and performs the single POST.
package hec

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"sortie/internal/core"
	"sortie/internal/route"
)

const (
	contentTypeJSON = "application/json"
	contentTypeText = "text/plain"
)

// Hints are optional envelope fields stamped on every structured event.
type Hints struct {
	Host   string `yaml:"host,omitempty"`
	Source string `yaml:"source,omitempty"`
	Index  string `yaml:"index,omitempty"`
}

// Request is an encoded event ready to send.
type Request struct {
	Subpath     string
	Query       url.Values
	ContentType string
	Body        []byte
}

type eventBody struct {
	Time       int64             `json:"time"`
	Event      core.Payload      `json:"event"`
	Sourcetype string            `json:"sourcetype"`
	Fields     map[string]string `json:"fields"`
	Host       string            `json:"host,omitempty"`
	Source     string            `json:"source,omitempty"`
	Index      string            `json:"index,omitempty"`
}

// Encode renders env for rt. Failures wrap core.ErrEncode.
func Encode(env *core.Envelope, rt route.Route, hints Hints) (Request, error) {
	switch rt.Format {
	case route.FormatJSON:
		fields := rt.Attrs
		if fields == nil {
			fields = map[string]string{}
		}
		body, err := json.Marshal(eventBody{
			Time:       env.Timestamp.Unix(),
			Event:      env.Payload,
			Sourcetype: rt.Sourcetype,
			Fields:     fields,
			Host:       hints.Host,
			Source:     hints.Source,
			Index:      hints.Index,
		})
		if err != nil {
			return Request{}, fmt.Errorf("%w: %s: %v", core.ErrEncode, env.Source, err)
		}
		return Request{Subpath: route.SubpathEvent, ContentType: contentTypeJSON, Body: body}, nil

	case route.FormatCSV:
		line, err := csvLine(env.Payload, rt.Columns)
		if err != nil {
			return Request{}, fmt.Errorf("%w: %s: %v", core.ErrEncode, env.Source, err)
		}
		return rawRequest(rt, line), nil

	default:
		line, err := rawLine(env.Payload)
		if err != nil {
			return Request{}, fmt.Errorf("%w: %s: %v", core.ErrEncode, env.Source, err)
		}
		return rawRequest(rt, line), nil
	}
}

func rawRequest(rt route.Route, line string) Request {
	return Request{
		Subpath:     route.SubpathRaw,
		Query:       url.Values{"sourcetype": []string{rt.Sourcetype}},
		ContentType: contentTypeText,
		Body:        []byte(line),
	}
}

// rawLine renders a payload as a single text line. Structured payloads
// are flattened to compact JSON.
func rawLine(p core.Payload) (string, error) {
	switch v := p.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case nil:
		return "", fmt.Errorf("empty payload")
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// csvLine renders a map payload in column order. Strings pass through.
func csvLine(p core.Payload, columns []string) (string, error) {
	m, ok := p.(map[string]any)
	if !ok {
		return rawLine(p)
	}
	if len(columns) == 0 {
		return "", fmt.Errorf("csv route has no columns")
	}
	record := make([]string, len(columns))
	for i, col := range columns {
		if v, ok := m[col]; ok && v != nil {
			record[i] = fmt.Sprint(v)
		}
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(record); err != nil {
		return "", err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\r\n"), nil
}
