package hec

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

const maxBodyLogSize = 1024

// DebugLogger dumps every request and response. A nil *DebugLogger is a no-op.
type DebugLogger struct {
	out io.Writer
	mu  sync.Mutex
}

func NewDebugLogger(out io.Writer) *DebugLogger {
	return &DebugLogger{out: out}
}

func (d *DebugLogger) LogRequest(label string, req *http.Request) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "\n[%s] >>> POST %s\n", label, req.URL.String())
	writeHeaders(&buf, req.Header)

	if req.Body != nil && req.Body != http.NoBody {
		body, err := io.ReadAll(req.Body)
		if err == nil && len(body) > 0 {
			req.Body = io.NopCloser(bytes.NewReader(body))
			fmt.Fprintf(&buf, "  Body: %s\n", truncateBody(body))
		}
	}
	fmt.Fprint(d.out, buf.String())
}

func (d *DebugLogger) LogResponse(label string, resp *http.Response, ack Ack, body []byte, duration time.Duration) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "[%s] <<< %d %s (%s)\n", label, resp.StatusCode,
		http.StatusText(resp.StatusCode), duration.Round(time.Millisecond))
	if ack.Parsed {
		fmt.Fprintf(&buf, "  Ack: text=%q code=%d\n", ack.Text, ack.Code)
	} else if len(body) > 0 {
		fmt.Fprintf(&buf, "  Body: %s\n", truncateBody(body))
	}
	fmt.Fprint(d.out, buf.String())
}

func (d *DebugLogger) LogError(label string, errMsg string, duration time.Duration) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintf(d.out, "[%s] !!! ERROR (%s)\n  %s\n", label, duration.Round(time.Millisecond), errMsg)
}

func writeHeaders(buf *bytes.Buffer, h http.Header) {
	if len(h) == 0 {
		return
	}
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)
	buf.WriteString("  Headers:\n")
	for _, name := range names {
		value := strings.Join(h[name], ", ")
		if name == "Authorization" {
			value = redact(value)
		}
		fmt.Fprintf(buf, "    %s: %s\n", name, value)
	}
}

// redact keeps the scheme and the last four characters of the token.
func redact(auth string) string {
	scheme, token, ok := strings.Cut(auth, " ")
	if !ok {
		return "****"
	}
	if len(token) <= 4 {
		return scheme + " ****"
	}
	return scheme + " ****" + token[len(token)-4:]
}

func truncateBody(body []byte) string {
	if len(body) <= maxBodyLogSize {
		return string(body)
	}
	return string(body[:maxBodyLogSize]) + fmt.Sprintf("... (truncated, %d bytes total)", len(body))
}
