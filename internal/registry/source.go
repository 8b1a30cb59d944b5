// Package registry produces event payloads for logical source names from
// sample files, rendering placeholders so every event is fresh.
package registry

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/tidwall/gjson"

	"sortie/internal/core"
)

// Mode defines how sample rows are selected.
type Mode string

const (
	// ModeSequential iterates through rows in order, wrapping around.
	ModeSequential Mode = "sequential"
	// ModeRandom selects a random row for each event.
	ModeRandom Mode = "random"
)

// SampleSpec points a source at a sample file.
type SampleSpec struct {
	File string `yaml:"file"`
	Mode Mode   `yaml:"mode"`
	// Path selects the record array inside a JSON document, e.g. $.Records.
	Path string `yaml:"path"`
}

// Source is a loaded sample set. Rows are map[string]any for structured
// samples and string for raw lines.
type Source struct {
	name    string
	rows    []core.Payload
	mode    Mode
	counter atomic.Uint64
	mu      sync.Mutex
	rng     *rand.Rand
}

// NewSource creates a source from loaded rows.
func NewSource(name string, rows []core.Payload, mode Mode) *Source {
	if mode == "" {
		mode = ModeSequential
	}
	return &Source{
		name: name,
		rows: rows,
		mode: mode,
		rng:  rand.New(rand.NewSource(rand.Int63())),
	}
}

func (s *Source) Name() string { return s.name }

func (s *Source) Len() int { return len(s.rows) }

// Next returns the next row based on the selection mode.
// Safe for concurrent use.
func (s *Source) Next() core.Payload {
	if len(s.rows) == 0 {
		return nil
	}

	var idx int
	switch s.mode {
	case ModeRandom:
		s.mu.Lock()
		idx = s.rng.Intn(len(s.rows))
		s.mu.Unlock()
	default:
		n := s.counter.Add(1) - 1
		idx = int(n % uint64(len(s.rows)))
	}
	return s.rows[idx]
}

// LoadFile loads a sample file. CSV and JSON yield structured rows,
// .log and .txt files yield one raw line per row.
func LoadFile(name string, spec SampleSpec, configDir string) (*Source, error) {
	path := spec.File
	if !filepath.IsAbs(path) {
		path = filepath.Join(configDir, path)
	}

	var rows []core.Payload
	var err error
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		rows, err = loadCSV(path)
	case ".json":
		rows, err = loadJSON(path, spec.Path)
	case ".log", ".txt":
		rows, err = loadLines(path)
	default:
		return nil, fmt.Errorf("unsupported sample format %q (use .csv, .json, .log or .txt)", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sample file %s is empty", path)
	}

	switch spec.Mode {
	case "", ModeSequential, ModeRandom:
	default:
		return nil, fmt.Errorf("unknown sample mode %q", spec.Mode)
	}
	return NewSource(name, rows, spec.Mode), nil
}

// loadCSV loads a CSV file. The first row holds the headers.
func loadCSV(path string) ([]core.Payload, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("CSV must have header row and at least one data row")
	}

	headers := records[0]
	rows := make([]core.Payload, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(map[string]any, len(headers))
		for i, header := range headers {
			if i < len(record) {
				row[header] = record[i]
			} else {
				row[header] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// loadJSON loads an array of objects or strings, optionally found at path.
func loadJSON(path, selector string) ([]core.Payload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid JSON")
	}

	doc := gjson.ParseBytes(data)
	if selector != "" {
		doc = gjson.GetBytes(data, gjsonPath(selector))
		if !doc.Exists() {
			return nil, fmt.Errorf("path %q not found", selector)
		}
	}
	if !doc.IsArray() {
		return nil, fmt.Errorf("samples must be a JSON array of objects or strings")
	}

	var rows []core.Payload
	var bad error
	doc.ForEach(func(_, item gjson.Result) bool {
		switch {
		case item.IsObject():
			var row map[string]any
			if err := json.Unmarshal([]byte(item.Raw), &row); err != nil {
				bad = err
				return false
			}
			rows = append(rows, row)
		case item.Type == gjson.String:
			rows = append(rows, item.String())
		default:
			bad = fmt.Errorf("unsupported sample %s", item.Raw)
			return false
		}
		return true
	})
	if bad != nil {
		return nil, bad
	}
	return rows, nil
}

// loadLines loads one raw event per non-empty line.
func loadLines(path string) ([]core.Payload, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rows []core.Payload
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		if line := strings.TrimRight(sc.Text(), "\r"); strings.TrimSpace(line) != "" {
			rows = append(rows, line)
		}
	}
	return rows, sc.Err()
}

// gjsonPath converts JSONPath syntax to a gjson path.
// $.foo.bar -> foo.bar
// $.items[0].id -> items.0.id
// $.data[*].name -> data.#.name
func gjsonPath(path string) string {
	if strings.HasPrefix(path, "$.") {
		path = path[2:]
	} else if strings.HasPrefix(path, "$") {
		path = path[1:]
	}

	var result strings.Builder
	i := 0
	for i < len(path) {
		if path[i] == '[' {
			j := i + 1
			for j < len(path) && path[j] != ']' {
				j++
			}
			if j < len(path) {
				content := path[i+1 : j]
				if content == "*" {
					result.WriteString(".#")
				} else {
					result.WriteByte('.')
					result.WriteString(content)
				}
				i = j + 1
				continue
			}
		}
		result.WriteByte(path[i])
		i++
	}
	return result.String()
}
