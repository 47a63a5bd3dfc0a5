package origin

import (
	"fmt"
	"net/http"
	"os"

	"gopkg.in/yaml.v3"
)

// Response is a canned answer of the origin for one path.
type Response struct {
	Status int    `yaml:"status"`
	Body   string `yaml:"body"`
}

// ResponseTable maps a request path to its canned response.
type ResponseTable map[string]Response

// DefaultResponseTable returns the objects the origin knows about by default.
func DefaultResponseTable() ResponseTable {
	return ResponseTable{
		"/test-bucket/foo-key":     {Status: http.StatusOK, Body: "blabla"},
		"/test-bucket/bar-key":     {Status: http.StatusOK, Body: "blabla"},
		"/test-bucket/notfoundkey": {Status: http.StatusNotFound, Body: "404"},
	}
}

// LoadResponseTable reads a table from a YAML document of the form
//
//	/test-bucket/foo-key:
//	  status: 200
//	  body: blabla
func LoadResponseTable(path string) (ResponseTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read response table: %w", err)
	}

	table := ResponseTable{}
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("failed to parse response table %s: %w", path, err)
	}
	for p, r := range table {
		if r.Status < 100 || r.Status > 599 {
			return nil, fmt.Errorf("response table %s: invalid status %d for %s", path, r.Status, p)
		}
	}
	return table, nil
}
