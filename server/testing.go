/*
	This file contains functions useful for testing the server in other packages.
	Unfortunately, due to the way Go handles compilation of *_test.go files,
	these functions cannot be in web_test.go since they will be unavailable
	to test files in external packages.  So these functions are exported and
	contain the "Test" keyword.
*/

package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	_ "github.com/janelia-flyem/dsvalue/storage/memstore"
)

var (
	testMu     sync.Mutex
	testServer *Server
)

// OpenTest starts a server backed by an in-memory store with small chunks.
func OpenTest() error {
	testMu.Lock()
	defer testMu.Unlock()
	if testServer != nil {
		return fmt.Errorf("test server already open")
	}
	config := &Config{
		Store:  map[string]interface{}{"engine": "memory", "compression": "snappy", "checksum": "crc32", "cache_mb": 1},
		Engine: engineConfig{ChunkBytes: 64, VarChunkElements: 4},
	}
	s, err := New(config)
	if err != nil {
		return err
	}
	testServer = s
	return nil
}

// CloseTest shuts down the test server.
func CloseTest() {
	testMu.Lock()
	defer testMu.Unlock()
	if testServer != nil {
		testServer.Close()
		testServer = nil
	}
}

// ServeSingleHTTP handles one request on the test server.
func ServeSingleHTTP(w http.ResponseWriter, r *http.Request) {
	testMu.Lock()
	s := testServer
	testMu.Unlock()
	if s == nil {
		http.Error(w, "test server not open", http.StatusInternalServerError)
		return
	}
	s.ServeHTTP(w, r)
}

// TestHTTPResponse returns a response from a test run of the server.
// Use TestHTTP if you just want the response body bytes.
func TestHTTPResponse(t *testing.T, method, urlStr string, payload io.Reader) *httptest.ResponseRecorder {
	req, err := http.NewRequest(method, urlStr, payload)
	if err != nil {
		t.Fatalf("Unsuccessful %s on %q: %v\n", method, urlStr, err)
	}
	resp := httptest.NewRecorder()
	ServeSingleHTTP(resp, req)
	return resp
}

// TestHTTP returns the response body bytes for a test request, making sure any response has
// a successful status.
func TestHTTP(t *testing.T, method, urlStr string, payload io.Reader) []byte {
	resp := TestHTTPResponse(t, method, urlStr, payload)
	if resp.Code != http.StatusOK && resp.Code != http.StatusCreated {
		t.Fatalf("Bad server response (%d) to %s on %q: %s\n", resp.Code, method, urlStr, resp.Body.String())
	}
	return resp.Body.Bytes()
}

// TestBadHTTP expects a HTTP response with the given error status code.
func TestBadHTTP(t *testing.T, status int, method, urlStr string, payload io.Reader) {
	resp := TestHTTPResponse(t, method, urlStr, payload)
	if resp.Code != status {
		t.Fatalf("Expected status %d for %s on %q, got %d: %s\n", status, method, urlStr, resp.Code, resp.Body.String())
	}
}

// NewTestDataset creates a dataset on the test server and returns its id.
func NewTestDataset(t *testing.T, typeDesc, shapeDesc string) string {
	body := fmt.Sprintf(`{"type": %s, "shape": %s}`, typeDesc, shapeDesc)
	r := TestHTTP(t, "POST", "/datasets", bytes.NewBufferString(body))
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(r, &created); err != nil {
		t.Fatalf("Couldn't decode JSON response to new dataset request: %v\n", err)
	}
	if created.ID == "" {
		t.Fatalf("No id returned for new dataset: %s\n", string(r))
	}
	return created.ID
}

// TestValue reads a dataset value from the test server.  The query may be empty.
func TestValue(t *testing.T, id, query string) interface{} {
	urlStr := fmt.Sprintf("/datasets/%s/value", id)
	if query != "" {
		urlStr += "?" + query
	}
	r := TestHTTP(t, "GET", urlStr, nil)
	var resp struct {
		Value interface{} `json:"value"`
	}
	if err := decodeJSON(r, &resp); err != nil {
		t.Fatalf("Couldn't decode value response %s: %v\n", string(r), err)
	}
	return resp.Value
}
