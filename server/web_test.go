package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/janelia-flyem/dsvalue/dsv"
)

func openTest(t *testing.T) {
	if err := OpenTest(); err != nil {
		t.Fatalf("can't open test server: %v\n", err)
	}
}

func jsonString(t *testing.T, v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("can't marshal %v: %v\n", v, err)
	}
	return string(b)
}

func putValue(t *testing.T, id, payload string) {
	TestHTTP(t, "PUT", fmt.Sprintf("/datasets/%s/value", id), bytes.NewBufferString(payload))
}

func TestAbout(t *testing.T) {
	openTest(t)
	defer CloseTest()

	r := TestHTTP(t, "GET", "/about", nil)
	var about map[string]interface{}
	if err := json.Unmarshal(r, &about); err != nil {
		t.Fatalf("Unable to unmarshal about response: %s\n", string(r))
	}
	if about["version"] != Version.String() {
		t.Errorf("Bad version in about: %v\n", about["version"])
	}
	if _, found := about["cache hit rate"]; !found {
		t.Errorf("Expected cache hit rate for cached test store: %s\n", string(r))
	}
}

func TestCreateAndDescribe(t *testing.T) {
	openTest(t)
	defer CloseTest()

	resp := TestHTTPResponse(t, "POST", "/datasets", bytes.NewBufferString(`{"type": "H5T_STD_I32LE", "shape": 10}`))
	if resp.Code != http.StatusCreated {
		t.Fatalf("Expected 201 on dataset creation, got %d: %s\n", resp.Code, resp.Body.String())
	}
	var created datasetJSON
	if err := json.Unmarshal(resp.Body.Bytes(), &created); err != nil {
		t.Fatalf("Unable to unmarshal create response: %s\n", resp.Body.String())
	}
	if len(created.ID) != 32 {
		t.Errorf("Expected 32 hex digit id, got %q\n", created.ID)
	}

	r := TestHTTP(t, "GET", "/datasets/"+created.ID, nil)
	expected := fmt.Sprintf(`{"id":%q,"type":{"class":"H5T_INTEGER","base":"H5T_STD_I32LE"},"shape":{"class":"H5S_SIMPLE","dims":[10]}}`, created.ID)
	if got := string(bytes.TrimSpace(r)); got != expected {
		t.Errorf("Bad dataset description:\n got %s\n expected %s\n", got, expected)
	}

	scalar := NewTestDataset(t, `"H5T_IEEE_F64LE"`, "null")
	r = TestHTTP(t, "GET", "/datasets/"+scalar, nil)
	if !bytes.Contains(r, []byte(`"shape":{"class":"H5S_SCALAR"}`)) {
		t.Errorf("Expected scalar shape: %s\n", string(r))
	}

	r = TestHTTP(t, "GET", "/datasets", nil)
	var list struct {
		Datasets []string `json:"datasets"`
	}
	if err := json.Unmarshal(r, &list); err != nil {
		t.Fatalf("Unable to unmarshal list response: %s\n", string(r))
	}
	if len(list.Datasets) != 2 {
		t.Errorf("Expected 2 datasets, got %v\n", list.Datasets)
	}

	TestBadHTTP(t, http.StatusBadRequest, "POST", "/datasets", bytes.NewBufferString(`{"type": "H5T_NOPE"}`))
	TestBadHTTP(t, http.StatusBadRequest, "POST", "/datasets", bytes.NewBufferString(`{"shape": 3}`))
	TestBadHTTP(t, http.StatusBadRequest, "POST", "/datasets", bytes.NewBufferString(`{"type": "H5T_STD_I8LE", "shape": [-1]}`))
	TestBadHTTP(t, http.StatusBadRequest, "POST", "/datasets", bytes.NewBufferString(`{"type": "H5T_STD_I8LE", "shape": [4611686018427387904, 4]}`))
	TestBadHTTP(t, http.StatusBadRequest, "POST", "/datasets", bytes.NewBufferString(`not json`))
	TestBadHTTP(t, http.StatusNotFound, "GET", "/datasets/0123456789abcdef", nil)

	TestHTTP(t, "DELETE", "/datasets/"+created.ID, nil)
	TestBadHTTP(t, http.StatusNotFound, "GET", "/datasets/"+created.ID, nil)
	TestBadHTTP(t, http.StatusNotFound, "DELETE", "/datasets/"+created.ID, nil)
}

func TestGetValue(t *testing.T) {
	openTest(t)
	defer CloseTest()

	id := NewTestDataset(t, `"H5T_STD_I32LE"`, "[10, 10]")
	data := make([][]int, 10)
	for i := range data {
		data[i] = make([]int, 10)
		for j := range data[i] {
			data[i][j] = i * j
		}
	}
	putValue(t, id, fmt.Sprintf(`{"value": %s}`, jsonString(t, data)))

	if got, expected := jsonString(t, TestValue(t, id, "")), jsonString(t, data); got != expected {
		t.Fatalf("Full read:\n got %s\n expected %s\n", got, expected)
	}
	got := jsonString(t, TestValue(t, id, "dim1_start=2&dim1_stop=4&dim2_start=1&dim2_stop=9&dim2_step=3"))
	if got != "[[2,8,14],[3,12,21]]" {
		t.Errorf("Bad selection read: %s\n", got)
	}
	// dimN_end is exclusive like dimN_stop
	got = jsonString(t, TestValue(t, id, "dim1_start=9&dim1_end=10&dim2_start=1&dim2_end=3"))
	if got != "[[9,18]]" {
		t.Errorf("Bad end selection read: %s\n", got)
	}

	for _, query := range []string{"dim1_start=abc", "dim1_start=2&dim1_step=0", "dim2_stop=11", "dim3_start=0", "dim1_start=5&dim1_stop=5"} {
		TestBadHTTP(t, http.StatusBadRequest, "GET", fmt.Sprintf("/datasets/%s/value?%s", id, query), nil)
	}
	TestBadHTTP(t, http.StatusNotFound, "GET", "/datasets/missing/value", nil)
}

func TestStrided(t *testing.T) {
	openTest(t)
	defer CloseTest()

	id := NewTestDataset(t, `{"class": "H5T_INTEGER", "base": "H5T_STD_I64BE"}`, "20")
	values := make([]int, 20)
	for i := range values {
		values[i] = i
	}
	putValue(t, id, fmt.Sprintf(`{"value": %s}`, jsonString(t, values)))
	if got := jsonString(t, TestValue(t, id, "dim1_start=2&dim1_stop=10&dim1_step=2")); got != "[2,4,6,8]" {
		t.Fatalf("Expected [2,4,6,8], got %s\n", got)
	}
	if got := jsonString(t, TestValue(t, id, "dim1_start=3&dim1_step=9223372036854775807")); got != "[3]" {
		t.Fatalf("Expected [3] for the largest step, got %s\n", got)
	}
}

func TestScalarValues(t *testing.T) {
	openTest(t)
	defer CloseTest()

	id := NewTestDataset(t, `"H5T_STD_I32LE"`, `{"class": "H5S_SCALAR"}`)
	putValue(t, id, `{"value": 42}`)
	if got := jsonString(t, TestValue(t, id, "")); got != "42" {
		t.Errorf("Expected bare scalar 42, got %s\n", got)
	}
	str := NewTestDataset(t, `{"class": "H5T_STRING", "charSet": "H5T_CSET_ASCII", "strPad": "H5T_STR_NULLPAD", "length": 5}`, "null")
	putValue(t, str, `{"value": "hello"}`)
	if got := jsonString(t, TestValue(t, str, "")); got != `"hello"` {
		t.Errorf("Expected \"hello\", got %s\n", got)
	}
	TestBadHTTP(t, http.StatusBadRequest, "PUT", fmt.Sprintf("/datasets/%s/value", str), bytes.NewBufferString(`{"value": "hello!"}`))

	one := NewTestDataset(t, `"H5T_IEEE_F32LE"`, "[1]")
	putValue(t, one, `{"value": [2.5]}`)
	if got := jsonString(t, TestValue(t, one, "")); got != "[2.5]" {
		t.Errorf("Expected [2.5], got %s\n", got)
	}
}

func TestPostPoints(t *testing.T) {
	openTest(t)
	defer CloseTest()

	rank1 := NewTestDataset(t, `"H5T_STD_U16LE"`, "20")
	values := make([]int, 20)
	for i := range values {
		values[i] = i
	}
	putValue(t, rank1, fmt.Sprintf(`{"value": %s}`, jsonString(t, values)))
	r := TestHTTP(t, "POST", fmt.Sprintf("/datasets/%s/value", rank1), bytes.NewBufferString(`{"points": [19, 17, 13, 11, 7, 5, 3, 2]}`))
	if got := string(bytes.TrimSpace(r)); got != `{"value":[19,17,13,11,7,5,3,2]}` {
		t.Errorf("Bad rank 1 point read: %s\n", got)
	}

	rank2 := NewTestDataset(t, `"H5T_STD_I32LE"`, "[10, 10]")
	putValue(t, rank2, `{"points": [[3, 3], [0, 9]], "value": [9, 90]}`)
	var points [][2]int
	for i := 0; i < 10; i++ {
		points = append(points, [2]int{i, i})
	}
	r = TestHTTP(t, "POST", fmt.Sprintf("/datasets/%s/value", rank2), bytes.NewBufferString(fmt.Sprintf(`{"points": %s}`, jsonString(t, points))))
	var resp struct {
		Value []int `json:"value"`
	}
	if err := json.Unmarshal(r, &resp); err != nil {
		t.Fatalf("Unable to unmarshal point response: %s\n", string(r))
	}
	if len(resp.Value) != 10 || resp.Value[3] != 9 || resp.Value[0] != 0 {
		t.Errorf("Bad diagonal point read: %v\n", resp.Value)
	}
	if got := jsonString(t, TestValue(t, rank2, "dim1_start=0&dim1_stop=1&dim2_start=9")); got != "[[90]]" {
		t.Errorf("Point write not visible: %s\n", got)
	}

	TestBadHTTP(t, http.StatusBadRequest, "POST", fmt.Sprintf("/datasets/%s/value", rank2), bytes.NewBufferString(`{"points": [[1, 10]]}`))
	TestBadHTTP(t, http.StatusBadRequest, "POST", fmt.Sprintf("/datasets/%s/value", rank2), bytes.NewBufferString(`{"points": [4]}`))
	TestBadHTTP(t, http.StatusBadRequest, "POST", fmt.Sprintf("/datasets/%s/value", rank2), bytes.NewBufferString(`{}`))
}

func TestPutSelection(t *testing.T) {
	openTest(t)
	defer CloseTest()

	id := NewTestDataset(t, `"H5T_STD_I32LE"`, "10")
	putValue(t, id, `{"type": "H5T_STD_I32LE", "shape": 5, "start": 0, "stop": 5, "value": [2, 3, 5, 7, 11]}`)
	putValue(t, id, `{"type": "H5T_STD_I32LE", "shape": 5, "start": 5, "stop": 10, "value": [13, 17, 19, 23, 29]}`)
	if got := jsonString(t, TestValue(t, id, "")); got != "[2,3,5,7,11,13,17,19,23,29]" {
		t.Fatalf("Bad value after partial writes: %s\n", got)
	}

	bad := []struct {
		payload string
		status  int
	}{
		{`{"value": [1, 2, 3]}`, http.StatusBadRequest},
		{`{"start": 2, "stop": 4, "value": [1, 2, 3]}`, http.StatusBadRequest},
		{`{"type": "H5T_STD_I16LE", "value": [1,2,3,4,5,6,7,8,9,10]}`, http.StatusBadRequest},
		{`{"shape": 4, "start": 0, "stop": 5, "value": [1, 2, 3, 4, 5]}`, http.StatusBadRequest},
		{`{"start": "a", "value": [1]}`, http.StatusBadRequest},
		{`{"start": 0, "stop": 2}`, http.StatusBadRequest},
		{`{"start": 0, "stop": 2, "value": [1, 3000000000]}`, http.StatusBadRequest},
	}
	for _, tc := range bad {
		TestBadHTTP(t, tc.status, "PUT", fmt.Sprintf("/datasets/%s/value", id), bytes.NewBufferString(tc.payload))
	}
	if got := jsonString(t, TestValue(t, id, "")); got != "[2,3,5,7,11,13,17,19,23,29]" {
		t.Fatalf("Failed writes changed the dataset: %s\n", got)
	}
}

func TestTypedValues(t *testing.T) {
	openTest(t)
	defer CloseTest()

	tests := []struct {
		name  string
		dtype string
		shape string
		value string
	}{
		{"compound", `{"class": "H5T_COMPOUND", "fields": [
			{"name": "date", "type": "H5T_STD_I32LE"},
			{"name": "time", "type": {"class": "H5T_STRING", "charSet": "H5T_CSET_ASCII", "strPad": "H5T_STR_NULLPAD", "length": 6}},
			{"name": "temp", "type": "H5T_IEEE_F32LE"}]}`, "2",
			`[[24,"13:53",63.5],[25,"14:12",-2.25]]`},
		{"array", `{"class": "H5T_ARRAY", "base": "H5T_STD_I8LE", "dims": [2, 3]}`, "2",
			`[[[1,2,3],[4,5,6]],[[-1,-2,-3],[-4,-5,-6]]]`},
		{"vlen string", `{"class": "H5T_STRING", "charSet": "H5T_CSET_UTF8", "length": "H5T_VARIABLE"}`, "3",
			`["Parting","is such","sweet sorrow."]`},
		{"enum", `{"class": "H5T_ENUM", "base": "H5T_STD_I16BE", "mapping": {"SOLID": 0, "LIQUID": 1, "GAS": 2, "PLASMA": 3}}`, "[2, 2]",
			`[[0,1],[2,7]]`},
		{"vlen", `{"class": "H5T_VLEN", "base": "H5T_STD_I32LE"}`, "2",
			`[[0],[1,2,3]]`},
		{"object ref", `"H5T_STD_REF_OBJ"`, "2",
			`["/groups/052dcbbd-99a3-11e4-a8a2-3c15c2da029e","null"]`},
		{"region ref", `"H5T_STD_REF_DSETREG"`, "2",
			`[{"id":"ds2","select_type":"H5S_SEL_POINTS","selection":[[0,1],[2,11]]},{"id":"ds2","select_type":"H5S_SEL_HYPERSLABS","selection":[[[0,0],[0,2]],[[2,11],[2,13]]]}]`},
		{"non-finite", `"H5T_IEEE_F64LE"`, "4",
			`["NaN","Infinity","-Infinity",0.5]`},
	}
	for _, tc := range tests {
		id := NewTestDataset(t, tc.dtype, tc.shape)
		putValue(t, id, fmt.Sprintf(`{"value": %s}`, tc.value))
		if got := jsonString(t, TestValue(t, id, "")); got != tc.value {
			t.Errorf("%s:\n got %s\n expected %s\n", tc.name, got, tc.value)
		}
	}
}

func TestOpaque(t *testing.T) {
	openTest(t)
	defer CloseTest()

	id := NewTestDataset(t, `{"class": "H5T_OPAQUE", "size": 7, "tag": "Opaque datatype"}`, "4")
	TestBadHTTP(t, http.StatusNotImplemented, "GET", fmt.Sprintf("/datasets/%s/value", id), nil)
	TestBadHTTP(t, http.StatusNotImplemented, "PUT", fmt.Sprintf("/datasets/%s/value", id), bytes.NewBufferString(`{"value": [1, 2, 3, 4]}`))
	TestBadHTTP(t, http.StatusNotImplemented, "POST", fmt.Sprintf("/datasets/%s/value", id), bytes.NewBufferString(`{"points": [1]}`))
}

func TestConcurrentWrites(t *testing.T) {
	openTest(t)
	defer CloseTest()

	id := NewTestDataset(t, `"H5T_STD_I32LE"`, "[8, 16]")
	var wg sync.WaitGroup
	codes := make(chan int, 8)
	for row := 0; row < 8; row++ {
		wg.Add(1)
		go func(row int) {
			defer wg.Done()
			values := make([]int, 16)
			for j := range values {
				values[j] = row*100 + j
			}
			payload := fmt.Sprintf(`{"start": [%d, 0], "stop": [%d, 16], "value": [%s]}`, row, row+1, jsonString(t, values))
			resp := TestHTTPResponse(t, "PUT", fmt.Sprintf("/datasets/%s/value", id), bytes.NewBufferString(payload))
			codes <- resp.Code
		}(row)
	}
	wg.Wait()
	close(codes)
	for code := range codes {
		if code != http.StatusOK {
			t.Fatalf("Concurrent write returned %d\n", code)
		}
	}
	got := jsonString(t, TestValue(t, id, "dim2_start=15"))
	if got != "[[15],[115],[215],[315],[415],[515],[615],[715]]" {
		t.Errorf("Bad value after concurrent writes: %s\n", got)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	filename := filepath.Join(dir, "config.toml")
	content := `
[server]
httpAddress = "localhost:9000"
corsDomains = ["example.org"]

[logging]
logfile = "logs/dsvalue.log"
max_log_size = 100

[store]
engine = "badger"
path = "data"
compression = "zstd"
checksum = "crc32"
cache_mb = 64

[engine]
chunk_bytes = 1024
var_chunk_elements = 16
max_elements = 1000000
max_read_elements = 4096
`
	if err := os.WriteFile(filename, []byte(content), 0644); err != nil {
		t.Fatalf("can't write config: %v\n", err)
	}
	config, err := LoadConfig(filename)
	if err != nil {
		t.Fatalf("LoadConfig: %v\n", err)
	}
	if config.HTTPAddress() != "localhost:9000" {
		t.Errorf("Bad http address %q\n", config.HTTPAddress())
	}
	if config.Logging.Logfile != filepath.Join(dir, "logs/dsvalue.log") {
		t.Errorf("Logfile not made absolute: %q\n", config.Logging.Logfile)
	}
	sc, err := config.StoreConfig()
	if err != nil {
		t.Fatalf("StoreConfig: %v\n", err)
	}
	if sc.Engine != "badger" {
		t.Errorf("Bad engine %q\n", sc.Engine)
	}
	if path, _, _ := sc.GetString("path"); path != filepath.Join(dir, "data") {
		t.Errorf("Store path not made absolute: %q\n", path)
	}
	if size, _, _ := sc.GetInt("cache_mb"); size != 64 {
		t.Errorf("Bad cache size %d\n", size)
	}
	dc, err := config.DatasetConfig()
	if err != nil {
		t.Fatalf("DatasetConfig: %v\n", err)
	}
	if dc.ChunkBytes != 1024 || dc.VarChunkElements != 16 || dc.MaxElements != 1000000 || dc.MaxReadElements != 4096 {
		t.Errorf("Bad dataset limits %+v\n", dc)
	}
	if dc.Compression != dsv.Zstd || dc.Checksum != dsv.CRC32 {
		t.Errorf("Bad dataset config %+v\n", dc)
	}

	if _, err := LoadConfig(filepath.Join(dir, "missing.toml")); err == nil {
		t.Errorf("Expected error for missing config file\n")
	}
	bad := &Config{Store: map[string]interface{}{"compression": "lzma"}}
	if _, err := bad.DatasetConfig(); err == nil {
		t.Errorf("Expected error for unknown compression\n")
	}
	if (&Config{}).HTTPAddress() != DefaultWebAddress {
		t.Errorf("Expected default web address\n")
	}
}
