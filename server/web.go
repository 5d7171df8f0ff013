package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/blang/semver"
	"github.com/rs/cors"
	"github.com/zenazn/goji/web"
	"github.com/zenazn/goji/web/middleware"

	"github.com/janelia-flyem/dsvalue/dataset"
	"github.com/janelia-flyem/dsvalue/dsv"
	"github.com/janelia-flyem/dsvalue/selection"
	"github.com/janelia-flyem/dsvalue/storage"
)

// Version is the version of the dsvalue server.
var Version = semver.MustParse("0.1.0")

// MaxPayloadBytes bounds request bodies.
const MaxPayloadBytes = 256 * dsv.Mega

// BadRequest writes an error message with status 400 and logs it.
func BadRequest(w http.ResponseWriter, r *http.Request, format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	errorMsg := fmt.Sprintf("%s (%s).", message, r.URL.Path)
	dsv.Errorf("%s\n", errorMsg)
	http.Error(w, errorMsg, http.StatusBadRequest)
}

// statusOf maps error kinds onto HTTP status codes.
func statusOf(err error) int {
	kind := dsv.KindOf(err)
	switch {
	case kind.IsClientFault():
		return http.StatusBadRequest
	case kind == dsv.UnsupportedEncoding, kind == dsv.NotImplemented:
		return http.StatusNotImplemented
	case kind == dsv.NotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// errorResponse writes err with the status its kind maps to.  Only server faults
// are logged as errors.
func errorResponse(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	errorMsg := fmt.Sprintf("%v (%s %s)", err, r.Method, r.URL.Path)
	if status == http.StatusInternalServerError {
		dsv.Errorf("%s\n", errorMsg)
	} else {
		dsv.Debugf("%d: %s\n", status, errorMsg)
	}
	http.Error(w, errorMsg, status)
}

func jsonResponse(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		dsv.Errorf("Unable to write JSON response to %s %s: %v\n", r.Method, r.URL.Path, err)
	}
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxPayloadBytes))
	if err != nil {
		BadRequest(w, r, "unable to read request body: %v", err)
		return nil, false
	}
	return data, true
}

// logRequests is middleware that logs each request with its elapsed time.
func logRequests(c *web.C, h http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		timedLog := dsv.NewTimeLog()
		h.ServeHTTP(w, r)
		timedLog.Infof("%s %s [%s]", r.Method, r.URL, middleware.GetReqID(*c))
	}
	return http.HandlerFunc(fn)
}

// initRoutes builds the request router wrapped for CORS.
func (s *Server) initRoutes() http.Handler {
	mux := web.New()
	mux.Use(middleware.RequestID)
	mux.Use(logRequests)
	mux.Use(middleware.Recoverer)

	mux.Get("/about", s.aboutHandler)
	mux.Post("/datasets", s.createHandler)
	mux.Get("/datasets", s.listHandler)
	mux.Get("/datasets/:id", s.datasetHandler)
	mux.Delete("/datasets/:id", s.deleteHandler)
	mux.Get("/datasets/:id/value", s.readHandler)
	mux.Post("/datasets/:id/value", s.pointsHandler)
	mux.Put("/datasets/:id/value", s.writeHandler)
	mux.Compile()

	options := cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
	}
	if len(s.config.Server.CorsDomains) != 0 {
		options.AllowedOrigins = s.config.Server.CorsDomains
	}
	return cors.New(options).Handler(mux)
}

func (s *Server) aboutHandler(w http.ResponseWriter, r *http.Request) {
	about := map[string]interface{}{
		"version": Version.String(),
		"engines": storage.EnginesAvailable(),
		"store":   s.store.String(),
		"loaded":  s.catalog.Len(),
	}
	if s.config.Server.Note != "" {
		about["note"] = s.config.Server.Note
	}
	if cached, ok := s.store.(interface{ HitRate() float64 }); ok {
		about["cache hit rate"] = cached.HitRate()
	}
	jsonResponse(w, r, http.StatusOK, about)
}

// datasetJSON is the wire description of a dataset.
type datasetJSON struct {
	ID    string          `json:"id"`
	Type  json.RawMessage `json:"type"`
	Shape dsv.Shape       `json:"shape"`
}

func describe(d *dataset.Dataset) (*datasetJSON, error) {
	typeJSON, err := d.Type.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return &datasetJSON{ID: d.ID, Type: typeJSON, Shape: d.Shape}, nil
}

func (s *Server) createHandler(w http.ResponseWriter, r *http.Request) {
	data, ok := readBody(w, r)
	if !ok {
		return
	}
	var req struct {
		Type  json.RawMessage `json:"type"`
		Shape json.RawMessage `json:"shape"`
	}
	if err := validatePayload(createSchema, data, &req); err != nil {
		errorResponse(w, r, err)
		return
	}
	d, err := s.catalog.Create(req.Type, req.Shape)
	if err != nil {
		errorResponse(w, r, err)
		return
	}
	desc, err := describe(d)
	if err != nil {
		errorResponse(w, r, err)
		return
	}
	jsonResponse(w, r, http.StatusCreated, desc)
}

func (s *Server) listHandler(w http.ResponseWriter, r *http.Request) {
	ids, err := s.catalog.List()
	if err != nil {
		errorResponse(w, r, err)
		return
	}
	jsonResponse(w, r, http.StatusOK, map[string]interface{}{"datasets": ids})
}

func (s *Server) datasetHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	d, err := s.catalog.Get(c.URLParams["id"])
	if err != nil {
		errorResponse(w, r, err)
		return
	}
	desc, err := describe(d)
	if err != nil {
		errorResponse(w, r, err)
		return
	}
	jsonResponse(w, r, http.StatusOK, desc)
}

func (s *Server) deleteHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	if err := s.catalog.Delete(c.URLParams["id"]); err != nil {
		errorResponse(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) readHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	d, err := s.catalog.Get(c.URLParams["id"])
	if err != nil {
		errorResponse(w, r, err)
		return
	}
	value, err := s.engine.ReadQuery(d, selection.ParamsFromQuery(r.URL.Query()))
	if err != nil {
		errorResponse(w, r, err)
		return
	}
	jsonResponse(w, r, http.StatusOK, map[string]interface{}{"value": value})
}

func (s *Server) pointsHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	d, err := s.catalog.Get(c.URLParams["id"])
	if err != nil {
		errorResponse(w, r, err)
		return
	}
	data, ok := readBody(w, r)
	if !ok {
		return
	}
	var req struct {
		Points interface{} `json:"points"`
	}
	if err := validatePayload(pointsSchema, data, &req); err != nil {
		errorResponse(w, r, err)
		return
	}
	value, err := s.engine.ReadPoints(d, req.Points)
	if err != nil {
		errorResponse(w, r, err)
		return
	}
	jsonResponse(w, r, http.StatusOK, map[string]interface{}{"value": value})
}

func (s *Server) writeHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	d, err := s.catalog.Get(c.URLParams["id"])
	if err != nil {
		errorResponse(w, r, err)
		return
	}
	data, ok := readBody(w, r)
	if !ok {
		return
	}
	var payload dataset.Payload
	if err := validatePayload(writeSchema, data, &payload); err != nil {
		errorResponse(w, r, err)
		return
	}
	if err := s.engine.WritePayload(d, &payload); err != nil {
		errorResponse(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
