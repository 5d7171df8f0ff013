package server

import (
	"net/http"
	"time"

	"github.com/janelia-flyem/dsvalue/dataset"
	"github.com/janelia-flyem/dsvalue/dsv"
	"github.com/janelia-flyem/dsvalue/storage"
)

// Server hosts datasets in one store.
type Server struct {
	config  *Config
	store   storage.ChunkStore
	engine  *dataset.Engine
	catalog *Catalog
	handler http.Handler
}

// New opens the configured store and prepares the web routes.
func New(config *Config) (*Server, error) {
	storeConfig, err := config.StoreConfig()
	if err != nil {
		return nil, err
	}
	engineConfig, err := config.DatasetConfig()
	if err != nil {
		return nil, err
	}
	store, created, err := storage.NewStore(storeConfig)
	if err != nil {
		return nil, err
	}
	if created {
		dsv.Infof("Initialized new %s\n", store)
	}
	engine := dataset.NewEngine(store, engineConfig)
	s := &Server{
		config:  config,
		store:   store,
		engine:  engine,
		catalog: NewCatalog(engine),
	}
	s.handler = s.initRoutes()
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Catalog returns the datasets of this server.
func (s *Server) Catalog() *Catalog {
	return s.catalog
}

// Serve listens and serves HTTP requests on the configured address and doesn't let
// stay-alive connections hog goroutines for more than an hour.
func (s *Server) Serve() error {
	address := s.config.HTTPAddress()
	dsv.Infof("Web server listening at %s ...\n", address)
	src := &http.Server{
		Addr:        address,
		Handler:     s,
		ReadTimeout: 1 * time.Hour,
	}
	return src.ListenAndServe()
}

// Close closes the store.
func (s *Server) Close() {
	if s.store != nil {
		s.store.Close()
		s.store = nil
	}
}
