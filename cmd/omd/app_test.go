package main

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sujanshetty01/OMD/pkg/catalog/filecatalog"
	"github.com/sujanshetty01/OMD/pkg/catalog/openmetadata"
	"github.com/sujanshetty01/OMD/pkg/config"
	"github.com/sujanshetty01/OMD/pkg/logging"
	"github.com/sujanshetty01/OMD/pkg/objectstore"
	"github.com/sujanshetty01/OMD/pkg/objectstore/minio"
)

func TestNewCatalog(t *testing.T) {
	cat, err := newCatalog(config.CatalogConfig{Driver: "file", Path: t.TempDir()}, logging.Discard())
	require.NoError(t, err)
	assert.IsType(t, &filecatalog.FileCatalog{}, cat)

	cat, err = newCatalog(config.CatalogConfig{Driver: "openmetadata", Endpoint: "http://localhost:8585/api"}, logging.Discard())
	require.NoError(t, err)
	assert.IsType(t, &openmetadata.Client{}, cat)

	_, err = newCatalog(config.CatalogConfig{Driver: "atlas"}, logging.Discard())
	assert.Error(t, err)
}

func TestNewLakeStore(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	store, err := newLakeStore(config.LakeStoreConfig{}, logger)
	require.NoError(t, err)
	assert.IsType(t, &objectstore.Memory{}, store)
	assert.Contains(t, logs.String(), "level=WARN")
	assert.Contains(t, logs.String(), "kept in memory")

	logs.Reset()
	store, err = newLakeStore(config.Default().LakeStore, logger)
	require.NoError(t, err)
	assert.IsType(t, &minio.Client{}, store)
	assert.Empty(t, logs.String())
}
