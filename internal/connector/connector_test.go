/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

package connector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthConnectorRequiresCredentials(t *testing.T) {
	h := NewHealthConnector(HealthConfig{InstanceID: "h1"})
	_, err := h.Authorize(context.Background())
	assert.Error(t, err)
}

func TestHealthConnectorAuthorizeAndSync(t *testing.T) {
	h := NewHealthConnector(HealthConfig{InstanceID: "h1", ClientID: "cid", ClientSecret: "secret"})
	ctx := context.Background()

	res, err := h.Authorize(ctx)
	require.NoError(t, err)
	assert.True(t, res.Authorized)
	assert.NotEmpty(t, res.Token)

	h.StageRecords([]RawRecord{{SourceType: "health", SourceID: "s1"}})
	recs, cursor, err := h.Sync(ctx, "")
	require.NoError(t, err)
	assert.Len(t, recs, 1)
	assert.NotEmpty(t, cursor)

	recs, _, err = h.Sync(ctx, cursor)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestHealthConnectorSyncBeforeAuthorizeFails(t *testing.T) {
	h := NewHealthConnector(HealthConfig{InstanceID: "h1"})
	_, _, err := h.Sync(context.Background(), "")
	assert.Error(t, err)
}

func TestHealthConnectorRevokeClearsState(t *testing.T) {
	h := NewHealthConnector(HealthConfig{InstanceID: "h1", ClientID: "cid", ClientSecret: "secret"})
	ctx := context.Background()
	_, err := h.Authorize(ctx)
	require.NoError(t, err)
	require.NoError(t, h.Healthcheck(ctx))

	require.NoError(t, h.Revoke(ctx))
	assert.Error(t, h.Healthcheck(ctx))
}

func TestFileImportConnectorImportStampsContentHash(t *testing.T) {
	f := NewFileImportConnector(FileImportConfig{InstanceID: "f1"})
	rec, err := f.Import("file-1", map[string]any{"b": 2, "a": 1})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ContentHash)
	assert.Equal(t, "f1", rec.ConnectorID)

	rec2, err := f.Import("file-2", map[string]any{"a": 1, "b": 2})
	require.NoError(t, err)
	assert.Equal(t, rec.ContentHash, rec2.ContentHash, "key order must not change the content hash")
}

func TestFileImportConnectorSyncDrainsPending(t *testing.T) {
	f := NewFileImportConnector(FileImportConfig{InstanceID: "f1"})
	_, err := f.Import("s1", map[string]any{"x": 1})
	require.NoError(t, err)

	recs, _, err := f.Sync(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	recs, _, err = f.Sync(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestRegistryRegisterGetByKind(t *testing.T) {
	r := NewRegistry()
	h := NewHealthConnector(HealthConfig{InstanceID: "h1"})
	fi := NewFileImportConnector(FileImportConfig{InstanceID: "f1"})
	r.Register(h)
	r.Register(fi)

	got, ok := r.Get("h1")
	require.True(t, ok)
	assert.Equal(t, KindHealth, got.Kind())

	assert.Len(t, r.ByKind(KindHealth), 1)
	assert.Len(t, r.ByKind(KindFileImport), 1)
	assert.Len(t, r.List(), 2)

	r.Unregister("h1")
	assert.Len(t, r.List(), 1)
	_, ok = r.Get("h1")
	assert.False(t, ok)
}
