// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenInMemory_PutGet(t *testing.T) {
	db, err := OpenInMemory()
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	require.NoError(t, db.Put(ctx, []byte("emb:a"), []byte("v1"), 0))
	got, err := db.Get(ctx, []byte("emb:a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)

	_, err = db.Get(ctx, []byte("emb:missing"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpen_Persistent(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	db, err := Open(DefaultConfig(dir))
	require.NoError(t, err)
	require.NoError(t, db.Put(ctx, []byte("k"), []byte("persisted"), 0))
	require.NoError(t, db.Close())

	db, err = Open(DefaultConfig(dir))
	require.NoError(t, err)
	defer db.Close()
	got, err := db.Get(ctx, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("persisted"), got)
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

func TestPut_TTL(t *testing.T) {
	db, err := OpenInMemory()
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	require.NoError(t, db.Put(ctx, []byte("short"), []byte("x"), time.Second))
	_, err = db.Get(ctx, []byte("short"))
	require.NoError(t, err)

	time.Sleep(1100 * time.Millisecond)
	_, err = db.Get(ctx, []byte("short"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCountPrefix(t *testing.T) {
	db, err := OpenInMemory()
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	for _, k := range []string{"emb:1", "emb:2", "doc:1"} {
		require.NoError(t, db.Put(ctx, []byte(k), []byte("v"), 0))
	}
	n, err := db.CountPrefix(ctx, []byte("emb:"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestTxn_CancelledContext(t *testing.T) {
	db, err := OpenInMemory()
	require.NoError(t, err)
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = db.Put(ctx, []byte("k"), []byte("v"), 0)
	assert.ErrorIs(t, err, context.Canceled)
}
