// Copyright 2025 The daybreak Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package daybreak

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kleinmatic/daybreak/internal/journal"
)

func testPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test.db")
}

func openTest(t *testing.T, path string, opts ...Option) *DB {
	t.Helper()
	db, err := Open(path, opts...)
	require.NoError(t, err)
	return db
}

func mustGet(t *testing.T, db *DB, key any) any {
	t.Helper()
	v, ok, err := db.Get(key)
	require.NoError(t, err)
	require.True(t, ok, "key %v missing", key)
	return v
}

func TestOpenMissingDirectory(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "no", "such", "dir", "x.db"))
	require.Error(t, err)
}

func TestBasicPutGet(t *testing.T) {
	path := testPath(t)

	db := openTest(t, path)
	require.NoError(t, db.Set("alpha", "1"))
	require.NoError(t, db.Sync())
	require.NoError(t, db.Close())

	db = openTest(t, path)
	defer db.Close()
	assert.Equal(t, "1", mustGet(t, db, "alpha"))
	assert.Equal(t, 1, db.Len())
}

func TestDeletePersists(t *testing.T) {
	path := testPath(t)

	db := openTest(t, path)
	require.NoError(t, db.SetSync("k", "v"))
	require.NoError(t, db.DeleteSync("k"))
	require.NoError(t, db.Close())

	db = openTest(t, path)
	defer db.Close()
	has, err := db.Has("k")
	require.NoError(t, err)
	assert.False(t, has)
	assert.Zero(t, db.Len())
}

func TestReplayOrder(t *testing.T) {
	path := testPath(t)

	db := openTest(t, path)
	require.NoError(t, db.Set("a", "1"))
	require.NoError(t, db.Set("b", "2"))
	require.NoError(t, db.Set("a", "3"))
	require.NoError(t, db.Sync())
	require.NoError(t, db.Close())

	// re-assigning "a" moved it to the most-recent position
	db = openTest(t, path)
	defer db.Close()
	assert.Equal(t, []string{"b", "a"}, db.Keys())

	var got [][2]string
	db.Range(func(k string, v any) bool {
		got = append(got, [2]string{k, v.(string)})
		return true
	})
	assert.Equal(t, [][2]string{{"b", "2"}, {"a", "3"}}, got)
}

func TestDeleteThenPutMovesToEnd(t *testing.T) {
	db := openTest(t, testPath(t))
	defer db.Close()

	require.NoError(t, db.Set("a", "1"))
	require.NoError(t, db.Set("b", "2"))
	require.NoError(t, db.Delete("a"))
	require.NoError(t, db.Set("a", "3"))
	assert.Equal(t, []string{"b", "a"}, db.Keys())
}

func TestRoundTripFold(t *testing.T) {
	path := testPath(t)
	db := openTest(t, path)

	expected := make(map[string]string)
	for i := 0; i < 200; i++ {
		k := fmt.Sprintf("key-%d", i%23)
		switch {
		case i%7 == 3:
			require.NoError(t, db.Delete(k))
			delete(expected, k)
		default:
			v := fmt.Sprintf("value-%d", i)
			require.NoError(t, db.Set(k, v))
			expected[k] = v
		}
	}
	require.NoError(t, db.Sync())
	require.NoError(t, db.Close())

	db = openTest(t, path)
	defer db.Close()
	assert.Equal(t, len(expected), db.Len())
	for k, v := range expected {
		assert.Equal(t, v, mustGet(t, db, k))
	}
}

func TestGetMissing(t *testing.T) {
	db := openTest(t, testPath(t))
	defer db.Close()

	v, ok, err := db.Get("nope")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, v)
}

func TestDefaultConstant(t *testing.T) {
	path := testPath(t)

	db := openTest(t, path, WithDefault("fallback"))
	assert.Equal(t, "fallback", mustGet(t, db, "missing"))

	// the default was installed, not just returned
	has, err := db.Has("missing")
	require.NoError(t, err)
	assert.True(t, has)
	require.NoError(t, db.Close())

	// and it persists across reopen with no default configured
	db = openTest(t, path)
	defer db.Close()
	assert.Equal(t, "fallback", mustGet(t, db, "missing"))
}

func TestDefaultFactory(t *testing.T) {
	db := openTest(t, testPath(t), WithDefaultFunc(func(key any) any {
		return "made-for-" + key.(string)
	}))
	defer db.Close()

	assert.Equal(t, "made-for-x", mustGet(t, db, "x"))
	assert.Equal(t, "made-for-x", mustGet(t, db, "x"))
	assert.Equal(t, 1, db.Len())
}

func TestKeyTypes(t *testing.T) {
	db := openTest(t, testPath(t))
	defer db.Close()

	require.NoError(t, db.Set([]byte{0xde, 0xad}, "v"))
	assert.Equal(t, "v", mustGet(t, db, []byte{0xde, 0xad}))

	err := db.Set(42, "v")
	assert.ErrorIs(t, err, ErrKeyType)
	err = db.Set("", "v")
	assert.ErrorIs(t, err, ErrKeyType)
	_, _, err = db.Get(struct{}{})
	assert.ErrorIs(t, err, ErrKeyType)
}

func TestIdempotentClose(t *testing.T) {
	db := openTest(t, testPath(t))

	require.NoError(t, db.Close())
	assert.ErrorIs(t, db.Close(), ErrClosed)

	assert.ErrorIs(t, db.Set("k", "v"), ErrClosed)
	_, _, err := db.Get("k")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, db.Sync(), ErrClosed)
	assert.ErrorIs(t, db.Compact(), ErrClosed)
	assert.ErrorIs(t, db.Clear(), ErrClosed)
}

func TestHeaderStability(t *testing.T) {
	path := testPath(t)

	db := openTest(t, path)
	require.NoError(t, db.Close())

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, journal.Header("json"), contents)
}

func TestWrongCodecFailsFast(t *testing.T) {
	path := testPath(t)

	db := openTest(t, path)
	require.NoError(t, db.SetSync("k", "v"))
	require.NoError(t, db.Close())

	_, err := Open(path, WithCodec(Raw()))
	assert.ErrorIs(t, err, ErrWrongFormat)
}

func TestSnappyCodecPersistence(t *testing.T) {
	path := testPath(t)

	db := openTest(t, path, WithCodec(Snappy(JSON())))
	require.NoError(t, db.SetSync("k", "vvvvvvvvvvvvvvvvvvvvvvvvvvvvvv"))
	require.NoError(t, db.Close())

	db = openTest(t, path, WithCodec(Snappy(JSON())))
	defer db.Close()
	assert.Equal(t, "vvvvvvvvvvvvvvvvvvvvvvvvvvvvvv", mustGet(t, db, "k"))
}

func TestCRCTamper(t *testing.T) {
	path := testPath(t)

	db := openTest(t, path)
	require.NoError(t, db.SetSync("alpha", "1"))
	require.NoError(t, db.Close())

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	contents[len(contents)-1] ^= 0xff
	require.NoError(t, os.WriteFile(path, contents, 0o644))

	_, err = Open(path)
	assert.ErrorIs(t, err, ErrMalformedRecord)
}

func TestLogSizeMonotonic(t *testing.T) {
	db := openTest(t, testPath(t))
	defer db.Close()

	var last int64
	for i := 0; i < 10; i++ {
		require.NoError(t, db.SetSync("k", fmt.Sprintf("%d", i)))
		size := db.LogSize()
		assert.GreaterOrEqual(t, size, last)
		last = size
	}
	assert.GreaterOrEqual(t, last, int64(10))
}

func TestLock(t *testing.T) {
	path := testPath(t)
	db := openTest(t, path)
	defer db.Close()

	err := db.Lock(func() error {
		return db.Set("inside", "1")
	})
	require.NoError(t, err)

	// the closing flush made the record durable before the lock dropped
	other := openTest(t, path)
	defer other.Close()
	assert.Equal(t, "1", mustGet(t, other, "inside"))
}

func TestLockPropagatesError(t *testing.T) {
	db := openTest(t, testPath(t))
	defer db.Close()

	sentinel := fmt.Errorf("boom")
	err := db.Lock(func() error { return sentinel })
	assert.ErrorIs(t, err, sentinel)

	// the file lock was released; mutations still work
	require.NoError(t, db.SetSync("k", "v"))
}

func TestWriterFailureSurfaces(t *testing.T) {
	db := openTest(t, testPath(t))

	// sabotage the append handle the way a yanked disk would
	db.mu.Lock()
	require.NoError(t, db.out.Close())
	db.mu.Unlock()

	require.NoError(t, db.Set("k", "v"))
	err := db.Sync()
	require.Error(t, err)

	// the failure was consumed; the next sync is clean again
	require.NoError(t, db.Sync())

	_ = db.Close()
}

func TestConcurrentOperations(t *testing.T) {
	db := openTest(t, testPath(t))
	defer db.Close()

	const numOps = 200
	const numGoroutines = 8

	var wg sync.WaitGroup
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < numOps; j++ {
				key := fmt.Sprintf("key-%d-%d", id, j)
				if err := db.Set(key, fmt.Sprintf("value-%d-%d", id, j)); err != nil {
					t.Errorf("Set failed: %v", err)
				}
				if _, _, err := db.Get(key); err != nil {
					t.Errorf("Get failed: %v", err)
				}
				if j%50 == 0 {
					if err := db.Sync(); err != nil {
						t.Errorf("Sync failed: %v", err)
					}
				}
			}
		}(i)
	}
	wg.Wait()

	require.NoError(t, db.Sync())
	assert.Equal(t, numOps*numGoroutines, db.Len())
}

func TestCloseAll(t *testing.T) {
	path := testPath(t)
	db := openTest(t, path)
	require.NoError(t, db.Set("k", "v"))

	require.NoError(t, CloseAll())
	assert.ErrorIs(t, db.Close(), ErrClosed)

	// the queued write was drained before the handles closed
	db = openTest(t, path)
	defer db.Close()
	assert.Equal(t, "v", mustGet(t, db, "k"))
}
