package service

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"datanode/internal/logging"
	"datanode/internal/model"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *LocalStorageService {
	t.Helper()
	s, err := NewStorageService(afero.NewOsFs(), filepath.Join(t.TempDir(), "blocks"), logging.Discard())
	require.NoError(t, err)
	return s
}

func TestStorageCreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "a", "b", "c")
	_, err := NewStorageService(afero.NewOsFs(), root, logging.Discard())
	require.NoError(t, err)
	require.DirExists(t, root)
}

func TestStorageRootIsFile(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/data", []byte("x"), 0644))
	_, err := NewStorageService(fsys, "/data", logging.Discard())
	require.Error(t, err)
}

func TestStorageWriteReadOverwrite(t *testing.T) {
	s := newTestStorage(t)

	require.NoError(t, s.WriteBlock("blk_1", []byte("first")))
	data, err := s.ReadBlock("blk_1")
	require.NoError(t, err)
	require.Equal(t, []byte("first"), data)

	require.NoError(t, s.WriteBlock("blk_1", []byte("2nd")))
	data, err = s.ReadBlock("blk_1")
	require.NoError(t, err)
	require.Equal(t, []byte("2nd"), data)
}

func TestStorageEmptyBlockIsNotMissing(t *testing.T) {
	s := newTestStorage(t)

	require.NoError(t, s.WriteBlock("empty", nil))
	data, err := s.ReadBlock("empty")
	require.NoError(t, err)
	require.Empty(t, data)
	require.True(t, s.BlockExists("empty"))

	_, err = s.ReadBlock("never-written")
	require.True(t, errors.Is(err, model.ErrBlockNotFound))
}

func TestStorageNestedIDs(t *testing.T) {
	s := newTestStorage(t)

	require.NoError(t, s.WriteBlock("files/report.txt/block_0", []byte("abc")))
	require.FileExists(t, filepath.Join(s.RootDir(), "files", "report.txt", "block_0"))

	// 目录本身不是块
	_, err := s.ReadBlock("files/report.txt")
	require.True(t, errors.Is(err, model.ErrBlockNotFound))

	require.NoError(t, s.DeleteBlock("files/report.txt/block_0"))
	require.NoDirExists(t, filepath.Join(s.RootDir(), "files"))
	require.DirExists(t, s.RootDir())
}

func TestStorageDelete(t *testing.T) {
	s := newTestStorage(t)

	require.NoError(t, s.WriteBlock("blk", []byte("x")))
	require.NoError(t, s.DeleteBlock("blk"))
	require.False(t, s.BlockExists("blk"))

	_, err := s.ReadBlock("blk")
	require.True(t, errors.Is(err, model.ErrBlockNotFound))

	err = s.DeleteBlock("blk")
	require.True(t, errors.Is(err, model.ErrBlockNotFound))
}

func TestStorageRejectsInvalidIDs(t *testing.T) {
	s := newTestStorage(t)

	reserved := "dir/.blk." + uuid.NewString() + ".tmp"
	for _, id := range []string{"", ".", "a/..", "./", "../escape", "/abs/path", "a/../../b", reserved} {
		t.Run(id, func(t *testing.T) {
			err := s.WriteBlock(id, []byte("x"))
			require.True(t, errors.Is(err, model.ErrInvalidBlockID), "%v", err)
			_, err = s.ReadBlock(id)
			require.True(t, errors.Is(err, model.ErrInvalidBlockID), "%v", err)
			require.Error(t, s.DeleteBlock(id))
		})
	}
}

func TestStorageRootIDLeavesParentUntouched(t *testing.T) {
	parent := t.TempDir()
	s, err := NewStorageService(afero.NewOsFs(), filepath.Join(parent, "root"), logging.Discard())
	require.NoError(t, err)

	for _, id := range []string{".", "a/.."} {
		require.True(t, errors.Is(s.WriteBlock(id, []byte("hi")), model.ErrInvalidBlockID))
	}

	entries, err := os.ReadDir(parent)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "root", entries[0].Name())
}

func TestStorageDottedIDsAreOrdinaryBlocks(t *testing.T) {
	s := newTestStorage(t)

	for _, id := range []string{".x.tmp", "dir/.hidden", ".a.not-a-uuid.tmp"} {
		require.NoError(t, s.WriteBlock(id, []byte(id)))
		data, err := s.ReadBlock(id)
		require.NoError(t, err)
		require.Equal(t, []byte(id), data)
	}

	blocks, err := s.ListBlocks()
	require.NoError(t, err)
	sort.Strings(blocks)
	require.Equal(t, []string{".a.not-a-uuid.tmp", ".x.tmp", "dir/.hidden"}, blocks)

	require.NoError(t, s.DeleteBlock(".x.tmp"))
	require.False(t, s.BlockExists(".x.tmp"))
}

func TestIsTempFile(t *testing.T) {
	id := uuid.NewString()
	require.True(t, isTempFile(".blk."+id+".tmp"))
	require.True(t, isTempFile(".a.b."+id+".tmp"))
	require.False(t, isTempFile("."+id+".tmp"))
	require.False(t, isTempFile(".blk"+id+".tmp"))
	require.False(t, isTempFile("blk."+id+".tmp"))
	require.False(t, isTempFile(".x.tmp"))
	require.False(t, isTempFile(".blk.1234.tmp"))
}

func TestStorageWriteFailureIsReported(t *testing.T) {
	base := afero.NewMemMapFs()
	require.NoError(t, base.MkdirAll("/data", 0755))
	s, err := NewStorageService(afero.NewReadOnlyFs(base), "/data", logging.Discard())
	require.NoError(t, err)

	err = s.WriteBlock("blk", []byte("x"))
	require.Error(t, err)
	require.False(t, errors.Is(err, model.ErrBlockNotFound))

	ok, err := afero.Exists(base, "/data/blk")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStorageListAndStat(t *testing.T) {
	s := newTestStorage(t)

	require.NoError(t, s.WriteBlock("a", []byte("12345")))
	require.NoError(t, s.WriteBlock("dir/b", []byte("123")))
	// 遗留的临时文件不计入
	require.NoError(t, os.WriteFile(filepath.Join(s.RootDir(), ".c."+uuid.NewString()+".tmp"), []byte("zz"), 0644))

	blocks, err := s.ListBlocks()
	require.NoError(t, err)
	sort.Strings(blocks)
	require.Equal(t, []string{"a", "dir/b"}, blocks)

	stat, err := s.GetStat()
	require.NoError(t, err)
	require.Equal(t, uint64(2), stat.BlockCount)
	require.Equal(t, uint64(8), stat.UsedSpace)
	require.NotZero(t, stat.TotalCapacity)
}

func TestStorageFreeSpaceIsLive(t *testing.T) {
	s := newTestStorage(t)

	var calls int
	s.usage = func(path string) (*disk.UsageStat, error) {
		calls++
		return &disk.UsageStat{Path: path, Free: uint64(100 * calls), Total: 1000}, nil
	}

	free, err := s.FreeSpace()
	require.NoError(t, err)
	require.Equal(t, uint64(100), free)

	free, err = s.FreeSpace()
	require.NoError(t, err)
	require.Equal(t, uint64(200), free)

	s.usage = disk.Usage
	free, err = s.FreeSpace()
	require.NoError(t, err)
	require.NotZero(t, free)
}

func TestStorageConcurrentOverwrite(t *testing.T) {
	s := newTestStorage(t)

	a := bytes.Repeat([]byte("a"), 64*1024)
	b := bytes.Repeat([]byte("b"), 64*1024)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.WriteBlock("shared", a))
		}()
		go func() {
			defer wg.Done()
			data, err := s.ReadBlock("shared")
			if err == nil {
				assert.True(t, bytes.Equal(data, a) || bytes.Equal(data, b), "torn read")
			}
		}()
	}
	wg.Wait()

	require.NoError(t, s.WriteBlock("shared", b))
	data, err := s.ReadBlock("shared")
	require.NoError(t, err)
	require.Equal(t, b, data)
}
