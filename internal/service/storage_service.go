package service

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"datanode/internal/logging"
	"datanode/internal/model"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/spf13/afero"
)

const tempSuffix = ".tmp"

// LocalStorageService 本地存储服务实现，每个块对应存储根目录下的一个文件
type LocalStorageService struct {
	fs      afero.Fs
	rootDir string
	logger  *slog.Logger

	// 所有操作串行执行，避免读到替换了一半的文件
	mu sync.Mutex

	usage func(path string) (*disk.UsageStat, error)
}

// NewStorageService 创建新的存储服务实例
func NewStorageService(fsys afero.Fs, rootDir string, logger *slog.Logger) (*LocalStorageService, error) {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	rootDir = filepath.Clean(rootDir)

	// 确保根目录存在
	if info, err := fsys.Stat(rootDir); err != nil {
		if err := fsys.MkdirAll(rootDir, 0755); err != nil {
			return nil, errors.Wrapf(err, "failed to create root directory %s", rootDir)
		}
	} else if !info.IsDir() {
		return nil, errors.Newf("storage root %s is not a directory", rootDir)
	}

	return &LocalStorageService{
		fs:      fsys,
		rootDir: rootDir,
		logger:  logging.Component(logger, "storage"),
		usage:   disk.Usage,
	}, nil
}

// RootDir 返回存储根目录
func (s *LocalStorageService) RootDir() string {
	return s.rootDir
}

// WriteBlock 将数据块写入本地文件系统
// 先写临时文件并 Sync，再重命名覆盖目标文件
func (s *LocalStorageService) WriteBlock(blockID string, data []byte) error {
	filePath, err := s.getBlockFilePath(blockID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// 确保目录存在
	dir := filepath.Dir(filePath)
	if _, err := s.fs.Stat(dir); err != nil {
		if err := s.fs.MkdirAll(dir, 0755); err != nil {
			return errors.Wrapf(err, "failed to create directory %s", dir)
		}
	}

	tempFile := filepath.Join(dir, "."+filepath.Base(filePath)+"."+uuid.NewString()+tempSuffix)
	file, err := s.fs.OpenFile(tempFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return errors.Wrapf(err, "failed to create temp file %s", tempFile)
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		s.fs.Remove(tempFile)
		return errors.Wrap(err, "failed to write data to file")
	}

	if err := file.Sync(); err != nil {
		file.Close()
		s.fs.Remove(tempFile)
		return errors.Wrap(err, "failed to sync file")
	}

	if err := file.Close(); err != nil {
		s.fs.Remove(tempFile)
		return errors.Wrap(err, "failed to close temp file")
	}

	// 原子性重命名
	if err := s.fs.Rename(tempFile, filePath); err != nil {
		s.fs.Remove(tempFile)
		return errors.Wrap(err, "failed to rename temp file")
	}

	return nil
}

// ReadBlock 从本地文件系统读取数据块
func (s *LocalStorageService) ReadBlock(blockID string) ([]byte, error) {
	filePath, err := s.getBlockFilePath(blockID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := s.fs.Stat(filePath)
	if err != nil {
		if isNotExist(err) {
			return nil, errors.Wrapf(model.ErrBlockNotFound, "block %s", blockID)
		}
		return nil, errors.Wrapf(err, "failed to stat block %s", blockID)
	}
	if info.IsDir() {
		return nil, errors.Wrapf(model.ErrBlockNotFound, "block %s", blockID)
	}

	data, err := afero.ReadFile(s.fs, filePath)
	if err != nil {
		if isNotExist(err) {
			return nil, errors.Wrapf(model.ErrBlockNotFound, "block %s", blockID)
		}
		return nil, errors.Wrapf(err, "failed to read block %s", blockID)
	}

	return data, nil
}

// DeleteBlock 删除本地数据块文件，文件不存在时返回 ErrBlockNotFound
func (s *LocalStorageService) DeleteBlock(blockID string) error {
	filePath, err := s.getBlockFilePath(blockID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := s.fs.Stat(filePath)
	if err != nil {
		if isNotExist(err) {
			return errors.Wrapf(model.ErrBlockNotFound, "block %s", blockID)
		}
		return errors.Wrapf(err, "failed to stat block %s", blockID)
	}
	if info.IsDir() {
		return errors.Wrapf(model.ErrBlockNotFound, "block %s", blockID)
	}

	if err := s.fs.Remove(filePath); err != nil {
		return errors.Wrapf(err, "failed to delete block %s", blockID)
	}

	s.cleanupEmptyDirectories(filepath.Dir(filePath))
	return nil
}

// BlockExists 检查数据块是否存在
func (s *LocalStorageService) BlockExists(blockID string) bool {
	filePath, err := s.getBlockFilePath(blockID)
	if err != nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := s.fs.Stat(filePath)
	return err == nil && !info.IsDir()
}

// ListBlocks 列出所有存储的数据块ID
func (s *LocalStorageService) ListBlocks() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	blocks, _, err := s.listBlocksLocked()
	return blocks, err
}

// FreeSpace 实时查询存储卷的可用空间，不做缓存
func (s *LocalStorageService) FreeSpace() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	usage, err := s.usage(s.rootDir)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to get disk usage of %s", s.rootDir)
	}
	return usage.Free, nil
}

// GetStat 获取存储统计信息
func (s *LocalStorageService) GetStat() (*model.StorageStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	blockIds, usedSpace, err := s.listBlocksLocked()
	if err != nil {
		return nil, err
	}

	usage, err := s.usage(s.rootDir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get disk space info")
	}

	return &model.StorageStat{
		BlockCount:    uint64(len(blockIds)),
		FreeSpace:     usage.Free,
		UsedSpace:     usedSpace,
		TotalCapacity: usage.Total,
		BlockIds:      blockIds,
	}, nil
}

func (s *LocalStorageService) listBlocksLocked() ([]string, uint64, error) {
	var blockIds []string
	var usedSpace uint64

	err := afero.Walk(s.fs, s.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || isTempFile(info.Name()) {
			return nil
		}

		rel, err := filepath.Rel(s.rootDir, path)
		if err != nil {
			return err
		}
		blockIds = append(blockIds, filepath.ToSlash(rel))
		usedSpace += uint64(info.Size())
		return nil
	})
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to walk directory")
	}

	return blockIds, usedSpace, nil
}

// getBlockFilePath 块ID即为相对路径，不允许越出根目录
func (s *LocalStorageService) getBlockFilePath(blockID string) (string, error) {
	if err := ValidateBlockID(blockID); err != nil {
		return "", err
	}
	return filepath.Join(s.rootDir, filepath.FromSlash(blockID)), nil
}

// ValidateBlockID 校验块ID
func ValidateBlockID(blockID string) error {
	if blockID == "" {
		return errors.Wrap(model.ErrInvalidBlockID, "empty block id")
	}
	local := filepath.FromSlash(blockID)
	if !filepath.IsLocal(local) {
		return errors.Wrapf(model.ErrInvalidBlockID, "block id %q escapes storage root", blockID)
	}
	if filepath.Clean(local) == "." {
		return errors.Wrapf(model.ErrInvalidBlockID, "block id %q resolves to the storage root", blockID)
	}
	if isTempFile(filepath.Base(local)) {
		return errors.Wrapf(model.ErrInvalidBlockID, "block id %q uses a reserved name", blockID)
	}
	return nil
}

// cleanupEmptyDirectories 递归清理空的父目录
// 只会清理到 rootDir，不会删除 rootDir 本身
func (s *LocalStorageService) cleanupEmptyDirectories(dirPath string) {
	for dirPath != s.rootDir && strings.HasPrefix(dirPath, s.rootDir+string(filepath.Separator)) {
		entries, err := afero.ReadDir(s.fs, dirPath)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := s.fs.Remove(dirPath); err != nil {
			s.logger.Warn("failed to remove empty directory", slog.String("dir", dirPath), slog.Any("error", err))
			return
		}
		s.logger.Debug("cleaned up empty directory", slog.String("dir", dirPath))
		dirPath = filepath.Dir(dirPath)
	}
}

// isTempFile 识别 WriteBlock 生成的临时文件名：.<base>.<uuid>.tmp
func isTempFile(name string) bool {
	if !strings.HasPrefix(name, ".") || !strings.HasSuffix(name, tempSuffix) {
		return false
	}
	stem := strings.TrimSuffix(name, tempSuffix)
	const uuidLen = 36
	// 至少包含 "." + 一个字符的原文件名 + "." + uuid
	if len(stem) < uuidLen+3 || stem[len(stem)-uuidLen-1] != '.' {
		return false
	}
	_, err := uuid.Parse(stem[len(stem)-uuidLen:])
	return err == nil
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR)
}
