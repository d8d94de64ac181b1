// scanner/scanner.go - 项目文件扫描器
package scanner

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"metadb-builder/internal/config"
	"metadb-builder/internal/errs"
	"metadb-builder/internal/utils"
	"metadb-builder/pkg/logger"

	gitignore "github.com/sabhiram/go-gitignore"
)

// ScannedFile 扫描得到的源文件，内容与哈希一并返回
type ScannedFile struct {
	Name      string
	RelPath   string
	AbsPath   string
	Content   []byte
	Hash      string
	LineCount int
}

// FileScanner 文件扫描器
type FileScanner struct {
	scanConfig *config.ScanConfig
	logger     logger.Logger
}

// NewFileScanner 创建文件扫描器
func NewFileScanner(scanConfig *config.ScanConfig, logger logger.Logger) *FileScanner {
	return &FileScanner{
		scanConfig: scanConfig,
		logger:     logger,
	}
}

// CalculateFileHash 计算文件内容哈希值，作为增量解析的唯一判据
func (fs *FileScanner) CalculateFileHash(content []byte) string {
	return utils.SumBytes(content)
}

// ScanProject 扫描项目目录，返回受支持扩展名的全部源文件
func (fs *FileScanner) ScanProject(projectPath string) ([]*ScannedFile, error) {
	fs.logger.Info("开始扫描项目目录: %s", projectPath)
	startTime := time.Now()

	if info, err := os.Stat(projectPath); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", errs.ErrProjectRootUnreadable, projectPath)
	}

	supportedExts := make(map[string]bool)
	for _, ext := range fs.scanConfig.ClassSourceExts {
		supportedExts[ext] = true
	}
	for _, ext := range fs.scanConfig.TemplateExts {
		supportedExts[ext] = true
	}
	for _, ext := range fs.scanConfig.MappingExts {
		supportedExts[ext] = true
	}

	// 首先使用配置中的过滤规则创建ignore对象
	ignore := gitignore.CompileIgnoreLines(fs.scanConfig.FolderIgnorePatterns...)

	// 读取.gitignore文件，并合并
	ignoreFilePath := filepath.Join(projectPath, ".gitignore")
	if content, err := os.ReadFile(ignoreFilePath); err == nil {
		var lines []string
		for _, line := range bytes.Split(content, []byte{'\n'}) {
			if len(line) > 0 && !bytes.HasPrefix(line, []byte{'#'}) {
				lines = append(lines, string(line))
			}
		}
		ignore = gitignore.CompileIgnoreLines(append(fs.scanConfig.FolderIgnorePatterns, lines...)...)
	} else if !os.IsNotExist(err) {
		fs.logger.Warn("读取.gitignore文件失败: %v", err)
	}

	var files []*ScannedFile
	maxFileSize := fs.scanConfig.MaxFileSizeKB * 1024

	err := filepath.Walk(projectPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			fs.logger.Warn("访问文件 %s 时出错: %v", path, err)
			return nil // 继续扫描其他文件
		}

		if info.IsDir() {
			relPath, _ := filepath.Rel(projectPath, path)
			if relPath != "." && ignore != nil && ignore.MatchesPath(relPath+"/") {
				return filepath.SkipDir
			}
			return nil
		}

		relPath, err := filepath.Rel(projectPath, path)
		if err != nil {
			fs.logger.Warn("无法获取文件 %s 的相对路径: %v", path, err)
			return nil
		}

		if ignore != nil && ignore.MatchesPath(relPath) {
			fs.logger.Debug("跳过被忽略的文件: %s", relPath)
			return nil
		}

		if !supportedExts[filepath.Ext(path)] {
			return nil
		}

		if maxFileSize > 0 && info.Size() > int64(maxFileSize) {
			fs.logger.Warn("跳过超过大小限制的文件: %s (%d bytes)", relPath, info.Size())
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			fs.logger.Warn("读取文件 %s 失败: %v", relPath, err)
			return nil
		}

		files = append(files, &ScannedFile{
			Name:      filepath.Base(path),
			RelPath:   filepath.ToSlash(relPath),
			AbsPath:   path,
			Content:   content,
			Hash:      fs.CalculateFileHash(content),
			LineCount: countLines(content),
		})

		if fs.scanConfig.MaxFileCount > 0 && len(files) >= fs.scanConfig.MaxFileCount {
			fs.logger.Warn("达到最大文件数量限制: %d", fs.scanConfig.MaxFileCount)
			return filepath.SkipAll
		}

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("扫描目录失败: %v", err)
	}

	fs.logger.Info("目录扫描完成，共扫描 %d 个文件，耗时: %v", len(files), time.Since(startTime))

	return files, nil
}

func countLines(content []byte) int {
	if len(content) == 0 {
		return 0
	}
	n := bytes.Count(content, []byte{'\n'})
	if content[len(content)-1] != '\n' {
		n++
	}
	return n
}
