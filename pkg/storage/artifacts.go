package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"lms-assistant-go/internal/config"
)

// ArtifactStore 保存每份资料的知识图谱与实体索引。
type ArtifactStore interface {
	SaveArtifacts(ctx context.Context, courseID, materialID uint, graphML, entityIndex []byte) error
}

// ObjectArtifacts 把产物写入对象存储。
type ObjectArtifacts struct {
	objects ObjectStore
}

// NewObjectArtifacts 基于任意 ObjectStore 创建产物存储。
func NewObjectArtifacts(objects ObjectStore) *ObjectArtifacts {
	return &ObjectArtifacts{objects: objects}
}

func (a *ObjectArtifacts) SaveArtifacts(ctx context.Context, courseID, materialID uint, graphML, entityIndex []byte) error {
	prefix := ArtifactPrefix(courseID, materialID)
	if err := a.objects.Put(ctx, path.Join(prefix, GraphFileName), graphML, "application/xml"); err != nil {
		return err
	}
	return a.objects.Put(ctx, path.Join(prefix, EntityIndexFileName), entityIndex, "application/json")
}

// LocalArtifacts 把产物写到本地目录 {dir}/{course}/{material}/。
type LocalArtifacts struct {
	dir string
}

// NewLocalArtifacts 创建本地文件产物存储。
func NewLocalArtifacts(dir string) *LocalArtifacts {
	return &LocalArtifacts{dir: dir}
}

func (a *LocalArtifacts) SaveArtifacts(ctx context.Context, courseID, materialID uint, graphML, entityIndex []byte) error {
	target := filepath.Join(a.dir, fmt.Sprint(courseID), fmt.Sprint(materialID))
	if err := os.MkdirAll(target, 0o755); err != nil {
		return fmt.Errorf("创建产物目录失败: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(target, GraphFileName), graphML); err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(target, EntityIndexFileName), entityIndex)
}

// writeFileAtomic 先写临时文件再 rename，读者不会看到半个文件。
func writeFileAtomic(name string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(name), "."+filepath.Base(name)+".*")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("写入 %s 失败: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), name)
}

// NewArtifactStore 按配置选择产物存储，driver 为 minio 时需要传入对象存储。
func NewArtifactStore(cfg config.ArtifactsConfig, objects ObjectStore) (ArtifactStore, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "minio":
		if objects == nil {
			return nil, fmt.Errorf("artifacts driver minio requires an object store")
		}
		return NewObjectArtifacts(objects), nil
	case "local":
		return NewLocalArtifacts(cfg.Dir), nil
	default:
		return nil, fmt.Errorf("未知的产物存储类型: %s", cfg.Driver)
	}
}
