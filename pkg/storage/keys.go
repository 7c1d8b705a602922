package storage

import (
	"fmt"
	"path"
)

// 知识图谱产物的固定文件名。
const (
	GraphFileName       = "graph.graphml"
	EntityIndexFileName = "entity_index.json"
)

// MaterialObjectName 是原始资料文件在对象存储中的位置，uploadID 保证同名文件互不覆盖。
func MaterialObjectName(courseID uint, uploadID, fileName string) string {
	return fmt.Sprintf("materials/%d/%s/%s", courseID, uploadID, path.Base(fileName))
}

// ArtifactPrefix 是某份资料的图谱产物目录，每次入库整体覆盖。
func ArtifactPrefix(courseID, materialID uint) string {
	return fmt.Sprintf("kg/%d/%d", courseID, materialID)
}
