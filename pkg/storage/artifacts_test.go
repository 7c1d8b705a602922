package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lms-assistant-go/internal/config"
)

type memObjects struct {
	objects map[string][]byte
	types   map[string]string
}

func newMemObjects() *memObjects {
	return &memObjects{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memObjects) Put(_ context.Context, name string, data []byte, contentType string) error {
	m.objects[name] = data
	m.types[name] = contentType
	return nil
}

func (m *memObjects) Get(_ context.Context, name string) ([]byte, error) {
	return m.objects[name], nil
}

func TestObjectArtifacts_Layout(t *testing.T) {
	objs := newMemObjects()
	a := NewObjectArtifacts(objs)

	require.NoError(t, a.SaveArtifacts(context.Background(), 3, 9, []byte("<graphml/>"), []byte("{}")))
	assert.Equal(t, []byte("<graphml/>"), objs.objects["kg/3/9/graph.graphml"])
	assert.Equal(t, []byte("{}"), objs.objects["kg/3/9/entity_index.json"])
	assert.Equal(t, "application/json", objs.types["kg/3/9/entity_index.json"])
}

func TestLocalArtifacts_Overwrites(t *testing.T) {
	dir := t.TempDir()
	a := NewLocalArtifacts(dir)
	ctx := context.Background()

	require.NoError(t, a.SaveArtifacts(ctx, 3, 9, []byte("old"), []byte("old")))
	require.NoError(t, a.SaveArtifacts(ctx, 3, 9, []byte("new graph"), []byte(`{"Cell":[0]}`)))

	got, err := os.ReadFile(filepath.Join(dir, "3", "9", GraphFileName))
	require.NoError(t, err)
	assert.Equal(t, "new graph", string(got))

	entries, err := os.ReadDir(filepath.Join(dir, "3", "9"))
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temp files left behind")
}

func TestMaterialObjectName(t *testing.T) {
	assert.Equal(t, "materials/3/ab12/notes.pdf", MaterialObjectName(3, "ab12", "../../notes.pdf"))
}

func TestNewArtifactStore(t *testing.T) {
	_, err := NewArtifactStore(config.ArtifactsConfig{Driver: "minio"}, nil)
	assert.Error(t, err)

	s, err := NewArtifactStore(config.ArtifactsConfig{Driver: "local", Dir: t.TempDir()}, nil)
	require.NoError(t, err)
	assert.IsType(t, &LocalArtifacts{}, s)
}
