package skills

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSkillFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestParseFileWithFrontMatter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trip.md")
	writeSkillFile(t, path, `---
name: trip-planner
description: plans trips end to end
triggers:
  - trip
  - Flight
---
Plan door to door.
Always include transfer buffers.
`)

	skill, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, "trip-planner", skill.Name)
	assert.Equal(t, "plans trips end to end", skill.Description)
	assert.Equal(t, []string{"trip", "Flight"}, skill.Triggers)
	assert.Equal(t, "Plan door to door.\nAlways include transfer buffers.", skill.Instructions)
}

func TestParseFileWithoutFrontMatterFallsBackToFilename(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "grocery-budget.md")
	writeSkillFile(t, path, "Track against the weekly budget.\n")

	skill, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, "grocery-budget", skill.Name)
	assert.Empty(t, skill.Triggers)
	assert.Equal(t, "Track against the weekly budget.", skill.Instructions)
}

func TestImportDirUpsertsEveryFile(t *testing.T) {
	svc, _ := testService(t)
	dir := t.TempDir()
	writeSkillFile(t, filepath.Join(dir, "alpha.md"), "---\nname: alpha\ntriggers: [one]\n---\nA.\n")
	writeSkillFile(t, filepath.Join(dir, "beta", "SKILL.md"), "---\nname: beta\n---\nB.\n")
	writeSkillFile(t, filepath.Join(dir, "notes.txt"), "ignored")

	imported, err := svc.ImportDir(context.Background(), "u1", "a1", dir)
	require.NoError(t, err)
	require.Len(t, imported, 2)

	skills, err := svc.List(context.Background(), "u1", "a1")
	require.NoError(t, err)
	require.Len(t, skills, 2)
	assert.Equal(t, "alpha", skills[0].Name)
	assert.Equal(t, []string{"one"}, skills[0].Triggers)
	assert.Equal(t, "beta", skills[1].Name)
}

func TestImportDirReimportKeepsOneRecordPerSkill(t *testing.T) {
	svc, _ := testService(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "alpha.md")
	writeSkillFile(t, path, "---\nname: alpha\n---\nfirst.\n")

	_, err := svc.ImportDir(context.Background(), "u1", "a1", dir)
	require.NoError(t, err)

	writeSkillFile(t, path, "---\nname: alpha\n---\nsecond.\n")
	_, err = svc.ImportDir(context.Background(), "u1", "a1", dir)
	require.NoError(t, err)

	skills, err := svc.List(context.Background(), "u1", "a1")
	require.NoError(t, err)
	require.Len(t, skills, 1)
	assert.Equal(t, "second.", skills[0].Instructions)
}

func TestImportDirMissingDirImportsNothing(t *testing.T) {
	svc, _ := testService(t)

	imported, err := svc.ImportDir(context.Background(), "u1", "a1", "/nonexistent/skills")
	require.NoError(t, err)
	assert.Empty(t, imported)

	imported, err = svc.ImportDir(context.Background(), "u1", "a1", "   ")
	require.NoError(t, err)
	assert.Empty(t, imported)
}

func TestImportDirRejectsEmptyBody(t *testing.T) {
	svc, _ := testService(t)
	dir := t.TempDir()
	writeSkillFile(t, filepath.Join(dir, "empty.md"), "---\nname: empty\n---\n")

	_, err := svc.ImportDir(context.Background(), "u1", "a1", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty.md")
}
