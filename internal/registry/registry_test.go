package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbmd-bt/planilha-ploomes-parceiros/internal"
)

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestLoadKeepsFileOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "escritorios_btblue.json", `{
  "total": 3,
  "escritorios": {"Zeta Advogados": "Zeta Advogados", "Alfa Advogados": "", "Meio": 12}
}`)

	reg, err := Load(filepath.Join(dir, "escritorios_btblue.json"), CategoryOffices)
	require.NoError(t, err)
	assert.Equal(t, []string{"Zeta Advogados", "Alfa Advogados", "Meio"}, reg.Keys())

	v, ok := reg.Get("Alfa Advogados")
	require.True(t, ok)
	assert.Equal(t, "Alfa Advogados", v)
}

func TestSaveNamesRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", FileName(CategoryOffices, "BBMD"))
	require.NoError(t, SaveNames(path, CategoryOffices, []string{"Beta", "Alfa", "Beta", ""}))

	reg, err := Load(path, CategoryOffices)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alfa", "Beta"}, reg.Keys())
	assert.Equal(t, "escritorios_bbmd.json", filepath.Base(path))
}

func TestMatcherExactAndFuzzy(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "escritorios_btblue.json", `{"escritorios": {
  "SILVA E ASSOCIADOS ADVOGADOS": "SILVA E ASSOCIADOS ADVOGADOS",
  "PEREIRA ADVOCACIA": "PEREIRA ADVOCACIA"
}}`)
	m := NewMatcher(NewCache(dir, nil), 0)
	assert.Equal(t, DefaultThreshold, m.Threshold())

	name, orig, corrected := m.NormalizeOfficeName("  silva e associados advogados ", "btblue")
	assert.Equal(t, "SILVA E ASSOCIADOS ADVOGADOS", name)
	assert.Empty(t, orig)
	assert.False(t, corrected)

	name, orig, corrected = m.NormalizeOfficeName("SILVA E ASSOCIADOS ADVOGADOSS", "btblue")
	assert.Equal(t, "SILVA E ASSOCIADOS ADVOGADOS", name)
	assert.Equal(t, "SILVA E ASSOCIADOS ADVOGADOSS", orig)
	assert.True(t, corrected)

	name, orig, corrected = m.NormalizeOfficeName("Completamente Outro", "btblue")
	assert.Equal(t, "Completamente Outro", name)
	assert.Empty(t, orig)
	assert.False(t, corrected)

	name, orig, _ = m.NormalizeOfficeName("   ", "btblue")
	assert.Empty(t, name)
	assert.Empty(t, orig)
}

func TestMatcherTieGoesToFirstKey(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "escritorios_bbmd.json", `{"escritorios": {
  "ESCRITORIO MODELO LTDA B": "",
  "ESCRITORIO MODELO LTDA A": ""
}}`)
	m := NewMatcher(NewCache(dir, nil), 0.93)

	name, orig, corrected := m.NormalizeOfficeName("ESCRITORIO MODELO LTDA C", "bbmd")
	assert.True(t, corrected)
	assert.Equal(t, "ESCRITORIO MODELO LTDA B", name)
	assert.Equal(t, "ESCRITORIO MODELO LTDA C", orig)
}

func TestMissingRegistryPassesThrough(t *testing.T) {
	m := NewMatcher(NewCache(t.TempDir(), nil), 0.93)
	name, orig, corrected := m.NormalizeOfficeName(" Qualquer ", "2bativos")
	assert.False(t, corrected)
	assert.Equal(t, "Qualquer", name)
	assert.Empty(t, orig)
}

func TestNegotiator(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "negociadores_btblue.json", `{"negociadores": {"joao silva": "João Silva", "Maria": "Maria Souza"}}`)
	c := NewCache(dir, nil)

	assert.Equal(t, "João Silva", c.Negotiator("joao silva", "btblue"))
	assert.Equal(t, "Maria Souza", c.Negotiator(" MARIA ", "btblue"))
	assert.Equal(t, "Pedro", c.Negotiator(" Pedro ", "btblue"))
	assert.Empty(t, c.Negotiator("", "btblue"))
}

func TestCacheInvalidate(t *testing.T) {
	dir := t.TempDir()
	c := NewCache(dir, nil)
	assert.Equal(t, 0, c.Offices("btblue").Len())

	writeFile(t, dir, "escritorios_btblue.json", `{"escritorios": {"Novo": "Novo"}}`)
	assert.Equal(t, 0, c.Offices("btblue").Len())

	c.Invalidate("BTBLUE")
	assert.Equal(t, 1, c.Offices("btblue").Len())
}

type fakeLeads struct {
	leads []internal.Lead
	err   error
	calls int
}

func (f *fakeLeads) AllLeads(context.Context) ([]internal.Lead, error) {
	f.calls++
	return f.leads, f.err
}

type memStore map[string]string

func (m memStore) SetMetadata(key, value string) error {
	m[key] = value
	return nil
}

func (m memStore) GetMetadata(key string) (*string, error) {
	v, ok := m[key]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func TestUpdaterWritesRegistries(t *testing.T) {
	dir := t.TempDir()
	cache := NewCache(dir, nil)
	store := memStore{}
	u := NewUpdater(cache, store, nil)

	// prime the cache so the update must invalidate it
	assert.Equal(t, 0, cache.Offices("btblue").Len())

	src := &fakeLeads{leads: []internal.Lead{
		{EscritorioResponsavel: " Beta Adv ", Negociador: "Ana!"},
		{EscritorioResponsavel: "Alfa Adv", Negociador: "Ana"},
		{EscritorioResponsavel: "", Negociador: ""},
	}}
	res, err := u.Update(context.Background(), "btblue", src)
	require.NoError(t, err)
	assert.Equal(t, UpdateResult{Mesa: "btblue", Leads: 3, Offices: 2, Negotiators: 1}, res)

	assert.Equal(t, []string{"Alfa Adv", "Beta Adv"}, cache.Offices("btblue").Keys())
	assert.Equal(t, []string{"Ana"}, cache.Negotiators("btblue").Keys())
	assert.Contains(t, store, "registry.last_update.btblue")
}

func TestUpdateIfStale(t *testing.T) {
	dir := t.TempDir()
	store := memStore{}
	u := NewUpdater(NewCache(dir, nil), store, nil)
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	u.now = func() time.Time { return now }
	src := &fakeLeads{}

	res, err := u.UpdateIfStale(context.Background(), "bbmd", src, DefaultMaxAge, false)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 1, src.calls)

	now = now.Add(24 * time.Hour)
	res, err = u.UpdateIfStale(context.Background(), "bbmd", src, DefaultMaxAge, false)
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Equal(t, 1, src.calls)

	_, err = u.UpdateIfStale(context.Background(), "bbmd", src, DefaultMaxAge, true)
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestUpdaterPropagatesSourceError(t *testing.T) {
	boom := errors.New("boom")
	u := NewUpdater(NewCache(t.TempDir(), nil), nil, nil)
	_, err := u.Update(context.Background(), "btblue", &fakeLeads{err: boom})
	assert.ErrorIs(t, err, boom)
}
