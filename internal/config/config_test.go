package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nkinnov/internal/landscape"
	"nkinnov/internal/model"
)

const ringMatrix4 = "x,x,-,-\n-,x,x,-\n-,-,x,x\nx,-,-,x\n"

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_YAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "matrices/ring4.csv", ringMatrix4)
	path := writeFile(t, dir, "cases.yaml", `cases:
  - runs: 3
    matrix: matrices/ring4.csv
    strategies: [closed, LICENSING, closed]
    innovators:
      - {count: 2, power: 1, m: 2, p: 1}
      - {count: 1, power: 2, m: 1, p: 1}
    providers:
      - {count: 2, power: 1, q: 3}
`)

	exp, err := Load(path)
	require.NoError(t, err)
	require.Len(t, exp.Cases, 1)
	c := exp.Cases[0]
	assert.Equal(t, 3, c.Runs)
	assert.Equal(t, 4, c.Structure.N())
	assert.Equal(t, 1, c.Structure.K())
	assert.Equal(t, []model.Strategy{model.StrategyClosed, model.StrategyLicensing}, c.Strategies)
	assert.Equal(t, 3, c.InnovatorCount())
	assert.Equal(t, 2, c.ProviderCount())
	assert.Equal(t, filepath.Join(dir, "matrices", "ring4.csv"), c.Source)
}

func TestLoad_JSONInlineDependencies(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "cases.json", `{"cases":[{
		"runs": 1,
		"dependencies": [[1,0,0],[0,1,0],[0,0,1]],
		"strategies": ["ALLIANCE_MAX", "alliance_min"],
		"innovators": [{"count": 4, "power": 1, "m": 1, "p": 1}]
	}]}`)

	exp, err := Load(path)
	require.NoError(t, err)
	c := exp.Cases[0]
	assert.Equal(t, "inline", c.Source)
	assert.Equal(t, 0, c.Structure.K())
	assert.Equal(t, []model.Strategy{model.StrategyAllianceMax, model.StrategyAllianceMin}, c.Strategies)
}

func TestLoad_XMLLegacyElementNames(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ring4.txt", ringMatrix4)
	path := writeFile(t, dir, "cases.xml", `<?xml version="1.0"?>
<config>
  <case>
    <runs> 2 </runs>
    <inf> ring4.txt </inf>
    <strategy>OUTSOURCING</strategy>
    <strategy>closed</strategy>
    <innovator><num>2</num><power>1</power><M>1</M><P>2</P></innovator>
    <provider><num>1</num><power>2</power><Q>4</Q></provider>
  </case>
  <case>
    <runs>1</runs>
    <inf>ring4.txt</inf>
    <strategy>CLOSED</strategy>
    <innovator><num>1</num><power>1</power><M>2</M><P>2</P></innovator>
  </case>
</config>`)

	exp, err := Load(path)
	require.NoError(t, err)
	require.Len(t, exp.Cases, 2)
	first := exp.Cases[0]
	assert.Equal(t, 2, first.Runs)
	assert.Equal(t, []model.Strategy{model.StrategyOutsourcing, model.StrategyClosed}, first.Strategies)
	assert.Equal(t, []InnovatorGroup{{Count: 2, Power: 1, M: 1, P: 2}}, first.Innovators)
	assert.Equal(t, []ProviderGroup{{Count: 1, Power: 2, Q: 4}}, first.Providers)
	assert.Equal(t, 1, exp.Cases[1].Index)
}

func TestLoad_Rejections(t *testing.T) {
	cases := []struct {
		name  string
		body  string
		field string
	}{
		{
			name:  "traits exceed N",
			body:  "cases:\n  - runs: 1\n    matrix: ring4.csv\n    strategies: [closed]\n    innovators: [{count: 1, power: 1, m: 3, p: 2}]\n",
			field: "innovators[0]",
		},
		{
			name:  "Q exceeds N",
			body:  "cases:\n  - runs: 1\n    matrix: ring4.csv\n    strategies: [licensing]\n    providers: [{count: 1, power: 1, q: 5}]\n",
			field: "providers[0]",
		},
		{
			name:  "unknown strategy",
			body:  "cases:\n  - runs: 1\n    matrix: ring4.csv\n    strategies: [closed, franchise]\n",
			field: "Strategies[1]",
		},
		{
			name:  "zero power",
			body:  "cases:\n  - runs: 1\n    matrix: ring4.csv\n    strategies: [closed]\n    innovators: [{count: 1, power: 0, m: 1, p: 1}]\n",
			field: "Innovators[0].Power",
		},
		{
			name:  "no matrix",
			body:  "cases:\n  - runs: 1\n    strategies: [closed]\n",
			field: "Matrix",
		},
		{
			name:  "no runs",
			body:  "cases:\n  - matrix: ring4.csv\n    strategies: [closed]\n",
			field: "Runs",
		},
		{
			name:  "missing matrix file",
			body:  "cases:\n  - runs: 1\n    matrix: nowhere.csv\n    strategies: [closed]\n",
			field: "matrix",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, dir, "ring4.csv", ringMatrix4)
			path := writeFile(t, dir, "cases.yaml", tc.body)

			exp, err := Load(path)
			require.Error(t, err)
			assert.Nil(t, exp)
			var cfgErr *ConfigurationError
			require.True(t, errors.As(err, &cfgErr), "got %T: %v", err, err)
			assert.Equal(t, 0, cfgErr.Case)
			assert.Equal(t, tc.field, cfgErr.Field)
		})
	}
}

func TestLoad_MalformedMatrixIsStructureError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.csv", "x,x\n-,-\n")
	path := writeFile(t, dir, "cases.yaml", "cases:\n  - runs: 1\n    matrix: bad.csv\n    strategies: [closed]\n")

	_, err := Load(path)
	require.Error(t, err)
	var structErr *landscape.StructureError
	assert.True(t, errors.As(err, &structErr), "got %v", err)
	assert.Contains(t, err.Error(), "case 0")
}

func TestLoad_FileErrors(t *testing.T) {
	_, err := Load("/nonexistent/cases.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read case file")

	_, err = Load("cases.toml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported case file extension")

	dir := t.TempDir()
	path := writeFile(t, dir, "broken.json", "{not json")
	_, err = Load(path)
	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, -1, cfgErr.Case)

	path = writeFile(t, dir, "empty.yaml", "cases: []\n")
	_, err = Load(path)
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "cases", cfgErr.Field)
}

func TestReadMatrixRoundTrip(t *testing.T) {
	rows, err := ReadMatrix(strings.NewReader(ringMatrix4 + "\n"))
	require.NoError(t, err)
	assert.Equal(t, [][]int{{1, 1, 0, 0}, {0, 1, 1, 0}, {0, 0, 1, 1}, {1, 0, 0, 1}}, rows)
	assert.Equal(t, ringMatrix4, FormatMatrix(rows))
}
