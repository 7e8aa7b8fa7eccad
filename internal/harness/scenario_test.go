package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dataflow/internal/fusion"
)

func TestLoadScenario_ResolvesProgramPath(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "conv_net.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "conv_net", scenario.Name)
	assert.Equal(t, filepath.Join("testdata", "programs", "net.cue"), scenario.Program)
	assert.Nil(t, scenario.Config)
	assert.Len(t, scenario.Assertions, 9)
}

func TestLoadScenario_Config(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "mlp_no_replicate.yaml"))
	require.NoError(t, err)

	require.NotNil(t, scenario.Config)
	assert.Equal(t, []fusion.PhaseConfig{{Outline: []string{"tosa.matmul"}, BackwardFuse: []string{"tosa.add"}}},
		scenario.Config.Phases)
	assert.Equal(t, *scenario.Config, scenario.config())
}

func TestScenarioConfig_Defaults(t *testing.T) {
	s := &Scenario{}
	assert.Equal(t, fusion.DefaultConfig(), s.config())

	s.Config = &fusion.Config{MaxIterations: 3}
	cfg := s.config()
	assert.Equal(t, fusion.DefaultConfig().Phases, cfg.Phases)
	assert.Equal(t, 3, cfg.MaxIterations)
}

func TestLoadScenario_Errors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "unknown field",
			yaml:    "name: x\ndescription: d\nprogram: p.cue\nassertion: []\n",
			wantErr: "failed to parse YAML",
		},
		{
			name:    "missing name",
			yaml:    "description: d\nprogram: p.cue\nassertions: [{type: converged}]\n",
			wantErr: "name is required",
		},
		{
			name:    "missing program file",
			yaml:    "name: x\ndescription: d\nprogram: nope.cue\nassertions: [{type: converged}]\n",
			wantErr: "program file not found",
		},
		{
			name:    "no assertions",
			yaml:    "name: x\ndescription: d\nprogram: p.cue\n",
			wantErr: "assertions list is required",
		},
		{
			name:    "unknown assertion",
			yaml:    "name: x\ndescription: d\nprogram: p.cue\nassertions: [{type: magic}]\n",
			wantErr: `unknown assertion type "magic"`,
		},
		{
			name:    "firing_count without pattern",
			yaml:    "name: x\ndescription: d\nprogram: p.cue\nassertions: [{type: firing_count, count: 1}]\n",
			wantErr: "pattern is required for firing_count",
		},
		{
			name:    "task_kinds without kinds",
			yaml:    "name: x\ndescription: d\nprogram: p.cue\nassertions: [{type: task_kinds}]\n",
			wantErr: "kinds list is required for task_kinds",
		},
		{
			name:    "invalid config",
			yaml:    "name: x\ndescription: d\nprogram: p.cue\nconfig: {phases: [{replicate: [tosa.add]}]}\nassertions: [{type: converged}]\n",
			wantErr: "only tosa.const can be replicated",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, dir, "p.cue", `func: f: {return: []}`)
			writeFile(t, dir, "s.yaml", tt.yaml)

			_, err := LoadScenario(filepath.Join(dir, "s.yaml"))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFindScenarios_Sorted(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.yaml", "a.yml", "c.txt"} {
		writeFile(t, dir, name, "")
	}

	files, err := FindScenarios(dir)
	require.NoError(t, err)

	assert.Equal(t, []string{filepath.Join(dir, "a.yml"), filepath.Join(dir, "b.yaml")}, files)
}
