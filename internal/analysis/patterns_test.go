package analysis_test

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/kiranshivaraju/confsight/internal/analysis"
	"github.com/kiranshivaraju/confsight/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultPatternParams() analysis.PatternParams {
	return analysis.PatternParams{
		SignificanceMin: 1.5,
		SupportMin:      1,
		FloorEpsilon:    0.01,
		ScoreCeiling:    100,
		MaxValueLen:     200,
	}
}

func snapshotWithPackage(pkg, version string) *models.EnvSnapshot {
	return &models.EnvSnapshot{
		PythonVer:   "3.11.4",
		MachineArch: "x86_64",
		OSInfo:      "Linux-6.1",
		Packages:    map[string]string{pkg: version},
	}
}

// baselineCounts builds a global baseline of totalEnvs environments where
// hits of them carry the given (key, value) pair.
func baselineCounts(key, value string, hits, totalEnvs int) analysis.AttributeCounts {
	counts := analysis.AttributeCounts{
		key:                     {value: hits},
		analysis.KeyPythonVer:   {"3.11.4": totalEnvs},
		analysis.KeyMachineArch: {"x86_64": totalEnvs},
		analysis.KeyOSInfo:      {"Linux-6.1": totalEnvs},
	}
	return counts
}

func TestMinePatterns_OverRepresentedPackage(t *testing.T) {
	// 9 of 10 member environments pin numpy 1.19.0; only 2 of 100
	// environments globally do.
	var memberEnvs []*models.EnvSnapshot
	for i := 0; i < 9; i++ {
		memberEnvs = append(memberEnvs, snapshotWithPackage("numpy", "1.19.0"))
	}
	memberEnvs = append(memberEnvs, snapshotWithPackage("numpy", "1.26.0"))

	global := baselineCounts("packages.numpy", "1.19.0", 2, 100)
	global["packages.numpy"]["1.26.0"] = 98

	patterns := analysis.MinePatterns(memberEnvs, global, 100, 10, defaultPatternParams())
	require.Len(t, patterns, 1)

	p := patterns[0]
	assert.Equal(t, "packages.numpy", p.ConfigKey)
	assert.Equal(t, "1.19.0", p.ConfigValue)
	assert.Equal(t, 9, p.CountInCluster)
	assert.Equal(t, 2, p.CountGlobal)
	assert.Equal(t, 90, p.ConfidencePct)
	assert.InDelta(t, 45.0, p.SignificanceScore, 1e-9)
}

func TestMinePatterns_UbiquitousAttributeFiltered(t *testing.T) {
	// python_ver appears in every member env but also in every global env;
	// lift 1.0 never clears the threshold.
	memberEnvs := []*models.EnvSnapshot{
		snapshotWithPackage("requests", "2.31.0"),
		snapshotWithPackage("requests", "2.31.0"),
	}
	global := baselineCounts("packages.requests", "2.31.0", 100, 100)

	patterns := analysis.MinePatterns(memberEnvs, global, 100, 2, defaultPatternParams())
	assert.Empty(t, patterns)
}

func TestMinePatterns_SupportMinExcludesSingletons(t *testing.T) {
	// One member env with a rare package would have a huge lift, but a
	// single environment can never satisfy support.
	memberEnvs := []*models.EnvSnapshot{snapshotWithPackage("left-pad", "0.0.1")}
	global := baselineCounts("packages.left-pad", "0.0.1", 0, 100)

	patterns := analysis.MinePatterns(memberEnvs, global, 100, 5, defaultPatternParams())
	assert.Empty(t, patterns)
}

func TestMinePatterns_FloorEpsilonBoundsUnseenValues(t *testing.T) {
	// A value never seen globally: the floored global rate keeps the
	// score finite, the ceiling caps it.
	memberEnvs := []*models.EnvSnapshot{
		snapshotWithPackage("tensorflow", "0.1.0"),
		snapshotWithPackage("tensorflow", "0.1.0"),
	}
	global := baselineCounts("packages.tensorflow", "0.1.0", 0, 1000)

	params := defaultPatternParams()
	params.ScoreCeiling = 100

	patterns := analysis.MinePatterns(memberEnvs, global, 1000, 2, params)
	require.Len(t, patterns, 1)
	assert.Equal(t, 0, patterns[0].CountGlobal)
	assert.InDelta(t, 100.0, patterns[0].SignificanceScore, 1e-9)
}

func TestMinePatterns_RankedBySignificance(t *testing.T) {
	memberEnvs := []*models.EnvSnapshot{
		{
			PythonVer:   "3.8.0",
			MachineArch: "x86_64",
			OSInfo:      "Linux-6.1",
			Packages:    map[string]string{"numpy": "1.19.0", "scipy": "1.5.0"},
		},
		{
			PythonVer:   "3.8.0",
			MachineArch: "x86_64",
			OSInfo:      "Linux-6.1",
			Packages:    map[string]string{"numpy": "1.19.0", "scipy": "1.5.0"},
		},
		{
			PythonVer:   "3.8.0",
			MachineArch: "x86_64",
			OSInfo:      "Linux-6.1",
			Packages:    map[string]string{"numpy": "1.19.0"},
		},
	}
	global := analysis.AttributeCounts{
		"python_ver":     {"3.8.0": 50},
		"machine_arch":   {"x86_64": 100},
		"os_info":        {"Linux-6.1": 100},
		"packages.numpy": {"1.19.0": 5},
		"packages.scipy": {"1.5.0": 10},
	}

	patterns := analysis.MinePatterns(memberEnvs, global, 100, 3, defaultPatternParams())
	require.NotEmpty(t, patterns)

	for i := 1; i < len(patterns); i++ {
		prev, cur := patterns[i-1], patterns[i]
		if prev.SignificanceScore == cur.SignificanceScore {
			if prev.CountInCluster == cur.CountInCluster {
				assert.Less(t, prev.ConfigKey, cur.ConfigKey)
			} else {
				assert.Greater(t, prev.CountInCluster, cur.CountInCluster)
			}
		} else {
			assert.Greater(t, prev.SignificanceScore, cur.SignificanceScore)
		}
	}
	// numpy (3/3 vs 5%) outranks scipy (2/3 vs 10%).
	assert.Equal(t, "packages.numpy", patterns[0].ConfigKey)
}

func TestMinePatterns_EmptyInputs(t *testing.T) {
	params := defaultPatternParams()

	assert.Empty(t, analysis.MinePatterns(nil, analysis.AttributeCounts{}, 0, 0, params))
	assert.Empty(t, analysis.MinePatterns(nil, analysis.AttributeCounts{}, 100, 0, params))
	assert.Empty(t, analysis.MinePatterns([]*models.EnvSnapshot{snapshotWithPackage("a", "1")}, analysis.AttributeCounts{}, 0, 1, params))
}

func TestMinePatterns_TruncatesLongValues(t *testing.T) {
	long := strings.Repeat("é", 300)
	memberEnvs := []*models.EnvSnapshot{
		{PythonVer: "3.11.4", MachineArch: "x86_64", OSInfo: "Linux", EnvVars: map[string]string{"PYTHONPATH": long}},
		{PythonVer: "3.11.4", MachineArch: "x86_64", OSInfo: "Linux", EnvVars: map[string]string{"PYTHONPATH": long}},
	}
	global := analysis.AttributeCounts{
		"python_ver":          {"3.11.4": 100},
		"machine_arch":        {"x86_64": 100},
		"os_info":             {"Linux": 100},
		"env_vars.PYTHONPATH": {long: 1},
	}

	params := defaultPatternParams()
	params.MaxValueLen = 50

	patterns := analysis.MinePatterns(memberEnvs, global, 100, 2, params)
	require.Len(t, patterns, 1)

	got := patterns[0].ConfigValue
	assert.LessOrEqual(t, len(got), 50)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.True(t, utf8.ValidString(got))
}

func TestCollectAttributes(t *testing.T) {
	envs := []*models.EnvSnapshot{
		{
			PythonVer:   "3.11.4",
			MachineArch: "arm64",
			OSInfo:      "Darwin-23",
			Packages:    map[string]string{"numpy": "1.26.0"},
			EnvVars:     map[string]string{"TZ": "UTC"},
		},
		{
			PythonVer:   "3.11.4",
			MachineArch: "x86_64",
			OSInfo:      "Linux-6.1",
			Packages:    map[string]string{"numpy": "1.26.0"},
		},
	}

	counts := analysis.CollectAttributes(envs)
	assert.Equal(t, 2, counts["python_ver"]["3.11.4"])
	assert.Equal(t, 1, counts["machine_arch"]["arm64"])
	assert.Equal(t, 1, counts["machine_arch"]["x86_64"])
	assert.Equal(t, 2, counts["packages.numpy"]["1.26.0"])
	assert.Equal(t, 1, counts["env_vars.TZ"]["UTC"])
}

func TestValidatePatterns(t *testing.T) {
	valid := []*models.ConfigPattern{
		{CountInCluster: 3, CountGlobal: 10, ConfidencePct: 60},
	}
	assert.NoError(t, analysis.ValidatePatterns(valid, 5, 100))

	tests := []struct {
		name string
		p    *models.ConfigPattern
	}{
		{"count in cluster exceeds members", &models.ConfigPattern{CountInCluster: 6, CountGlobal: 10, ConfidencePct: 60}},
		{"count global exceeds total", &models.ConfigPattern{CountInCluster: 3, CountGlobal: 101, ConfidencePct: 60}},
		{"confidence above 100", &models.ConfigPattern{CountInCluster: 3, CountGlobal: 10, ConfidencePct: 120}},
		{"negative count", &models.ConfigPattern{CountInCluster: -1, CountGlobal: 10, ConfidencePct: 60}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := analysis.ValidatePatterns([]*models.ConfigPattern{tt.p}, 5, 100)
			require.Error(t, err)
			assert.ErrorIs(t, err, analysis.ErrInvariantViolation)
		})
	}
}

func TestMinePatterns_ConfidenceRounding(t *testing.T) {
	// 2 of 3 members: 66.67% rounds to 67.
	memberEnvs := []*models.EnvSnapshot{
		snapshotWithPackage("pandas", "1.0.0"),
		snapshotWithPackage("pandas", "1.0.0"),
	}
	global := baselineCounts("packages.pandas", "1.0.0", 1, 100)

	patterns := analysis.MinePatterns(memberEnvs, global, 100, 3, defaultPatternParams())
	require.Len(t, patterns, 1)
	assert.Equal(t, 67, patterns[0].ConfidencePct)
}

func ExampleMinePatterns() {
	memberEnvs := []*models.EnvSnapshot{
		snapshotWithPackage("numpy", "1.19.0"),
		snapshotWithPackage("numpy", "1.19.0"),
	}
	global := analysis.AttributeCounts{
		"python_ver":     {"3.11.4": 100},
		"machine_arch":   {"x86_64": 100},
		"os_info":        {"Linux-6.1": 100},
		"packages.numpy": {"1.19.0": 4},
	}
	patterns := analysis.MinePatterns(memberEnvs, global, 100, 2, analysis.PatternParams{
		SignificanceMin: 1.5,
		SupportMin:      1,
		FloorEpsilon:    0.01,
		ScoreCeiling:    100,
		MaxValueLen:     200,
	})
	for _, p := range patterns {
		fmt.Printf("%s=%s score=%.0f confidence=%d%%\n", p.ConfigKey, p.ConfigValue, p.SignificanceScore, p.ConfidencePct)
	}
	// Output:
	// packages.numpy=1.19.0 score=25 confidence=100%
}
