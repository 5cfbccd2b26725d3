package programs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/exokernel/internal/kernel"
)

func nop(*kernel.CPU) {}

func TestRegister(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Program{Name: "test", Category: CategoryDemo, Entry: nop}))

	p, ok := r.Get("test")
	require.True(t, ok)
	assert.Equal(t, CategoryDemo, p.Category)

	r.Unregister("test")
	_, ok = r.Get("test")
	assert.False(t, ok)
}

func TestRegisterRejects(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Register(Program{Entry: nop}))
	assert.Error(t, r.Register(Program{Name: "noentry"}))
}

func TestList(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Program{Name: "b", Category: CategoryDemo, Entry: nop}))
	require.NoError(t, r.Register(Program{Name: "a", Category: CategoryDemo, Entry: nop}))
	require.NoError(t, r.Register(Program{Name: "c", Category: CategoryFault, Entry: nop}))

	all := r.List(nil)
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].Name)
	assert.Equal(t, "c", all[2].Name)

	cat := CategoryFault
	filtered := r.List(&cat)
	require.Len(t, filtered, 1)
	assert.Equal(t, "c", filtered[0].Name)
}

func TestDiscover(t *testing.T) {
	r := Default()

	results := r.Discover("a binary tree", 5)
	require.NotEmpty(t, results)
	assert.Equal(t, "forktree", results[0].Name)

	assert.Empty(t, r.Discover("zzz", 5))
	assert.Len(t, r.Discover("fault", 2), 2)
}

func TestStats(t *testing.T) {
	stats := Default().Stats()
	assert.Equal(t, len(builtins()), stats["total_programs"])

	cats := stats["categories"].(map[string]int)
	assert.Equal(t, 3, cats[string(CategoryFault)])
	assert.Equal(t, 1, cats[string(CategoryTest)])
}

func TestResolve(t *testing.T) {
	r := Default()

	tests := []struct {
		name    string
		pattern string
		want    []string
		wantErr error
	}{
		{"plain", "hello", []string{"hello"}, nil},
		{"glob", "fault*", []string{"faultdie", "faultread", "faultwrite"}, nil},
		{"alternation", "{ping,share}*", []string{"pingpong", "sharepage"}, nil},
		{"unknown", "nosuch", nil, ErrUnknownProgram},
		{"no match", "zz*", nil, ErrUnknownProgram},
		{"bad pattern", "fault[", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ps, err := r.Resolve(tt.pattern)
			if tt.want == nil {
				require.Error(t, err)
				if tt.wantErr != nil {
					assert.ErrorIs(t, err, tt.wantErr)
				}
				return
			}
			require.NoError(t, err)
			var names []string
			for _, p := range ps {
				names = append(names, p.Name)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}
