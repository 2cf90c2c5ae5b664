package scope

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSet_ZeroValueIsEmpty(t *testing.T) {
	var s Set
	require.Equal(t, 0, s.Len())
	require.False(t, s.Has("public:read"))
	require.NotNil(t, s.Sorted())
	require.Empty(t, s.Sorted())
}

func TestSet_DuplicatesCollapse(t *testing.T) {
	s := New("public:read", "public:read", "confidential:read")
	require.Equal(t, 2, s.Len())
	require.Equal(t, []string{"confidential:read", "public:read"}, s.Sorted())
}

func TestSet_MembershipIsExact(t *testing.T) {
	t.Parallel()

	s := New("public:read")
	tests := []struct {
		name  string
		scope string
		want  bool
	}{
		{name: "exact", scope: "public:read", want: true},
		{name: "upper case", scope: "PUBLIC:READ", want: false},
		{name: "padded", scope: " public:read", want: false},
		{name: "prefix", scope: "public", want: false},
		{name: "empty", scope: "", want: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, s.Has(tc.scope))
		})
	}
}

func TestSet_EqualIgnoresOrder(t *testing.T) {
	require.True(t, New("a", "b").Equal(New("b", "a", "a")))
	require.False(t, New("a").Equal(New("a", "b")))
	require.True(t, Set{}.Equal(New()))
}

func TestSet_String(t *testing.T) {
	require.Equal(t, "a:read b:read", New("b:read", "a:read").String())
	require.Equal(t, "", Set{}.String())
}
