package diff

import "testing"

func TestCompute(t *testing.T) {
	tests := []struct {
		name      string
		mode      string
		old       string
		new       string
		additions int
		deletions int
	}{
		{
			name:      "replace counts both sides in full",
			mode:      ModeReplace,
			old:       "hello world",
			new:       "hello",
			additions: 5,
			deletions: 11,
		},
		{
			name:      "append counts only the growth",
			mode:      ModeAppend,
			old:       "abc",
			new:       "abcdef",
			additions: 3,
			deletions: 0,
		},
		{
			name:      "prepend counts only the growth",
			mode:      ModePrepend,
			old:       "abc",
			new:       "xyzabc",
			additions: 3,
			deletions: 0,
		},
		{
			name:      "unknown mode grows",
			mode:      "merge",
			old:       "ab",
			new:       "abcd",
			additions: 2,
			deletions: 0,
		},
		{
			name:      "unknown mode shrinks",
			mode:      "",
			old:       "abcd",
			new:       "a",
			additions: 0,
			deletions: 3,
		},
		{
			name:      "append never reports negative additions",
			mode:      ModeAppend,
			old:       "abcdef",
			new:       "abc",
			additions: 0,
			deletions: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compute(tt.mode, []byte(tt.old), []byte(tt.new))
			if got.Additions != tt.additions {
				t.Errorf("Compute() additions = %d, want %d", got.Additions, tt.additions)
			}
			if got.Deletions != tt.deletions {
				t.Errorf("Compute() deletions = %d, want %d", got.Deletions, tt.deletions)
			}
			if got.Description == "" {
				t.Error("Compute() description is empty")
			}
		})
	}
}
