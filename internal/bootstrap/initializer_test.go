package bootstrap

import (
	"errors"
	"testing"

	"github.com/lib/pq"
)

func TestIsTolerable(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		codes []string
		want  bool
	}{
		{"nil error", nil, []string{pqDuplicateObject}, false},
		{"non-pq error", errors.New("boom"), []string{pqDuplicateObject}, false},
		{
			"matching pq code",
			&pq.Error{Code: pqDuplicateTable},
			[]string{pqDuplicateObject, pqDuplicateTable},
			true,
		},
		{
			"non-matching pq code",
			&pq.Error{Code: "08006"},
			[]string{pqDuplicateObject, pqDuplicateTable},
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isTolerable(tt.err, tt.codes...); got != tt.want {
				t.Errorf("isTolerable(%v, %v) = %v, want %v", tt.err, tt.codes, got, tt.want)
			}
		})
	}
}
