package config

import "testing"

func TestConnectionsForMemory(t *testing.T) {
	const mb = 1024 * 1024

	cases := []struct {
		name  string
		limit int64
		want  int
	}{
		{"no limit detected", 0, 10000},
		{"512MB container", 512 * mb, 6144},
		{"tiny container uses half its memory", 32 * mb, 256},
		{"huge container caps at the maximum", 64 * 1024 * mb, 50000},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := connectionsForMemory(c.limit); got != c.want {
				t.Errorf("connectionsForMemory(%d) = %d, want %d", c.limit, got, c.want)
			}
		})
	}
}
