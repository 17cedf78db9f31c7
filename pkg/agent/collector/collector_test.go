package collector

import (
	"testing"
	"time"
)

func TestRate(t *testing.T) {
	tests := []struct {
		name      string
		prev, cur uint64
		elapsed   time.Duration
		want      uint64
	}{
		{"steady", 1000, 3000, 2 * time.Second, 1000},
		{"counter reset", 5000, 100, time.Second, 0},
		{"no time", 0, 100, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rate(tt.prev, tt.cur, tt.elapsed); got != tt.want {
				t.Errorf("rate = %d, want %d", got, tt.want)
			}
		})
	}
}
