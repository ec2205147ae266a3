package store

import (
	"context"
	"testing"
)

func TestDBNilSafety(t *testing.T) {
	tests := []struct {
		name string
		db   *DB
	}{
		{name: "nil wrapper", db: nil},
		{name: "nil client", db: &DB{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.db.Healthy(context.Background()) {
				t.Error("Healthy must be false without a live client")
			}
			if err := tt.db.Close(); err != nil {
				t.Errorf("Close should be a no-op, got %v", err)
			}
		})
	}
}
