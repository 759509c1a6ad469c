package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsUniqueViolation(t *testing.T) {
	building := &pgconn.PgError{Code: "23505", ConstraintName: "uq_channels_active_building"}

	tests := []struct {
		name       string
		err        error
		constraint string
		want       bool
	}{
		{"matching constraint", building, "uq_channels_active_building", true},
		{"wrapped", fmt.Errorf("insert: %w", building), "uq_channels_active_building", true},
		{"any constraint", building, "", true},
		{"other constraint", building, "uq_channels_direct_pair", false},
		{"other code", &pgconn.PgError{Code: "23503"}, "", false},
		{"plain error", errors.New("boom"), "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isUniqueViolation(tt.err, tt.constraint); got != tt.want {
				t.Fatalf("isUniqueViolation = %v, want %v", got, tt.want)
			}
		})
	}
}
