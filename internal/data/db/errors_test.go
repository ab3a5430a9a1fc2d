package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

func TestIsUniqueViolation(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{gorm.ErrDuplicatedKey, true},
		{fmt.Errorf("create order: %w", &pgconn.PgError{Code: "23505"}), true},
		{&pgconn.PgError{Code: "23503"}, false},
		{errors.New("UNIQUE constraint failed: vendor_order.checkout_session_id"), true},
		{gorm.ErrRecordNotFound, false},
	}
	for i, tc := range cases {
		if got := IsUniqueViolation(tc.err); got != tc.want {
			t.Fatalf("case %d (%v): want=%v got=%v", i, tc.err, tc.want, got)
		}
	}
}
