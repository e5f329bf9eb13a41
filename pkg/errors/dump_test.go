package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestDumpCapturesChainAndCode(t *testing.T) {
	root := stdErrors.New("connection reset")
	err := Wrap(CodeDependency, root, "load coupon")

	d := Dump(err)
	if d.Code != CodeDependency {
		t.Fatalf("expected dependency code, got %s", d.Code)
	}
	if len(d.Chain) != 2 {
		t.Fatalf("expected 2 chain entries, got %v", d.Chain)
	}
}

func TestDumpUnpacksPgxError(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "coupons_code_key", TableName: "coupons"}
	d := Dump(fmt.Errorf("insert: %w", pgErr))
	if d.PGCode != "23505" || d.PGConstraint != "coupons_code_key" || d.PGTable != "coupons" {
		t.Fatalf("unexpected pg dump %+v", d)
	}
}

func TestDumpUnpacksPqError(t *testing.T) {
	pqErr := &pq.Error{Code: "23514", Constraint: "products_stock_check", Table: "products"}
	d := Dump(fmt.Errorf("update: %w", pqErr))
	if d.PGCode != "23514" || d.PGConstraint != "products_stock_check" {
		t.Fatalf("unexpected pq dump %+v", d)
	}
}

func TestDumpNil(t *testing.T) {
	if d := Dump(nil); d.TopMessage != "" || len(d.Chain) != 0 {
		t.Fatalf("expected empty dump, got %+v", d)
	}
}
