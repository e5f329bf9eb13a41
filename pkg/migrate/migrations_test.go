package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/angelmondragon/storefront-backend/pkg/migrate"
	"github.com/stretchr/testify/require"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	require.NoError(t, err)
	require.Len(t, matches, 1, "expected one %s migration", suffix)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	return string(data)
}

func TestMigrationsContainExpectedStatements(t *testing.T) {
	cases := map[string][]string{
		"create_products_table": {
			"CREATE TABLE IF NOT EXISTS products",
			"CHECK (stock >= 0)",
			"CREATE UNIQUE INDEX IF NOT EXISTS idx_products_slug",
			"DROP TABLE IF EXISTS products",
		},
		"create_cart_items_table": {
			"FOREIGN KEY (product_id) REFERENCES products(id) ON DELETE CASCADE",
			"idx_cart_items_user_product_variant ON cart_items (user_id, product_id, variant_sku)",
		},
		"create_coupons_table": {
			"used_by text[]",
			"CHECK (usage_limit IS NULL OR usage_count <= usage_limit)",
			"CREATE UNIQUE INDEX IF NOT EXISTS idx_coupon_redemptions_order ON coupon_redemptions (order_id)",
			"DROP TABLE IF EXISTS coupon_redemptions",
		},
		"create_shipping_zones_table": {
			"free_shipping_threshold numeric(12,2) NOT NULL DEFAULT 1499",
			"min_days integer NOT NULL DEFAULT 3",
			"max_days integer NOT NULL DEFAULT 7",
		},
		"create_orders_table": {
			"CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_order_number",
			"fulfilled_at timestamptz",
			"'pending', 'processing', 'shipped', 'delivered', 'cancelled'",
		},
		"create_notifications_table": {
			"CHECK (audience IN ('user', 'admin'))",
			"'order_update', 'stock_alert', 'price_drop'",
		},
		"create_wishlist_items_table": {
			"idx_wishlist_items_user_product ON wishlist_items (user_id, product_id)",
			"DROP TABLE IF EXISTS wishlist_items",
		},
		"add_orders_unpaid_index": {
			"WHERE status = 'pending' AND payment_status = 'pending' AND fulfilled_at IS NULL",
		},
		"create_reviews_table": {
			"rating numeric(2,1) NOT NULL DEFAULT 0",
			"CHECK (rating BETWEEN 1 AND 5)",
			"idx_reviews_product_user ON reviews (product_id, user_id)",
		},
		"create_return_requests_table": {
			"ADD COLUMN IF NOT EXISTS delivered_at timestamptz",
			"WHERE status IN ('pending', 'approved')",
			"'return_request', 'return_update'",
		},
	}

	for suffix, checks := range cases {
		content := readMigration(t, suffix)
		for _, sub := range checks {
			if !strings.Contains(content, sub) {
				t.Errorf("%s: missing expected statement %q", suffix, sub)
			}
		}
	}
}

func TestValidateDirAcceptsShippedMigrations(t *testing.T) {
	require.NoError(t, migrate.ValidateDir("migrations"))
}

func TestValidateDirRejectsBadFilename(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad-name.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644))
	require.Error(t, migrate.ValidateDir(dir))
}

func TestCreateSQLMigrationSanitizesName(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Coupon Index!")
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(path, "_add_coupon_index.sql"), path)
	require.NoError(t, migrate.ValidateDir(dir))
}

func TestCreateSQLMigrationRejectsDuplicateSlug(t *testing.T) {
	dir := t.TempDir()
	first, err := migrate.CreateSQLMigration(dir, "add review index")
	require.NoError(t, err)

	_, err = migrate.CreateSQLMigration(dir, "Add Review  Index")
	require.Error(t, err)
	require.Contains(t, err.Error(), filepath.Base(first))

	_, err = migrate.CreateSQLMigration(dir, "!!!")
	require.Error(t, err)
}
