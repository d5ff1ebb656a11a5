package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"pos_ledger/internal/kvstore"
	"pos_ledger/internal/pending"
	"pos_ledger/internal/register"
	"pos_ledger/internal/report"
	"pos_ledger/internal/sales"
)

// seedDatabase records two sales in a SQLite file and closes it.
func seedDatabase(t *testing.T, path string) {
	t.Helper()
	ctx := context.Background()
	durable, err := kvstore.OpenSQLite(path)
	require.NoError(t, err)
	kv := kvstore.New(kvstore.NewMemoryBackend(), durable, kvstore.WithLogger(zaptest.NewLogger(t)))
	reg := register.New(kv, register.Options{Logger: zaptest.NewLogger(t)})

	_, err = reg.CreateSale(ctx, sales.NewSale{VendorName: "Sylvie", TotalAmount: decimal.NewFromInt(24), PaymentMethod: sales.PaymentCash})
	require.NoError(t, err)
	_, err = reg.CreateSale(ctx, sales.NewSale{
		VendorName:    "Sylvie",
		TotalAmount:   decimal.NewFromInt(96),
		PaymentMethod: sales.PaymentCheck,
		Deferred: &sales.DeferredPayment{
			ClientName:   "Durand",
			ChequeAmount: decimal.NewFromInt(48),
			ChequeCount:  2,
			NextDate:     time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		},
	})
	require.NoError(t, err)

	kv.Close()
	require.NoError(t, durable.Close())
}

func run(t *testing.T, args ...string) []byte {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	return out.Bytes()
}

func TestTotalsCommand_ReadsDurableStore(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "pos.db")
	seedDatabase(t, path)
	t.Setenv("POS_STORAGE_DSN", path)
	t.Setenv("POS_LOG_LEVEL", "error")

	var got report.Totals
	require.NoError(t, json.Unmarshal(run(t, "totals"), &got))
	assert.True(t, got.TotalTTC.Equal(decimal.NewFromInt(120)))
	assert.True(t, got.TotalTVA.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, 2, got.SaleCount)
}

func TestPendingCommand(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "pos.db")
	seedDatabase(t, path)

	cfg := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("log-level: error\nstorage:\n  dsn: "+path+"\n"), 0o600))

	var got []pending.Payment
	require.NoError(t, json.Unmarshal(run(t, "pending", "--config", cfg), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "Durand", got[0].ClientName)
	assert.Equal(t, 2, got[0].ChequeCount)
}

func TestOpenApp_SeedsVendors(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	vendors := filepath.Join(dir, "vendors.yaml")
	require.NoError(t, os.WriteFile(vendors, []byte("vendors:\n  - name: Sylvie\n  - name: Marc\n"), 0o600))
	t.Setenv("POS_STORAGE_DRIVER", "memory")
	t.Setenv("POS_VENDORS_FILE", vendors)
	t.Setenv("POS_LOG_LEVEL", "error")

	a, err := openApp(context.Background(), &RootOptions{})
	require.NoError(t, err)
	defer a.Close()

	assert.Len(t, a.register.Vendors(context.Background()), 2)
}
