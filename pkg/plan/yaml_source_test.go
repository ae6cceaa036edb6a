package plan_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/plan"
)

const testPlansYAML = `plans:
  - id: premium_monthly
    name: premium_monthly
    display_name: Premium (monthly)
    price: 4900
    currency: NGN
    interval: monthly
    trial_days: 14
  - id: premium_yearly
    name: premium_yearly
    display_name: Premium (yearly)
    price: 53000
    currency: NGN
    interval: yearly
`

func writePlansFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plans.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestYAMLSource(t *testing.T) {
	t.Parallel()

	t.Run("loads plans", func(t *testing.T) {
		t.Parallel()

		src := plan.NewYAMLSource(writePlansFile(t, testPlansYAML))
		plans, err := src.Load(context.Background())
		require.NoError(t, err)
		require.Len(t, plans, 2)

		monthly := plans["premium_monthly"]
		assert.Equal(t, int64(4900), monthly.Price)
		assert.Equal(t, plan.IntervalMonthly, monthly.Interval)
		assert.Equal(t, 14, monthly.TrialDays)

		yearly := plans["premium_yearly"]
		assert.Equal(t, int64(53000), yearly.Price)
		assert.Equal(t, plan.IntervalYearly, yearly.Interval)
	})

	t.Run("feeds catalog", func(t *testing.T) {
		t.Parallel()

		src := plan.NewYAMLSource(writePlansFile(t, testPlansYAML))
		c, err := plan.NewCatalog(context.Background(), src)
		require.NoError(t, err)

		p, err := c.ResolveByAmount(53000)
		require.NoError(t, err)
		assert.Equal(t, "premium_yearly", p.ID)
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		src := plan.NewYAMLSource(filepath.Join(t.TempDir(), "absent.yml"))
		_, err := src.Load(context.Background())
		assert.ErrorIs(t, err, plan.ErrFailedToLoadPlans)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		t.Parallel()

		src := plan.NewYAMLSource(writePlansFile(t, "plans: [not: closed"))
		_, err := src.Load(context.Background())
		assert.ErrorIs(t, err, plan.ErrFailedToLoadPlans)
	})

	t.Run("empty plan list", func(t *testing.T) {
		t.Parallel()

		src := plan.NewYAMLSource(writePlansFile(t, "plans: []"))
		_, err := src.Load(context.Background())
		assert.ErrorIs(t, err, plan.ErrFailedToLoadPlans)
	})
}
