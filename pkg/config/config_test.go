package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fatflowers/reconciler/pkg/types"
)

func TestFindPlan(t *testing.T) {
	c := &Config{Plans: []*types.Plan{
		{ID: "plan-x", Active: true},
		{ID: "plan-off", Active: false},
	}}

	assert.NotNil(t, c.FindPlan("plan-x"))
	assert.Nil(t, c.FindPlan("plan-off"), "inactive plans are not purchasable")
	assert.Nil(t, c.FindPlan("plan-none"))
}

func TestNewDefaults(t *testing.T) {
	t.Setenv("APP_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	c, err := New()
	require.NoError(t, err)
	assert.Equal(t, EnvDev, c.Env)
	assert.Equal(t, 8888, c.Server.Port)
	assert.Equal(t, "ecomm", c.Processor.Name)
	assert.Equal(t, "OK", c.Processor.AckPositive)
	assert.Equal(t, "ERR", c.Processor.AckNegative)
	assert.Equal(t, 0, c.Processor.SuccessCodeMin)
	assert.Equal(t, 0, c.Processor.SuccessCodeMax)
	assert.Equal(t, 30*time.Second, c.Processor.ProcessingTimeout)
}

func TestNewReadsYAMLFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	yaml := `
env: prod
processor:
  merchant_code: MER-001
  secret: s3cret
  notification_url: https://merchant.example/api/v1/payment/notify
  configured_amount: "999"
  success_code_max: 99
plans:
  - id: plan-x
    name: Pro
    price: 999
    currency: EUR
    period_days: 30
    active: true
`
	require.NoError(t, os.WriteFile(file, []byte(yaml), 0o600))
	t.Setenv("APP_CONFIG_FILE", file)

	c, err := New()
	require.NoError(t, err)
	assert.Equal(t, EnvProd, c.Env)
	assert.Equal(t, "MER-001", c.Processor.MerchantCode)
	assert.Equal(t, 99, c.Processor.SuccessCodeMax)
	require.Len(t, c.Plans, 1)
	assert.Equal(t, "plan-x", c.Plans[0].ID)
	assert.Equal(t, 30, c.Plans[0].PeriodDays)
	assert.True(t, c.Plans[0].Active)
}
