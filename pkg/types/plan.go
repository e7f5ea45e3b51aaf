package types

type Plan struct {
	ID       string `json:"id" mapstructure:"id"`
	Name     string `json:"name" mapstructure:"name"`
	// Price in minor currency units.
	Price    int64  `json:"price" mapstructure:"price"`
	Currency string `json:"currency" mapstructure:"currency"`
	// PeriodDays is the length of one subscription period granted per
	// successful payment.
	PeriodDays int  `json:"period_days" mapstructure:"period_days"`
	Active     bool `json:"active" mapstructure:"active"`
}
