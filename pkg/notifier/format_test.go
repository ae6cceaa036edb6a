package notifier_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/billingkit/pkg/notifier"
)

func TestFormatAmount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		amount int64
		code   string
		want   string
	}{
		{name: "usd", amount: 4900, code: "USD", want: "USD 49.00"},
		{name: "ngn", amount: 53000, code: "NGN", want: "NGN 530.00"},
		{name: "zero", amount: 0, code: "USD", want: "USD 0.00"},
		{name: "zero-decimal currency", amount: 500, code: "JPY", want: "JPY 500"},
		{name: "three-decimal currency", amount: 1500, code: "BHD", want: "BHD 1.500"},
		{name: "unknown code falls back", amount: 4900, code: "XXY", want: "4900 XXY"},
		{name: "empty code falls back", amount: 100, code: "", want: "100 "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, notifier.FormatAmount(tt.amount, tt.code))
		})
	}
}
