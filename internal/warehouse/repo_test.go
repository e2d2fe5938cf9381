package warehouse

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllocateLineTaxDistributesProportionally(t *testing.T) {
	lines := []InvoiceLine{
		{Basic: 60000},
		{Basic: 40000},
	}
	allocateLineTax(18000, lines)

	assert.Equal(t, 10800.00, lines[0].LineTax)
	assert.Equal(t, 7200.00, lines[1].LineTax)
}

func TestAllocateLineTaxLastLineAbsorbsResidual(t *testing.T) {
	lines := []InvoiceLine{
		{Basic: 33333.33},
		{Basic: 33333.33},
		{Basic: 33333.34},
	}
	allocateLineTax(100.00, lines)

	var sum float64
	for _, l := range lines {
		sum += l.LineTax
	}
	assert.InDelta(t, 100.00, sum, 0.001, "line tax must sum exactly to the voucher tax")
}

func TestAllocateLineTaxNoopWhenZeroTax(t *testing.T) {
	lines := []InvoiceLine{{Basic: 1000}}
	allocateLineTax(0, lines)
	assert.Equal(t, 0.0, lines[0].LineTax)
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 10800.00, round2(10799.999))
	assert.Equal(t, -5.01, round2(-5.005))
}
