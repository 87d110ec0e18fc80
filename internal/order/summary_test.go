package order

import (
	"testing"

	"ms-registration/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestOrderRowsSummary(t *testing.T) {
	rows := []models.OrderRow{
		{ItemDescr: "1-day individual-rate ticket", CostExclVAT: 6500},
		{ItemDescr: "3-day individual-rate ticket", CostExclVAT: 12500},
		{ItemDescr: "1-day individual-rate ticket", CostExclVAT: 6500},
		{ItemDescr: "1-day individual-rate ticket", CostExclVAT: 6500},
	}

	summary := OrderRowsSummary(rows)
	assert.Len(t, summary, 2)

	assert.Equal(t, RowSummary{
		ItemDescr:          "1-day individual-rate ticket",
		Quantity:           3,
		PerItemCostExclVAT: 6500,
		PerItemCostInclVAT: 7800,
		TotalCostExclVAT:   19500,
		TotalCostInclVAT:   23400,
	}, summary[0])
	assert.Equal(t, 1, summary[1].Quantity)
	assert.Equal(t, int64(15000), summary[1].TotalCostInclVAT)

	assert.Equal(t, "3 × 1-day individual-rate ticket, 1 × 3-day individual-rate ticket", BriefSummary(rows))
	assert.Empty(t, BriefSummary(nil))
}

func TestErrorsMatch(t *testing.T) {
	err := &InvalidStateError{Op: "refund", OrderID: 3, Status: models.OrderStatusPending, Detail: "row 9 has already been refunded"}
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, "refund: order 3 is pending: row 9 has already been refunded", err.Error())

	conflict := &CommitConflictError{OrderID: 1, ChargeID: "ch_1", Err: models.ErrUniqueViolation}
	assert.ErrorIs(t, conflict, models.ErrUniqueViolation)
	assert.NotErrorIs(t, conflict, ErrInvalidState)
}
