package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDaySelectorJSON(t *testing.T) {
	b, err := json.Marshal(AllDays)
	require.NoError(t, err)
	assert.Equal(t, `"ALL"`, string(b))

	weekend := DaySelector{Days: []string{"Sat", "Sun"}}
	b, err = json.Marshal(weekend)
	require.NoError(t, err)
	assert.Equal(t, `["Sat","Sun"]`, string(b))

	var d DaySelector
	require.NoError(t, json.Unmarshal([]byte(`"ALL"`), &d))
	assert.True(t, d.All)

	require.NoError(t, json.Unmarshal([]byte(`["Mon","Tue"]`), &d))
	assert.False(t, d.All)
	assert.Equal(t, []string{"Mon", "Tue"}, d.Days)

	err = json.Unmarshal([]byte(`"WEEKDAYS"`), &d)
	assert.Error(t, err, "only the literal ALL is accepted as a string")
}

func TestDaySelectorContains(t *testing.T) {
	assert.True(t, AllDays.Contains("Wed"))

	weekend := DaySelector{Days: []string{"Sat", "Sun"}}
	assert.True(t, weekend.Contains("Sat"))
	assert.False(t, weekend.Contains("Mon"))
}

func TestCostComponentsTotal(t *testing.T) {
	c := CostComponents{
		EnergyCents:     1000,
		BaseChargeCents: 500,
		TDUEnergyCents:  200,
		TDUFixedCents:   100,
		BillCreditCents: 300,
	}
	assert.InDelta(t, 1500.0, c.TotalCents(), 1e-9)
}
