package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFilter(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want Filter
	}{
		{"empty", "   ", nil},
		{"single string", `userId = "42"`, Filter{{Field: "userId", Op: OpEqual, Value: "42"}}},
		{"no spaces", `userId="42"`, Filter{{Field: "userId", Op: OpEqual, Value: "42"}}},
		{"single quotes", `title = 'Leg Day'`, Filter{{Field: "title", Op: OpEqual, Value: "Leg Day"}}},
		{"escaped quote", `title = "say \"hi\""`, Filter{{Field: "title", Op: OpEqual, Value: `say "hi"`}}},
		{
			"conjunction with bool and number",
			`userId = "42" && completed = false && duration != 30`,
			Filter{
				{Field: "userId", Op: OpEqual, Value: "42"},
				{Field: "completed", Op: OpEqual, Value: false},
				{Field: "duration", Op: OpNotEqual, Value: 30.0},
			},
		},
		{"null", `avatar = null`, Filter{{Field: "avatar", Op: OpEqual, Value: nil}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFilter(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFilter_Errors(t *testing.T) {
	for _, expr := range []string{
		`userId`,
		`= "42"`,
		`userId = "42`,
		`userId = maybe`,
		`userId = "1" || userId = "2"`,
		`userId > 3`,
	} {
		_, err := ParseFilter(expr)
		require.ErrorIs(t, err, ErrInvalidFilter, expr)
	}
}

func TestEqAndAnd(t *testing.T) {
	expr := And(Eq("createdBy", `4"2`), "", Eq("status", "planned"))
	assert.Equal(t, `createdBy = "4\"2" && status = "planned"`, expr)

	f, err := ParseFilter(expr)
	require.NoError(t, err)
	require.Len(t, f, 2)
	assert.Equal(t, `4"2`, f[0].Value)
}
