package goods

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/cargo-backoffice/internal/pricing"
)

func TestPlanRowsCompactsPositionsAfterDeletes(t *testing.T) {
	plan := planRows([]rowFlags{
		{},
		{deleted: true},
		{updated: true},
		{},
		{created: true},
	}, pricing.ModeEdit)

	require.Equal(t, []rowPlan{
		{write: rowMove, position: 0},
		{write: rowDelete, position: -1},
		{write: rowUpdate, position: 1},
		{write: rowMove, position: 2},
		{write: rowInsert, position: 3},
	}, plan)
}

func TestPlanRowsInsertsEverythingOnCreate(t *testing.T) {
	plan := planRows([]rowFlags{{}, {}, {}}, pricing.ModeCreate)
	for i, p := range plan {
		require.Equal(t, rowInsert, p.write)
		require.Equal(t, i, p.position)
	}
}
