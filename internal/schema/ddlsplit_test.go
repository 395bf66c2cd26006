package schema

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitDDLStatementsHandlesSemicolonInStringLiteral(t *testing.T) {
	ddl := `CREATE TABLE widget (id INT PRIMARY KEY, note VARCHAR(64) DEFAULT 'a;b');
CREATE INDEX idx_widget_note ON widget (note);`

	stmts, err := splitDDLStatements(ddl)
	require.NoError(t, err)
	require.Len(t, stmts, 2)
	require.Contains(t, stmts[0], "CREATE TABLE")
	require.Contains(t, stmts[1], "CREATE INDEX")
}

func TestSplitDDLStatementsEmpty(t *testing.T) {
	stmts, err := splitDDLStatements("   ")
	require.NoError(t, err)
	require.Nil(t, stmts)
}

func TestSplitDDLStatementsRejectsInvalidSQL(t *testing.T) {
	_, err := splitDDLStatements("CREATE TABLE (((")
	require.Error(t, err)
}
