package schema

import (
	"fmt"
	"strings"

	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/format"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver"
)

// splitDDLStatements breaks a manual DDL override script into individual
// statements by parsing it, rather than splitting on ";" — a semicolon
// inside a string literal, a comment, or a compound statement body would
// otherwise be mistaken for a statement boundary.
func splitDDLStatements(ddl string) ([]string, error) {
	ddl = strings.TrimSpace(ddl)
	if ddl == "" {
		return nil, nil
	}

	p := parser.New()
	stmtNodes, _, err := p.Parse(ddl, "", "")
	if err != nil {
		return nil, fmt.Errorf("parsing manual DDL: %w", err)
	}

	stmts := make([]string, 0, len(stmtNodes))
	for _, node := range stmtNodes {
		if node == nil {
			continue
		}
		var sb strings.Builder
		ctx := format.NewRestoreCtx(format.DefaultRestoreFlags, &sb)
		if err := node.Restore(ctx); err != nil {
			return nil, fmt.Errorf("restoring parsed statement: %w", err)
		}
		if stmt := strings.TrimSpace(sb.String()); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts, nil
}
