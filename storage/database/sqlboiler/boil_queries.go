// Package boiledrepos implements the repositories on PostgreSQL with sqlboiler's query builder.
package boiledrepos

import (
	"context"
	"strings"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/sqlboiler/v4/drivers"
	"github.com/volatiletech/sqlboiler/v4/queries"
	"github.com/volatiletech/sqlboiler/v4/queries/qm"

	"github.com/trezcool/shule/core"
)

// PostgreSQL unique violation error code
const uniqueViolation = "23505"

var dialect = drivers.Dialect{
	LQ: '"',
	RQ: '"',

	UseIndexPlaceholders: true,
	UseDefaultKeyword:    true,
}

// NewQuery builds a postgres query from query mods.
func NewQuery(mods ...qm.QueryMod) *queries.Query {
	q := &queries.Query{}
	queries.SetDialect(q, &dialect)
	qm.Apply(q, mods...)
	return q
}

type baseRepository struct {
	exec core.DBExecutor
}

func (repo baseRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.exec
}

// violatedConstraint returns the name of the unique constraint err violates, if any.
func violatedConstraint(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return pqErr.Constraint, true
	}
	return "", false
}

func orderByMod(ordering []core.DBOrdering, fallback string) qm.QueryMod {
	if len(ordering) == 0 {
		return qm.OrderBy(fallback)
	}
	orderList := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		orderList = append(orderList, ord.String())
	}
	return qm.OrderBy(strings.Join(orderList, ", "))
}

// interfaces converts strings to query args.
func interfaces(strs []string) []interface{} {
	args := make([]interface{}, len(strs))
	for i, s := range strs {
		args[i] = s
	}
	return args
}

// count runs a COUNT(*) of the query built from mods.
func count(ctx context.Context, exec core.DBExecutor, mods ...qm.QueryMod) (int64, error) {
	q := NewQuery(mods...)
	queries.SetCount(q)

	var cnt int64
	err := q.QueryRowContext(ctx, exec).Scan(&cnt)
	return cnt, err
}

// deleteAll deletes the rows selected by mods.
func deleteAll(ctx context.Context, exec core.DBExecutor, mods ...qm.QueryMod) (int64, error) {
	q := NewQuery(mods...)
	queries.SetDelete(q)

	res, err := q.ExecContext(ctx, exec)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// update sets cols on the rows selected by mods.
func update(ctx context.Context, exec core.DBExecutor, cols map[string]interface{}, mods ...qm.QueryMod) (int64, error) {
	q := NewQuery(mods...)
	queries.SetUpdate(q, cols)

	res, err := q.ExecContext(ctx, exec)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
