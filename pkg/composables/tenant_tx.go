package composables

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/gestio-pm/gestio/pkg/constants"
)

// InTenantTx reuses a transaction already present in the context, applying
// the tenant RLS setting to it, and otherwise opens a fresh one.
func InTenantTx(ctx context.Context, fn func(context.Context) error) error {
	if existing, ok := ctx.Value(constants.TxKey).(pgx.Tx); ok && existing != nil {
		if err := ApplyTenantRLS(ctx, existing); err != nil {
			return err
		}
		return fn(ctx)
	}
	return InTx(ctx, fn)
}
