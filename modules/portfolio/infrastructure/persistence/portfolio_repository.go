// Package persistence implements the portfolio storage boundary on
// PostgreSQL. All statements go through the transaction carried in the
// context, so every method behaves identically inside a phase transaction
// and inside a row savepoint.
package persistence

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gestio-pm/gestio/modules/portfolio/domain/batch"
	"github.com/gestio-pm/gestio/modules/portfolio/services"
	"github.com/gestio-pm/gestio/pkg/composables"
	"github.com/gestio-pm/gestio/pkg/constants"
)

type PortfolioRepository struct{}

func NewPortfolioRepository() *PortfolioRepository {
	return &PortfolioRepository{}
}

var _ services.PortfolioStore = (*PortfolioRepository)(nil)

// SeedKeys loads the natural keys of all four families in one query. Lot
// and contract rows join back to their parents because the key material
// (building address, contact email) lives on the parent tables.
func (r *PortfolioRepository) SeedKeys(ctx context.Context, tenantID uuid.UUID) ([]services.SeedEntry, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
SELECT 'building', b.id, b.address, '', '', ''
FROM portfolio_buildings b
WHERE b.tenant_id = $1
UNION ALL
SELECT 'lot', l.id, COALESCE(b.address, ''), l.reference, '', ''
FROM portfolio_lots l
LEFT JOIN portfolio_buildings b ON b.id = l.building_id
WHERE l.tenant_id = $1
UNION ALL
SELECT 'contact', c.id, c.email, '', '', ''
FROM portfolio_contacts c
WHERE c.tenant_id = $1
UNION ALL
SELECT 'contract', ct.id, COALESCE(b.address, ''), l.reference, c.email, ct.role
FROM portfolio_contracts ct
JOIN portfolio_lots l ON l.id = ct.lot_id
LEFT JOIN portfolio_buildings b ON b.id = l.building_id
JOIN portfolio_contacts c ON c.id = ct.contact_id
WHERE ct.tenant_id = $1
`, pgUUID(tenantID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]services.SeedEntry, 0, 256)
	for rows.Next() {
		var (
			family         string
			id             uuid.UUID
			p1, p2, p3, p4 string
		)
		if err := rows.Scan(&family, &id, &p1, &p2, &p3, &p4); err != nil {
			return nil, err
		}
		var key batch.Key
		switch family {
		case "building":
			key = batch.BuildingKey(tenantID, p1)
		case "lot":
			key = batch.LotKey(tenantID, p1, p2)
		case "contact":
			key = batch.ContactKey(tenantID, p1)
		case "contract":
			key = batch.ContractKey(
				batch.LotKey(tenantID, p1, p2),
				batch.ContactKey(tenantID, p3),
				p4,
			)
		default:
			continue
		}
		out = append(out, services.SeedEntry{Key: key, ID: id})
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *PortfolioRepository) WithinTx(ctx context.Context, tenantID uuid.UUID, fn func(ctx context.Context) error) error {
	return composables.InTenantTx(composables.WithTenantID(ctx, tenantID), fn)
}

// WithinSavepoint nests a transaction inside the enclosing WithinTx; pgx
// translates the nested Begin into SAVEPOINT/RELEASE.
func (r *PortfolioRepository) WithinSavepoint(ctx context.Context, fn func(ctx context.Context) error) error {
	outer, ok := ctx.Value(constants.TxKey).(pgx.Tx)
	if !ok || outer == nil {
		return fmt.Errorf("savepoint requires an enclosing transaction")
	}
	sp, err := outer.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(composables.WithTx(ctx, sp)); err != nil {
		if rErr := sp.Rollback(ctx); rErr != nil {
			return fmt.Errorf("%w (savepoint rollback: %v)", err, rErr)
		}
		return err
	}
	return sp.Commit(ctx)
}

func (r *PortfolioRepository) InsertBuilding(ctx context.Context, rec services.BuildingRecord) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
INSERT INTO portfolio_buildings (
	id, tenant_id, address, address_norm, postal_code, city, construction_year, lot_count, created_by
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`,
		pgUUID(rec.ID),
		pgUUID(rec.TenantID),
		rec.Address,
		rec.AddressNorm,
		pgNullableText(rec.PostalCode),
		pgNullableText(rec.City),
		pgNullableInt4(rec.ConstructionYear),
		pgNullableInt4(rec.LotCount),
		rec.CreatedBy,
	)
	return mapPgError("insert building", err)
}

func (r *PortfolioRepository) UpdateBuilding(ctx context.Context, tenantID, id uuid.UUID, patch services.BuildingPatch) error {
	if patch.IsZero() {
		return nil
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `
UPDATE portfolio_buildings
SET postal_code = COALESCE($3, postal_code),
	city = COALESCE($4, city),
	construction_year = COALESCE($5, construction_year),
	lot_count = COALESCE($6, lot_count),
	updated_at = now()
WHERE tenant_id = $1 AND id = $2
`,
		pgUUID(tenantID),
		pgUUID(id),
		pgNullableText(patch.PostalCode),
		pgNullableText(patch.City),
		pgNullableInt4(patch.ConstructionYear),
		pgNullableInt4(patch.LotCount),
	)
	if err != nil {
		return mapPgError("update building", err)
	}
	return requireRow(tag.RowsAffected(), "building", id)
}

func (r *PortfolioRepository) InsertLot(ctx context.Context, rec services.LotRecord) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
INSERT INTO portfolio_lots (
	id, tenant_id, building_id, reference, floor, category, surface, created_by
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`,
		pgUUID(rec.ID),
		pgUUID(rec.TenantID),
		pgNullableUUID(rec.BuildingID),
		rec.Reference,
		pgNullableText(rec.Floor),
		pgNullableText(rec.Category),
		pgNullableDecimal(rec.Surface),
		rec.CreatedBy,
	)
	return mapPgError("insert lot", err)
}

func (r *PortfolioRepository) UpdateLot(ctx context.Context, tenantID, id uuid.UUID, patch services.LotPatch) error {
	if patch.IsZero() {
		return nil
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `
UPDATE portfolio_lots
SET floor = COALESCE($3, floor),
	category = COALESCE($4, category),
	surface = COALESCE($5::numeric, surface),
	updated_at = now()
WHERE tenant_id = $1 AND id = $2
`,
		pgUUID(tenantID),
		pgUUID(id),
		pgNullableText(patch.Floor),
		pgNullableText(patch.Category),
		pgNullableDecimal(patch.Surface),
	)
	if err != nil {
		return mapPgError("update lot", err)
	}
	return requireRow(tag.RowsAffected(), "lot", id)
}

func (r *PortfolioRepository) InsertContact(ctx context.Context, rec services.ContactRecord) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
INSERT INTO portfolio_contacts (
	id, tenant_id, email, first_name, last_name, phone, company, created_by
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`,
		pgUUID(rec.ID),
		pgUUID(rec.TenantID),
		rec.Email,
		pgNullableText(rec.FirstName),
		pgNullableText(rec.LastName),
		pgNullableText(rec.Phone),
		pgNullableText(rec.Company),
		rec.CreatedBy,
	)
	return mapPgError("insert contact", err)
}

func (r *PortfolioRepository) UpdateContact(ctx context.Context, tenantID, id uuid.UUID, patch services.ContactPatch) error {
	if patch.IsZero() {
		return nil
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `
UPDATE portfolio_contacts
SET first_name = COALESCE($3, first_name),
	last_name = COALESCE($4, last_name),
	phone = COALESCE($5, phone),
	company = COALESCE($6, company),
	updated_at = now()
WHERE tenant_id = $1 AND id = $2
`,
		pgUUID(tenantID),
		pgUUID(id),
		pgNullableText(patch.FirstName),
		pgNullableText(patch.LastName),
		pgNullableText(patch.Phone),
		pgNullableText(patch.Company),
	)
	if err != nil {
		return mapPgError("update contact", err)
	}
	return requireRow(tag.RowsAffected(), "contact", id)
}

func (r *PortfolioRepository) InsertContract(ctx context.Context, rec services.ContractRecord) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
INSERT INTO portfolio_contracts (
	id, tenant_id, lot_id, contact_id, role, start_date, end_date, rent_amount, charges_amount, created_by
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`,
		pgUUID(rec.ID),
		pgUUID(rec.TenantID),
		pgUUID(rec.LotID),
		pgUUID(rec.ContactID),
		rec.Role,
		pgNullableDate(rec.StartDate),
		pgNullableDate(rec.EndDate),
		pgNullableDecimal(rec.RentAmount),
		pgNullableDecimal(rec.ChargesAmount),
		rec.CreatedBy,
	)
	return mapPgError("insert contract", err)
}

func (r *PortfolioRepository) UpdateContract(ctx context.Context, tenantID, id uuid.UUID, patch services.ContractPatch) error {
	if patch.IsZero() {
		return nil
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `
UPDATE portfolio_contracts
SET start_date = COALESCE($3, start_date),
	end_date = COALESCE($4, end_date),
	rent_amount = COALESCE($5::numeric, rent_amount),
	charges_amount = COALESCE($6::numeric, charges_amount),
	updated_at = now()
WHERE tenant_id = $1 AND id = $2
`,
		pgUUID(tenantID),
		pgUUID(id),
		pgNullableDate(patch.StartDate),
		pgNullableDate(patch.EndDate),
		pgNullableDecimal(patch.RentAmount),
		pgNullableDecimal(patch.ChargesAmount),
	)
	if err != nil {
		return mapPgError("update contract", err)
	}
	return requireRow(tag.RowsAffected(), "contract", id)
}

func requireRow(affected int64, entity string, id uuid.UUID) error {
	if affected == 0 {
		return fmt.Errorf("%s %s not found", entity, id)
	}
	return nil
}
