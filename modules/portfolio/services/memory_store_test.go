package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/gestio-pm/gestio/modules/portfolio/domain/batch"
)

// memoryStore is an in-memory PortfolioStore with snapshot-based
// transaction semantics: WithinTx and WithinSavepoint restore the
// previous state when their function (or an injected commit fault) fails.
// Runs are single-threaded, so no locking.
type memoryStore struct {
	buildings map[uuid.UUID]BuildingRecord
	lots      map[uuid.UUID]LotRecord
	contacts  map[uuid.UUID]ContactRecord
	contracts map[uuid.UUID]ContractRecord

	// Fault injection.
	failInsert map[string]error // key: family name, e.g. "contact"
	failCommit bool             // next WithinTx commit fails after fn ran

	txCount int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		buildings:  make(map[uuid.UUID]BuildingRecord),
		lots:       make(map[uuid.UUID]LotRecord),
		contacts:   make(map[uuid.UUID]ContactRecord),
		contracts:  make(map[uuid.UUID]ContractRecord),
		failInsert: make(map[string]error),
	}
}

type storeSnapshot struct {
	buildings map[uuid.UUID]BuildingRecord
	lots      map[uuid.UUID]LotRecord
	contacts  map[uuid.UUID]ContactRecord
	contracts map[uuid.UUID]ContractRecord
}

func (m *memoryStore) snapshot() storeSnapshot {
	s := storeSnapshot{
		buildings: make(map[uuid.UUID]BuildingRecord, len(m.buildings)),
		lots:      make(map[uuid.UUID]LotRecord, len(m.lots)),
		contacts:  make(map[uuid.UUID]ContactRecord, len(m.contacts)),
		contracts: make(map[uuid.UUID]ContractRecord, len(m.contracts)),
	}
	for k, v := range m.buildings {
		s.buildings[k] = v
	}
	for k, v := range m.lots {
		s.lots[k] = v
	}
	for k, v := range m.contacts {
		s.contacts[k] = v
	}
	for k, v := range m.contracts {
		s.contracts[k] = v
	}
	return s
}

func (m *memoryStore) restore(s storeSnapshot) {
	m.buildings = s.buildings
	m.lots = s.lots
	m.contacts = s.contacts
	m.contracts = s.contracts
}

func (m *memoryStore) SeedKeys(_ context.Context, tenantID uuid.UUID) ([]SeedEntry, error) {
	var entries []SeedEntry
	for id, b := range m.buildings {
		if b.TenantID != tenantID {
			continue
		}
		entries = append(entries, SeedEntry{Key: batch.BuildingKey(tenantID, b.Address), ID: id})
	}
	for id, l := range m.lots {
		if l.TenantID != tenantID {
			continue
		}
		entries = append(entries, SeedEntry{Key: m.lotKey(l), ID: id})
	}
	for id, c := range m.contacts {
		if c.TenantID != tenantID {
			continue
		}
		entries = append(entries, SeedEntry{Key: batch.ContactKey(tenantID, c.Email), ID: id})
	}
	for id, c := range m.contracts {
		if c.TenantID != tenantID {
			continue
		}
		lot, ok := m.lots[c.LotID]
		if !ok {
			continue
		}
		contact, ok := m.contacts[c.ContactID]
		if !ok {
			continue
		}
		entries = append(entries, SeedEntry{
			Key: batch.ContractKey(m.lotKey(lot), batch.ContactKey(tenantID, contact.Email), c.Role),
			ID:  id,
		})
	}
	return entries, nil
}

func (m *memoryStore) lotKey(l LotRecord) batch.Key {
	address := ""
	if l.BuildingID != nil {
		if b, ok := m.buildings[*l.BuildingID]; ok {
			address = b.Address
		}
	}
	return batch.LotKey(l.TenantID, address, l.Reference)
}

func (m *memoryStore) WithinTx(_ context.Context, _ uuid.UUID, fn func(ctx context.Context) error) error {
	m.txCount++
	before := m.snapshot()
	if err := fn(context.Background()); err != nil {
		m.restore(before)
		return err
	}
	if m.failCommit {
		m.failCommit = false
		m.restore(before)
		return fmt.Errorf("injected commit failure")
	}
	return nil
}

func (m *memoryStore) WithinSavepoint(_ context.Context, fn func(ctx context.Context) error) error {
	before := m.snapshot()
	if err := fn(context.Background()); err != nil {
		m.restore(before)
		return err
	}
	return nil
}

func (m *memoryStore) InsertBuilding(_ context.Context, rec BuildingRecord) error {
	if err := m.failInsert["building"]; err != nil {
		return err
	}
	if _, exists := m.buildings[rec.ID]; exists {
		return fmt.Errorf("duplicate building id %s", rec.ID)
	}
	m.buildings[rec.ID] = rec
	return nil
}

func (m *memoryStore) UpdateBuilding(_ context.Context, tenantID, id uuid.UUID, patch BuildingPatch) error {
	rec, ok := m.buildings[id]
	if !ok || rec.TenantID != tenantID {
		return fmt.Errorf("building %s not found", id)
	}
	if patch.PostalCode != nil {
		rec.PostalCode = patch.PostalCode
	}
	if patch.City != nil {
		rec.City = patch.City
	}
	if patch.ConstructionYear != nil {
		rec.ConstructionYear = patch.ConstructionYear
	}
	if patch.LotCount != nil {
		rec.LotCount = patch.LotCount
	}
	m.buildings[id] = rec
	return nil
}

func (m *memoryStore) InsertLot(_ context.Context, rec LotRecord) error {
	if err := m.failInsert["lot"]; err != nil {
		return err
	}
	if rec.BuildingID != nil {
		if _, ok := m.buildings[*rec.BuildingID]; !ok {
			return fmt.Errorf("lot %s references unknown building %s", rec.Reference, *rec.BuildingID)
		}
	}
	m.lots[rec.ID] = rec
	return nil
}

func (m *memoryStore) UpdateLot(_ context.Context, tenantID, id uuid.UUID, patch LotPatch) error {
	rec, ok := m.lots[id]
	if !ok || rec.TenantID != tenantID {
		return fmt.Errorf("lot %s not found", id)
	}
	if patch.Floor != nil {
		rec.Floor = patch.Floor
	}
	if patch.Category != nil {
		rec.Category = patch.Category
	}
	if patch.Surface != nil {
		rec.Surface = patch.Surface
	}
	m.lots[id] = rec
	return nil
}

func (m *memoryStore) InsertContact(_ context.Context, rec ContactRecord) error {
	if err := m.failInsert["contact"]; err != nil {
		return err
	}
	m.contacts[rec.ID] = rec
	return nil
}

func (m *memoryStore) UpdateContact(_ context.Context, tenantID, id uuid.UUID, patch ContactPatch) error {
	rec, ok := m.contacts[id]
	if !ok || rec.TenantID != tenantID {
		return fmt.Errorf("contact %s not found", id)
	}
	if patch.FirstName != nil {
		rec.FirstName = patch.FirstName
	}
	if patch.LastName != nil {
		rec.LastName = patch.LastName
	}
	if patch.Phone != nil {
		rec.Phone = patch.Phone
	}
	if patch.Company != nil {
		rec.Company = patch.Company
	}
	m.contacts[id] = rec
	return nil
}

func (m *memoryStore) InsertContract(_ context.Context, rec ContractRecord) error {
	if err := m.failInsert["contract"]; err != nil {
		return err
	}
	if _, ok := m.lots[rec.LotID]; !ok {
		return fmt.Errorf("contract references unknown lot %s", rec.LotID)
	}
	if _, ok := m.contacts[rec.ContactID]; !ok {
		return fmt.Errorf("contract references unknown contact %s", rec.ContactID)
	}
	m.contracts[rec.ID] = rec
	return nil
}

func (m *memoryStore) UpdateContract(_ context.Context, tenantID, id uuid.UUID, patch ContractPatch) error {
	rec, ok := m.contracts[id]
	if !ok || rec.TenantID != tenantID {
		return fmt.Errorf("contract %s not found", id)
	}
	if patch.StartDate != nil {
		rec.StartDate = patch.StartDate
	}
	if patch.EndDate != nil {
		rec.EndDate = patch.EndDate
	}
	if patch.RentAmount != nil {
		rec.RentAmount = patch.RentAmount
	}
	if patch.ChargesAmount != nil {
		rec.ChargesAmount = patch.ChargesAmount
	}
	m.contracts[id] = rec
	return nil
}
