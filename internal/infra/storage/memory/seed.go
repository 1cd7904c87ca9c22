package memory

import (
	"rentguru/internal/domain/incentive"
	"rentguru/internal/domain/resource"
)

// Seeding bypasses units and version checks; it is meant for fixtures and tests.

func (s *Store) PutResource(r resource.Resource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resources[r.Base().ID] = resource.Clone(r)
}

func (s *Store) PutAccount(a incentive.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.UserID] = &a
}

func (s *Store) PutPartner(p incentive.Partner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.partners[p.ID] = p
}

func (s *Store) PutPromo(p incentive.PromoCode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.Code = incentive.NormalizeCode(p.Code)
	s.promos[p.Code] = p
}
