package companies

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"quotelayout/internal/domain"
	"quotelayout/internal/ports"
)

// Service resolves a company identifier, which may be the internal id or the
// external tenant id, to the canonical record.
type Service struct {
	repo ports.CompanyRepository
}

func New(repo ports.CompanyRepository) *Service { return &Service{repo: repo} }

// Resolve tries the internal id first and falls back to the external tenant
// id. It returns domain.ErrNotFound when neither matches.
func (s *Service) Resolve(ctx context.Context, identifier string) (domain.Company, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return domain.Company{}, domain.ErrNotFound
	}

	company, err := s.repo.GetByInternalID(ctx, identifier)
	if err == nil {
		return company, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Company{}, fmt.Errorf("company lookup by internal id: %w", err)
	}

	company, err = s.repo.GetByExternalTenantID(ctx, identifier)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Company{}, domain.ErrNotFound
		}
		return domain.Company{}, fmt.Errorf("company lookup by external tenant id: %w", err)
	}
	return company, nil
}
