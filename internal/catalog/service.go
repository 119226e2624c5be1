// Package catalog serves the public catalogue of sponsorable books together
// with the team list used for referral attribution.
package catalog

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"github.com/noah-isme/sponsor-api/internal/common"
	"github.com/noah-isme/sponsor-api/internal/repo"
	"github.com/noah-isme/sponsor-api/internal/sheet"
)

// Source reads the catalogue and team sheets; repo.Catalogue satisfies it.
type Source interface {
	Records(ctx context.Context) ([]map[string]string, error)
	Team(ctx context.Context) ([]repo.TeamMember, error)
}

// Result is the catalogue response body.
type Result struct {
	Records  []map[string]string `json:"records"`
	TeamList []repo.TeamMember   `json:"teamList"`
}

// Service loads the catalogue, optionally through a Redis cache.
type Service struct {
	Source    Source
	SheetName string
	Cache     *Cache
	Logger    zerolog.Logger
}

// Load returns every catalogue record and the team list. A missing catalogue
// sheet is an error; a failing team sheet degrades to an empty list.
func (s *Service) Load(ctx context.Context) (Result, error) {
	ctx, span := otel.Tracer("catalog").Start(ctx, "catalog.Load")
	defer span.End()

	if cached, ok, err := s.Cache.Get(ctx); err != nil {
		s.Logger.Warn().Err(err).Msg("catalogue cache read failed")
	} else if ok {
		return cached, nil
	}

	records, err := s.Source.Records(ctx)
	if err != nil {
		if errors.Is(err, sheet.ErrNoSheet) {
			return Result{}, common.Errorf(common.ErrMissingSheet, "Missing sheet: %s", s.sheetName())
		}
		return Result{}, err
	}
	if records == nil {
		records = []map[string]string{}
	}

	team, err := s.Source.Team(ctx)
	if err != nil {
		s.Logger.Warn().Err(err).Msg("team list unavailable")
		team = []repo.TeamMember{}
	}
	if team == nil {
		team = []repo.TeamMember{}
	}

	res := Result{Records: records, TeamList: team}
	if err := s.Cache.Set(ctx, res); err != nil {
		s.Logger.Warn().Err(err).Msg("catalogue cache write failed")
	}
	return res, nil
}

func (s *Service) sheetName() string {
	if s.SheetName != "" {
		return s.SheetName
	}
	return "Public_Catalogue"
}
