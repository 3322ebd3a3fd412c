package weather

import "context"

// Enricher adapts a RainRiskFinder to the booking service's enrichment hook.
type Enricher struct {
	Finder RainRiskFinder
}

func (e Enricher) Enrich(ctx context.Context, city, state, date string) (bool, *string, error) {
	risk, err := e.Finder.RainRisk(ctx, city, state, date)
	if err != nil {
		return false, nil, err
	}
	summary := risk.Summary
	return risk.RainAlert, &summary, nil
}
