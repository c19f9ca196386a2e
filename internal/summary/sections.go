package summary

import (
	"fmt"

	"github.com/trial-progress-dashboard/internal/domain"
)

// Dashboard section names.
const (
	SectionScreening   = "screening"
	SectionInHospital  = "in_hospital"
	SectionPreHospital = "pre_hospital"
	SectionSpecimens   = "specimens"
	SectionFollowUp    = "follow_up"
	SectionDataQuality = "data_quality"
)

// SectionNames lists every section in display order.
var SectionNames = []string{
	SectionScreening,
	SectionInHospital,
	SectionPreHospital,
	SectionSpecimens,
	SectionFollowUp,
	SectionDataQuality,
}

// Section returns one named part of the dashboard.
func (d *Dashboard) Section(name string) (interface{}, error) {
	switch name {
	case SectionScreening:
		return d.Screening, nil
	case SectionInHospital:
		return d.InHospital, nil
	case SectionPreHospital:
		return d.PreHospital, nil
	case SectionSpecimens:
		return d.Specimens, nil
	case SectionFollowUp:
		return d.FollowUp, nil
	case SectionDataQuality:
		return d.DataQuality, nil
	default:
		return nil, fmt.Errorf("%w: unknown section %q", domain.ErrInvalidSummary, name)
	}
}
