package forecast

import (
	"strconv"
	"strings"
)

// VaccineGroup is one entry of the shared forecast taxonomy.
type VaccineGroup struct {
	ID         int    `json:"id"`
	Label      string `json:"label"`
	VaccineCvx string `json:"vaccine_cvx,omitempty"`
}

const (
	IDDTaP = iota + 1
	IDHepB
	IDHib
	IDPolio
	IDHepA
	IDMMR
	IDVar
	IDInfluenza
	IDMening
	IDHPV
	IDRota
	IDPneumo
	IDPCV
	IDZoster
	IDPPSV
	IDTdapTd
	IDTdOnly
	IDTdapOnly
	IDDTaPTdapTd
	IDMeaslesOnly
	IDMumpsOnly
	IDRubellaOnly
)

var vaccineGroups = []VaccineGroup{
	{IDDTaP, "DTaP", "107"},
	{IDHepB, "HepB", "45"},
	{IDHib, "Hib", "17"},
	{IDPolio, "Polio", "89"},
	{IDHepA, "HepA", "85"},
	{IDMMR, "MMR", "03"},
	{IDVar, "Var", "21"},
	{IDInfluenza, "Influenza", "88"},
	{IDMening, "Mening", "147"},
	{IDHPV, "HPV", "137"},
	{IDRota, "Rota", "122"},
	{IDPneumo, "Pneumo", "109"},
	{IDPCV, "PCV", "152"},
	{IDZoster, "Zoster", "121"},
	{IDPPSV, "PPSV", "33"},
	{IDTdapTd, "Tdap/Td", "139"},
	{IDTdOnly, "Td Only", "09"},
	{IDTdapOnly, "Tdap Only", "115"},
	{IDDTaPTdapTd, "DTaP/Tdap/Td", ""},
	{IDMeaslesOnly, "Measles Only", "05"},
	{IDMumpsOnly, "Mumps Only", "07"},
	{IDRubellaOnly, "Rubella Only", "06"},
}

// VaccineGroups returns the full taxonomy in ID order.
func VaccineGroups() []VaccineGroup {
	return append([]VaccineGroup(nil), vaccineGroups...)
}

// VaccineGroupByID looks up a group by taxonomy ID.
func VaccineGroupByID(id int) (VaccineGroup, bool) {
	if id < 1 || id > len(vaccineGroups) {
		return VaccineGroup{}, false
	}
	return vaccineGroups[id-1], true
}

// VaccineGroupByCode looks up a group by the numeric value of its CVX code,
// so "3" and "03" both find MMR.
func VaccineGroupByCode(code int) (VaccineGroup, bool) {
	for _, g := range vaccineGroups {
		if g.VaccineCvx == "" {
			continue
		}
		if n, err := strconv.Atoi(g.VaccineCvx); err == nil && n == code {
			return g, true
		}
	}
	return VaccineGroup{}, false
}

// VaccineGroupByLabel matches a label case-insensitively.
func VaccineGroupByLabel(label string) (VaccineGroup, bool) {
	for _, g := range vaccineGroups {
		if strings.EqualFold(g.Label, label) {
			return g, true
		}
	}
	return VaccineGroup{}, false
}
