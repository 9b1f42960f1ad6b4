// Package patient synthesizes the fake patient identity sent to target
// systems in place of real demographics.
package patient

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"time"

	"github.com/ehr/fits/internal/domain/testcase"
)

// Patient is a synthetic identity. DOB and sex come from the test case;
// everything else is derived from it deterministically.
type Patient struct {
	MRN         string
	LastName    string
	FirstName   string
	MiddleName  string
	MaidenLast  string
	MaidenFirst string
	MotherLast  string
	MotherFirst string
	Dob         time.Time
	Sex         string
	Street      string
	City        string
	State       string
	Zip         string
	Phone       string
}

// New builds the patient for one query. mrn is normally the per-query
// unique ID so repeated runs never merge history at the target.
func New(tc *testcase.TestCase, mrn string) Patient {
	rng := rand.New(rand.NewSource(seed(tc)))

	p := Patient{
		MRN: mrn,
		Dob: tc.PatientDob,
		Sex: tc.PatientSex,
	}
	if p.Sex == "" {
		p.Sex = "U"
	}

	p.LastName = pick(rng, lastNames)
	if p.Sex == "M" {
		p.FirstName = pick(rng, boyNames)
		p.MiddleName = pick(rng, boyNames)
	} else {
		p.FirstName = pick(rng, girlNames)
		p.MiddleName = pick(rng, girlNames)
	}
	p.MotherFirst = pick(rng, girlNames)
	p.MotherLast = p.LastName
	p.MaidenFirst = p.MotherFirst
	p.MaidenLast = pick(rng, lastNames)
	for p.MaidenLast == p.LastName {
		p.MaidenLast = pick(rng, lastNames)
	}

	place := places[rng.Intn(len(places))]
	p.Street = fmt.Sprintf("%d %s %s", 100+rng.Intn(9800), pick(rng, streets), pick(rng, streetTypes))
	p.City = place.city
	p.State = place.state
	p.Zip = fmt.Sprintf("%s%02d", place.zipPrefix, rng.Intn(100))
	p.Phone = fmt.Sprintf("%s%03d%04d", place.area, 200+rng.Intn(800), rng.Intn(10000))
	return p
}

// PhoneArea returns the area code of a ten-digit phone number.
func (p Patient) PhoneArea() string {
	if len(p.Phone) != 10 {
		return ""
	}
	return p.Phone[:3]
}

// PhoneLocal returns the seven-digit local part of the phone number.
func (p Patient) PhoneLocal() string {
	if len(p.Phone) != 10 {
		return ""
	}
	return p.Phone[3:]
}

func seed(tc *testcase.TestCase) int64 {
	h := fnv.New64a()
	h.Write([]byte(tc.ID))
	h.Write([]byte{0})
	h.Write([]byte(tc.Label))
	h.Write([]byte{0})
	h.Write([]byte(tc.PatientDob.Format("20060102")))
	return int64(h.Sum64())
}

func pick(rng *rand.Rand, list []string) string {
	return list[rng.Intn(len(list))]
}
