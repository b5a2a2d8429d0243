package practice

import (
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"

	"github.com/hackgods/practice-scheduling/internal/calendar"
)

var fakeRoles = []string{
	"General Practice",
	"Dermatology",
	"Physiotherapy",
	"Pediatrics",
	"Dental Hygiene",
	"Psychology",
}

// FakePractice is a generated company used by the seed and simulate
// commands.
type FakePractice struct {
	CompanyID uuid.UUID
	Providers []Resource
	Rooms     []Resource
	Patients  []Patient
}

// NewFakePractice generates a company with plausible weekly calendars. The
// same faker seed yields the same calendars, names and roles.
func NewFakePractice(faker *gofakeit.Faker, providers, rooms, patients int, tz string) FakePractice {
	fp := FakePractice{CompanyID: uuid.New()}

	for i := 0; i < providers; i++ {
		fp.Providers = append(fp.Providers, Resource{
			ID:        uuid.New(),
			CompanyID: fp.CompanyID,
			Name:      "Dr. " + faker.LastName(),
			Kind:      KindProvider,
			Role:      fakeRoles[faker.Number(0, len(fakeRoles)-1)],
			Timezone:  tz,
			Week:      fakeWeek(faker),
			Active:    true,
		})
	}
	for i := 0; i < rooms; i++ {
		fp.Rooms = append(fp.Rooms, Resource{
			ID:        uuid.New(),
			CompanyID: fp.CompanyID,
			Name:      fmt.Sprintf("Room %d", i+1),
			Kind:      KindRoom,
			Timezone:  tz,
			Week:      roomWeek(),
			Active:    true,
		})
	}
	for i := 0; i < patients; i++ {
		email := faker.Email()
		phone := faker.Phone()
		fp.Patients = append(fp.Patients, Patient{
			ID:        uuid.New(),
			CompanyID: fp.CompanyID,
			Name:      faker.Name(),
			Email:     &email,
			Phone:     &phone,
		})
	}
	return fp
}

// fakeWeek opens Monday to Friday between 7-10 and 15-19 on the hour, with a
// lunch break on most days and an occasional Saturday morning.
func fakeWeek(faker *gofakeit.Faker) calendar.Week {
	var wk calendar.Week
	open := calendar.At(faker.Number(7, 10), 0)
	closing := calendar.At(faker.Number(15, 19), 0)
	lunch := calendar.At(faker.Number(12, 13), 0)

	for d := time.Monday; d <= time.Friday; d++ {
		if faker.Number(1, 10) <= 8 {
			wk[d] = calendar.Hours(open, closing, calendar.Interval{Start: lunch, End: lunch + 60})
		} else {
			wk[d] = calendar.Hours(open, closing)
		}
	}
	if faker.Bool() {
		wk[time.Saturday] = calendar.Hours(calendar.At(9, 0), calendar.At(13, 0))
	}
	return wk
}

func roomWeek() calendar.Week {
	var wk calendar.Week
	for d := time.Monday; d <= time.Saturday; d++ {
		wk[d] = calendar.Hours(calendar.At(7, 0), calendar.At(20, 0))
	}
	return wk
}

// AddTo loads the generated practice into an in-memory directory.
func (fp FakePractice) AddTo(d *MemoryDirectory) {
	for _, r := range fp.Providers {
		d.AddResource(r)
	}
	for _, r := range fp.Rooms {
		d.AddResource(r)
	}
	for _, p := range fp.Patients {
		d.AddPatient(p)
	}
}
