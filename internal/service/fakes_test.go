package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/iliyamo/clinic-queue-booking/internal/availability"
	"github.com/iliyamo/clinic-queue-booking/internal/model"
	"github.com/iliyamo/clinic-queue-booking/internal/repository"
	"github.com/iliyamo/clinic-queue-booking/internal/timewindow"
)

// Monday 2025-03-03 08:00 UTC.
var testNow = time.Date(2025, 3, 3, 8, 0, 0, 0, time.UTC)

func fixedCalc(now time.Time) *availability.Calculator {
	return &availability.Calculator{Now: func() time.Time { return now }, Loc: time.UTC}
}

func weekdaySchedule() model.WeeklySchedule {
	s := model.WeeklySchedule{
		WorkingDays:  model.DayFlags{},
		WorkingHours: model.DayWindows{},
		LunchTime:    model.DayWindows{},
	}
	for _, d := range model.Weekdays[:5] {
		s.WorkingDays[d] = true
		s.WorkingHours[d] = []string{"09:00", "18:00"}
		s.LunchTime[d] = []string{"13:00", "14:00"}
	}
	return s
}

// memBookings is an in-memory BookingStore.  WithTx holds mu for the whole
// transaction, the way the doctor row lock serialises writers, and restores
// the previous state when fn fails.
type memBookings struct {
	mu        sync.Mutex
	rows      map[uint64]*model.Booking
	nextID    uint64
	insertErr error
}

func newMemBookings(rows ...model.Booking) *memBookings {
	m := &memBookings{rows: map[uint64]*model.Booking{}}
	for i := range rows {
		b := rows[i]
		if b.ID == 0 {
			b.ID = m.nextID + 1
		}
		if b.ID > m.nextID {
			m.nextID = b.ID
		}
		m.rows[b.ID] = &b
	}
	return m
}

func (m *memBookings) WithTx(ctx context.Context, fn func(tx repository.BookingTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	saved := make(map[uint64]model.Booking, len(m.rows))
	for id, b := range m.rows {
		saved[id] = *b
	}
	savedID := m.nextID
	if err := fn(memTx{m}); err != nil {
		m.rows = map[uint64]*model.Booking{}
		for id, b := range saved {
			b := b
			m.rows[id] = &b
		}
		m.nextID = savedID
		return err
	}
	return nil
}

func (m *memBookings) all() []model.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Booking, 0, len(m.rows))
	for id := uint64(1); id <= m.nextID; id++ {
		if b, ok := m.rows[id]; ok {
			out = append(out, *b)
		}
	}
	return out
}

func activeScheduled(b *model.Booking, doctorID uint64) bool {
	return b.DoctorID == doctorID && b.Kind == model.KindScheduled && b.IsActive()
}

func (m *memBookings) ActiveStartsInRange(ctx context.Context, doctorID uint64, from, to time.Time) (map[string][]timewindow.Clock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string][]timewindow.Clock{}
	lo, hi := from.Format(model.DateLayout), to.Format(model.DateLayout)
	for _, b := range m.rows {
		d := b.DateString()
		if activeScheduled(b, doctorID) && d >= lo && d <= hi {
			out[d] = append(out[d], b.TimeStart)
		}
	}
	return out, nil
}

func (m *memBookings) ListByClinicDay(ctx context.Context, clinicID uint64, day time.Time) ([]model.Booking, error) {
	var out []model.Booking
	for _, b := range m.all() {
		if b.ClinicID == clinicID && b.DateString() == day.Format(model.DateLayout) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memBookings) ListByClinicSince(ctx context.Context, clinicID uint64, since time.Time) ([]model.Booking, error) {
	var out []model.Booking
	for _, b := range m.all() {
		if b.ClinicID == clinicID && !b.Date.Before(since) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memBookings) ListByDoctor(ctx context.Context, doctorID uint64) ([]model.Booking, error) {
	var out []model.Booking
	for _, b := range m.all() {
		if b.DoctorID == doctorID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memBookings) GetByID(ctx context.Context, id uint64) (*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

type memTx struct{ m *memBookings }

func (t memTx) LockDoctor(ctx context.Context, doctorID uint64) error { return nil }
func (t memTx) LockClinic(ctx context.Context, clinicID uint64) error { return nil }

func (t memTx) ActiveStartsOnDate(ctx context.Context, doctorID uint64, date time.Time, excludeID uint64) ([]timewindow.Clock, error) {
	var out []timewindow.Clock
	for _, b := range t.m.rows {
		if b.ID != excludeID && activeScheduled(b, doctorID) && b.DateString() == date.Format(model.DateLayout) {
			out = append(out, b.TimeStart)
		}
	}
	return out, nil
}

func (t memTx) Insert(ctx context.Context, b *model.Booking) error {
	if t.m.insertErr != nil {
		return t.m.insertErr
	}
	t.m.nextID++
	b.ID = t.m.nextID
	b.CreatedAt = testNow
	b.UpdatedAt = testNow
	cp := *b
	t.m.rows[b.ID] = &cp
	return nil
}

func (t memTx) GetForUpdate(ctx context.Context, id uint64) (*model.Booking, error) {
	b, ok := t.m.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (t memTx) Update(ctx context.Context, b *model.Booking) error {
	if _, ok := t.m.rows[b.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *b
	t.m.rows[b.ID] = &cp
	return nil
}

func (t memTx) CountTicketsWithPrefix(ctx context.Context, clinicID uint64, date time.Time, prefix string) (int, error) {
	n := 0
	for _, b := range t.m.rows {
		if b.ClinicID == clinicID && b.DateString() == date.Format(model.DateLayout) &&
			b.TicketNumber != nil && len(*b.TicketNumber) >= len(prefix) && (*b.TicketNumber)[:len(prefix)] == prefix {
			n++
		}
	}
	return n, nil
}

func (t memTx) HasWaitingTicket(ctx context.Context, doctorID uint64, date time.Time) (bool, error) {
	for _, b := range t.m.rows {
		if b.DoctorID == doctorID && b.DateString() == date.Format(model.DateLayout) &&
			(b.Status == model.StatusInvited || b.Status == model.StatusPending) {
			return true, nil
		}
	}
	return false, nil
}

type fakeClinics struct {
	clinics map[uint64]*model.Clinic
	admins  map[uint64][]uint64 // clinic -> user ids
	tgIDs   map[uint64][]int64
}

func (f *fakeClinics) GetClinic(ctx context.Context, id uint64) (*model.Clinic, error) {
	c, ok := f.clinics[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeClinics) IsClinicAdmin(ctx context.Context, clinicID, userID uint64) (bool, error) {
	for _, u := range f.admins[clinicID] {
		if u == userID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeClinics) AdminTelegramIDs(ctx context.Context, clinicID uint64) ([]int64, error) {
	return f.tgIDs[clinicID], nil
}

func (f *fakeClinics) ListBookingCities(ctx context.Context) ([]string, error) {
	seen := map[string]bool{}
	out := []string{}
	for _, c := range f.clinics {
		if c.IsActive && c.IsOnlineBooking && c.City != "" && !seen[c.City] {
			seen[c.City] = true
			out = append(out, c.City)
		}
	}
	sort.Strings(out)
	return out, nil
}

type fakeDoctors struct {
	doctors     map[uint64]*model.Doctor
	byService   map[uint64][]repository.DoctorWithClinic
	leastLoaded *model.Doctor
	firstSvc    map[uint64]uint64
}

func (f *fakeDoctors) GetDoctor(ctx context.Context, id uint64) (*model.Doctor, error) {
	d, ok := f.doctors[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (f *fakeDoctors) GetDoctorByUser(ctx context.Context, userID uint64) (*model.Doctor, error) {
	for _, d := range f.doctors {
		if d.UserID != nil && *d.UserID == userID {
			cp := *d
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeDoctors) ListClinicDoctors(ctx context.Context, clinicID uint64) ([]model.Doctor, error) {
	var out []model.Doctor
	for id := uint64(1); id <= 100; id++ {
		if d, ok := f.doctors[id]; ok && d.ClinicID == clinicID && d.IsActive {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (f *fakeDoctors) ListDoctorsForService(ctx context.Context, serviceID uint64, city string) ([]repository.DoctorWithClinic, error) {
	return f.byService[serviceID], nil
}

func (f *fakeDoctors) LeastLoadedDoctor(ctx context.Context, clinicID, serviceID uint64, date time.Time) (*model.Doctor, error) {
	if f.leastLoaded == nil {
		return nil, repository.ErrNotFound
	}
	cp := *f.leastLoaded
	return &cp, nil
}

func (f *fakeDoctors) FirstServiceID(ctx context.Context, doctorID uint64) (*uint64, error) {
	id, ok := f.firstSvc[doctorID]
	if !ok {
		return nil, nil
	}
	return &id, nil
}

type fakeServices struct {
	services map[uint64]*model.Service
}

func (f *fakeServices) GetService(ctx context.Context, id uint64) (*model.Service, error) {
	s, ok := f.services[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeServices) ListClinicServices(ctx context.Context, clinicID uint64) ([]model.Service, error) {
	var out []model.Service
	for id := uint64(1); id <= 100; id++ {
		if s, ok := f.services[id]; ok {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeServices) ListBookableServices(ctx context.Context) ([]model.Service, error) {
	return f.ListClinicServices(ctx, 0)
}

type fakeUser struct {
	fullName, phone string
	tgID            int64
}

type fakeUsers []fakeUser

func (f fakeUsers) TelegramIDsByPatient(ctx context.Context, fullName, phone string) ([]int64, error) {
	for _, u := range f {
		if u.phone == phone && strings.EqualFold(u.fullName, fullName) {
			return []int64{u.tgID}, nil
		}
	}
	return []int64{}, nil
}

type sentNotification struct {
	event   string
	targets []int64
	data    map[string]string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (r *recordingNotifier) Send(ctx context.Context, event string, targets []int64, data map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentNotification{event: event, targets: targets, data: data})
}

// fakeCache mirrors the versioned Redis cache: Invalidate bumps the
// doctor's version and entries are keyed by the version passed to Set.
// afterMiss runs after a miss, before the caller computes the map.
type fakeCache struct {
	mu          sync.Mutex
	entries     map[string]map[string][]timewindow.Clock
	versions    map[uint64]int64
	gets        int
	misses      int
	invalidated []uint64
	afterMiss   func(doctorID uint64)
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string]map[string][]timewindow.Clock{}, versions: map[uint64]int64{}}
}

func cacheKey(doctorID uint64, version int64, variant string) string {
	return fmt.Sprintf("%d|%d|%s", doctorID, version, variant)
}

func (c *fakeCache) Get(ctx context.Context, doctorID uint64, variant string) (map[string][]timewindow.Clock, int64, bool) {
	c.mu.Lock()
	c.gets++
	ver := c.versions[doctorID]
	v, ok := c.entries[cacheKey(doctorID, ver, variant)]
	if !ok {
		c.misses++
	}
	hook := c.afterMiss
	c.mu.Unlock()
	if !ok && hook != nil {
		hook(doctorID)
	}
	return v, ver, ok
}

func (c *fakeCache) Set(ctx context.Context, doctorID uint64, variant string, version int64, slots map[string][]timewindow.Clock) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(doctorID, version, variant)] = slots
}

func (c *fakeCache) Invalidate(ctx context.Context, doctorID uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.versions[doctorID]++
	c.invalidated = append(c.invalidated, doctorID)
}

type fixture struct {
	bookings *memBookings
	clinics  *fakeClinics
	doctors  *fakeDoctors
	services *fakeServices
	notify   *recordingNotifier
	cache    *fakeCache
	deps     Deps
}

const (
	clinicID     uint64 = 1
	adminUserID  uint64 = 50
	doctorUserID uint64 = 60
)

func u64(v uint64) *uint64 { return &v }
func str(v string) *string { return &v }

func newFixture(rows ...model.Booking) *fixture {
	f := &fixture{
		bookings: newMemBookings(rows...),
		clinics: &fakeClinics{
			clinics: map[uint64]*model.Clinic{
				clinicID: {ID: clinicID, Name: "City Clinic", City: "Kazan", IsActive: true, IsOnlineBooking: true,
					IsElectronicQueue: true, IsBookingForDoctors: true, IsBookingForServices: true},
				2: {ID: 2, Name: "Other", City: "Moscow", IsActive: true, IsOnlineBooking: true},
			},
			admins: map[uint64][]uint64{clinicID: {adminUserID}},
			tgIDs:  map[uint64][]int64{clinicID: {900}},
		},
		doctors: &fakeDoctors{
			doctors: map[uint64]*model.Doctor{
				1: {ID: 1, ClinicID: clinicID, UserID: u64(doctorUserID), FullName: "Anna Petrova", CabinetNumber: "12",
					Schedule: weekdaySchedule(), DefaultDuration: 30, IsActive: true, AvailableForBooking: true},
				2: {ID: 2, ClinicID: clinicID, FullName: "Boris Ivanov", CabinetNumber: "7",
					Schedule: weekdaySchedule(), DefaultDuration: 30, IsActive: true, AvailableForBooking: true},
				3: {ID: 3, ClinicID: 2, FullName: "Alexei Other",
					Schedule: weekdaySchedule(), DefaultDuration: 30, IsActive: true, AvailableForBooking: true},
			},
			firstSvc: map[uint64]uint64{1: 5},
		},
		services: &fakeServices{services: map[uint64]*model.Service{5: {ID: 5, Name: "Checkup"}}},
		notify:   &recordingNotifier{},
		cache:    newFakeCache(),
	}
	f.deps = Deps{
		Bookings:    f.bookings,
		Clinics:     f.clinics,
		Doctors:     f.doctors,
		Services:    f.services,
		Users:       fakeUsers{{fullName: "IVAN SIDOROV", phone: "+700", tgID: 777}, {fullName: "Ivan Sidorov", phone: "+700", tgID: 778}},
		Calc:        fixedCalc(testNow),
		Cache:       f.cache,
		Notify:      f.notify,
		Superadmins: []int64{1},
		Log:         zerolog.Nop(),
	}
	return f
}

func scheduled(id, doctorID uint64, date, start string, status model.BookingStatus) model.Booking {
	d, _ := time.ParseInLocation(model.DateLayout, date, time.UTC)
	return model.Booking{
		ID: id, Kind: model.KindScheduled, ClinicID: clinicID, DoctorID: doctorID,
		PatientFullName: "Ivan", PatientPhone: "+700", Date: d, TimeStart: timewindow.MustClock(start),
		Status: status, CreatedBy: model.CreatedByPatient,
	}
}
