package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/tahcohcat/reconectar/internal/apperr"
	"github.com/tahcohcat/reconectar/internal/challenge"
	"github.com/tahcohcat/reconectar/internal/localstore"
	"github.com/tahcohcat/reconectar/internal/models"
	"github.com/tahcohcat/reconectar/internal/profile"
	"github.com/tahcohcat/reconectar/internal/realtime"
)

const (
	// DailyScreenTimeTarget is the daily total, in minutes, that counts towards the streak.
	DailyScreenTimeTarget = 120
	usageHistoryDays      = 90
	reportWindow          = 7
)

// DefaultAppLimits seeds the limits of a profile that never saved any.
var DefaultAppLimits = []models.AppLimit{
	{ID: "instagram", Name: "Instagram", Icon: "Instagram", DailyLimit: 60, Category: models.CategorySocial},
	{ID: "tiktok", Name: "TikTok", Icon: "Video", DailyLimit: 30, Category: models.CategoryEntertainment},
	{ID: "youtube", Name: "YouTube", Icon: "Youtube", DailyLimit: 90, Category: models.CategoryEntertainment},
	{ID: "twitter", Name: "Twitter/X", Icon: "Twitter", DailyLimit: 45, Category: models.CategorySocial},
	{ID: "whatsapp", Name: "WhatsApp", Icon: "MessageCircle", DailyLimit: 120, Category: models.CategorySocial},
}

var weekdaysPtBR = [...]string{"domingo", "segunda-feira", "terça-feira", "quarta-feira", "quinta-feira", "sexta-feira", "sábado"}

// WellnessService keeps screen-time limits and usage in the local store.
type WellnessService struct {
	store  localstore.Store
	events realtime.Publisher
	locks  userLocks
	now    Clock
}

func NewWellnessService(store localstore.Store, events realtime.Publisher) *WellnessService {
	return &WellnessService{store: store, events: events, now: time.Now}
}

func (s *WellnessService) AppLimits(ctx context.Context, userID string) ([]models.AppLimit, error) {
	return s.loadLimits(ctx, userID)
}

func (s *WellnessService) UpdateAppLimit(ctx context.Context, userID, appID string, dailyLimit int) (*models.AppLimit, error) {
	const op = "services.UpdateAppLimit"
	if dailyLimit < 1 {
		return nil, apperr.Validation(op, "daily limit must be at least 1 minute")
	}

	unlock := s.locks.lock(userID)
	defer unlock()

	limits, err := s.loadLimits(ctx, userID)
	if err != nil {
		return nil, err
	}
	i := indexOfApp(limits, appID)
	if i < 0 {
		return nil, apperr.NotFound(op, "app not found")
	}
	limits[i].DailyLimit = dailyLimit
	if err := s.saveLimits(ctx, userID, limits); err != nil {
		return nil, err
	}
	updated := limits[i]
	return &updated, nil
}

func (s *WellnessService) AddAppLimit(ctx context.Context, userID string, limit models.AppLimit) (*models.AppLimit, error) {
	const op = "services.AddAppLimit"

	limit.Name = strings.TrimSpace(limit.Name)
	if limit.Name == "" {
		return nil, apperr.Validation(op, "app name is required")
	}
	if limit.DailyLimit < 1 {
		return nil, apperr.Validation(op, "daily limit must be at least 1 minute")
	}
	limit.ID = strings.TrimSpace(limit.ID)
	if limit.ID == "" {
		limit.ID = profile.Handle(limit.Name)
	}
	if limit.Icon == "" {
		limit.Icon = "Smartphone"
	}
	switch limit.Category {
	case models.CategorySocial, models.CategoryEntertainment, models.CategoryProductivity, models.CategoryOther:
	case "":
		limit.Category = models.CategoryOther
	default:
		return nil, apperr.Validation(op, "unknown category "+string(limit.Category))
	}
	limit.CurrentUsage = 0

	unlock := s.locks.lock(userID)
	defer unlock()

	limits, err := s.loadLimits(ctx, userID)
	if err != nil {
		return nil, err
	}
	if indexOfApp(limits, limit.ID) >= 0 {
		return nil, apperr.New(op, apperr.KindConflict, "app already has a limit")
	}
	limits = append(limits, limit)
	if err := s.saveLimits(ctx, userID, limits); err != nil {
		return nil, err
	}
	return &limit, nil
}

func (s *WellnessService) RemoveAppLimit(ctx context.Context, userID, appID string) error {
	unlock := s.locks.lock(userID)
	defer unlock()

	limits, err := s.loadLimits(ctx, userID)
	if err != nil {
		return err
	}
	i := indexOfApp(limits, appID)
	if i < 0 {
		return apperr.NotFound("services.RemoveAppLimit", "app not found")
	}
	limits = append(limits[:i], limits[i+1:]...)
	return s.saveLimits(ctx, userID, limits)
}

// RecordUsage adds minutes of appID to the given day. When the day is today
// the app's current usage follows.
func (s *WellnessService) RecordUsage(ctx context.Context, userID, date, appID string, minutes int) (*models.DailyUsage, error) {
	const op = "services.RecordUsage"
	if minutes < 0 {
		return nil, apperr.Validation(op, "minutes cannot be negative")
	}
	day, err := time.Parse(challenge.DateLayout, date)
	if err != nil {
		return nil, apperr.Validation(op, "date must look like 2006-01-02")
	}
	today, _ := time.Parse(challenge.DateLayout, s.now().Format(challenge.DateLayout))
	if day.Before(today.AddDate(0, 0, -(usageHistoryDays - 1))) {
		return nil, apperr.Validation(op, fmt.Sprintf("date is older than the last %d days", usageHistoryDays))
	}

	unlock := s.locks.lock(userID)
	defer unlock()

	limits, err := s.loadLimits(ctx, userID)
	if err != nil {
		return nil, err
	}
	li := indexOfApp(limits, appID)
	if li < 0 {
		return nil, apperr.NotFound(op, "app not found")
	}

	usage, err := s.loadUsage(ctx, userID)
	if err != nil {
		return nil, err
	}

	di := -1
	for i := range usage {
		if usage[i].Date == date {
			di = i
			break
		}
	}
	if di < 0 {
		usage = append(usage, models.DailyUsage{Date: date, AppsUsage: []models.AppUsage{}})
		di = len(usage) - 1
	}
	entry := &usage[di]

	appMinutes := minutes
	found := false
	for i := range entry.AppsUsage {
		if entry.AppsUsage[i].AppID == appID {
			entry.AppsUsage[i].Minutes += minutes
			appMinutes = entry.AppsUsage[i].Minutes
			found = true
			break
		}
	}
	if !found {
		entry.AppsUsage = append(entry.AppsUsage, models.AppUsage{AppID: appID, Minutes: minutes})
	}
	entry.TotalMinutes = 0
	for _, u := range entry.AppsUsage {
		entry.TotalMinutes += u.Minutes
	}
	recorded := *entry

	sort.Slice(usage, func(i, j int) bool { return usage[i].Date < usage[j].Date })
	if len(usage) > usageHistoryDays {
		usage = usage[len(usage)-usageHistoryDays:]
		if usage[0].Date > date {
			// later days already fill the history
			return nil, apperr.Validation(op, fmt.Sprintf("date is older than the last %d days", usageHistoryDays))
		}
	}
	if err := s.save(ctx, userID, localstore.KeyDailyUsage, usage); err != nil {
		return nil, err
	}

	if date == s.now().Format(challenge.DateLayout) {
		limits[li].CurrentUsage = appMinutes
		if err := s.saveLimits(ctx, userID, limits); err != nil {
			return nil, err
		}
	}
	return &recorded, nil
}

// Usage returns the stored days, oldest first.
func (s *WellnessService) Usage(ctx context.Context, userID string) ([]models.DailyUsage, error) {
	return s.loadUsage(ctx, userID)
}

// WeeklyReport summarises the last seven stored days.
func (s *WellnessService) WeeklyReport(ctx context.Context, userID string) (*models.WeeklyReport, error) {
	limits, err := s.loadLimits(ctx, userID)
	if err != nil {
		return nil, err
	}
	usage, err := s.loadUsage(ctx, userID)
	if err != nil {
		return nil, err
	}
	return BuildWeeklyReport(limits, usage), nil
}

// BuildWeeklyReport computes the report over usage sorted oldest first.
func BuildWeeklyReport(limits []models.AppLimit, usage []models.DailyUsage) *models.WeeklyReport {
	week := usage
	var previous []models.DailyUsage
	if len(usage) > reportWindow {
		week = usage[len(usage)-reportWindow:]
		previous = usage[:len(usage)-reportWindow]
		if len(previous) > reportWindow {
			previous = previous[len(previous)-reportWindow:]
		}
	}

	report := &models.WeeklyReport{MostUsedApp: "N/A", LeastUsedDay: "N/A"}

	appTotals := map[string]int{}
	for _, day := range week {
		report.TotalScreenTime += day.TotalMinutes
		for _, u := range day.AppsUsage {
			appTotals[u.AppID] += u.Minutes
		}
	}
	report.AverageDaily = int(math.Round(float64(report.TotalScreenTime) / reportWindow))

	mostID, most := "", -1
	for id, total := range appTotals {
		if total > most || (total == most && id < mostID) {
			mostID, most = id, total
		}
	}
	if i := indexOfApp(limits, mostID); i >= 0 {
		report.MostUsedApp = limits[i].Name
	}

	if len(week) > 0 {
		least := week[0]
		for _, day := range week[1:] {
			if day.TotalMinutes < least.TotalMinutes {
				least = day
			}
		}
		if t, err := time.Parse(challenge.DateLayout, least.Date); err == nil {
			report.LeastUsedDay = weekdaysPtBR[t.Weekday()]
		}
	}

	for i := len(week) - 1; i >= 0; i-- {
		if week[i].TotalMinutes > DailyScreenTimeTarget {
			break
		}
		report.Streak++
	}

	if len(previous) > 0 {
		prevTotal := 0
		for _, day := range previous {
			prevTotal += day.TotalMinutes
		}
		prevAvg := float64(prevTotal) / reportWindow
		if prevAvg > 0 {
			report.Improvement = int(math.Round((prevAvg - float64(report.AverageDaily)) / prevAvg * 100))
		}
	}
	return report
}

func (s *WellnessService) loadLimits(ctx context.Context, userID string) ([]models.AppLimit, error) {
	var limits []models.AppLimit
	ok, err := localstore.Load(ctx, s.store, localstore.Key(userID, localstore.KeyAppLimits), &limits)
	if err != nil {
		return nil, apperr.Backend("services.LoadAppLimits", err)
	}
	if !ok {
		limits = append([]models.AppLimit{}, DefaultAppLimits...)
	}
	if limits == nil {
		limits = []models.AppLimit{}
	}
	return limits, nil
}

func (s *WellnessService) saveLimits(ctx context.Context, userID string, limits []models.AppLimit) error {
	return s.save(ctx, userID, localstore.KeyAppLimits, limits)
}

func (s *WellnessService) loadUsage(ctx context.Context, userID string) ([]models.DailyUsage, error) {
	usage := []models.DailyUsage{}
	if _, err := localstore.Load(ctx, s.store, localstore.Key(userID, localstore.KeyDailyUsage), &usage); err != nil {
		return nil, apperr.Backend("services.LoadUsage", err)
	}
	if usage == nil {
		usage = []models.DailyUsage{}
	}
	sort.Slice(usage, func(i, j int) bool { return usage[i].Date < usage[j].Date })
	return usage, nil
}

func (s *WellnessService) save(ctx context.Context, userID, name string, v interface{}) error {
	if err := localstore.Save(ctx, s.store, localstore.Key(userID, name), v); err != nil {
		return apperr.Backend("services.SaveWellness", err)
	}
	publish(s.events, realtime.TableLocalState, realtime.EventUpdate, name, userID)
	return nil
}

func indexOfApp(limits []models.AppLimit, appID string) int {
	for i := range limits {
		if limits[i].ID == appID {
			return i
		}
	}
	return -1
}
