package services

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/tahcohcat/reconectar/internal/apperr"
	"github.com/tahcohcat/reconectar/internal/challenge"
	"github.com/tahcohcat/reconectar/internal/database"
	"github.com/tahcohcat/reconectar/internal/localstore"
	"github.com/tahcohcat/reconectar/internal/logger"
	"github.com/tahcohcat/reconectar/internal/models"
	"github.com/tahcohcat/reconectar/internal/realtime"
)

const defaultEngineCacheSize = 1024

// ChallengeService runs one challenge engine per profile. Engines are loaded
// from the local store on first use, kept in an LRU cache and written back
// after every mutation.
type ChallengeService struct {
	db       *database.DB
	store    localstore.Store
	profiles *ProfileService
	events   realtime.Publisher
	engines  *lru.Cache
	locks    userLocks
	now      Clock
}

func NewChallengeService(db *database.DB, store localstore.Store, profiles *ProfileService, events realtime.Publisher, cacheSize int) (*ChallengeService, error) {
	if cacheSize <= 0 {
		cacheSize = defaultEngineCacheSize
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine cache: %w", err)
	}
	return &ChallengeService{
		db:       db,
		store:    store,
		profiles: profiles,
		events:   events,
		engines:  cache,
		now:      time.Now,
	}, nil
}

// Catalog merges the built-in templates with admin-authored ones. Built-in
// ids win on collision.
func (s *ChallengeService) Catalog(ctx context.Context) (*challenge.Catalog, error) {
	var rows []models.CatalogChallenge
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, title, description, total_days, reward_xp, reward_badge, icon, created_by, created_at
		FROM challenges ORDER BY created_at DESC`)
	if err != nil {
		return nil, apperr.Backend("services.Catalog", err)
	}

	custom := make([]challenge.Template, 0, len(rows))
	for _, row := range rows {
		badge := ""
		if row.RewardBadge != nil {
			badge = *row.RewardBadge
		}
		custom = append(custom, challenge.Template{
			ID:          row.ID,
			Title:       row.Title,
			Description: row.Description,
			TotalDays:   row.TotalDays,
			Icon:        row.Icon,
			Reward:      challenge.FormatReward(row.RewardXP, badge),
		})
	}
	return challenge.NewCatalog(challenge.DefaultTemplates, custom), nil
}

func (s *ChallengeService) Templates(ctx context.Context) ([]challenge.Template, error) {
	catalog, err := s.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	return catalog.All(), nil
}

func (s *ChallengeService) Search(ctx context.Context, query string, limit int) ([]challenge.Template, error) {
	catalog, err := s.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	return catalog.Search(query, limit), nil
}

func (s *ChallengeService) Active(ctx context.Context, userID string) ([]challenge.Challenge, error) {
	unlock := s.locks.lock(userID)
	defer unlock()

	eng, err := s.engine(ctx, userID)
	if err != nil {
		return nil, err
	}
	return eng.Active(), nil
}

func (s *ChallengeService) Completed(ctx context.Context, userID string) ([]challenge.CompletedChallenge, error) {
	unlock := s.locks.lock(userID)
	defer unlock()

	eng, err := s.engine(ctx, userID)
	if err != nil {
		return nil, err
	}
	return eng.Completed(), nil
}

// Start begins the catalog template templateID for userID.
func (s *ChallengeService) Start(ctx context.Context, userID, templateID string) (challenge.Challenge, error) {
	catalog, err := s.Catalog(ctx)
	if err != nil {
		return challenge.Challenge{}, err
	}
	tmpl, ok := catalog.Find(templateID)
	if !ok {
		return challenge.Challenge{}, apperr.NotFound("services.StartChallenge", "challenge template not found")
	}

	unlock := s.locks.lock(userID)
	defer unlock()

	eng, err := s.engine(ctx, userID)
	if err != nil {
		return challenge.Challenge{}, err
	}
	prev := eng.Snapshot()
	c, err := eng.Start(tmpl)
	if err != nil {
		return challenge.Challenge{}, err
	}
	if err := s.persist(ctx, userID, eng); err != nil {
		eng.Restore(prev)
		return challenge.Challenge{}, err
	}
	if _, err := s.profiles.SetActiveChallenges(ctx, userID, eng.ActiveCount()); err != nil {
		return challenge.Challenge{}, err
	}
	return c, nil
}

// Toggle flips one daily task. It reports false, and writes nothing, when the
// challenge or date is unknown.
func (s *ChallengeService) Toggle(ctx context.Context, userID, challengeID, date string) (challenge.Challenge, bool, error) {
	unlock := s.locks.lock(userID)
	defer unlock()

	eng, err := s.engine(ctx, userID)
	if err != nil {
		return challenge.Challenge{}, false, err
	}
	prev := eng.Snapshot()
	c, ok := eng.Toggle(challengeID, date)
	if !ok {
		return challenge.Challenge{}, false, nil
	}
	if err := s.persist(ctx, userID, eng); err != nil {
		eng.Restore(prev)
		return challenge.Challenge{}, false, err
	}
	if _, err := s.profiles.SetActiveChallenges(ctx, userID, eng.ActiveCount()); err != nil {
		return challenge.Challenge{}, false, err
	}
	return c, true, nil
}

// Complete records a fully progressed challenge and awards its XP. An
// unknown id awards nothing and returns a nil profile. When the reward cannot
// be applied the challenge goes back to the active set, so a retry awards it.
func (s *ChallengeService) Complete(ctx context.Context, userID, challengeID string) (int, *models.Profile, error) {
	unlock := s.locks.lock(userID)
	defer unlock()

	eng, err := s.engine(ctx, userID)
	if err != nil {
		return 0, nil, err
	}
	if !eng.IsActive(challengeID) {
		return 0, nil, nil
	}

	prev := eng.Snapshot()
	xp, err := eng.Complete(challengeID)
	if err != nil {
		return 0, nil, err
	}
	if err := s.persist(ctx, userID, eng); err != nil {
		eng.Restore(prev)
		return 0, nil, err
	}

	p, err := s.profiles.AwardXP(ctx, userID, xp)
	if err != nil {
		eng.Restore(prev)
		if rerr := s.persist(ctx, userID, eng); rerr != nil {
			// the store may now disagree with the cache
			s.engines.Remove(userID)
			logger.New().WithError(rerr).With("user_id", userID).With("challenge", challengeID).
				Error("Failed to roll back challenge completion")
		}
		return 0, nil, err
	}
	p, err = s.profiles.SetActiveChallenges(ctx, userID, eng.ActiveCount())
	if err != nil {
		return 0, nil, err
	}

	logger.New().With("user_id", userID).With("challenge", challengeID).With("xp", xp).Info("Challenge completed")
	return xp, p, nil
}

// State returns both challenge sets.
func (s *ChallengeService) State(ctx context.Context, userID string) (challenge.State, error) {
	unlock := s.locks.lock(userID)
	defer unlock()

	eng, err := s.engine(ctx, userID)
	if err != nil {
		return challenge.State{}, err
	}
	return eng.Snapshot(), nil
}

// engine returns the cached engine for userID, loading it from the local
// store on a miss. Callers hold the user's lock.
func (s *ChallengeService) engine(ctx context.Context, userID string) (*challenge.Engine, error) {
	if v, ok := s.engines.Get(userID); ok {
		return v.(*challenge.Engine), nil
	}

	var state challenge.State
	if _, err := localstore.Load(ctx, s.store, localstore.Key(userID, localstore.KeyChallenges), &state.Active); err != nil {
		return nil, apperr.Backend("services.LoadChallenges", err)
	}
	if _, err := localstore.Load(ctx, s.store, localstore.Key(userID, localstore.KeyCompletedChallenges), &state.Completed); err != nil {
		return nil, apperr.Backend("services.LoadChallenges", err)
	}

	eng := challenge.NewEngine(challenge.WithClock(s.now))
	eng.Restore(state)
	s.engines.Add(userID, eng)
	return eng, nil
}

// persist writes both sets in one store write.
func (s *ChallengeService) persist(ctx context.Context, userID string, eng *challenge.Engine) error {
	state := eng.Snapshot()
	err := localstore.SaveAll(ctx, s.store, map[string]interface{}{
		localstore.Key(userID, localstore.KeyChallenges):          state.Active,
		localstore.Key(userID, localstore.KeyCompletedChallenges): state.Completed,
	})
	if err != nil {
		return apperr.Backend("services.SaveChallenges", err)
	}
	publish(s.events, realtime.TableLocalState, realtime.EventUpdate, localstore.KeyChallenges, userID)
	return nil
}
