package admin

import (
	"context"
	"fmt"
	"strings"

	"omnitoken/clinic-service/internal/auth"
	"omnitoken/clinic-service/internal/metrics"
	"omnitoken/clinic-service/internal/models"
	"omnitoken/clinic-service/internal/state"
	"omnitoken/clinic-service/internal/store"
)

// AddAdvertiser creates the advertiser and its ADVERTISER login user.
func (s *Service) AddAdvertiser(ctx context.Context, adv models.Advertiser, password string) (models.Advertiser, models.User, error) {
	adv.ID = s.newID()
	adv.CompanyName = strings.TrimSpace(adv.CompanyName)
	adv.ContactPerson = strings.TrimSpace(adv.ContactPerson)
	adv.Email = strings.ToLower(strings.TrimSpace(adv.Email))
	if adv.Status == "" {
		adv.Status = models.AdvertiserActive
	}
	if err := validate(adv); err != nil {
		return models.Advertiser{}, models.User{}, err
	}
	if password == "" {
		return models.Advertiser{}, models.User{}, fmt.Errorf("%w: password is required", store.ErrValidation)
	}
	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return models.Advertiser{}, models.User{}, err
	}

	user := models.User{
		ID:           s.newID(),
		Name:         adv.ContactPerson,
		Email:        adv.Email,
		PasswordHash: hash,
		Role:         models.RoleAdvertiser,
		AdvertiserID: adv.ID,
	}
	err = s.mutate(func(snap *models.Snapshot, b *batch) error {
		if state.UserByEmail(snap, user.Email) >= 0 {
			return store.ErrDuplicateEmail
		}
		snap.Advertisers = append(snap.Advertisers, adv)
		snap.Users = append(snap.Users, user)
		b.upsert(store.TableAdvertisers, adv)
		b.upsert(store.TableUsers, user)
		return nil
	})
	if err != nil {
		return models.Advertiser{}, models.User{}, err
	}
	s.logger.Info().Str("advertiser_id", adv.ID).Str("user_id", user.ID).Msg("advertiser added")
	user.PasswordHash = ""
	return adv, user, nil
}

func (s *Service) UpdateAdvertiser(ctx context.Context, adv models.Advertiser) (models.Advertiser, error) {
	adv.CompanyName = strings.TrimSpace(adv.CompanyName)
	adv.ContactPerson = strings.TrimSpace(adv.ContactPerson)
	adv.Email = strings.ToLower(strings.TrimSpace(adv.Email))
	if err := validate(adv); err != nil {
		return models.Advertiser{}, err
	}
	err := s.mutate(func(snap *models.Snapshot, b *batch) error {
		i := state.AdvertiserIndex(snap, adv.ID)
		if i < 0 {
			return store.ErrAdvertiserNotFound
		}
		snap.Advertisers[i] = adv
		b.upsert(store.TableAdvertisers, adv)
		return nil
	})
	if err != nil {
		return models.Advertiser{}, err
	}
	return adv, nil
}

// DeleteAdvertiser removes the advertiser with all its videos and users.
func (s *Service) DeleteAdvertiser(ctx context.Context, id string) error {
	return s.mutate(func(snap *models.Snapshot, b *batch) error {
		i := state.AdvertiserIndex(snap, id)
		if i < 0 {
			return store.ErrAdvertiserNotFound
		}
		snap.Advertisers = state.RemoveAt(snap.Advertisers, i)
		b.delete(store.TableAdvertisers, id)

		videos := snap.Videos[:0]
		for _, v := range snap.Videos {
			if v.AdvertiserID == id {
				b.delete(store.TableVideos, v.ID)
				continue
			}
			videos = append(videos, v)
		}
		snap.Videos = videos

		users := snap.Users[:0]
		for _, u := range snap.Users {
			if u.AdvertiserID == id {
				b.delete(store.TableUsers, u.ID)
				continue
			}
			users = append(users, u)
		}
		snap.Users = users
		return nil
	})
}

func (s *Service) AddVideo(ctx context.Context, video models.AdVideo) (models.AdVideo, error) {
	video.ID = s.newID()
	video.Title = strings.TrimSpace(video.Title)
	video.URL = strings.TrimSpace(video.URL)
	video.Stats = models.VideoStats{}
	if err := validate(video); err != nil {
		return models.AdVideo{}, err
	}
	err := s.mutate(func(snap *models.Snapshot, b *batch) error {
		if state.AdvertiserIndex(snap, video.AdvertiserID) < 0 {
			return store.ErrAdvertiserNotFound
		}
		snap.Videos = append(snap.Videos, video)
		b.upsert(store.TableVideos, video)
		return nil
	})
	if err != nil {
		return models.AdVideo{}, err
	}
	return video, nil
}

// UpdateVideo replaces title, url and type; view statistics are kept.
func (s *Service) UpdateVideo(ctx context.Context, video models.AdVideo) (models.AdVideo, error) {
	video.Title = strings.TrimSpace(video.Title)
	video.URL = strings.TrimSpace(video.URL)
	if err := validate(video); err != nil {
		return models.AdVideo{}, err
	}
	var updated models.AdVideo
	err := s.mutate(func(snap *models.Snapshot, b *batch) error {
		i := state.VideoIndex(snap, video.ID)
		if i < 0 {
			return store.ErrVideoNotFound
		}
		if state.AdvertiserIndex(snap, video.AdvertiserID) < 0 {
			return store.ErrAdvertiserNotFound
		}
		updated = video
		updated.Stats = snap.Videos[i].Stats
		snap.Videos[i] = updated
		b.upsert(store.TableVideos, updated)
		return nil
	})
	if err != nil {
		return models.AdVideo{}, err
	}
	return updated, nil
}

func (s *Service) DeleteVideo(ctx context.Context, id string) error {
	return s.mutate(func(snap *models.Snapshot, b *batch) error {
		i := state.VideoIndex(snap, id)
		if i < 0 {
			return store.ErrVideoNotFound
		}
		snap.Videos = state.RemoveAt(snap.Videos, i)
		b.delete(store.TableVideos, id)
		return nil
	})
}

// RecordAdView counts one playback of the video on a display screen.
func (s *Service) RecordAdView(ctx context.Context, id string) (models.AdVideo, error) {
	var updated models.AdVideo
	err := s.mutate(func(snap *models.Snapshot, b *batch) error {
		i := state.VideoIndex(snap, id)
		if i < 0 {
			return store.ErrVideoNotFound
		}
		now := s.now()
		updated = snap.Videos[i]
		updated.Stats.Views++
		updated.Stats.LastViewed = &now
		snap.Videos[i] = updated
		b.upsert(store.TableVideos, updated)
		return nil
	})
	if err != nil {
		return models.AdVideo{}, err
	}
	metrics.IncAdView()
	return updated, nil
}
